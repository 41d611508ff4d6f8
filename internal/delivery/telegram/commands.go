package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/NasaVasa/cryptowatch/internal/domain"
)

const HelpText = `Commands:
/start - register
/help - show this help
/coins - list supported assets
/watch <asset...> - add or remove assets (id, name or symbol)
/watchall - watch every supported asset
/clear - empty your watchlist
/every <n> <minutes|hours> - send updates on an interval
/daily <HH:MM> - send one update a day (UTC)
/schedule <text> - e.g. "every 30 minutes", "every 2 hours", "daily at 09:00", "at 14:30"
/unsubscribe - stop automatic updates
/settings - show your preferences
/prices - current prices for your watchlist
/list - show your watchlist and schedule

Example:
/watch btc eth sol
/every 30 minutes
`

const scheduleUsage = `Please use one of these formats:
- every 30 minutes
- every 2 hours
- daily at 09:00
- at 14:30`

var ErrInvalidArguments = errors.New("invalid arguments")

func ParseAssets(args string) ([]string, error) {
	fields := strings.Fields(strings.ReplaceAll(args, ",", " "))
	if len(fields) == 0 {
		return nil, ErrInvalidArguments
	}
	return fields, nil
}

// ParseEvery reads "<n> [minutes|hours]". A bare number means minutes.
func ParseEvery(args string) (domain.Interval, error) {
	fields := strings.Fields(strings.ToLower(args))
	if len(fields) == 0 || len(fields) > 2 {
		return domain.Interval{}, ErrInvalidArguments
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return domain.Interval{}, ErrInvalidArguments
	}
	unit := "minutes"
	if len(fields) == 2 {
		unit = fields[1]
	}
	return intervalOf(n, unit)
}

// ParseDaily reads "HH:MM" or a bare hour.
func ParseDaily(args string) (domain.DailyAt, error) {
	value := strings.TrimSpace(args)
	if value == "" {
		return domain.DailyAt{}, ErrInvalidArguments
	}
	hourStr, minuteStr, hasMinute := strings.Cut(value, ":")
	hour, err := strconv.Atoi(strings.TrimSpace(hourStr))
	if err != nil {
		return domain.DailyAt{}, ErrInvalidArguments
	}
	minute := 0
	if hasMinute {
		minute, err = strconv.Atoi(strings.TrimSpace(minuteStr))
		if err != nil {
			return domain.DailyAt{}, ErrInvalidArguments
		}
	}
	return domain.DailyAt{Hour: hour, Minute: minute}, nil
}

// ParseScheduleText understands "every N minutes", "every N hours",
// "every minute", "every hour", "daily at HH:MM" and "at HH:MM". Range checks
// are left to the schedule itself.
func ParseScheduleText(text string) (domain.ScheduleSpec, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return nil, ErrInvalidArguments
	}

	switch fields[0] {
	case "every":
		switch len(fields) {
		case 2:
			return intervalOf(1, fields[1])
		case 3:
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, ErrInvalidArguments
			}
			return intervalOf(n, fields[2])
		}
		return nil, ErrInvalidArguments
	case "daily":
		if len(fields) == 3 && fields[1] == "at" {
			return ParseDaily(fields[2])
		}
		if len(fields) == 2 {
			return ParseDaily(fields[1])
		}
		return nil, ErrInvalidArguments
	case "at":
		if len(fields) != 2 {
			return nil, ErrInvalidArguments
		}
		return ParseDaily(fields[1])
	}
	return nil, ErrInvalidArguments
}

func intervalOf(n int, unit string) (domain.Interval, error) {
	switch unit {
	case "m", "min", "mins", "minute", "minutes":
		return domain.Interval{Minutes: n}, nil
	case "h", "hr", "hrs", "hour", "hours":
		if n > domain.MaxIntervalMinutes/60 || n < -domain.MaxIntervalMinutes/60 {
			return domain.Interval{}, fmt.Errorf("%w: %d hours is too long", domain.ErrInvalidSchedule, n)
		}
		return domain.Interval{Minutes: n * 60}, nil
	}
	return domain.Interval{}, ErrInvalidArguments
}
