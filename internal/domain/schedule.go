package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// MaxIntervalMinutes keeps interval periods well inside time.Duration range.
const MaxIntervalMinutes = 366 * 24 * 60

type ScheduleKind string

const (
	ScheduleKindNone     ScheduleKind = ""
	ScheduleKindInterval ScheduleKind = "interval"
	ScheduleKindDaily    ScheduleKind = "daily"
)

// ScheduleSpec is implemented by Interval and DailyAt only. A nil spec means
// the subscriber has no schedule.
type ScheduleSpec interface {
	Kind() ScheduleKind
	Validate() error
	// Next returns the first fire time strictly after the given instant.
	Next(after time.Time) (time.Time, error)
	String() string

	scheduleSpec()
}

type Interval struct {
	Minutes int
}

func (Interval) Kind() ScheduleKind { return ScheduleKindInterval }

func (i Interval) Validate() error {
	if i.Minutes < 1 {
		return fmt.Errorf("%w: interval must be at least 1 minute, got %d", ErrInvalidSchedule, i.Minutes)
	}
	if i.Minutes > MaxIntervalMinutes {
		return fmt.Errorf("%w: interval must be at most %d minutes, got %d", ErrInvalidSchedule, MaxIntervalMinutes, i.Minutes)
	}
	return nil
}

func (i Interval) Period() time.Duration {
	return time.Duration(i.Minutes) * time.Minute
}

func (i Interval) Next(after time.Time) (time.Time, error) {
	if err := i.Validate(); err != nil {
		return time.Time{}, err
	}
	return after.Add(i.Period()), nil
}

func (i Interval) String() string {
	switch {
	case i.Minutes == 1:
		return "every minute"
	case i.Minutes == 60:
		return "every hour"
	case i.Minutes%60 == 0:
		return fmt.Sprintf("every %d hours", i.Minutes/60)
	default:
		return fmt.Sprintf("every %d minutes", i.Minutes)
	}
}

func (Interval) scheduleSpec() {}

// DailyAt fires once per UTC day at Hour:Minute:00.
type DailyAt struct {
	Hour   int
	Minute int
}

func (DailyAt) Kind() ScheduleKind { return ScheduleKindDaily }

func (d DailyAt) Validate() error {
	if d.Hour < 0 || d.Hour > 23 {
		return fmt.Errorf("%w: hour must be within 0-23, got %d", ErrInvalidSchedule, d.Hour)
	}
	if d.Minute < 0 || d.Minute > 59 {
		return fmt.Errorf("%w: minute must be within 0-59, got %d", ErrInvalidSchedule, d.Minute)
	}
	return nil
}

func (d DailyAt) CronExpr() string {
	return fmt.Sprintf("%d %d * * *", d.Minute, d.Hour)
}

func (d DailyAt) Next(after time.Time) (time.Time, error) {
	if err := d.Validate(); err != nil {
		return time.Time{}, err
	}
	return gronx.NextTickAfter(d.CronExpr(), after.UTC(), false)
}

func (d DailyAt) String() string {
	return fmt.Sprintf("daily at %02d:%02d UTC", d.Hour, d.Minute)
}

func (DailyAt) scheduleSpec() {}

// ScheduleRecord is the flat, storable form of a ScheduleSpec.
type ScheduleRecord struct {
	Kind    ScheduleKind `json:"kind" bson:"kind"`
	Minutes int          `json:"minutes,omitempty" bson:"minutes,omitempty"`
	Hour    int          `json:"hour,omitempty" bson:"hour,omitempty"`
	Minute  int          `json:"minute,omitempty" bson:"minute,omitempty"`
}

func RecordOf(spec ScheduleSpec) ScheduleRecord {
	switch s := spec.(type) {
	case Interval:
		return ScheduleRecord{Kind: ScheduleKindInterval, Minutes: s.Minutes}
	case DailyAt:
		return ScheduleRecord{Kind: ScheduleKindDaily, Hour: s.Hour, Minute: s.Minute}
	default:
		return ScheduleRecord{}
	}
}

// Spec converts the record back into a validated ScheduleSpec. An empty kind
// yields a nil spec and no error.
func (r ScheduleRecord) Spec() (ScheduleSpec, error) {
	var spec ScheduleSpec
	switch r.Kind {
	case ScheduleKindNone:
		return nil, nil
	case ScheduleKindInterval:
		spec = Interval{Minutes: r.Minutes}
	case ScheduleKindDaily:
		spec = DailyAt{Hour: r.Hour, Minute: r.Minute}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, r.Kind)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
