package domain

import (
	"errors"
	"time"
)

var (
	ErrEmptyWatchlist = errors.New("watchlist is empty")
	ErrEmptyAsset     = errors.New("asset id is empty")
	ErrDelivery       = errors.New("notification delivery failed")
)

// JobHandle identifies one installed timer. Handles never survive a restart.
type JobHandle string

type Subscriber struct {
	ID        int64
	Watchlist []string
	Schedule  ScheduleSpec
	Active    bool
	JobHandle JobHandle
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Subscriber) Clone() Subscriber {
	clone := s
	clone.Watchlist = append([]string(nil), s.Watchlist...)
	return clone
}

func (s Subscriber) Watches(assetID string) bool {
	for _, id := range s.Watchlist {
		if id == assetID {
			return true
		}
	}
	return false
}
