package usecase

import (
	"sort"
	"strings"
	"sync"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/jonboulle/clockwork"
)

// SubscriberStore owns every subscriber record. The index lock only guards
// lookups and inserts; each record is mutated under its own lock so edits for
// different subscribers never contend.
type SubscriberStore struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	records map[int64]*subscriberRecord
}

type subscriberRecord struct {
	mu  sync.Mutex
	sub domain.Subscriber
}

func NewSubscriberStore(clock clockwork.Clock) *SubscriberStore {
	return &SubscriberStore{
		clock:   clock,
		records: make(map[int64]*subscriberRecord),
	}
}

func (s *SubscriberStore) GetOrCreate(id int64) domain.Subscriber {
	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.sub.Clone()
}

func (s *SubscriberStore) Get(id int64) (domain.Subscriber, bool) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Subscriber{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.sub.Clone(), true
}

// Watchlist returns the current watchlist, or nil for unknown subscribers.
func (s *SubscriberStore) Watchlist(id int64) []string {
	sub, ok := s.Get(id)
	if !ok {
		return nil
	}
	return sub.Watchlist
}

// ToggleWatch adds the asset when absent and removes it when present. The
// schedule is left untouched.
func (s *SubscriberStore) ToggleWatch(id int64, asset string) ([]string, error) {
	asset = normalizeAsset(asset)
	if asset == "" {
		return nil, domain.ErrEmptyAsset
	}

	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	idx := -1
	for i, existing := range rec.sub.Watchlist {
		if existing == asset {
			idx = i
			break
		}
	}
	if idx >= 0 {
		rec.sub.Watchlist = append(rec.sub.Watchlist[:idx:idx], rec.sub.Watchlist[idx+1:]...)
	} else {
		rec.sub.Watchlist = append(rec.sub.Watchlist, asset)
	}
	rec.sub.UpdatedAt = s.clock.Now()
	return append([]string(nil), rec.sub.Watchlist...), nil
}

// SetWatchlist replaces the watchlist wholesale, dropping blanks and duplicates
// while keeping the first-seen order.
func (s *SubscriberStore) SetWatchlist(id int64, assets []string) []string {
	watchlist := dedupeAssets(assets)

	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.sub.Watchlist = watchlist
	rec.sub.UpdatedAt = s.clock.Now()
	return append([]string(nil), watchlist...)
}

// SetSchedule stores a validated spec. It never starts timers and never flips
// the active flag; the engine does both when it installs the timer.
func (s *SubscriberStore) SetSchedule(id int64, spec domain.ScheduleSpec) error {
	if spec == nil {
		return domain.ErrInvalidSchedule
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.sub.Watchlist) == 0 {
		return domain.ErrEmptyWatchlist
	}
	rec.sub.Schedule = spec
	rec.sub.UpdatedAt = s.clock.Now()
	return nil
}

func (s *SubscriberStore) checkWatchlist(id int64) error {
	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.sub.Watchlist) == 0 {
		return domain.ErrEmptyWatchlist
	}
	return nil
}

// ClearSchedule drops the schedule and reports whether the subscriber was
// active.
func (s *SubscriberStore) ClearSchedule(id int64) bool {
	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	wasActive := rec.sub.Active
	rec.sub.Schedule = nil
	rec.sub.Active = false
	rec.sub.JobHandle = ""
	rec.sub.UpdatedAt = s.clock.Now()
	return wasActive
}

// bindJob marks the subscriber active under the given handle.
func (s *SubscriberStore) bindJob(id int64, spec domain.ScheduleSpec, handle domain.JobHandle) {
	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.sub.Schedule = spec
	rec.sub.Active = true
	rec.sub.JobHandle = handle
	rec.sub.UpdatedAt = s.clock.Now()
}

// All returns copies of every record ordered by id.
func (s *SubscriberStore) All() []domain.Subscriber {
	s.mu.RLock()
	recs := make([]*subscriberRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	subs := make([]domain.Subscriber, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		subs = append(subs, rec.sub.Clone())
		rec.mu.Unlock()
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs
}

func (s *SubscriberStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Restore replaces the store contents with persisted records. Job handles are
// dropped and no timer is armed; records that cannot be re-armed are
// normalized to inactive.
func (s *SubscriberStore) Restore(subscribers []domain.Subscriber) []domain.Subscriber {
	records := make(map[int64]*subscriberRecord, len(subscribers))
	for _, sub := range subscribers {
		restored := sub.Clone()
		restored.Watchlist = dedupeAssets(restored.Watchlist)
		restored.JobHandle = ""
		if !restored.Active {
			restored.Schedule = nil
		} else if restored.Schedule == nil || restored.Schedule.Validate() != nil || len(restored.Watchlist) == 0 {
			restored.Schedule = nil
			restored.Active = false
		}
		records[restored.ID] = &subscriberRecord{sub: restored}
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	return s.All()
}

func (s *SubscriberStore) record(id int64) *subscriberRecord {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return rec
	}
	now := s.clock.Now()
	rec = &subscriberRecord{sub: domain.Subscriber{ID: id, CreatedAt: now, UpdatedAt: now}}
	s.records[id] = rec
	return rec
}

func normalizeAsset(asset string) string {
	return strings.ToLower(strings.TrimSpace(asset))
}

func dedupeAssets(assets []string) []string {
	seen := make(map[string]struct{}, len(assets))
	out := make([]string, 0, len(assets))
	for _, asset := range assets {
		asset = normalizeAsset(asset)
		if asset == "" {
			continue
		}
		if _, ok := seen[asset]; ok {
			continue
		}
		seen[asset] = struct{}{}
		out = append(out, asset)
	}
	return out
}
