package usecase

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/jonboulle/clockwork"
)

func TestToggleWatch(t *testing.T) {
	store := NewSubscriberStore(clockwork.NewFakeClockAt(testStart))

	steps := []struct {
		asset string
		want  []string
	}{
		{"bitcoin", []string{"bitcoin"}},
		{" Ethereum ", []string{"bitcoin", "ethereum"}},
		{"solana", []string{"bitcoin", "ethereum", "solana"}},
		{"ethereum", []string{"bitcoin", "solana"}},
		{"BITCOIN", []string{"solana"}},
		{"solana", []string{}},
	}
	for i, step := range steps {
		got, err := store.ToggleWatch(1, step.asset)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if len(got) != len(step.want) || (len(got) > 0 && !reflect.DeepEqual(got, step.want)) {
			t.Fatalf("step %d: got %v, want %v", i, got, step.want)
		}
	}

	if _, err := store.ToggleWatch(1, "  "); !errors.Is(err, domain.ErrEmptyAsset) {
		t.Fatalf("expected ErrEmptyAsset, got %v", err)
	}
}

func TestToggleLastAssetKeepsSchedule(t *testing.T) {
	store := NewSubscriberStore(clockwork.NewFakeClockAt(testStart))
	store.SetWatchlist(1, []string{"bitcoin"})
	if err := store.SetSchedule(1, domain.Interval{Minutes: 15}); err != nil {
		t.Fatalf("set schedule: %v", err)
	}
	store.bindJob(1, domain.Interval{Minutes: 15}, "h1")

	if _, err := store.ToggleWatch(1, "bitcoin"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	sub, _ := store.Get(1)
	if !sub.Active || sub.Schedule == nil || sub.JobHandle != "h1" {
		t.Fatalf("expected schedule untouched, got %+v", sub)
	}
}

func TestSetWatchlistDedupes(t *testing.T) {
	store := NewSubscriberStore(clockwork.NewFakeClockAt(testStart))
	got := store.SetWatchlist(3, []string{"Solana", "bitcoin", "", "solana", " bitcoin", "cardano"})
	want := []string{"solana", "bitcoin", "cardano"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got[0] = "mutated"
	if wl := store.Watchlist(3); wl[0] != "solana" {
		t.Fatalf("store shares its slice with callers: %v", wl)
	}
}

func TestSetScheduleRejections(t *testing.T) {
	store := NewSubscriberStore(clockwork.NewFakeClockAt(testStart))

	if err := store.SetSchedule(1, domain.Interval{Minutes: 10}); !errors.Is(err, domain.ErrEmptyWatchlist) {
		t.Fatalf("expected ErrEmptyWatchlist, got %v", err)
	}
	store.SetWatchlist(1, []string{"bitcoin"})

	for _, spec := range []domain.ScheduleSpec{nil, domain.Interval{}, domain.DailyAt{Hour: 24}, domain.DailyAt{Minute: 60}} {
		if err := store.SetSchedule(1, spec); !errors.Is(err, domain.ErrInvalidSchedule) {
			t.Fatalf("spec %v: expected ErrInvalidSchedule, got %v", spec, err)
		}
	}

	sub, _ := store.Get(1)
	if sub.Schedule != nil || sub.Active {
		t.Fatalf("rejected schedules must not change the subscriber: %+v", sub)
	}

	if err := store.SetSchedule(1, domain.DailyAt{Hour: 8, Minute: 30}); err != nil {
		t.Fatalf("valid schedule: %v", err)
	}
	sub, _ = store.Get(1)
	if sub.Active {
		t.Fatal("SetSchedule must not flip the active flag")
	}
}

func TestClearScheduleKeepsWatchlist(t *testing.T) {
	store := NewSubscriberStore(clockwork.NewFakeClockAt(testStart))
	store.SetWatchlist(1, []string{"bitcoin", "ethereum"})
	store.bindJob(1, domain.Interval{Minutes: 5}, "h1")

	if !store.ClearSchedule(1) {
		t.Fatal("expected ClearSchedule to report the active schedule")
	}
	if store.ClearSchedule(1) {
		t.Fatal("second ClearSchedule should report inactive")
	}
	sub, _ := store.Get(1)
	if sub.Active || sub.Schedule != nil || sub.JobHandle != "" {
		t.Fatalf("expected schedule cleared, got %+v", sub)
	}
	if !reflect.DeepEqual(sub.Watchlist, []string{"bitcoin", "ethereum"}) {
		t.Fatalf("watchlist changed: %v", sub.Watchlist)
	}
}

func TestGetOrCreate(t *testing.T) {
	store := NewSubscriberStore(clockwork.NewFakeClockAt(testStart))
	if _, ok := store.Get(9); ok {
		t.Fatal("unexpected subscriber before creation")
	}
	sub := store.GetOrCreate(9)
	if sub.ID != 9 || sub.Active || len(sub.Watchlist) != 0 || !sub.CreatedAt.Equal(testStart) {
		t.Fatalf("unexpected new subscriber %+v", sub)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", store.Len())
	}
	store.GetOrCreate(9)
	if store.Len() != 1 {
		t.Fatalf("GetOrCreate duplicated a record")
	}
}

func TestRestoreNormalizes(t *testing.T) {
	store := NewSubscriberStore(clockwork.NewFakeClockAt(testStart))
	store.SetWatchlist(99, []string{"bitcoin"})

	restored := store.Restore([]domain.Subscriber{
		{ID: 1, Watchlist: []string{"bitcoin"}, Schedule: domain.Interval{Minutes: 30}, Active: true, JobHandle: "old"},
		{ID: 2, Watchlist: []string{"ethereum"}, Schedule: domain.DailyAt{Hour: 7}, Active: false},
		{ID: 3, Watchlist: nil, Schedule: domain.Interval{Minutes: 30}, Active: true},
		{ID: 4, Watchlist: []string{"solana"}, Schedule: domain.Interval{Minutes: 0}, Active: true},
		{ID: 5, Watchlist: []string{"solana", "Solana"}, Active: true},
	})

	if len(restored) != 5 {
		t.Fatalf("expected 5 restored subscribers, got %d", len(restored))
	}
	if _, ok := store.Get(99); ok {
		t.Fatal("restore must replace existing records")
	}

	byID := make(map[int64]domain.Subscriber)
	for _, sub := range restored {
		if sub.JobHandle != "" {
			t.Fatalf("subscriber %d kept a stale handle", sub.ID)
		}
		byID[sub.ID] = sub
	}
	if sub := byID[1]; !sub.Active || sub.Schedule == nil {
		t.Fatalf("subscriber 1 should stay active: %+v", sub)
	}
	if sub := byID[2]; sub.Active || sub.Schedule != nil {
		t.Fatalf("inactive subscriber 2 should have no schedule: %+v", sub)
	}
	for _, id := range []int64{3, 4, 5} {
		if sub := byID[id]; sub.Active || sub.Schedule != nil {
			t.Fatalf("subscriber %d should be normalized to inactive: %+v", id, sub)
		}
	}
	if wl := byID[5].Watchlist; !reflect.DeepEqual(wl, []string{"solana"}) {
		t.Fatalf("expected deduped watchlist, got %v", wl)
	}
}

func TestStoreConcurrentEdits(t *testing.T) {
	store := NewSubscriberStore(clockwork.NewFakeClockAt(testStart))

	var wg sync.WaitGroup
	for id := int64(1); id <= 8; id++ {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(id int64, j int) {
				defer wg.Done()
				if _, err := store.ToggleWatch(id, fmt.Sprintf("asset-%d", j)); err != nil {
					t.Errorf("toggle: %v", err)
				}
				store.All()
			}(id, j)
		}
	}
	wg.Wait()

	if store.Len() != 8 {
		t.Fatalf("expected 8 subscribers, got %d", store.Len())
	}
	for _, sub := range store.All() {
		if len(sub.Watchlist) != 10 {
			t.Fatalf("subscriber %d lost updates: %v", sub.ID, sub.Watchlist)
		}
	}
}
