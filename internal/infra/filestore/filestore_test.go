package filestore

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/spf13/afero"
)

func TestStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/data/subscribers.json")
	ctx := context.Background()
	created := time.Date(2024, 3, 10, 9, 5, 0, 0, time.UTC)

	in := []domain.Subscriber{
		{ID: 1, Watchlist: []string{"bitcoin", "solana"}, Schedule: domain.Interval{Minutes: 60}, Active: true, JobHandle: "h1", CreatedAt: created, UpdatedAt: created},
		{ID: 2, Watchlist: []string{"ethereum"}, Schedule: domain.DailyAt{Hour: 0, Minute: 0}, Active: true, CreatedAt: created, UpdatedAt: created},
		{ID: 3, CreatedAt: created, UpdatedAt: created},
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if exists, _ := afero.Exists(fs, "/data/subscribers.json.tmp"); exists {
		t.Fatal("temporary file left behind")
	}

	out, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 subscribers, got %d", len(out))
	}
	if !reflect.DeepEqual(out[0].Watchlist, in[0].Watchlist) || out[0].Schedule != (domain.Interval{Minutes: 60}) || !out[0].Active || out[0].JobHandle != "" {
		t.Fatalf("unexpected first subscriber %+v", out[0])
	}
	if out[1].Schedule != (domain.DailyAt{Hour: 0, Minute: 0}) {
		t.Fatalf("midnight schedule lost: %+v", out[1].Schedule)
	}
	if out[2].Schedule != nil || !out[2].CreatedAt.Equal(created) {
		t.Fatalf("unexpected third subscriber %+v", out[2])
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := New(afero.NewMemMapFs(), "/nope/subscribers.json")
	out, err := store.Load(context.Background())
	if err != nil || len(out) != 0 {
		t.Fatalf("expected empty load, got %v, %v", out, err)
	}
}

func TestStoreLoadRejectsCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	tests := map[string]string{
		"garbage": `{"version":`,
		"version": `{"version":9,"subscribers":[]}`,
	}
	for name, body := range tests {
		if err := afero.WriteFile(fs, "/s.json", []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := New(fs, "/s.json").Load(context.Background()); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestStoreDropsUnknownScheduleKind(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := `{"version":1,"subscribers":[{"id":5,"watchlist":["bitcoin"],"schedule":{"kind":"weekly"},"active":true}]}`
	if err := afero.WriteFile(fs, "/s.json", []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := New(fs, "/s.json").Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 1 || out[0].Schedule != nil {
		t.Fatalf("expected unknown kind to be dropped, got %+v", out)
	}
}

func TestStoreWritesReadableJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "snap.json")
	store.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	if err := store.Save(context.Background(), []domain.Subscriber{{ID: 7, Watchlist: []string{"dogecoin"}, Schedule: domain.Interval{Minutes: 15}}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := afero.ReadFile(fs, "snap.json")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"saved_at": "2024-01-01T00:00:00Z"`, `"kind": "interval"`, `"minutes": 15`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected %s in %s", want, data)
		}
	}
}
