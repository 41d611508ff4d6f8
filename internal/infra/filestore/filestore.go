package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/spf13/afero"
)

const formatVersion = 1

type envelope struct {
	Version     int              `json:"version"`
	SavedAt     time.Time        `json:"saved_at"`
	Subscribers []subscriberJSON `json:"subscribers"`
}

type subscriberJSON struct {
	ID        int64                 `json:"id"`
	Watchlist []string              `json:"watchlist"`
	Schedule  domain.ScheduleRecord `json:"schedule"`
	Active    bool                  `json:"active"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Store keeps the subscriber snapshot in a single JSON document. Writes go to
// a temporary file that is renamed over the previous snapshot.
type Store struct {
	fs   afero.Fs
	path string
	now  func() time.Time
}

func New(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path, now: time.Now}
}

func NewOS(path string) *Store {
	return New(afero.NewOsFs(), path)
}

func (s *Store) Save(ctx context.Context, subscribers []domain.Subscriber) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := envelope{
		Version:     formatVersion,
		SavedAt:     s.now().UTC(),
		Subscribers: make([]subscriberJSON, 0, len(subscribers)),
	}
	for _, sub := range subscribers {
		watchlist := sub.Watchlist
		if watchlist == nil {
			watchlist = []string{}
		}
		doc.Subscribers = append(doc.Subscribers, subscriberJSON{
			ID:        sub.ID,
			Watchlist: watchlist,
			Schedule:  domain.RecordOf(sub.Schedule),
			Active:    sub.Active,
			CreatedAt: sub.CreatedAt,
			UpdatedAt: sub.UpdatedAt,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}

// Load returns no subscribers when the file does not exist yet.
func (s *Store) Load(ctx context.Context) ([]domain.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var doc envelope
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d in %s", doc.Version, s.path)
	}

	subscribers := make([]domain.Subscriber, 0, len(doc.Subscribers))
	for _, item := range doc.Subscribers {
		spec, err := item.Schedule.Spec()
		if err != nil {
			spec = nil
		}
		subscribers = append(subscribers, domain.Subscriber{
			ID:        item.ID,
			Watchlist: item.Watchlist,
			Schedule:  spec,
			Active:    item.Active,
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return subscribers, nil
}
