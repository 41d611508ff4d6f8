package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const flushTimeout = 30 * time.Second

// Persister moves the store to and from durable storage: one load at startup,
// a save on a fixed cadence, and a final save at shutdown.
type Persister struct {
	store   *SubscriberStore
	gateway domain.SubscriberGateway
	every   time.Duration
	cron    *gocron.Scheduler
	logger  *zap.Logger

	mu sync.Mutex
}

func NewPersister(store *SubscriberStore, gateway domain.SubscriberGateway, every time.Duration, logger *zap.Logger) *Persister {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	cron.WaitForScheduleAll()
	return &Persister{store: store, gateway: gateway, every: every, cron: cron, logger: logger}
}

func (p *Persister) Restore(ctx context.Context) ([]domain.Subscriber, error) {
	subscribers, err := p.gateway.Load(ctx)
	if err != nil {
		return nil, err
	}
	restored := p.store.Restore(subscribers)

	active := 0
	for _, sub := range restored {
		if sub.Active {
			active++
		}
	}
	p.logger.Info("subscribers restored", zap.Int("count", len(restored)), zap.Int("active", active))
	return restored, nil
}

func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	subscribers := p.store.All()
	if err := p.gateway.Save(ctx, subscribers); err != nil {
		return err
	}
	p.logger.Debug("subscribers saved", zap.Int("count", len(subscribers)))
	return nil
}

func (p *Persister) Start(ctx context.Context) error {
	_, err := p.cron.Every(p.every).Do(func() {
		flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
		defer cancel()
		if err := p.Flush(flushCtx); err != nil {
			p.logger.Warn("periodic save failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	p.cron.StartAsync()
	p.logger.Info("periodic save started", zap.Duration("every", p.every))
	return nil
}

// Stop halts the cadence and writes one last snapshot.
func (p *Persister) Stop(ctx context.Context) error {
	p.cron.Stop()
	return p.Flush(ctx)
}
