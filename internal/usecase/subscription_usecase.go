package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"go.uber.org/zap"
)

// SubscriptionUsecase is the entry point used by every delivery adapter.
type SubscriptionUsecase struct {
	store    *SubscriberStore
	engine   *ScheduleEngine
	reporter *Reporter
	catalog  *domain.Catalog
	preview  bool
	logger   *zap.Logger
}

type SubscriberView struct {
	domain.Subscriber
	NextFire time.Time
}

func NewSubscriptionUsecase(store *SubscriberStore, engine *ScheduleEngine, reporter *Reporter, catalog *domain.Catalog, preview bool, logger *zap.Logger) *SubscriptionUsecase {
	return &SubscriptionUsecase{
		store:    store,
		engine:   engine,
		reporter: reporter,
		catalog:  catalog,
		preview:  preview,
		logger:   logger,
	}
}

func (u *SubscriptionUsecase) Catalog() *domain.Catalog {
	return u.catalog
}

func (u *SubscriptionUsecase) Start(id int64) domain.Subscriber {
	return u.store.GetOrCreate(id)
}

func (u *SubscriptionUsecase) Settings(id int64) SubscriberView {
	view := SubscriberView{Subscriber: u.store.GetOrCreate(id)}
	if next, ok := u.engine.NextFire(id); ok {
		view.NextFire = next
	}
	return view
}

func (u *SubscriptionUsecase) ToggleAsset(id int64, asset string) ([]string, error) {
	return u.store.ToggleWatch(id, asset)
}

func (u *SubscriptionUsecase) SetWatchlist(id int64, assets []string) []string {
	return u.store.SetWatchlist(id, assets)
}

func (u *SubscriptionUsecase) WatchAll(id int64) []string {
	return u.store.SetWatchlist(id, u.catalog.IDs())
}

func (u *SubscriptionUsecase) ClearWatchlist(id int64) []string {
	return u.store.SetWatchlist(id, nil)
}

// ActivateSchedule installs a timer for spec, replacing any previous one. The
// engine stores the spec only once the timer is armed, so rejected requests
// leave the subscriber unchanged.
func (u *SubscriptionUsecase) ActivateSchedule(ctx context.Context, id int64, spec domain.ScheduleSpec) error {
	handle, err := u.engine.Activate(id, spec)
	if err != nil {
		return err
	}
	u.logger.Info("schedule activated", zap.Int64("subscriber_id", id), zap.String("handle", string(handle)), zap.Stringer("schedule", spec))

	if u.preview {
		if err := u.engine.FireNow(ctx, id); err != nil {
			u.logger.Warn("activation preview failed", zap.Int64("subscriber_id", id), zap.Error(err))
		}
	}
	return nil
}

// DeactivateSchedule removes the subscriber's timer and schedule while keeping
// the watchlist. It reports whether a schedule was active.
func (u *SubscriptionUsecase) DeactivateSchedule(id int64) bool {
	wasActive := u.engine.Remove(id)
	if wasActive {
		u.logger.Info("schedule deactivated", zap.Int64("subscriber_id", id))
	}
	return wasActive
}

// SnapshotReport builds an on-demand report; no ids means the default assets.
func (u *SubscriptionUsecase) SnapshotReport(ctx context.Context, assetIDs []string) (string, error) {
	assets := dedupeAssets(assetIDs)
	if len(assets) == 0 {
		assets = u.catalog.DefaultIDs()
	}
	report, err := u.reporter.Report(ctx, OnDemandReportTitle, assets)
	if err != nil {
		if errors.Is(err, domain.ErrFetch) {
			u.logger.Warn("on-demand report failed", zap.Strings("assets", assets), zap.Error(err))
		}
		return "", err
	}
	return report, nil
}

// PricesFor reports on the subscriber's watchlist, or the defaults when empty.
func (u *SubscriptionUsecase) PricesFor(ctx context.Context, id int64) (string, error) {
	sub, ok := u.store.Get(id)
	if !ok {
		return u.SnapshotReport(ctx, nil)
	}
	return u.SnapshotReport(ctx, sub.Watchlist)
}
