package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/config"
	"github.com/NasaVasa/cryptowatch/internal/delivery/httpapi"
	"github.com/NasaVasa/cryptowatch/internal/delivery/telegram"
	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/NasaVasa/cryptowatch/internal/usecase"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	reportFooter    = "Use /settings to modify your preferences."
	shutdownTimeout = 30 * time.Second
	pollSlack       = 10 * time.Second
)

type App struct {
	cfg       config.Config
	logger    *zap.Logger
	engine    *usecase.ScheduleEngine
	persister *usecase.Persister
	bot       *telegram.Bot
	http      *httpapi.Server
	stream    streamRunner
	ready     atomic.Bool
	closers   []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

type streamRunner interface {
	Run(ctx context.Context)
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger}
	clock := clockwork.NewRealClock()
	catalog := domain.DefaultCatalog()

	prices, stream := newPriceSource(cfg, catalog, clock, logger)
	if stream != nil {
		a.stream = stream
	}

	gateway, closeGateway, err := openGateway(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	if closeGateway != nil {
		a.closers = append(a.closers, closer{name: cfg.StoreDriver, fn: closeGateway})
	}

	sendAPI, err := telegram.NewAPI(cfg.TelegramBotToken, cfg.TelegramSendTimeout)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("telegram api: %w", err)
	}
	pollAPI, err := telegram.NewAPI(cfg.TelegramBotToken, time.Duration(cfg.TelegramPollTimeout)*time.Second+pollSlack)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("telegram api: %w", err)
	}
	logger.Info("telegram authorized", zap.String("bot", sendAPI.Self.UserName))

	store := usecase.NewSubscriberStore(clock)
	reporter := usecase.NewReporter(prices, usecase.NewFormatter(catalog), clock, cfg.CoinGeckoTimeout, reportFooter)
	notifier := telegram.NewNotifier(sendAPI, logger)
	a.engine = usecase.NewScheduleEngine(store, reporter, notifier, clock, cfg.FireTimeout, logger)
	a.persister = usecase.NewPersister(store, gateway, cfg.PersistInterval, logger)

	subscriptions := usecase.NewSubscriptionUsecase(store, a.engine, reporter, catalog, cfg.PreviewOnActivate, logger)
	a.bot = telegram.NewBot(pollAPI, telegram.NewHandlers(subscriptions, logger), cfg.TelegramPollTimeout)
	if cfg.HTTPEnabled {
		a.http = httpapi.NewServer(cfg.HTTPAddr, subscriptions, a.ready.Load, logger)
	}

	return a, nil
}

// Run restores persisted subscribers, re-arms their schedules and then serves
// Telegram updates until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("cryptowatch service starting",
		zap.String("price_source", a.cfg.PriceSource),
		zap.String("store_driver", a.cfg.StoreDriver),
	)

	if a.http != nil {
		go func() {
			if err := a.http.Start(); err != nil {
				a.logger.Error("http server failed", zap.Error(err))
			}
		}()
	}

	if a.stream != nil {
		go a.stream.Run(ctx)
	}

	if _, err := a.persister.Restore(ctx); err != nil {
		return fmt.Errorf("restore subscribers: %w", err)
	}
	a.engine.Rearm()
	if err := a.persister.Start(ctx); err != nil {
		return fmt.Errorf("start periodic save: %w", err)
	}
	a.ready.Store(true)

	a.logger.Info("cryptowatch service started")
	return a.bot.Start(ctx)
}

func (a *App) Shutdown() {
	a.logger.Info("cryptowatch service shutting down")
	a.ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.http != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to stop http server", zap.Error(err))
		}
	}
	a.engine.StopAll()
	if err := a.persister.Stop(ctx); err != nil {
		a.logger.Warn("final save failed", zap.Error(err))
	}
	a.closeWith(ctx)
	_ = a.logger.Sync()
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.closeWith(ctx)
}

func (a *App) closeWith(ctx context.Context) {
	for _, c := range a.closers {
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("failed to close", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
