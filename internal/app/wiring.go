package app

import (
	"context"
	"fmt"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/config"
	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/NasaVasa/cryptowatch/internal/infra/binance"
	"github.com/NasaVasa/cryptowatch/internal/infra/coingecko"
	"github.com/NasaVasa/cryptowatch/internal/infra/db"
	"github.com/NasaVasa/cryptowatch/internal/infra/filestore"
	"github.com/NasaVasa/cryptowatch/internal/infra/mongostore"
	"github.com/NasaVasa/cryptowatch/internal/usecase"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const warmupPoll = 200 * time.Millisecond

// newPriceSource returns the configured source. The Binance stream is also
// returned so the caller can run it.
func newPriceSource(cfg config.Config, catalog *domain.Catalog, clock clockwork.Clock, logger *zap.Logger) (domain.PriceSource, *binance.Stream) {
	if cfg.PriceSource == config.PriceSourceBinance {
		stream := binance.NewStream(cfg.BinanceWSURL, catalog, cfg.BinanceStaleAfter, clock, logger)
		return stream, stream
	}
	return coingecko.NewClient(cfg.CoinGeckoBaseURL, cfg.CoinGeckoTimeout, logger), nil
}

func openGateway(ctx context.Context, cfg config.Config, logger *zap.Logger) (domain.SubscriberGateway, func(context.Context) error, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverFile:
		return filestore.NewOS(cfg.StoreFile), nil, nil
	case config.StoreDriverPostgres:
		conn, err := db.OpenPostgres(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return db.NewSubscriberRepository(conn), closeDB(conn), nil
	case config.StoreDriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return db.NewSubscriberRepository(conn), closeDB(conn), nil
	case config.StoreDriverMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func closeDB(conn *gorm.DB) func(context.Context) error {
	return func(context.Context) error {
		return db.Close(conn)
	}
}

// PriceReport renders a one-off on-demand report without starting the
// service. With the Binance source it waits for the stream to deliver quotes.
func PriceReport(ctx context.Context, cfg config.Config, queries []string, logger *zap.Logger) (string, error) {
	clock := clockwork.NewRealClock()
	catalog := domain.DefaultCatalog()

	ids := make([]string, 0, len(queries))
	for _, query := range queries {
		asset, ok := catalog.Resolve(query)
		if !ok {
			return "", fmt.Errorf("unknown asset %q", query)
		}
		ids = append(ids, asset.ID)
	}

	prices, stream := newPriceSource(cfg, catalog, clock, logger)
	if stream != nil {
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go stream.Run(streamCtx)
		prices = warmingSource{source: stream, timeout: cfg.CoinGeckoTimeout}
	}

	if len(ids) == 0 {
		ids = catalog.DefaultIDs()
	}
	reporter := usecase.NewReporter(prices, usecase.NewFormatter(catalog), clock, cfg.CoinGeckoTimeout, "")
	return reporter.Report(ctx, usecase.OnDemandReportTitle, ids)
}

// warmingSource retries a cache-backed source until it has quotes or the
// timeout passes.
type warmingSource struct {
	source  domain.PriceSource
	timeout time.Duration
}

func (w warmingSource) Fetch(ctx context.Context, ids []string) (domain.Snapshot, error) {
	deadline := time.Now().Add(w.timeout)
	for {
		snapshot, err := w.source.Fetch(ctx, ids)
		if err == nil || time.Now().After(deadline) {
			return snapshot, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrFetch, ctx.Err())
		case <-time.After(warmupPoll):
		}
	}
}
