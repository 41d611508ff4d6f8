package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

type cachedQuote struct {
	quote      domain.Quote
	receivedAt time.Time
}

// Stream keeps the latest 24h ticker for every catalog asset from a single
// combined Binance stream and answers Fetch from that cache.
type Stream struct {
	url         string
	dialer      *websocket.Dialer
	catalog     *domain.Catalog
	staleAfter  time.Duration
	readTimeout time.Duration
	clock       clockwork.Clock
	logger      *zap.Logger

	mu     sync.RWMutex
	quotes map[string]cachedQuote
}

func NewStream(baseURL string, catalog *domain.Catalog, staleAfter time.Duration, clock clockwork.Clock, logger *zap.Logger) *Stream {
	return &Stream{
		url: streamURL(baseURL, catalog),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		catalog:     catalog,
		staleAfter:  staleAfter,
		readTimeout: time.Minute,
		clock:       clock,
		logger:      logger,
		quotes:      make(map[string]cachedQuote),
	}
}

func streamURL(baseURL string, catalog *domain.Catalog) string {
	streams := make([]string, 0, len(catalog.All()))
	for _, asset := range catalog.All() {
		streams = append(streams, strings.ToLower(asset.Pair())+"@ticker")
	}
	return strings.TrimRight(baseURL, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// Run keeps the stream connected until ctx is done, reconnecting with capped
// exponential backoff.
func (s *Stream) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			s.logger.Info("binance stream stopped")
			return
		}
		if connected {
			backoff = minBackoff
		}
		s.logger.Warn("binance stream disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Stream) session(ctx context.Context) (bool, error) {
	s.logger.Info("binance stream connect start", zap.String("url", s.url))
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	s.logger.Info("binance stream connect success")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		if s.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if err := s.apply(data); err != nil {
			s.logger.Debug("binance message ignored", zap.Error(err))
		}
	}
}

func (s *Stream) apply(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty message")
	}

	var message combinedMessage
	if err := json.Unmarshal(trimmed, &message); err != nil {
		return fmt.Errorf("decode ticker: %w", err)
	}
	if message.Data.EventType != "24hrTicker" {
		return fmt.Errorf("unexpected event %q", message.Data.EventType)
	}
	asset, ok := s.catalog.ByPair(message.Data.Symbol)
	if !ok {
		return fmt.Errorf("unknown symbol %q", message.Data.Symbol)
	}

	s.mu.Lock()
	s.quotes[asset.ID] = cachedQuote{
		quote:      domain.Quote{Price: message.Data.LastPrice, Change24h: message.Data.PriceChangePc},
		receivedAt: s.clock.Now(),
	}
	s.mu.Unlock()
	return nil
}

// Fetch answers from the cache. Quotes older than the staleness window are
// left out; if none of the requested assets is fresh the call fails.
func (s *Stream) Fetch(ctx context.Context, assetIDs []string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}

	now := s.clock.Now()
	snapshot := make(domain.Snapshot, len(assetIDs))

	s.mu.RLock()
	for _, id := range assetIDs {
		cached, ok := s.quotes[id]
		if !ok {
			continue
		}
		if s.staleAfter > 0 && now.Sub(cached.receivedAt) > s.staleAfter {
			continue
		}
		snapshot[id] = cached.quote
	}
	s.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil, fmt.Errorf("%w: no fresh binance quotes", domain.ErrFetch)
	}
	return snapshot, nil
}
