package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testStart = time.Date(2024, 3, 10, 9, 5, 0, 0, time.UTC)

type stubPrices struct {
	mu       sync.Mutex
	quotes   domain.Snapshot
	failures int
	calls    [][]string
	gates    map[string]chan struct{}
}

func newStubPrices() *stubPrices {
	return &stubPrices{
		quotes: domain.Snapshot{
			"bitcoin":  {Price: decimal.RequireFromString("43250.12"), Change24h: decimal.RequireFromString("2.35")},
			"ethereum": {Price: decimal.RequireFromString("2280.5"), Change24h: decimal.RequireFromString("-1.2")},
			"solana":   {Price: decimal.RequireFromString("101"), Change24h: decimal.Zero},
		},
		gates: make(map[string]chan struct{}),
	}
}

// gate makes fetches that include assetID block until the returned channel is closed.
func (s *stubPrices) gate(assetID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[assetID] = ch
	s.quotes[assetID] = domain.Quote{Price: decimal.NewFromInt(1), Change24h: decimal.Zero}
	return ch
}

func (s *stubPrices) failNext(n int) {
	s.mu.Lock()
	s.failures = n
	s.mu.Unlock()
}

func (s *stubPrices) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubPrices) Fetch(ctx context.Context, assetIDs []string) (domain.Snapshot, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), assetIDs...))
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: status 503", domain.ErrFetch)
	}
	var gates []chan struct{}
	for _, id := range assetIDs {
		if ch, ok := s.gates[id]; ok {
			gates = append(gates, ch)
		}
	}
	out := make(domain.Snapshot, len(assetIDs))
	for _, id := range assetIDs {
		if quote, ok := s.quotes[id]; ok {
			out[id] = quote
		}
	}
	s.mu.Unlock()

	for _, ch := range gates {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrFetch, ctx.Err())
		}
	}
	return out, nil
}

type sent struct {
	id   int64
	text string
}

type recordingNotifier struct {
	ch chan sent

	mu  sync.Mutex
	err error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan sent, 32)}
}

func (n *recordingNotifier) setErr(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *recordingNotifier) Notify(subscriberID int64, text string) error {
	n.ch <- sent{id: subscriberID, text: text}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

func (n *recordingNotifier) wait(t *testing.T) sent {
	t.Helper()
	select {
	case msg := <-n.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a notification")
		return sent{}
	}
}

func (n *recordingNotifier) expectNone(t *testing.T) {
	t.Helper()
	select {
	case msg := <-n.ch:
		t.Fatalf("unexpected notification for %d: %q", msg.id, msg.text)
	case <-time.After(100 * time.Millisecond):
	}
}

type engineFixture struct {
	clock    *clockwork.FakeClock
	store    *SubscriberStore
	prices   *stubPrices
	notifier *recordingNotifier
	reporter *Reporter
	engine   *ScheduleEngine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStart)
	store := NewSubscriberStore(clock)
	prices := newStubPrices()
	notifier := newRecordingNotifier()
	reporter := NewReporter(prices, NewFormatter(domain.DefaultCatalog()), clock, time.Second, "")
	engine := NewScheduleEngine(store, reporter, notifier, clock, 2*time.Second, zap.NewNop())
	t.Cleanup(engine.StopAll)
	return &engineFixture{clock: clock, store: store, prices: prices, notifier: notifier, reporter: reporter, engine: engine}
}

// waitForTimers blocks until exactly n runner timers are armed on the fake clock.
func (f *engineFixture) waitForTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("timed out waiting for %d armed timers: %v", n, err)
	}
}

func (f *engineFixture) waitForFetches(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.prices.callCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d fetches, got %d", n, f.prices.callCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func reportLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, ": $") {
			lines = append(lines, line)
		}
	}
	return lines
}
