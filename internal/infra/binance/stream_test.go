package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var testStart = time.Date(2024, 3, 10, 9, 5, 0, 0, time.UTC)

func TestStreamURL(t *testing.T) {
	catalog := domain.NewCatalog([]domain.Asset{
		{ID: "bitcoin", Name: "Bitcoin", Ticker: "BTC"},
		{ID: "ethereum", Name: "Ethereum", Ticker: "ETH"},
	}, nil)
	got := streamURL("wss://stream.binance.com:9443/", catalog)
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker/ethusdt@ticker"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestApplyAndFetch(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	s := NewStream("ws://unused", domain.DefaultCatalog(), time.Minute, clock, zap.NewNop())

	if err := s.apply([]byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","s":"BTCUSDT","c":"43250.12","P":"-1.50"}}`)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, bad := range []string{``, `{`, `{"data":{"e":"trade","s":"BTCUSDT"}}`, `{"data":{"e":"24hrTicker","s":"FOOUSDT","c":"1","P":"0"}}`} {
		if err := s.apply([]byte(bad)); err == nil {
			t.Fatalf("expected %q to be ignored", bad)
		}
	}

	snapshot, err := s.Fetch(context.Background(), []string{"bitcoin", "ethereum"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snapshot) != 1 || snapshot["bitcoin"].Price.String() != "43250.12" || snapshot["bitcoin"].Change24h.String() != "-1.5" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	clock.Advance(2 * time.Minute)
	if _, err := s.Fetch(context.Background(), []string{"bitcoin"}); !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected stale quotes to fail with ErrFetch, got %v", err)
	}
}

func TestRunReadsFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "ethusdt@ticker") {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"ethusdt@ticker","data":{"e":"24hrTicker","s":"ETHUSDT","c":"2280.50","P":"0.75"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	s := NewStream("ws"+strings.TrimPrefix(server.URL, "http"), domain.DefaultCatalog(), time.Minute, clockwork.NewRealClock(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snapshot, err := s.Fetch(context.Background(), []string{"ethereum"})
		if err == nil {
			if got := snapshot["ethereum"].Price.String(); got != "2280.5" {
				t.Fatalf("unexpected price %s", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no quote received from stream")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
