package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"0.5", "$0.50"},
		{"1", "$1.00"},
		{"999.999", "$1,000.00"},
		{"43250.12", "$43,250.12"},
		{"1234567.891", "$1,234,567.89"},
		{"0.004", "$0.00"},
		{"-12.5", "-$12.50"},
	}
	for _, tt := range tests {
		if got := FormatPrice(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatPrice(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatChange(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		direction string
	}{
		{"2.345", "+2.35%", "up"},
		{"-1.2", "-1.20%", "down"},
		{"0", "+0.00%", "flat"},
		{"15", "+15.00%", "up"},
	}
	for _, tt := range tests {
		change := decimal.RequireFromString(tt.in)
		if got := FormatChange(change); got != tt.want {
			t.Errorf("FormatChange(%s) = %q, want %q", tt.in, got, tt.want)
		}
		if got := Direction(change); got != tt.direction {
			t.Errorf("Direction(%s) = %q, want %q", tt.in, got, tt.direction)
		}
	}
}

func TestFormatterFollowsWatchlistOrder(t *testing.T) {
	f := NewFormatter(domain.DefaultCatalog())
	snapshot := newStubPrices().quotes

	got := f.Format([]string{"solana", "dogecoin", "bitcoin"}, snapshot)
	want := "Solana: $101.00\n   24h: flat +0.00%\n\nBitcoin: $43,250.12\n   24h: up +2.35%"
	if got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}

	if got := f.Format([]string{"dogecoin"}, snapshot); got != "" {
		t.Fatalf("expected empty body for missing quotes, got %q", got)
	}
}

func TestFormatterProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	catalog := domain.DefaultCatalog()
	f := NewFormatter(catalog)
	ids := catalog.IDs()

	properties.Property("one block per quoted asset, in watchlist order", prop.ForAll(
		func(picks []int, quoted []bool) bool {
			var watchlist []string
			seen := make(map[string]bool)
			for _, p := range picks {
				id := ids[p%len(ids)]
				if !seen[id] {
					seen[id] = true
					watchlist = append(watchlist, id)
				}
			}
			snapshot := make(domain.Snapshot)
			var expected []string
			for i, id := range watchlist {
				if i < len(quoted) && quoted[i] {
					snapshot[id] = domain.Quote{Price: decimal.NewFromInt(int64(i + 1)), Change24h: decimal.Zero}
					expected = append(expected, catalog.Name(id))
				}
			}

			out := f.Format(watchlist, snapshot)
			if out != f.Format(watchlist, snapshot) {
				return false
			}
			if len(expected) == 0 {
				return out == ""
			}
			blocks := strings.Split(out, "\n\n")
			if len(blocks) != len(expected) {
				return false
			}
			for i, block := range blocks {
				if !strings.HasPrefix(block, expected[i]+": $") {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestReporterRendersHeaderAndFooter(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	r := NewReporter(newStubPrices(), NewFormatter(domain.DefaultCatalog()), clock, time.Second, "Use /help for commands")

	got, err := r.Report(context.Background(), ScheduledReportTitle, []string{"bitcoin"})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	want := "Crypto Price Update\n2024-03-10 09:05:00 UTC\n\nBitcoin: $43,250.12\n   24h: up +2.35%\n\nUse /help for commands"
	if got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}
}

func TestReporterNoData(t *testing.T) {
	r := NewReporter(newStubPrices(), NewFormatter(domain.DefaultCatalog()), clockwork.NewFakeClockAt(testStart), time.Second, "")

	got, err := r.Report(context.Background(), OnDemandReportTitle, []string{"dogecoin"})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.HasSuffix(got, "\n\n"+noPriceDataText) {
		t.Fatalf("expected no-data text, got %q", got)
	}
}

type plainErrPrices struct{}

func (plainErrPrices) Fetch(context.Context, []string) (domain.Snapshot, error) {
	return nil, errors.New("connection reset")
}

func TestReporterErrors(t *testing.T) {
	r := NewReporter(plainErrPrices{}, NewFormatter(nil), clockwork.NewFakeClockAt(testStart), 0, "")

	if _, err := r.Report(context.Background(), ScheduledReportTitle, nil); !errors.Is(err, domain.ErrEmptyWatchlist) {
		t.Fatalf("expected ErrEmptyWatchlist, got %v", err)
	}
	if _, err := r.Report(context.Background(), ScheduledReportTitle, []string{"bitcoin"}); !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected ErrFetch wrapping, got %v", err)
	}
}

func TestReporterAppliesTimeout(t *testing.T) {
	prices := newStubPrices()
	prices.gate("bitcoin")
	r := NewReporter(prices, NewFormatter(nil), clockwork.NewFakeClockAt(testStart), 20*time.Millisecond, "")

	start := time.Now()
	_, err := r.Report(context.Background(), ScheduledReportTitle, []string{"bitcoin"})
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected ErrFetch on timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout was not applied")
	}
}
