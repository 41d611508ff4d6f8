package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

const (
	ScheduledReportTitle = "Crypto Price Update"
	OnDemandReportTitle  = "Current Crypto Prices"
	noPriceDataText      = "No price data available for your assets."
)

// Formatter renders a snapshot for a watchlist. Output depends only on its
// inputs and the catalog it was built with.
type Formatter struct {
	catalog *domain.Catalog
}

func NewFormatter(catalog *domain.Catalog) *Formatter {
	return &Formatter{catalog: catalog}
}

func (f *Formatter) Format(watchlist []string, snapshot domain.Snapshot) string {
	blocks := make([]string, 0, len(watchlist))
	for _, id := range watchlist {
		quote, ok := snapshot[id]
		if !ok {
			continue
		}
		blocks = append(blocks, fmt.Sprintf(
			"%s: %s\n   24h: %s %s",
			f.name(id),
			FormatPrice(quote.Price),
			Direction(quote.Change24h),
			FormatChange(quote.Change24h),
		))
	}
	return strings.Join(blocks, "\n\n")
}

func (f *Formatter) name(id string) string {
	if f == nil || f.catalog == nil {
		return id
	}
	return f.catalog.Name(id)
}

// FormatPrice renders a USD amount with two decimals and thousands separators.
func FormatPrice(price decimal.Decimal) string {
	rounded := price.Abs().Round(2)
	_, frac, _ := strings.Cut(rounded.StringFixed(2), ".")
	whole := humanize.BigComma(rounded.Truncate(0).BigInt())

	sign := ""
	if price.IsNegative() && !rounded.IsZero() {
		sign = "-"
	}
	return sign + "$" + whole + "." + frac
}

// FormatChange renders a percentage with an explicit sign.
func FormatChange(change decimal.Decimal) string {
	sign := "+"
	if change.IsNegative() {
		sign = "-"
	}
	return sign + change.Abs().StringFixed(2) + "%"
}

func Direction(change decimal.Decimal) string {
	switch change.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

// Reporter fetches a snapshot and renders it under a timestamped header.
type Reporter struct {
	prices    domain.PriceSource
	formatter *Formatter
	clock     clockwork.Clock
	timeout   time.Duration
	footer    string
}

func NewReporter(prices domain.PriceSource, formatter *Formatter, clock clockwork.Clock, timeout time.Duration, footer string) *Reporter {
	return &Reporter{prices: prices, formatter: formatter, clock: clock, timeout: timeout, footer: footer}
}

func (r *Reporter) Report(ctx context.Context, title string, watchlist []string) (string, error) {
	if len(watchlist) == 0 {
		return "", domain.ErrEmptyWatchlist
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	snapshot, err := r.prices.Fetch(ctx, watchlist)
	if err != nil {
		if !errors.Is(err, domain.ErrFetch) {
			err = fmt.Errorf("%w: %v", domain.ErrFetch, err)
		}
		return "", err
	}

	body := r.formatter.Format(watchlist, snapshot)
	if body == "" {
		body = noPriceDataText
	}

	var builder strings.Builder
	builder.WriteString(title)
	builder.WriteString("\n")
	builder.WriteString(r.clock.Now().UTC().Format("2006-01-02 15:04:05"))
	builder.WriteString(" UTC\n\n")
	builder.WriteString(body)
	if r.footer != "" {
		builder.WriteString("\n\n")
		builder.WriteString(r.footer)
	}
	return builder.String(), nil
}
