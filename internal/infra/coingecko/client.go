package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Fetch implements domain.PriceSource against /simple/price. Every failure is
// reported as domain.ErrFetch.
func (c *Client) Fetch(ctx context.Context, assetIDs []string) (domain.Snapshot, error) {
	if len(assetIDs) == 0 {
		return nil, fmt.Errorf("%w: no assets requested", domain.ErrFetch)
	}

	query := url.Values{}
	query.Set("ids", strings.Join(assetIDs, ","))
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	endpoint := c.baseURL + "/simple/price?" + query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	c.logger.Debug("coingecko request start", zap.Strings("assets", assetIDs))
	response, err := c.client.Do(request)
	if err != nil {
		c.logger.Warn("coingecko request failed", zap.Strings("assets", assetIDs), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer response.Body.Close()

	c.logger.Debug(
		"coingecko request complete",
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: coingecko status %d", domain.ErrFetch, response.StatusCode)
	}

	var payload simplePriceResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode coingecko response: %v", domain.ErrFetch, err)
	}

	snapshot := make(domain.Snapshot, len(assetIDs))
	for _, id := range assetIDs {
		price, ok := payload[id]
		if !ok || !price.USD.Valid {
			continue
		}
		change := decimal.Zero
		if price.USD24hChange.Valid {
			change = price.USD24hChange.Decimal
		}
		snapshot[id] = domain.Quote{Price: price.USD.Decimal, Change24h: change}
	}
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("%w: coingecko returned no prices", domain.ErrFetch)
	}
	return snapshot, nil
}
