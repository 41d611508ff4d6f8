package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrFetch covers every price source failure: transport, timeout, non-2xx
// status and malformed payloads.
var ErrFetch = errors.New("price fetch failed")

type Quote struct {
	Price     decimal.Decimal
	Change24h decimal.Decimal
}

// Snapshot maps asset id to its quote at one point in time.
type Snapshot map[string]Quote

type PriceSource interface {
	Fetch(ctx context.Context, assetIDs []string) (Snapshot, error)
}
