package binance

import "github.com/shopspring/decimal"

// combinedMessage is the envelope of a /stream?streams=... connection.
type combinedMessage struct {
	Stream string      `json:"stream"`
	Data   tickerEvent `json:"data"`
}

type tickerEvent struct {
	EventType     string          `json:"e"`
	Symbol        string          `json:"s"`
	LastPrice     decimal.Decimal `json:"c"`
	PriceChangePc decimal.Decimal `json:"P"`
}
