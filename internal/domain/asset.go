package domain

import "strings"

type Asset struct {
	ID     string
	Name   string
	Ticker string
}

// Pair is the USDT trading pair used by exchange streams.
func (a Asset) Pair() string {
	return a.Ticker + "USDT"
}

// Catalog is the fixed, ordered list of supported assets.
type Catalog struct {
	assets   []Asset
	byID     map[string]Asset
	defaults []string
}

func NewCatalog(assets []Asset, defaults []string) *Catalog {
	c := &Catalog{
		assets: append([]Asset(nil), assets...),
		byID:   make(map[string]Asset, len(assets)),
	}
	for _, asset := range assets {
		c.byID[asset.ID] = asset
	}
	for _, id := range defaults {
		if _, ok := c.byID[id]; ok {
			c.defaults = append(c.defaults, id)
		}
	}
	return c
}

func DefaultCatalog() *Catalog {
	return NewCatalog([]Asset{
		{ID: "bitcoin", Name: "Bitcoin", Ticker: "BTC"},
		{ID: "ethereum", Name: "Ethereum", Ticker: "ETH"},
		{ID: "solana", Name: "Solana", Ticker: "SOL"},
		{ID: "cardano", Name: "Cardano", Ticker: "ADA"},
		{ID: "dogecoin", Name: "Dogecoin", Ticker: "DOGE"},
		{ID: "polkadot", Name: "Polkadot", Ticker: "DOT"},
		{ID: "avalanche-2", Name: "Avalanche", Ticker: "AVAX"},
		{ID: "chainlink", Name: "Chainlink", Ticker: "LINK"},
		{ID: "litecoin", Name: "Litecoin", Ticker: "LTC"},
		{ID: "ripple", Name: "Ripple", Ticker: "XRP"},
		{ID: "binancecoin", Name: "Binance Coin", Ticker: "BNB"},
		{ID: "matic-network", Name: "Polygon", Ticker: "POL"},
		{ID: "cosmos", Name: "Cosmos", Ticker: "ATOM"},
		{ID: "uniswap", Name: "Uniswap", Ticker: "UNI"},
	}, []string{"bitcoin", "ethereum", "solana", "cardano", "dogecoin"})
}

func (c *Catalog) All() []Asset {
	return append([]Asset(nil), c.assets...)
}

func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.assets))
	for _, asset := range c.assets {
		ids = append(ids, asset.ID)
	}
	return ids
}

func (c *Catalog) DefaultIDs() []string {
	return append([]string(nil), c.defaults...)
}

func (c *Catalog) Lookup(id string) (Asset, bool) {
	asset, ok := c.byID[id]
	return asset, ok
}

// Name returns the display name, or the id itself for assets outside the catalog.
func (c *Catalog) Name(id string) string {
	if asset, ok := c.byID[id]; ok {
		return asset.Name
	}
	return id
}

// Resolve matches a user query against ids, display names and tickers.
func (c *Catalog) Resolve(query string) (Asset, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Asset{}, false
	}
	if asset, ok := c.byID[q]; ok {
		return asset, true
	}
	for _, asset := range c.assets {
		if strings.ToLower(asset.Name) == q || strings.ToLower(asset.Ticker) == q {
			return asset, true
		}
	}
	return Asset{}, false
}

// ByPair finds the asset quoted by an exchange pair such as BTCUSDT.
func (c *Catalog) ByPair(pair string) (Asset, bool) {
	p := strings.ToUpper(pair)
	for _, asset := range c.assets {
		if asset.Pair() == p {
			return asset, true
		}
	}
	return Asset{}, false
}
