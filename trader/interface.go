// Package trader holds the exchange adapters and the grid trading core:
// the ledger, the risk controller, and the engine that drives them.
package trader

import (
	"gridbot/market"
)

// Ticker is a spot market snapshot.
type Ticker struct {
	Symbol string
	Last   float64
	Bid    float64
	Ask    float64
	Vol24h float64
}

// Balance is the available spot balance for one currency.
type Balance struct {
	Currency  string
	Available float64
	Frozen    float64
}

// OrderResult is the immediate response to an order placement.
type OrderResult struct {
	OrderID   string
	ClientID  string
	Submitted bool
}

// OrderDetail is the post-placement fill report.
type OrderDetail struct {
	OrderID   string
	State     string // live, filled, partially_filled, canceled
	FillSize  float64
	AvgPrice  float64
	Fee       float64
	Estimated bool // true when derived from the request instead of the exchange
}

// Exchange is the spot trading surface the grid engine needs. OKX and
// Binance adapters implement it; tests use a fake.
type Exchange interface {
	// Name identifies the adapter in logs.
	Name() string

	// Ticker fetches the current market snapshot.
	Ticker(symbol string) (*Ticker, error)

	// Candles fetches recent OHLCV history, most recent last.
	Candles(symbol, bar string, limit int) ([]market.Candle, error)

	// Balance fetches the available balance for one currency.
	Balance(currency string) (*Balance, error)

	// MarketBuy places a market buy spending the given quote notional.
	MarketBuy(symbol string, notional float64) (*OrderResult, error)

	// MarketSell places a market sell of the given base size.
	MarketSell(symbol string, size float64) (*OrderResult, error)

	// OrderDetail fetches the fill state of a placed order.
	OrderDetail(symbol, orderID string) (*OrderDetail, error)
}
