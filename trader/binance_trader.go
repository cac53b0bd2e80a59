package trader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"gridbot/logger"
	"gridbot/market"
)

// BinanceTrader is the Binance spot adapter built on go-binance.
type BinanceTrader struct {
	client      *binance.Client
	analyzeOnly bool
}

// NewBinanceTrader creates the Binance spot adapter.
func NewBinanceTrader(apiKey, secretKey string, testnet, analyzeOnly bool) *BinanceTrader {
	binance.UseTestnet = testnet
	return &BinanceTrader{
		client:      binance.NewClient(apiKey, secretKey),
		analyzeOnly: analyzeOnly,
	}
}

func (t *BinanceTrader) Name() string { return "binance" }

// binanceSymbol converts the dash form to Binance's concatenated form,
// ETH-USDT -> ETHUSDT.
func binanceSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "-", "")
}

// binanceInterval converts an OKX-style bar to a Binance interval,
// 1H -> 1h, 15m stays 15m.
func binanceInterval(bar string) string {
	return strings.ToLower(bar)
}

func (t *BinanceTrader) Ticker(symbol string) (*Ticker, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := t.client.NewListPriceChangeStatsService().
		Symbol(binanceSymbol(symbol)).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker: %w", err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("ticker response empty for %s", symbol)
	}

	s := stats[0]
	result := &Ticker{Symbol: symbol}
	result.Last, _ = strconv.ParseFloat(s.LastPrice, 64)
	result.Bid, _ = strconv.ParseFloat(s.BidPrice, 64)
	result.Ask, _ = strconv.ParseFloat(s.AskPrice, 64)
	result.Vol24h, _ = strconv.ParseFloat(s.Volume, 64)
	if result.Last <= 0 {
		return nil, fmt.Errorf("invalid ticker price for %s", symbol)
	}
	return result, nil
}

func (t *BinanceTrader) Candles(symbol, bar string, limit int) ([]market.Candle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	klines, err := t.client.NewKlinesService().
		Symbol(binanceSymbol(symbol)).
		Interval(binanceInterval(bar)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles: %w", err)
	}

	candles := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		c := market.Candle{Time: time.UnixMilli(k.OpenTime)}
		c.Open, _ = strconv.ParseFloat(k.Open, 64)
		c.High, _ = strconv.ParseFloat(k.High, 64)
		c.Low, _ = strconv.ParseFloat(k.Low, 64)
		c.Close, _ = strconv.ParseFloat(k.Close, 64)
		c.Volume, _ = strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, c)
	}
	return candles, nil
}

func (t *BinanceTrader) Balance(currency string) (*Balance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}

	result := &Balance{Currency: currency}
	for _, b := range account.Balances {
		if b.Asset == currency {
			result.Available, _ = strconv.ParseFloat(b.Free, 64)
			result.Frozen, _ = strconv.ParseFloat(b.Locked, 64)
			break
		}
	}
	return result, nil
}

func (t *BinanceTrader) MarketBuy(symbol string, notional float64) (*OrderResult, error) {
	if t.analyzeOnly {
		logger.Infof("🔍 analyze-only mode, skipping buy %s %.2f", symbol, notional)
		return nil, fmt.Errorf("trading disabled in analyze-only mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := t.client.NewCreateOrderService().
		Symbol(binanceSymbol(symbol)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(strconv.FormatFloat(notional, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("market buy failed: %w", err)
	}

	logger.Infof("✅ market buy submitted: %s orderId=%d", symbol, order.OrderID)
	return &OrderResult{
		OrderID:   strconv.FormatInt(order.OrderID, 10),
		ClientID:  order.ClientOrderID,
		Submitted: true,
	}, nil
}

func (t *BinanceTrader) MarketSell(symbol string, size float64) (*OrderResult, error) {
	if t.analyzeOnly {
		logger.Infof("🔍 analyze-only mode, skipping sell %s %.6f", symbol, size)
		return nil, fmt.Errorf("trading disabled in analyze-only mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := t.client.NewCreateOrderService().
		Symbol(binanceSymbol(symbol)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(size, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("market sell failed: %w", err)
	}

	logger.Infof("✅ market sell submitted: %s orderId=%d", symbol, order.OrderID)
	return &OrderResult{
		OrderID:   strconv.FormatInt(order.OrderID, 10),
		ClientID:  order.ClientOrderID,
		Submitted: true,
	}, nil
}

func (t *BinanceTrader) OrderDetail(symbol, orderID string) (*OrderDetail, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}

	order, err := t.client.NewGetOrderService().
		Symbol(binanceSymbol(symbol)).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order detail: %w", err)
	}

	detail := &OrderDetail{OrderID: orderID}
	detail.FillSize, _ = strconv.ParseFloat(order.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	if detail.FillSize > 0 {
		detail.AvgPrice = quote / detail.FillSize
	}

	switch order.Status {
	case binance.OrderStatusTypeFilled:
		detail.State = "filled"
	case binance.OrderStatusTypePartiallyFilled:
		detail.State = "partially_filled"
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired:
		detail.State = "canceled"
	default:
		detail.State = "live"
	}
	return detail, nil
}
