// Package backtest replays historical candles through a grid ledger to
// estimate how a configuration would have performed. Fills are assumed at
// the candle close with the configured fee, no slippage model.
package backtest

import (
	"fmt"
	"time"

	"gridbot/market"
	"gridbot/trader"
)

// Config describes one backtest run.
type Config struct {
	Grid           trader.GridConfig
	InitialBalance float64 // quote currency
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Equity float64   `json:"equity"`
}

// Result is the outcome of a replay.
type Result struct {
	InitialBalance float64       `json:"initial_balance"`
	FinalEquity    float64       `json:"final_equity"`
	TotalReturnPct float64       `json:"total_return_pct"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	Trades         int           `json:"trades"`
	Wins           int           `json:"wins"`
	Losses         int           `json:"losses"`
	WinRate        float64       `json:"win_rate"`
	AvgWin         float64       `json:"avg_win"`
	AvgLoss        float64       `json:"avg_loss"`
	ProfitFactor   float64       `json:"profit_factor"`
	TotalProfit    float64       `json:"total_profit"`
	Halted         bool          `json:"halted"`
	SkippedBuys    int           `json:"skipped_buys"` // signals dropped for lack of cash
	EquityCurve    []EquityPoint `json:"equity_curve"`
}

// Run replays the candles through a fresh grid ledger. Each close is one
// tick; buys spend cash plus fee, sells return proceeds minus fee.
func Run(cfg Config, candles []market.Candle) (*Result, error) {
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive, got %.2f", cfg.InitialBalance)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles to replay")
	}

	ledger, err := trader.NewGridLedger(cfg.Grid)
	if err != nil {
		return nil, err
	}

	cash := cfg.InitialBalance
	fee := cfg.Grid.FeeRate
	result := &Result{InitialBalance: cfg.InitialBalance}
	var roundTrips []float64

	for _, c := range candles {
		price := c.Close
		signal := ledger.Evaluate(price)

		switch signal.Action {
		case trader.ActionBuy:
			cost := signal.Notional * (1 + fee)
			if cost > cash {
				result.SkippedBuys++
				break
			}
			size := signal.Notional / price
			if err := ledger.ApplyBuy(signal.Level, price, size, ""); err != nil {
				return nil, err
			}
			cash -= cost

		case trader.ActionSell:
			net, err := ledger.ApplySell(signal.Level, price)
			if err != nil {
				return nil, err
			}
			cash += signal.Size * price * (1 - fee)
			roundTrips = append(roundTrips, net)

		case trader.ActionStopLoss:
			if signal.Size > 0 {
				cash += signal.Size * price * (1 - fee)
				ledger.ClearPositions()
			}
		}

		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Time:   c.Time,
			Price:  price,
			Equity: cash + ledger.HeldSize()*price,
		})
	}

	result.Halted, _ = ledger.Halted()
	result.TotalProfit = ledger.TotalProfit()
	result.FinalEquity = result.EquityCurve[len(result.EquityCurve)-1].Equity
	result.TotalReturnPct = (result.FinalEquity - cfg.InitialBalance) / cfg.InitialBalance * 100
	result.MaxDrawdownPct = maxDrawdown(result.EquityCurve)
	result.SharpeRatio = sharpeRatio(result.EquityCurve)
	fillTradeStats(result, roundTrips)
	return result, nil
}
