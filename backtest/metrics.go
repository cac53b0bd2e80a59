package backtest

import "math"

// maxDrawdown is the worst peak-to-trough equity decline in percent.
func maxDrawdown(points []EquityPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	peak := points[0].Equity
	if peak <= 0 {
		peak = 1
	}
	maxDD := 0.0
	for _, pt := range points {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - pt.Equity) / peak * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpeRatio annualizes mean/stdev of per-tick equity returns using a
// sqrt(252) factor and a zero risk-free rate. Short or flat curves score 0.
func sharpeRatio(points []EquityPoint) float64 {
	const minDataPoints = 10
	if len(points) < minDataPoints {
		return 0
	}

	returns := make([]float64, 0, len(points)-1)
	prev := points[0].Equity
	for i := 1; i < len(points); i++ {
		curr := points[i].Equity
		if prev <= 0 {
			prev = curr
			continue
		}
		returns = append(returns, (curr-prev)/prev)
		prev = curr
	}
	if len(returns) < minDataPoints-1 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	std := math.Sqrt(variance)
	if std < 1e-10 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// fillTradeStats aggregates the per-round-trip net profits.
func fillTradeStats(r *Result, roundTrips []float64) {
	totalWin, totalLoss := 0.0, 0.0
	for _, pnl := range roundTrips {
		r.Trades++
		if pnl > 0 {
			r.Wins++
			totalWin += pnl
		} else if pnl < 0 {
			r.Losses++
			totalLoss += -pnl
		}
	}

	if r.Trades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.Trades) * 100
	}
	if r.Wins > 0 {
		r.AvgWin = totalWin / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = -(totalLoss / float64(r.Losses))
	}
	if totalLoss > 0 {
		r.ProfitFactor = totalWin / totalLoss
	} else if totalWin > 0 {
		// All wins; cap instead of reporting infinity.
		r.ProfitFactor = 100
	}
}
