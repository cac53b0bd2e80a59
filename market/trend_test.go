package market

import (
	"math"
	"testing"
)

func risingCloses(n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)*step
	}
	return out
}

func fallingCloses(n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 300 - float64(i)*step
	}
	return out
}

func oscillatingCloses(n int, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + amplitude*math.Sin(float64(i)*0.5)
	}
	return out
}

func alternatingCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 99.5
		} else {
			out[i] = 100.5
		}
	}
	return out
}

func TestAnalyzeMAStrongUp(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())
	result := a.AnalyzeMA(risingCloses(60, 2))

	if !result.Valid {
		t.Fatal("expected a valid MA analysis")
	}
	if result.Trend != TrendStrongUp {
		t.Errorf("trend = %s, want strong_up", result.Trend)
	}
	if result.PriceVsMA20 <= 5 {
		t.Errorf("price vs MA20 = %.2f%%, want above 5%%", result.PriceVsMA20)
	}
}

func TestAnalyzeMAStrongDown(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())
	result := a.AnalyzeMA(fallingCloses(60, 2))

	if result.Trend != TrendStrongDown {
		t.Errorf("trend = %s, want strong_down", result.Trend)
	}
}

func TestAnalyzeMASideways(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())

	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 100
	}
	result := a.AnalyzeMA(flat)
	if result.Trend != TrendSideways {
		t.Errorf("trend = %s, want sideways for flat prices", result.Trend)
	}
}

func TestAnalyzeMAInsufficientData(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())
	result := a.AnalyzeMA(risingCloses(30, 1))
	if result.Valid {
		t.Error("expected invalid result below 50 closes")
	}
	if result.Trend != TrendSideways {
		t.Errorf("trend = %s, want sideways fallback", result.Trend)
	}
}

func TestAnalyzeMACDUptrend(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())
	result := a.AnalyzeMACD(risingCloses(60, 2))

	if !result.Valid {
		t.Fatal("expected a valid MACD analysis")
	}
	if result.MACD <= 0 {
		t.Errorf("MACD = %.4f, want positive in an uptrend", result.MACD)
	}
	if result.Trend != TrendUp && result.Trend != TrendStrongUp {
		t.Errorf("trend = %s, want up or strong_up", result.Trend)
	}
}

func TestAnalyzeMACDDowntrend(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())
	result := a.AnalyzeMACD(fallingCloses(60, 2))

	if result.Trend != TrendDown && result.Trend != TrendStrongDown {
		t.Errorf("trend = %s, want down or strong_down", result.Trend)
	}
}

func TestAnalyzeRSIBands(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())

	up := a.AnalyzeRSI(risingCloses(30, 1))
	if up.Signal != RSIStrongSell {
		t.Errorf("all-gains RSI signal = %s, want strong_sell", up.Signal)
	}
	if !almostEqual(up.RSI, 100, 1e-9) {
		t.Errorf("all-gains RSI = %.2f, want 100", up.RSI)
	}

	down := a.AnalyzeRSI(fallingCloses(30, 1))
	if down.Signal != RSIStrongBuy {
		t.Errorf("all-losses RSI signal = %s, want strong_buy", down.Signal)
	}
}

func TestAnalyzeBollingerPosition(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())

	// A breakout close sits at the top of the channel.
	closes := oscillatingCloses(30, 2)
	closes[len(closes)-1] = 110
	result := a.AnalyzeBollinger(closes)
	if !result.Valid {
		t.Fatal("expected a valid Bollinger analysis")
	}
	if result.Signal != BBOverbought {
		t.Errorf("signal = %s, want overbought at a breakout close", result.Signal)
	}

	closes[len(closes)-1] = 90
	result = a.AnalyzeBollinger(closes)
	if result.Signal != BBOversold {
		t.Errorf("signal = %s, want oversold at a breakdown close", result.Signal)
	}
}

func TestClassifyInsufficientData(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())
	result := a.Classify(candlesFromCloses(risingCloses(20, 1)))

	if result.Trend != TrendSideways {
		t.Errorf("trend = %s, want sideways with too little data", result.Trend)
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %.2f, want 0", result.Confidence)
	}
}

func TestClassifyStrongUptrend(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())
	result := a.Classify(candlesFromCloses(risingCloses(80, 2)))

	if result.Trend != TrendStrongUp {
		t.Errorf("trend = %s, want strong_up", result.Trend)
	}
	if result.Confidence <= 0 {
		t.Error("expected positive confidence")
	}
}

func TestClassifySidewaysMarket(t *testing.T) {
	a := NewTrendAnalyzer(DefaultTrendWeights())
	result := a.Classify(candlesFromCloses(alternatingCloses(80)))

	// The MA vote dominates; a tight alternation never orders the MAs.
	if result.Trend != TrendSideways {
		t.Errorf("trend = %s, want sideways", result.Trend)
	}
}

func TestClassifyWeightIsolation(t *testing.T) {
	// With only the MA weight active, the verdict follows the MA ordering.
	a := NewTrendAnalyzer(TrendWeights{MA: 100})
	result := a.Classify(candlesFromCloses(risingCloses(80, 2)))

	if result.Trend != result.MA.Trend {
		t.Errorf("trend = %s, want the MA verdict %s", result.Trend, result.MA.Trend)
	}
	if !almostEqual(result.Confidence, 100, 1e-9) {
		t.Errorf("confidence = %.2f, want 100", result.Confidence)
	}
}
