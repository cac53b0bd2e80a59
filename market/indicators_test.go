package market

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func candlesFromCloses(closes []float64) []Candle {
	out := make([]Candle, len(closes))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = Candle{
			Time:   base.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 100,
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	result := SMA(prices, 3)

	if result[0] != nil || result[1] != nil {
		t.Fatal("expected nil before the first full window")
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		got := result[i+2]
		if got == nil || !almostEqual(*got, w, 1e-9) {
			t.Errorf("SMA[%d] = %v, want %.1f", i+2, got, w)
		}
	}
}

func TestSMAInvalidPeriod(t *testing.T) {
	result := SMA([]float64{1, 2, 3}, 0)
	for i, v := range result {
		if v != nil {
			t.Errorf("SMA[%d] = %v, want nil for zero period", i, *v)
		}
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	prices := []float64{2, 4, 6, 8, 10}
	result := EMA(prices, 3)

	if result[1] != nil {
		t.Fatal("expected nil before the seed index")
	}
	// Seed is SMA(3) of the first three prices.
	if result[2] == nil || !almostEqual(*result[2], 4, 1e-9) {
		t.Fatalf("EMA seed = %v, want 4", result[2])
	}
	// Next value: (8-4)*0.5 + 4 = 6, then (10-6)*0.5 + 6 = 8.
	if !almostEqual(*result[3], 6, 1e-9) {
		t.Errorf("EMA[3] = %.4f, want 6", *result[3])
	}
	if !almostEqual(*result[4], 8, 1e-9) {
		t.Errorf("EMA[4] = %.4f, want 8", *result[4])
	}
}

func TestRSIMonotone(t *testing.T) {
	up := make([]float64, 15)
	down := make([]float64, 15)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}

	rsiUp := RSI(up, 14)
	if got := rsiUp[14]; got == nil || !almostEqual(*got, 100, 1e-9) {
		t.Errorf("RSI of all gains = %v, want 100", got)
	}

	rsiDown := RSI(down, 14)
	if got := rsiDown[14]; got == nil || !almostEqual(*got, 0, 1e-9) {
		t.Errorf("RSI of all losses = %v, want 0", got)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	result := RSI([]float64{1, 2, 3}, 14)
	for i, v := range result {
		if v != nil {
			t.Errorf("RSI[%d] = %v, want nil with too little data", i, *v)
		}
	}
}

func TestMACDAlignment(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	result := MACD(prices, 12, 26, 9)
	if len(result.MACD) != 60 || len(result.Signal) != 60 || len(result.Histogram) != 60 {
		t.Fatal("MACD series not aligned to input length")
	}
	if result.MACD[20] != nil {
		t.Error("MACD should be nil before the slow EMA warms up")
	}

	last := len(prices) - 1
	if result.MACD[last] == nil || result.Signal[last] == nil || result.Histogram[last] == nil {
		t.Fatal("MACD should be fully defined at the last bar")
	}
	if !almostEqual(*result.Histogram[last], *result.MACD[last]-*result.Signal[last], 1e-9) {
		t.Error("histogram must equal macd minus signal")
	}
	// A steady uptrend keeps the fast EMA above the slow one.
	if *result.MACD[last] <= 0 {
		t.Errorf("MACD = %.4f, want positive in an uptrend", *result.MACD[last])
	}
}

func TestBollingerConstantPrices(t *testing.T) {
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = 100
	}

	bb := Bollinger(prices, 20, 2)
	last := len(prices) - 1
	if bb.Upper[last] == nil || bb.Lower[last] == nil {
		t.Fatal("bands should be defined after the warmup")
	}
	// Zero deviation collapses the bands onto the middle.
	if !almostEqual(*bb.Upper[last], 100, 1e-9) || !almostEqual(*bb.Lower[last], 100, 1e-9) {
		t.Errorf("bands = [%.4f, %.4f], want both 100", *bb.Lower[last], *bb.Upper[last])
	}
}

func TestBollingerBandOrdering(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + math.Sin(float64(i))*5
	}

	bb := Bollinger(prices, 20, 2)
	last := len(prices) - 1
	if !(*bb.Upper[last] > *bb.Middle[last] && *bb.Middle[last] > *bb.Lower[last]) {
		t.Errorf("expected upper > middle > lower, got %.4f / %.4f / %.4f",
			*bb.Upper[last], *bb.Middle[last], *bb.Lower[last])
	}
}

func TestATRConstantRange(t *testing.T) {
	candles := make([]Candle, 30)
	for i := range candles {
		candles[i] = Candle{High: 101, Low: 99, Close: 100}
	}

	atr := ATR(candles, 14)
	last := atr[len(atr)-1]
	if last == nil || !almostEqual(*last, 2, 1e-9) {
		t.Errorf("ATR = %v, want 2 for a constant 2-point range", last)
	}
	if atr[13] != nil {
		t.Error("ATR should be nil before the warmup completes")
	}
}

func TestATRUsesGaps(t *testing.T) {
	candles := make([]Candle, 16)
	for i := range candles {
		candles[i] = Candle{High: 101, Low: 99, Close: 100}
	}
	// A gap down makes |low - prevClose| the dominant true range term.
	candles[15] = Candle{High: 91, Low: 89, Close: 90}

	atr := ATR(candles, 14)
	plain := ATR(candles[:15], 14)
	if *atr[15] <= *plain[14] {
		t.Errorf("gap bar should raise ATR: %.4f vs %.4f", *atr[15], *plain[14])
	}
}

func TestSupportResistance(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	candles := candlesFromCloses(closes)
	// One clear local peak and one clear local trough.
	candles[10].High = 120
	candles[20].Low = 80

	support, resistance := SupportResistance(candles, 30)
	if len(resistance) == 0 || resistance[0] != 120 {
		t.Errorf("resistance = %v, want [120]", resistance)
	}
	if len(support) == 0 || support[0] != 80 {
		t.Errorf("support = %v, want [80]", support)
	}
}

func TestSupportResistanceFallback(t *testing.T) {
	// Monotone prices have no local extrema; expect the global min/max.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := candlesFromCloses(closes)

	support, resistance := SupportResistance(candles, 30)
	if len(support) != 1 || support[0] != 100 {
		t.Errorf("support = %v, want global low [100]", support)
	}
	if len(resistance) != 1 || resistance[0] != 129 {
		t.Errorf("resistance = %v, want global high [129]", resistance)
	}
}
