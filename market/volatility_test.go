package market

import (
	"testing"
)

func rangedCandles(n int, price, halfRange float64) []Candle {
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{
			Open:  price,
			High:  price + halfRange,
			Low:   price - halfRange,
			Close: price,
		}
	}
	return out
}

func TestLevelFor(t *testing.T) {
	a := NewVolatilityAnalyzer()
	tests := []struct {
		vol  float64
		want VolatilityLevel
	}{
		{10, VolVeryLow},
		{19.9, VolVeryLow},
		{20, VolLow},
		{39.9, VolLow},
		{40, VolNormal},
		{79.9, VolNormal},
		{80, VolHigh},
		{119.9, VolHigh},
		{120, VolExtreme},
		{300, VolExtreme},
	}
	for _, tt := range tests {
		if got := a.LevelFor(tt.vol); got != tt.want {
			t.Errorf("LevelFor(%.1f) = %s, want %s", tt.vol, got, tt.want)
		}
	}
}

func TestHistoricalVolatilityConstantPrices(t *testing.T) {
	a := NewVolatilityAnalyzer()

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	v := a.HistoricalVolatility(flat, 20)
	if v == nil {
		t.Fatal("expected a value with enough data")
	}
	if !almostEqual(*v, 0, 1e-9) {
		t.Errorf("volatility = %.4f, want 0 for constant prices", *v)
	}
}

func TestHistoricalVolatilityInsufficientData(t *testing.T) {
	a := NewVolatilityAnalyzer()
	if v := a.HistoricalVolatility([]float64{100, 101}, 20); v != nil {
		t.Errorf("volatility = %.4f, want nil with too little data", *v)
	}
}

func TestATRPercent(t *testing.T) {
	a := NewVolatilityAnalyzer()
	candles := rangedCandles(30, 100, 1)

	v := a.ATRPercent(candles, 14)
	if v == nil {
		t.Fatal("expected a value")
	}
	// A constant 2-point range at price 100 is exactly 2%.
	if !almostEqual(*v, 2, 1e-9) {
		t.Errorf("ATR%% = %.4f, want 2", *v)
	}
}

func TestRangePercent(t *testing.T) {
	a := NewVolatilityAnalyzer()
	candles := rangedCandles(25, 100, 1)
	candles[15].High = 110
	candles[18].Low = 90

	stats := a.RangePercent(candles, 20)
	if !stats.Valid {
		t.Fatal("expected valid range stats")
	}
	if stats.Highest != 110 || stats.Lowest != 90 {
		t.Errorf("range = [%.1f, %.1f], want [90, 110]", stats.Lowest, stats.Highest)
	}
	if !almostEqual(stats.Range, 20, 1e-9) {
		t.Errorf("range width = %.2f, want 20", stats.Range)
	}
	// Close 100 sits exactly mid-range.
	if !almostEqual(stats.CurrentPosition, 50, 1e-9) {
		t.Errorf("position = %.2f, want 50", stats.CurrentPosition)
	}
}

func TestDetectSpikeCalm(t *testing.T) {
	a := NewVolatilityAnalyzer()
	result := a.DetectSpike(rangedCandles(60, 100, 1))

	if result.Detected {
		t.Errorf("spike detected on a flat market, ratio %.2f", result.Ratio)
	}
	if !almostEqual(result.Ratio, 1, 1e-6) {
		t.Errorf("ratio = %.4f, want 1 with constant ATR", result.Ratio)
	}
}

func TestDetectSpikeExpansion(t *testing.T) {
	a := NewVolatilityAnalyzer()

	candles := rangedCandles(60, 100, 1)
	// The last ten bars expand to a 30-point range.
	for i := 50; i < 60; i++ {
		candles[i].High = 115
		candles[i].Low = 85
	}

	result := a.DetectSpike(candles)
	if !result.Detected {
		t.Errorf("spike not detected, ratio %.2f", result.Ratio)
	}
	if result.CurrentATR <= result.HistoricalATR {
		t.Error("current ATR should exceed the historical mean")
	}
}

func TestSuggestSpacing(t *testing.T) {
	a := NewVolatilityAnalyzer()
	candles := rangedCandles(40, 100, 1)
	candles[25].High = 108
	candles[30].Low = 92

	s := a.SuggestSpacing(candles)
	if !s.Valid {
		t.Fatal("expected a valid suggestion")
	}
	if s.Min >= s.Max {
		t.Errorf("spacing bounds inverted: %.4f >= %.4f", s.Min, s.Max)
	}
	if s.GridsMin < 3 || s.GridsMax > 30 {
		t.Errorf("grid counts [%d, %d] outside [3, 30]", s.GridsMin, s.GridsMax)
	}
	if s.GridsMin > s.GridsMax {
		t.Errorf("grid count bounds inverted: %d > %d", s.GridsMin, s.GridsMax)
	}
}

func TestAssessInsufficientData(t *testing.T) {
	a := NewVolatilityAnalyzer()
	result := a.Assess(rangedCandles(10, 100, 1))

	if result.Valid {
		t.Error("expected invalid result below 30 candles")
	}
	if result.Score != 50 || !result.GridSuitable {
		t.Errorf("score = %d, suitable = %v, want neutral defaults", result.Score, result.GridSuitable)
	}
}

func TestAssessCalmMarket(t *testing.T) {
	a := NewVolatilityAnalyzer()
	// A 1-point range at price 100 keeps ATR% at 1, below the calm band.
	result := a.Assess(rangedCandles(60, 100, 0.5))

	if !result.Valid {
		t.Fatal("expected a valid assessment")
	}
	if result.Score >= 50 {
		t.Errorf("score = %d, want below 50 for a calm market", result.Score)
	}
	if !result.GridSuitable {
		t.Error("a calm market should be grid suitable")
	}
	if result.Spike.Detected {
		t.Error("no spike expected on a flat market")
	}
}

func TestAssessSpikingMarket(t *testing.T) {
	a := NewVolatilityAnalyzer()
	candles := rangedCandles(60, 100, 1)
	for i := 50; i < 60; i++ {
		candles[i].High = 115
		candles[i].Low = 85
	}

	result := a.Assess(candles)
	if !result.Spike.Detected {
		t.Fatal("expected a detected spike")
	}
	if result.Score <= 50 {
		t.Errorf("score = %d, want above 50 with a spike", result.Score)
	}
}
