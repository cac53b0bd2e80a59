package decision

import (
	"math"
	"testing"
)

func TestDecideModes(t *testing.T) {
	m := NewPositionManager(500, 0.1, 0.8)

	tests := []struct {
		name     string
		envScore int
		mode     PositionMode
		envMult  float64
	}{
		{"excellent", 80, ModeAggressive, 1.2},
		{"good", 65, ModeNormal, 1.0},
		{"neutral", 50, ModeConservative, 0.7},
		{"caution", 35, ModeDefensive, 0.4},
		{"danger", 20, ModeStopped, 0},
	}

	for _, tt := range tests {
		d := m.Decide(50, tt.envScore, 0)
		if d.Mode != tt.mode {
			t.Errorf("%s: mode = %s, want %s", tt.name, d.Mode, tt.mode)
		}
		if d.EnvMultiplier != tt.envMult {
			t.Errorf("%s: env multiplier = %.1f, want %.1f", tt.name, d.EnvMultiplier, tt.envMult)
		}
	}
}

func TestDecideRiskDiscount(t *testing.T) {
	m := NewPositionManager(500, 0.1, 0.8)

	tests := []struct {
		riskScore int
		discount  float64
	}{
		{70, 0.3},
		{60, 0.3},
		{45, 0.6},
		{25, 0.8},
		{10, 1.0},
		{0, 1.0},
	}

	for _, tt := range tests {
		d := m.Decide(50, 65, tt.riskScore)
		if d.RiskDiscount != tt.discount {
			t.Errorf("risk %d: discount = %.1f, want %.1f", tt.riskScore, d.RiskDiscount, tt.discount)
		}
	}
}

func TestDecideRatioBounds(t *testing.T) {
	m := NewPositionManager(500, 0.1, 0.8)

	// 100% recommendation in an excellent environment would exceed the cap.
	d := m.Decide(100, 80, 0)
	if d.TargetRatio != 0.8 {
		t.Errorf("ratio = %.2f, want clamp at 0.8", d.TargetRatio)
	}

	// A tiny recommendation gets lifted to the floor.
	d = m.Decide(5, 65, 0)
	if d.TargetRatio != 0.1 {
		t.Errorf("ratio = %.2f, want floor at 0.1", d.TargetRatio)
	}

	// Stopped mode overrides the floor.
	d = m.Decide(50, 10, 0)
	if d.TargetRatio != 0 {
		t.Errorf("stopped ratio = %.2f, want 0", d.TargetRatio)
	}
	if d.TargetValue != 0 {
		t.Errorf("stopped value = %.2f, want 0", d.TargetValue)
	}
}

func TestDecideTargetValue(t *testing.T) {
	m := NewPositionManager(500, 0.1, 0.8)
	d := m.Decide(60, 65, 0)

	want := 0.6 * 1.0 * 1.0 * 500
	if math.Abs(d.TargetValue-want) > 1e-9 {
		t.Errorf("target value = %.2f, want %.2f", d.TargetValue, want)
	}
}

func TestEqualAllocation(t *testing.T) {
	m := NewPositionManager(500, 0.1, 0.8)

	alloc := m.EqualAllocation(300, 10)
	if len(alloc) != 10 {
		t.Fatalf("len = %d, want 10", len(alloc))
	}
	for i, v := range alloc {
		if math.Abs(v-30) > 1e-9 {
			t.Errorf("alloc[%d] = %.2f, want 30", i, v)
		}
	}

	if m.EqualAllocation(300, 0) != nil {
		t.Error("expected nil for zero grids")
	}
}

func TestPyramidAllocation(t *testing.T) {
	m := NewPositionManager(500, 0.1, 0.8)

	// Price high in the range: weights grow with the level index.
	high := m.PyramidAllocation(100, 4, 80)
	if len(high) != 4 {
		t.Fatalf("len = %d, want 4", len(high))
	}
	for i := 1; i < len(high); i++ {
		if high[i] <= high[i-1] {
			t.Errorf("high-position alloc not increasing at %d: %.2f <= %.2f", i, high[i], high[i-1])
		}
	}

	// Price low in the range: weights shrink with the level index.
	low := m.PyramidAllocation(100, 4, 20)
	for i := 1; i < len(low); i++ {
		if low[i] >= low[i-1] {
			t.Errorf("low-position alloc not decreasing at %d: %.2f >= %.2f", i, low[i], low[i-1])
		}
	}

	// Allocations sum to the total either way.
	sum := 0.0
	for _, v := range high {
		sum += v
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("allocation sum = %.4f, want 100", sum)
	}

	// 1+2+3+4 = 10, so the largest share is 40.
	if math.Abs(high[3]-40) > 1e-9 {
		t.Errorf("largest share = %.2f, want 40", high[3])
	}
}
