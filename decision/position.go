package decision

import (
	"gridbot/logger"
)

// PositionMode names the operating mode derived from the environment score.
type PositionMode string

const (
	ModeAggressive   PositionMode = "aggressive"
	ModeNormal       PositionMode = "normal"
	ModeConservative PositionMode = "conservative"
	ModeDefensive    PositionMode = "defensive"
	ModeStopped      PositionMode = "stopped"
)

// PositionDecision is the target capital allocation.
type PositionDecision struct {
	Mode          PositionMode `json:"mode"`
	TargetRatio   float64      `json:"target_ratio"` // fraction of total capital, 0 or [0.1, 0.8]
	TargetValue   float64      `json:"target_value"`
	BaseRatio     float64      `json:"base_ratio"`
	EnvMultiplier float64      `json:"env_multiplier"`
	RiskDiscount  float64      `json:"risk_discount"`
}

// PositionManager converts environment and risk scores into a target
// position ratio and splits capital across grid levels.
type PositionManager struct {
	TotalCapital float64
	MaxRatio     float64
	MinRatio     float64
}

// NewPositionManager creates a manager with the configured capital bounds.
func NewPositionManager(totalCapital, minRatio, maxRatio float64) *PositionManager {
	return &PositionManager{
		TotalCapital: totalCapital,
		MaxRatio:     maxRatio,
		MinRatio:     minRatio,
	}
}

// Decide computes the target position from the recommended position percent,
// the environment score, and the current risk score. The final ratio is
// base x environment multiplier x risk discount, clamped to the configured
// bounds, and forced to zero when the environment stops trading.
func (m *PositionManager) Decide(recommendedPosition, envScore, riskScore int) PositionDecision {
	base := float64(recommendedPosition) / 100

	var mode PositionMode
	var envMult float64
	switch {
	case envScore >= 75:
		mode = ModeAggressive
		envMult = 1.2
	case envScore >= 60:
		mode = ModeNormal
		envMult = 1.0
	case envScore >= 45:
		mode = ModeConservative
		envMult = 0.7
	case envScore >= 30:
		mode = ModeDefensive
		envMult = 0.4
	default:
		mode = ModeStopped
		envMult = 0
	}

	var riskDiscount float64
	switch {
	case riskScore >= 60:
		riskDiscount = 0.3
	case riskScore >= 40:
		riskDiscount = 0.6
	case riskScore >= 20:
		riskDiscount = 0.8
	default:
		riskDiscount = 1.0
	}

	ratio := base * envMult * riskDiscount
	if ratio > m.MaxRatio {
		ratio = m.MaxRatio
	}
	if ratio < m.MinRatio {
		ratio = m.MinRatio
	}
	if mode == ModeStopped {
		ratio = 0
	}

	decision := PositionDecision{
		Mode:          mode,
		TargetRatio:   ratio,
		TargetValue:   ratio * m.TotalCapital,
		BaseRatio:     base,
		EnvMultiplier: envMult,
		RiskDiscount:  riskDiscount,
	}

	logger.Infof("[Position] mode=%s ratio=%.1f%% value=%.2f (base=%.2f env=%.1fx risk=%.1fx)",
		mode, ratio*100, decision.TargetValue, base, envMult, riskDiscount)
	return decision
}

// EqualAllocation splits the target value evenly across grid levels.
func (m *PositionManager) EqualAllocation(totalValue float64, gridCount int) []float64 {
	if gridCount <= 0 {
		return nil
	}
	per := totalValue / float64(gridCount)
	alloc := make([]float64, gridCount)
	for i := range alloc {
		alloc[i] = per
	}
	return alloc
}

// PyramidAllocation weights grid levels linearly by index. With the price
// in the upper half of the range weights grow with the level index, in the
// lower half they shrink, so capital concentrates on the side the price is
// likely to traverse next.
func (m *PositionManager) PyramidAllocation(totalValue float64, gridCount int, pricePosition float64) []float64 {
	if gridCount <= 0 {
		return nil
	}

	weights := make([]float64, gridCount)
	if pricePosition > 50 {
		for i := range weights {
			weights[i] = float64(i + 1)
		}
	} else {
		for i := range weights {
			weights[i] = float64(gridCount - i)
		}
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}

	alloc := make([]float64, gridCount)
	for i, w := range weights {
		alloc[i] = w / total * totalValue
	}
	return alloc
}
