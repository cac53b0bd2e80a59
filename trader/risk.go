package trader

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gridbot/logger"
)

// RiskLevel grades the combined risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAction is the recommended response to the current risk level.
type RiskAction string

const (
	RiskContinue       RiskAction = "continue"
	RiskReducePosition RiskAction = "reduce_position"
	RiskPauseBuy       RiskAction = "pause_buy"
	RiskPauseAll       RiskAction = "pause_all"
)

// RiskLimits holds the guard thresholds.
type RiskLimits struct {
	MaxDrawdownPercent   float64
	DailyLossLimit       float64
	MaxPositionValue     float64
	PriceDropAlert       float64 // percent drop over the last 5 recorded prices
	PriceSpikeAlert      float64 // percent change between consecutive ticks
	ConsecutiveLossLimit int
}

// DefaultRiskLimits mirrors the production defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDrawdownPercent:   10,
		DailyLossLimit:       50,
		MaxPositionValue:     500,
		PriceDropAlert:       5,
		PriceSpikeAlert:      10,
		ConsecutiveLossLimit: 3,
	}
}

// DrawdownCheck reports peak-to-current equity decline.
type DrawdownCheck struct {
	Exceeded        bool    `json:"exceeded"`
	Drawdown        float64 `json:"drawdown"`
	DrawdownPercent float64 `json:"drawdown_percent"`
	Limit           float64 `json:"limit"`
}

// DailyLossCheck reports calendar-day realized losses.
type DailyLossCheck struct {
	Exceeded bool    `json:"exceeded"`
	DailyPnL float64 `json:"daily_pnl"`
	Limit    float64 `json:"limit"`
}

// ConsecutiveLossCheck reports the losing-trade streak.
type ConsecutiveLossCheck struct {
	Exceeded bool `json:"exceeded"`
	Count    int  `json:"count"`
	Limit    int  `json:"limit"`
}

// AnomalyCheck reports abnormal price movement.
type AnomalyCheck struct {
	Detected      bool    `json:"anomaly_detected"`
	Type          string  `json:"type,omitempty"` // spike or rapid_drop
	ChangePercent float64 `json:"change_percent"`
}

// PositionLimitCheck reports position value against the cap.
type PositionLimitCheck struct {
	Exceeded      bool    `json:"exceeded"`
	PositionValue float64 `json:"position_value"`
	Limit         float64 `json:"limit"`
}

// RiskAssessment is the combined verdict for one tick.
type RiskAssessment struct {
	Level       RiskLevel            `json:"risk_level"`
	Score       int                  `json:"risk_score"`
	Action      RiskAction           `json:"action"`
	ShouldTrade bool                 `json:"should_trade"`
	PauseReason string               `json:"pause_reason,omitempty"`
	Drawdown    DrawdownCheck        `json:"drawdown"`
	DailyLoss   DailyLossCheck       `json:"daily_loss"`
	Consecutive ConsecutiveLossCheck `json:"consecutive_losses"`
	Anomaly     AnomalyCheck         `json:"price_anomaly"`
	Position    PositionLimitCheck   `json:"position_limit"`
}

// RiskState is the persisted controller document.
type RiskState struct {
	InitialValue      float64 `json:"initial_value"`
	PeakValue         float64 `json:"peak_value"`
	DailyPnL          float64 `json:"daily_pnl"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	TradingPaused     bool    `json:"trading_paused"`
	PauseReason       string  `json:"pause_reason"`
	LastDate          string  `json:"last_date"` // YYYY-MM-DD
}

const maxPriceHistory = 100

// RiskController tracks equity, daily realized losses, loss streaks, and
// price anomalies, combining them into a 0-100 score per tick. A score at
// or above 40 pauses trading until an explicit resume.
type RiskController struct {
	mu     sync.Mutex
	limits RiskLimits

	initialValue      float64
	peakValue         float64
	dailyPnL          float64
	consecutiveLosses int
	lastPrice         float64
	tradingPaused     bool
	pauseReason       string
	lastDate          string

	priceHistory []float64

	now func() time.Time
}

// NewRiskController creates a controller with the given limits.
func NewRiskController(limits RiskLimits) *RiskController {
	return &RiskController{limits: limits, now: time.Now}
}

// Initialize seeds the controller with the starting equity.
func (r *RiskController) Initialize(initialValue float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.initialValue = initialValue
	r.peakValue = initialValue
	r.dailyPnL = 0
	r.consecutiveLosses = 0
	r.tradingPaused = false
	r.pauseReason = ""
	r.lastDate = r.today()
	logger.Infof("[Risk] initialized with equity %.2f", initialValue)
}

func (r *RiskController) today() string {
	return r.now().Format("2006-01-02")
}

// rolloverLocked resets daily figures when the calendar day changes.
func (r *RiskController) rolloverLocked() {
	today := r.today()
	if r.lastDate != "" && r.lastDate != today {
		logger.Infof("[Risk] new trading day, resetting daily PnL (was %.2f)", r.dailyPnL)
		r.dailyPnL = 0
	}
	r.lastDate = today
}

// UpdateValue tracks the equity peak.
func (r *RiskController) UpdateValue(currentValue float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if currentValue > r.peakValue {
		r.peakValue = currentValue
	}
}

// RecordTrade adds a realized PnL to the daily total and maintains the
// losing streak.
func (r *RiskController) RecordTrade(pnl float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rolloverLocked()
	r.dailyPnL += pnl
	if pnl < 0 {
		r.consecutiveLosses++
	} else {
		r.consecutiveLosses = 0
	}
	logger.Infof("[Risk] trade pnl %.2f, daily total %.2f, loss streak %d",
		pnl, r.dailyPnL, r.consecutiveLosses)
}

// RecordPrice appends to the bounded price history.
func (r *RiskController) RecordPrice(price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordPriceLocked(price)
}

func (r *RiskController) recordPriceLocked(price float64) {
	r.priceHistory = append(r.priceHistory, price)
	if len(r.priceHistory) > maxPriceHistory {
		r.priceHistory = r.priceHistory[len(r.priceHistory)-maxPriceHistory:]
	}
	r.lastPrice = price
}

// CheckDrawdown measures the decline from the equity peak.
func (r *RiskController) CheckDrawdown(currentValue float64) DrawdownCheck {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkDrawdownLocked(currentValue)
}

func (r *RiskController) checkDrawdownLocked(currentValue float64) DrawdownCheck {
	check := DrawdownCheck{Limit: r.limits.MaxDrawdownPercent}
	if r.peakValue <= 0 {
		return check
	}

	check.Drawdown = r.peakValue - currentValue
	check.DrawdownPercent = check.Drawdown / r.peakValue * 100
	check.Exceeded = check.DrawdownPercent > r.limits.MaxDrawdownPercent
	if check.Exceeded {
		logger.Warnf("⚠️  [Risk] drawdown %.2f%% exceeds limit %.2f%%",
			check.DrawdownPercent, r.limits.MaxDrawdownPercent)
	}
	return check
}

func (r *RiskController) checkDailyLossLocked() DailyLossCheck {
	check := DailyLossCheck{DailyPnL: r.dailyPnL, Limit: r.limits.DailyLossLimit}
	check.Exceeded = r.dailyPnL < -r.limits.DailyLossLimit
	if check.Exceeded {
		logger.Warnf("⚠️  [Risk] daily loss %.2f exceeds limit %.2f", -r.dailyPnL, r.limits.DailyLossLimit)
	}
	return check
}

func (r *RiskController) checkConsecutiveLocked() ConsecutiveLossCheck {
	check := ConsecutiveLossCheck{Count: r.consecutiveLosses, Limit: r.limits.ConsecutiveLossLimit}
	check.Exceeded = r.consecutiveLosses >= r.limits.ConsecutiveLossLimit
	if check.Exceeded {
		logger.Warnf("⚠️  [Risk] %d consecutive losing trades", r.consecutiveLosses)
	}
	return check
}

// checkAnomalyLocked flags a single-tick spike beyond PriceSpikeAlert or a
// drop beyond PriceDropAlert against the price 5 records back.
func (r *RiskController) checkAnomalyLocked(currentPrice float64) AnomalyCheck {
	check := AnomalyCheck{}
	if len(r.priceHistory) == 0 {
		return check
	}

	if r.lastPrice > 0 {
		change := (currentPrice - r.lastPrice) / r.lastPrice * 100
		abs := change
		if abs < 0 {
			abs = -abs
		}
		if abs > r.limits.PriceSpikeAlert {
			check.Detected = true
			check.Type = "spike"
			check.ChangePercent = change
			logger.Warnf("⚠️  [Risk] price spike %.2f%%", change)
		}
	}

	if len(r.priceHistory) >= 5 {
		oldPrice := r.priceHistory[len(r.priceHistory)-5]
		change := (currentPrice - oldPrice) / oldPrice * 100
		if change < -r.limits.PriceDropAlert {
			check.Detected = true
			check.Type = "rapid_drop"
			check.ChangePercent = change
			logger.Warnf("⚠️  [Risk] rapid drop %.2f%% over 5 ticks", change)
		}
	}
	return check
}

func (r *RiskController) checkPositionLocked(positionValue float64) PositionLimitCheck {
	check := PositionLimitCheck{PositionValue: positionValue, Limit: r.limits.MaxPositionValue}
	check.Exceeded = positionValue > r.limits.MaxPositionValue
	if check.Exceeded {
		logger.Warnf("⚠️  [Risk] position value %.2f exceeds limit %.2f",
			positionValue, r.limits.MaxPositionValue)
	}
	return check
}

// Assess runs all checks for one tick, records the price, and composes the
// risk score. A score at or above 40 sets the sticky pause with a composed
// reason; only Resume clears it.
func (r *RiskController) Assess(currentValue, currentPrice, positionValue float64) RiskAssessment {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rolloverLocked()

	drawdown := r.checkDrawdownLocked(currentValue)
	dailyLoss := r.checkDailyLossLocked()
	consecutive := r.checkConsecutiveLocked()
	anomaly := r.checkAnomalyLocked(currentPrice)
	position := r.checkPositionLocked(positionValue)

	r.recordPriceLocked(currentPrice)

	score := 0
	switch {
	case drawdown.Exceeded:
		score += 30
	case drawdown.DrawdownPercent > r.limits.MaxDrawdownPercent*0.7:
		score += 15
	}
	switch {
	case dailyLoss.Exceeded:
		score += 25
	case r.dailyPnL < -r.limits.DailyLossLimit*0.7:
		score += 10
	}
	if consecutive.Exceeded {
		score += 20
	}
	if anomaly.Detected {
		score += 25
	}
	if position.Exceeded {
		score += 15
	}

	assessment := RiskAssessment{
		Score:       score,
		ShouldTrade: score < 40,
		Drawdown:    drawdown,
		DailyLoss:   dailyLoss,
		Consecutive: consecutive,
		Anomaly:     anomaly,
		Position:    position,
	}

	switch {
	case score >= 60:
		assessment.Level = RiskCritical
		assessment.Action = RiskPauseAll
	case score >= 40:
		assessment.Level = RiskHigh
		assessment.Action = RiskPauseBuy
	case score >= 20:
		assessment.Level = RiskMedium
		assessment.Action = RiskReducePosition
	default:
		assessment.Level = RiskLow
		assessment.Action = RiskContinue
	}

	if score >= 40 {
		r.tradingPaused = true
		var reasons []string
		if drawdown.Exceeded {
			reasons = append(reasons, fmt.Sprintf("drawdown exceeded (%.2f%%)", drawdown.DrawdownPercent))
		}
		if dailyLoss.Exceeded {
			reasons = append(reasons, fmt.Sprintf("daily loss exceeded (%.2f USDT)", -dailyLoss.DailyPnL))
		}
		if consecutive.Exceeded {
			reasons = append(reasons, fmt.Sprintf("%d consecutive losses", consecutive.Count))
		}
		if anomaly.Detected {
			reasons = append(reasons, fmt.Sprintf("price anomaly (%.2f%%)", anomaly.ChangePercent))
		}
		if position.Exceeded {
			reasons = append(reasons, fmt.Sprintf("position limit exceeded (%.2f USDT)", position.PositionValue))
		}
		r.pauseReason = strings.Join(reasons, "; ")
		assessment.PauseReason = r.pauseReason
	}
	return assessment
}

// Paused reports the sticky pause flag and reason.
func (r *RiskController) Paused() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tradingPaused, r.pauseReason
}

// Resume clears the pause and the loss streak after operator review.
func (r *RiskController) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tradingPaused = false
	r.pauseReason = ""
	r.consecutiveLosses = 0
	logger.Info("🔄 [Risk] trading resumed")
}

// State snapshots the controller for persistence. Price history is
// deliberately not persisted; it rebuilds within 5 ticks.
func (r *RiskController) State() RiskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RiskState{
		InitialValue:      r.initialValue,
		PeakValue:         r.peakValue,
		DailyPnL:          r.dailyPnL,
		ConsecutiveLosses: r.consecutiveLosses,
		TradingPaused:     r.tradingPaused,
		PauseReason:       r.pauseReason,
		LastDate:          r.lastDate,
	}
}

// RestoreState loads a persisted snapshot, resetting the daily PnL when the
// saved date is not today.
func (r *RiskController) RestoreState(state RiskState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.initialValue = state.InitialValue
	r.peakValue = state.PeakValue
	r.dailyPnL = state.DailyPnL
	r.consecutiveLosses = state.ConsecutiveLosses
	r.tradingPaused = state.TradingPaused
	r.pauseReason = state.PauseReason
	r.lastDate = state.LastDate

	if r.lastDate != r.today() {
		r.dailyPnL = 0
		r.lastDate = r.today()
	}
	if r.tradingPaused {
		logger.Warnf("⚠️  [Risk] restored in paused state: %s", r.pauseReason)
	}
}
