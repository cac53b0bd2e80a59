// Package decision turns market analysis into trading decisions: the regime
// analyzer scores the environment and suggests grid parameters, and the
// position manager converts scores into a target capital ratio.
package decision

import (
	"fmt"
	"time"

	"gridbot/logger"
	"gridbot/market"
)

// Environment rates how favorable conditions are for grid trading.
type Environment int

const (
	EnvDanger Environment = iota
	EnvCaution
	EnvNeutral
	EnvGood
	EnvExcellent
)

func (e Environment) String() string {
	switch e {
	case EnvExcellent:
		return "excellent"
	case EnvGood:
		return "good"
	case EnvNeutral:
		return "neutral"
	case EnvCaution:
		return "caution"
	case EnvDanger:
		return "danger"
	}
	return "unknown"
}

// GridParams is the suggested grid configuration for current conditions.
type GridParams struct {
	UpperPrice      float64 `json:"upper_price"`
	LowerPrice      float64 `json:"lower_price"`
	GridCount       int     `json:"grid_count"`
	AmountPerGrid   float64 `json:"amount_per_grid"`
	TotalInvestment float64 `json:"total_investment"`
	Spacing         float64 `json:"spacing"`
	SpacingPercent  float64 `json:"spacing_percent"`
}

// Assessment is the full regime analysis output. Replaced wholesale on each
// re-analysis; no history is kept.
type Assessment struct {
	Timestamp           time.Time
	Symbol              string
	Environment         Environment
	Score               int // 0-100
	RecommendedPosition int // percent, 0-100
	ShouldTrade         bool
	GridParams          *GridParams
	Warnings            []string

	Trend      market.TrendResult
	Volatility market.VolatilityResult
	Sentiment  *market.SentimentSnapshot
}

// RegimeAnalyzer aggregates trend, volatility, and sentiment into an
// environment score. Construct one per engine; instances are independent.
type RegimeAnalyzer struct {
	trend *market.TrendAnalyzer
	vol   *market.VolatilityAnalyzer

	// BaseAmountPerGrid anchors the per-grid amount suggestion before
	// position scaling.
	BaseAmountPerGrid float64
}

// NewRegimeAnalyzer creates an analyzer with default classifier weights.
func NewRegimeAnalyzer(baseAmountPerGrid float64) *RegimeAnalyzer {
	return &RegimeAnalyzer{
		trend:             market.NewTrendAnalyzer(market.DefaultTrendWeights()),
		vol:               market.NewVolatilityAnalyzer(),
		BaseAmountPerGrid: baseAmountPerGrid,
	}
}

// Analyze runs the full market assessment. A nil sentiment snapshot is
// treated as neutral.
func (a *RegimeAnalyzer) Analyze(symbol string, candles []market.Candle, sentiment *market.SentimentSnapshot) *Assessment {
	logger.Infof("[Regime] analyzing market for %s (%d candles)", symbol, len(candles))

	if sentiment == nil {
		sentiment = market.NeutralSentiment()
	}

	result := &Assessment{
		Timestamp: time.Now(),
		Symbol:    symbol,
		Sentiment: sentiment,
	}

	if len(candles) < 30 {
		result.Warnings = append(result.Warnings, "insufficient history, analysis may be unreliable")
	}

	result.Trend = a.trend.Classify(candles)
	logger.Infof("[Regime]   trend: %s (confidence %.0f%%)", result.Trend.Trend, result.Trend.Confidence)

	result.Volatility = a.vol.Assess(candles)
	logger.Infof("[Regime]   volatility: %s (score %d)", result.Volatility.Level, result.Volatility.Score)

	a.scoreEnvironment(result)
	a.suggestGridParams(result, candles)
	a.collectWarnings(result)

	logger.Infof("[Regime]   environment: %s (score %d, position %d%%, trade=%v)",
		result.Environment, result.Score, result.RecommendedPosition, result.ShouldTrade)
	return result
}

// scoreEnvironment computes the 0-100 environment score and recommended
// position from the sub-analyses. Base is 50 for each.
func (a *RegimeAnalyzer) scoreEnvironment(result *Assessment) {
	score := 50
	position := 50

	// Trend contribution: sideways is the grid sweet spot.
	switch result.Trend.Trend {
	case market.TrendSideways:
		score += 15
		position += 10
	case market.TrendUp:
		score += 5
		position += 5
	case market.TrendStrongUp:
		score -= 5
		position -= 10
	case market.TrendDown:
		score -= 10
		position -= 15
	case market.TrendStrongDown:
		score -= 20
		position -= 30
	}

	// Volatility contribution.
	volScore := result.Volatility.Score
	switch {
	case volScore < 30:
		score += 10
		position += 5
	case volScore < 60:
		score += 15
		position += 10
	case volScore < 80:
		score -= 5
		position -= 10
	default:
		score -= 20
		position -= 30
	}

	if result.Volatility.Spike.Detected {
		score -= 15
		position -= 20
		result.Warnings = append(result.Warnings, "abnormal volatility spike detected")
	}

	// Sentiment contribution: neutral is best, extremes are penalized.
	sentimentScore := result.Sentiment.Score
	switch {
	case sentimentScore >= 40 && sentimentScore <= 60:
		score += 10
		position += 5
	case sentimentScore < 25:
		score -= 5
		position -= 10
		result.Warnings = append(result.Warnings, "extreme fear in the market")
	case sentimentScore > 75:
		score -= 10
		position -= 15
		result.Warnings = append(result.Warnings, "extreme greed, pullback risk")
	}

	// Funding rate extremes signal crowded positioning.
	if result.Sentiment.FundingRate != nil {
		if rate := result.Sentiment.FundingRate.Rate; rate > 0.001 || rate < -0.001 {
			score -= 5
			position -= 10
		}
	}

	// Long/short ratio extremes.
	if result.Sentiment.LongShortRatio != nil {
		if ratio := result.Sentiment.LongShortRatio.Ratio; ratio > 2 || ratio < 0.5 {
			score -= 5
			position -= 10
		}
	}

	result.Score = clampInt(score, 0, 100)
	result.RecommendedPosition = clampInt(position, 0, 100)

	result.Environment, result.ShouldTrade = classifyEnvironment(result.Score)
}

// classifyEnvironment maps a 0-100 score to its tier. Trading is advised
// only from neutral upward.
func classifyEnvironment(score int) (Environment, bool) {
	switch {
	case score >= 75:
		return EnvExcellent, true
	case score >= 60:
		return EnvGood, true
	case score >= 45:
		return EnvNeutral, true
	case score >= 30:
		return EnvCaution, false
	default:
		return EnvDanger, false
	}
}

// suggestGridParams derives grid bounds from the recent range, skewed by
// trend direction, with the grid count from the volatility suggestion and
// the per-grid amount scaled by the recommended position.
func (a *RegimeAnalyzer) suggestGridParams(result *Assessment, candles []market.Candle) {
	if len(candles) == 0 {
		return
	}

	currentPrice := candles[len(candles)-1].Close

	upper := currentPrice * 1.1
	lower := currentPrice * 0.9
	if result.Volatility.Range.Valid {
		upper = result.Volatility.Range.Highest
		lower = result.Volatility.Range.Lowest
	}

	switch result.Trend.Trend {
	case market.TrendUp, market.TrendStrongUp:
		upper *= 1.05
	case market.TrendDown, market.TrendStrongDown:
		lower *= 0.95
	}

	grids := 10
	if result.Volatility.Spacing.Valid {
		grids = result.Volatility.Spacing.GridsMin
	}

	positionRatio := float64(result.RecommendedPosition) / 100
	amount := a.BaseAmountPerGrid * positionRatio

	result.GridParams = &GridParams{
		UpperPrice:      upper,
		LowerPrice:      lower,
		GridCount:       grids,
		AmountPerGrid:   amount,
		TotalInvestment: amount * float64(grids),
		Spacing:         (upper - lower) / float64(grids),
		SpacingPercent:  (upper - lower) / float64(grids) / currentPrice * 100,
	}
}

func (a *RegimeAnalyzer) collectWarnings(result *Assessment) {
	switch result.Trend.Trend {
	case market.TrendStrongUp, market.TrendStrongDown:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("strong %s trend, grid strategy may underperform", result.Trend.Trend))
	}

	if result.Volatility.Valid && !result.Volatility.GridSuitable {
		result.Warnings = append(result.Warnings, "current volatility unsuitable for grid trading")
	}

	switch result.Trend.RSI.Signal {
	case market.RSIStrongBuy, market.RSIStrongSell:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("RSI at extreme (%.1f), possible reversal", result.Trend.RSI.RSI))
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
