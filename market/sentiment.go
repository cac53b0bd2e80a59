package market

import "time"

// FearGreed is the alternative.me fear & greed index reading.
type FearGreed struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
	Timestamp      string `json:"timestamp"`
}

// FundingRate is the perpetual funding rate for the traded instrument.
type FundingRate struct {
	Rate            float64 `json:"funding_rate"`
	NextFundingTime string  `json:"next_funding_time"`
}

// LongShortRatio is the long/short account ratio.
type LongShortRatio struct {
	Ratio     float64 `json:"long_short_ratio"`
	Timestamp string  `json:"timestamp"`
}

// MarketCapStats is the global crypto market cap snapshot.
type MarketCapStats struct {
	TotalMarketCap float64 `json:"total_market_cap"`
	TotalVolume    float64 `json:"total_volume"`
	Change24h      float64 `json:"market_cap_change_24h"`
}

// SentimentSnapshot aggregates the external sentiment feeds. Every source
// is optional; a nil field means the feed was unavailable and scoring
// degrades to the remaining sources.
type SentimentSnapshot struct {
	Timestamp      time.Time       `json:"timestamp"`
	FearGreed      *FearGreed      `json:"fear_greed,omitempty"`
	FundingRate    *FundingRate    `json:"funding_rate,omitempty"`
	LongShortRatio *LongShortRatio `json:"long_short_ratio,omitempty"`
	MarketCap      *MarketCapStats `json:"market_cap,omitempty"`
	BTCDominance   float64         `json:"btc_dominance,omitempty"`
	Score          float64         `json:"sentiment_score"`
	Overall        string          `json:"overall_sentiment"`
}

// ScoreSentiment computes the 0-100 composite sentiment score as the average
// of the available sources. With no sources it stays at the neutral default
// of 50 and never errors.
func ScoreSentiment(s *SentimentSnapshot) {
	var scores []float64

	if s.FearGreed != nil {
		scores = append(scores, float64(s.FearGreed.Value))
	}

	if s.FundingRate != nil {
		rate := s.FundingRate.Rate
		switch {
		case rate > 0.001:
			scores = append(scores, 70)
		case rate > 0:
			scores = append(scores, 55)
		case rate > -0.001:
			scores = append(scores, 45)
		default:
			scores = append(scores, 30)
		}
	}

	if s.LongShortRatio != nil {
		ratio := s.LongShortRatio.Ratio
		ratioScore := (ratio-0.5)/1.5*50 + 50
		if ratioScore > 100 {
			ratioScore = 100
		}
		if ratioScore < 0 {
			ratioScore = 0
		}
		scores = append(scores, ratioScore)
	}

	if s.MarketCap != nil {
		changeScore := s.MarketCap.Change24h*5 + 50
		if changeScore > 100 {
			changeScore = 100
		}
		if changeScore < 0 {
			changeScore = 0
		}
		scores = append(scores, changeScore)
	}

	s.Score = 50
	if len(scores) > 0 {
		sum := 0.0
		for _, v := range scores {
			sum += v
		}
		s.Score = sum / float64(len(scores))
	}

	switch {
	case s.Score <= 25:
		s.Overall = "extreme_fear"
	case s.Score <= 40:
		s.Overall = "fear"
	case s.Score <= 60:
		s.Overall = "neutral"
	case s.Score <= 75:
		s.Overall = "greed"
	default:
		s.Overall = "extreme_greed"
	}
}

// NeutralSentiment returns a snapshot with every feed absent and the
// default neutral score applied.
func NeutralSentiment() *SentimentSnapshot {
	s := &SentimentSnapshot{Timestamp: time.Now()}
	ScoreSentiment(s)
	return s
}
