// Package provider fetches external sentiment feeds: fear & greed index,
// funding rate, long/short ratio, and global market cap. Every feed is
// optional; failures degrade to neutral defaults and never block scoring.
package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gridbot/logger"
	"gridbot/market"
)

const (
	fearGreedURL     = "https://api.alternative.me/fng/?limit=1"
	coingeckoGlobal  = "https://api.coingecko.com/api/v3/global"
	okxFundingURL    = "https://www.okx.com/api/v5/public/funding-rate?instId=%s"
	okxLongShortURL  = "https://www.okx.com/api/v5/rubik/stat/contracts/long-short-account-ratio?ccy=%s&period=1H"
	requestTimeout   = 10 * time.Second
	cacheTTL         = 5 * time.Minute
	maxFetchAttempts = 3
	retryDelay       = 2 * time.Second
)

type cacheEntry struct {
	value    interface{}
	fetched  time.Time
}

// SentimentProvider fetches and caches external sentiment data.
type SentimentProvider struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewSentimentProvider creates a provider with the default HTTP timeout.
func NewSentimentProvider() *SentimentProvider {
	return &SentimentProvider{
		client: &http.Client{Timeout: requestTimeout},
		cache:  make(map[string]cacheEntry),
	}
}

func (p *SentimentProvider) cached(key string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache[key]
	if !ok || time.Since(entry.fetched) > cacheTTL {
		return nil, false
	}
	return entry.value, true
}

func (p *SentimentProvider) store(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[key] = cacheEntry{value: value, fetched: time.Now()}
}

// fetchJSON performs a GET with retries and decodes the response into out.
func (p *SentimentProvider) fetchJSON(url string, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		if attempt > 1 {
			logger.Warnf("⚠️  Retry attempt %d of %d for %s", attempt, maxFetchAttempts, url)
			time.Sleep(retryDelay)
		}

		err := p.doFetch(url, out)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Debugf("request attempt %d failed: %v", attempt, err)
	}
	return fmt.Errorf("all requests failed: %w", lastErr)
}

func (p *SentimentProvider) doFetch(url string, out interface{}) error {
	resp, err := p.client.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("JSON parsing failed: %w", err)
	}
	return nil
}

type fngResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

// FearGreedIndex fetches the crypto fear & greed index from alternative.me.
func (p *SentimentProvider) FearGreedIndex() (*market.FearGreed, error) {
	if v, ok := p.cached("fear_greed"); ok {
		return v.(*market.FearGreed), nil
	}

	var resp fngResponse
	if err := p.fetchJSON(fearGreedURL, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("fear & greed response empty")
	}

	value, err := strconv.Atoi(resp.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("invalid fear & greed value: %w", err)
	}

	result := &market.FearGreed{
		Value:          value,
		Classification: resp.Data[0].ValueClassification,
		Timestamp:      resp.Data[0].Timestamp,
	}
	p.store("fear_greed", result)
	return result, nil
}

type okxResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// FundingRate fetches the current funding rate for a perpetual instrument.
func (p *SentimentProvider) FundingRate(instID string) (*market.FundingRate, error) {
	key := "funding_" + instID
	if v, ok := p.cached(key); ok {
		return v.(*market.FundingRate), nil
	}

	var resp okxResponse
	if err := p.fetchJSON(fmt.Sprintf(okxFundingURL, instID), &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("funding rate API error: %s", resp.Msg)
	}

	var rows []struct {
		FundingRate     string `json:"fundingRate"`
		NextFundingTime string `json:"nextFundingTime"`
	}
	if err := json.Unmarshal(resp.Data, &rows); err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("funding rate response empty")
	}

	rate, err := strconv.ParseFloat(rows[0].FundingRate, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid funding rate: %w", err)
	}

	result := &market.FundingRate{Rate: rate, NextFundingTime: rows[0].NextFundingTime}
	p.store(key, result)
	return result, nil
}

// LongShortRatio fetches the long/short account ratio for a currency.
func (p *SentimentProvider) LongShortRatio(ccy string) (*market.LongShortRatio, error) {
	key := "ls_ratio_" + ccy
	if v, ok := p.cached(key); ok {
		return v.(*market.LongShortRatio), nil
	}

	var resp okxResponse
	if err := p.fetchJSON(fmt.Sprintf(okxLongShortURL, ccy), &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("long/short ratio API error: %s", resp.Msg)
	}

	// Rows are [timestamp, ratio] string pairs, newest first.
	var rows [][]string
	if err := json.Unmarshal(resp.Data, &rows); err != nil || len(rows) == 0 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("long/short ratio response empty")
	}

	ratio, err := strconv.ParseFloat(rows[0][1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid long/short ratio: %w", err)
	}

	result := &market.LongShortRatio{Ratio: ratio, Timestamp: rows[0][0]}
	p.store(key, result)
	return result, nil
}

type coingeckoGlobalResponse struct {
	Data struct {
		TotalMarketCap      map[string]float64 `json:"total_market_cap"`
		TotalVolume         map[string]float64 `json:"total_volume"`
		MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
		MarketCapChange24h  float64            `json:"market_cap_change_percentage_24h_usd"`
	} `json:"data"`
}

// GlobalMarketCap fetches global market cap stats and BTC dominance.
func (p *SentimentProvider) GlobalMarketCap() (*market.MarketCapStats, float64, error) {
	if v, ok := p.cached("market_cap"); ok {
		entry := v.(struct {
			stats     *market.MarketCapStats
			dominance float64
		})
		return entry.stats, entry.dominance, nil
	}

	var resp coingeckoGlobalResponse
	if err := p.fetchJSON(coingeckoGlobal, &resp); err != nil {
		return nil, 0, err
	}

	stats := &market.MarketCapStats{
		TotalMarketCap: resp.Data.TotalMarketCap["usd"],
		TotalVolume:    resp.Data.TotalVolume["usd"],
		Change24h:      resp.Data.MarketCapChange24h,
	}
	dominance := resp.Data.MarketCapPercentage["btc"]

	p.store("market_cap", struct {
		stats     *market.MarketCapStats
		dominance float64
	}{stats, dominance})
	return stats, dominance, nil
}

// Snapshot fetches every feed, tolerating individual failures, and returns
// a scored sentiment snapshot. With every feed down the score stays at the
// neutral default of 50.
func (p *SentimentProvider) Snapshot(fundingInstID, ratioCcy string) *market.SentimentSnapshot {
	logger.Info("🔄 Fetching market sentiment data...")

	snap := &market.SentimentSnapshot{Timestamp: time.Now()}

	if fg, err := p.FearGreedIndex(); err == nil {
		snap.FearGreed = fg
		logger.Infof("  Fear & Greed: %d (%s)", fg.Value, fg.Classification)
	} else {
		logger.Warnf("  Fear & Greed unavailable: %v", err)
	}

	if fr, err := p.FundingRate(fundingInstID); err == nil {
		snap.FundingRate = fr
		logger.Infof("  Funding rate: %.4f%%", fr.Rate*100)
	} else {
		logger.Warnf("  Funding rate unavailable: %v", err)
	}

	if ls, err := p.LongShortRatio(ratioCcy); err == nil {
		snap.LongShortRatio = ls
		logger.Infof("  Long/short ratio: %.2f", ls.Ratio)
	} else {
		logger.Warnf("  Long/short ratio unavailable: %v", err)
	}

	if mc, dominance, err := p.GlobalMarketCap(); err == nil {
		snap.MarketCap = mc
		snap.BTCDominance = dominance
		logger.Infof("  Market cap 24h change: %.2f%%", mc.Change24h)
	} else {
		logger.Warnf("  Market cap unavailable: %v", err)
	}

	market.ScoreSentiment(snap)
	logger.Infof("  Overall sentiment: %s (score: %.1f)", snap.Overall, snap.Score)
	return snap
}
