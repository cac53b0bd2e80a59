package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Global configuration instance
var global *Config

// Config holds runtime configuration, loaded from environment variables
// (a .env file is loaded by main before Init runs).
type Config struct {
	// Exchange credentials
	Exchange      string // "okx" or "binance"
	OKXAPIKey     string
	OKXSecretKey  string
	OKXPassphrase string
	BinanceAPIKey string
	BinanceSecret string
	UseSimulated  bool // OKX demo trading flag
	AnalyzeOnly   bool // hard lock: block all order placement

	// Trading
	Symbol string

	// Grid parameters
	GridUpperPrice float64
	GridLowerPrice float64
	GridCount      int
	AmountPerGrid  float64

	// Risk parameters
	StopLossPrice          float64
	MaxConsecutiveStopLoss int
	TradingFeeRate         float64
	MinProfitRate          float64
	MaxPositionGrids       int
	MaxDrawdownPercent     float64
	DailyLossLimit         float64
	MaxPositionValue       float64
	ConsecutiveLossLimit   int
	PriceSpikeAlert        float64
	PriceDropAlert         float64

	// Smart analysis
	SmartMode         bool
	AutoAdjustParams  bool
	AnalysisInterval  time.Duration
	BaseAmountPerGrid float64

	// Position management
	TotalCapital     float64
	MaxPositionRatio float64
	MinPositionRatio float64

	// Runtime
	CheckInterval  time.Duration
	StateDir       string
	DBPath         string
	LogLevel       string
	EnableWS       bool
	APIServerPort  int
	EnableAPI      bool
	TelegramToken  string
	TelegramChatID int64
}

// Init loads configuration from environment variables with defaults.
func Init() {
	cfg := &Config{
		Exchange:               "okx",
		Symbol:                 "ETH-USDT",
		GridUpperPrice:         3200.0,
		GridLowerPrice:         2900.0,
		GridCount:              10,
		AmountPerGrid:          20.0,
		StopLossPrice:          2800.0,
		MaxConsecutiveStopLoss: 3,
		TradingFeeRate:         0.001,
		MinProfitRate:          0.003,
		MaxPositionGrids:       10,
		MaxDrawdownPercent:     10.0,
		DailyLossLimit:         50.0,
		MaxPositionValue:       500.0,
		ConsecutiveLossLimit:   3,
		PriceSpikeAlert:        10.0,
		PriceDropAlert:         5.0,
		SmartMode:              true,
		AutoAdjustParams:       true,
		AnalysisInterval:       time.Hour,
		BaseAmountPerGrid:      20.0,
		TotalCapital:           500.0,
		MaxPositionRatio:       0.8,
		MinPositionRatio:       0.1,
		CheckInterval:          5 * time.Second,
		StateDir:               "data",
		DBPath:                 "data/gridbot.db",
		LogLevel:               "info",
		APIServerPort:          8080,
	}

	cfg.Exchange = strings.ToLower(envStr("EXCHANGE", cfg.Exchange))
	cfg.OKXAPIKey = envStr("OKX_API_KEY", "")
	cfg.OKXSecretKey = envStr("OKX_SECRET_KEY", "")
	cfg.OKXPassphrase = envStr("OKX_PASSPHRASE", "")
	cfg.BinanceAPIKey = envStr("BINANCE_API_KEY", "")
	cfg.BinanceSecret = envStr("BINANCE_SECRET_KEY", "")
	cfg.UseSimulated = envBool("USE_SIMULATED", cfg.UseSimulated)
	cfg.AnalyzeOnly = envBool("ANALYZE_ONLY", cfg.AnalyzeOnly)

	cfg.Symbol = envStr("SYMBOL", cfg.Symbol)

	cfg.GridUpperPrice = envFloat("GRID_UPPER_PRICE", cfg.GridUpperPrice)
	cfg.GridLowerPrice = envFloat("GRID_LOWER_PRICE", cfg.GridLowerPrice)
	cfg.GridCount = envInt("GRID_COUNT", cfg.GridCount)
	cfg.AmountPerGrid = envFloat("AMOUNT_PER_GRID", cfg.AmountPerGrid)

	cfg.StopLossPrice = envFloat("STOP_LOSS_PRICE", cfg.StopLossPrice)
	cfg.MaxConsecutiveStopLoss = envInt("MAX_CONSECUTIVE_STOP_LOSS", cfg.MaxConsecutiveStopLoss)
	cfg.TradingFeeRate = envFloat("TRADING_FEE_RATE", cfg.TradingFeeRate)
	cfg.MinProfitRate = envFloat("MIN_PROFIT_RATE", cfg.MinProfitRate)
	cfg.MaxPositionGrids = envInt("MAX_POSITION_GRIDS", cfg.MaxPositionGrids)
	cfg.MaxDrawdownPercent = envFloat("MAX_DRAWDOWN_PERCENT", cfg.MaxDrawdownPercent)
	cfg.DailyLossLimit = envFloat("DAILY_LOSS_LIMIT", cfg.DailyLossLimit)
	cfg.MaxPositionValue = envFloat("MAX_POSITION_VALUE", cfg.MaxPositionValue)
	cfg.ConsecutiveLossLimit = envInt("CONSECUTIVE_LOSS_LIMIT", cfg.ConsecutiveLossLimit)
	cfg.PriceSpikeAlert = envFloat("PRICE_SPIKE_ALERT", cfg.PriceSpikeAlert)
	cfg.PriceDropAlert = envFloat("PRICE_DROP_ALERT", cfg.PriceDropAlert)

	cfg.SmartMode = envBool("SMART_MODE", cfg.SmartMode)
	cfg.AutoAdjustParams = envBool("AUTO_ADJUST_PARAMS", cfg.AutoAdjustParams)
	if v := envInt("ANALYSIS_INTERVAL", 0); v > 0 {
		cfg.AnalysisInterval = time.Duration(v) * time.Second
	}
	cfg.BaseAmountPerGrid = envFloat("BASE_AMOUNT_PER_GRID", cfg.BaseAmountPerGrid)

	cfg.TotalCapital = envFloat("TOTAL_CAPITAL", cfg.TotalCapital)
	cfg.MaxPositionRatio = envFloat("MAX_POSITION_RATIO", cfg.MaxPositionRatio)
	cfg.MinPositionRatio = envFloat("MIN_POSITION_RATIO", cfg.MinPositionRatio)

	if v := envInt("CHECK_INTERVAL", 0); v > 0 {
		cfg.CheckInterval = time.Duration(v) * time.Second
	}
	cfg.StateDir = envStr("STATE_DIR", cfg.StateDir)
	cfg.DBPath = envStr("DB_PATH", cfg.DBPath)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.EnableWS = envBool("ENABLE_WS", cfg.EnableWS)
	cfg.APIServerPort = envInt("API_SERVER_PORT", cfg.APIServerPort)
	cfg.EnableAPI = envBool("ENABLE_API", cfg.EnableAPI)
	cfg.TelegramToken = envStr("TELEGRAM_BOT_TOKEN", "")
	if v := envStr("TELEGRAM_CHAT_ID", ""); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	global = cfg
}

// Get returns the global configuration
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}

// Validate checks the configuration and fails fast on invalid grid setup.
// The grid ledger is never built from an invalid config.
func (c *Config) Validate() error {
	if c.GridUpperPrice <= c.GridLowerPrice {
		return fmt.Errorf("grid upper price %.2f must be greater than lower price %.2f",
			c.GridUpperPrice, c.GridLowerPrice)
	}
	if c.GridCount <= 0 {
		return fmt.Errorf("grid count must be positive, got %d", c.GridCount)
	}
	if c.AmountPerGrid <= 0 {
		return fmt.Errorf("amount per grid must be positive, got %.2f", c.AmountPerGrid)
	}
	// A spacing narrower than the round-trip fee can never realize profit.
	spacingPct := (c.GridUpperPrice - c.GridLowerPrice) / float64(c.GridCount) / c.GridLowerPrice
	if spacingPct <= 2*c.TradingFeeRate {
		return fmt.Errorf("grid spacing %.4f%% does not cover round-trip fees %.4f%%",
			spacingPct*100, 2*c.TradingFeeRate*100)
	}
	if c.MinProfitRate < 0 || c.TradingFeeRate < 0 {
		return fmt.Errorf("fee and profit rates must be non-negative")
	}
	if c.MaxPositionGrids <= 0 {
		return fmt.Errorf("max position grids must be positive, got %d", c.MaxPositionGrids)
	}
	if c.MinPositionRatio < 0 || c.MaxPositionRatio > 1 || c.MinPositionRatio > c.MaxPositionRatio {
		return fmt.Errorf("position ratio bounds invalid: [%.2f, %.2f]", c.MinPositionRatio, c.MaxPositionRatio)
	}
	switch c.Exchange {
	case "okx", "binance":
	default:
		return fmt.Errorf("unsupported exchange: %s", c.Exchange)
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}
