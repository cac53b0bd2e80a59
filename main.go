package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridbot/api"
	"gridbot/config"
	"gridbot/decision"
	"gridbot/logger"
	"gridbot/market"
	"gridbot/notify"
	"gridbot/provider"
	"gridbot/store"
	"gridbot/trader"
)

func main() {
	// .env is optional; environment variables win either way.
	if err := godotenv.Load(); err == nil {
		logger.Info("📄 loaded configuration from .env")
	}

	config.Init()
	cfg := config.Get()
	logger.Init(cfg.LogLevel)

	logger.Info("🚀 ===== Grid Trading Bot =====")
	logger.Infof("  symbol: %s, exchange: %s", cfg.Symbol, cfg.Exchange)
	logger.Infof("  grid: %.2f - %.2f, %d levels, %.2f per grid",
		cfg.GridLowerPrice, cfg.GridUpperPrice, cfg.GridCount, cfg.AmountPerGrid)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("❌ invalid configuration: %v", err)
	}
	if cfg.AnalyzeOnly {
		logger.Warn("⚠️  ANALYZE_ONLY is set, no orders will be placed")
	}

	exchange, err := buildExchange(cfg)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}

	// Preflight: the exchange must answer before the engine starts.
	ticker, err := exchange.Ticker(cfg.Symbol)
	if err != nil {
		logger.Fatalf("❌ preflight ticker check failed: %v", err)
	}
	logger.Infof("✅ %s connected, %s at %.2f", exchange.Name(), cfg.Symbol, ticker.Last)

	snapshots, err := store.NewSnapshotStore(cfg.StateDir)
	if err != nil {
		logger.Fatalf("❌ failed to open state dir: %v", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("❌ failed to open database: %v", err)
	}
	defer db.Close()

	ledger, err := trader.NewGridLedger(trader.GridConfig{
		Symbol:                 cfg.Symbol,
		UpperPrice:             cfg.GridUpperPrice,
		LowerPrice:             cfg.GridLowerPrice,
		GridCount:              cfg.GridCount,
		AmountPerGrid:          cfg.AmountPerGrid,
		StopLossPrice:          cfg.StopLossPrice,
		FeeRate:                cfg.TradingFeeRate,
		MinProfitRate:          cfg.MinProfitRate,
		MaxPositionGrids:       cfg.MaxPositionGrids,
		MaxConsecutiveStopLoss: cfg.MaxConsecutiveStopLoss,
	})
	if err != nil {
		logger.Fatalf("❌ failed to build grid: %v", err)
	}

	risk := trader.NewRiskController(trader.RiskLimits{
		MaxDrawdownPercent:   cfg.MaxDrawdownPercent,
		DailyLossLimit:       cfg.DailyLossLimit,
		MaxPositionValue:     cfg.MaxPositionValue,
		PriceDropAlert:       cfg.PriceDropAlert,
		PriceSpikeAlert:      cfg.PriceSpikeAlert,
		ConsecutiveLossLimit: cfg.ConsecutiveLossLimit,
	})

	// Seed risk equity from the actual quote balance when available.
	initialEquity := cfg.TotalCapital
	if balance, err := exchange.Balance(quoteOf(cfg.Symbol)); err == nil && balance.Available > 0 {
		initialEquity = balance.Available
	}
	risk.Initialize(initialEquity)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warnf("⚠️  telegram notifier disabled: %v", err)
		} else {
			notifier = tg
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stream trader.PriceStream
	if cfg.EnableWS {
		monitor := market.NewTickerMonitor(cfg.Symbol)
		go monitor.Run(ctx)
		stream = monitor
	}

	engine := trader.NewEngine(trader.EngineOptions{
		Config:    cfg,
		Exchange:  exchange,
		Ledger:    ledger,
		Risk:      risk,
		Regime:    decision.NewRegimeAnalyzer(cfg.BaseAmountPerGrid),
		Position:  decision.NewPositionManager(cfg.TotalCapital, cfg.MinPositionRatio, cfg.MaxPositionRatio),
		Sentiment: provider.NewSentimentProvider(),
		Snapshots: snapshots,
		DB:        db,
		Notifier:  notifier,
		Stream:    stream,
	})

	if err := engine.Restore(); err != nil {
		logger.Fatalf("❌ failed to restore state: %v", err)
	}

	var server *api.Server
	if cfg.EnableAPI {
		server = api.NewServer(engine, db, cfg.APIServerPort)
		server.Start()
	}

	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("🔄 shutdown signal received, finishing current tick...")

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("⚠️  engine did not stop in time")
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("⚠️  API server shutdown: %v", err)
		}
	}
	logger.Info("✅ shutdown complete")
}

func buildExchange(cfg *config.Config) (trader.Exchange, error) {
	switch cfg.Exchange {
	case "okx":
		if cfg.OKXAPIKey == "" || cfg.OKXSecretKey == "" || cfg.OKXPassphrase == "" {
			return nil, fmt.Errorf("OKX credentials missing (OKX_API_KEY, OKX_SECRET_KEY, OKX_PASSPHRASE)")
		}
		return trader.NewOKXTrader(cfg.OKXAPIKey, cfg.OKXSecretKey, cfg.OKXPassphrase,
			cfg.UseSimulated, cfg.AnalyzeOnly), nil
	case "binance":
		if cfg.BinanceAPIKey == "" || cfg.BinanceSecret == "" {
			return nil, fmt.Errorf("Binance credentials missing (BINANCE_API_KEY, BINANCE_SECRET_KEY)")
		}
		return trader.NewBinanceTrader(cfg.BinanceAPIKey, cfg.BinanceSecret,
			cfg.UseSimulated, cfg.AnalyzeOnly), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", cfg.Exchange)
	}
}

func quoteOf(symbol string) string {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '-' {
			return symbol[i+1:]
		}
	}
	return "USDT"
}
