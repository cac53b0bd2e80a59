package trader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gridbot/config"
	"gridbot/decision"
	"gridbot/logger"
	"gridbot/market"
	"gridbot/notify"
	"gridbot/provider"
	"gridbot/store"
)

const (
	gridSnapshotName = "grid_state"
	riskSnapshotName = "risk_state"

	maxConsecutiveErrors = 5
	errorPauseDuration   = 60 * time.Second
	fillQueryDelay       = time.Second
)

// PriceStream supplies live prices pushed outside the REST poll cycle,
// typically a websocket ticker monitor.
type PriceStream interface {
	Latest() (price float64, at time.Time)
}

// Engine drives the trading loop: one goroutine ticks on the configured
// interval, running risk assessment, signal evaluation, and execution in
// that order. All state mutations persist synchronously before the next
// tick.
type Engine struct {
	cfg       *config.Config
	exchange  Exchange
	ledger    *GridLedger
	risk      *RiskController
	regime    *decision.RegimeAnalyzer
	position  *decision.PositionManager
	sentiment *provider.SentimentProvider
	snapshots *store.SnapshotStore
	db        *store.Store
	notifier  notify.Notifier
	stream    PriceStream

	// sleep is injectable so tests skip the fill-query delay.
	sleep func(time.Duration)

	mu                sync.Mutex
	lastAnalysis      time.Time
	latestAssessment  *decision.Assessment
	latestRisk        *RiskAssessment
	consecutiveErrors int
	analysisPaused    bool
}

// EngineOptions collects the engine's collaborators.
type EngineOptions struct {
	Config    *config.Config
	Exchange  Exchange
	Ledger    *GridLedger
	Risk      *RiskController
	Regime    *decision.RegimeAnalyzer
	Position  *decision.PositionManager
	Sentiment *provider.SentimentProvider
	Snapshots *store.SnapshotStore
	DB        *store.Store
	Notifier  notify.Notifier
	Stream    PriceStream
}

// NewEngine wires the engine. Notifier defaults to a no-op; Sentiment, DB,
// Regime, and Position may be nil, which disables the smart analysis path.
func NewEngine(opts EngineOptions) *Engine {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		cfg:       opts.Config,
		exchange:  opts.Exchange,
		ledger:    opts.Ledger,
		risk:      opts.Risk,
		regime:    opts.Regime,
		position:  opts.Position,
		sentiment: opts.Sentiment,
		snapshots: opts.Snapshots,
		db:        opts.DB,
		notifier:  notifier,
		stream:    opts.Stream,
		sleep:     time.Sleep,
	}
}

// Restore loads persisted ledger and risk state, then reconciles the local
// position against the exchange. A mismatch logs a blocking warning but
// never overwrites local state.
func (e *Engine) Restore() error {
	var gridState GridState
	found, err := e.snapshots.Load(gridSnapshotName, &gridState)
	if err != nil {
		return fmt.Errorf("failed to load grid state: %w", err)
	}
	if found {
		e.ledger.RestoreState(gridState)
	}

	var riskState RiskState
	found, err = e.snapshots.Load(riskSnapshotName, &riskState)
	if err != nil {
		return fmt.Errorf("failed to load risk state: %w", err)
	}
	if found {
		e.risk.RestoreState(riskState)
	}

	base := baseCurrency(e.cfg.Symbol)
	balance, err := e.exchange.Balance(base)
	if err != nil {
		logger.Warnf("⚠️  could not fetch %s balance for reconciliation: %v", base, err)
		return nil
	}
	if !e.ledger.Reconcile(balance.Available + balance.Frozen) {
		e.recordEvent("reconcile_mismatch", fmt.Sprintf(
			"local %.6f vs exchange %.6f", e.ledger.HeldSize(), balance.Available+balance.Frozen))
	}
	return nil
}

// baseCurrency extracts the base leg from a dash symbol, ETH-USDT -> ETH.
func baseCurrency(symbol string) string {
	if i := strings.Index(symbol, "-"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// Run ticks until the context is cancelled. The current tick always
// finishes before shutdown; persistence happens inside the tick.
func (e *Engine) Run(ctx context.Context) {
	logger.Infof("🚀 engine started: %s every %v", e.cfg.Symbol, e.cfg.CheckInterval)

	if e.smartEnabled() {
		e.runAnalysis()
	}

	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("🔄 engine stopping, final state persisted")
			e.persist()
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) smartEnabled() bool {
	return e.cfg.SmartMode && e.regime != nil && e.position != nil
}

// tick runs one full cycle: refresh analysis when due, fetch the price,
// and trade on it. Consecutive failures beyond the limit pause the loop.
func (e *Engine) tick() {
	if e.smartEnabled() && time.Since(e.lastAnalysisTime()) >= e.cfg.AnalysisInterval {
		e.runAnalysis()
	}

	price, ok := e.streamPrice()
	if !ok {
		ticker, err := e.exchange.Ticker(e.cfg.Symbol)
		if err != nil {
			e.handleTickError(fmt.Errorf("ticker fetch failed: %w", err))
			return
		}
		price = ticker.Last
	}

	if err := e.CheckAndTrade(price); err != nil {
		e.handleTickError(err)
		return
	}

	e.mu.Lock()
	e.consecutiveErrors = 0
	e.mu.Unlock()
}

func (e *Engine) handleTickError(err error) {
	e.mu.Lock()
	e.consecutiveErrors++
	count := e.consecutiveErrors
	e.mu.Unlock()

	logger.Errorf("❌ tick failed (%d/%d): %v", count, maxConsecutiveErrors, err)
	if count >= maxConsecutiveErrors {
		logger.Errorf("❌ %d consecutive failures, pausing for %v", count, errorPauseDuration)
		e.notifier.Send(notify.LevelError, "Engine paused",
			fmt.Sprintf("%d consecutive errors, last: %v", count, err))
		e.sleep(errorPauseDuration)
		e.mu.Lock()
		e.consecutiveErrors = 0
		e.mu.Unlock()
	}
}

// streamPrice returns the live stream price when it is fresher than one
// check interval; otherwise the caller falls back to the REST ticker.
func (e *Engine) streamPrice() (float64, bool) {
	if e.stream == nil {
		return 0, false
	}
	price, at := e.stream.Latest()
	if price <= 0 || time.Since(at) > e.cfg.CheckInterval {
		return 0, false
	}
	return price, true
}

func (e *Engine) lastAnalysisTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAnalysis
}

// CheckAndTrade evaluates one price tick: risk gate first, then the ledger
// signal, then execution. An analysis pause suppresses new buys only; exits
// and stop-loss liquidation still run. Every mutation persists before
// returning.
func (e *Engine) CheckAndTrade(price float64) error {
	positionValue := e.ledger.PositionValue(price)
	totalValue := positionValue
	if balance, err := e.exchange.Balance(quoteCurrency(e.cfg.Symbol)); err == nil {
		totalValue += balance.Available
	}
	e.risk.UpdateValue(totalValue)

	assessment := e.risk.Assess(totalValue, price, positionValue)
	e.mu.Lock()
	e.latestRisk = &assessment
	e.mu.Unlock()

	if !assessment.ShouldTrade {
		logger.Warnf("⚠️  [Engine] risk gate closed: %s (%s)", assessment.Action, assessment.PauseReason)
		e.persist()
		return nil
	}

	signal := e.ledger.Evaluate(price)
	switch signal.Action {
	case ActionBuy:
		if e.analysisBlocked() {
			logger.Debugf("[Engine] analysis verdict suppresses buy at %.2f", price)
			return nil
		}
		return e.executeBuy(signal)
	case ActionSell:
		return e.executeSell(signal)
	case ActionStopLoss:
		return e.executeStopLoss(signal)
	default:
		logger.Debugf("[Engine] hold: %s", signal.Reason)
		return nil
	}
}

func (e *Engine) analysisBlocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analysisPaused
}

func quoteCurrency(symbol string) string {
	if i := strings.Index(symbol, "-"); i >= 0 && i+1 < len(symbol) {
		return symbol[i+1:]
	}
	return "USDT"
}

// executeBuy places the market buy, waits briefly, then queries the fill.
// When the detail query fails the fill is estimated from the request, a
// known source of drift corrected at the next reconciliation.
func (e *Engine) executeBuy(signal Signal) error {
	logger.Infof("[Engine] buying level %d, notional %.2f at ~%.2f", signal.Level, signal.Notional, signal.Price)

	order, err := e.exchange.MarketBuy(e.cfg.Symbol, signal.Notional)
	if err != nil {
		return fmt.Errorf("buy execution failed: %w", err)
	}

	e.sleep(fillQueryDelay)

	fillPrice := signal.Price
	fillSize := signal.Notional / signal.Price
	detail, err := e.exchange.OrderDetail(e.cfg.Symbol, order.OrderID)
	if err != nil || detail == nil {
		logger.Warnf("⚠️  order detail unavailable, using estimated fill %.6f @ %.2f", fillSize, fillPrice)
	} else {
		switch detail.State {
		case "filled":
			fillPrice = detail.AvgPrice
			fillSize = detail.FillSize
		case "partially_filled":
			if detail.FillSize <= 0 {
				return fmt.Errorf("buy order %s partially filled with zero size", order.OrderID)
			}
			logger.Warnf("⚠️  buy partially filled: %.6f of ~%.6f", detail.FillSize, fillSize)
			fillPrice = detail.AvgPrice
			fillSize = detail.FillSize
		default:
			return fmt.Errorf("buy order %s in unexpected state %q", order.OrderID, detail.State)
		}
	}

	if err := e.ledger.ApplyBuy(signal.Level, fillPrice, fillSize, order.OrderID); err != nil {
		return fmt.Errorf("failed to record buy: %w", err)
	}
	e.persist()
	e.recordTrade("buy", signal.Level, fillPrice, fillSize, fillPrice*fillSize, 0, order.OrderID)
	e.notifier.Send(notify.LevelInfo, "Buy filled",
		fmt.Sprintf("%s level %d: %.6f @ %.2f", e.cfg.Symbol, signal.Level, fillSize, fillPrice))
	return nil
}

// executeSell places the market sell and settles the level's round trip.
func (e *Engine) executeSell(signal Signal) error {
	logger.Infof("[Engine] selling level %d, size %.6f at ~%.2f", signal.Level, signal.Size, signal.Price)

	order, err := e.exchange.MarketSell(e.cfg.Symbol, signal.Size)
	if err != nil {
		return fmt.Errorf("sell execution failed: %w", err)
	}

	netProfit, err := e.ledger.ApplySell(signal.Level, signal.Price)
	if err != nil {
		return fmt.Errorf("failed to record sell: %w", err)
	}
	e.risk.RecordTrade(netProfit)
	e.persist()
	e.recordTrade("sell", signal.Level, signal.Price, signal.Size, signal.Price*signal.Size, netProfit, order.OrderID)
	e.notifier.Send(notify.LevelInfo, "Sell filled",
		fmt.Sprintf("%s level %d: %.6f @ %.2f, net %.4f", e.cfg.Symbol, signal.Level, signal.Size, signal.Price, netProfit))
	return nil
}

// executeStopLoss liquidates everything held and clears the ledger. The
// halt decision already happened inside Evaluate.
func (e *Engine) executeStopLoss(signal Signal) error {
	logger.Warnf("🛑 [Engine] stop loss at %.2f, liquidating %.6f", signal.Price, signal.Size)
	e.notifier.Send(notify.LevelCritical, "Stop loss triggered",
		fmt.Sprintf("%s at %.2f: %s", e.cfg.Symbol, signal.Price, signal.Reason))

	if signal.Size > 0 {
		order, err := e.exchange.MarketSell(e.cfg.Symbol, signal.Size)
		if err != nil {
			e.persist()
			return fmt.Errorf("stop loss liquidation failed: %w", err)
		}
		e.ledger.ClearPositions()
		e.recordTrade("stop_loss", -1, signal.Price, signal.Size, signal.Price*signal.Size, 0, order.OrderID)
	}
	e.persist()

	if halted, reason := e.ledger.Halted(); halted {
		e.recordEvent("halt", reason)
		e.notifier.Send(notify.LevelCritical, "Strategy halted", reason)
	}
	return nil
}

// runAnalysis refreshes the market assessment and, when auto-adjustment is
// on, applies the suggested grid parameters.
func (e *Engine) runAnalysis() {
	logger.Info("🔄 ===== Market Analysis =====")

	candles, err := e.exchange.Candles(e.cfg.Symbol, "1H", 100)
	if err != nil {
		logger.Warnf("⚠️  analysis skipped, candle fetch failed: %v", err)
		return
	}

	var snap *market.SentimentSnapshot
	if e.sentiment != nil {
		snap = e.sentiment.Snapshot(e.cfg.Symbol+"-SWAP", baseCurrency(e.cfg.Symbol))
	}

	assessment := e.regime.Analyze(e.cfg.Symbol, candles, snap)
	for _, w := range assessment.Warnings {
		logger.Warnf("⚠️  %s", w)
	}

	e.mu.Lock()
	e.latestAssessment = assessment
	e.lastAnalysis = time.Now()
	wasPaused := e.analysisPaused
	e.analysisPaused = !assessment.ShouldTrade
	riskScore := 0
	if e.latestRisk != nil {
		riskScore = e.latestRisk.Score
	}
	e.mu.Unlock()

	if !assessment.ShouldTrade {
		if !wasPaused {
			e.recordEvent("analysis_pause", fmt.Sprintf("environment %s, score %d",
				assessment.Environment, assessment.Score))
			e.notifier.Send(notify.LevelWarning, "Trading paused by analysis",
				fmt.Sprintf("environment %s (score %d)", assessment.Environment, assessment.Score))
		}
		return
	}
	if wasPaused {
		e.recordEvent("analysis_resume", fmt.Sprintf("environment %s, score %d",
			assessment.Environment, assessment.Score))
	}

	posDecision := e.position.Decide(assessment.RecommendedPosition, assessment.Score, riskScore)

	if e.cfg.AutoAdjustParams && assessment.GridParams != nil {
		params := assessment.GridParams
		amount := e.cfg.BaseAmountPerGrid * posDecision.TargetRatio
		if amount <= 0 {
			amount = params.AmountPerGrid
		}
		old := e.ledger.Config()
		if err := e.ledger.Reconfigure(params.UpperPrice, params.LowerPrice, params.GridCount, amount); err != nil {
			logger.Warnf("⚠️  failed to apply suggested grid params: %v", err)
			return
		}
		e.persist()
		e.recordEvent("params_adjusted", fmt.Sprintf(
			"range %.2f-%.2f -> %.2f-%.2f, grids %d -> %d",
			old.LowerPrice, old.UpperPrice, params.LowerPrice, params.UpperPrice,
			old.GridCount, params.GridCount))
	}
}

// persist writes both snapshots synchronously. Failures are logged; the
// engine keeps trading on in-memory state.
func (e *Engine) persist() {
	if err := e.snapshots.Save(gridSnapshotName, e.ledger.State()); err != nil {
		logger.Errorf("❌ failed to persist grid state: %v", err)
	}
	if err := e.snapshots.Save(riskSnapshotName, e.risk.State()); err != nil {
		logger.Errorf("❌ failed to persist risk state: %v", err)
	}
}

func (e *Engine) recordTrade(side string, level int, price, size, notional, profit float64, orderID string) {
	if e.db == nil {
		return
	}
	err := e.db.Trades().Insert(&store.TradeRecord{
		Symbol:    e.cfg.Symbol,
		Side:      side,
		GridLevel: level,
		Price:     price,
		Size:      size,
		Notional:  notional,
		Profit:    profit,
		OrderID:   orderID,
	})
	if err != nil {
		logger.Warnf("⚠️  failed to record trade: %v", err)
	}
}

func (e *Engine) recordEvent(kind, message string) {
	if e.db == nil {
		return
	}
	if err := e.db.Events().Insert(kind, message); err != nil {
		logger.Warnf("⚠️  failed to record event: %v", err)
	}
}

// Resume clears both the ledger halt and the risk pause after operator
// review, then persists.
func (e *Engine) Resume() {
	e.ledger.Resume()
	e.risk.Resume()
	e.persist()
	e.recordEvent("resume", "manual resume")
	e.notifier.Send(notify.LevelInfo, "Trading resumed", "manual resume confirmed")
}

// Ledger exposes the grid ledger for read-only API use.
func (e *Engine) Ledger() *GridLedger { return e.ledger }

// Risk exposes the risk controller for read-only API use.
func (e *Engine) Risk() *RiskController { return e.risk }

// LatestAssessment returns the most recent market analysis, nil before the
// first run.
func (e *Engine) LatestAssessment() *decision.Assessment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latestAssessment
}

// LatestRisk returns the most recent risk assessment, nil before the first
// tick.
func (e *Engine) LatestRisk() *RiskAssessment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latestRisk
}
