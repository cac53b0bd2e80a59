package trader

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gridbot/config"
	"gridbot/market"
	"gridbot/store"
)

// fakeExchange scripts responses for engine tests.
type fakeExchange struct {
	price     float64
	balances  map[string]float64
	detail    *OrderDetail
	detailErr error
	buyErr    error
	sellErr   error

	buys  []float64 // notionals
	sells []float64 // sizes
	seq   int
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) Ticker(symbol string) (*Ticker, error) {
	return &Ticker{Symbol: symbol, Last: f.price}, nil
}

func (f *fakeExchange) Candles(symbol, bar string, limit int) ([]market.Candle, error) {
	return nil, errors.New("no candles")
}

func (f *fakeExchange) Balance(currency string) (*Balance, error) {
	avail, ok := f.balances[currency]
	if !ok {
		return nil, errors.New("no balance")
	}
	return &Balance{Currency: currency, Available: avail}, nil
}

func (f *fakeExchange) MarketBuy(symbol string, notional float64) (*OrderResult, error) {
	if f.buyErr != nil {
		return nil, f.buyErr
	}
	f.buys = append(f.buys, notional)
	f.seq++
	return &OrderResult{OrderID: fmt.Sprintf("ord-%d", f.seq), Submitted: true}, nil
}

func (f *fakeExchange) MarketSell(symbol string, size float64) (*OrderResult, error) {
	if f.sellErr != nil {
		return nil, f.sellErr
	}
	f.sells = append(f.sells, size)
	f.seq++
	return &OrderResult{OrderID: fmt.Sprintf("ord-%d", f.seq), Submitted: true}, nil
}

func (f *fakeExchange) OrderDetail(symbol, orderID string) (*OrderDetail, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail, nil
}

func newTestEngine(t *testing.T, fake *fakeExchange, gridCfg GridConfig) *Engine {
	t.Helper()

	snapshots, err := store.NewSnapshotStore(t.TempDir())
	require.NoError(t, err)

	ledger, err := NewGridLedger(gridCfg)
	require.NoError(t, err)

	risk := NewRiskController(DefaultRiskLimits())
	risk.Initialize(500)

	e := NewEngine(EngineOptions{
		Config: &config.Config{
			Symbol:        "ETH-USDT",
			CheckInterval: time.Second,
		},
		Exchange:  fake,
		Ledger:    ledger,
		Risk:      risk,
		Snapshots: snapshots,
	})
	e.sleep = func(time.Duration) {}
	return e
}

func TestEngineBuyUsesRealFill(t *testing.T) {
	fake := &fakeExchange{
		price:    2950,
		balances: map[string]float64{"USDT": 480},
		detail:   &OrderDetail{State: "filled", FillSize: 0.006771, AvgPrice: 2951.2},
	}
	e := newTestEngine(t, fake, testGridConfig())

	require.NoError(t, e.CheckAndTrade(2950))

	require.Equal(t, []float64{20}, fake.buys)
	state := e.Ledger().State()
	require.True(t, state.Levels[1].Filled)
	require.InDelta(t, 2951.2, state.Levels[1].BuyPrice, 1e-9)
	require.InDelta(t, 0.006771, state.Levels[1].BuyAmount, 1e-9)

	// The fill persisted before CheckAndTrade returned.
	var saved GridState
	found, err := e.snapshots.Load(gridSnapshotName, &saved)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, saved.Levels[1].Filled)
}

func TestEngineBuyEstimatesWhenDetailFails(t *testing.T) {
	fake := &fakeExchange{
		price:     2950,
		balances:  map[string]float64{"USDT": 480},
		detailErr: errors.New("order query timeout"),
	}
	e := newTestEngine(t, fake, testGridConfig())

	require.NoError(t, e.CheckAndTrade(2950))

	state := e.Ledger().State()
	require.True(t, state.Levels[1].Filled)
	require.InDelta(t, 2950.0, state.Levels[1].BuyPrice, 1e-9)
	require.InDelta(t, 20.0/2950, state.Levels[1].BuyAmount, 1e-12)
}

func TestEngineBuyRejectsUnexpectedState(t *testing.T) {
	fake := &fakeExchange{
		price:    2950,
		balances: map[string]float64{"USDT": 480},
		detail:   &OrderDetail{State: "canceled"},
	}
	e := newTestEngine(t, fake, testGridConfig())

	err := e.CheckAndTrade(2950)
	require.Error(t, err)
	require.Equal(t, 0, e.Ledger().FilledCount())
}

func TestEngineSellRecordsProfit(t *testing.T) {
	cfg := testGridConfig()
	cfg.MaxPositionGrids = 1
	fake := &fakeExchange{
		price:    3050,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, cfg)

	size := 20.0 / 2950
	require.NoError(t, e.Ledger().ApplyBuy(1, 2950, size, "ord-0"))

	require.NoError(t, e.CheckAndTrade(3050))

	require.Equal(t, []float64{size}, fake.sells)
	require.Equal(t, 0, e.Ledger().FilledCount())

	want := size*(3050-2950) - cfg.FeeRate*size*(2950+3050)
	require.InDelta(t, want, e.Ledger().TotalProfit(), 1e-9)
	require.InDelta(t, want, e.Risk().State().DailyPnL, 1e-9)
}

func TestEngineStopLossLiquidates(t *testing.T) {
	fake := &fakeExchange{
		price:    2790,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, testGridConfig())

	require.NoError(t, e.Ledger().ApplyBuy(1, 2930, 0.0068, "ord-0"))
	require.NoError(t, e.Ledger().ApplyBuy(3, 2990, 0.0067, "ord-1"))

	require.NoError(t, e.CheckAndTrade(2790))

	require.Len(t, fake.sells, 1)
	require.InDelta(t, 0.0068+0.0067, fake.sells[0], 1e-12)
	require.Equal(t, 0, e.Ledger().FilledCount())
}

func TestEngineRiskGateBlocksTrading(t *testing.T) {
	fake := &fakeExchange{
		price:    2950,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, testGridConfig())

	// Daily loss over the limit plus a full loss streak closes the gate.
	e.Risk().RecordTrade(-60)
	e.Risk().RecordTrade(-1)
	e.Risk().RecordTrade(-1)

	require.NoError(t, e.CheckAndTrade(2950))
	require.Empty(t, fake.buys)
	require.Equal(t, 0, e.Ledger().FilledCount())
}

func TestEngineAnalysisPauseStillRunsStopLoss(t *testing.T) {
	fake := &fakeExchange{
		price:    2790,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, testGridConfig())

	require.NoError(t, e.Ledger().ApplyBuy(1, 2950, 0.0068, "ord-0"))

	e.mu.Lock()
	e.analysisPaused = true
	e.mu.Unlock()

	// The pause must not shield a held position from the stop loss.
	require.NoError(t, e.CheckAndTrade(2790))

	require.Equal(t, []float64{0.0068}, fake.sells)
	require.Equal(t, 0, e.Ledger().FilledCount())
	require.NotNil(t, e.LatestRisk())
}

func TestEngineAnalysisPauseSuppressesBuysOnly(t *testing.T) {
	cfg := testGridConfig()
	cfg.MaxPositionGrids = 1
	fake := &fakeExchange{
		price:    2950,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, cfg)

	e.mu.Lock()
	e.analysisPaused = true
	e.mu.Unlock()

	// No new entries while paused.
	require.NoError(t, e.CheckAndTrade(2950))
	require.Empty(t, fake.buys)
	require.Equal(t, 0, e.Ledger().FilledCount())

	// An existing position still exits at profit.
	size := 20.0 / 2950
	require.NoError(t, e.Ledger().ApplyBuy(1, 2950, size, "ord-0"))
	require.NoError(t, e.CheckAndTrade(3050))
	require.Equal(t, []float64{size}, fake.sells)
	require.Equal(t, 0, e.Ledger().FilledCount())
}

type fakeStream struct {
	price float64
	at    time.Time
}

func (s *fakeStream) Latest() (float64, time.Time) { return s.price, s.at }

func TestEngineTickPrefersFreshStreamPrice(t *testing.T) {
	// REST reports a price above the range; only the stream price buys.
	fake := &fakeExchange{
		price:    3300,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, testGridConfig())
	e.stream = &fakeStream{price: 2950, at: time.Now()}

	e.tick()

	require.Equal(t, []float64{20}, fake.buys)
	require.True(t, e.Ledger().State().Levels[1].Filled)
}

func TestEngineTickFallsBackOnStaleStream(t *testing.T) {
	fake := &fakeExchange{
		price:    2950,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, testGridConfig())
	e.stream = &fakeStream{price: 3300, at: time.Now().Add(-time.Minute)}

	e.tick()

	// The stale stream price is ignored; the REST price at 2950 buys.
	require.Equal(t, []float64{20}, fake.buys)
}

func TestEngineSellFailureKeepsLevel(t *testing.T) {
	cfg := testGridConfig()
	cfg.MaxPositionGrids = 1
	fake := &fakeExchange{
		price:    3050,
		balances: map[string]float64{"USDT": 480},
		sellErr:  errors.New("exchange down"),
	}
	e := newTestEngine(t, fake, cfg)

	size := 20.0 / 2950
	require.NoError(t, e.Ledger().ApplyBuy(1, 2950, size, "ord-0"))

	err := e.CheckAndTrade(3050)
	require.Error(t, err)

	// The level stays filled; nothing was settled.
	require.Equal(t, 1, e.Ledger().FilledCount())
	require.InDelta(t, 0.0, e.Ledger().TotalProfit(), 1e-12)
}

func TestEngineRestoreRoundTrip(t *testing.T) {
	snapshots, err := store.NewSnapshotStore(t.TempDir())
	require.NoError(t, err)

	size := 20.0 / 2950
	fake := &fakeExchange{
		price:    2950,
		balances: map[string]float64{"USDT": 480, "ETH": size},
	}

	build := func() *Engine {
		ledger, err := NewGridLedger(testGridConfig())
		require.NoError(t, err)
		risk := NewRiskController(DefaultRiskLimits())
		risk.Initialize(500)
		e := NewEngine(EngineOptions{
			Config:    &config.Config{Symbol: "ETH-USDT", CheckInterval: time.Second},
			Exchange:  fake,
			Ledger:    ledger,
			Risk:      risk,
			Snapshots: snapshots,
		})
		e.sleep = func(time.Duration) {}
		return e
	}

	first := build()
	require.NoError(t, first.Ledger().ApplyBuy(1, 2950, size, "ord-0"))
	first.Risk().RecordTrade(1.5)
	first.persist()

	second := build()
	require.NoError(t, second.Restore())

	require.Equal(t, 1, second.Ledger().FilledCount())
	require.InDelta(t, size, second.Ledger().HeldSize(), 1e-12)
	require.InDelta(t, 1.5, second.Risk().State().DailyPnL, 1e-9)
}

func TestEnginePausesAfterConsecutiveErrors(t *testing.T) {
	fake := &fakeExchange{
		price:    2950,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, testGridConfig())

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	for i := 0; i < maxConsecutiveErrors-1; i++ {
		e.handleTickError(errors.New("ticker fetch failed"))
	}
	require.Empty(t, slept)

	e.handleTickError(errors.New("ticker fetch failed"))
	require.Equal(t, []time.Duration{errorPauseDuration}, slept)

	// The counter resets after the pause.
	e.handleTickError(errors.New("ticker fetch failed"))
	require.Len(t, slept, 1)
}

func TestEngineResumeClearsHaltAndPause(t *testing.T) {
	fake := &fakeExchange{
		price:    2790,
		balances: map[string]float64{"USDT": 480},
	}
	e := newTestEngine(t, fake, testGridConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, e.CheckAndTrade(2790))
	}
	halted, _ := e.Ledger().Halted()
	require.True(t, halted)

	e.Resume()
	halted, _ = e.Ledger().Halted()
	require.False(t, halted)
	paused, _ := e.Risk().Paused()
	require.False(t, paused)
}
