package trader

import (
	"fmt"
	"sync"
	"time"

	"gridbot/logger"
)

// GridConfig is the static grid layout and trading rules.
type GridConfig struct {
	Symbol           string  `json:"symbol"`
	UpperPrice       float64 `json:"upper_price"`
	LowerPrice       float64 `json:"lower_price"`
	GridCount        int     `json:"grid_count"`
	AmountPerGrid    float64 `json:"amount_per_grid"` // quote notional per buy
	StopLossPrice    float64 `json:"stop_loss_price"`
	FeeRate          float64 `json:"fee_rate"`
	MinProfitRate    float64 `json:"min_profit_rate"`
	MaxPositionGrids int     `json:"max_position_grids"`
	// MaxConsecutiveStopLoss defaults to 3 when unset.
	MaxConsecutiveStopLoss int `json:"max_consecutive_stop_loss"`
}

// GridLevel is one rung of the ladder. Only the ledger mutates it.
type GridLevel struct {
	Index     int       `json:"index"`
	Trigger   float64   `json:"price"`
	Filled    bool      `json:"is_bought"`
	BuyPrice  float64   `json:"buy_price"`
	BuyAmount float64   `json:"buy_amount"` // base size
	BuyTime   time.Time `json:"buy_time,omitempty"`
	OrderID   string    `json:"order_id"`
}

// Action is the ledger's verdict for one tick.
type Action string

const (
	ActionHold     Action = "hold"
	ActionBuy      Action = "buy"
	ActionSell     Action = "sell"
	ActionStopLoss Action = "stop_loss"
)

// Signal is the trade candidate the ledger emits for a price tick.
type Signal struct {
	Action   Action  `json:"action"`
	Level    int     `json:"level"`
	Price    float64 `json:"price"`
	Notional float64 `json:"notional,omitempty"` // quote amount for buys
	Size     float64 `json:"size,omitempty"`     // base amount for sells
	Reason   string  `json:"reason"`
}

// GridState is the persisted ledger document.
type GridState struct {
	Levels              []GridLevel `json:"levels"`
	TotalProfit         float64     `json:"total_profit"`
	TradeCount          int         `json:"trade_count"`
	ConsecutiveStopLoss int         `json:"consecutive_stop_loss"`
	Halted              bool        `json:"halted"`
	HaltReason          string      `json:"halt_reason"`
}

const defaultMaxConsecutiveStopLoss = 3

// GridLedger owns the grid levels and their occupancy. It decides trade
// candidates but never talks to an exchange; the engine executes signals
// and reports fills back via ApplyBuy/ApplySell.
type GridLedger struct {
	mu  sync.Mutex
	cfg GridConfig

	levels              []GridLevel
	totalProfit         float64
	tradeCount          int
	consecutiveStopLoss int
	halted              bool
	haltReason          string
}

// NewGridLedger builds the ladder: GridCount+1 levels with trigger prices
// from LowerPrice to UpperPrice inclusive.
func NewGridLedger(cfg GridConfig) (*GridLedger, error) {
	if cfg.UpperPrice <= cfg.LowerPrice {
		return nil, fmt.Errorf("upper price %.2f must exceed lower price %.2f", cfg.UpperPrice, cfg.LowerPrice)
	}
	if cfg.GridCount <= 0 {
		return nil, fmt.Errorf("grid count must be positive, got %d", cfg.GridCount)
	}
	if cfg.MaxConsecutiveStopLoss <= 0 {
		cfg.MaxConsecutiveStopLoss = defaultMaxConsecutiveStopLoss
	}

	g := &GridLedger{cfg: cfg}
	g.initLevels()

	logger.Infof("[Grid] initialized: %.2f - %.2f, %d grids, spacing %.2f",
		cfg.LowerPrice, cfg.UpperPrice, cfg.GridCount, g.Spacing())
	return g, nil
}

func (g *GridLedger) initLevels() {
	spacing := (g.cfg.UpperPrice - g.cfg.LowerPrice) / float64(g.cfg.GridCount)
	g.levels = make([]GridLevel, g.cfg.GridCount+1)
	for i := range g.levels {
		g.levels[i] = GridLevel{
			Index:   i,
			Trigger: g.cfg.LowerPrice + float64(i)*spacing,
		}
	}
}

// Spacing returns the price distance between adjacent levels.
func (g *GridLedger) Spacing() float64 {
	return (g.cfg.UpperPrice - g.cfg.LowerPrice) / float64(g.cfg.GridCount)
}

// Config returns a copy of the current grid configuration.
func (g *GridLedger) Config() GridConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// IndexFor maps a price to its grid index: 0 at or below the lower bound,
// GridCount at or above the upper bound, floor division in between.
func (g *GridLedger) IndexFor(price float64) int {
	if price <= g.cfg.LowerPrice {
		return 0
	}
	if price >= g.cfg.UpperPrice {
		return g.cfg.GridCount
	}
	idx := int((price - g.cfg.LowerPrice) / g.Spacing())
	if idx > g.cfg.GridCount {
		idx = g.cfg.GridCount
	}
	return idx
}

// FilledCount returns the number of occupied levels.
func (g *GridLedger) FilledCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filledCountLocked()
}

func (g *GridLedger) filledCountLocked() int {
	count := 0
	for i := range g.levels {
		if g.levels[i].Filled {
			count++
		}
	}
	return count
}

// HeldSize returns the total base size held across occupied levels.
func (g *GridLedger) HeldSize() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.heldSizeLocked()
}

func (g *GridLedger) heldSizeLocked() float64 {
	total := 0.0
	for i := range g.levels {
		if g.levels[i].Filled {
			total += g.levels[i].BuyAmount
		}
	}
	return total
}

// PositionValue returns the quote value of held levels at the given price.
func (g *GridLedger) PositionValue(price float64) float64 {
	return g.HeldSize() * price
}

// Evaluate decides the trade candidate for one price tick. It mutates only
// the stop-loss bookkeeping; buy/sell fills are applied separately after
// execution succeeds.
func (g *GridLedger) Evaluate(price float64) Signal {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.halted {
		return Signal{Action: ActionHold, Price: price,
			Reason: fmt.Sprintf("strategy halted: %s", g.haltReason)}
	}

	if price <= g.cfg.StopLossPrice {
		g.consecutiveStopLoss++
		logger.Warnf("⚠️  stop loss triggered at %.2f (%d/%d)",
			price, g.consecutiveStopLoss, g.cfg.MaxConsecutiveStopLoss)
		if g.consecutiveStopLoss >= g.cfg.MaxConsecutiveStopLoss {
			g.halted = true
			g.haltReason = fmt.Sprintf("%d consecutive stop losses, manual resume required", g.cfg.MaxConsecutiveStopLoss)
			logger.Errorf("❌ strategy halted: %s", g.haltReason)
		}
		return Signal{
			Action: ActionStopLoss,
			Price:  price,
			Size:   g.heldSizeLocked(),
			Reason: fmt.Sprintf("price %.2f at or below stop loss %.2f (%d/%d)",
				price, g.cfg.StopLossPrice, g.consecutiveStopLoss, g.cfg.MaxConsecutiveStopLoss),
		}
	}

	if price > g.cfg.UpperPrice {
		return Signal{Action: ActionHold, Price: price,
			Reason: fmt.Sprintf("price %.2f above upper bound %.2f", price, g.cfg.UpperPrice)}
	}
	if price < g.cfg.LowerPrice {
		return Signal{Action: ActionHold, Price: price,
			Reason: fmt.Sprintf("price %.2f below lower bound %.2f", price, g.cfg.LowerPrice)}
	}

	idx := g.IndexFor(price)

	// Buy scan: first empty level at or below the current index. The
	// position cap suppresses buys but still lets the sell scan run.
	if g.filledCountLocked() < g.cfg.MaxPositionGrids {
		for i := idx; i >= 0; i-- {
			if !g.levels[i].Filled {
				return Signal{
					Action:   ActionBuy,
					Level:    i,
					Price:    price,
					Notional: g.cfg.AmountPerGrid,
					Reason:   fmt.Sprintf("level %d empty, trigger %.2f", i, g.levels[i].Trigger),
				}
			}
		}
	}

	// Sell scan: first occupied level whose trigger the price has cleared
	// and whose fill has reached the minimum profit.
	for i := 0; i <= g.cfg.GridCount; i++ {
		lv := &g.levels[i]
		if !lv.Filled {
			continue
		}
		minSellPrice := lv.BuyPrice * (1 + g.cfg.MinProfitRate)
		if price >= lv.Trigger && price >= minSellPrice {
			return Signal{
				Action: ActionSell,
				Level:  i,
				Price:  price,
				Size:   lv.BuyAmount,
				Reason: fmt.Sprintf("level %d bought at %.2f, min sell %.2f", i, lv.BuyPrice, minSellPrice),
			}
		}
		if price >= lv.Trigger && price < minSellPrice {
			logger.Debugf("[Grid] level %d at trigger but below min profit (price %.2f, need %.2f)",
				i, price, minSellPrice)
		}
	}

	return Signal{Action: ActionHold, Price: price, Reason: "no trade signal"}
}

// ApplyBuy records a filled buy on a level.
func (g *GridLedger) ApplyBuy(level int, price, size float64, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if level < 0 || level >= len(g.levels) {
		return fmt.Errorf("level %d out of range", level)
	}
	lv := &g.levels[level]
	if lv.Filled {
		return fmt.Errorf("level %d already occupied", level)
	}

	lv.Filled = true
	lv.BuyPrice = price
	lv.BuyAmount = size
	lv.BuyTime = time.Now()
	lv.OrderID = orderID
	g.tradeCount++

	logger.Infof("✅ [Grid] buy level %d: %.6f @ %.2f", level, size, price)
	return nil
}

// ApplySell records a filled sell, computes the net profit after round-trip
// fees, and clears the level. A profitable sell resets the stop-loss streak.
func (g *GridLedger) ApplySell(level int, sellPrice float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if level < 0 || level >= len(g.levels) {
		return 0, fmt.Errorf("level %d out of range", level)
	}
	lv := &g.levels[level]
	if !lv.Filled {
		return 0, fmt.Errorf("level %d not occupied", level)
	}

	sellValue := lv.BuyAmount * sellPrice
	buyValue := lv.BuyAmount * lv.BuyPrice
	buyFee := buyValue * g.cfg.FeeRate
	sellFee := sellValue * g.cfg.FeeRate

	grossProfit := sellValue - buyValue
	netProfit := grossProfit - buyFee - sellFee

	g.totalProfit += netProfit
	g.tradeCount++
	if netProfit > 0 {
		g.consecutiveStopLoss = 0
	}

	logger.Infof("✅ [Grid] sell level %d: %.6f @ %.2f, gross %.4f, fees %.4f, net %.4f (total %.4f)",
		level, lv.BuyAmount, sellPrice, grossProfit, buyFee+sellFee, netProfit, g.totalProfit)

	lv.Filled = false
	lv.BuyPrice = 0
	lv.BuyAmount = 0
	lv.BuyTime = time.Time{}
	lv.OrderID = ""
	return netProfit, nil
}

// ClearPositions empties every level without touching profit. Used after a
// stop-loss liquidation.
func (g *GridLedger) ClearPositions() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.levels {
		g.levels[i].Filled = false
		g.levels[i].BuyPrice = 0
		g.levels[i].BuyAmount = 0
		g.levels[i].BuyTime = time.Time{}
		g.levels[i].OrderID = ""
	}
}

// Halted reports whether the ledger refuses new trades.
func (g *GridLedger) Halted() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted, g.haltReason
}

// Resume clears the halt and the stop-loss streak. Intended for explicit
// operator action after reviewing market conditions.
func (g *GridLedger) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.halted = false
	g.haltReason = ""
	g.consecutiveStopLoss = 0
	logger.Info("🔄 [Grid] trading resumed")
}

// TotalProfit returns accumulated net profit.
func (g *GridLedger) TotalProfit() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalProfit
}

// TradeCount returns the number of recorded fills.
func (g *GridLedger) TradeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tradeCount
}

// State snapshots the ledger for persistence.
func (g *GridLedger) State() GridState {
	g.mu.Lock()
	defer g.mu.Unlock()

	levels := make([]GridLevel, len(g.levels))
	copy(levels, g.levels)
	return GridState{
		Levels:              levels,
		TotalProfit:         g.totalProfit,
		TradeCount:          g.tradeCount,
		ConsecutiveStopLoss: g.consecutiveStopLoss,
		Halted:              g.halted,
		HaltReason:          g.haltReason,
	}
}

// RestoreState loads a persisted snapshot. Levels are matched by index;
// entries outside the current ladder are dropped.
func (g *GridLedger) RestoreState(state GridState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, saved := range state.Levels {
		if saved.Index < 0 || saved.Index >= len(g.levels) {
			continue
		}
		lv := &g.levels[saved.Index]
		lv.Filled = saved.Filled
		lv.BuyPrice = saved.BuyPrice
		lv.BuyAmount = saved.BuyAmount
		lv.BuyTime = saved.BuyTime
		lv.OrderID = saved.OrderID
	}
	g.totalProfit = state.TotalProfit
	g.tradeCount = state.TradeCount
	g.consecutiveStopLoss = state.ConsecutiveStopLoss
	g.halted = state.Halted
	g.haltReason = state.HaltReason

	logger.Infof("[Grid] state restored: %d filled levels, total profit %.4f",
		g.filledCountLocked(), g.totalProfit)
	if g.halted {
		logger.Warnf("⚠️  [Grid] strategy is halted: %s", g.haltReason)
	}
}

// Reconfigure rebuilds the ladder with new bounds, remapping each held
// position to the nearest unoccupied new level by trigger price. Fill
// prices and sizes are preserved.
func (g *GridLedger) Reconfigure(upper, lower float64, count int, amountPerGrid float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if upper <= lower {
		return fmt.Errorf("upper price %.2f must exceed lower price %.2f", upper, lower)
	}
	if count <= 0 {
		return fmt.Errorf("grid count must be positive, got %d", count)
	}

	type position struct {
		buyPrice  float64
		buyAmount float64
		buyTime   time.Time
		orderID   string
	}
	var held []position
	for i := range g.levels {
		if g.levels[i].Filled {
			held = append(held, position{
				buyPrice:  g.levels[i].BuyPrice,
				buyAmount: g.levels[i].BuyAmount,
				buyTime:   g.levels[i].BuyTime,
				orderID:   g.levels[i].OrderID,
			})
		}
	}

	g.cfg.UpperPrice = upper
	g.cfg.LowerPrice = lower
	g.cfg.GridCount = count
	if amountPerGrid > 0 {
		g.cfg.AmountPerGrid = amountPerGrid
	}
	g.initLevels()

	for _, pos := range held {
		closest := -1
		minDiff := 0.0
		for i := range g.levels {
			if g.levels[i].Filled {
				continue
			}
			diff := g.levels[i].Trigger - pos.buyPrice
			if diff < 0 {
				diff = -diff
			}
			if closest == -1 || diff < minDiff {
				minDiff = diff
				closest = i
			}
		}
		if closest == -1 {
			logger.Warnf("⚠️  [Grid] no free level for position bought at %.2f, dropping from ledger", pos.buyPrice)
			continue
		}
		lv := &g.levels[closest]
		lv.Filled = true
		lv.BuyPrice = pos.buyPrice
		lv.BuyAmount = pos.buyAmount
		lv.BuyTime = pos.buyTime
		lv.OrderID = pos.orderID
	}

	logger.Infof("🔄 [Grid] reconfigured: %.2f - %.2f, %d grids, %d positions remapped",
		lower, upper, count, len(held))
	return nil
}

// Reconcile compares the local held size against the exchange position.
// A mismatch beyond the tolerance is reported for operator review; local
// state is never overwritten.
func (g *GridLedger) Reconcile(exchangeHeld float64) bool {
	local := g.HeldSize()
	diff := local - exchangeHeld
	if diff < 0 {
		diff = -diff
	}
	if diff > 0.0001 {
		logger.Warnf("⚠️  [Grid] position mismatch: local %.6f, exchange %.6f", local, exchangeHeld)
		logger.Warn("⚠️  [Grid] manual review recommended before continuing")
		return false
	}
	logger.Infof("✅ [Grid] position reconciled: %.6f", exchangeHeld)
	return true
}
