package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TradeRecord is one executed grid fill.
type TradeRecord struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"` // buy, sell, stop_loss
	GridLevel int       `json:"grid_level"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Notional  float64   `json:"notional"`
	Profit    float64   `json:"profit"`
	OrderID   string    `json:"order_id"`
}

// TradeStore records executed trades.
type TradeStore struct {
	db *sql.DB
}

// Insert appends a trade record.
func (ts *TradeStore) Insert(t *TradeRecord) error {
	_, err := ts.db.Exec(
		`INSERT INTO trades (symbol, side, grid_level, price, size, notional, profit, order_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, t.Side, t.GridLevel, t.Price, t.Size, t.Notional, t.Profit, t.OrderID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// Recent returns the latest trades for a symbol, newest first.
func (ts *TradeStore) Recent(symbol string, limit int) ([]TradeRecord, error) {
	rows, err := ts.db.Query(
		`SELECT id, created_at, symbol, side, grid_level, price, size, notional, profit, COALESCE(order_id, '')
		 FROM trades WHERE symbol = ? ORDER BY id DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.Symbol, &t.Side, &t.GridLevel,
			&t.Price, &t.Size, &t.Notional, &t.Profit, &t.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TotalProfit sums realized profit for a symbol.
func (ts *TradeStore) TotalProfit(symbol string) (float64, error) {
	var total sql.NullFloat64
	err := ts.db.QueryRow(
		`SELECT SUM(profit) FROM trades WHERE symbol = ?`, symbol,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum profit: %w", err)
	}
	return total.Float64, nil
}
