package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"gridbot/logger"
)

// Store owns the SQLite handle and hands out lazily built sub-stores.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	trades *TradeStore
	events *EventStore
}

// Open opens (or creates) the database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Infof("✅ database ready at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			grid_level INTEGER NOT NULL,
			price REAL NOT NULL,
			size REAL NOT NULL,
			notional REAL NOT NULL,
			profit REAL NOT NULL DEFAULT 0,
			order_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			kind TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, created_at)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Trades returns the trade history sub-store.
func (s *Store) Trades() *TradeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trades == nil {
		s.trades = &TradeStore{db: s.db}
	}
	return s.trades
}

// Events returns the event log sub-store.
func (s *Store) Events() *EventStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		s.events = &EventStore{db: s.db}
	}
	return s.events
}
