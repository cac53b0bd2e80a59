package store

import (
	"database/sql"
	"fmt"
	"time"
)

// EventRecord is one operational event worth keeping: halts, risk pauses,
// parameter changes, reconciliation warnings.
type EventRecord struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// EventStore records operational events.
type EventStore struct {
	db *sql.DB
}

// Insert appends an event.
func (es *EventStore) Insert(kind, message string) error {
	_, err := es.db.Exec(
		`INSERT INTO events (kind, message) VALUES (?, ?)`, kind, message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Recent returns the latest events, newest first.
func (es *EventStore) Recent(limit int) ([]EventRecord, error) {
	rows, err := es.db.Query(
		`SELECT id, created_at, kind, message FROM events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Kind, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
