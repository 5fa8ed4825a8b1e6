// Package storage persists order transitions and positions in SQLite.
// The order_events table is append-only: every lifecycle transition writes a
// full snapshot row, so a crash between venue ack and downstream processing
// never loses a fill.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates the store with WAL mode enabled and the schema in place.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS order_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			venue_order_id TEXT,
			status TEXT NOT NULL,
			filled_qty TEXT NOT NULL,
			avg_fill_price TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id, seq);`,
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			venue TEXT NOT NULL,
			status TEXT NOT NULL,
			payload BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_open_position
			ON positions(symbol, venue) WHERE status = 'OPEN';`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// AppendOrderEvent records an order snapshot after a state transition.
func (s *Store) AppendOrderEvent(ctx context.Context, o *domain.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO order_events (order_id, venue_order_id, status, filled_qty, avg_fill_price, ts, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.VenueOrderID, string(o.Status), o.FilledQty.String(), o.AvgFillPrice.String(),
		o.UpdatedAt.UnixMicro(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}
	return nil
}

// LoadOpenOrders reconstructs the latest snapshot of every order whose most
// recent event is non-terminal. Used for crash recovery.
func (s *Store) LoadOpenOrders(ctx context.Context) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.payload FROM order_events e
		JOIN (SELECT order_id, MAX(seq) AS max_seq FROM order_events GROUP BY order_id) last
			ON e.order_id = last.order_id AND e.seq = last.max_seq
		WHERE e.status IN ('PENDING', 'OPEN', 'PARTIALLY_FILLED')`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		var o domain.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order: %w", err)
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// OrderHistory returns every persisted snapshot of one order, oldest first.
func (s *Store) OrderHistory(ctx context.Context, orderID string) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM order_events WHERE order_id = ? ORDER BY seq ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order history: %w", err)
	}
	defer rows.Close()

	var history []*domain.Order
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		var o domain.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order: %w", err)
		}
		history = append(history, &o)
	}
	return history, rows.Err()
}

// SavePosition upserts a position row. The partial unique index rejects a
// second OPEN row for the same (symbol, venue).
func (s *Store) SavePosition(ctx context.Context, p *domain.Position) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO positions (id, symbol, venue, status, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload, updated_at=excluded.updated_at`,
		p.ID, p.Symbol, p.Venue, string(p.Status), payload, time.Now().UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// LoadOpenPositions returns all OPEN positions. Used for crash recovery.
func (s *Store) LoadOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM positions WHERE status = 'OPEN'`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		var p domain.Position
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// UpsertMetadata saves a key-value pair.
func (s *Store) UpsertMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UnixMicro(),
	)
	return err
}

// GetMetadata retrieves a value, empty string when absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
