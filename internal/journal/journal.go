package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"scalping-core/internal/ledger"
)

// Journal is the best-effort trade audit trail. It records lifecycle
// transitions for operators to inspect after the fact; the ledger never
// reads it back, so a lost write costs observability, not correctness.
type Journal struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_journal (
	trade_id     TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	lots         REAL NOT NULL,
	entry_price  REAL,
	exec_price   REAL,
	sl_price     REAL,
	tp_price     REAL,
	status       TEXT NOT NULL,
	ticket       INTEGER,
	source       TEXT,
	producer     TEXT,
	close_price  REAL,
	profit       REAL,
	created_at   TIMESTAMP,
	executed_at  TIMESTAMP,
	closed_at    TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_journal_status ON trade_journal(status);
`

// Open creates (if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the DB handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordExecuted upserts the trade at execution time. Implements
// ledger.Recorder; errors are logged, never propagated.
func (j *Journal) RecordExecuted(t ledger.Trade) {
	_, err := j.db.Exec(`
		INSERT INTO trade_journal
			(trade_id, symbol, side, lots, entry_price, exec_price, sl_price, tp_price,
			 status, ticket, source, producer, created_at, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			status = excluded.status,
			exec_price = excluded.exec_price,
			sl_price = excluded.sl_price,
			tp_price = excluded.tp_price,
			ticket = excluded.ticket,
			executed_at = excluded.executed_at`,
		t.TradeID, t.Symbol, string(t.Side), t.Lots, t.EntryPrice, t.ExecutedPrice,
		t.SLPrice, t.TPPrice, string(t.Status), t.BrokerTicket, string(t.Source),
		t.Producer, t.CreatedAt, t.ExecutedAt)
	if err != nil {
		log.Printf("journal: record executed %s: %v", t.TradeID, err)
	}
}

// RecordClosed updates the terminal row for a closed trade.
func (j *Journal) RecordClosed(t ledger.Trade) {
	_, err := j.db.Exec(`
		UPDATE trade_journal
		SET status = ?, close_price = ?, profit = ?, closed_at = ?
		WHERE trade_id = ?`,
		string(t.Status), t.ClosePrice, t.Profit, t.ClosedAt, t.TradeID)
	if err != nil {
		log.Printf("journal: record closed %s: %v", t.TradeID, err)
	}
}

// Count returns how many trades the journal has seen.
func (j *Journal) Count() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM trade_journal`).Scan(&n)
	return n, err
}

// Entry is one journal row as surfaced to operators.
type Entry struct {
	TradeID    string     `json:"trade_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Lots       float64    `json:"lots"`
	Status     string     `json:"status"`
	Source     string     `json:"source"`
	ClosePrice float64    `json:"close_price"`
	Profit     float64    `json:"profit"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// RecentClosed returns up to limit closed trades, newest first.
func (j *Journal) RecentClosed(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, lots, status, source,
		       COALESCE(close_price, 0), COALESCE(profit, 0), closed_at
		FROM trade_journal
		WHERE status = ?
		ORDER BY closed_at DESC
		LIMIT ?`, string(ledger.StatusClosed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TradeID, &e.Symbol, &e.Side, &e.Lots, &e.Status,
			&e.Source, &e.ClosePrice, &e.Profit, &e.ClosedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
