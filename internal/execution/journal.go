package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists paper fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS paper_fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		decision_id TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		action      TEXT NOT NULL,
		price       REAL NOT NULL,
		slippage    REAL DEFAULT 0,
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_paper_fills_decision ON paper_fills(decision_id);
	CREATE INDEX IF NOT EXISTS idx_paper_fills_symbol ON paper_fills(symbol);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened paper journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO paper_fills (order_id, decision_id, symbol, side, action, price, slippage, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.DecisionID,
		fill.Symbol,
		string(fill.Side),
		string(fill.Action),
		fill.Price,
		fill.Slippage,
		fill.Reason,
		fill.FilledAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FillRecord represents a row from the paper_fills table.
type FillRecord struct {
	ID         int64   `json:"id"`
	OrderID    string  `json:"order_id"`
	DecisionID string  `json:"decision_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Action     string  `json:"action"`
	Price      float64 `json:"price"`
	Slippage   float64 `json:"slippage"`
	Reason     string  `json:"reason"`
	FilledAt   string  `json:"filled_at"`
}

// GetFills returns the last N fills, newest first.
func (j *Journal) GetFills(limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, decision_id, symbol, side, action, price, slippage, reason, filled_at
		 FROM paper_fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		var reason sql.NullString
		if err := rows.Scan(&f.ID, &f.OrderID, &f.DecisionID, &f.Symbol, &f.Side,
			&f.Action, &f.Price, &f.Slippage, &reason, &f.FilledAt); err != nil {
			return nil, err
		}
		f.Reason = reason.String
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
