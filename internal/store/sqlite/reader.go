package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"signal-bridge/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to cached candles.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadLatest returns the most recent limit candles for symbol, ordered by
// timestamp ascending.
func (r *Reader) ReadLatest(symbol string, limit int) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, model.NormalizeSymbol(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// ReadRange returns candles for symbol with afterTS < ts, ascending.
func (r *Reader) ReadRange(symbol string, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, model.NormalizeSymbol(symbol), afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.TS, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
