package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"signal-bridge/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// WriteCandles upserts candles for symbol in a single transaction.
func (w *Writer) WriteCandles(symbol string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()
	if err := w.insertBatch(model.NormalizeSymbol(symbol), candles, start.Unix()); err != nil {
		return fmt.Errorf("sqlite insert candles: %w", err)
	}
	log.Printf("[sqlite] committed %d candles for %s in %v", len(candles), symbol, time.Since(start))
	return nil
}

// insertBatch inserts a batch of candles in a single transaction.
func (w *Writer) insertBatch(symbol string, candles []model.Candle, fetchedAt int64) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, ts, open, high, low, close, volume, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(symbol, c.TS, c.Open, c.High, c.Low, c.Close, c.Volume, fetchedAt)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored candle timestamp (Unix ms) for a symbol.
// Returns 0 if no candles exist.
func (w *Writer) GetLastTimestamp(symbol string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ?`,
		model.NormalizeSymbol(symbol),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Reader returns a Reader sharing this writer's connection. Closing the
// writer closes both.
func (w *Writer) Reader() *Reader {
	return &Reader{db: w.db}
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
