// Package ledger keeps the append-only CSV audit trail of accepted
// decisions and realized trade results.
//
// Both files get their header exactly once, when the file is first created.
// Writes from one process are serialized by a mutex; coordinating several
// writer processes is left to the deployment.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"signal-bridge/internal/model"
)

const (
	// DefaultDir is the ledger directory used when none is configured.
	DefaultDir = "decision_logs"

	DecisionFile = "decision_log.csv"
	ResultFile   = "trade_results.csv"
)

// Ledger appends to the decision and trade-result logs under a directory.
type Ledger struct {
	mu           sync.Mutex
	decisionPath string
	resultPath   string
}

// New creates a Ledger rooted at dir. Nothing is created until the first
// append.
func New(dir string) *Ledger {
	if dir == "" {
		dir = DefaultDir
	}
	return &Ledger{
		decisionPath: filepath.Join(dir, DecisionFile),
		resultPath:   filepath.Join(dir, ResultFile),
	}
}

// DecisionPath returns the decision log path.
func (l *Ledger) DecisionPath() string { return l.decisionPath }

// ResultPath returns the trade-results log path.
func (l *Ledger) ResultPath() string { return l.resultPath }

// AppendDecision logs an accepted signal with the price it was entered at.
func (l *Ledger) AppendDecision(sig *model.TradingSignal, entryPrice float64) error {
	rec := &DecisionRecord{
		DecisionID: sig.DecisionID,
		Timestamp:  sig.Timestamp.UTC(),
		Symbol:     sig.Symbol,
		Side:       string(sig.Side),
		EntryPrice: Price(entryPrice),
		Stop:       Price(sig.Risk.InitialStop),
		TP1:        Price(sig.Risk.TP1()),
		TP2:        Price(sig.Risk.TP2()),
		Confidence: Ratio(sig.Confidence),
	}
	if err := checkFinite(map[string]float64{
		"entry_price": entryPrice, "stop": float64(rec.Stop), "tp1": float64(rec.TP1),
		"tp2": float64(rec.TP2), "confidence": float64(rec.Confidence),
	}); err != nil {
		return err
	}
	if err := l.appendRows(l.decisionPath, []*DecisionRecord{rec}); err != nil {
		return &model.TransportError{Op: "append decision", Err: err}
	}
	return nil
}

// AppendTradeResult logs a closed trade.
func (l *Ledger) AppendTradeResult(res TradeResult) error {
	if res.DecisionID == "" {
		return &model.ValidationError{Field: "decision_id", Reason: "missing"}
	}
	if err := checkFinite(map[string]float64{
		"exit_price": float64(res.ExitPrice), "pnl_r_multiple": float64(res.PnLRMultiple),
	}); err != nil {
		return err
	}
	res.Timestamp = res.Timestamp.UTC()
	if err := l.appendRows(l.resultPath, []*TradeResult{&res}); err != nil {
		return &model.TransportError{Op: "append trade result", Err: err}
	}
	return nil
}

func checkFinite(fields map[string]float64) error {
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &model.ValidationError{Field: name, Reason: fmt.Sprintf("must be finite, got %v", v)}
		}
	}
	return nil
}

// appendRows encodes rows fully in memory, then issues a single append so a
// failed encode never leaves a partial line behind.
func (l *Ledger) appendRows(path string, rows interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	writeHeader := false
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeHeader = true
	case err != nil:
		return err
	case info.Size() == 0:
		writeHeader = true
	}

	var buf bytes.Buffer
	if writeHeader {
		err = gocsv.Marshal(rows, &buf)
	} else {
		err = gocsv.MarshalWithoutHeaders(rows, &buf)
	}
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
