package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gocarina/gocsv"
)

// LoadDecisions reads every decision row. A missing or empty file yields
// no rows.
func (l *Ledger) LoadDecisions() ([]*DecisionRecord, error) {
	var rows []*DecisionRecord
	if err := l.load(l.decisionPath, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadTradeResults reads every trade-result row. A missing or empty file
// yields no rows.
func (l *Ledger) LoadTradeResults() ([]*TradeResult, error) {
	var rows []*TradeResult
	if err := l.load(l.resultPath, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (l *Ledger) load(path string, out interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
