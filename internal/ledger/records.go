package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Price is written with 8 fixed decimals.
type Price float64

// MarshalCSV implements gocsv.TypeMarshaller.
func (p Price) MarshalCSV() (string, error) {
	return fixed(float64(p), 8)
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (p *Price) UnmarshalCSV(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*p = Price(v)
	return nil
}

// fixed rounds the exact binary value of v to places decimals, the same
// digits printf("%.*f") produces.
func fixed(v float64, places int32) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", fmt.Errorf("cannot write non-finite value %v", v)
	}
	return decimal.NewFromFloatWithExponent(v, -places).StringFixed(places), nil
}

// Ratio is written with 4 fixed decimals (confidence, R-multiples).
type Ratio float64

// MarshalCSV implements gocsv.TypeMarshaller.
func (r Ratio) MarshalCSV() (string, error) {
	return fixed(float64(r), 4)
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (r *Ratio) UnmarshalCSV(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*r = Ratio(v)
	return nil
}

// DecisionRecord is one row of decision_log.csv. Field order is the column
// order.
type DecisionRecord struct {
	DecisionID string    `csv:"decision_id"`
	Timestamp  time.Time `csv:"timestamp"`
	Symbol     string    `csv:"symbol"`
	Side       string    `csv:"side"`
	EntryPrice Price     `csv:"entry_price"`
	Stop       Price     `csv:"stop"`
	TP1        Price     `csv:"tp1"`
	TP2        Price     `csv:"tp2"`
	Confidence Ratio     `csv:"confidence"`
}

// TradeResult is one row of trade_results.csv. DecisionID refers to a
// DecisionRecord but is not checked at write time.
type TradeResult struct {
	DecisionID   string    `csv:"decision_id"`
	ExitPrice    Price     `csv:"exit_price"`
	PnLRMultiple Ratio     `csv:"pnl_r_multiple"`
	ExitReason   string    `csv:"exit_reason"`
	Timestamp    time.Time `csv:"timestamp"`
}

// DecisionHeader and ResultHeader are the fixed header rows.
var (
	DecisionHeader = []string{"decision_id", "timestamp", "symbol", "side", "entry_price", "stop", "tp1", "tp2", "confidence"}
	ResultHeader   = []string{"decision_id", "exit_price", "pnl_r_multiple", "exit_reason", "timestamp"}
)
