package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() SignalParams {
	return SignalParams{
		Symbol:     "btc/usdt",
		Side:       SideLong,
		Confidence: 0.6,
		Entry:      MarketEntry(),
		Risk: RiskPlan{
			InitialStop: 51000,
			TakeProfits: []TakeProfit{
				{Price: 53000, SizePct: 0.5},
				{Price: 54000, SizePct: 0.5},
			},
			MaxCapitalPct: 0.05,
		},
		Rationale: "  Breakout above 20-bar high  ",
	}
}

func TestNewTradingSignal_Normalizes(t *testing.T) {
	sig, err := NewTradingSignal(validParams())
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, sig.Version)
	assert.Equal(t, "BTC/USDT", sig.Symbol)
	assert.Equal(t, "Breakout above 20-bar high", sig.Rationale)
	assert.False(t, sig.Timestamp.IsZero())
	assert.Equal(t, time.UTC, sig.Timestamp.Location())

	_, err = uuid.Parse(sig.DecisionID)
	assert.NoError(t, err, "decision_id should be a uuid")
}

func TestNewTradingSignal_UniqueDecisionIDs(t *testing.T) {
	a, err := NewTradingSignal(validParams())
	require.NoError(t, err)
	b, err := NewTradingSignal(validParams())
	require.NoError(t, err)
	assert.NotEqual(t, a.DecisionID, b.DecisionID)
}

func TestNewTradingSignal_CopiesTakeProfits(t *testing.T) {
	p := validParams()
	sig, err := NewTradingSignal(p)
	require.NoError(t, err)

	p.Risk.TakeProfits[0].Price = 1
	assert.Equal(t, 53000.0, sig.Risk.TP1())
}

func TestRiskPlan_TakeProfitSumLaw(t *testing.T) {
	p := validParams()
	p.Risk.TakeProfits = []TakeProfit{{Price: 53000, SizePct: 0.6}, {Price: 54000, SizePct: 0.5}}

	_, err := NewTradingSignal(p)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "1.1")
}

func TestRiskPlan_SumWithinTolerance(t *testing.T) {
	p := validParams()
	p.Risk.TakeProfits = []TakeProfit{{Price: 53000, SizePct: 0.3}, {Price: 54000, SizePct: 0.7000000001}}

	_, err := NewTradingSignal(p)
	assert.NoError(t, err)
}

func TestRiskPlan_TakeProfitCount(t *testing.T) {
	p := validParams()
	p.Risk.TakeProfits = []TakeProfit{{Price: 53000, SizePct: 1.0}}

	_, err := NewTradingSignal(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly 2")

	p.Risk.TakeProfits = []TakeProfit{{53000, 0.3}, {54000, 0.3}, {55000, 0.4}}
	_, err = NewTradingSignal(p)
	assert.Error(t, err)
}

func TestRiskPlan_MaxCapitalBounds(t *testing.T) {
	for _, v := range []float64{0, 1, -0.1, 1.5} {
		p := validParams()
		p.Risk.MaxCapitalPct = v
		_, err := NewTradingSignal(p)
		assert.Error(t, err, "max_capital_pct=%v", v)
	}
}

func TestNewTradingSignal_ConfidenceBounds(t *testing.T) {
	cases := []struct {
		conf float64
		ok   bool
	}{
		{0, false},
		{-0.2, false},
		{0.0001, true},
		{1, true},
		{1.01, false},
	}
	for _, tc := range cases {
		p := validParams()
		p.Confidence = tc.conf
		_, err := NewTradingSignal(p)
		if tc.ok {
			assert.NoError(t, err, "confidence=%v", tc.conf)
		} else {
			assert.Error(t, err, "confidence=%v", tc.conf)
		}
	}
}

func TestNewTradingSignal_RationaleLength(t *testing.T) {
	p := validParams()
	p.Rationale = strings.Repeat("x", MaxRationaleLen)
	_, err := NewTradingSignal(p)
	require.NoError(t, err)

	p.Rationale = strings.Repeat("x", MaxRationaleLen+1)
	_, err = NewTradingSignal(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rationale")
}

func TestNewTradingSignal_Side(t *testing.T) {
	p := validParams()
	p.Side = "sideways"
	_, err := NewTradingSignal(p)
	assert.Error(t, err)
}

func TestEntry_Variants(t *testing.T) {
	assert.NoError(t, MarketEntry().Validate())
	assert.NoError(t, LimitEntry(52000).Validate())
	assert.Error(t, LimitEntry(0).Validate())
	assert.Error(t, Entry{Type: "stop"}.Validate())
	assert.Error(t, Entry{}.Validate())
	assert.Error(t, Entry{Type: EntryMarket, LimitPrice: 10}.Validate())
}

func TestEntry_WireShape(t *testing.T) {
	b, err := json.Marshal(MarketEntry())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"market"}`, string(b))

	b, err = json.Marshal(LimitEntry(51234.5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"limit","limit_price":51234.5}`, string(b))

	var e Entry
	assert.Error(t, json.Unmarshal([]byte(`{"type":"limit"}`), &e))
	assert.Error(t, json.Unmarshal([]byte(`{"limit_price":5}`), &e))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"market","limit_price":5}`), &e))
	require.NoError(t, json.Unmarshal([]byte(`{"type":"limit","limit_price":5}`), &e))
	assert.Equal(t, LimitEntry(5), e)
}

func TestTradingSignal_WireFieldNames(t *testing.T) {
	sig, err := NewTradingSignal(validParams())
	require.NoError(t, err)
	b, err := sig.Encode()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, k := range []string{"version", "decision_id", "timestamp", "symbol", "side", "confidence", "entry", "risk", "rationale"} {
		assert.Contains(t, raw, k)
	}
	assert.Len(t, raw, 9)

	var risk map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["risk"], &risk))
	assert.Contains(t, risk, "initial_stop")
	assert.Contains(t, risk, "take_profits")
	assert.Contains(t, risk, "max_capital_pct")
}

func TestDecodeSignal_AcceptsOffsetTimestamps(t *testing.T) {
	payload := `{"version":"1.0","decision_id":"test_123","timestamp":"2025-03-01T12:00:00.123456+00:00",
		"symbol":"BTC/USDT","side":"long","confidence":0.7,"entry":{"type":"market"},
		"risk":{"initial_stop":49000,"take_profits":[{"price":51000,"size_pct":0.5},{"price":52000,"size_pct":0.5}],"max_capital_pct":0.03},
		"rationale":"Breakout above resistance"}`

	sig, err := DecodeSignal([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "test_123", sig.DecisionID)
	assert.Equal(t, 51000.0, sig.Risk.TP1())
	assert.Equal(t, 52000.0, sig.Risk.TP2())
	assert.True(t, sig.Timestamp.Equal(time.Date(2025, 3, 1, 12, 0, 0, 123456000, time.UTC)))
}

func TestDecodeSignal_RejectsMissingTimestamp(t *testing.T) {
	payload := `{"version":"1.0","decision_id":"x","symbol":"BTC/USDT","side":"long","confidence":0.7,
		"entry":{"type":"market"},"risk":{"initial_stop":1,"take_profits":[{"price":2,"size_pct":0.5},{"price":3,"size_pct":0.5}],"max_capital_pct":0.03},"rationale":"r"}`
	_, err := DecodeSignal([]byte(payload))
	assert.Error(t, err)
}

func TestCapCapital_NeverRaises(t *testing.T) {
	sig, err := NewTradingSignal(validParams())
	require.NoError(t, err)

	assert.False(t, sig.CapCapital(0.10))
	assert.Equal(t, 0.05, sig.Risk.MaxCapitalPct)

	assert.True(t, sig.CapCapital(0.02))
	assert.Equal(t, 0.02, sig.Risk.MaxCapitalPct)
}
