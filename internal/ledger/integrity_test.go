package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-bridge/internal/model"
)

func TestCheckIntegrity_OpenTradesPass(t *testing.T) {
	l := New(t.TempDir())
	a := signalAt(t, "BTC/USDT", model.SideLong, 52000, 51000, 53000, 54000)
	b := signalAt(t, "BTC/USDT", model.SideLong, 52000, 51000, 53000, 54000)
	require.NoError(t, l.AppendDecision(a, 52000))
	require.NoError(t, l.AppendDecision(b, 52000))
	require.NoError(t, l.AppendTradeResult(TradeResult{DecisionID: a.DecisionID, ExitPrice: 53000, PnLRMultiple: 1, ExitReason: "tp1_hit", Timestamp: ts}))

	r, err := l.CheckIntegrity()
	require.NoError(t, err)
	assert.Equal(t, 2, r.DecisionsTotal)
	assert.Equal(t, 1, r.ResultsTotal)
	assert.Equal(t, 1, r.MatchedResults)
	assert.Equal(t, 1, r.UnmatchedDecisions)
	assert.Equal(t, []string{b.DecisionID}, r.UnmatchedIDs)
	assert.Zero(t, r.OrphanResults)
	assert.True(t, r.DecisionsUnique)
	assert.True(t, r.Pass)
}

func TestCheckIntegrity_OrphanFails(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.AppendTradeResult(TradeResult{DecisionID: "ghost", ExitPrice: 1, ExitReason: "stop_hit", Timestamp: ts}))

	r, err := l.CheckIntegrity()
	require.NoError(t, err)
	assert.Equal(t, 1, r.OrphanResults)
	assert.Equal(t, []string{"ghost"}, r.OrphanIDs)
	assert.False(t, r.Pass)
}

func TestIntegrity_Duplicates(t *testing.T) {
	decisions := []*DecisionRecord{{DecisionID: "a"}, {DecisionID: "a"}, {DecisionID: "b"}}
	r := Integrity(decisions, nil)
	assert.Equal(t, 2, r.DecisionsTotal)
	assert.False(t, r.DecisionsUnique)
	assert.Equal(t, []string{"a"}, r.DuplicateIDs)
	assert.True(t, r.Pass, "duplicates warn but do not fail")
}

func TestCheckIntegrity_EmptyLedger(t *testing.T) {
	r, err := New(t.TempDir()).CheckIntegrity()
	require.NoError(t, err)
	assert.True(t, r.Pass)
	assert.Zero(t, r.DecisionsTotal)
}
