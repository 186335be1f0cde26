package ledger

import "sort"

// IntegrityReport cross-checks decisions against results. Decisions without
// a result are open trades; results without a decision are orphans and fail
// the check.
type IntegrityReport struct {
	DecisionsTotal     int      `json:"decisions_total"`
	ResultsTotal       int      `json:"results_total"`
	MatchedResults     int      `json:"matched_results"`
	UnmatchedDecisions int      `json:"unmatched_decisions"`
	OrphanResults      int      `json:"orphan_results"`
	DecisionsUnique    bool     `json:"decisions_unique"`
	DuplicateIDs       []string `json:"duplicate_decision_ids,omitempty"`
	OrphanIDs          []string `json:"orphan_result_ids,omitempty"`
	UnmatchedIDs       []string `json:"unmatched_decision_ids,omitempty"`
	Pass               bool     `json:"integrity_pass"`
}

// CheckIntegrity loads both logs and builds an IntegrityReport.
func (l *Ledger) CheckIntegrity() (IntegrityReport, error) {
	decisions, err := l.LoadDecisions()
	if err != nil {
		return IntegrityReport{}, err
	}
	results, err := l.LoadTradeResults()
	if err != nil {
		return IntegrityReport{}, err
	}
	return Integrity(decisions, results), nil
}

// Integrity computes the report for already loaded rows. DecisionsTotal
// counts unique decision ids.
func Integrity(decisions []*DecisionRecord, results []*TradeResult) IntegrityReport {
	seen := make(map[string]int, len(decisions))
	for _, d := range decisions {
		seen[d.DecisionID]++
	}
	var dups []string
	for id, n := range seen {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)

	resultIDs := make(map[string]struct{}, len(results))
	r := IntegrityReport{
		DecisionsTotal:  len(seen),
		ResultsTotal:    len(results),
		DecisionsUnique: len(dups) == 0,
		DuplicateIDs:    dups,
	}
	for _, res := range results {
		resultIDs[res.DecisionID] = struct{}{}
		if _, ok := seen[res.DecisionID]; ok {
			r.MatchedResults++
		} else {
			r.OrphanIDs = append(r.OrphanIDs, res.DecisionID)
		}
	}
	for id := range seen {
		if _, ok := resultIDs[id]; !ok {
			r.UnmatchedIDs = append(r.UnmatchedIDs, id)
		}
	}
	sort.Strings(r.UnmatchedIDs)

	r.OrphanResults = len(r.OrphanIDs)
	r.UnmatchedDecisions = len(r.UnmatchedIDs)
	r.Pass = r.OrphanResults == 0
	return r
}
