package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimilarityEdge links two records of one bucket that were judged similar.
type SimilarityEdge struct {
	SourceKey string
	DestKey   string
	Score     float64
}

// DuplicateGroup is one connected component of similar records within a
// scenario. MemberKeys is kept sorted.
type DuplicateGroup struct {
	GroupID    string   `json:"group_id"`
	ScenarioID int      `json:"scenario_id"`
	MemberKeys []string `json:"member_keys"`
	RiskScore  float64  `json:"risk_score"`
}

// Size returns the number of member records.
func (g DuplicateGroup) Size() int {
	return len(g.MemberKeys)
}

// GroupSignature is the read-only view of a group used for cross-scenario
// deduplication.
type GroupSignature struct {
	ScenarioID int
	GroupID    string
	InvoiceSet map[string]struct{}
	SortedKeys []string
	Size       int
	Hash       string
}

// DuplicateRow is one (record, group) membership handed to persistence.
// GroupNumber is the dense 1-based identifier assigned after deduplication.
type DuplicateRow struct {
	PrimaryKey  string  `json:"primary_key"`
	ScenarioID  int     `json:"scenario_id"`
	GroupID     string  `json:"group_id"`
	GroupNumber int     `json:"group_number"`
	RiskScore   float64 `json:"risk_score"`
}

// MatchType records which resolution rule paired a reversal with an invoice.
type MatchType string

const (
	MatchSingle     MatchType = "Single"
	MatchExact      MatchType = "Exact"
	MatchSimilarity MatchType = "Similarity"
)

// ReversalMatch is one audit entry for an invoice/reversal pair removed
// before grouping.
type ReversalMatch struct {
	ReversalKey    string          `json:"reversal_key"`
	InvoiceKey     string          `json:"invoice_key"`
	ReversalNumber string          `json:"reversal_number"`
	InvoiceNumber  string          `json:"invoice_number"`
	SupplierName   string          `json:"supplier_name"`
	InvoiceDate    time.Time       `json:"invoice_date"`
	AmountAbs      decimal.Decimal `json:"amount_abs"`
	MatchType      MatchType       `json:"match_type"`
	CandidateCount int             `json:"candidate_count"`
}
