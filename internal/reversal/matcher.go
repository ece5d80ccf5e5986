// Package reversal removes invoice/reversal pairs that cancel each other
// out before duplicate detection runs.
//
// Resolution for one reversal, in order:
//  1. no candidate with the same supplier, date and absolute amount: keep it
//  2. exactly one candidate: match it
//  3. several candidates: take the first whose normalised number equals the
//     reversal's number
//  4. otherwise, for reversal numbers of at least MinOverlapLength, take the
//     first candidate with a strong overlap
//  5. otherwise the reversal is ambiguous and nothing is removed
package reversal

import (
	"strings"

	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/pkg/logger"
)

// Config holds the tie-break parameters.
type Config struct {
	// MinOverlapLength is the minimum length of the reversal number and of
	// the shorter string in a strong overlap.
	MinOverlapLength int `mapstructure:"min_overlap_length"`
}

// DefaultConfig returns the default tie-break parameters.
func DefaultConfig() *Config {
	return &Config{MinOverlapLength: 4}
}

// Outcome classifies how one reversal was resolved.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeNoMatch   Outcome = "no_candidate"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Stats summarises one matching pass.
type Stats struct {
	Reversals int `json:"reversals"`
	Matched   int `json:"matched"`
	NoMatch   int `json:"no_candidate"`
	Ambiguous int `json:"ambiguous"`
	Removed   int `json:"removed_records"`
}

// Result is the filtered record set plus the audit list of matched pairs.
type Result struct {
	Records []*models.InvoiceRecord
	Matches []models.ReversalMatch
	Stats   Stats
}

// Matcher pairs reversals with the invoices they cancel.
type Matcher struct {
	config *Config
	logger logger.Logger
}

// NewMatcher creates a matcher; a nil config selects DefaultConfig.
func NewMatcher(config *Config) *Matcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Matcher{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("reversal_matcher"),
	}
}

type poolKey struct {
	supplier string
	date     string
	amount   string
}

func keyOf(r *models.InvoiceRecord) poolKey {
	return poolKey{
		supplier: r.SupplierName,
		date:     models.FormatDate(r.InvoiceDate),
		amount:   r.InvoiceAmountAbs.String(),
	}
}

// Match resolves every reversal against the invoice pool. The input slice is
// not modified; matched reversals and invoices are absent from the returned
// records, which otherwise keep their input order.
func (m *Matcher) Match(records []*models.InvoiceRecord) *Result {
	pool := make(map[poolKey][]*models.InvoiceRecord)
	for _, r := range records {
		if r.IsInvoice() {
			k := keyOf(r)
			pool[k] = append(pool[k], r)
		}
	}

	result := &Result{}
	removed := make(map[string]struct{})

	for _, rev := range records {
		if !rev.IsReversal() {
			continue
		}
		result.Stats.Reversals++

		k := keyOf(rev)
		candidates := pool[k]
		idx, matchType, outcome := m.resolve(rev, candidates)

		switch outcome {
		case OutcomeNoMatch:
			result.Stats.NoMatch++
			continue
		case OutcomeAmbiguous:
			result.Stats.Ambiguous++
			m.logger.WithFields(logger.Fields{
				"reversal_key":    rev.PrimaryKey,
				"reversal_number": rev.InvoiceNumberNormalized,
				"candidates":      len(candidates),
			}).Debug("Ambiguous reversal left unresolved")
			continue
		}

		inv := candidates[idx]
		pool[k] = append(candidates[:idx:idx], candidates[idx+1:]...)
		removed[rev.PrimaryKey] = struct{}{}
		removed[inv.PrimaryKey] = struct{}{}
		result.Stats.Matched++

		result.Matches = append(result.Matches, models.ReversalMatch{
			ReversalKey:    rev.PrimaryKey,
			InvoiceKey:     inv.PrimaryKey,
			ReversalNumber: rev.InvoiceNumberNormalized,
			InvoiceNumber:  inv.InvoiceNumberNormalized,
			SupplierName:   rev.SupplierName,
			InvoiceDate:    rev.InvoiceDate,
			AmountAbs:      rev.InvoiceAmountAbs,
			MatchType:      matchType,
			CandidateCount: len(candidates),
		})
	}

	result.Records = make([]*models.InvoiceRecord, 0, len(records)-len(removed))
	for _, r := range records {
		if _, gone := removed[r.PrimaryKey]; !gone {
			result.Records = append(result.Records, r)
		}
	}
	result.Stats.Removed = len(removed)

	m.logger.WithFields(logger.Fields{
		"reversals": result.Stats.Reversals,
		"matched":   result.Stats.Matched,
		"ambiguous": result.Stats.Ambiguous,
		"removed":   result.Stats.Removed,
	}).Info("Reversal matching completed")

	return result
}

// resolve returns the index of the chosen candidate. A lone candidate is
// always matched; it is labelled Similarity when the numbers differ but
// strongly overlap and Single otherwise.
func (m *Matcher) resolve(rev *models.InvoiceRecord, candidates []*models.InvoiceRecord) (int, models.MatchType, Outcome) {
	revNumber := strings.TrimSpace(rev.InvoiceNumberNormalized)

	switch len(candidates) {
	case 0:
		return -1, "", OutcomeNoMatch
	case 1:
		number := strings.TrimSpace(candidates[0].InvoiceNumberNormalized)
		if number != revNumber && m.strongOverlap(revNumber, number) {
			return 0, models.MatchSimilarity, OutcomeMatched
		}
		return 0, models.MatchSingle, OutcomeMatched
	}

	for i, c := range candidates {
		if strings.TrimSpace(c.InvoiceNumberNormalized) == revNumber {
			return i, models.MatchExact, OutcomeMatched
		}
	}

	if len(revNumber) >= m.config.MinOverlapLength {
		for i, c := range candidates {
			if m.strongOverlap(revNumber, strings.TrimSpace(c.InvoiceNumberNormalized)) {
				return i, models.MatchSimilarity, OutcomeMatched
			}
		}
	}

	return -1, "", OutcomeAmbiguous
}

// strongOverlap reports whether one string contains the other and the
// shorter one is at least MinOverlapLength long.
func (m *Matcher) strongOverlap(a, b string) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	return len(shorter) >= m.config.MinOverlapLength && strings.Contains(longer, shorter)
}
