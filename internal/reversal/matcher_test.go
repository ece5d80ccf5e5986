package reversal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-invoice-dedup-service/internal/models"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func rec(key, number, supplier, amount string, ind models.DebitCreditIndicator) *models.InvoiceRecord {
	a := decimal.RequireFromString(amount)
	return &models.InvoiceRecord{
		PrimaryKey:              key,
		InvoiceNumberRaw:        number,
		InvoiceNumberNormalized: number,
		SupplierName:            supplier,
		InvoiceDate:             jan1,
		InvoiceAmount:           a,
		InvoiceAmountAbs:        a.Abs(),
		DebitCreditIndicator:    ind,
		IsCurrentData:           true,
	}
}

func keys(records []*models.InvoiceRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.PrimaryKey)
	}
	return out
}

func TestMatch_SingleCandidateWithOverlap(t *testing.T) {
	records := []*models.InvoiceRecord{
		rec("1", "INV001", "ACME", "100", models.IndicatorInvoice),
		rec("2", "INV001-R", "ACME", "-100", models.IndicatorReversal),
		rec("3", "INV777", "ACME", "55", models.IndicatorInvoice),
	}

	res := NewMatcher(nil).Match(records)

	assert.Equal(t, []string{"3"}, keys(res.Records))
	require.Len(t, res.Matches, 1)
	m := res.Matches[0]
	assert.Equal(t, models.MatchSimilarity, m.MatchType)
	assert.Equal(t, "2", m.ReversalKey)
	assert.Equal(t, "1", m.InvoiceKey)
	assert.Equal(t, 1, m.CandidateCount)
	assert.True(t, m.AmountAbs.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, Stats{Reversals: 1, Matched: 1, Removed: 2}, res.Stats)
	assert.Len(t, records, 3, "input must not be modified")
}

func TestMatch_SingleCandidate(t *testing.T) {
	tests := []struct {
		name      string
		invoice   string
		reversal  string
		matchType models.MatchType
	}{
		{"same number", "INV-42", "INV-42", models.MatchSingle},
		{"unrelated number", "INV-42", "CN-9", models.MatchSingle},
		{"short overlap", "A12", "A12R", models.MatchSingle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewMatcher(nil).Match([]*models.InvoiceRecord{
				rec("1", tt.invoice, "ACME", "10", models.IndicatorInvoice),
				rec("2", tt.reversal, "ACME", "10", models.IndicatorReversal),
			})
			require.Len(t, res.Matches, 1)
			assert.Equal(t, tt.matchType, res.Matches[0].MatchType)
			assert.Empty(t, res.Records)
		})
	}
}

func TestMatch_NoCandidate(t *testing.T) {
	records := []*models.InvoiceRecord{
		rec("1", "INV001", "ACME", "100", models.IndicatorInvoice),
		rec("2", "INV001", "ACME", "-99.99", models.IndicatorReversal),
		rec("3", "INV001", "BETA", "-100", models.IndicatorReversal),
	}

	res := NewMatcher(nil).Match(records)

	assert.Equal(t, []string{"1", "2", "3"}, keys(res.Records))
	assert.Empty(t, res.Matches)
	assert.Equal(t, 2, res.Stats.NoMatch)
}

func TestMatch_ExactTieBreak(t *testing.T) {
	records := []*models.InvoiceRecord{
		rec("1", "INV-1", "ACME", "100", models.IndicatorInvoice),
		rec("2", "INV-2", "ACME", "100", models.IndicatorInvoice),
		rec("3", "INV-2", "ACME", "100", models.IndicatorInvoice),
		rec("4", "INV-2", "ACME", "-100", models.IndicatorReversal),
	}

	res := NewMatcher(nil).Match(records)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, models.MatchExact, res.Matches[0].MatchType)
	assert.Equal(t, "2", res.Matches[0].InvoiceKey)
	assert.Equal(t, 3, res.Matches[0].CandidateCount)
	assert.Equal(t, []string{"1", "3"}, keys(res.Records))
}

func TestMatch_SimilarityTieBreak(t *testing.T) {
	records := []*models.InvoiceRecord{
		rec("1", "INV-5001", "ACME", "100", models.IndicatorInvoice),
		rec("2", "INV-7002", "ACME", "100", models.IndicatorInvoice),
		rec("3", "INV-7002-X", "ACME", "-100", models.IndicatorReversal),
	}

	res := NewMatcher(nil).Match(records)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, models.MatchSimilarity, res.Matches[0].MatchType)
	assert.Equal(t, "2", res.Matches[0].InvoiceKey)
	assert.Equal(t, []string{"1"}, keys(res.Records))
}

func TestMatch_AmbiguousLeavesRecordsIntact(t *testing.T) {
	records := []*models.InvoiceRecord{
		rec("1", "A-7781", "ACME", "100", models.IndicatorInvoice),
		rec("2", "B-9920", "ACME", "100", models.IndicatorInvoice),
		rec("3", "Z-5555", "ACME", "-100", models.IndicatorReversal),
	}

	res := NewMatcher(nil).Match(records)

	assert.Empty(t, res.Matches)
	assert.Equal(t, []string{"1", "2", "3"}, keys(res.Records))
	assert.Equal(t, 1, res.Stats.Ambiguous)
	assert.Equal(t, 0, res.Stats.Removed)
}

func TestMatch_ShortReversalNumberIsAmbiguous(t *testing.T) {
	records := []*models.InvoiceRecord{
		rec("1", "R10", "ACME", "5", models.IndicatorInvoice),
		rec("2", "R11", "ACME", "5", models.IndicatorInvoice),
		rec("3", "R1", "ACME", "-5", models.IndicatorReversal),
	}

	res := NewMatcher(nil).Match(records)

	assert.Empty(t, res.Matches)
	assert.Len(t, res.Records, 3)
}

func TestMatch_InvoiceMatchedOnlyOnce(t *testing.T) {
	records := []*models.InvoiceRecord{
		rec("1", "INV9", "ACME", "20", models.IndicatorInvoice),
		rec("2", "INV9", "ACME", "-20", models.IndicatorReversal),
		rec("3", "INV9", "ACME", "-20", models.IndicatorReversal),
	}

	res := NewMatcher(nil).Match(records)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "2", res.Matches[0].ReversalKey)
	assert.Equal(t, []string{"3"}, keys(res.Records))
	assert.Equal(t, 1, res.Stats.NoMatch)
}

func TestMatch_OtherIndicatorsIgnored(t *testing.T) {
	records := []*models.InvoiceRecord{
		rec("1", "INV9", "ACME", "20", models.IndicatorOther),
		rec("2", "INV9", "ACME", "-20", models.IndicatorReversal),
	}

	res := NewMatcher(nil).Match(records)

	assert.Empty(t, res.Matches)
	assert.Len(t, res.Records, 2)
}
