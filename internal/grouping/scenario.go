package grouping

import (
	"fmt"
	"sort"
	"strings"

	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/internal/preprocess"
	"golang-invoice-dedup-service/internal/similarity"
	apperrors "golang-invoice-dedup-service/pkg/errors"
)

// CompiledScenario is a scenario whose column names have been resolved to
// accessors once, so that bucketing never looks columns up per row.
type CompiledScenario struct {
	Scenario models.Scenario

	keyColumns   []string
	keyAccessors []models.FieldAccessor
	compare      models.FieldAccessor
	engine       *similarity.Engine

	fuzzySupplier     bool
	supplierThreshold float64
}

// Compile validates a scenario and resolves its columns. An unknown column
// yields a configuration error that only affects this scenario.
func Compile(s models.Scenario, base *similarity.Config) (*CompiledScenario, error) {
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, fmt.Sprintf("scenario %d", s.ScenarioID), s.Name, err)
	}
	if base == nil {
		base = similarity.DefaultConfig()
	}

	cs := &CompiledScenario{
		Scenario:          s,
		engine:            similarity.NewEngine(base.WithThreshold(s.ScoreThreshold)),
		fuzzySupplier:     s.SupplierMatching == models.SupplierMatchFuzzy,
		supplierThreshold: s.SupplierThreshold,
	}

	seen := make(map[string]struct{}, len(s.GroupingColumns))
	for _, col := range s.GroupingColumns {
		name := strings.ToLower(strings.TrimSpace(col))
		acc, ok := models.LookupColumn(name)
		if !ok {
			return nil, apperrors.ConfigurationError(apperrors.CodeUnknownColumn,
				fmt.Sprintf("scenario %d grouping_columns", s.ScenarioID), col, nil)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if cs.fuzzySupplier && name == models.ColumnSupplierName {
			continue
		}
		cs.keyColumns = append(cs.keyColumns, name)
		cs.keyAccessors = append(cs.keyAccessors, acc)
	}

	acc, ok := models.LookupColumn(s.CompareColumn)
	if !ok {
		return nil, apperrors.ConfigurationError(apperrors.CodeUnknownColumn,
			fmt.Sprintf("scenario %d compare_column", s.ScenarioID), s.CompareColumn, nil)
	}
	cs.compare = acc

	return cs, nil
}

// KeyColumns returns the columns whose equality defines a bucket.
func (cs *CompiledScenario) KeyColumns() []string {
	return append([]string(nil), cs.keyColumns...)
}

// bucketKey returns the bucket key of r, or the first missing column.
func (cs *CompiledScenario) bucketKey(r *models.InvoiceRecord) (string, string) {
	var b strings.Builder
	for i, acc := range cs.keyAccessors {
		v := acc(r)
		if v == "" {
			return "", cs.keyColumns[i]
		}
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(v)
	}
	if cs.fuzzySupplier && r.SupplierName == "" {
		return "", models.ColumnSupplierName
	}
	if cs.compare(r) == "" {
		return "", cs.Scenario.CompareColumn
	}
	return b.String(), ""
}

// suppliersMatch applies the fuzzy supplier rule to a pair. Organisation
// names are compared without legal-form tokens and person names with their
// tokens sorted; different known supplier types never match.
func (cs *CompiledScenario) suppliersMatch(a, b *models.InvoiceRecord) bool {
	if !cs.fuzzySupplier || a.SupplierName == b.SupplierName {
		return true
	}
	if a.SupplierType != b.SupplierType &&
		a.SupplierType != models.SupplierUnknown && b.SupplierType != models.SupplierUnknown {
		return false
	}
	kind := a.SupplierType
	if kind == models.SupplierUnknown {
		kind = b.SupplierType
	}
	return SupplierScore(a.SupplierName, b.SupplierName, kind) >= cs.supplierThreshold
}

// SupplierScore scores two normalised supplier names with the strategy
// selected by their supplier type.
func SupplierScore(a, b string, kind models.SupplierType) float64 {
	switch kind {
	case models.SupplierOrganisation:
		return similarity.Ratio(preprocess.StripLegalForms(a), preprocess.StripLegalForms(b))
	case models.SupplierPerson:
		return similarity.Ratio(sortTokens(a), sortTokens(b))
	default:
		return similarity.Ratio(a, b)
	}
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
