package models

import (
	"fmt"
	"strings"
)

// SupplierMatching selects how supplier names are compared inside a scenario.
type SupplierMatching string

const (
	// SupplierMatchExact buckets on the normalised supplier name as-is.
	SupplierMatchExact SupplierMatching = "exact"
	// SupplierMatchFuzzy drops supplier_name from the bucket key and
	// requires each compared pair to pass a supplier-name similarity check.
	SupplierMatchFuzzy SupplierMatching = "fuzzy"
)

const (
	DefaultScoreThreshold    = 90.0
	DefaultSupplierThreshold = 90.0
)

// Scenario is one grouping-key + threshold definition. Scenarios are loaded
// once per run and never modified while it executes.
//
// A zero ScoreThreshold or SupplierThreshold means unset and WithDefaults
// replaces it with 90. The lowest threshold a scenario can request is
// therefore any value above 0.
type Scenario struct {
	ScenarioID        int              `json:"scenario_id" yaml:"scenario_id" toml:"scenario_id" mapstructure:"scenario_id"`
	Name              string           `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty" mapstructure:"name"`
	GroupingColumns   []string         `json:"grouping_columns" yaml:"grouping_columns" toml:"grouping_columns" mapstructure:"grouping_columns"`
	CompareColumn     string           `json:"compare_column,omitempty" yaml:"compare_column,omitempty" toml:"compare_column,omitempty" mapstructure:"compare_column"`
	ScoreThreshold    float64          `json:"score_threshold,omitempty" yaml:"score_threshold,omitempty" toml:"score_threshold,omitempty" mapstructure:"score_threshold"`
	SupplierMatching  SupplierMatching `json:"supplier_match,omitempty" yaml:"supplier_match,omitempty" toml:"supplier_match,omitempty" mapstructure:"supplier_match"`
	SupplierThreshold float64          `json:"supplier_threshold,omitempty" yaml:"supplier_threshold,omitempty" toml:"supplier_threshold,omitempty" mapstructure:"supplier_threshold"`
	Disabled          bool             `json:"disabled,omitempty" yaml:"disabled,omitempty" toml:"disabled,omitempty" mapstructure:"disabled"`
}

// WithDefaults returns a copy with unset optional fields filled in.
func (s Scenario) WithDefaults() Scenario {
	out := s
	out.GroupingColumns = append([]string(nil), s.GroupingColumns...)
	if out.ScoreThreshold == 0 {
		out.ScoreThreshold = DefaultScoreThreshold
	}
	if strings.TrimSpace(out.CompareColumn) == "" {
		out.CompareColumn = ColumnInvoiceNumber
	}
	if out.SupplierMatching == "" {
		out.SupplierMatching = SupplierMatchExact
	}
	if out.SupplierThreshold == 0 {
		out.SupplierThreshold = DefaultSupplierThreshold
	}
	if out.Name == "" {
		out.Name = fmt.Sprintf("scenario-%d", out.ScenarioID)
	}
	return out
}

// Validate checks value ranges. Column names are resolved separately when
// the scenario is compiled against the record schema.
func (s Scenario) Validate() error {
	if s.ScenarioID <= 0 {
		return fmt.Errorf("scenario_id must be positive, got %d", s.ScenarioID)
	}
	if len(s.GroupingColumns) == 0 {
		return fmt.Errorf("scenario %d: grouping_columns cannot be empty", s.ScenarioID)
	}
	if s.ScoreThreshold < 0 || s.ScoreThreshold > 100 {
		return fmt.Errorf("scenario %d: score_threshold must be within (0, 100] or 0 for the default, got %.2f", s.ScenarioID, s.ScoreThreshold)
	}
	if s.SupplierThreshold < 0 || s.SupplierThreshold > 100 {
		return fmt.Errorf("scenario %d: supplier_threshold must be within (0, 100] or 0 for the default, got %.2f", s.ScenarioID, s.SupplierThreshold)
	}
	switch s.SupplierMatching {
	case "", SupplierMatchExact, SupplierMatchFuzzy:
	default:
		return fmt.Errorf("scenario %d: unknown supplier_match %q", s.ScenarioID, s.SupplierMatching)
	}
	return nil
}
