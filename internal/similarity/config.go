// Package similarity decides whether two identifier strings (typically
// invoice numbers) denote the same invoice despite formatting noise.
//
// The engine evaluates a fixed decision table keyed on the length class of
// both values (short or long) and on whether each value is purely numeric:
//   - Both short: numeric pairs must be identical; mixed pairs may match via
//     the sub-string special case; the rest fall back to ratio scoring.
//   - One short, one long: rejected outright when the longer value is at
//     least twice the shorter one.
//   - Both long: numeric pairs only match on a single edit outside the
//     protected positions; other pairs use sub-string, containment and
//     ratio scoring in that order.
//
// Example usage:
//
//	engine := similarity.NewEngine(similarity.DefaultConfig())
//	res := engine.Compare("INV2024001", "2024001")
//	// res.Similar == true, res.Score == 90
package similarity

import (
	"fmt"
)

// Config holds every tunable constant of the decision table. A Config is
// threaded through the engine constructor; there is no package-level state.
type Config struct {
	// ShortLength is the inclusive upper bound on the length of a "short" value.
	ShortLength int `json:"short_length" mapstructure:"short_length"`

	// ScoreThreshold is the minimum ratio score for a ratio match (0..100).
	ScoreThreshold float64 `json:"score_threshold" mapstructure:"score_threshold"`

	// SubstringScore is assigned when the sub-string special case applies.
	SubstringScore float64 `json:"substring_score" mapstructure:"substring_score"`

	// ContainmentScore is assigned when one value contains the other and
	// their lengths differ by less than ContainmentMaxLenDiff.
	ContainmentScore      float64 `json:"containment_score" mapstructure:"containment_score"`
	ContainmentMaxLenDiff int     `json:"containment_max_len_diff" mapstructure:"containment_max_len_diff"`

	// SingleEditScore is assigned to long numeric pairs one edit apart.
	SingleEditScore float64 `json:"single_edit_score" mapstructure:"single_edit_score"`

	// ProtectedTailDigits is the number of trailing positions in which a
	// substitution between equal-length long numeric values is rejected.
	// Position 0 is always protected.
	ProtectedTailDigits int `json:"protected_tail_digits" mapstructure:"protected_tail_digits"`

	// SeriesWindow is how many trailing digits may differ for two values to
	// count as a sequential series.
	SeriesWindow int `json:"series_window" mapstructure:"series_window"`
}

// DefaultConfig returns the production decision-table constants.
func DefaultConfig() *Config {
	return &Config{
		ShortLength:           4,
		ScoreThreshold:        90,
		SubstringScore:        90,
		ContainmentScore:      95,
		ContainmentMaxLenDiff: 3,
		SingleEditScore:       95,
		ProtectedTailDigits:   2,
		SeriesWindow:          3,
	}
}

// Validate validates the configuration parameters
func (c *Config) Validate() error {
	if c.ShortLength < 1 {
		return fmt.Errorf("short length must be at least 1, got %d", c.ShortLength)
	}
	for name, v := range map[string]float64{
		"score threshold":   c.ScoreThreshold,
		"substring score":   c.SubstringScore,
		"containment score": c.ContainmentScore,
		"single edit score": c.SingleEditScore,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be within [0, 100], got %.2f", name, v)
		}
	}
	if c.ContainmentMaxLenDiff < 1 {
		return fmt.Errorf("containment max length difference must be at least 1, got %d", c.ContainmentMaxLenDiff)
	}
	if c.ProtectedTailDigits < 1 {
		return fmt.Errorf("protected tail digits must be at least 1, got %d", c.ProtectedTailDigits)
	}
	if c.SeriesWindow < 1 {
		return fmt.Errorf("series window must be at least 1, got %d", c.SeriesWindow)
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// WithThreshold returns a copy using the given ratio threshold.
func (c *Config) WithThreshold(threshold float64) *Config {
	clone := c.Clone()
	clone.ScoreThreshold = threshold
	return clone
}
