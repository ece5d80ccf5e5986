package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Compare(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	tests := []struct {
		name    string
		a, b    string
		similar bool
		score   float64
		rule    Rule
	}{
		{"identical", "INV001", "INV001", true, 100, RuleIdentical},
		{"leading zeros canonicalised", "000123", "123", true, 100, RuleIdentical},
		{"surrounding whitespace", " 4711 ", "4711", true, 100, RuleIdentical},
		{"empty value", "", "123", false, 0, RuleEmpty},
		{"blank values", "  ", "  ", false, 0, RuleEmpty},
		{"short numeric pair", "12", "13", false, 0, RuleShortNumeric},
		{"short mixed substring", "A12", "12", true, 90, RuleSubstring},
		{"short alpha ratio", "AB1C", "AB1D", false, 75, RuleRatio},
		{"short vs long twice as long", "1234", "12345678", false, 0, RuleLengthRatio},
		{"short vs long exactly double", "ABC", "ABCDEF", false, 0, RuleLengthRatio},
		{"short vs long numeric ratio", "1234", "12345", false, 80, RuleRatio},
		{"short vs long substring", "A123", "A1234", true, 90, RuleSubstring},
		{"short vs long ratio", "AB12", "AB13X", false, 60, RuleRatio},
		{"long numeric inner substitution", "100045672", "100145672", true, 95, RuleSingleEdit},
		{"long numeric near tail", "100045672", "100045682", false, 0, RuleNumericEdit},
		{"long numeric last digit", "100045672", "100045673", false, 0, RuleNumericEdit},
		{"long numeric first digit", "200045672", "100045672", false, 0, RuleNumericEdit},
		{"long numeric insertion", "10004567", "100045672", true, 95, RuleSingleEdit},
		{"long numeric two edits", "100045672", "101045682", false, 0, RuleNumericEdit},
		{"long mixed substring", "INV2024001", "2024001", true, 90, RuleSubstring},
		{"long alpha substring", "INV12345", "XINV12345", true, 90, RuleSubstring},
		{"long alpha ratio above threshold", "INV-20240115", "INV-20240118", true, 1100.0 / 12, RuleRatio},
		{"long alpha ratio below threshold", "ABCDEFGH", "ABCXYZGH", false, 62.5, RuleRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Compare(tt.a, tt.b)
			assert.Equal(t, tt.similar, got.Similar)
			assert.InDelta(t, tt.score, got.Score, 1e-9)
			assert.Equal(t, tt.rule, got.Rule)
		})
	}
}

func TestEngine_CompareIsReflexive(t *testing.T) {
	engine := NewEngine(nil)
	for _, s := range []string{"1", "0000", "AB", "INV001", "100045672", "Ünïcødé-42", "a b c"} {
		got := engine.Compare(s, s)
		assert.True(t, got.Similar, s)
		assert.Equal(t, 100.0, got.Score, s)
	}
}

func TestEngine_CompareIsSymmetric(t *testing.T) {
	engine := NewEngine(nil)
	values := []string{
		"", "0", "12", "A12", "AB1C", "1234", "A123", "A1234", "12345", "12345678",
		"100045672", "100145672", "10004567", "INV2024001", "2024001", "INV-20240115",
		"INV-20240118", "XINV12345", "ABCDEFGH", "ABCXYZGH",
	}

	for _, a := range values {
		for _, b := range values {
			ab := engine.Compare(a, b)
			ba := engine.Compare(b, a)
			assert.Equal(t, ab, ba, "Compare(%q, %q) not symmetric", a, b)
		}
	}
}

func TestEngine_ThresholdIsConfigurable(t *testing.T) {
	strict := NewEngine(DefaultConfig())
	loose := NewEngine(DefaultConfig().WithThreshold(80))

	assert.False(t, strict.IsSimilar("1234", "12345"))
	assert.True(t, loose.IsSimilar("1234", "12345"))
	assert.Equal(t, 90.0, strict.Config().ScoreThreshold)
}

func TestEngine_ProtectedTailDigits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProtectedTailDigits = 1
	engine := NewEngine(cfg)

	got := engine.Compare("100045672", "100045682")
	assert.True(t, got.Similar)
	assert.Equal(t, 95.0, got.Score)
	assert.False(t, engine.IsSimilar("100045672", "100045673"))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("", ""))
	assert.Equal(t, 100.0, Ratio("ACME", "ACME"))
	assert.InDelta(t, 75.0, Ratio("ACME", "ACNE"), 1e-9)
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "123", Canonical("000123"))
	assert.Equal(t, "0", Canonical("0000"))
	assert.Equal(t, "00A1", Canonical(" 00A1 "))
	assert.Equal(t, "", Canonical("   "))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"short length", func(c *Config) { c.ShortLength = 0 }},
		{"threshold", func(c *Config) { c.ScoreThreshold = 101 }},
		{"substring score", func(c *Config) { c.SubstringScore = -1 }},
		{"containment diff", func(c *Config) { c.ContainmentMaxLenDiff = 0 }},
		{"protected tail", func(c *Config) { c.ProtectedTailDigits = 0 }},
		{"series window", func(c *Config) { c.SeriesWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsSequentialSeries(t *testing.T) {
	engine := NewEngine(nil)

	tests := []struct {
		a, b   string
		series bool
	}{
		{"INV-1234", "INV-1235", true},
		{"INV-1234", "INV-1334", true},
		{"INV-1234", "INV-2234", false},
		{"INV-1234", "INX-1235", false},
		{"INV-1234", "INV-12345", false},
		{"INV-1234", "INV-1234", false},
		{"100045672", "100045682", true},
		{"AB", "AC", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.series, engine.IsSequentialSeries(tt.a, tt.b))
			assert.Equal(t, tt.series, engine.IsSequentialSeries(tt.b, tt.a))
		})
	}
}

func TestCompareDoesNotConsultSeriesPredicate(t *testing.T) {
	engine := NewEngine(nil)
	require.True(t, engine.IsSequentialSeries("INV-20240115", "INV-20240118"))
	assert.True(t, engine.IsSimilar("INV-20240115", "INV-20240118"))
}
