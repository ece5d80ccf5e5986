package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Rule names the branch of the decision table that produced a Result.
type Rule string

const (
	RuleEmpty        Rule = "empty"
	RuleIdentical    Rule = "identical"
	RuleShortNumeric Rule = "short_numeric"
	RuleLengthRatio  Rule = "length_ratio"
	RuleSubstring    Rule = "substring"
	RuleContainment  Rule = "containment"
	RuleSingleEdit   Rule = "single_edit"
	RuleNumericEdit  Rule = "numeric_mismatch"
	RuleRatio        Rule = "ratio"
)

// Result is the outcome of one comparison. A non-similar result is the
// conservative default, not an error.
type Result struct {
	Similar bool    `json:"similar"`
	Score   float64 `json:"score"`
	Rule    Rule    `json:"rule"`
}

// Engine evaluates the identifier decision table. It is stateless apart
// from its configuration and safe for concurrent use.
type Engine struct {
	config *Config
}

// NewEngine creates an engine; a nil config selects DefaultConfig.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config.Clone()}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// IsSimilar is shorthand for Compare(a, b).Similar.
func (e *Engine) IsSimilar(a, b string) bool {
	return e.Compare(a, b).Similar
}

// Compare scores two identifiers. The result is symmetric in its arguments.
func (e *Engine) Compare(a, b string) Result {
	s1, s2 := Canonical(a), Canonical(b)
	if s1 == "" || s2 == "" {
		return Result{Rule: RuleEmpty}
	}
	if s1 == s2 {
		return Result{Similar: true, Score: 100, Rule: RuleIdentical}
	}

	len1, len2 := utf8.RuneCountInString(s1), utf8.RuneCountInString(s2)
	num1, num2 := isDigits(s1), isDigits(s2)
	minLen, maxLen := len1, len2
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	short := e.config.ShortLength

	switch {
	case len1 <= short && len2 <= short:
		if num1 && num2 {
			return Result{Rule: RuleShortNumeric}
		}
		if num1 != num2 && e.substringSpecial(s1, s2, minLen, maxLen) {
			return Result{Similar: true, Score: e.config.SubstringScore, Rule: RuleSubstring}
		}
		return e.ratio(s1, s2, maxLen)

	case minLen <= short:
		if maxLen >= 2*minLen {
			return Result{Rule: RuleLengthRatio}
		}
		if num1 && num2 {
			return e.ratio(s1, s2, maxLen)
		}
		return e.containmentOrRatio(s1, s2, minLen, maxLen)

	default:
		if num1 && num2 {
			if e.singleEdit(s1, s2) {
				return Result{Similar: true, Score: e.config.SingleEditScore, Rule: RuleSingleEdit}
			}
			return Result{Rule: RuleNumericEdit}
		}
		return e.containmentOrRatio(s1, s2, minLen, maxLen)
	}
}

func (e *Engine) containmentOrRatio(s1, s2 string, minLen, maxLen int) Result {
	if e.substringSpecial(s1, s2, minLen, maxLen) {
		return Result{Similar: true, Score: e.config.SubstringScore, Rule: RuleSubstring}
	}
	if maxLen-minLen < e.config.ContainmentMaxLenDiff && contains(s1, s2) {
		return Result{Similar: true, Score: e.config.ContainmentScore, Rule: RuleContainment}
	}
	return e.ratio(s1, s2, maxLen)
}

func (e *Engine) substringSpecial(s1, s2 string, minLen, maxLen int) bool {
	return minLen*2 >= maxLen && contains(s1, s2)
}

func (e *Engine) ratio(s1, s2 string, maxLen int) Result {
	score := ratioScore(s1, s2, maxLen)
	return Result{Similar: score >= e.config.ScoreThreshold, Score: score, Rule: RuleRatio}
}

// singleEdit reports whether exactly one insert, delete or substitute turns
// one numeric value into the other. Substitutions at position 0 or within
// the protected tail are rejected so that consecutive numbers stay apart.
func (e *Engine) singleEdit(s1, s2 string) bool {
	l1, l2 := len(s1), len(s2)

	if l1 == l2 {
		pos := -1
		for i := 0; i < l1; i++ {
			if s1[i] != s2[i] {
				if pos >= 0 {
					return false
				}
				pos = i
			}
		}
		return pos > 0 && pos < l1-e.config.ProtectedTailDigits
	}

	if l1 > l2 {
		s1, s2 = s2, s1
		l1, l2 = l2, l1
	}
	if l2-l1 != 1 {
		return false
	}
	i := 0
	for i < l1 && s1[i] == s2[i] {
		i++
	}
	return s1[i:] == s2[i+1:]
}

// Ratio returns the normalised edit-distance similarity of two strings on
// a 0..100 scale. Two empty strings score 0.
func Ratio(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	return ratioScore(a, b, maxLen)
}

func ratioScore(s1, s2 string, maxLen int) float64 {
	distance := levenshtein.ComputeDistance(s1, s2)
	return float64(maxLen-distance) * 100 / float64(maxLen)
}

// Canonical trims surrounding whitespace and drops leading zeros from
// purely numeric values. An all-zero value canonicalises to "0".
func Canonical(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !isDigits(s) {
		return s
	}
	if trimmed := strings.TrimLeft(s, "0"); trimmed != "" {
		return trimmed
	}
	return "0"
}

func contains(s1, s2 string) bool {
	return strings.Contains(s1, s2) || strings.Contains(s2, s1)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
