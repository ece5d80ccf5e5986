package similarity

import "strings"

// IsSequentialSeries reports whether a and b look like neighbouring numbers
// of one series, e.g. "INV-1234" and "INV-1235": same length, identical
// prefix before the trailing digit run, and differences confined to the
// last SeriesWindow digits of that run. The decision table in Compare does
// not consult this predicate; callers opt in explicitly.
func (e *Engine) IsSequentialSeries(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b || len(a) != len(b) {
		return false
	}

	prefixA, digitsA := splitTrailingDigits(a)
	prefixB, digitsB := splitTrailingDigits(b)
	if prefixA != prefixB || len(digitsA) != len(digitsB) || len(digitsA) < 2 {
		return false
	}

	window := e.config.SeriesWindow
	if window > len(digitsA) {
		window = len(digitsA)
	}
	stable := len(digitsA) - window
	return digitsA[:stable] == digitsB[:stable]
}

func splitTrailingDigits(s string) (prefix, digits string) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	return s[:i], s[i:]
}
