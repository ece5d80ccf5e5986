package preprocess

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultSuffixCodes are vendor-specific codes appended to otherwise
// identical invoice numbers.
var DefaultSuffixCodes = []string{"VD1", "VD2", "VD3", "CR1", "CR2", "CR3", "CR"}

// DefaultNoisePatterns are positional junk tokens removed from invoice
// numbers, applied in order after upper-casing.
var DefaultNoisePatterns = []string{
	// leading labels: "NO. 123", "NR: 123", "NUM 123"
	`^(?:NO|NR|NUM)[.:#\s]+`,
	// revision-series markers: "-REV2", " RV.1", "REV3"
	`(?:[-_\s.](?:REV|RV)\.?\s?\d{0,2}|REV\.?\d{1,2})$`,
	// copy markers: "(COPY)", "-DUP", " DUPLICATE"
	`(?:[-_\s]\(?(?:COPY|DUPLICATE|DUP)\)?|\((?:COPY|DUPLICATE|DUP)\))$`,
	// trailing sub-line indices: "12345/1", "12345_02"
	`[/_]\d{1,2}$`,
	// stray punctuation anywhere
	`[\s.,;:'"#*()]+`,
}

// invoiceNumberNormalizer turns a raw invoice number into its comparison
// form. It is immutable once built and safe for concurrent use.
type invoiceNumberNormalizer struct {
	patterns []*regexp.Regexp
	suffixes []string
	edges    string
}

func newInvoiceNumberNormalizer(patterns, suffixes []string) (*invoiceNumberNormalizer, error) {
	n := &invoiceNumberNormalizer{edges: "-/_"}

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid noise pattern %q: %w", p, err)
		}
		n.patterns = append(n.patterns, re)
	}

	for _, s := range suffixes {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			n.suffixes = append(n.suffixes, s)
		}
	}
	// longest first so "CR1" wins over "CR"
	sort.SliceStable(n.suffixes, func(i, j int) bool {
		return len(n.suffixes[i]) > len(n.suffixes[j])
	})

	return n, nil
}

// Normalize upper-cases and trims s, removes noise tokens, strips one
// trailing suffix code and finally left-strips zeros together with any
// separators they uncover. Hyphens inside the number are kept.
func (n *invoiceNumberNormalizer) Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	for _, re := range n.patterns {
		if stripped := re.ReplaceAllString(s, ""); stripped != "" {
			s = stripped
		}
	}
	s = strings.Trim(s, n.edges)

	for _, suffix := range n.suffixes {
		if len(s) > len(suffix) && strings.HasSuffix(s, suffix) {
			s = strings.TrimRight(strings.TrimSuffix(s, suffix), n.edges)
			break
		}
	}

	if trimmed := strings.TrimLeft(s, "0"+n.edges); trimmed != "" {
		s = trimmed
	} else if s != "" {
		s = "0"
	}
	return s
}
