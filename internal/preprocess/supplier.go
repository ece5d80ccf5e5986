package preprocess

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"golang-invoice-dedup-service/internal/models"
)

// NameClassifier decides whether a supplier name denotes a person or an
// organisation. Implementations may wrap an external entity recogniser.
type NameClassifier interface {
	Classify(name string) models.SupplierType
}

// ClassifierFunc adapts a plain function to NameClassifier.
type ClassifierFunc func(name string) models.SupplierType

// Classify calls f(name).
func (f ClassifierFunc) Classify(name string) models.SupplierType {
	return f(name)
}

var legalForms = toSet(
	"LTD", "LIMITED", "PLC", "LLC", "LLP", "INC", "INCORPORATED", "CORP", "CORPORATION",
	"CO", "COMPANY", "GMBH", "AG", "KG", "SA", "SAS", "SARL", "SRL", "SPA", "BV", "NV",
	"PTY", "OY", "AB", "AS", "APS", "SE", "KK", "PVT", "BHD", "SDN",
)

var organisationKeywords = toSet(
	"BANK", "GROUP", "HOLDING", "HOLDINGS", "SERVICES", "SOLUTIONS", "SYSTEMS", "TRADING",
	"INTERNATIONAL", "INDUSTRIES", "ENTERPRISES", "LOGISTICS", "CONSULTING", "PARTNERS",
	"ASSOCIATES", "SUPPLIES", "TECHNOLOGIES", "UNIVERSITY", "HOSPITAL", "COUNCIL",
	"MINISTRY", "FOUNDATION", "AND", "STORES", "MARKET", "AGENCY", "INSURANCE",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// NormalizeSupplierName folds accents, upper-cases, replaces punctuation
// and special characters with spaces and collapses whitespace.
func NormalizeSupplierName(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	folded = strings.ReplaceAll(folded, "&", " AND ")
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return ' '
	}, folded)

	return strings.Join(strings.Fields(mapped), " ")
}

// StripLegalForms removes legal-form tokens ("LTD", "GMBH", ...) from a
// normalised supplier name.
func StripLegalForms(normalized string) string {
	tokens := strings.Fields(normalized)
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := legalForms[tok]; !ok {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return normalized
	}
	return strings.Join(kept, " ")
}

// HeuristicClassifier classifies normalised names by legal-form and
// organisation keywords. Names of two to four purely alphabetic tokens
// with no such keyword are treated as persons.
type HeuristicClassifier struct{}

// Classify implements NameClassifier.
func (HeuristicClassifier) Classify(name string) models.SupplierType {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return models.SupplierUnknown
	}

	for _, tok := range tokens {
		if _, ok := legalForms[tok]; ok {
			return models.SupplierOrganisation
		}
		if _, ok := organisationKeywords[tok]; ok {
			return models.SupplierOrganisation
		}
	}

	if len(tokens) < 2 || len(tokens) > 4 {
		return models.SupplierOrganisation
	}
	for _, tok := range tokens {
		for _, r := range tok {
			if !unicode.IsLetter(r) {
				return models.SupplierOrganisation
			}
		}
	}
	return models.SupplierPerson
}
