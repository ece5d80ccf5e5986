package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical layout used for invoice dates in keys and output.
const DateLayout = "2006-01-02"

// DebitCreditIndicator classifies a posting as an invoice, a reversal of one,
// or anything else.
type DebitCreditIndicator string

const (
	IndicatorInvoice  DebitCreditIndicator = "INVOICE"
	IndicatorReversal DebitCreditIndicator = "REVERSAL"
	IndicatorOther    DebitCreditIndicator = "OTHER"
)

// String returns the string representation of DebitCreditIndicator
func (d DebitCreditIndicator) String() string {
	return string(d)
}

// ParseDebitCreditIndicator maps the many upstream spellings onto the
// three indicator values. Unknown values become IndicatorOther.
func ParseDebitCreditIndicator(s string) DebitCreditIndicator {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INVOICE", "INV", "I", "DEBIT", "DR", "D", "S":
		return IndicatorInvoice
	case "REVERSAL", "REV", "R", "CREDIT", "CR", "C", "H", "CANCELLATION":
		return IndicatorReversal
	default:
		return IndicatorOther
	}
}

// SupplierType is the entity class assigned to a supplier name.
type SupplierType string

const (
	SupplierUnknown      SupplierType = ""
	SupplierPerson       SupplierType = "PERSON"
	SupplierOrganisation SupplierType = "ORGANISATION"
)

// RawInvoice is one input row as read from the source file, before
// normalisation. Optional fields are empty strings when absent.
type RawInvoice struct {
	Line          int
	SourceID      string
	InvoiceNumber string
	SupplierName  string
	InvoiceDate   time.Time
	Amount        decimal.Decimal
	HasAmount     bool
	DebitCredit   string
	InvoiceType   string
	Status        string
	VendorType    string
	CompanyCode   string
	Currency      string
	IsCurrentData bool
}

// InvoiceRecord is the normalised, immutable view of one invoice posting
// used by every detection stage.
type InvoiceRecord struct {
	PrimaryKey              string               `json:"primary_key"`
	InvoiceNumberRaw        string               `json:"invoice_number_raw"`
	InvoiceNumberNormalized string               `json:"invoice_number_normalized"`
	SupplierName            string               `json:"supplier_name"`
	SupplierNameRaw         string               `json:"supplier_name_raw"`
	SupplierType            SupplierType         `json:"supplier_type,omitempty"`
	InvoiceDate             time.Time            `json:"invoice_date"`
	InvoiceAmount           decimal.Decimal      `json:"invoice_amount"`
	InvoiceAmountAbs        decimal.Decimal      `json:"invoice_amount_abs"`
	DebitCreditIndicator    DebitCreditIndicator `json:"debit_credit_indicator"`
	IsCurrentData           bool                 `json:"is_current_data"`
	InvoiceType             string               `json:"invoice_type,omitempty"`
	CompanyCode             string               `json:"company_code,omitempty"`
	Currency                string               `json:"currency,omitempty"`
	SourceLine              int                  `json:"source_line,omitempty"`
}

// String returns a string representation of the InvoiceRecord
func (r *InvoiceRecord) String() string {
	return fmt.Sprintf("Invoice{Key: %s, Number: %s, Supplier: %s, Date: %s, Amount: %s}",
		r.PrimaryKey, r.InvoiceNumberNormalized, r.SupplierName, FormatDate(r.InvoiceDate), r.InvoiceAmount.String())
}

// MarshalJSON renders amounts as decimal strings and the date as YYYY-MM-DD.
func (r InvoiceRecord) MarshalJSON() ([]byte, error) {
	type Alias InvoiceRecord
	return json.Marshal(&struct {
		InvoiceDate      string `json:"invoice_date"`
		InvoiceAmount    string `json:"invoice_amount"`
		InvoiceAmountAbs string `json:"invoice_amount_abs"`
		Alias
	}{
		InvoiceDate:      FormatDate(r.InvoiceDate),
		InvoiceAmount:    r.InvoiceAmount.String(),
		InvoiceAmountAbs: r.InvoiceAmountAbs.String(),
		Alias:            Alias(r),
	})
}

// IsInvoice reports whether the record is an invoice posting.
func (r *InvoiceRecord) IsInvoice() bool {
	return r.DebitCreditIndicator == IndicatorInvoice
}

// IsReversal reports whether the record reverses an earlier posting.
func (r *InvoiceRecord) IsReversal() bool {
	return r.DebitCreditIndicator == IndicatorReversal
}

// FormatDate formats a date with DateLayout; the zero time yields "".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDecimalFromString parses an amount, tolerating currency symbols,
// thousand separators, accounting parentheses and a trailing minus sign.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}

	return d, nil
}

// ParseTimeWithFormats attempts to parse a date using the layouts commonly
// found in ERP exports.
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006/01/02",
		"02.01.2006",
		"20060102",
		"01/02/2006",
		"Jan 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ParseFlag reads the yes/no spellings used by ERP extracts.
func ParseFlag(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "Y", "YES", "TRUE", "T", "X":
		return true, nil
	case "0", "N", "NO", "FALSE", "F", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid flag value '%s'", s)
	}
}
