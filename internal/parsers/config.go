package parsers

import (
	"fmt"
	"strings"
)

// Standard field names of an invoice extract.
const (
	FieldID            = "id"
	FieldInvoiceNumber = "invoice_number"
	FieldSupplierName  = "supplier_name"
	FieldInvoiceDate   = "invoice_date"
	FieldAmount        = "invoice_amount"
	FieldDebitCredit   = "debit_credit_indicator"
	FieldInvoiceType   = "invoice_type"
	FieldStatus        = "status"
	FieldVendorType    = "vendor_type"
	FieldCompanyCode   = "company_code"
	FieldCurrency      = "currency"
	FieldCurrentData   = "is_current_data"
)

// requiredFields must be present in the header row.
var requiredFields = []string{FieldInvoiceNumber, FieldSupplierName, FieldInvoiceDate, FieldAmount}

// allFields lists every field in the default column order used for files
// without a header row.
var allFields = []string{
	FieldID, FieldInvoiceNumber, FieldSupplierName, FieldInvoiceDate, FieldAmount,
	FieldDebitCredit, FieldInvoiceType, FieldStatus, FieldVendorType,
	FieldCompanyCode, FieldCurrency, FieldCurrentData,
}

// headerSynonyms are header spellings seen in common ERP exports. They are
// tried, case-insensitively, when the configured column is missing.
var headerSynonyms = map[string][]string{
	FieldID:            {"primary_key", "document_id", "line_id", "belnr", "doc_no"},
	FieldInvoiceNumber: {"invoice_no", "invoice_num", "invoice_ref", "invoicenumber", "reference", "xblnr", "invoice #"},
	FieldSupplierName:  {"supplier", "vendor", "vendor_name", "suppliername", "creditor_name", "payee"},
	FieldInvoiceDate:   {"date", "document_date", "invoicedate", "bldat", "doc_date"},
	FieldAmount:        {"amount", "gross_amount", "invoice_value", "wrbtr", "value"},
	FieldDebitCredit:   {"dc_indicator", "debit_credit", "shkzg", "posting_key", "dr_cr"},
	FieldInvoiceType:   {"document_type", "doc_type", "blart", "type"},
	FieldStatus:        {"invoice_status", "doc_status", "state"},
	FieldVendorType:    {"supplier_type", "vendor_category", "vendor_group"},
	FieldCompanyCode:   {"company", "bukrs", "entity"},
	FieldCurrency:      {"currency_code", "waers", "ccy"},
	FieldCurrentData:   {"current", "is_current", "current_data"},
}

// InvoiceParserConfig holds configuration for parsing invoice extracts
type InvoiceParserConfig struct {
	HasHeader      bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter      rune              `json:"delimiter" mapstructure:"delimiter"`
	DateFormat     string            `json:"date_format,omitempty" mapstructure:"date_format"`
	DetectEncoding bool              `json:"detect_encoding" mapstructure:"detect_encoding"`
	ColumnAliases  map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`

	// DefaultCurrentData applies when the extract has no is_current_data
	// column.
	DefaultCurrentData bool `json:"default_current_data" mapstructure:"default_current_data"`

	// MaxErrors aborts parsing once more rows than this failed. Zero means
	// no limit.
	MaxErrors int `json:"max_errors" mapstructure:"max_errors"`
}

// DefaultInvoiceParserConfig returns a configuration with standard defaults
func DefaultInvoiceParserConfig() *InvoiceParserConfig {
	return &InvoiceParserConfig{
		HasHeader:          true,
		Delimiter:          ',',
		DetectEncoding:     true,
		ColumnAliases:      make(map[string]string),
		DefaultCurrentData: true,
	}
}

// Validate checks if the invoice parser configuration is valid
func (c *InvoiceParserConfig) Validate() error {
	switch c.Delimiter {
	case 0, '\r', '\n', '"':
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", c.MaxErrors)
	}
	for field := range c.ColumnAliases {
		if !isKnownField(field) {
			return fmt.Errorf("column alias for unknown field %q", field)
		}
	}
	return nil
}

// GetColumnName returns the configured header for a standard field,
// checking aliases first
func (c *InvoiceParserConfig) GetColumnName(standardName string) string {
	if alias, exists := c.ColumnAliases[standardName]; exists && strings.TrimSpace(alias) != "" {
		return alias
	}
	return standardName
}

func isKnownField(name string) bool {
	for _, f := range allFields {
		if f == name {
			return true
		}
	}
	return false
}

// ResolveColumns maps every standard field to a column index of the
// header row, or -1. Configured names win over synonyms.
func (c *InvoiceParserConfig) ResolveColumns(parseCtx *ParseContext) map[string]int {
	columns := make(map[string]int, len(allFields))
	for _, field := range allFields {
		idx := parseCtx.GetColumnIndex(c.GetColumnName(field))
		if idx == -1 {
			if _, aliased := c.ColumnAliases[field]; !aliased {
				for _, syn := range headerSynonyms[field] {
					if idx = parseCtx.GetColumnIndex(syn); idx != -1 {
						break
					}
				}
			}
		}
		columns[field] = idx
	}
	return columns
}

// missingRequired returns the required fields that resolved to no column.
func missingRequired(columns map[string]int) []string {
	var missing []string
	for _, f := range requiredFields {
		if columns[f] == -1 {
			missing = append(missing, f)
		}
	}
	return missing
}
