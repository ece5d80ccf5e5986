package models

import (
	"sort"
	"strings"
)

// Column names usable in scenario grouping and comparison settings.
const (
	ColumnInvoiceNumber    = "invoice_number"
	ColumnInvoiceNumberRaw = "invoice_number_raw"
	ColumnSupplierName     = "supplier_name"
	ColumnSupplierType     = "supplier_type"
	ColumnInvoiceDate      = "invoice_date"
	ColumnInvoiceAmount    = "invoice_amount"
	ColumnInvoiceAmountAbs = "invoice_amount_abs"
	ColumnDebitCredit      = "debit_credit_indicator"
	ColumnInvoiceType      = "invoice_type"
	ColumnCompanyCode      = "company_code"
	ColumnCurrency         = "currency"
)

// FieldAccessor extracts one column of a record as a comparable string.
// An empty result means the value is missing.
type FieldAccessor func(r *InvoiceRecord) string

var columnAccessors = map[string]FieldAccessor{
	ColumnInvoiceNumber:    func(r *InvoiceRecord) string { return r.InvoiceNumberNormalized },
	ColumnInvoiceNumberRaw: func(r *InvoiceRecord) string { return r.InvoiceNumberRaw },
	ColumnSupplierName:     func(r *InvoiceRecord) string { return r.SupplierName },
	ColumnSupplierType:     func(r *InvoiceRecord) string { return string(r.SupplierType) },
	ColumnInvoiceDate:      func(r *InvoiceRecord) string { return FormatDate(r.InvoiceDate) },
	ColumnInvoiceAmount:    func(r *InvoiceRecord) string { return r.InvoiceAmount.String() },
	ColumnInvoiceAmountAbs: func(r *InvoiceRecord) string { return r.InvoiceAmountAbs.String() },
	ColumnDebitCredit:      func(r *InvoiceRecord) string { return string(r.DebitCreditIndicator) },
	ColumnInvoiceType:      func(r *InvoiceRecord) string { return r.InvoiceType },
	ColumnCompanyCode:      func(r *InvoiceRecord) string { return r.CompanyCode },
	ColumnCurrency:         func(r *InvoiceRecord) string { return r.Currency },
}

// LookupColumn resolves a column name (case-insensitive) to its accessor.
func LookupColumn(name string) (FieldAccessor, bool) {
	acc, ok := columnAccessors[strings.ToLower(strings.TrimSpace(name))]
	return acc, ok
}

// KnownColumns returns all supported column names in sorted order.
func KnownColumns() []string {
	names := make([]string, 0, len(columnAccessors))
	for name := range columnAccessors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
