package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDebitCreditIndicator(t *testing.T) {
	tests := []struct {
		input    string
		expected DebitCreditIndicator
	}{
		{"INVOICE", IndicatorInvoice},
		{" dr ", IndicatorInvoice},
		{"S", IndicatorInvoice},
		{"Reversal", IndicatorReversal},
		{"H", IndicatorReversal},
		{"CR", IndicatorReversal},
		{"payment", IndicatorOther},
		{"", IndicatorOther},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseDebitCreditIndicator(tt.input); got != tt.expected {
				t.Errorf("ParseDebitCreditIndicator(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input     string
		expected  string
		wantError bool
	}{
		{"100.50", "100.5", false},
		{"$1,234.56", "1234.56", false},
		{"(250.00)", "-250", false},
		{"250.00-", "-250", false},
		{"-0", "0", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if tt.wantError {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := decimal.RequireFromString(tt.expected)
			if !got.Equal(want) {
				t.Errorf("ParseDecimalFromString(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestParseTimeWithFormats(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, input := range []string{"2024-01-15", "2024/01/15", "15.01.2024", "20240115", "01/15/2024"} {
		t.Run(input, func(t *testing.T) {
			got, err := ParseTimeWithFormats(input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}

	if _, err := ParseTimeWithFormats("not a date"); err == nil {
		t.Error("expected error for invalid date")
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		input     string
		expected  bool
		wantError bool
	}{
		{"X", true, false},
		{"yes", true, false},
		{"0", false, false},
		{"", false, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFlag(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseFlag(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
			if got != tt.expected {
				t.Errorf("ParseFlag(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInvoiceRecord_JSONMarshaling(t *testing.T) {
	rec := InvoiceRecord{
		PrimaryKey:              "7",
		InvoiceNumberRaw:        "INV-0042",
		InvoiceNumberNormalized: "INV-0042",
		SupplierName:            "ACME",
		InvoiceDate:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		InvoiceAmount:           decimal.RequireFromString("-12.50"),
		InvoiceAmountAbs:        decimal.RequireFromString("12.50"),
		DebitCreditIndicator:    IndicatorReversal,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["invoice_date"] != "2024-03-01" {
		t.Errorf("expected invoice_date 2024-03-01, got %v", out["invoice_date"])
	}
	if out["invoice_amount"] != "-12.5" {
		t.Errorf("expected invoice_amount -12.5, got %v", out["invoice_amount"])
	}
	if out["debit_credit_indicator"] != "REVERSAL" {
		t.Errorf("expected REVERSAL, got %v", out["debit_credit_indicator"])
	}
}

func TestLookupColumn(t *testing.T) {
	rec := &InvoiceRecord{
		SupplierName:     "ACME",
		InvoiceDate:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		InvoiceAmountAbs: decimal.RequireFromString("100"),
	}

	tests := []struct {
		column   string
		expected string
		found    bool
	}{
		{"supplier_name", "ACME", true},
		{" Invoice_Date ", "2024-03-01", true},
		{"invoice_amount_abs", "100", true},
		{"company_code", "", true},
		{"vendor_code", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			acc, ok := LookupColumn(tt.column)
			if ok != tt.found {
				t.Fatalf("LookupColumn(%q) found = %v, want %v", tt.column, ok, tt.found)
			}
			if ok && acc(rec) != tt.expected {
				t.Errorf("accessor(%q) = %q, want %q", tt.column, acc(rec), tt.expected)
			}
		})
	}

	if len(KnownColumns()) != len(columnAccessors) {
		t.Errorf("KnownColumns returned %d names", len(KnownColumns()))
	}
}

func TestScenario_WithDefaultsAndValidate(t *testing.T) {
	s := Scenario{ScenarioID: 4, GroupingColumns: []string{"supplier_name", "invoice_date"}}.WithDefaults()

	if s.ScoreThreshold != DefaultScoreThreshold {
		t.Errorf("expected default threshold, got %.1f", s.ScoreThreshold)
	}
	if s.CompareColumn != ColumnInvoiceNumber {
		t.Errorf("expected compare column %s, got %s", ColumnInvoiceNumber, s.CompareColumn)
	}
	if s.SupplierMatching != SupplierMatchExact {
		t.Errorf("expected exact supplier matching, got %s", s.SupplierMatching)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}

	loose := Scenario{ScenarioID: 5, GroupingColumns: []string{"invoice_date"}, ScoreThreshold: 0.5, SupplierThreshold: 1}.WithDefaults()
	if loose.ScoreThreshold != 0.5 || loose.SupplierThreshold != 1 {
		t.Errorf("expected explicit thresholds to be kept, got %.1f/%.1f", loose.ScoreThreshold, loose.SupplierThreshold)
	}
	if s.SupplierThreshold != DefaultSupplierThreshold {
		t.Errorf("expected zero supplier threshold to select the default, got %.1f", s.SupplierThreshold)
	}

	tests := []struct {
		name     string
		scenario Scenario
	}{
		{"zero id", Scenario{GroupingColumns: []string{"supplier_name"}}},
		{"no columns", Scenario{ScenarioID: 1}},
		{"threshold too high", Scenario{ScenarioID: 1, GroupingColumns: []string{"supplier_name"}, ScoreThreshold: 120}},
		{"negative threshold", Scenario{ScenarioID: 1, GroupingColumns: []string{"supplier_name"}, ScoreThreshold: -1}},
		{"bad supplier match", Scenario{ScenarioID: 1, GroupingColumns: []string{"supplier_name"}, SupplierMatching: "phonetic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.scenario.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
