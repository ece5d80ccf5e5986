package preprocess

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-invoice-dedup-service/internal/models"
	apperrors "golang-invoice-dedup-service/pkg/errors"
)

func raw(line int, number, supplier, amount string) *models.RawInvoice {
	r := &models.RawInvoice{
		Line:          line,
		InvoiceNumber: number,
		SupplierName:  supplier,
		InvoiceDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DebitCredit:   "INVOICE",
		IsCurrentData: true,
	}
	if amount != "" {
		r.Amount = decimal.RequireFromString(amount)
		r.HasAmount = true
	}
	return r
}

func TestNormalizeInvoiceNumber(t *testing.T) {
	p, err := NewPreprocessor(DefaultConfig(), nil)
	require.NoError(t, err)

	tests := []struct {
		input    string
		expected string
	}{
		{" inv-0042 ", "INV-0042"},
		{"000123", "123"},
		{"INV123-VD1", "INV123"},
		{"INV123CR", "INV123"},
		{"INV123 CR2", "INV123"},
		{"12345/1", "12345"},
		{"12345_02", "12345"},
		{"NO. 4711", "4711"},
		{"INV 99-REV2", "INV99"},
		{"A-1001 (COPY)", "A-1001"},
		{"#00789.", "789"},
		{"CR", "CR"},
		{"INV001-R", "INV001-R"},
		{"0000", "0"},
		{"0-12", "12"},
		{"00/7A", "7A"},
		{"0-0", "0"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.NormalizeInvoiceNumber(tt.input))
		})
	}
}

func TestNormalizeSupplierName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Acme Ltd.", "ACME LTD"},
		{"  Müller & Söhne GmbH ", "MULLER AND SOHNE GMBH"},
		{"O'Brien, Sean", "O BRIEN SEAN"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSupplierName(tt.input))
		})
	}
}

func TestStripLegalForms(t *testing.T) {
	assert.Equal(t, "ACME", StripLegalForms("ACME LTD"))
	assert.Equal(t, "MULLER AND SOHNE", StripLegalForms("MULLER AND SOHNE GMBH"))
	assert.Equal(t, "LTD", StripLegalForms("LTD"))
}

func TestHeuristicClassifier(t *testing.T) {
	c := HeuristicClassifier{}

	tests := []struct {
		name     string
		expected models.SupplierType
	}{
		{"ACME LTD", models.SupplierOrganisation},
		{"GLOBAL LOGISTICS", models.SupplierOrganisation},
		{"JOHN SMITH", models.SupplierPerson},
		{"MARIA DE LA CRUZ", models.SupplierPerson},
		{"ACME", models.SupplierOrganisation},
		{"ROUTE 66 DINER", models.SupplierOrganisation},
		{"", models.SupplierUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.name))
		})
	}
}

func TestProcess_SequenceKeysAndDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludedInvoiceTypes = []string{"credit_memo"}
	cfg.ExcludedStatuses = []string{"PARKED"}
	cfg.ExcludeEmployeeVendors = true

	p, err := NewPreprocessor(cfg, nil)
	require.NoError(t, err)

	memo := raw(5, "INV-5", "ACME", "10")
	memo.InvoiceType = "Credit_Memo"
	parked := raw(6, "INV-6", "ACME", "10")
	parked.Status = "parked"
	employee := raw(7, "INV-7", "JOHN SMITH", "10")
	employee.VendorType = "employee"

	rows := []*models.RawInvoice{
		raw(1, "inv-0001", "Acme Ltd.", "100.00"),
		raw(2, "", "Acme Ltd.", "100.00"),
		raw(3, "INV-3", "Acme Ltd.", ""),
		raw(4, "INV-4", "Acme Ltd.", "0.00"),
		memo,
		parked,
		employee,
		raw(8, "INV-8", "Beta", "-42.10"),
	}

	res := p.Process(rows)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "1", res.Records[0].PrimaryKey)
	assert.Equal(t, "2", res.Records[1].PrimaryKey)
	assert.Equal(t, "INV-0001", res.Records[0].InvoiceNumberNormalized)
	assert.Equal(t, "inv-0001", res.Records[0].InvoiceNumberRaw)
	assert.Equal(t, "ACME LTD", res.Records[0].SupplierName)
	assert.Equal(t, "Acme Ltd.", res.Records[0].SupplierNameRaw)
	assert.True(t, res.Records[1].InvoiceAmountAbs.Equal(decimal.RequireFromString("42.10")))
	assert.Equal(t, models.IndicatorInvoice, res.Records[1].DebitCreditIndicator)
	assert.Equal(t, models.SupplierUnknown, res.Records[0].SupplierType)

	assert.Equal(t, 8, res.InputRows)
	assert.Len(t, res.Dropped, 6)
	assert.Equal(t, map[DropReason]int{
		DropMissingInvoiceNumber: 1,
		DropMissingAmount:        1,
		DropZeroAmount:           1,
		DropExcludedType:         1,
		DropExcludedStatus:       1,
		DropEmployeeVendor:       1,
	}, res.DropReasons)
	assert.Equal(t, 2, res.Dropped[0].Line)
}

func TestProcess_ColumnKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrimaryKeyMode = PrimaryKeyColumn
	p, err := NewPreprocessor(cfg, nil)
	require.NoError(t, err)

	a := raw(1, "INV-1", "ACME", "1")
	a.SourceID = "DOC-9"
	b := raw(2, "INV-2", "ACME", "1")
	b.SourceID = "DOC-9"
	c := raw(3, "INV-3", "ACME", "1")

	res := p.Process([]*models.RawInvoice{a, b, c})

	require.Len(t, res.Records, 1)
	assert.Equal(t, "DOC-9", res.Records[0].PrimaryKey)
	assert.Equal(t, 1, res.DropReasons[DropDuplicateSourceID])
	assert.Equal(t, 1, res.DropReasons[DropMissingSourceID])
}

func TestProcess_ClassifiesSuppliers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClassifySuppliers = true

	calls := 0
	classifier := ClassifierFunc(func(name string) models.SupplierType {
		calls++
		return models.SupplierPerson
	})

	p, err := NewPreprocessor(cfg, classifier)
	require.NoError(t, err)

	res := p.Process([]*models.RawInvoice{
		raw(1, "INV-1", "Jane Doe", "5"),
		raw(2, "INV-2", "", "5"),
	})

	require.Len(t, res.Records, 2)
	assert.Equal(t, models.SupplierPerson, res.Records[0].SupplierType)
	assert.Equal(t, models.SupplierUnknown, res.Records[1].SupplierType)
	assert.Equal(t, 1, calls)
}

func TestNewPreprocessor_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoisePatterns = []string{"(["}
	_, err := NewPreprocessor(cfg, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))

	cfg = DefaultConfig()
	cfg.PrimaryKeyMode = "uuid"
	_, err = NewPreprocessor(cfg, nil)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
}
