package preprocess

import (
	"fmt"
	"strconv"
	"strings"

	"golang-invoice-dedup-service/internal/models"
	apperrors "golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

// PrimaryKeyMode selects how primary keys are assigned.
type PrimaryKeyMode string

const (
	// PrimaryKeySequence assigns 1..n to kept rows in input order.
	PrimaryKeySequence PrimaryKeyMode = "sequence"
	// PrimaryKeyColumn reuses the source identifier column.
	PrimaryKeyColumn PrimaryKeyMode = "column"
)

// DropReason explains why a raw row did not become an InvoiceRecord.
type DropReason string

const (
	DropMissingInvoiceNumber DropReason = "missing_invoice_number"
	DropMissingAmount        DropReason = "missing_amount"
	DropMissingSourceID      DropReason = "missing_source_id"
	DropDuplicateSourceID    DropReason = "duplicate_source_id"
	DropZeroAmount           DropReason = "zero_amount"
	DropExcludedType         DropReason = "excluded_invoice_type"
	DropExcludedStatus       DropReason = "excluded_status"
	DropEmployeeVendor       DropReason = "employee_vendor"
)

// Config contains configuration for invoice preprocessing
type Config struct {
	PrimaryKeyMode PrimaryKeyMode `mapstructure:"primary_key_mode"`

	SuffixCodes   []string `mapstructure:"suffix_codes"`
	NoisePatterns []string `mapstructure:"noise_patterns"`

	ClassifySuppliers bool `mapstructure:"classify_suppliers"`

	DropZeroAmounts        bool     `mapstructure:"drop_zero_amounts"`
	ExcludedInvoiceTypes   []string `mapstructure:"excluded_invoice_types"`
	ExcludedStatuses       []string `mapstructure:"excluded_statuses"`
	ExcludeEmployeeVendors bool     `mapstructure:"exclude_employee_vendors"`
	EmployeeVendorTypes    []string `mapstructure:"employee_vendor_types"`
}

// DefaultConfig returns a default preprocessing configuration
func DefaultConfig() *Config {
	return &Config{
		PrimaryKeyMode:      PrimaryKeySequence,
		SuffixCodes:         append([]string(nil), DefaultSuffixCodes...),
		NoisePatterns:       append([]string(nil), DefaultNoisePatterns...),
		DropZeroAmounts:     true,
		EmployeeVendorTypes: []string{"EMPLOYEE", "EMP"},
	}
}

// Validate validates the configuration parameters
func (c *Config) Validate() error {
	switch c.PrimaryKeyMode {
	case PrimaryKeySequence, PrimaryKeyColumn:
	default:
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "primary_key_mode", c.PrimaryKeyMode, nil)
	}
	if c.ExcludeEmployeeVendors && len(c.EmployeeVendorTypes) == 0 {
		return apperrors.ConfigurationError(apperrors.CodeMissingConfig, "employee_vendor_types", nil, nil)
	}
	return nil
}

// DroppedRow records one excluded input row.
type DroppedRow struct {
	Line   int        `json:"line"`
	Ref    string     `json:"ref"`
	Reason DropReason `json:"reason"`
}

// Result is the output of one preprocessing pass.
type Result struct {
	Records     []*models.InvoiceRecord `json:"-"`
	Dropped     []DroppedRow            `json:"dropped,omitempty"`
	DropReasons map[DropReason]int      `json:"drop_reasons"`
	InputRows   int                     `json:"input_rows"`
}

// Preprocessor normalises raw invoice rows into immutable records.
type Preprocessor struct {
	config     *Config
	numbers    *invoiceNumberNormalizer
	classifier NameClassifier
	logger     logger.Logger

	excludedTypes    map[string]struct{}
	excludedStatuses map[string]struct{}
	employeeTypes    map[string]struct{}
}

// NewPreprocessor compiles the noise catalogue once. classifier may be nil,
// in which case HeuristicClassifier is used when classification is enabled.
func NewPreprocessor(config *Config, classifier NameClassifier) (*Preprocessor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	numbers, err := newInvoiceNumberNormalizer(config.NoisePatterns, config.SuffixCodes)
	if err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "noise_patterns", config.NoisePatterns, err)
	}

	if classifier == nil {
		classifier = HeuristicClassifier{}
	}

	return &Preprocessor{
		config:           config,
		numbers:          numbers,
		classifier:       classifier,
		logger:           logger.GetGlobalLogger().WithComponent("preprocessor"),
		excludedTypes:    upperSet(config.ExcludedInvoiceTypes),
		excludedStatuses: upperSet(config.ExcludedStatuses),
		employeeTypes:    upperSet(config.EmployeeVendorTypes),
	}, nil
}

func upperSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// NormalizeInvoiceNumber exposes the invoice-number normalisation rules.
func (p *Preprocessor) NormalizeInvoiceNumber(raw string) string {
	return p.numbers.Normalize(raw)
}

// Process converts raw rows into records. Rows that miss a mandatory field
// or are filtered out are dropped and logged; Process never fails.
func (p *Preprocessor) Process(raws []*models.RawInvoice) *Result {
	result := &Result{
		Records:     make([]*models.InvoiceRecord, 0, len(raws)),
		DropReasons: make(map[DropReason]int),
		InputRows:   len(raws),
	}
	seenIDs := make(map[string]struct{})

	for i, raw := range raws {
		ref := rowRef(raw, i)

		if reason, field, dropped := p.filter(raw); dropped {
			p.drop(result, raw, ref, reason, field)
			continue
		}

		var key string
		switch p.config.PrimaryKeyMode {
		case PrimaryKeyColumn:
			key = strings.TrimSpace(raw.SourceID)
			if key == "" {
				p.drop(result, raw, ref, DropMissingSourceID, "id")
				continue
			}
			if _, dup := seenIDs[key]; dup {
				p.drop(result, raw, ref, DropDuplicateSourceID, "id")
				continue
			}
			seenIDs[key] = struct{}{}
		default:
			key = strconv.Itoa(len(result.Records) + 1)
		}

		result.Records = append(result.Records, p.normalize(raw, key))
	}

	if len(result.Dropped) > 0 {
		fields := logger.Fields{"input_rows": result.InputRows, "kept": len(result.Records)}
		for reason, count := range result.DropReasons {
			fields[string(reason)] = count
		}
		p.logger.WithFields(fields).Info("Dropped rows during preprocessing")
	}

	return result
}

func (p *Preprocessor) filter(raw *models.RawInvoice) (DropReason, string, bool) {
	if strings.TrimSpace(raw.InvoiceNumber) == "" {
		return DropMissingInvoiceNumber, "invoice_number", true
	}
	if !raw.HasAmount {
		return DropMissingAmount, "invoice_amount", true
	}
	if p.config.DropZeroAmounts && raw.Amount.IsZero() {
		return DropZeroAmount, "invoice_amount", true
	}
	if _, ok := p.excludedTypes[strings.ToUpper(strings.TrimSpace(raw.InvoiceType))]; ok {
		return DropExcludedType, "invoice_type", true
	}
	if _, ok := p.excludedStatuses[strings.ToUpper(strings.TrimSpace(raw.Status))]; ok {
		return DropExcludedStatus, "status", true
	}
	if p.config.ExcludeEmployeeVendors {
		if _, ok := p.employeeTypes[strings.ToUpper(strings.TrimSpace(raw.VendorType))]; ok {
			return DropEmployeeVendor, "vendor_type", true
		}
	}
	return "", "", false
}

func (p *Preprocessor) drop(result *Result, raw *models.RawInvoice, ref string, reason DropReason, field string) {
	result.Dropped = append(result.Dropped, DroppedRow{Line: raw.Line, Ref: ref, Reason: reason})
	result.DropReasons[reason]++

	code := apperrors.CodeFilteredRecord
	switch reason {
	case DropMissingInvoiceNumber, DropMissingAmount, DropMissingSourceID:
		code = apperrors.CodeMissingMandatory
	case DropDuplicateSourceID:
		code = apperrors.CodeDuplicateKey
	}
	p.logger.WithError(apperrors.DataQualityError(code, ref, field)).Debug("Dropping row")
}

func (p *Preprocessor) normalize(raw *models.RawInvoice, key string) *models.InvoiceRecord {
	supplier := NormalizeSupplierName(raw.SupplierName)

	rec := &models.InvoiceRecord{
		PrimaryKey:              key,
		InvoiceNumberRaw:        raw.InvoiceNumber,
		InvoiceNumberNormalized: p.numbers.Normalize(raw.InvoiceNumber),
		SupplierName:            supplier,
		SupplierNameRaw:         raw.SupplierName,
		InvoiceDate:             raw.InvoiceDate,
		InvoiceAmount:           raw.Amount,
		InvoiceAmountAbs:        raw.Amount.Abs(),
		DebitCreditIndicator:    models.ParseDebitCreditIndicator(raw.DebitCredit),
		IsCurrentData:           raw.IsCurrentData,
		InvoiceType:             strings.ToUpper(strings.TrimSpace(raw.InvoiceType)),
		CompanyCode:             strings.ToUpper(strings.TrimSpace(raw.CompanyCode)),
		Currency:                strings.ToUpper(strings.TrimSpace(raw.Currency)),
		SourceLine:              raw.Line,
	}

	if p.config.ClassifySuppliers && supplier != "" {
		rec.SupplierType = p.classifier.Classify(supplier)
	}

	return rec
}

func rowRef(raw *models.RawInvoice, index int) string {
	if raw.Line > 0 {
		return fmt.Sprintf("line %d", raw.Line)
	}
	return fmt.Sprintf("row %d", index+1)
}
