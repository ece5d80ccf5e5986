package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

// InvoiceParser handles parsing of invoice extract files
type InvoiceParser struct {
	*BaseParser
	config *InvoiceParserConfig
	logger logger.Logger
}

// NewInvoiceParser creates a new InvoiceParser with the given configuration
func NewInvoiceParser(config *InvoiceParserConfig) (*InvoiceParser, error) {
	if config == nil {
		config = DefaultInvoiceParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"invoice_parser_config",
			nil,
			err,
		).WithSuggestion("Check the invoice parser configuration values")
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter
	parseConfig.DetectEncoding = config.DetectEncoding

	return &InvoiceParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("invoice_parser"),
	}, nil
}

// ParseFile parses an invoice extract from disk.
func (ip *InvoiceParser) ParseFile(ctx context.Context, filePath string) ([]*models.RawInvoice, *ParseStats, error) {
	reader, encoding, err := ip.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	return ip.parse(ctx, reader, encoding, filePath)
}

// Parse parses an invoice extract from r. source names the input in errors.
func (ip *InvoiceParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.RawInvoice, *ParseStats, error) {
	reader, encoding, err := ip.OpenReader(r, source)
	if err != nil {
		return nil, nil, err
	}
	return ip.parse(ctx, reader, encoding, source)
}

func (ip *InvoiceParser) parse(ctx context.Context, reader *csv.Reader, encoding, source string) ([]*models.RawInvoice, *ParseStats, error) {
	ip.logger.WithFields(logger.Fields{
		"source":   source,
		"encoding": encoding,
	}).Info("Starting invoice parsing")

	parseCtx := NewParseContext(ctx, source)
	stats := NewParseStats(source)
	stats.Encoding = encoding

	if err := ip.ReadHeaders(reader, parseCtx, allFields); err != nil {
		return nil, stats, err
	}

	columns := ip.config.ResolveColumns(parseCtx)
	if missing := missingRequired(columns); len(missing) > 0 {
		ip.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return nil, stats, errors.ParseError(
			errors.CodeMissingColumn,
			source,
			parseCtx.LineNumber,
			"headers",
			strings.Join(missing, ", "),
			nil,
		).WithSuggestion(fmt.Sprintf("Add the columns or map them with column aliases: %s", strings.Join(missing, ", ")))
	}

	var invoices []*models.RawInvoice
	for {
		record, err := ip.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if parseCtx.Err() != nil {
				return nil, stats, err
			}
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Message: "failed to read record",
				Err:     err,
			})
			if ip.tooManyErrors(stats) {
				return nil, stats, ip.abort(stats, source)
			}
			continue
		}

		stats.RecordsParsed++

		invoice, parseErr := ip.parseRecord(record, columns, parseCtx.LineNumber)
		if parseErr != nil {
			stats.AddError(parseErr)
			ip.logger.WithError(parseErr).WithField("line_number", parseCtx.LineNumber).Debug("Skipping unparseable row")
			if ip.tooManyErrors(stats) {
				return nil, stats, ip.abort(stats, source)
			}
			continue
		}

		invoices = append(invoices, invoice)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	ip.logger.WithFields(logger.Fields{
		"source":         source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Invoice parsing completed")

	if stats.HasErrors() {
		ip.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return invoices, stats, nil
}

func (ip *InvoiceParser) tooManyErrors(stats *ParseStats) bool {
	return ip.config.MaxErrors > 0 && stats.ErrorCount > ip.config.MaxErrors
}

func (ip *InvoiceParser) abort(stats *ParseStats, source string) error {
	return errors.ParseError(
		errors.CodeInvalidData,
		source,
		stats.Errors[len(stats.Errors)-1].Line,
		"rows",
		"",
		fmt.Errorf("more than %d rows failed to parse", ip.config.MaxErrors),
	).WithSuggestion("Check the file format; sample error: " + stats.Errors[0].Error())
}

// parseRecord converts one CSV record. An empty amount is not an error; the
// row is kept without an amount and dropped later by preprocessing.
func (ip *InvoiceParser) parseRecord(record []string, columns map[string]int, line int) (*models.RawInvoice, *ParseError) {
	get := func(field string) string { return FieldValue(record, columns[field]) }

	inv := &models.RawInvoice{
		Line:          line,
		SourceID:      get(FieldID),
		InvoiceNumber: get(FieldInvoiceNumber),
		SupplierName:  get(FieldSupplierName),
		DebitCredit:   get(FieldDebitCredit),
		InvoiceType:   get(FieldInvoiceType),
		Status:        get(FieldStatus),
		VendorType:    get(FieldVendorType),
		CompanyCode:   get(FieldCompanyCode),
		Currency:      get(FieldCurrency),
		IsCurrentData: ip.config.DefaultCurrentData,
	}

	if raw := get(FieldAmount); raw != "" {
		amount, err := models.ParseDecimalFromString(raw)
		if err != nil {
			return nil, ip.fieldError(line, columns[FieldAmount], FieldAmount, raw, errors.CodeInvalidAmount, err)
		}
		inv.Amount = amount
		inv.HasAmount = true
	}

	if raw := get(FieldInvoiceDate); raw != "" {
		date, err := ip.parseDate(raw)
		if err != nil {
			return nil, ip.fieldError(line, columns[FieldInvoiceDate], FieldInvoiceDate, raw, errors.CodeInvalidDate, err)
		}
		inv.InvoiceDate = date
	}

	if columns[FieldCurrentData] != -1 {
		raw := get(FieldCurrentData)
		if raw != "" {
			current, err := models.ParseFlag(raw)
			if err != nil {
				return nil, ip.fieldError(line, columns[FieldCurrentData], FieldCurrentData, raw, errors.CodeInvalidData, err)
			}
			inv.IsCurrentData = current
		}
	}

	return inv, nil
}

func (ip *InvoiceParser) parseDate(raw string) (time.Time, error) {
	if ip.config.DateFormat != "" {
		t, err := time.Parse(ip.config.DateFormat, raw)
		if err == nil {
			return t, nil
		}
	}
	t, err := models.ParseTimeWithFormats(raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (ip *InvoiceParser) fieldError(line, column int, field, value string, code errors.ErrorCode, err error) *ParseError {
	detail := errors.ValidationError(code, field, value, err)
	return &ParseError{
		Line:    line,
		Column:  column + 1,
		Field:   field,
		Value:   value,
		Message: detail.Message,
		Err:     err,
	}
}
