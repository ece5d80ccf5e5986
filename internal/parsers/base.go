// Package parsers reads invoice extracts and scenario definitions.
//
// Invoice extracts are delimited text files exported from ERP systems. The
// parsers tolerate the variations commonly found in such exports:
//   - header names that differ between systems (resolved through aliases)
//   - UTF-8 files with or without a byte order mark
//   - legacy Windows-1252 files, decoded transparently
//   - amounts with currency symbols, thousand separators or parentheses
//   - several date layouts
//
// Example usage:
//
//	parser, err := parsers.NewInvoiceParser(parsers.DefaultInvoiceParserConfig())
//	invoices, stats, err := parser.ParseFile(ctx, "invoices.csv")
//
//	scenarios, err := parsers.LoadScenarioFile("scenarios.yaml")
package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

// Encodings reported in ParseStats.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseError represents an error that occurred during CSV parsing
type ParseError struct {
	Line    int
	Column  int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s: %v",
			e.Line, e.Column, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s",
		e.Line, e.Column, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int

	// DetectEncoding decodes input that is not valid UTF-8 as
	// Windows-1252. When false such input is rejected.
	DetectEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000,
		DetectEncoding:   true,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"has_header":      config.HasHeader,
		"delimiter":       string(config.Delimiter),
		"detect_encoding": config.DetectEncoding,
		"max_field_size":  config.MaxFieldSize,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source      string
	LineNumber  int
	Headers     []string
	HeaderMap   map[string]int
	RecordCount int
	ctx         context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		Headers:   make([]string, 0),
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// Err returns the context error once parsing has been cancelled.
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// GetColumnIndex returns the index of a column by name, or -1 if not found
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	lowerName := strings.ToLower(strings.TrimSpace(name))
	for header, index := range pc.HeaderMap {
		if strings.ToLower(header) == lowerName {
			return index
		}
	}

	return -1
}

// OpenFile reads a CSV file and returns a reader over its decoded content
// together with the detected encoding.
func (bp *BaseParser) OpenFile(filePath string) (*csv.Reader, string, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	data, err := os.ReadFile(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, "", errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, "", errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, "", errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	return bp.openBytes(data, filePath)
}

// OpenReader is OpenFile for arbitrary readers such as stdin.
func (bp *BaseParser) OpenReader(r io.Reader, source string) (*csv.Reader, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.FileError(errors.CodeFileCorrupted, source, err)
	}
	return bp.openBytes(data, source)
}

func (bp *BaseParser) openBytes(data []byte, source string) (*csv.Reader, string, error) {
	var content io.Reader
	encoding := EncodingUTF8

	switch {
	case utf8.Valid(data):
		content = bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))
	case bp.config.DetectEncoding:
		encoding = EncodingWindows1252
		content = transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder())
		bp.logger.WithField("source", source).Info("Input is not valid UTF-8, decoding as Windows-1252")
	default:
		line := 1 + bytes.Count(data[:invalidOffset(data)], []byte{'\n'})
		return nil, "", errors.ParseError(
			errors.CodeEncodingError,
			source,
			line,
			"encoding",
			"",
			fmt.Errorf("invalid UTF-8 encoding detected"),
		).WithSuggestion("Save the file in UTF-8 encoding or enable encoding detection")
	}

	reader := csv.NewReader(content)
	bp.configureReader(reader)
	return reader, encoding, nil
}

func invalidOffset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// configureReader sets up the CSV reader with our configuration
func (bp *BaseParser) configureReader(reader *csv.Reader) {
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
}

// ReadHeaders reads the header row. Without a header row, defaultHeaders
// name the columns in order.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, defaultHeaders []string) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = append([]string(nil), defaultHeaders...)
		bp.buildHeaderMap(parseCtx)
		bp.logger.WithField("default_headers", parseCtx.Headers).Debug("Using default headers")
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				"empty",
				nil,
			).WithSuggestion("Ensure the file contains header and data rows")
		}
		return errors.ParseError(
			errors.CodeInvalidFormat,
			parseCtx.Source,
			1,
			"headers",
			"",
			err,
		).WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = bp.cleanHeaders(headers)
	bp.buildHeaderMap(parseCtx)

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Successfully read headers")
	return nil
}

// cleanHeaders removes whitespace around header names
func (bp *BaseParser) cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

// buildHeaderMap creates a map from header names to column indices
func (bp *BaseParser) buildHeaderMap(parseCtx *ParseContext) {
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		if _, dup := parseCtx.HeaderMap[header]; !dup {
			parseCtx.HeaderMap[header] = i
		}
	}
}

// ReadRecord reads the next non-empty record. It returns io.EOF at the end
// of input.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if err := parseCtx.Err(); err != nil {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", err)
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			if pe, ok := err.(*csv.ParseError); ok {
				parseCtx.LineNumber = pe.StartLine
			} else {
				parseCtx.LineNumber++
			}
			return nil, err
		}

		parseCtx.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, errors.ParseError(
						errors.CodeInvalidData,
						parseCtx.Source,
						parseCtx.LineNumber,
						fmt.Sprintf("field_%d", i),
						truncate(field, 50),
						fmt.Errorf("field size limit exceeded"),
					).WithSuggestion(fmt.Sprintf("Reduce field size to under %d bytes", bp.config.MaxFieldSize))
				}
			}
		}

		parseCtx.RecordCount++
		return record, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// FieldValue returns the trimmed value of column index, or "" when the
// column is absent or the record is short.
func FieldValue(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string
	Encoding      string
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string) *ParseStats {
	return &ParseStats{
		Source: source,
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
