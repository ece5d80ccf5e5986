package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"golang-invoice-dedup-service/internal/dedup"
	"golang-invoice-dedup-service/internal/detector"
	"golang-invoice-dedup-service/internal/grouping"
	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/internal/preprocess"
	apperrors "golang-invoice-dedup-service/pkg/errors"
)

const (
	groupOne = "6f1c2b5e-0000-4000-8000-000000000001"
	groupTwo = "6f1c2b5e-0000-4000-8000-000000000002"
)

func record(key, number, supplier, date, amount string) *models.InvoiceRecord {
	d, _ := time.Parse(models.DateLayout, date)
	return &models.InvoiceRecord{
		PrimaryKey:       key,
		InvoiceNumberRaw: number,
		SupplierNameRaw:  supplier,
		InvoiceDate:      d,
		InvoiceAmount:    decimal.RequireFromString(amount),
		IsCurrentData:    true,
	}
}

func createSampleResult() *detector.RunResult {
	return &detector.RunResult{
		RunID:     "run-1",
		StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Duration:  250 * time.Millisecond,
		Groups: []models.DuplicateGroup{
			{GroupID: groupOne, ScenarioID: 1, MemberKeys: []string{"5", "6"}, RiskScore: 95},
			{GroupID: groupTwo, ScenarioID: 2, MemberKeys: []string{"1", "2"}, RiskScore: 92.5},
		},
		Rows: []models.DuplicateRow{
			{PrimaryKey: "5", ScenarioID: 1, GroupID: groupOne, GroupNumber: 1, RiskScore: 95},
			{PrimaryKey: "6", ScenarioID: 1, GroupID: groupOne, GroupNumber: 1, RiskScore: 95},
			{PrimaryKey: "1", ScenarioID: 2, GroupID: groupTwo, GroupNumber: 2, RiskScore: 92.5},
			{PrimaryKey: "2", ScenarioID: 2, GroupID: groupTwo, GroupNumber: 2, RiskScore: 92.5},
		},
		ReversalMatches: []models.ReversalMatch{
			{
				ReversalKey: "4", InvoiceKey: "3", ReversalNumber: "INV001-R", InvoiceNumber: "INV001",
				SupplierName: "BETA", InvoiceDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
				AmountAbs: decimal.RequireFromString("50"), MatchType: models.MatchSimilarity, CandidateCount: 1,
			},
		},
		Reports: []*grouping.Report{
			{ScenarioID: 1, Buckets: 3, Comparisons: 4, Edges: 1, Groups: 1},
			{ScenarioID: 2, Buckets: 2, Comparisons: 3, Edges: 1, Groups: 1},
		},
		DedupStats: dedup.Stats{Input: 3, ExactDuplicatesRemoved: 1, Retained: 2},
		Preprocess: &preprocess.Result{
			InputRows: 6,
			Records: []*models.InvoiceRecord{
				record("1", "INV-1001", "Acme Ltd", "2024-01-15", "1250.5"),
				record("2", "INV1001", "ACME LTD.", "2024-01-15", "1250.50"),
				record("5", "100045672", "Gamma, Inc", "2024-01-03", "10"),
				record("6", "100145672", "Gamma, Inc", "2024-01-03", "10"),
			},
			DropReasons: map[preprocess.DropReason]int{preprocess.DropZeroAmount: 2},
		},
	}
}

func newGenerator(t *testing.T, config *ReportConfig) *ReportGenerator {
	t.Helper()
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return generator
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config", config: nil},
		{name: "valid config", config: DefaultReportConfig()},
		{name: "invalid format", config: &ReportConfig{Format: "invalid", TableMaxWidth: 120, CSVDelimiter: ','}, expectError: true},
		{name: "table width too small", config: &ReportConfig{Format: FormatConsole, TableMaxWidth: 30, CSVDelimiter: ','}, expectError: true},
		{name: "missing delimiter", config: &ReportConfig{Format: FormatCSV, TableMaxWidth: 120}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"xlsx", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}
}

func TestGenerateReport_CSVGolden(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV

	var buf bytes.Buffer
	if err := newGenerator(t, config).GenerateReport(createSampleResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "duplicate_rows_csv", buf.Bytes())
}

func TestGenerateReport_CSVWithoutRecords(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.CSVHeaders = false
	config.CSVDelimiter = ';'

	result := createSampleResult()
	result.Preprocess = nil

	var buf bytes.Buffer
	if err := newGenerator(t, config).GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if lines[0] != "1;"+groupOne+";1;95.00;5;;;;" {
		t.Errorf("unexpected first line: %q", lines[0])
	}
}

func TestGenerateReport_JSON(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON

	var buf bytes.Buffer
	if err := newGenerator(t, config).GenerateReport(createSampleResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}

	for _, key := range []string{"run_id", "groups", "rows", "dedup_stats", "scenario_reports", "reversal_matches"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in JSON output", key)
		}
	}
	if _, ok := decoded["failures"]; ok {
		t.Error("expected no failures key without scenario errors")
	}
	if rows := decoded["rows"].([]interface{}); len(rows) != 4 {
		t.Errorf("expected 4 rows, got %d", len(rows))
	}
}

func TestGenerateReport_Console(t *testing.T) {
	config := DefaultReportConfig()
	config.UseColors = false
	config.IncludeDropped = true

	result := createSampleResult()
	result.Failures = []detector.ScenarioFailure{{ScenarioID: 9, Name: "broken", Message: "unknown column vendor_code"}}

	var buf bytes.Buffer
	if err := newGenerator(t, config).GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	expected := []string{
		"DUPLICATE INVOICE REPORT",
		"Input rows:          6",
		"Groups retained:     2",
		"=== SCENARIOS ===",
		"scenario 9 (broken): unknown column vendor_code",
		"Group 1 (scenario 1, score 95.00, 2 invoices)",
		"Group 2 (scenario 2, score 92.50, 2 invoices)",
		"INV-1001",
		"reversal 4 (INV001-R) -> invoice 3 (INV001), BETA 50.00, Similarity",
		"zero_amount",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected console output to contain %q", want)
		}
	}
}

func TestGenerateReport_ConsoleGroupLimit(t *testing.T) {
	config := DefaultReportConfig()
	config.UseColors = false
	config.MaxGroupsShown = 1

	var buf bytes.Buffer
	if err := newGenerator(t, config).GenerateReport(createSampleResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "... and 1 more groups") {
		t.Errorf("expected truncation notice, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Group 2 ") {
		t.Error("expected group 2 to be omitted")
	}
}

func TestGenerateReport_NilResult(t *testing.T) {
	if err := newGenerator(t, nil).GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestWriteReversalAudit_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	if err := WriteReversalAudit(path, createSampleResult().ReversalMatches); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read audit: %v", err)
	}
	expected := strings.Join(AuditHeaders, ",") + "\n" +
		"4,INV001-R,3,INV001,BETA,2024-01-02,50,Similarity,1\n"
	if string(data) != expected {
		t.Errorf("unexpected audit CSV:\n%s", data)
	}
}

func TestWriteReversalAudit_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.xlsx")
	if err := WriteReversalAudit(path, createSampleResult().ReversalMatches); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(auditSheet)
	if err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "reversal_key" || rows[1][0] != "4" || rows[1][6] != "50" || rows[1][8] != "1" {
		t.Errorf("unexpected workbook rows: %v", rows)
	}
}

func TestWriteReversalAudit_Unsupported(t *testing.T) {
	err := WriteReversalAudit(filepath.Join(t.TempDir(), "audit.pdf"), nil)
	de, ok := apperrors.AsDetectorError(err)
	if !ok || de.Code != apperrors.CodeUnsupported {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

// flakyWriter fails the first write and accepts the rest.
type flakyWriter struct {
	failures int
	buf      bytes.Buffer
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.failures > 0 {
		w.failures--
		return 0, errors.New("broken pipe")
	}
	return w.buf.Write(p)
}

func TestSafeReportGenerator_FormatFallback(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON

	generator, err := NewSafeReportGenerator(config, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := &flakyWriter{failures: 1}
	if err := generator.GenerateReportSafely(createSampleResult(), w); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if !strings.Contains(w.buf.String(), "NOTE: Report generated in fallback format") {
		t.Errorf("expected fallback notice, got:\n%s", w.buf.String())
	}
	if !strings.Contains(w.buf.String(), "DUPLICATE INVOICE REPORT") {
		t.Error("expected console report after fallback")
	}
}

func TestSafeReportGenerator_Validation(t *testing.T) {
	generator, err := NewSafeReportGenerator(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := generator.GenerateReportSafely(nil, &bytes.Buffer{}); !apperrors.IsCategory(err, apperrors.CategoryValidation) {
		t.Errorf("expected validation error for nil result, got %v", err)
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf", TableMaxWidth: 120, CSVDelimiter: ','}, nil); !apperrors.IsCategory(err, apperrors.CategoryConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestBackupPath(t *testing.T) {
	if got := backupPath("/tmp/report.csv"); got != "/tmp/report_backup.csv" {
		t.Errorf("unexpected backup path %q", got)
	}
}
