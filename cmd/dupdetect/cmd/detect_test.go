package cmd

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-invoice-dedup-service/internal/store"
	apperrors "golang-invoice-dedup-service/pkg/errors"
)

const testInvoices = `id,invoice_number,supplier_name,invoice_date,invoice_amount
A1,INV1001,Acme GmbH,2024-01-15,100.00
A2,INV1001,Acme GmbH,2024-01-15,100.00
A3,X-77,Other Ltd,2024-02-01,50.00
`

const testScenarios = `scenarios:
  - scenario_id: 1
    name: supplier-date-amount
    grouping_columns: [supplier_name, invoice_date, invoice_amount]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	return path
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := writeFile(t, tmpDir, "valid.csv", "test")

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{name: "valid file", filePath: validFile, expectError: false},
		{name: "empty path", filePath: "", expectError: true},
		{name: "non-existent file", filePath: "/non/existent/file.csv", expectError: true},
		{name: "directory instead of file", filePath: tmpDir, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateDetectFlags(t *testing.T) {
	tmpDir := t.TempDir()
	input := writeFile(t, tmpDir, "invoices.csv", testInvoices)
	scenarios := writeFile(t, tmpDir, "scenarios.yaml", testScenarios)

	tests := []struct {
		name          string
		setupFlags    func()
		expectError   bool
		errorContains string
	}{
		{
			name: "valid flags",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("scenarios", scenarios)
				viper.Set("output-format", "console")
			},
		},
		{
			name: "missing input",
			setupFlags: func() {
				viper.Set("scenarios", scenarios)
				viper.Set("output-format", "console")
			},
			expectError:   true,
			errorContains: "input is required",
		},
		{
			name: "missing scenario source",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("output-format", "console")
			},
			expectError:   true,
			errorContains: "one of --scenarios or --scenario-db is required",
		},
		{
			name: "both scenario sources",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("scenarios", scenarios)
				viper.Set("scenario-db", scenarios)
				viper.Set("output-format", "console")
			},
			expectError:   true,
			errorContains: "mutually exclusive",
		},
		{
			name: "invalid output format",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("scenarios", scenarios)
				viper.Set("output-format", "xml")
			},
			expectError:   true,
			errorContains: "invalid output format",
		},
		{
			name: "bad audit extension",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("scenarios", scenarios)
				viper.Set("output-format", "json")
				viper.Set("reversal-audit", filepath.Join(tmpDir, "audit.txt"))
			},
			expectError:   true,
			errorContains: ".csv or .xlsx",
		},
		{
			name: "audit without reversals",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("scenarios", scenarios)
				viper.Set("output-format", "json")
				viper.Set("reversal-audit", filepath.Join(tmpDir, "audit.csv"))
				viper.Set("no-reversals", true)
			},
			expectError:   true,
			errorContains: "--no-reversals",
		},
		{
			name: "negative workers",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("scenarios", scenarios)
				viper.Set("output-format", "csv")
				viper.Set("bucket-workers", -1)
			},
			expectError:   true,
			errorContains: "worker counts cannot be negative",
		},
		{
			name: "threshold out of range",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("scenarios", scenarios)
				viper.Set("output-format", "csv")
				viper.Set("threshold", 101.0)
			},
			expectError:   true,
			errorContains: "threshold must be between 0 and 100",
		},
		{
			name: "missing output directory",
			setupFlags: func() {
				viper.Set("input", input)
				viper.Set("scenarios", scenarios)
				viper.Set("output-format", "csv")
				viper.Set("output-file", filepath.Join(tmpDir, "missing", "out.csv"))
			},
			expectError:   true,
			errorContains: "output directory does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			tt.setupFlags()

			err := validateDetectFlags(&cobra.Command{}, []string{})

			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error containing %q, got %q", tt.errorContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRunDetect_CSVReportAndSinks(t *testing.T) {
	tmpDir := t.TempDir()
	output := filepath.Join(tmpDir, "duplicates.csv")
	audit := filepath.Join(tmpDir, "reversals.xlsx")
	results := filepath.Join(tmpDir, "results.db")

	viper.Reset()
	viper.Set("input", writeFile(t, tmpDir, "invoices.csv", testInvoices))
	viper.Set("scenarios", writeFile(t, tmpDir, "scenarios.yaml", testScenarios))
	viper.Set("output-format", "csv")
	viper.Set("output-file", output)
	viper.Set("reversal-audit", audit)
	viper.Set("results-db", results)
	viper.Set("delimiter", ",")

	cmd := &cobra.Command{}
	if err := validateDetectFlags(cmd, nil); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if err := runDetect(cmd, nil); err != nil {
		t.Fatalf("detect failed: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("report is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 duplicate rows, got %d lines", len(rows))
	}
	if rows[0][0] != "group_number" {
		t.Errorf("unexpected header %v", rows[0])
	}
	for _, row := range rows[1:] {
		if row[0] != "1" {
			t.Errorf("expected group number 1, got %s", row[0])
		}
	}

	if _, err := os.Stat(audit); err != nil {
		t.Errorf("reversal audit not written: %v", err)
	}

	db, err := store.OpenSQLite(results)
	if err != nil {
		t.Fatalf("results database not usable: %v", err)
	}
	defer db.Close()
}

func TestRunDetect_EmptyScenarioFileFails(t *testing.T) {
	tmpDir := t.TempDir()

	viper.Reset()
	viper.Set("input", writeFile(t, tmpDir, "invoices.csv", testInvoices))
	viper.Set("scenarios", writeFile(t, tmpDir, "scenarios.yaml", "   \n"))
	viper.Set("output-format", "json")
	viper.Set("delimiter", ",")

	cmd := &cobra.Command{}
	if err := validateDetectFlags(cmd, nil); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	err := runDetect(cmd, nil)
	if !apperrors.IsCategory(err, apperrors.CategoryConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunDetect_JSONReport(t *testing.T) {
	tmpDir := t.TempDir()

	viper.Reset()
	viper.Set("input", writeFile(t, tmpDir, "invoices.csv", testInvoices))
	viper.Set("scenarios", writeFile(t, tmpDir, "scenarios.yaml", testScenarios))
	viper.Set("output-format", "json")
	viper.Set("output-file", filepath.Join(tmpDir, "report.json"))
	viper.Set("delimiter", ",")

	cmd := &cobra.Command{}
	if err := validateDetectFlags(cmd, nil); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if err := runDetect(cmd, nil); err != nil {
		t.Fatalf("detect failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "report.json"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !bytes.Contains(data, []byte(`"groups"`)) {
		t.Errorf("json report missing groups: %s", data)
	}
}

func TestRootCommandHelp(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"--help"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}

	for _, sub := range []string{"detect", "compare", "scenarios"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("help output missing %q command", sub)
		}
	}
}
