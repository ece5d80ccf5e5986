// Package reporter renders detection results.
//
// Supported output formats:
//   - Console: human-readable summary, scenario table and duplicate groups
//   - JSON: structured run result for programmatic consumption
//   - CSV: one line per flagged invoice, ordered by dense group number
//
// The reversal audit (invoice/reversal pairs removed before grouping) is
// exported separately as CSV or XLSX, see WriteReversalAudit.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatCSV})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"golang-invoice-dedup-service/internal/detector"
	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/internal/preprocess"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeScenarioReports bool `json:"include_scenario_reports"`
	IncludeReversals       bool `json:"include_reversals"`
	IncludeFailures        bool `json:"include_failures"`
	IncludeDropped         bool `json:"include_dropped"`

	// Console formatting options
	UseColors      bool `json:"use_colors"`
	TableMaxWidth  int  `json:"table_max_width"`
	MaxGroupsShown int  `json:"max_groups_shown"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeScenarioReports: true,
		IncludeReversals:       true,
		IncludeFailures:        true,
		IncludeDropped:         false,
		UseColors:              true,
		TableMaxWidth:          120,
		MaxGroupsShown:         25,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxGroupsShown < 0 {
		return fmt.Errorf("max groups shown cannot be negative, got %d", c.MaxGroupsShown)
	}

	switch c.CSVDelimiter {
	case 0, '\r', '\n', '"':
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates detection reports in various formats
type ReportGenerator struct {
	config *ReportConfig

	title  *color.Color
	warn   *color.Color
	danger *color.Color
	muted  *color.Color
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	rg := &ReportGenerator{
		config: config,
		title:  color.New(color.FgCyan, color.Bold),
		warn:   color.New(color.FgYellow),
		danger: color.New(color.FgRed, color.Bold),
		muted:  color.New(color.FgHiBlack),
	}
	if !config.UseColors {
		for _, c := range []*color.Color{rg.title, rg.warn, rg.danger, rg.muted} {
			c.DisableColor()
		}
	}
	return rg, nil
}

// GenerateReport writes a report of result to writer.
func (rg *ReportGenerator) GenerateReport(result *detector.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("detection result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *detector.RunResult, writer io.Writer) error {
	rg.title.Fprintf(writer, "DUPLICATE INVOICE REPORT\n")
	fmt.Fprintf(writer, "Run:      %s\n", result.RunID)
	fmt.Fprintf(writer, "Started:  %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration: %v\n\n", result.Duration.Round(time.Millisecond))

	rg.title.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(result, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeScenarioReports && len(result.Reports) > 0 {
		rg.title.Fprintf(writer, "=== SCENARIOS ===\n")
		rg.printScenarioTable(result, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeFailures && len(result.Failures) > 0 {
		rg.danger.Fprintf(writer, "=== SCENARIO ERRORS ===\n")
		for _, f := range result.Failures {
			fmt.Fprintf(writer, "  - scenario %d (%s): %s\n", f.ScenarioID, f.Name, f.Message)
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(result.Groups) > 0 {
		rg.title.Fprintf(writer, "=== DUPLICATE GROUPS ===\n")
		rg.printGroups(result, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeReversals && len(result.ReversalMatches) > 0 {
		rg.title.Fprintf(writer, "=== REVERSAL MATCHES ===\n")
		rg.printReversals(result.ReversalMatches, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeDropped && result.Preprocess != nil && len(result.Preprocess.DropReasons) > 0 {
		rg.title.Fprintf(writer, "=== DROPPED ROWS ===\n")
		reasons := make([]string, 0, len(result.Preprocess.DropReasons))
		for reason := range result.Preprocess.DropReasons {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(writer, "  %-24s %d\n", reason, result.Preprocess.DropReasons[preprocess.DropReason(reason)])
		}
	}

	return nil
}

func (rg *ReportGenerator) printSummary(result *detector.RunResult, writer io.Writer) {
	if result.Preprocess != nil {
		fmt.Fprintf(writer, "Input rows:          %d\n", result.Preprocess.InputRows)
		fmt.Fprintf(writer, "Rows kept:           %d (%.1f%%)\n",
			len(result.Preprocess.Records),
			rg.calculatePercentage(len(result.Preprocess.Records), result.Preprocess.InputRows))
	}
	fmt.Fprintf(writer, "Reversal pairs:      %d\n", len(result.ReversalMatches))
	fmt.Fprintf(writer, "Groups found:        %d\n", result.DedupStats.Input)
	fmt.Fprintf(writer, "  exact duplicates:  %d\n", result.DedupStats.ExactDuplicatesRemoved)
	fmt.Fprintf(writer, "  subsets removed:   %d\n", result.DedupStats.SubsetsRemoved)

	retained := fmt.Sprintf("%d", result.DedupStats.Retained)
	if result.DedupStats.Retained > 0 {
		retained = rg.warn.Sprint(retained)
	}
	fmt.Fprintf(writer, "Groups retained:     %s\n", retained)
	fmt.Fprintf(writer, "Invoices flagged:    %d\n", len(result.Rows))

	if len(result.Failures) > 0 {
		fmt.Fprintf(writer, "Scenario errors:     %s\n", rg.danger.Sprint(len(result.Failures)))
	}
}

func (rg *ReportGenerator) printScenarioTable(result *detector.RunResult, writer io.Writer) {
	header := fmt.Sprintf("%-10s %8s %12s %8s %8s %9s", "Scenario", "Buckets", "Comparisons", "Edges", "Groups", "Excluded")
	fmt.Fprintln(writer, rg.clip(header))
	fmt.Fprintln(writer, rg.clip(strings.Repeat("-", len(header))))
	for _, r := range result.Reports {
		line := fmt.Sprintf("%-10d %8d %12d %8d %8d %9d", r.ScenarioID, r.Buckets, r.Comparisons, r.Edges, r.Groups, r.ExcludedRecords)
		fmt.Fprintln(writer, rg.clip(line))
	}
}

func (rg *ReportGenerator) printGroups(result *detector.RunResult, writer io.Writer) {
	records := recordIndex(result)
	byNumber := groupRows(result.Rows)

	numbers := make([]int, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for i, n := range numbers {
		if rg.config.MaxGroupsShown > 0 && i >= rg.config.MaxGroupsShown {
			rg.muted.Fprintf(writer, "  ... and %d more groups\n", len(numbers)-i)
			break
		}

		rows := byNumber[n]
		score := rg.scoreColor(rows[0].RiskScore).Sprintf("%.2f", rows[0].RiskScore)
		fmt.Fprintf(writer, "Group %d (scenario %d, score %s, %d invoices)\n", n, rows[0].ScenarioID, score, len(rows))
		for _, row := range rows {
			if rec, ok := records[row.PrimaryKey]; ok {
				line := fmt.Sprintf("  %-8s %-20s %-30s %s %14s",
					row.PrimaryKey, rec.InvoiceNumberRaw, rec.SupplierNameRaw,
					models.FormatDate(rec.InvoiceDate), rec.InvoiceAmount.StringFixed(2))
				fmt.Fprintln(writer, rg.clip(line))
				continue
			}
			fmt.Fprintf(writer, "  %s\n", row.PrimaryKey)
		}
	}
}

func (rg *ReportGenerator) printReversals(matches []models.ReversalMatch, writer io.Writer) {
	for i, m := range matches {
		fmt.Fprintf(writer, "  %d. reversal %s (%s) -> invoice %s (%s), %s %s, %s\n",
			i+1, m.ReversalKey, m.ReversalNumber, m.InvoiceKey, m.InvoiceNumber,
			m.SupplierName, m.AmountAbs.StringFixed(2), m.MatchType)

		if i >= 9 && len(matches) > 10 {
			rg.muted.Fprintf(writer, "  ... and %d more\n", len(matches)-10)
			break
		}
	}
}

func (rg *ReportGenerator) scoreColor(score float64) *color.Color {
	if score >= 95 {
		return rg.danger
	}
	return rg.warn
}

func (rg *ReportGenerator) clip(line string) string {
	if len(line) > rg.config.TableMaxWidth {
		return line[:rg.config.TableMaxWidth-3] + "..."
	}
	return line
}

func (rg *ReportGenerator) generateJSONReport(result *detector.RunResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

func (rg *ReportGenerator) filterResultForOutput(result *detector.RunResult) map[string]interface{} {
	output := map[string]interface{}{
		"run_id":      result.RunID,
		"started_at":  result.StartedAt,
		"duration_ms": result.Duration.Milliseconds(),
		"groups":      result.Groups,
		"rows":        result.Rows,
		"dedup_stats": result.DedupStats,
	}

	if rg.config.IncludeScenarioReports {
		output["scenario_reports"] = result.Reports
	}

	if rg.config.IncludeReversals {
		output["reversal_matches"] = result.ReversalMatches
		output["reversal_stats"] = result.ReversalStats
	}

	if rg.config.IncludeFailures && len(result.Failures) > 0 {
		output["failures"] = result.Failures
	}

	if rg.config.IncludeDropped && result.Preprocess != nil {
		output["preprocess"] = result.Preprocess
	}

	return output
}

// CSVHeaders are the columns of the duplicate-row CSV report.
var CSVHeaders = []string{
	"group_number", "group_id", "scenario_id", "risk_score", "primary_key",
	"invoice_number", "supplier_name", "invoice_date", "invoice_amount",
}

func (rg *ReportGenerator) generateCSVReport(result *detector.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(CSVHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	records := recordIndex(result)
	for _, row := range result.Rows {
		record := []string{
			fmt.Sprintf("%d", row.GroupNumber),
			row.GroupID,
			fmt.Sprintf("%d", row.ScenarioID),
			fmt.Sprintf("%.2f", row.RiskScore),
			row.PrimaryKey,
			"", "", "", "",
		}
		if rec, ok := records[row.PrimaryKey]; ok {
			record[5] = rec.InvoiceNumberRaw
			record[6] = rec.SupplierNameRaw
			record[7] = models.FormatDate(rec.InvoiceDate)
			record[8] = rec.InvoiceAmount.String()
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write duplicate row %s: %w", row.PrimaryKey, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	next, err := NewReportGenerator(config)
	if err != nil {
		return err
	}
	*rg = *next
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func recordIndex(result *detector.RunResult) map[string]*models.InvoiceRecord {
	index := make(map[string]*models.InvoiceRecord)
	if result.Preprocess == nil {
		return index
	}
	for _, rec := range result.Preprocess.Records {
		index[rec.PrimaryKey] = rec
	}
	return index
}

func groupRows(rows []models.DuplicateRow) map[int][]models.DuplicateRow {
	out := make(map[int][]models.DuplicateRow)
	for _, row := range rows {
		out[row.GroupNumber] = append(out[row.GroupNumber], row)
	}
	return out
}
