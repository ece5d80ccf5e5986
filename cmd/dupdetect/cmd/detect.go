package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-invoice-dedup-service/cmd/dupdetect/config"
	"golang-invoice-dedup-service/internal/detector"
	"golang-invoice-dedup-service/internal/parsers"
	"golang-invoice-dedup-service/internal/preprocess"
	"golang-invoice-dedup-service/internal/reporter"
	"golang-invoice-dedup-service/internal/store"
	apperrors "golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

// Flags for the detect command
var (
	inputFile       string
	scenariosFile   string
	scenarioDB      string
	outputFormat    string
	outputFile      string
	reversalAudit   string
	resultsDB       string
	sinkDSN         string
	scenarioWorkers int
	bucketWorkers   int
	noReversals     bool
	keyColumn       bool
	currentOnly     bool
	excludedTypes   []string
	threshold       float64
	dateFormat      string
	delimiter       string
	noHeader        bool
	showProgress    bool
)

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect duplicate invoices in an invoice extract",
	Long: `Detect runs every enabled scenario over an invoice CSV extract and
reports the resulting duplicate groups.

Reversal documents are linked to the invoices they cancel and both are
removed before grouping. Groups found by several scenarios are reported
once and groups contained in a larger group are dropped.

Scenarios come from a YAML, TOML or JSON file (--scenarios) or from the
scenarios table of a SQLite database (--scenario-db).

Examples:
  # Console report
  dupdetect detect --input invoices.csv --scenarios scenarios.yaml

  # Flat CSV of duplicate rows plus an XLSX reversal audit
  dupdetect detect -i invoices.csv -s scenarios.toml -f csv -o duplicates.csv \
    --reversal-audit reversals.xlsx

  # Persist the run to SQLite and PostgreSQL
  dupdetect detect -i invoices.csv --scenario-db dupdetect.db --results-db dupdetect.db \
    --sink-dsn postgres://dupdetect@localhost/dupdetect

  # Semicolon separated extract with German dates
  dupdetect detect -i export.csv -s scenarios.yaml --delimiter ';' --date-format 02.01.2006`,

	PreRunE: validateDetectFlags,
	RunE:    runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVarP(&inputFile, "input", "i", "", "path to the invoice CSV extract (required)")
	detectCmd.Flags().StringVarP(&scenariosFile, "scenarios", "s", "", "scenario file (.yaml, .yml, .toml, .json)")
	detectCmd.Flags().StringVar(&scenarioDB, "scenario-db", "", "SQLite database holding the scenarios table")

	detectCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	detectCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	detectCmd.Flags().StringVar(&reversalAudit, "reversal-audit", "", "write matched reversal pairs to a .csv or .xlsx file")

	detectCmd.Flags().StringVar(&resultsDB, "results-db", "", "SQLite database that receives the run result")
	detectCmd.Flags().StringVar(&sinkDSN, "sink-dsn", "", "PostgreSQL DSN that receives the run result")

	detectCmd.Flags().IntVar(&scenarioWorkers, "scenario-workers", 0, "scenarios evaluated concurrently (default: GOMAXPROCS)")
	detectCmd.Flags().IntVar(&bucketWorkers, "bucket-workers", 0, "buckets compared concurrently per scenario (default: GOMAXPROCS)")
	detectCmd.Flags().BoolVar(&noReversals, "no-reversals", false, "skip reversal matching")
	detectCmd.Flags().BoolVar(&keyColumn, "key-column", false, "use the id column as primary key instead of row sequence numbers")
	detectCmd.Flags().BoolVar(&currentOnly, "current-only", false, "do not compare pairs in which neither invoice is current data")
	detectCmd.Flags().StringSliceVar(&excludedTypes, "exclude-types", nil, "invoice types excluded from detection")
	detectCmd.Flags().Float64Var(&threshold, "threshold", 0, "default invoice number similarity threshold (0-100, 0 keeps the default)")

	detectCmd.Flags().StringVar(&dateFormat, "date-format", "", "Go layout of the invoice_date column (default: auto-detect)")
	detectCmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")
	detectCmd.Flags().BoolVar(&noHeader, "no-header", false, "input has no header row")

	detectCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	detectCmd.MarkFlagRequired("input")

	for _, name := range []string{
		"input", "scenarios", "scenario-db", "output-format", "output-file", "reversal-audit",
		"results-db", "sink-dsn", "scenario-workers", "bucket-workers", "no-reversals",
		"key-column", "current-only", "exclude-types", "threshold", "date-format", "delimiter", "no-header", "progress",
	} {
		viper.BindPFlag(name, detectCmd.Flags().Lookup(name))
	}
}

func validateDetectFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and environment)
	inputFile = viper.GetString("input")
	scenariosFile = viper.GetString("scenarios")
	scenarioDB = viper.GetString("scenario-db")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	reversalAudit = viper.GetString("reversal-audit")
	resultsDB = viper.GetString("results-db")
	sinkDSN = viper.GetString("sink-dsn")
	scenarioWorkers = viper.GetInt("scenario-workers")
	bucketWorkers = viper.GetInt("bucket-workers")
	noReversals = viper.GetBool("no-reversals")
	keyColumn = viper.GetBool("key-column")
	currentOnly = viper.GetBool("current-only")
	excludedTypes = viper.GetStringSlice("exclude-types")
	threshold = viper.GetFloat64("threshold")
	dateFormat = viper.GetString("date-format")
	delimiter = viper.GetString("delimiter")
	noHeader = viper.GetBool("no-header")
	showProgress = viper.GetBool("progress")

	if inputFile == "" {
		return fmt.Errorf("input is required")
	}
	if err := validateFileExists(inputFile, "invoice file"); err != nil {
		return err
	}

	if scenariosFile == "" && scenarioDB == "" {
		return fmt.Errorf("one of --scenarios or --scenario-db is required")
	}
	if scenariosFile != "" && scenarioDB != "" {
		return fmt.Errorf("--scenarios and --scenario-db are mutually exclusive")
	}
	if scenariosFile != "" {
		if err := validateFileExists(scenariosFile, "scenario file"); err != nil {
			return err
		}
	}
	if scenarioDB != "" {
		if err := validateFileExists(scenarioDB, "scenario database"); err != nil {
			return err
		}
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if reversalAudit != "" {
		switch strings.ToLower(filepath.Ext(reversalAudit)) {
		case ".csv", ".xlsx":
		default:
			return fmt.Errorf("reversal audit file must end in .csv or .xlsx: %s", reversalAudit)
		}
		if noReversals {
			return fmt.Errorf("--reversal-audit cannot be combined with --no-reversals")
		}
	}

	if scenarioWorkers < 0 || bucketWorkers < 0 {
		return fmt.Errorf("worker counts cannot be negative")
	}
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("threshold must be between 0 and 100")
	}

	for _, path := range []string{outputFile, reversalAudit, resultsDB} {
		if err := validateOutputDir(path); err != nil {
			return err
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func validateOutputDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("output directory does not exist: %s", dir)
	}
	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")
	isVerbose := viper.GetBool("verbose")

	if isVerbose {
		fmt.Fprintf(os.Stderr, "Starting duplicate detection...\n")
		fmt.Fprintf(os.Stderr, "Input file: %s\n", inputFile)
		if scenariosFile != "" {
			fmt.Fprintf(os.Stderr, "Scenarios: %s\n", scenariosFile)
		} else {
			fmt.Fprintf(os.Stderr, "Scenarios: %s (database)\n", scenarioDB)
		}
		fmt.Fprintf(os.Stderr, "Output format: %s\n", outputFormat)
	}

	parserConfig, err := config.CreateInvoiceParserConfig(delimiter, dateFormat, !noHeader)
	if err != nil {
		return err
	}
	parser, err := parsers.NewInvoiceParser(parserConfig)
	if err != nil {
		return err
	}

	raws, stats, err := parser.ParseFile(ctx, inputFile)
	if err != nil {
		return err
	}
	if stats.ErrorCount > 0 {
		log.WithFields(logger.Fields{
			"source": stats.Source,
			"errors": stats.ErrorCount,
		}).Warn("Some invoice rows could not be parsed and were skipped")
		if isVerbose {
			parseErrs := make([]error, len(stats.Errors))
			for i, e := range stats.Errors {
				parseErrs[i] = e
			}
			fmt.Fprintf(os.Stderr, "%s\n", FormatValidationErrors(parseErrs))
		}
	}

	scenarios, err := config.LoadScenarios(ctx, scenariosFile, scenarioDB)
	if err != nil {
		return err
	}

	detectorConfig, err := config.CreateDetectorConfig(config.DetectorOptions{
		ScenarioWorkers: scenarioWorkers,
		BucketWorkers:   bucketWorkers,
		MatchReversals:  !noReversals,
		KeyColumn:       keyColumn,
		CurrentOnly:     currentOnly,
		ExcludedTypes:   excludedTypes,
		Threshold:       threshold,
	})
	if err != nil {
		return err
	}

	det, err := detector.NewDetector(detectorConfig, preprocess.HeuristicClassifier{})
	if err != nil {
		return err
	}

	if showProgress {
		det.AddProgressCallback(func(progress detector.Progress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
		fmt.Fprintf(os.Stderr, "Processing %d invoices with %d scenarios...\n", len(raws), len(scenarios))
	}

	result, err := det.Run(ctx, raws, scenarios)
	if showProgress {
		fmt.Fprintf(os.Stderr, "\n")
	}
	if err != nil {
		return err
	}

	if err := writeReport(result); err != nil {
		return err
	}

	if reversalAudit != "" {
		if err := reporter.WriteReversalAudit(reversalAudit, result.ReversalMatches); err != nil {
			return err
		}
		log.WithFields(logger.Fields{
			"file":    reversalAudit,
			"matches": len(result.ReversalMatches),
		}).Info("Reversal audit written")
	}

	if err := saveResult(ctx, result); err != nil {
		return err
	}

	if isVerbose {
		printSummary(os.Stderr, result)
	}

	return nil
}

func writeReport(result *detector.RunResult) error {
	generator, err := reporter.NewSafeReportGenerator(config.CreateReportConfig(outputFormat), nil)
	if err != nil {
		return err
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return apperrors.FileError(apperrors.CodeFilePermission, outputFile, err)
		}
		defer output.Close()
	}

	return generator.GenerateReportSafely(result, output)
}

// saveResult writes the run to every configured sink.
func saveResult(ctx context.Context, result *detector.RunResult) error {
	var sinks []store.ResultSink

	if resultsDB != "" {
		db, err := store.OpenSQLite(resultsDB)
		if err != nil {
			return err
		}
		sinks = append(sinks, db)
	}
	if sinkDSN != "" {
		pg, err := store.OpenPostgres(ctx, sinkDSN)
		if err != nil {
			closeSinks(sinks)
			return err
		}
		sinks = append(sinks, pg)
	}
	defer closeSinks(sinks)

	for _, sink := range sinks {
		if err := sink.SaveResult(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

func closeSinks(sinks []store.ResultSink) {
	for _, sink := range sinks {
		sink.Close()
	}
}

func printSummary(w io.Writer, result *detector.RunResult) {
	fmt.Fprintf(w, "\nDetection completed successfully.\n")
	fmt.Fprintf(w, "Run id: %s\n", result.RunID)
	if result.Preprocess != nil {
		fmt.Fprintf(w, "Processed %d rows, %d dropped during preprocessing.\n",
			result.Preprocess.InputRows, len(result.Preprocess.Dropped))
	}
	fmt.Fprintf(w, "Matched %d reversal pairs.\n", len(result.ReversalMatches))
	fmt.Fprintf(w, "Found %d duplicate groups covering %d rows.\n", len(result.Groups), len(result.Rows))
	if len(result.Failures) > 0 {
		fmt.Fprintf(w, "%d scenarios failed and were skipped.\n", len(result.Failures))
	}
	fmt.Fprintf(w, "Processing time: %v\n", result.Duration)
}
