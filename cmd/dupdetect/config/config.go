package config

import (
	"context"
	"fmt"
	"strings"

	"golang-invoice-dedup-service/internal/detector"
	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/internal/parsers"
	"golang-invoice-dedup-service/internal/preprocess"
	"golang-invoice-dedup-service/internal/reporter"
	"golang-invoice-dedup-service/internal/similarity"
	"golang-invoice-dedup-service/internal/store"
	apperrors "golang-invoice-dedup-service/pkg/errors"
)

// CreateInvoiceParserConfig creates an invoice parser configuration for the
// given delimiter and date layout. An empty delimiter keeps the comma.
func CreateInvoiceParserConfig(delimiter, dateFormat string, hasHeader bool) (*parsers.InvoiceParserConfig, error) {
	config := parsers.DefaultInvoiceParserConfig()
	config.HasHeader = hasHeader
	config.DateFormat = dateFormat

	switch {
	case delimiter == "":
	case delimiter == `\t` || delimiter == "tab":
		config.Delimiter = '\t'
	case len([]rune(delimiter)) == 1:
		config.Delimiter = []rune(delimiter)[0]
	default:
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "delimiter", delimiter,
			fmt.Errorf("delimiter must be a single character"))
	}

	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "parser", nil, err)
	}
	return config, nil
}

// CreatePreprocessingConfig creates a preprocessing configuration. keyColumn
// switches primary keys from sequence numbers to the input id column.
func CreatePreprocessingConfig(keyColumn bool, excludedTypes []string) *preprocess.Config {
	config := preprocess.DefaultConfig()
	if keyColumn {
		config.PrimaryKeyMode = preprocess.PrimaryKeyColumn
	}
	if len(excludedTypes) > 0 {
		config.ExcludedInvoiceTypes = append([]string(nil), excludedTypes...)
	}
	return config
}

// CreateSimilarityConfig creates a similarity configuration with an optional
// threshold override. A zero threshold keeps the default.
func CreateSimilarityConfig(threshold float64) (*similarity.Config, error) {
	config := similarity.DefaultConfig()
	if threshold != 0 {
		config = config.WithThreshold(threshold)
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "threshold", threshold, err)
	}
	return config, nil
}

// DetectorOptions carries the resolved CLI values for a detection run.
type DetectorOptions struct {
	ScenarioWorkers int
	BucketWorkers   int
	MatchReversals  bool
	KeyColumn       bool
	CurrentOnly     bool
	ExcludedTypes   []string
	Threshold       float64
}

// CreateDetectorConfig creates the run configuration. Zero worker counts keep
// the defaults.
func CreateDetectorConfig(opts DetectorOptions) (*detector.Config, error) {
	config := detector.DefaultConfig()
	config.MatchReversals = opts.MatchReversals
	config.Preprocessing = CreatePreprocessingConfig(opts.KeyColumn, opts.ExcludedTypes)

	sim, err := CreateSimilarityConfig(opts.Threshold)
	if err != nil {
		return nil, err
	}
	config.Similarity = sim

	if opts.ScenarioWorkers > 0 {
		config.MaxScenarioWorkers = opts.ScenarioWorkers
	}
	config.Grouping.SkipHistoricalPairs = opts.CurrentOnly
	if opts.BucketWorkers > 0 {
		config.Grouping.MaxBucketWorkers = opts.BucketWorkers
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeScenarioReports = true
		config.IncludeReversals = true
		config.IncludeFailures = true
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		config.Format = reporter.FormatConsole
		config.UseColors = true
		config.IncludeScenarioReports = true
		config.IncludeReversals = true
		config.IncludeFailures = true
		config.IncludeDropped = true
	}

	return config
}

// LoadScenarios reads scenarios from a file or, when path is empty, from the
// SQLite scenarios table at dbPath.
func LoadScenarios(ctx context.Context, path, dbPath string) ([]models.Scenario, error) {
	switch {
	case strings.TrimSpace(path) != "":
		return parsers.LoadScenarioFile(path)
	case strings.TrimSpace(dbPath) != "":
		db, err := store.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.LoadScenarios(ctx)
	default:
		return nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "scenarios", nil,
			fmt.Errorf("no scenario source configured")).
			WithSuggestion("Pass --scenarios <file> or --scenario-db <sqlite file>")
	}
}

// ScenarioError ties a validation failure to the scenario it belongs to.
type ScenarioError struct {
	ScenarioID int
	Err        error
}

func (e *ScenarioError) Error() string { return e.Err.Error() }

func (e *ScenarioError) Unwrap() error { return e.Err }

// ValidateScenarios checks each scenario and returns one *ScenarioError per
// invalid entry, including repeated scenario ids.
func ValidateScenarios(scenarios []models.Scenario) []error {
	var errs []error
	seen := make(map[int]bool, len(scenarios))
	for _, s := range scenarios {
		if seen[s.ScenarioID] {
			errs = append(errs, &ScenarioError{
				ScenarioID: s.ScenarioID,
				Err: apperrors.ConfigurationError(apperrors.CodeDuplicateConfig, "scenario_id", s.ScenarioID,
					fmt.Errorf("scenario id %d is defined more than once", s.ScenarioID)),
			})
			continue
		}
		seen[s.ScenarioID] = true
		if err := s.WithDefaults().Validate(); err != nil {
			errs = append(errs, &ScenarioError{ScenarioID: s.ScenarioID, Err: err})
		}
	}
	return errs
}
