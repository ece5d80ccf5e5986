// Package store persists scenario definitions and detection results.
//
// SQLiteStore is the local store: it holds the scenarios table read once
// per run and records every run's retained duplicate rows and reversal
// audit. PostgresSink writes the same result tables to PostgreSQL using
// COPY for bulk inserts.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"golang-invoice-dedup-service/internal/dedup"
	"golang-invoice-dedup-service/internal/detector"
	"golang-invoice-dedup-service/internal/grouping"
	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/internal/reversal"
	apperrors "golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// ResultSink receives the outcome of a detection run.
type ResultSink interface {
	SaveResult(ctx context.Context, result *detector.RunResult) error
	Close() error
}

// SQLiteStore provides durable local storage for scenarios and results.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenSQLite creates or opens a SQLite database at the given path and
// applies the schema. It is safe to call on an existing database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageError("open_database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageError("connect_database", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, storageError("apply_pragmas", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, storageError("apply_schema", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("store").WithField("backend", "sqlite"),
	}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadScenarios returns all scenario rows ordered by id, disabled ones
// included. Validation happens when the detector compiles them.
func (s *SQLiteStore) LoadScenarios(ctx context.Context) ([]models.Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_id, name, grouping_columns, compare_column, score_threshold,
		       supplier_match, supplier_threshold, disabled
		FROM scenarios
		ORDER BY scenario_id`)
	if err != nil {
		return nil, storageError("load_scenarios", err)
	}
	defer rows.Close()

	var scenarios []models.Scenario
	for rows.Next() {
		var (
			sc       models.Scenario
			columns  string
			matching string
		)
		if err := rows.Scan(&sc.ScenarioID, &sc.Name, &columns, &sc.CompareColumn, &sc.ScoreThreshold,
			&matching, &sc.SupplierThreshold, &sc.Disabled); err != nil {
			return nil, storageError("scan_scenario", err)
		}
		if err := json.Unmarshal([]byte(columns), &sc.GroupingColumns); err != nil {
			return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig,
				fmt.Sprintf("scenarios[%d].grouping_columns", sc.ScenarioID), columns, err)
		}
		sc.SupplierMatching = models.SupplierMatching(matching)
		scenarios = append(scenarios, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load_scenarios", err)
	}

	if len(scenarios) == 0 {
		return nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "scenarios", "sqlite", nil).
			WithSuggestion("Import scenarios with 'dupdetect scenarios import'")
	}

	s.logger.WithField("scenarios", len(scenarios)).Debug("Loaded scenarios")
	return scenarios, nil
}

// SaveScenarios upserts scenario definitions in one transaction.
func (s *SQLiteStore) SaveScenarios(ctx context.Context, scenarios []models.Scenario) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin_transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scenarios (scenario_id, name, grouping_columns, compare_column, score_threshold,
		                       supplier_match, supplier_threshold, disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scenario_id) DO UPDATE SET
			name = excluded.name,
			grouping_columns = excluded.grouping_columns,
			compare_column = excluded.compare_column,
			score_threshold = excluded.score_threshold,
			supplier_match = excluded.supplier_match,
			supplier_threshold = excluded.supplier_threshold,
			disabled = excluded.disabled`)
	if err != nil {
		return storageError("prepare_scenarios", err)
	}
	defer stmt.Close()

	for _, sc := range scenarios {
		columns, err := json.Marshal(sc.GroupingColumns)
		if err != nil {
			return storageError("encode_grouping_columns", err)
		}
		if _, err := stmt.ExecContext(ctx, sc.ScenarioID, sc.Name, string(columns), sc.CompareColumn,
			sc.ScoreThreshold, string(sc.SupplierMatching), sc.SupplierThreshold, sc.Disabled); err != nil {
			return storageError("save_scenario", err).WithContext("scenario_id", sc.ScenarioID)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit_scenarios", err)
	}

	s.logger.WithField("scenarios", len(scenarios)).Info("Saved scenarios")
	return nil
}

// SaveResult writes the run header, retained duplicate rows and reversal
// audit entries in one transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, result *detector.RunResult) error {
	header, err := newRunHeader(result)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin_transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO detection_runs (run_id, started_at, duration_ms, input_rows, groups_retained,
		                            rows_flagged, reversal_matches, scenario_errors, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		header.RunID, header.StartedAt.UTC().Format(time.RFC3339Nano), header.DurationMS, header.InputRows,
		header.GroupsRetained, header.RowsFlagged, header.ReversalMatches, header.ScenarioErrors,
		string(header.Summary)); err != nil {
		return storageError("insert_run", err).WithContext("run_id", header.RunID)
	}

	rowStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO duplicate_rows (run_id, primary_key, scenario_id, group_id, group_number, risk_score)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storageError("prepare_duplicate_rows", err)
	}
	defer rowStmt.Close()

	for _, row := range result.Rows {
		if _, err := rowStmt.ExecContext(ctx, header.RunID, row.PrimaryKey, row.ScenarioID, row.GroupID,
			row.GroupNumber, row.RiskScore); err != nil {
			return storageError("insert_duplicate_row", err).WithContext("primary_key", row.PrimaryKey)
		}
	}

	matchStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reversal_matches (run_id, reversal_key, invoice_key, reversal_number, invoice_number,
		                              supplier_name, invoice_date, amount_abs, match_type, candidate_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storageError("prepare_reversal_matches", err)
	}
	defer matchStmt.Close()

	for _, m := range result.ReversalMatches {
		if _, err := matchStmt.ExecContext(ctx, header.RunID, m.ReversalKey, m.InvoiceKey, m.ReversalNumber,
			m.InvoiceNumber, m.SupplierName, models.FormatDate(m.InvoiceDate), m.AmountAbs.String(),
			string(m.MatchType), m.CandidateCount); err != nil {
			return storageError("insert_reversal_match", err).WithContext("reversal_key", m.ReversalKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit_result", err)
	}

	s.logger.WithFields(logger.Fields{
		"run_id":           header.RunID,
		"rows":             len(result.Rows),
		"reversal_matches": len(result.ReversalMatches),
	}).Info("Saved detection result")
	return nil
}

// LoadRows returns the stored duplicate rows of a run ordered by group
// number and primary key.
func (s *SQLiteStore) LoadRows(ctx context.Context, runID string) ([]models.DuplicateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT primary_key, scenario_id, group_id, group_number, risk_score
		FROM duplicate_rows
		WHERE run_id = ?
		ORDER BY group_number, primary_key`, runID)
	if err != nil {
		return nil, storageError("load_rows", err)
	}
	defer rows.Close()

	var out []models.DuplicateRow
	for rows.Next() {
		var r models.DuplicateRow
		if err := rows.Scan(&r.PrimaryKey, &r.ScenarioID, &r.GroupID, &r.GroupNumber, &r.RiskScore); err != nil {
			return nil, storageError("scan_row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// runSummary is the JSON document stored with each run.
type runSummary struct {
	ReversalStats reversal.Stats             `json:"reversal_stats"`
	DedupStats    dedup.Stats                `json:"dedup_stats"`
	Reports       []*grouping.Report         `json:"scenario_reports"`
	Failures      []detector.ScenarioFailure `json:"failures,omitempty"`
	DropReasons   map[string]int             `json:"drop_reasons,omitempty"`
}

type runHeader struct {
	RunID           string
	StartedAt       time.Time
	DurationMS      int64
	InputRows       int
	GroupsRetained  int
	RowsFlagged     int
	ReversalMatches int
	ScenarioErrors  int
	Summary         []byte
}

func newRunHeader(result *detector.RunResult) (*runHeader, error) {
	if result == nil || result.RunID == "" {
		return nil, apperrors.InternalError(apperrors.CodeStorageFailure, "save_result", fmt.Errorf("result has no run id"))
	}

	summary := runSummary{
		ReversalStats: result.ReversalStats,
		DedupStats:    result.DedupStats,
		Reports:       result.Reports,
		Failures:      result.Failures,
	}

	h := &runHeader{
		RunID:           result.RunID,
		StartedAt:       result.StartedAt,
		DurationMS:      result.Duration.Milliseconds(),
		GroupsRetained:  len(result.Groups),
		RowsFlagged:     len(result.Rows),
		ReversalMatches: len(result.ReversalMatches),
		ScenarioErrors:  len(result.Failures),
	}
	if result.Preprocess != nil {
		h.InputRows = result.Preprocess.InputRows
		summary.DropReasons = make(map[string]int, len(result.Preprocess.DropReasons))
		for reason, n := range result.Preprocess.DropReasons {
			summary.DropReasons[string(reason)] = n
		}
	}

	encoded, err := json.Marshal(summary)
	if err != nil {
		return nil, apperrors.InternalError(apperrors.CodeStorageFailure, "encode_summary", err)
	}
	h.Summary = encoded
	return h, nil
}

func storageError(operation string, err error) *apperrors.DetectorError {
	return apperrors.InternalError(apperrors.CodeStorageFailure, operation, err)
}
