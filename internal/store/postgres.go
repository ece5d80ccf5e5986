package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"golang-invoice-dedup-service/internal/detector"
	"golang-invoice-dedup-service/internal/models"
	apperrors "golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

//go:embed postgres_schema.sql
var postgresSchemaSQL string

var (
	duplicateRowColumns = []string{"run_id", "primary_key", "scenario_id", "group_id", "group_number", "risk_score"}
	reversalColumns     = []string{
		"run_id", "reversal_key", "invoice_key", "reversal_number", "invoice_number",
		"supplier_name", "invoice_date", "amount_abs", "match_type", "candidate_count",
	}
)

// PostgresSink writes detection results to PostgreSQL.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// OpenPostgres connects to dsn and creates the result tables if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "sink_dsn", "", nil)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "sink_dsn", "<redacted>", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, storageError("connect_postgres", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageError("connect_postgres", err)
	}

	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return nil, storageError("apply_schema", err)
	}

	return &PostgresSink{
		pool:   pool,
		logger: logger.GetGlobalLogger().WithComponent("store").WithField("backend", "postgres"),
	}, nil
}

// Close closes the connection pool.
func (p *PostgresSink) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// SaveResult inserts the run header and bulk-copies duplicate rows and
// reversal matches inside one transaction.
func (p *PostgresSink) SaveResult(ctx context.Context, result *detector.RunResult) error {
	header, err := newRunHeader(result)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return storageError("begin_transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO detection_runs (run_id, started_at, duration_ms, input_rows, groups_retained,
		                            rows_flagged, reversal_matches, scenario_errors, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		header.RunID, header.StartedAt, header.DurationMS, header.InputRows, header.GroupsRetained,
		header.RowsFlagged, header.ReversalMatches, header.ScenarioErrors, string(header.Summary)); err != nil {
		return storageError("insert_run", err).WithContext("run_id", header.RunID)
	}

	rows := result.Rows
	rowSrc := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{header.RunID, r.PrimaryKey, r.ScenarioID, r.GroupID, r.GroupNumber, r.RiskScore}, nil
	})
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"duplicate_rows"}, duplicateRowColumns, rowSrc)
	if err != nil {
		return storageError("copy_duplicate_rows", err)
	}
	if copied != int64(len(rows)) {
		return storageError("copy_duplicate_rows", fmt.Errorf("copied %d of %d rows", copied, len(rows)))
	}

	matches := result.ReversalMatches
	matchSrc := pgx.CopyFromSlice(len(matches), func(i int) ([]any, error) {
		m := matches[i]
		var date any
		if !m.InvoiceDate.IsZero() {
			date = m.InvoiceDate
		}
		amount, err := numeric(m)
		if err != nil {
			return nil, err
		}
		return []any{
			header.RunID, m.ReversalKey, m.InvoiceKey, m.ReversalNumber, m.InvoiceNumber,
			m.SupplierName, date, amount, string(m.MatchType), m.CandidateCount,
		}, nil
	})
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"reversal_matches"}, reversalColumns, matchSrc); err != nil {
		return storageError("copy_reversal_matches", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageError("commit_result", err)
	}

	p.logger.WithFields(logger.Fields{
		"run_id":           header.RunID,
		"rows":             len(rows),
		"reversal_matches": len(matches),
	}).Info("Saved detection result")
	return nil
}

// CountRows returns the number of stored duplicate rows of a run.
func (p *PostgresSink) CountRows(ctx context.Context, runID string) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM duplicate_rows WHERE run_id = $1`, runID).Scan(&n); err != nil {
		return 0, storageError("count_rows", err)
	}
	return n, nil
}

func numeric(m models.ReversalMatch) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(m.AmountAbs.String()); err != nil {
		return n, fmt.Errorf("reversal %s: amount %s: %w", m.ReversalKey, m.AmountAbs.String(), err)
	}
	return n, nil
}

var (
	_ ResultSink = (*PostgresSink)(nil)
	_ ResultSink = (*SQLiteStore)(nil)
)
