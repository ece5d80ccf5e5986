package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/pkg/errors"
)

const auditSheet = "Reversal Audit"

// AuditHeaders are the columns of the reversal audit export.
var AuditHeaders = []string{
	"reversal_key", "reversal_number", "invoice_key", "invoice_number",
	"supplier_name", "invoice_date", "amount_abs", "match_type", "candidate_count",
}

func auditRecord(m models.ReversalMatch) []string {
	return []string{
		m.ReversalKey,
		m.ReversalNumber,
		m.InvoiceKey,
		m.InvoiceNumber,
		m.SupplierName,
		models.FormatDate(m.InvoiceDate),
		m.AmountAbs.String(),
		string(m.MatchType),
		fmt.Sprintf("%d", m.CandidateCount),
	}
}

// WriteReversalAudit exports matches to path. The format follows the
// extension: .csv or .xlsx.
func WriteReversalAudit(path string, matches []models.ReversalMatch) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		file, err := os.Create(path)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		if err := WriteReversalAuditCSV(file, matches); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil
	case ".xlsx":
		f, err := newAuditWorkbook(matches)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := f.SaveAs(path); err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil
	default:
		return errors.FileError(errors.CodeUnsupported, path,
			fmt.Errorf("reversal audit must be .csv or .xlsx"))
	}
}

// WriteReversalAuditCSV writes matches as CSV with a header row.
func WriteReversalAuditCSV(w io.Writer, matches []models.ReversalMatch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AuditHeaders); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "write_reversal_audit", err)
	}
	for _, m := range matches {
		if err := cw.Write(auditRecord(m)); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "write_reversal_audit", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "write_reversal_audit", err)
	}
	return nil
}

// WriteReversalAuditXLSX writes matches as an XLSX workbook.
func WriteReversalAuditXLSX(w io.Writer, matches []models.ReversalMatch) error {
	f, err := newAuditWorkbook(matches)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "write_reversal_audit", err)
	}
	return nil
}

// newAuditWorkbook streams the audit rows into a single sheet. Amounts are
// written as text so decimal precision survives.
func newAuditWorkbook(matches []models.ReversalMatch) (*excelize.File, error) {
	f := excelize.NewFile()
	wrap := func(err error) error {
		f.Close()
		return errors.InternalError(errors.CodeUnexpectedError, "build_reversal_audit", err)
	}

	if err := f.SetSheetName("Sheet1", auditSheet); err != nil {
		return nil, wrap(err)
	}

	sw, err := f.NewStreamWriter(auditSheet)
	if err != nil {
		return nil, wrap(err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, wrap(err)
	}

	header := make([]interface{}, len(AuditHeaders))
	for i, h := range AuditHeaders {
		header[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, wrap(err)
	}

	for i, m := range matches {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, wrap(err)
		}
		rec := auditRecord(m)
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		row[len(row)-1] = m.CandidateCount
		if err := sw.SetRow(cell, row); err != nil {
			return nil, wrap(err)
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, wrap(err)
	}
	return f, nil
}
