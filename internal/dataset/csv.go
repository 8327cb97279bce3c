// Package dataset reads batch statements from CSV and writes verdicts back
// out, keeping every original column.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/verity/internal/model"
)

// DefaultColumn is the statement column used when none is configured
const DefaultColumn = "statement"

// Output columns added to every row
const (
	VerdictColumn = "verdict"
	ErrorColumn   = "error"
)

// ErrMissingColumn is returned when the statement column is absent from the header
var ErrMissingColumn = errors.New("statement column not found")

// Table is a parsed batch input
type Table struct {
	Column  string
	Header  []string
	Rows    []model.Row
	Skipped []model.SkippedRow
}

// ReadFile parses the CSV file at path
func ReadFile(path, column string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f, column)
}

// Read parses CSV with a header row. Rows whose statement is blank are
// recorded as skipped and never reach the pipeline.
func Read(r io.Reader, column string) (*Table, error) {
	if column == "" {
		column = DefaultColumn
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	if !contains(header, column) {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrMissingColumn, column, strings.Join(header, ", "))
	}

	t := &Table{Column: column, Header: header}
	for n := 1; ; n++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", n, err)
		}

		columns := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				columns[name] = record[i]
			} else {
				columns[name] = ""
			}
		}

		statement := strings.TrimSpace(columns[column])
		if statement == "" {
			t.Skipped = append(t.Skipped, model.SkippedRow{Number: n, Reason: "empty statement"})
			continue
		}
		t.Rows = append(t.Rows, model.Row{Number: n, Statement: statement, Columns: columns})
	}

	return t, nil
}

// InputPrefix is prepended to input columns whose names clash with the
// verdict or error output columns
const InputPrefix = "input_"

// OutputHeader orders output columns: the statement column, verdict and
// error, then every other input column sorted by name. Input columns named
// verdict or error are kept under InputPrefix instead of being overwritten.
func OutputHeader(column string, rows []model.RowResult) []string {
	header, _ := outputColumns(column, rows)
	return header
}

// outputColumns returns the header and, per position, the input column the
// value comes from. The first three positions are filled by Write.
func outputColumns(column string, rows []model.RowResult) (header, source []string) {
	seen := map[string]bool{column: true}
	var rest []string
	for i := range rows {
		for name := range rows[i].Row.Columns {
			if !seen[name] {
				seen[name] = true
				rest = append(rest, name)
			}
		}
	}
	sort.Strings(rest)

	taken := map[string]bool{VerdictColumn: true, ErrorColumn: true}
	for name := range seen {
		taken[name] = true
	}
	rename := func(name string) string {
		if name != VerdictColumn && name != ErrorColumn {
			return name
		}
		out := InputPrefix + name
		for taken[out] {
			out = InputPrefix + out
		}
		taken[out] = true
		return out
	}

	header = []string{rename(column), VerdictColumn, ErrorColumn}
	source = []string{column, "", ""}
	for _, name := range rest {
		header = append(header, rename(name))
		source = append(source, name)
	}
	return header, source
}

// Write renders report rows as CSV. Failed rows carry the ERROR verdict and
// their message in the error column.
func Write(w io.Writer, column string, report *model.BatchReport) error {
	if column == "" {
		column = DefaultColumn
	}
	header, source := outputColumns(column, report.Rows)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for i := range report.Rows {
		rr := &report.Rows[i]
		record[0] = rr.Row.Statement
		record[1] = string(rr.Verdict())
		record[2] = rr.Error
		for j := 3; j < len(header); j++ {
			record[j] = rr.Row.Columns[source[j]]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", rr.Row.Number, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes the CSV report to path
func WriteFile(path, column string, report *model.BatchReport) error {
	return writeAtomic(path, func(w io.Writer) error {
		return Write(w, column, report)
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
