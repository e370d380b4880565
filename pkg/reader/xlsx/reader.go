// Package xlsx provides a streaming reader for spreadsheet exports of search results
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/ChrisMcGann/dimadb/pkg/core"
	"github.com/xuri/excelize/v2"
)

// Reader provides row-by-row access to the first worksheet of an XLSX file
// with the same contract as the TSV reader: the first non-blank row is the
// header, every later non-blank row is one record.
type Reader struct {
	file    *excelize.File
	rows    *excelize.Rows
	source  string
	dataset string
	header  []string
	rowNum  int
	current *core.Record
	err     error
}

// NewReader opens the workbook in r and positions the reader on its first sheet.
func NewReader(r io.Reader, source, dataset string) (*Reader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("workbook %s has no sheets", source)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return &Reader{
		file:    f,
		rows:    rows,
		source:  source,
		dataset: dataset,
	}, nil
}

// Next advances to the next record. Returns false when no more records or error.
func (r *Reader) Next() bool {
	r.current = nil
	if r.err != nil {
		return false
	}

	for r.rows.Next() {
		r.rowNum++
		cols, err := r.rows.Columns()
		if err != nil {
			r.err = fmt.Errorf("row %d: %w", r.rowNum, err)
			return false
		}

		if isBlank(cols) {
			continue
		}

		if r.header == nil {
			r.header = cols
			continue
		}

		r.current = r.zip(cols)
		return true
	}

	if err := r.rows.Error(); err != nil {
		r.err = err
	}
	return false
}

// Record returns the current record
func (r *Reader) Record() *core.Record {
	return r.current
}

// Header returns the column names of the header row.
func (r *Reader) Header() []string {
	return r.header
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// Close releases the row iterator and the workbook.
func (r *Reader) Close() error {
	rowsErr := r.rows.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return rowsErr
}

// zip mirrors the TSV semantics: trailing empty cells are not returned by
// excelize, so they behave like a short line.
func (r *Reader) zip(values []string) *core.Record {
	n := len(values)
	if n > len(r.header) {
		n = len(r.header)
	}

	fields := make(map[string]string, n+1)
	for i := 0; i < n; i++ {
		fields[r.header[i]] = values[i]
	}
	if fields[core.FieldDataset] == "" {
		fields[core.FieldDataset] = r.dataset
	}

	return &core.Record{
		Fields: fields,
		Source: r.source,
		Line:   r.rowNum,
	}
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
