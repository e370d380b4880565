// Package tsv provides a streaming reader for tab-delimited search-result exports
package tsv

import (
	"bufio"
	"io"
	"strings"

	"github.com/ChrisMcGann/dimadb/pkg/core"
)

const maxLineSize = 16 * 1024 * 1024

// Reader provides streaming access to a header-first TSV file. Each data line
// becomes one core.Record keyed by the header names.
type Reader struct {
	scanner *bufio.Scanner
	source  string
	dataset string
	header  []string
	lineNum int
	current *core.Record
	err     error
}

// NewReader creates a new TSV reader. source names the input in records and
// errors; dataset is injected into records that have no "dataset" column.
func NewReader(r io.Reader, source, dataset string) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &Reader{
		scanner: scanner,
		source:  source,
		dataset: dataset,
	}
}

// Next advances to the next record. Returns false when no more records or error.
func (r *Reader) Next() bool {
	r.current = nil

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimRight(r.scanner.Text(), "\r\n")

		// Blank lines are ignored anywhere in the file
		if strings.TrimSpace(line) == "" {
			continue
		}

		if r.header == nil {
			line = strings.TrimPrefix(line, "\ufeff")
			r.header = strings.Split(line, "\t")
			continue
		}

		r.current = r.zip(strings.Split(line, "\t"))
		return true
	}

	if err := r.scanner.Err(); err != nil {
		r.err = err
	}
	return false
}

// Record returns the current record
func (r *Reader) Record() *core.Record {
	return r.current
}

// Header returns the column names read from the first non-blank line.
func (r *Reader) Header() []string {
	return r.header
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// zip pairs values with header names positionally. A short line leaves the
// trailing keys absent; values beyond the header are dropped.
func (r *Reader) zip(values []string) *core.Record {
	n := len(values)
	if n > len(r.header) {
		n = len(r.header)
	}

	fields := make(map[string]string, n+1)
	for i := 0; i < n; i++ {
		fields[r.header[i]] = values[i]
	}
	// An empty dataset cell counts as absent.
	if fields[core.FieldDataset] == "" {
		fields[core.FieldDataset] = r.dataset
	}

	return &core.Record{
		Fields: fields,
		Source: r.source,
		Line:   r.lineNum,
	}
}
