package loader

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ChrisMcGann/dimadb/pkg/reader/tsv"
	"github.com/ChrisMcGann/dimadb/pkg/reader/xlsx"
	"github.com/ChrisMcGann/dimadb/pkg/source"
)

// Input formats.
const (
	FormatTSV  = "tsv"
	FormatXLSX = "xlsx"
)

// DetectFormat picks the reader from the file extension; anything that is
// not a workbook is read as tab-delimited text.
func DetectFormat(p string) string {
	if strings.EqualFold(path.Ext(p), ".xlsx") {
		return FormatXLSX
	}
	return FormatTSV
}

// OpenedSource is a record source bound to an open input.
type OpenedSource struct {
	RecordSource
	closers []io.Closer
	// Dataset is the label injected into records without a dataset column.
	Dataset string
}

// Close releases the reader and the underlying input.
func (s *OpenedSource) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens p through the opener and wraps it in the reader for format
// ("" = detect). dataset defaults to the input's base name.
func Open(ctx context.Context, opener *source.Opener, p, dataset, format string) (*OpenedSource, error) {
	if format == "" {
		format = DetectFormat(p)
	}
	format = strings.ToLower(format)
	if format != FormatTSV && format != FormatXLSX {
		return nil, fmt.Errorf("invalid input format '%s', must be tsv or xlsx", format)
	}

	in, err := opener.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	if dataset == "" {
		dataset = in.Name
	}

	out := &OpenedSource{closers: []io.Closer{in}, Dataset: dataset}
	switch format {
	case FormatXLSX:
		r, err := xlsx.NewReader(in, p, dataset)
		if err != nil {
			in.Close()
			return nil, err
		}
		out.RecordSource = r
		out.closers = append(out.closers, r)
	default:
		out.RecordSource = tsv.NewReader(in, p, dataset)
	}
	return out, nil
}
