// Package loader drives search-result records from a reader through the
// normalizer into the store.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChrisMcGann/dimadb/pkg/core"
	"github.com/ChrisMcGann/dimadb/pkg/filter"
	"github.com/ChrisMcGann/dimadb/pkg/metrics"
	"github.com/ChrisMcGann/dimadb/pkg/writer/sqldb"
)

// RecordSource is a single-pass sequence of records.
type RecordSource interface {
	Next() bool
	Record() *core.Record
	Header() []string
	Err() error
}

// EntryWriter stores one normalized entry atomically.
type EntryWriter interface {
	WriteEntry(ctx context.Context, e *core.PeptideEntry) (int64, error)
}

// Summary reports the outcome of a run.
type Summary struct {
	Read     int // data records seen
	Loaded   int // records stored (or, without a writer, parsed successfully)
	Skipped  int // records rejected with a parse error
	Filtered int // records dropped by the filter
	Rows     int // rows inserted across all tables
	Errors   []*core.RecordError

	// Mods counts rows per modification type; UnknownMods counts those
	// missing from the ModDatabase.
	Mods        map[string]int
	UnknownMods map[string]int
}

// Loader holds the run policy. A nil Writer parses without storing.
type Loader struct {
	Writer  EntryWriter
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Filter  *filter.Config
	ModDB   *core.ModDatabase

	// Strict aborts on the first parse error instead of skipping the record.
	Strict bool
	// Retries is the number of extra attempts after a transient storage error.
	Retries    int
	RetryDelay time.Duration
	// IsTransient classifies storage errors; defaults to sqldb.IsTransient.
	IsTransient func(error) bool

	// ProgressEvery logs progress every N records (0 = never).
	ProgressEvery int
}

// Load consumes src until it is exhausted. Missing input, storage failures
// and, in strict mode, parse errors abort the run; the summary up to that
// point is returned along with the error.
func (l *Loader) Load(ctx context.Context, src RecordSource) (Summary, error) {
	logger := l.logger()
	sum := Summary{Mods: map[string]int{}, UnknownMods: map[string]int{}}
	start := time.Now()
	defer func() {
		if l.Metrics != nil {
			l.Metrics.Finish(time.Since(start))
		}
	}()

	for src.Next() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec := src.Record()
		sum.Read++
		dataset := rec.Fields[core.FieldDataset]

		entry, err := core.Normalize(rec)
		if err != nil {
			recErr := &core.RecordError{Source: rec.Source, Line: rec.Line, Err: err}
			if l.Strict || !core.IsParseError(err) {
				return sum, recErr
			}
			logger.Warn("skipping record", "source", rec.Source, "line", rec.Line, "error", err)
			sum.Skipped++
			sum.Errors = append(sum.Errors, recErr)
			l.record(dataset, metrics.StatusSkipped)
			continue
		}

		if keep, reason := l.Filter.Keep(entry); !keep {
			logger.Debug("filtered record", "source", rec.Source, "line", rec.Line, "reason", reason)
			sum.Filtered++
			l.record(dataset, metrics.StatusFiltered)
			continue
		}

		l.checkMods(entry, &sum)

		if l.Writer != nil {
			if err := l.write(ctx, entry); err != nil {
				return sum, &core.RecordError{Source: rec.Source, Line: rec.Line, Err: err}
			}
			sum.Rows += entry.RowCount()
			l.countRows(entry)
			logger.Debug("stored peptide", "id", entry.Peptide.ID, "peptide", entry.Peptide.String(), "rows", entry.RowCount())
		}

		sum.Loaded++
		l.record(dataset, metrics.StatusLoaded)

		if l.ProgressEvery > 0 && sum.Loaded%l.ProgressEvery == 0 {
			logger.Info("progress", "loaded", sum.Loaded, "skipped", sum.Skipped)
		}
	}

	if err := src.Err(); err != nil {
		return sum, fmt.Errorf("error reading input: %w", err)
	}
	return sum, nil
}

// write stores the entry, retrying the whole transaction on transient errors.
func (l *Loader) write(ctx context.Context, e *core.PeptideEntry) error {
	isTransient := l.IsTransient
	if isTransient == nil {
		isTransient = sqldb.IsTransient
	}

	for attempt := 0; ; attempt++ {
		_, err := l.Writer.WriteEntry(ctx, e)
		if err == nil {
			return nil
		}
		if attempt >= l.Retries || !isTransient(err) {
			return err
		}

		l.logger().Info("retrying write", "attempt", attempt+1, "error", err)
		if l.Metrics != nil {
			l.Metrics.Retry()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.RetryDelay * time.Duration(attempt+1)):
		}
	}
}

func (l *Loader) checkMods(e *core.PeptideEntry, sum *Summary) {
	for _, m := range e.Modifications {
		sum.Mods[m.Type]++
		if l.ModDB == nil || l.ModDB.Known(m.Type) {
			continue
		}
		if sum.UnknownMods[m.Type] == 0 {
			l.logger().Warn("unknown modification type", "type", m.Type, "peptide", e.Peptide.AnnotatedSequence)
		}
		sum.UnknownMods[m.Type]++
	}
}

func (l *Loader) countRows(e *core.PeptideEntry) {
	if l.Metrics == nil {
		return
	}
	data := 0
	for _, m := range e.SeqMatches {
		data += len(m.Data)
	}
	l.Metrics.Rows("peptide", 1)
	l.Metrics.Rows("peptide_abundance", len(e.Abundances))
	l.Metrics.Rows("peptide_seq_match", len(e.SeqMatches))
	l.Metrics.Rows("peptide_seq_match_data", data)
	l.Metrics.Rows("peptide_modification", len(e.Modifications))
}

func (l *Loader) record(dataset, status string) {
	if l.Metrics != nil {
		l.Metrics.Record(dataset, status)
	}
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
