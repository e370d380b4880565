package loader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/xuri/excelize/v2"

	"github.com/ChrisMcGann/dimadb/pkg/core"
	"github.com/ChrisMcGann/dimadb/pkg/filter"
	"github.com/ChrisMcGann/dimadb/pkg/metrics"
	"github.com/ChrisMcGann/dimadb/pkg/source"
	"github.com/ChrisMcGann/dimadb/pkg/writer/sqldb"
)

var wantPeptidesCounts = map[string]int64{
	"peptide":                4,
	"peptide_abundance":      8,
	"peptide_seq_match":      5,
	"peptide_seq_match_data": 15,
	"peptide_modification":   8,
}

func openWriter(t *testing.T) *sqldb.Writer {
	t.Helper()
	w, err := sqldb.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "load.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	if err := w.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return w
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func loadFile(t *testing.T, l *Loader, path, dataset string) (Summary, error) {
	t.Helper()
	src, err := Open(context.Background(), source.NewOpener(source.S3Config{}), path, dataset, "")
	if err != nil {
		t.Fatalf("Open(%s) error = %v", path, err)
	}
	defer src.Close()
	return l.Load(context.Background(), src)
}

// countDataLines counts non-blank lines after the header.
func countDataLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := -1
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n
}

func TestLoadPeptides(t *testing.T) {
	w := openWriter(t)
	l := &Loader{Writer: w, Logger: quietLogger()}

	path := filepath.Join("testdata", "peptides.txt")
	sum, err := loadFile(t, l, path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if sum.Read != 4 || sum.Loaded != 4 || sum.Skipped != 0 {
		t.Errorf("summary = %+v", sum)
	}

	counts, err := w.Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts["peptide"] != int64(countDataLines(t, path)) {
		t.Errorf("peptide rows = %d, want one per data line", counts["peptide"])
	}
	for table, n := range wantPeptidesCounts {
		if counts[table] != n {
			t.Errorf("%s rows = %d, want %d", table, counts[table], n)
		}
	}
	if int64(sum.Rows) != 4+8+5+15+8 {
		t.Errorf("Summary.Rows = %d", sum.Rows)
	}

	var datasets []string
	rows, err := w.DB().Query(`SELECT DISTINCT dataset FROM peptide`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			t.Fatal(err)
		}
		datasets = append(datasets, d)
	}
	if len(datasets) != 1 || datasets[0] != "peptides.txt" {
		t.Errorf("datasets = %v, want [peptides.txt]", datasets)
	}

	var value int64
	if err := w.DB().QueryRow(`SELECT a.value FROM peptide_abundance a JOIN peptide p ON p.id = a.peptide_id
		WHERE p.annotated_sequence = '[K].AGSPDVLRCGDSEVSPR.[C]' AND a.channel = '126'`).Scan(&value); err != nil {
		t.Fatal(err)
	}
	if value != 7900 {
		t.Errorf("abundance 126 = %d, want 7900", value)
	}

	var contaminants int
	if err := w.DB().QueryRow(`SELECT COUNT(*) FROM peptide WHERE contaminant`).Scan(&contaminants); err != nil {
		t.Fatal(err)
	}
	if contaminants != 1 {
		t.Errorf("contaminant rows = %d, want 1", contaminants)
	}
}

func TestLoadDatasetLabel(t *testing.T) {
	w := openWriter(t)
	l := &Loader{Writer: w, Logger: quietLogger()}

	if _, err := loadFile(t, l, filepath.Join("testdata", "with_dataset.txt"), "fallback"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := map[string]int{}
	rows, err := w.DB().Query(`SELECT dataset FROM peptide ORDER BY id`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			t.Fatal(err)
		}
		got[d]++
	}
	if got["lab-2017-03"] != 1 || got["fallback"] != 1 {
		t.Errorf("datasets = %v", got)
	}
}

func TestLoadSkipsBadRecords(t *testing.T) {
	w := openWriter(t)
	var logs bytes.Buffer
	rec := metrics.NewRecorder()
	l := &Loader{Writer: w, Logger: slog.New(slog.NewTextHandler(&logs, nil)), Metrics: rec}

	sum, err := loadFile(t, l, filepath.Join("testdata", "bad_positions.txt"), "bad")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if sum.Loaded != 2 || sum.Skipped != 1 || len(sum.Errors) != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Errors[0].Line != 3 {
		t.Errorf("error line = %d, want 3", sum.Errors[0].Line)
	}
	if !strings.Contains(sum.Errors[0].Error(), "P68431 10-17") {
		t.Errorf("error %q does not name the token", sum.Errors[0].Error())
	}
	if !strings.Contains(logs.String(), "skipping record") {
		t.Errorf("skip not logged: %s", logs.String())
	}

	var matches int
	if err := w.DB().QueryRow(`SELECT COUNT(*) FROM peptide_seq_match WHERE accession = 'P68431'`).Scan(&matches); err != nil {
		t.Fatal(err)
	}
	if matches != 0 {
		t.Errorf("bad record left %d seq match rows", matches)
	}

	n, err := testutil.GatherAndCount(rec.Registry(), "dimadb_records_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("records_total series = %d, want loaded and skipped", n)
	}
}

func TestLoadStrictAborts(t *testing.T) {
	w := openWriter(t)
	l := &Loader{Writer: w, Logger: quietLogger(), Strict: true}

	sum, err := loadFile(t, l, filepath.Join("testdata", "bad_positions.txt"), "bad")
	var recErr *core.RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("error = %v, want *core.RecordError", err)
	}
	if !core.IsParseError(err) {
		t.Errorf("error %v should wrap a ParseError", err)
	}
	if sum.Loaded != 1 {
		t.Errorf("Loaded = %d, want 1 before the bad line", sum.Loaded)
	}

	counts, _ := w.Counts(context.Background())
	if counts["peptide"] != 1 {
		t.Errorf("peptide rows = %d, want 1", counts["peptide"])
	}
}

func TestLoadTwiceAfterDrop(t *testing.T) {
	w := openWriter(t)
	ctx := context.Background()
	l := &Loader{Writer: w, Logger: quietLogger()}
	path := filepath.Join("testdata", "peptides.txt")

	var runs []map[string]int64
	for i := 0; i < 2; i++ {
		if err := w.Drop(ctx); err != nil {
			t.Fatal(err)
		}
		if err := w.Create(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := loadFile(t, l, path, ""); err != nil {
			t.Fatalf("run %d Load() error = %v", i, err)
		}
		counts, err := w.Counts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		runs = append(runs, counts)
	}
	for table, n := range runs[0] {
		if runs[1][table] != n {
			t.Errorf("%s: first run %d rows, second run %d", table, n, runs[1][table])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Open(context.Background(), source.NewOpener(source.S3Config{}), filepath.Join(t.TempDir(), "missing.txt"), "", "")
	if !errors.Is(err, core.ErrInputNotFound) {
		t.Errorf("error = %v, want ErrInputNotFound", err)
	}
}

func TestLoadFilterAndMetrics(t *testing.T) {
	w := openWriter(t)
	rec := metrics.NewRecorder()
	l := &Loader{
		Writer:  w,
		Logger:  quietLogger(),
		Metrics: rec,
		Filter:  &filter.Config{ExcludeContaminants: true, MinConfidence: "Medium"},
	}

	sum, err := loadFile(t, l, filepath.Join("testdata", "peptides.txt"), "run")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Loaded != 3 || sum.Filtered != 1 {
		t.Errorf("summary = %+v", sum)
	}
	n, err := testutil.GatherAndCount(rec.Registry(), "dimadb_records_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("records_total series = %d, want 2", n)
	}
}

func TestValidateWithoutWriter(t *testing.T) {
	l := &Loader{Logger: quietLogger(), ModDB: core.NewModDatabase()}
	sum, err := loadFile(t, l, filepath.Join("testdata", "peptides.txt"), "")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Loaded != 4 || sum.Rows != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.UnknownMods["tmt6plex"] != 5 || sum.UnknownMods["phospho"] != 2 {
		t.Errorf("UnknownMods = %v", sum.UnknownMods)
	}
	if sum.Mods["tmt6plex"] != 5 || sum.Mods["phospho"] != 2 || sum.Mods["oxidation"] != 1 {
		t.Errorf("Mods = %v", sum.Mods)
	}

	l.ModDB = core.DefaultModDatabase()
	sum, err = loadFile(t, l, filepath.Join("testdata", "peptides.txt"), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.UnknownMods) != 0 {
		t.Errorf("UnknownMods = %v, want none", sum.UnknownMods)
	}

	l.ModDB = nil
	sum, err = loadFile(t, l, filepath.Join("testdata", "peptides.txt"), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Mods) != 3 || len(sum.UnknownMods) != 0 {
		t.Errorf("without a ModDatabase: Mods = %v, UnknownMods = %v", sum.Mods, sum.UnknownMods)
	}
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Confidence", "Annotated Sequence", "Modifications", "Positions in Master Proteins", "Abundances (Grouped): 126"},
		{"High", "[K].PEPTIDE.[R]", "1xOxidation [M1]", "P12345 [10-16]", "7.90E+03"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "export.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	w := openWriter(t)
	l := &Loader{Writer: w, Logger: quietLogger()}
	sum, err := loadFile(t, l, path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if sum.Loaded != 1 {
		t.Errorf("summary = %+v", sum)
	}
	var dataset string
	if err := w.DB().QueryRow(`SELECT dataset FROM peptide`).Scan(&dataset); err != nil {
		t.Fatal(err)
	}
	if dataset != "export.xlsx" {
		t.Errorf("dataset = %q", dataset)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"a.txt":           FormatTSV,
		"a.tsv":           FormatTSV,
		"A.XLSX":          FormatXLSX,
		"s3://b/k/a.xlsx": FormatXLSX,
		"no-extension":    FormatTSV,
	}
	for in, want := range tests {
		if got := DetectFormat(in); got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

type flakyWriter struct {
	failures int
	calls    int
	err      error
}

func (w *flakyWriter) WriteEntry(ctx context.Context, e *core.PeptideEntry) (int64, error) {
	w.calls++
	if w.calls <= w.failures {
		return 0, w.err
	}
	e.SetPeptideID(int64(w.calls))
	return int64(w.calls), nil
}

func TestLoadRetriesTransientErrors(t *testing.T) {
	errBusy := errors.New("database is locked")
	transient := func(err error) bool { return errors.Is(err, errBusy) }

	tests := []struct {
		name      string
		failures  int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{"recovers", 2, 3, false, 4 + 2},
		{"exhausted", 5, 2, true, 3},
		{"no retries", 1, 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &flakyWriter{failures: tt.failures, err: errBusy}
			rec := metrics.NewRecorder()
			l := &Loader{
				Writer:      w,
				Logger:      quietLogger(),
				Metrics:     rec,
				Retries:     tt.retries,
				IsTransient: transient,
			}
			_, err := loadFile(t, l, filepath.Join("testdata", "peptides.txt"), "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if w.calls != tt.wantCalls {
				t.Errorf("WriteEntry calls = %d, want %d", w.calls, tt.wantCalls)
			}
			if err != nil && !errors.Is(err, errBusy) {
				t.Errorf("error %v does not wrap the storage error", err)
			}
		})
	}
}

func TestLoadPermanentErrorAborts(t *testing.T) {
	w := &flakyWriter{failures: 1, err: errors.New("constraint failed")}
	l := &Loader{Writer: w, Logger: quietLogger(), Retries: 3, IsTransient: func(error) bool { return false }}
	sum, err := loadFile(t, l, filepath.Join("testdata", "peptides.txt"), "")
	var recErr *core.RecordError
	if !errors.As(err, &recErr) || recErr.Line != 2 {
		t.Fatalf("error = %v, want RecordError at line 2", err)
	}
	if w.calls != 1 || sum.Loaded != 0 {
		t.Errorf("calls = %d, loaded = %d", w.calls, sum.Loaded)
	}
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src, err := Open(ctx, source.NewOpener(source.S3Config{}), filepath.Join("testdata", "peptides.txt"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	l := &Loader{Writer: &flakyWriter{}, Logger: quietLogger()}
	if _, err := l.Load(ctx, src); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
