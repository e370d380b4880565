package sqldb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ChrisMcGann/dimadb/pkg/core"
)

func openTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	if err := w.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return w
}

func strPtr(s string) *string { return &s }

func sampleEntry() *core.PeptideEntry {
	high := strPtr("High")
	fval := 0.01
	pos := int64(21)
	return &core.PeptideEntry{
		Peptide: core.Peptide{
			Confidence:        high,
			AnnotatedSequence: "[K].AGSPDVLR.[C]",
			Modifications:     "1xPhospho [S21]",
			Dataset:           "run1",
		},
		Abundances: []core.Abundance{
			{Channel: "126", Value: 7900},
			{Channel: "127N", Value: 1200},
		},
		SeqMatches: []core.SeqMatch{
			{Accession: "P12345", Start: 10, End: 20, Confidence: high, Data: []core.SeqMatchData{
				{Name: "q-Value (by Search Engine)", StrVal: "0.01", FVal: &fval},
			}},
			{Accession: "Q9XYZ1", Start: 1, End: 5, Confidence: high, Data: []core.SeqMatchData{
				{Name: "q-Value (by Search Engine)", StrVal: "0.01", FVal: &fval},
			}},
		},
		Modifications: []core.Modification{
			{Type: "phospho", LocBase: strPtr("S"), LocPos: &pos, LocStr: "S21"},
			{Type: "tmt6plex", LocStr: "N-Term"},
		},
	}
}

func TestCreateAndDropAreIdempotent(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	if err := w.Create(ctx); err != nil {
		t.Fatalf("second Create() error = %v", err)
	}
	if err := w.Drop(ctx); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if err := w.Drop(ctx); err != nil {
		t.Fatalf("second Drop() error = %v", err)
	}
	if _, err := w.Counts(ctx); err == nil {
		t.Error("Counts() after drop should fail")
	}
}

func TestWriteEntry(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	e := sampleEntry()
	id, err := w.WriteEntry(ctx, e)
	if err != nil {
		t.Fatalf("WriteEntry() error = %v", err)
	}
	if id == 0 || e.Peptide.ID != id {
		t.Errorf("peptide id = %d, entry id = %d", id, e.Peptide.ID)
	}
	for _, m := range e.SeqMatches {
		if m.ID == 0 || m.PeptideID != id {
			t.Errorf("seq match ids = %d/%d", m.ID, m.PeptideID)
		}
		for _, d := range m.Data {
			if d.SeqMatchID != m.ID {
				t.Errorf("data seq match id = %d, want %d", d.SeqMatchID, m.ID)
			}
		}
	}

	counts, err := w.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	want := map[string]int64{
		"peptide":                1,
		"peptide_abundance":      2,
		"peptide_seq_match":      2,
		"peptide_seq_match_data": 2,
		"peptide_modification":   2,
	}
	for table, n := range want {
		if counts[table] != n {
			t.Errorf("%s rows = %d, want %d", table, counts[table], n)
		}
	}

	var (
		mih         *string
		psms        *int64
		contaminant bool
	)
	row := w.DB().QueryRowContext(ctx, `SELECT modifications_in_master_proteins, no_psms, contaminant FROM peptide WHERE id = ?`, id)
	if err := row.Scan(&mih, &psms, &contaminant); err != nil {
		t.Fatalf("select peptide: %v", err)
	}
	if mih != nil || psms != nil || contaminant {
		t.Errorf("nullable columns = %v, %v, %v", mih, psms, contaminant)
	}

	var base *string
	var locPos *int64
	row = w.DB().QueryRowContext(ctx, `SELECT loc_base, loc_pos FROM peptide_modification WHERE loc_str = 'N-Term'`)
	if err := row.Scan(&base, &locPos); err != nil {
		t.Fatalf("select modification: %v", err)
	}
	if base != nil || locPos != nil {
		t.Errorf("unparsed location stored base=%v pos=%v", base, locPos)
	}
}

func TestWriteEntryRollsBackOnFailure(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	if _, err := w.DB().ExecContext(ctx, `CREATE TRIGGER reject_mods BEFORE INSERT ON peptide_modification
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err := w.WriteEntry(ctx, sampleEntry())
	var se *core.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *core.StorageError", err)
	}
	if se.Table != "peptide_modification" {
		t.Errorf("StorageError.Table = %q", se.Table)
	}

	counts, err := w.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	for table, n := range counts {
		if n != 0 {
			t.Errorf("%s has %d rows after rollback", table, n)
		}
	}
}

func TestWriteAfterDropAndCreate(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	var first map[string]int64
	for round := 0; round < 2; round++ {
		for i := 0; i < 3; i++ {
			if _, err := w.WriteEntry(ctx, sampleEntry()); err != nil {
				t.Fatalf("round %d WriteEntry() error = %v", round, err)
			}
		}
		counts, err := w.Counts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if round == 0 {
			first = counts
		} else {
			for table, n := range first {
				if counts[table] != n {
					t.Errorf("%s rows = %d after reload, want %d", table, counts[table], n)
				}
			}
		}

		if err := w.Drop(ctx); err != nil {
			t.Fatal(err)
		}
		if err := w.Create(ctx); err != nil {
			t.Fatal(err)
		}
		empty, err := w.Counts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for table, n := range empty {
			if n != 0 {
				t.Errorf("%s has %d rows after drop/create", table, n)
			}
		}
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
