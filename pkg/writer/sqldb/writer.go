// Package sqldb provides relational storage for normalized peptide data
package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ChrisMcGann/dimadb/pkg/core"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

const (
	insertPeptide = `
		INSERT INTO peptide (
			confidence, annotated_sequence, modifications, modifications_in_master_proteins,
			no_protein_groups, no_proteins, no_psms, master_protein_accessions,
			positions_in_master_proteins, no_missed_cleavages, theo_mh_da, contaminant,
			off_by_x, position_in_protein, dataset
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	insertAbundance = `
		INSERT INTO peptide_abundance (peptide_id, channel, value)
		VALUES (?, ?, ?)
		RETURNING id`

	insertSeqMatch = `
		INSERT INTO peptide_seq_match (peptide_id, accession, start_pos, end_pos, confidence)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`

	insertSeqMatchData = `
		INSERT INTO peptide_seq_match_data (peptide_seq_match_id, name, strval, fval)
		VALUES (?, ?, ?, ?)
		RETURNING id`

	insertModification = `
		INSERT INTO peptide_modification (peptide_id, mod_type, loc_base, loc_pos, loc_str)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`
)

// Writer handles writing peptide entries to a SQL database
type Writer struct {
	db      *sql.DB
	dialect Dialect
	stmts   *statements
}

type statements struct {
	peptide      *sql.Stmt
	abundance    *sql.Stmt
	seqMatch     *sql.Stmt
	seqMatchData *sql.Stmt
	modification *sql.Stmt
}

// Open connects to the database named by driver and dsn. The schema is not
// created; call Create.
func Open(ctx context.Context, driver, dsn string) (*Writer, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Name, dsn)
	if err != nil {
		return nil, &core.StorageError{Op: "open", Err: err}
	}

	if d.SQLite {
		// One connection keeps per-connection pragmas in effect and matches
		// the single-writer model.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			_ = db.Close()
			return nil, &core.StorageError{Op: "open", Err: err}
		}
	} else if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &core.StorageError{Op: "open", Err: err}
	}

	return &Writer{db: db, dialect: d}, nil
}

// DB exposes the underlying sql.DB.
func (w *Writer) DB() *sql.DB { return w.db }

// Dialect returns the dialect the writer was opened with.
func (w *Writer) Dialect() Dialect { return w.dialect }

// Create creates all tables and indexes. Safe to call when they exist.
func (w *Writer) Create(ctx context.Context) error {
	w.closeStatements()
	for _, stmt := range w.dialect.Schema() {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return &core.StorageError{Op: "create", Err: err}
		}
	}
	return nil
}

// Drop removes all tables. Safe to call when they do not exist.
func (w *Writer) Drop(ctx context.Context) error {
	w.closeStatements()
	for i := len(Tables) - 1; i >= 0; i-- {
		if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+Tables[i]); err != nil {
			return &core.StorageError{Op: "drop", Table: Tables[i], Err: err}
		}
	}
	return nil
}

// prepareStatements prepares the insert statements once the schema exists
func (w *Writer) prepareStatements(ctx context.Context) error {
	if w.stmts != nil {
		return nil
	}

	s := &statements{}
	for _, p := range []struct {
		table string
		query string
		dst   **sql.Stmt
	}{
		{"peptide", insertPeptide, &s.peptide},
		{"peptide_abundance", insertAbundance, &s.abundance},
		{"peptide_seq_match", insertSeqMatch, &s.seqMatch},
		{"peptide_seq_match_data", insertSeqMatchData, &s.seqMatchData},
		{"peptide_modification", insertModification, &s.modification},
	} {
		stmt, err := w.db.PrepareContext(ctx, w.dialect.Rebind(p.query))
		if err != nil {
			s.close()
			return &core.StorageError{Op: "prepare", Table: p.table, Err: err}
		}
		*p.dst = stmt
	}

	w.stmts = s
	return nil
}

// WriteEntry inserts the peptide and all of its dependents in one
// transaction and returns the generated peptide id. On error nothing of the
// entry is stored.
func (w *Writer) WriteEntry(ctx context.Context, e *core.PeptideEntry) (int64, error) {
	if err := w.prepareStatements(ctx); err != nil {
		return 0, err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &core.StorageError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	id, err := w.writeEntry(ctx, tx, e)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, &core.StorageError{Op: "commit", Err: err}
	}
	return id, nil
}

func (w *Writer) writeEntry(ctx context.Context, tx *sql.Tx, e *core.PeptideEntry) (int64, error) {
	p := &e.Peptide
	var peptideID int64
	err := tx.StmtContext(ctx, w.stmts.peptide).QueryRowContext(ctx,
		p.Confidence,
		p.AnnotatedSequence,
		p.Modifications,
		p.ModificationsInMasterProteins,
		p.NoProteinGroups,
		p.NoProteins,
		p.NoPSMs,
		p.MasterProteinAccessions,
		p.PositionsInMasterProteins,
		p.NoMissedCleavages,
		p.TheoMHDa,
		p.Contaminant,
		p.OffByX,
		p.PositionInProtein,
		p.Dataset,
	).Scan(&peptideID)
	if err != nil {
		return 0, &core.StorageError{Op: "insert", Table: "peptide", Err: err}
	}
	e.SetPeptideID(peptideID)

	abundanceStmt := tx.StmtContext(ctx, w.stmts.abundance)
	for i := range e.Abundances {
		a := &e.Abundances[i]
		if err := abundanceStmt.QueryRowContext(ctx, a.PeptideID, a.Channel, a.Value).Scan(&a.ID); err != nil {
			return 0, &core.StorageError{Op: "insert", Table: "peptide_abundance", Err: err}
		}
	}

	seqMatchStmt := tx.StmtContext(ctx, w.stmts.seqMatch)
	dataStmt := tx.StmtContext(ctx, w.stmts.seqMatchData)
	for i := range e.SeqMatches {
		m := &e.SeqMatches[i]
		if err := seqMatchStmt.QueryRowContext(ctx, m.PeptideID, m.Accession, m.Start, m.End, m.Confidence).Scan(&m.ID); err != nil {
			return 0, &core.StorageError{Op: "insert", Table: "peptide_seq_match", Err: err}
		}
		for j := range m.Data {
			d := &m.Data[j]
			d.SeqMatchID = m.ID
			if err := dataStmt.QueryRowContext(ctx, d.SeqMatchID, d.Name, d.StrVal, d.FVal).Scan(&d.ID); err != nil {
				return 0, &core.StorageError{Op: "insert", Table: "peptide_seq_match_data", Err: err}
			}
		}
	}

	modStmt := tx.StmtContext(ctx, w.stmts.modification)
	for i := range e.Modifications {
		mod := &e.Modifications[i]
		if err := modStmt.QueryRowContext(ctx, mod.PeptideID, mod.Type, mod.LocBase, mod.LocPos, mod.LocStr).Scan(&mod.ID); err != nil {
			return 0, &core.StorageError{Op: "insert", Table: "peptide_modification", Err: err}
		}
	}

	return peptideID, nil
}

// Counts returns the number of rows in every table.
func (w *Writer) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, &core.StorageError{Op: "count", Table: table, Err: err}
		}
		counts[table] = n
	}
	return counts, nil
}

func (w *Writer) closeStatements() {
	if w.stmts != nil {
		w.stmts.close()
		w.stmts = nil
	}
}

func (s *statements) close() {
	for _, stmt := range []*sql.Stmt{s.peptide, s.abundance, s.seqMatch, s.seqMatchData, s.modification} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Close closes the prepared statements and the database connection
func (w *Writer) Close() error {
	w.closeStatements()
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
