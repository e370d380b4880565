package sqldb

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported database drivers.
type Dialect struct {
	Name       string // driver name passed to sql.Open
	IDColumn   string // surrogate key definition
	Positional bool   // $1-style placeholders
	SQLite     bool
}

var dialects = map[string]Dialect{
	"sqlite3": {Name: "sqlite3", IDColumn: "INTEGER PRIMARY KEY AUTOINCREMENT", SQLite: true},
	"sqlite":  {Name: "sqlite", IDColumn: "INTEGER PRIMARY KEY AUTOINCREMENT", SQLite: true},
	"pgx":     {Name: "pgx", IDColumn: "BIGSERIAL PRIMARY KEY", Positional: true},
}

// DialectFor maps a configured driver name to its dialect. "postgres" and
// "postgresql" are accepted as aliases of "pgx".
func DialectFor(driver string) (Dialect, error) {
	name := strings.ToLower(strings.TrimSpace(driver))
	switch name {
	case "postgres", "postgresql":
		name = "pgx"
	case "":
		name = "sqlite3"
	}
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported driver %q, must be sqlite3, sqlite or pgx", driver)
	}
	return d, nil
}

// Rebind rewrites '?' placeholders for dialects that need positional ones.
func (d Dialect) Rebind(query string) string {
	if !d.Positional {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Tables in dependency order; dropped in reverse.
var Tables = []string{
	"peptide",
	"peptide_abundance",
	"peptide_seq_match",
	"peptide_seq_match_data",
	"peptide_modification",
}

// Schema returns the CREATE statements for the dialect.
func (d Dialect) Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS peptide (
		id %s,
		confidence TEXT,
		annotated_sequence TEXT NOT NULL,
		modifications TEXT NOT NULL,
		modifications_in_master_proteins TEXT,
		no_protein_groups BIGINT,
		no_proteins BIGINT,
		no_psms BIGINT,
		master_protein_accessions TEXT,
		positions_in_master_proteins TEXT,
		no_missed_cleavages BIGINT,
		theo_mh_da DOUBLE PRECISION,
		contaminant BOOLEAN NOT NULL DEFAULT FALSE,
		off_by_x BIGINT,
		position_in_protein BIGINT,
		dataset TEXT NOT NULL
	)`, d.IDColumn),
		`CREATE INDEX IF NOT EXISTS idx_peptide_dataset ON peptide(dataset)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS peptide_abundance (
		id %s,
		peptide_id BIGINT NOT NULL REFERENCES peptide(id),
		channel TEXT NOT NULL,
		value BIGINT NOT NULL
	)`, d.IDColumn),
		`CREATE INDEX IF NOT EXISTS idx_peptide_abundance_peptide ON peptide_abundance(peptide_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS peptide_seq_match (
		id %s,
		peptide_id BIGINT NOT NULL REFERENCES peptide(id),
		accession TEXT NOT NULL,
		start_pos BIGINT NOT NULL,
		end_pos BIGINT NOT NULL,
		confidence TEXT
	)`, d.IDColumn),
		`CREATE INDEX IF NOT EXISTS idx_peptide_seq_match_peptide ON peptide_seq_match(peptide_id)`,
		`CREATE INDEX IF NOT EXISTS idx_peptide_seq_match_accession ON peptide_seq_match(accession)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS peptide_seq_match_data (
		id %s,
		peptide_seq_match_id BIGINT NOT NULL REFERENCES peptide_seq_match(id),
		name TEXT NOT NULL,
		strval TEXT NOT NULL,
		fval DOUBLE PRECISION
	)`, d.IDColumn),
		`CREATE INDEX IF NOT EXISTS idx_peptide_seq_match_data_match ON peptide_seq_match_data(peptide_seq_match_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS peptide_modification (
		id %s,
		peptide_id BIGINT NOT NULL REFERENCES peptide(id),
		mod_type TEXT NOT NULL,
		loc_base TEXT,
		loc_pos BIGINT,
		loc_str TEXT NOT NULL
	)`, d.IDColumn),
		`CREATE INDEX IF NOT EXISTS idx_peptide_modification_peptide ON peptide_modification(peptide_id)`,
	}
}
