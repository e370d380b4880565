package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Peptide is one observed peptide row.
type Peptide struct {
	ID                            int64
	Confidence                    *string
	AnnotatedSequence             string
	Modifications                 string
	ModificationsInMasterProteins *string
	NoProteinGroups               *int64
	NoProteins                    *int64
	NoPSMs                        *int64
	MasterProteinAccessions       *string
	PositionsInMasterProteins     *string
	NoMissedCleavages             *int64
	TheoMHDa                      *float64
	Contaminant                   bool
	OffByX                        *int64
	PositionInProtein             *int64
	Dataset                       string
}

// Abundance is the grouped abundance of a peptide in one quantitation channel.
type Abundance struct {
	ID        int64
	PeptideID int64
	Channel   string // e.g. "126", "127N"
	Value     int64
}

// SeqMatch is one span of a peptide inside a master protein.
type SeqMatch struct {
	ID         int64
	PeptideID  int64
	Accession  string // resolved later against an external sequence database
	Start      int64  // 1-based
	End        int64  // 1-based, inclusive
	Confidence *string
	Data       []SeqMatchData
}

// SeqMatchData is a search-engine observation attached to a sequence match.
type SeqMatchData struct {
	ID         int64
	SeqMatchID int64
	Name       string
	StrVal     string
	FVal       *float64 // nil when StrVal is not numeric
}

// Modification is one residue location of a modification group.
type Modification struct {
	ID        int64
	PeptideID int64
	Type      string  // lower-cased, e.g. "phospho"
	LocBase   *string // residue letter when the location parses
	LocPos    *int64  // residue position when the location parses
	LocStr    string  // raw location token, always kept
}

// PeptideEntry is a fully parsed record: the peptide and everything it owns.
type PeptideEntry struct {
	Peptide       Peptide
	Abundances    []Abundance
	SeqMatches    []SeqMatch
	Modifications []Modification
}

// SetPeptideID propagates the generated peptide id to all dependents.
func (e *PeptideEntry) SetPeptideID(id int64) {
	e.Peptide.ID = id
	for i := range e.Abundances {
		e.Abundances[i].PeptideID = id
	}
	for i := range e.SeqMatches {
		e.SeqMatches[i].PeptideID = id
	}
	for i := range e.Modifications {
		e.Modifications[i].PeptideID = id
	}
}

// RowCount is the number of rows the entry produces across all tables.
func (e *PeptideEntry) RowCount() int {
	n := 1 + len(e.Abundances) + len(e.Modifications)
	for _, m := range e.SeqMatches {
		n += 1 + len(m.Data)
	}
	return n
}

// entryParser fills one kind of dependent rows from a stripped record.
type entryParser func(e *PeptideEntry, rec *Record) error

// entryParsers run in order after the peptide itself is built.
var entryParsers = []entryParser{
	parseAbundanceFields,
	parseSeqMatchFields,
	parseModificationFields,
}

// Normalize decomposes one record into a PeptideEntry. Empty fields are
// dropped first; any ParseError aborts the record without partial output.
func Normalize(rec *Record) (*PeptideEntry, error) {
	stripped := rec.Stripped()
	pep, err := NewPeptide(stripped)
	if err != nil {
		return nil, err
	}
	e := &PeptideEntry{Peptide: *pep}
	for _, parse := range entryParsers {
		if err := parse(e, stripped); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// NewPeptide maps the named columns of a stripped record onto a Peptide.
func NewPeptide(rec *Record) (*Peptide, error) {
	p := &Peptide{}

	seq, ok := rec.Get(FieldAnnotatedSequence)
	if !ok {
		return nil, &ParseError{Field: FieldAnnotatedSequence, Err: errors.New("required field is missing")}
	}
	p.AnnotatedSequence = seq
	p.Dataset, ok = rec.Get(FieldDataset)
	if !ok {
		return nil, &ParseError{Field: FieldDataset, Err: errors.New("required field is missing")}
	}

	// Unmodified peptides have a blank Modifications cell.
	p.Modifications, _ = rec.Get(FieldModifications)

	p.Confidence = optString(rec, FieldConfidence)
	p.ModificationsInMasterProteins = optString(rec, FieldModificationsInMaster)
	p.MasterProteinAccessions = optString(rec, FieldMasterProteinAccessions)
	p.PositionsInMasterProteins = optString(rec, FieldPositionsInMasterProteins)

	ints := []struct {
		field string
		dst   **int64
	}{
		{FieldProteinGroups, &p.NoProteinGroups},
		{FieldProteins, &p.NoProteins},
		{FieldPSMs, &p.NoPSMs},
		{FieldMissedCleavages, &p.NoMissedCleavages},
		{FieldOffByX, &p.OffByX},
		{FieldPositionInProtein, &p.PositionInProtein},
	}
	for _, f := range ints {
		v, err := optInt(rec, f.field)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	theo, err := optFloat(rec, FieldTheoMH)
	if err != nil {
		return nil, err
	}
	p.TheoMHDa = theo

	if v, ok := rec.Get(FieldContaminant); ok {
		p.Contaminant = strings.EqualFold(strings.TrimSpace(v), "TRUE")
	}

	return p, nil
}

func parseAbundanceFields(e *PeptideEntry, rec *Record) error {
	abundances, err := ParseAbundances(rec.Fields)
	if err != nil {
		return err
	}
	e.Abundances = abundances
	return nil
}

func parseSeqMatchFields(e *PeptideEntry, rec *Record) error {
	raw, ok := rec.Get(FieldPositionsInMasterProteins)
	if !ok {
		return nil
	}
	matches, err := ParseSeqMatches(raw)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	data := searchEngineData(rec)
	for i := range matches {
		matches[i].Confidence = e.Peptide.Confidence
		// Every match of the peptide gets its own copy of the search-engine columns.
		matches[i].Data = append([]SeqMatchData(nil), data...)
	}
	e.SeqMatches = matches
	return nil
}

func parseModificationFields(e *PeptideEntry, rec *Record) error {
	raw, ok := rec.Get(FieldModifications)
	if !ok {
		return nil
	}
	mods, err := ParseModifications(raw)
	if err != nil {
		return err
	}
	e.Modifications = mods
	return nil
}

// searchEngineData collects the "(by Search Engine)" columns in name order.
func searchEngineData(rec *Record) []SeqMatchData {
	var names []string
	for k := range rec.Fields {
		if strings.Contains(k, SearchEngineMarker) {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	data := make([]SeqMatchData, 0, len(names))
	for _, name := range names {
		v := rec.Fields[name]
		d := SeqMatchData{Name: name, StrVal: v}
		if f, err := ParseNumber(v); err == nil {
			d.FVal = &f
		}
		data = append(data, d)
	}
	return data
}

func optString(rec *Record, field string) *string {
	v, ok := rec.Get(field)
	if !ok {
		return nil
	}
	return &v
}

func optInt(rec *Record, field string) (*int64, error) {
	v, ok := rec.Get(field)
	if !ok {
		return nil, nil
	}
	n, err := ParseInteger(v)
	if err != nil {
		return nil, &ParseError{Field: field, Value: v, Err: err}
	}
	return &n, nil
}

func optFloat(rec *Record, field string) (*float64, error) {
	v, ok := rec.Get(field)
	if !ok {
		return nil, nil
	}
	f, err := ParseNumber(v)
	if err != nil {
		return nil, &ParseError{Field: field, Value: v, Err: err}
	}
	return &f, nil
}

// String returns a short description used in log lines.
func (p *Peptide) String() string {
	return fmt.Sprintf("%s (%s)", p.AnnotatedSequence, p.Dataset)
}
