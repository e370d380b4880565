// Package core provides the peptide data model and the parsers that normalize
// one search-result record into relational rows.
package core

// Column headers as written by the search tool.
const (
	FieldConfidence                = "Confidence"
	FieldAnnotatedSequence         = "Annotated Sequence"
	FieldModifications             = "Modifications"
	FieldModificationsInMaster     = "Modifications in Master Proteins"
	FieldProteinGroups             = "# Protein Groups"
	FieldProteins                  = "# Proteins"
	FieldPSMs                      = "# PSMs"
	FieldMasterProteinAccessions   = "Master Protein Accessions"
	FieldPositionsInMasterProteins = "Positions in Master Proteins"
	FieldMissedCleavages           = "# Missed Cleavages"
	FieldTheoMH                    = "Theo. MH+ [Da]"
	FieldContaminant               = "Contaminant"
	FieldOffByX                    = "Off by X"
	FieldPositionInProtein         = "Position in Protein"
	FieldDataset                   = "dataset"
)

// SearchEngineMarker identifies columns copied onto every sequence match.
const SearchEngineMarker = "(by Search Engine)"

// Record is one data line of an input file: header name to raw value.
type Record struct {
	Fields map[string]string
	Source string // file name or URL the record came from
	Line   int    // 1-based line (or row) number in Source
}

// Get returns the raw value of a field and whether it is present.
func (r *Record) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Stripped returns a copy of the record without fields whose value is the
// empty string, so that they persist as NULL rather than "".
func (r *Record) Stripped() *Record {
	out := &Record{
		Fields: make(map[string]string, len(r.Fields)),
		Source: r.Source,
		Line:   r.Line,
	}
	for k, v := range r.Fields {
		if v == "" {
			continue
		}
		out.Fields[k] = v
	}
	return out
}
