package core

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// seqMatchRe matches one master-protein span, e.g. "F4JLS6 [1-27]".
var seqMatchRe = regexp.MustCompile(`^(?P<accession>\S+)\s*\[(?P<start>\d+)-(?P<end>\d+)\]$`)

var errSeqMatchFormat = errors.New("expected 'ACCESSION [START-END]'")

// ParseSeqMatches parses a "Positions in Master Proteins" value such as
// "P12345 [10-20]; Q9XYZ1 [1-5]". Blank input yields no matches.
// Confidence and search-engine data are filled in by the caller.
func ParseSeqMatches(raw string) ([]SeqMatch, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []SeqMatch
	for _, token := range strings.Split(raw, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		m, err := parseSeqMatchToken(token)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func parseSeqMatchToken(token string) (SeqMatch, error) {
	m := seqMatchRe.FindStringSubmatch(token)
	if m == nil {
		return SeqMatch{}, &ParseError{Field: FieldPositionsInMasterProteins, Value: token, Err: errSeqMatchFormat}
	}
	start, err := strconv.ParseInt(m[seqMatchRe.SubexpIndex("start")], 10, 64)
	if err != nil {
		return SeqMatch{}, &ParseError{Field: FieldPositionsInMasterProteins, Value: token, Err: err}
	}
	end, err := strconv.ParseInt(m[seqMatchRe.SubexpIndex("end")], 10, 64)
	if err != nil {
		return SeqMatch{}, &ParseError{Field: FieldPositionsInMasterProteins, Value: token, Err: err}
	}
	return SeqMatch{
		Accession: m[seqMatchRe.SubexpIndex("accession")],
		Start:     start,
		End:       end,
	}, nil
}
