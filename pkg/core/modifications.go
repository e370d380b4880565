// Modification grammar and the known-modification database.
package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// modGroupRe matches one modification group, e.g. "2xPhospho [S21; S25]".
// The type never starts with a digit and the locations hold no brackets.
var modGroupRe = regexp.MustCompile(`^(?:(?P<count>\d+)x)?(?P<type>[^\s\d]\S*)\s*\[(?P<locations>[^\[\]]*)\]$`)

// modLocationRe matches a residue location such as "S21".
var modLocationRe = regexp.MustCompile(`^(?P<base>[A-Za-z])(?P<pos>\d+)$`)

var errModGroupFormat = errors.New("expected '[N]xType [LOC; LOC; ...]'")

// ParseModifications parses a Modifications value into one Modification per
// location. Groups are separated by ';' outside brackets, so
// "1xTMT6plex [N-Term]; 2xPhospho [S21; S25]" yields three rows.
func ParseModifications(raw string) ([]Modification, error) {
	var out []Modification
	for _, group := range splitModGroups(raw) {
		mods, err := parseModGroup(group)
		if err != nil {
			return nil, err
		}
		out = append(out, mods...)
	}
	return out, nil
}

func parseModGroup(group string) ([]Modification, error) {
	m := modGroupRe.FindStringSubmatch(group)
	if m == nil {
		return nil, &ParseError{Field: FieldModifications, Value: group, Err: errModGroupFormat}
	}
	modType := strings.ToLower(m[modGroupRe.SubexpIndex("type")])

	var out []Modification
	for _, loc := range strings.Split(m[modGroupRe.SubexpIndex("locations")], ";") {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		mod := Modification{Type: modType, LocStr: loc}
		if lm := modLocationRe.FindStringSubmatch(loc); lm != nil {
			base := lm[modLocationRe.SubexpIndex("base")]
			if pos, err := strconv.ParseInt(lm[modLocationRe.SubexpIndex("pos")], 10, 64); err == nil {
				mod.LocBase = &base
				mod.LocPos = &pos
			}
		}
		out = append(out, mod)
	}
	return out, nil
}

// splitModGroups splits on ';' at bracket depth zero and drops blank groups.
func splitModGroups(raw string) []string {
	var groups []string
	depth := 0
	start := 0
	flush := func(end int) {
		if g := strings.TrimSpace(raw[start:end]); g != "" {
			groups = append(groups, g)
		}
	}
	for i, c := range raw {
		switch c {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(raw))
	return groups
}

// ModDatabase stores known modification names (case-insensitive) with their
// monoisotopic mass shift.
type ModDatabase struct {
	mods map[string]float64 // lower-cased name -> mass shift
}

// NewModDatabase creates an empty modification database
func NewModDatabase() *ModDatabase {
	return &ModDatabase{
		mods: make(map[string]float64),
	}
}

// LoadFromCSV loads modifications from a CSV file (format: mod,massshift,aa)
func (db *ModDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return fmt.Errorf("line %d: invalid format, expected at least 2 comma-separated fields", lineNum)
		}

		modName := strings.TrimSpace(parts[0])
		massStr := strings.TrimSpace(parts[1])

		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid mass value '%s': %w", lineNum, massStr, err)
		}

		db.Add(modName, mass)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// Known reports whether a modification type is in the database.
func (db *ModDatabase) Known(name string) bool {
	_, ok := db.mods[strings.ToLower(name)]
	return ok
}

// GetMass returns the mass shift for a modification name
func (db *ModDatabase) GetMass(name string) (float64, bool) {
	mass, ok := db.mods[strings.ToLower(name)]
	return mass, ok
}

// Add adds or updates a modification
func (db *ModDatabase) Add(name string, mass float64) {
	db.mods[strings.ToLower(name)] = mass
}

// Names returns the known names in sorted order.
func (db *ModDatabase) Names() []string {
	names := make([]string, 0, len(db.mods))
	for n := range db.mods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultModDatabase returns a ModDatabase pre-loaded with common modifications
func DefaultModDatabase() *ModDatabase {
	db := NewModDatabase()

	// Common modifications from unimod
	db.Add("Acetyl", 42.010565)
	db.Add("Amidated", -0.984016)
	db.Add("Biotin", 226.077598)
	db.Add("Carbamidomethyl", 57.021464)
	db.Add("Carbamyl", 43.005814)
	db.Add("Carboxymethyl", 58.005479)
	db.Add("Deamidated", 0.984016)
	db.Add("Dehydrated", -18.010565)
	db.Add("Glu->pyro-Glu", -18.010565)
	db.Add("Gln->pyro-Glu", -17.026549)
	db.Add("Methyl", 14.01565)
	db.Add("Oxidation", 15.994915)
	db.Add("Dimethyl", 28.0313)
	db.Add("Trimethyl", 42.04695)
	db.Add("Phospho", 79.966331)
	db.Add("Sulfo", 79.956815)
	db.Add("Hex", 162.052824)
	db.Add("HexNAc", 203.079373)
	db.Add("GG", 114.042927)
	db.Add("Myristoyl", 210.198366)
	db.Add("Palmitoyl", 238.229666)
	db.Add("Propionyl", 56.026215)
	db.Add("TMT", 229.162932)
	db.Add("TMTPro", 304.207146)
	db.Add("TMT6plex", 229.162932)
	db.Add("TMT10plex", 229.162932)
	db.Add("TMT11plex", 229.162932)
	db.Add("TMT16plex", 304.207146)
	db.Add("iTRAQ4plex", 144.102063)
	db.Add("iTRAQ8plex", 304.205360)

	return db
}
