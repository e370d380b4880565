package core

import (
	"regexp"
	"sort"
)

var abundanceHeaderRe = regexp.MustCompile(`^Abundances \(Grouped\): (?P<channel>\S+)$`)

// ParseAbundances extracts one Abundance per "Abundances (Grouped): <channel>"
// column, ordered by channel. A value that is not numeric fails the record.
func ParseAbundances(fields map[string]string) ([]Abundance, error) {
	channelIdx := abundanceHeaderRe.SubexpIndex("channel")

	var out []Abundance
	for name, raw := range fields {
		m := abundanceHeaderRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		v, err := ParseInteger(raw)
		if err != nil {
			return nil, &ParseError{Field: name, Value: raw, Err: err}
		}
		out = append(out, Abundance{Channel: m[channelIdx], Value: v})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Channel < out[j].Channel
	})
	return out, nil
}
