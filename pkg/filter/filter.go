// Package filter decides which normalized peptide entries are stored
package filter

import (
	"fmt"
	"strings"

	"github.com/ChrisMcGann/dimadb/pkg/core"
)

// Confidence levels in increasing order. "n/a" ranks below Low.
var confidenceRank = map[string]int{
	"n/a":    0,
	"low":    1,
	"medium": 2,
	"high":   3,
}

// Config holds filtering configuration
type Config struct {
	ExcludeContaminants bool   // Drop peptides flagged as contaminants
	MinConfidence       string // Keep only peptides at or above this level ("" = all)
}

// Validate checks the configured confidence level.
func (c *Config) Validate() error {
	if c.MinConfidence == "" {
		return nil
	}
	if _, ok := confidenceRank[strings.ToLower(c.MinConfidence)]; !ok {
		return fmt.Errorf("invalid minimum confidence %q, must be High, Medium, Low or n/a", c.MinConfidence)
	}
	return nil
}

// Keep reports whether an entry passes all configured filters, and if not,
// why it was dropped.
func (c *Config) Keep(e *core.PeptideEntry) (bool, string) {
	if c == nil {
		return true, ""
	}

	if c.ExcludeContaminants && e.Peptide.Contaminant {
		return false, "contaminant"
	}

	if c.MinConfidence != "" {
		threshold := confidenceRank[strings.ToLower(c.MinConfidence)]
		if rankOf(e.Peptide.Confidence) < threshold {
			return false, "confidence below " + c.MinConfidence
		}
	}

	return true, ""
}

// rankOf treats a missing or unknown confidence like "n/a".
func rankOf(confidence *string) int {
	if confidence == nil {
		return 0
	}
	return confidenceRank[strings.ToLower(strings.TrimSpace(*confidence))]
}
