package normalization

import (
	"strings"
)

// NormalizeSynonym is the comparison form used for synonym ownership checks:
// lowercase, surrounding whitespace trimmed. Punctuation and plural/singular
// variants are deliberately NOT folded ("O2 sats" and "O2 sat" are distinct);
// this mirrors the documented behavior of the taxonomy, not an oversight.
func NormalizeSynonym(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// NormalizeLabel uses the same form; label duplicate detection inside one
// category compares normalized labels.
func NormalizeLabel(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
