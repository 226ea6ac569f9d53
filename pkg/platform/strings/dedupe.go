// Package strings holds small helpers for cleaning string lists coming
// from external input, typically establishment identifiers in token claims.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empties and duplicates,
// keeping the first occurrence's position. Tokens issued for several
// establishments routinely repeat or pad their SIRET entries.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
