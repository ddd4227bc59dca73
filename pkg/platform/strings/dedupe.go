// Package strings provides string list helpers.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims, lowercases and deduplicates values, dropping
// empties. Order of first occurrence is preserved.
//
//	DedupeAndTrimLower([]string{"  Verification.Approved ", "", "verification.approved"})
//	// Returns: []string{"verification.approved"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
