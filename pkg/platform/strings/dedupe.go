// Package strings holds the list normalisation shared by configuration and
// document-type filters.
package strings

import (
	"strings"
)

// SplitList splits a comma-separated value into trimmed, non-empty,
// de-duplicated items in their original order.
//
//	SplitList(" image/jpeg, image/png ,,image/jpeg")
//	// []string{"image/jpeg", "image/png"}
func SplitList(value string) []string {
	return dedupe(strings.Split(value, ","), strings.TrimSpace)
}

// FoldList trims, lowercases and de-duplicates values. MIME types and other
// case-insensitive tokens go through it before comparison.
func FoldList(values []string) []string {
	return dedupe(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

func dedupe(values []string, norm func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
