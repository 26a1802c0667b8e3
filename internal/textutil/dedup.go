package textutil

import (
	"strings"

	"scouted/discovery-service/internal/model"
)

// DedupBy keeps the first item for each key, preserving order.
func DedupBy[T any](items []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// URLKey is the case-insensitive identity of a source_url.
func URLKey(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// Dedup drops later opportunities whose source_url repeats an earlier one.
func Dedup(opps []model.RawOpportunity) []model.RawOpportunity {
	return DedupBy(opps, func(o model.RawOpportunity) string { return URLKey(o.SourceURL) })
}
