// Package reconcile correlates provider call metrics with
// spreadsheet-confirmed sales to compute the accurate CPA for a report
// window.
package reconcile

import (
	"sort"
	"strings"

	"callwatch/internal/report"
)

// CanonicalName is the matching key used on both sides of the merge:
// whitespace trimmed, case folded. Display names keep their original casing.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Merge enriches every provider row with its spreadsheet sales count and
// appends synthesized zero-metric rows for publishers that recorded sales
// without any matching provider record in the window. Provider rows come
// first; synthesized rows follow in name order so output is deterministic.
// Rows with calls but no sales are kept with a zero accurate CPA, never
// dropped. A nil or empty sales map is a valid degraded input.
func Merge(provider []report.PublisherMetrics, salesCounts map[string]int) []report.PublisherMetrics {
	canonical := make(map[string]int, len(salesCounts))
	for name, count := range salesCounts {
		canonical[CanonicalName(name)] += count
	}

	merged := make([]report.PublisherMetrics, 0, len(provider)+len(salesCounts))
	seen := make(map[string]bool, len(provider))
	for _, m := range provider {
		key := CanonicalName(m.PublisherName)
		m.SalesCount = canonical[key]
		seen[key] = true
		merged = append(merged, m)
	}

	names := make([]string, 0, len(salesCounts))
	for name := range salesCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := CanonicalName(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, report.PublisherMetrics{
			PublisherName: name,
			SalesCount:    canonical[key],
		})
	}
	return merged
}
