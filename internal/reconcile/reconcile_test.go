package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"callwatch/internal/report"
)

func TestCanonicalName(t *testing.T) {
	require.Equal(t, "acme leads", CanonicalName("  Acme Leads "))
	require.Equal(t, "acme leads", CanonicalName("ACME LEADS"))
}

func TestMergeEnrichesProviderRows(t *testing.T) {
	provider := []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 80, Payout: 400},
		{PublisherName: "Beta Calls", Completed: 40, Payout: 100},
	}
	sales := map[string]int{
		"acme leads ": 8, // trailing space and casing still match
	}

	merged := Merge(provider, sales)
	require.Len(t, merged, 2)
	require.Equal(t, "Acme Leads", merged[0].PublisherName)
	require.Equal(t, 8, merged[0].SalesCount)
	require.InDelta(t, 50.0, merged[0].AccurateCPA(), 1e-9)

	// Calls without sales stay in the output with a zero accurate CPA.
	require.Equal(t, "Beta Calls", merged[1].PublisherName)
	require.Equal(t, 0, merged[1].SalesCount)
	require.Equal(t, 0.0, merged[1].AccurateCPA())
}

func TestMergeSynthesizesSalesOnlyRows(t *testing.T) {
	provider := []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 80},
	}
	sales := map[string]int{
		"Acme Leads": 5,
		"Zeta Media": 2,
		"Delta Line": 1,
	}

	merged := Merge(provider, sales)
	require.Len(t, merged, 3)

	// Provider rows first, then synthesized rows in name order.
	require.Equal(t, "Acme Leads", merged[0].PublisherName)
	require.Equal(t, "Delta Line", merged[1].PublisherName)
	require.Equal(t, "Zeta Media", merged[2].PublisherName)

	require.Equal(t, 1, merged[1].SalesCount)
	require.Equal(t, 0, merged[1].Completed)
	require.Equal(t, 2, merged[2].SalesCount)
}

func TestMergeCollapsesCanonicalDuplicates(t *testing.T) {
	// Two spreadsheet spellings of the same publisher sum into one count and
	// synthesize at most one row.
	sales := map[string]int{
		"Acme Leads":  3,
		" acme leads": 2,
	}

	merged := Merge(nil, sales)
	require.Len(t, merged, 1)
	require.Equal(t, 5, merged[0].SalesCount)
}

func TestMergeDegradedSales(t *testing.T) {
	provider := []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 80, Payout: 400},
	}

	merged := Merge(provider, nil)
	require.Len(t, merged, 1)
	require.Equal(t, 0, merged[0].SalesCount)

	require.Empty(t, Merge(nil, nil))
}
