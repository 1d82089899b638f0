package report

import "fmt"

// TotalsName labels the aggregate row produced by Aggregate.
const TotalsName = "TOTALS"

// PublisherMetrics is one publisher's aggregate for a report window. Counters
// and money fields come from the provider fetch; SalesCount is filled in by
// the reconciliation step from spreadsheet-confirmed sales. Derived metrics
// are computed on read so they can never go stale.
type PublisherMetrics struct {
	PublisherName string

	Incoming  int
	Live      int
	Completed int
	Ended     int
	Connected int
	Paid      int
	Converted int
	NoConnect int
	Duplicate int
	Blocked   int
	IVRHangup int

	Revenue   float64
	Payout    float64
	Profit    float64
	TotalCost float64

	// Percentages on a 0-100 scale.
	Margin            float64
	ConversionPercent float64

	TCLSeconds int
	ACLSeconds int

	SalesCount int
}

// CPA is the legacy comparison metric: payout per completed call.
func (m PublisherMetrics) CPA() float64 {
	if m.Completed == 0 {
		return 0.0
	}
	return m.Payout / float64(m.Completed)
}

// AccurateCPA divides payout by spreadsheet-confirmed sales rather than raw
// completed calls. Zero sales yields zero, never a division by zero.
func (m PublisherMetrics) AccurateCPA() float64 {
	if m.SalesCount == 0 {
		return 0.0
	}
	return m.Payout / float64(m.SalesCount)
}

// FormatTCL renders total call length as HH:MM:SS.
func (m PublisherMetrics) FormatTCL() string {
	return formatSeconds(m.TCLSeconds)
}

// FormatACL renders average call length as HH:MM:SS.
func (m PublisherMetrics) FormatACL() string {
	return formatSeconds(m.ACLSeconds)
}

func formatSeconds(total int) string {
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Aggregate sums every counter and money field into a single TOTALS row and
// recomputes the conversion percentage over the summed counts. Rate metrics
// of the result come from its own accessors, so the aggregate CPA is payout
// over sales on the totals, not an average of per-publisher CPAs.
func Aggregate(metrics []PublisherMetrics) PublisherMetrics {
	totals := PublisherMetrics{PublisherName: TotalsName}
	for _, m := range metrics {
		totals.Incoming += m.Incoming
		totals.Live += m.Live
		totals.Completed += m.Completed
		totals.Ended += m.Ended
		totals.Connected += m.Connected
		totals.Paid += m.Paid
		totals.Converted += m.Converted
		totals.NoConnect += m.NoConnect
		totals.Duplicate += m.Duplicate
		totals.Blocked += m.Blocked
		totals.IVRHangup += m.IVRHangup
		totals.Revenue += m.Revenue
		totals.Payout += m.Payout
		totals.Profit += m.Profit
		totals.TotalCost += m.TotalCost
		totals.TCLSeconds += m.TCLSeconds
		totals.SalesCount += m.SalesCount
	}
	if totals.Incoming > 0 {
		totals.ConversionPercent = float64(totals.Converted) / float64(totals.Incoming) * 100
	}
	if totals.Completed > 0 {
		totals.ACLSeconds = totals.TCLSeconds / totals.Completed
	}
	return totals
}
