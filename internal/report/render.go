package report

import (
	"fmt"
	"sort"
	"strings"

	"callwatch/internal/schedule"
	"callwatch/internal/slack"
)

const (
	topPerformers = 5
	tableRows     = 10
)

// BuildSummary renders a report window into a Slack message: header, window
// totals, top performers, and a monospace per-publisher table. End-of-day
// windows get their own title so the rollup is not mistaken for the last
// two-hour report.
func BuildSummary(w schedule.Window, metrics []PublisherMetrics) slack.Message {
	title := fmt.Sprintf("📊 Ringba Performance Summary - %s", w.Label())
	if w.EndOfDay {
		title = fmt.Sprintf("📊 Ringba End of Day Summary - %s", w.Label())
	}

	totals := Aggregate(metrics)
	msg := slack.Message{
		Text: title,
		Blocks: []slack.Block{
			slack.Header(title),
			slack.Section(totalsSection(w, totals)),
		},
	}

	ranked := rankByCompleted(metrics)
	if len(ranked) > 0 {
		msg.Blocks = append(msg.Blocks, slack.Section(performersSection(ranked)))
		msg.Blocks = append(msg.Blocks, slack.Section(tableSection(ranked)))
	}
	return msg
}

func totalsSection(w schedule.Window, totals PublisherMetrics) string {
	return fmt.Sprintf("*Window (%s)*\n"+
		"• *Completed Calls:* %d\n"+
		"• *Payout:* $%.2f\n"+
		"• *Sales:* %d\n"+
		"• *Accurate CPA:* $%.2f\n"+
		"• *CPA (per call):* $%.2f\n"+
		"• *Profit:* $%.2f\n"+
		"• *Conversion Rate:* %.1f%%",
		w.Label(), totals.Completed, totals.Payout, totals.SalesCount,
		totals.AccurateCPA(), totals.CPA(), totals.Profit, totals.ConversionPercent)
}

func performersSection(ranked []PublisherMetrics) string {
	var b strings.Builder
	b.WriteString("*🏆 Top Publishers by Completed Calls:*\n")
	for i, m := range ranked {
		if i == topPerformers {
			break
		}
		fmt.Fprintf(&b, "%d. *%s*: %d completed, %d sales, $%.2f accurate CPA\n",
			i+1, m.PublisherName, m.Completed, m.SalesCount, m.AccurateCPA())
	}
	return strings.TrimRight(b.String(), "\n")
}

func tableSection(ranked []PublisherMetrics) string {
	var b strings.Builder
	b.WriteString("*📋 Detailed Performance:*\n```\n")
	fmt.Fprintf(&b, "%-20s %-10s %-6s %-9s %-10s %-10s\n",
		"Publisher", "Completed", "Sales", "Acc CPA", "Payout", "Profit")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for i, m := range ranked {
		if i == tableRows {
			break
		}
		fmt.Fprintf(&b, "%-20s %-10d %-6d $%-8.2f $%-9.2f $%-9.2f\n",
			truncate(m.PublisherName, 19), m.Completed, m.SalesCount,
			m.AccurateCPA(), m.Payout, m.Profit)
	}
	b.WriteString("```")
	return b.String()
}

func rankByCompleted(metrics []PublisherMetrics) []PublisherMetrics {
	ranked := make([]PublisherMetrics, len(metrics))
	copy(ranked, metrics)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Completed > ranked[j].Completed
	})
	return ranked
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
