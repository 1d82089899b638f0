package reporter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"callwatch/internal/report"
	"callwatch/internal/schedule"
	"callwatch/internal/slack"
)

type fakeProvider struct {
	metrics []report.PublisherMetrics
	err     error
	calls   int
}

func (f *fakeProvider) FetchPublisherMetrics(ctx context.Context, start, end time.Time) ([]report.PublisherMetrics, error) {
	f.calls++
	return f.metrics, f.err
}

type fakeSales struct {
	counts map[string]int
	err    error
}

func (f *fakeSales) FetchSalesCounts(ctx context.Context, start, end time.Time) (map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

type fakeNotifier struct {
	delivered []slack.Message
	err       error
}

func (f *fakeNotifier) Deliver(ctx context.Context, msg slack.Message) error {
	f.delivered = append(f.delivered, msg)
	return f.err
}

func triggerAt(hour, minute int) time.Time {
	// Monday 2026-08-24.
	return time.Date(2026, time.August, 24, hour, minute, 0, 0, schedule.ReportingZone)
}

func newTestDriver(provider *fakeProvider, sales *fakeSales, notifier *fakeNotifier) *Driver {
	return NewDriver(schedule.New(schedule.Options{}), provider, sales, notifier, DriverOptions{
		FetchTimeout: time.Second,
	})
}

func TestRunCycleDeliversSummary(t *testing.T) {
	provider := &fakeProvider{metrics: []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 80, Payout: 400},
	}}
	sales := &fakeSales{counts: map[string]int{"Acme Leads": 8}}
	notifier := &fakeNotifier{}

	d := newTestDriver(provider, sales, notifier)
	require.NoError(t, d.RunCycle(context.Background(), triggerAt(13, 0)))

	require.Len(t, notifier.delivered, 1)
	require.Contains(t, notifier.delivered[0].Text, "2026-08-24 11:00 - 13:00 ET")
}

func TestRunCycleReconcilesBothSides(t *testing.T) {
	// Acme has calls and sales; Beta has a sale but no provider row and must
	// be synthesized with zeroed call metrics.
	provider := &fakeProvider{metrics: []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 10, Payout: 100},
	}}
	sales := &fakeSales{counts: map[string]int{
		"acme leads": 4,
		"Beta Calls": 1,
	}}
	notifier := &fakeNotifier{}

	d := newTestDriver(provider, sales, notifier)
	require.NoError(t, d.RunCycle(context.Background(), triggerAt(13, 0)))

	require.Len(t, notifier.delivered, 1)
	totals := notifier.delivered[0].Blocks[1].Text.Text
	require.Contains(t, totals, "*Sales:* 5")
	require.Contains(t, totals, "*Accurate CPA:* $20.00")

	performers := notifier.delivered[0].Blocks[2].Text.Text
	require.Contains(t, performers, "*Acme Leads*: 10 completed, 4 sales, $25.00 accurate CPA")
	require.Contains(t, performers, "*Beta Calls*: 0 completed, 1 sales, $0.00 accurate CPA")
}

func TestRunCycleSettledTriggerWindow(t *testing.T) {
	// The 17:05 trigger fetches through 17:05 but labels the on-grid close.
	provider := &fakeProvider{metrics: []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 1},
	}}
	notifier := &fakeNotifier{}

	d := newTestDriver(provider, &fakeSales{}, notifier)
	require.NoError(t, d.RunCycle(context.Background(), triggerAt(17, 5)))

	require.Len(t, notifier.delivered, 1)
	require.Contains(t, notifier.delivered[0].Text, "15:00 - 17:00 ET")
}

func TestRunCycleProviderFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{err: errors.New("insights down")}
	notifier := &fakeNotifier{}

	d := newTestDriver(provider, &fakeSales{}, notifier)
	err := d.RunCycle(context.Background(), triggerAt(13, 0))
	require.Error(t, err)
	require.Empty(t, notifier.delivered)
}

func TestRunCycleSalesFailureDegrades(t *testing.T) {
	provider := &fakeProvider{metrics: []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 80, Payout: 400},
	}}
	sales := &fakeSales{err: errors.New("sheet unreachable")}
	notifier := &fakeNotifier{}

	d := newTestDriver(provider, sales, notifier)
	require.NoError(t, d.RunCycle(context.Background(), triggerAt(13, 0)))

	// Report still goes out, with zero matched sales.
	require.Len(t, notifier.delivered, 1)
	require.Contains(t, notifier.delivered[0].Blocks[1].Text.Text, "*Sales:* 0")
	require.Contains(t, notifier.delivered[0].Blocks[1].Text.Text, "*Accurate CPA:* $0.00")
}

func TestRunCycleSkipsEmptyWindow(t *testing.T) {
	notifier := &fakeNotifier{}

	d := newTestDriver(&fakeProvider{}, &fakeSales{}, notifier)
	require.NoError(t, d.RunCycle(context.Background(), triggerAt(13, 0)))
	require.Empty(t, notifier.delivered)
}

func TestRunCycleDeliveryFailureNotFatal(t *testing.T) {
	provider := &fakeProvider{metrics: []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 80},
	}}
	notifier := &fakeNotifier{err: errors.New("webhook 500")}

	d := newTestDriver(provider, &fakeSales{}, notifier)
	require.NoError(t, d.RunCycle(context.Background(), triggerAt(13, 0)))
	require.Len(t, notifier.delivered, 1)
}

func TestRunCycleEndOfDayRollup(t *testing.T) {
	provider := &fakeProvider{metrics: []report.PublisherMetrics{
		{PublisherName: "Acme Leads", Completed: 80},
	}}
	notifier := &fakeNotifier{}

	d := newTestDriver(provider, &fakeSales{}, notifier)
	require.NoError(t, d.RunCycle(context.Background(), triggerAt(21, 0)))

	require.Len(t, notifier.delivered, 2)
	require.Contains(t, notifier.delivered[0].Text, "Performance Summary")
	require.Contains(t, notifier.delivered[0].Text, "19:00 - 21:00 ET")
	require.Contains(t, notifier.delivered[1].Text, "End of Day Summary")
	require.Contains(t, notifier.delivered[1].Text, "09:00 - 21:00 ET")
	require.Equal(t, 2, provider.calls)
}
