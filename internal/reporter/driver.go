// Package reporter runs the scheduled reconciliation loop: fetch provider
// metrics and spreadsheet sales for each report window, merge, render and
// deliver the summary.
package reporter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"callwatch/internal/reconcile"
	"callwatch/internal/report"
	"callwatch/internal/schedule"
	"callwatch/internal/slack"
)

// ProviderFetcher pulls per-publisher call metrics for a window.
type ProviderFetcher interface {
	FetchPublisherMetrics(ctx context.Context, start, end time.Time) ([]report.PublisherMetrics, error)
}

// SalesFetcher counts spreadsheet-confirmed sales per publisher for a
// window. Implementations degrade to an empty map on failure.
type SalesFetcher interface {
	FetchSalesCounts(ctx context.Context, start, end time.Time) (map[string]int, error)
}

// Notifier delivers a rendered summary.
type Notifier interface {
	Deliver(ctx context.Context, msg slack.Message) error
}

const (
	// DefaultCooldown is how long the loop waits after a failed cycle
	// before recomputing the next trigger.
	DefaultCooldown     = 5 * time.Minute
	DefaultFetchTimeout = 30 * time.Second
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "report_cycles_total",
		Help: "Completed report cycles",
	})
	cycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "report_cycle_errors_total",
		Help: "Report cycles that failed and triggered the cooldown",
	})
	deliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "report_delivery_failures_total",
		Help: "Summaries that could not be delivered to the chat webhook",
	})
	emptySkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "report_empty_skips_total",
		Help: "Cycles skipped because both datasets were empty",
	})
)

// Driver is the long-lived loop tying scheduler, fetchers, reconciliation
// and delivery together.
type Driver struct {
	sched    *schedule.Scheduler
	provider ProviderFetcher
	sales    SalesFetcher
	notifier Notifier

	cooldown     time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
}

// DriverOptions tune the loop. Zero values take the defaults; Now is
// injectable for tests.
type DriverOptions struct {
	Cooldown     time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
}

// NewDriver wires a driver over its collaborators.
func NewDriver(sched *schedule.Scheduler, provider ProviderFetcher, sales SalesFetcher, notifier Notifier, opts DriverOptions) *Driver {
	d := &Driver{
		sched:        sched,
		provider:     provider,
		sales:        sales,
		notifier:     notifier,
		cooldown:     opts.Cooldown,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
	}
	if d.cooldown == 0 {
		d.cooldown = DefaultCooldown
	}
	if d.fetchTimeout == 0 {
		d.fetchTimeout = DefaultFetchTimeout
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Run sleeps until each trigger and executes one cycle, forever. A failed
// cycle logs and cools down; nothing terminates the loop except ctx
// cancellation. The operating check is applied to the report window's
// start, since the final trigger of the day fires exactly at close.
func (d *Driver) Run(ctx context.Context) {
	log.Println("[reporter] loop started")
	for {
		trigger := d.sched.NextTrigger(d.now())
		log.Printf("[reporter] next trigger at %s", trigger.In(schedule.ReportingZone).Format("2006-01-02 15:04 MST"))
		select {
		case <-ctx.Done():
			log.Println("[reporter] loop stopped")
			return
		case <-time.After(time.Until(trigger)):
		}

		window := d.sched.WindowFor(trigger)
		if !d.sched.IsOperating(window.Start) {
			log.Printf("[reporter] %s outside operating hours, skipping", window.Label())
			continue
		}
		if err := d.RunCycle(ctx, trigger); err != nil {
			cycleErrors.Inc()
			log.Printf("[reporter] cycle failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.cooldown):
			}
		}
	}
}

// RunCycle executes one reconciliation cycle for the trigger's window and,
// on the last trigger of the day, the full-day rollup as a separate
// summary. A provider outage fails the cycle; a spreadsheet outage only
// degrades it (all accurate CPAs report zero). A cycle with no data in
// either dataset completes without delivering anything.
func (d *Driver) RunCycle(ctx context.Context, trigger time.Time) error {
	window := d.sched.WindowFor(trigger)
	if err := d.reportWindow(ctx, window); err != nil {
		return err
	}
	cyclesTotal.Inc()

	if d.sched.IsEndOfDayTrigger(trigger) {
		day := d.sched.DayWindow(trigger)
		if err := d.reportWindow(ctx, day); err != nil {
			return fmt.Errorf("end of day rollup: %w", err)
		}
	}
	return nil
}

func (d *Driver) reportWindow(ctx context.Context, window schedule.Window) error {
	fetchCtx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	provider, err := d.provider.FetchPublisherMetrics(fetchCtx, window.Start, window.End)
	if err != nil {
		return fmt.Errorf("provider fetch for %s: %w", window.Label(), err)
	}

	salesCounts, err := d.sales.FetchSalesCounts(fetchCtx, window.Start, window.End)
	if err != nil {
		// Degraded but valid: report goes out with zero matched sales.
		log.Printf("[reporter] sales fetch failed for %s, using empty counts: %v", window.Label(), err)
		salesCounts = map[string]int{}
	}

	merged := reconcile.Merge(provider, salesCounts)
	if len(merged) == 0 {
		emptySkips.Inc()
		log.Printf("[reporter] no data for %s, skipping delivery", window.Label())
		return nil
	}

	msg := report.BuildSummary(window, merged)
	deliverCtx, cancelDeliver := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancelDeliver()
	if err := d.notifier.Deliver(deliverCtx, msg); err != nil {
		// Logged only; the next scheduled trigger is the retry.
		deliveryFailures.Inc()
		log.Printf("[reporter] delivery failed for %s: %v", window.Label(), err)
	}
	return nil
}
