// Package buffer is the deduplicating ingestion queue between the webhook
// endpoint and durable raw-call storage.
package buffer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"callwatch/internal/dedup"
	"callwatch/internal/model"
)

// Result classifies a Submit outcome.
type Result int

const (
	Accepted Result = iota
	Duplicate
)

// Sink receives drained batches. Writes must be safe to call from both the
// flush loop and the capacity write-through path.
type Sink interface {
	WriteCalls(ctx context.Context, records []model.RawCallRecord) error
}

// Defaults mirror the production tuning: a small in-memory queue flushed
// every couple of seconds, with a longer pause after a failed write.
const (
	DefaultCapacity      = 100
	DefaultDrainBatch    = 25
	DefaultFlushInterval = 2 * time.Second
	DefaultErrorBackoff  = 5 * time.Second
	writeTimeout         = 10 * time.Second
)

var (
	acceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_calls_accepted_total",
		Help: "Call events accepted into the ingestion buffer",
	})
	duplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_calls_duplicate_total",
		Help: "Call events rejected as webhook redeliveries",
	})
	writeThroughTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_capacity_writethrough_total",
		Help: "Call events written through synchronously because the buffer was full",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_queue_depth",
		Help: "Current ingestion buffer depth",
	})
	flushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_flush_errors_total",
		Help: "Failed sink writes from the flush loop",
	})
)

// Options tune a Buffer. Zero values take the defaults.
type Options struct {
	Capacity      int
	DrainBatch    int
	FlushInterval time.Duration
	ErrorBackoff  time.Duration
}

// Buffer holds pending raw call records behind one mutex shared by Submit
// and Drain, so no record is observed twice or lost.
type Buffer struct {
	store dedup.Store
	sink  Sink

	capacity   int
	drainBatch int
	interval   time.Duration
	backoff    time.Duration

	mu    sync.Mutex
	queue []model.RawCallRecord
}

// New builds a buffer over the given dedup store and sink.
func New(store dedup.Store, sink Sink, opts Options) *Buffer {
	b := &Buffer{
		store:      store,
		sink:       sink,
		capacity:   opts.Capacity,
		drainBatch: opts.DrainBatch,
		interval:   opts.FlushInterval,
		backoff:    opts.ErrorBackoff,
	}
	if b.capacity == 0 {
		b.capacity = DefaultCapacity
	}
	if b.drainBatch == 0 {
		b.drainBatch = DefaultDrainBatch
	}
	if b.interval == 0 {
		b.interval = DefaultFlushInterval
	}
	if b.backoff == 0 {
		b.backoff = DefaultErrorBackoff
	}
	return b
}

// Submit records the call id and queues the record. Redelivered ids return
// Duplicate and change nothing. When the queue is full the record is
// written through to the sink immediately instead of being buffered; the id
// is still marked processed exactly once. A dedup-store outage fails open:
// dropping a paid call is worse than a rare duplicate row.
func (b *Buffer) Submit(ctx context.Context, rec model.RawCallRecord) (Result, error) {
	fresh, err := b.store.MarkIfNew(ctx, rec.CallID)
	if err != nil {
		log.Printf("[buffer] dedup store error for %s, accepting: %v", rec.CallID, err)
		fresh = true
	}
	if !fresh {
		duplicateTotal.Inc()
		return Duplicate, nil
	}

	b.mu.Lock()
	if len(b.queue) >= b.capacity {
		b.mu.Unlock()
		writeThroughTotal.Inc()
		log.Printf("[buffer] queue full, writing %s through synchronously", rec.CallID)
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := b.sink.WriteCalls(writeCtx, []model.RawCallRecord{rec}); err != nil {
			log.Printf("[buffer] write-through failed for %s: %v", rec.CallID, err)
		}
		acceptedTotal.Inc()
		return Accepted, nil
	}
	b.queue = append(b.queue, rec)
	queueDepth.Set(float64(len(b.queue)))
	b.mu.Unlock()
	acceptedTotal.Inc()
	return Accepted, nil
}

// Drain removes and returns up to max of the oldest queued records.
func (b *Buffer) Drain(max int) []model.RawCallRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	n := max
	if n > len(b.queue) {
		n = len(b.queue)
	}
	batch := make([]model.RawCallRecord, n)
	copy(batch, b.queue[:n])
	b.queue = append(b.queue[:0], b.queue[n:]...)
	queueDepth.Set(float64(len(b.queue)))
	return batch
}

// Len reports the current queue depth.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Run flushes drained batches to the sink on a fixed cadence until ctx is
// cancelled. A failed write requeues the batch at the front and backs off
// before the next tick; the loop itself never exits on error.
func (b *Buffer) Run(ctx context.Context) {
	log.Printf("[buffer] flush loop started (interval %s, batch %d)", b.interval, b.drainBatch)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.flushRemaining()
			log.Println("[buffer] flush loop stopped")
			return
		case <-ticker.C:
			batch := b.Drain(b.drainBatch)
			if len(batch) == 0 {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := b.sink.WriteCalls(writeCtx, batch)
			cancel()
			if err != nil {
				flushErrors.Inc()
				log.Printf("[buffer] flush of %d records failed: %v", len(batch), err)
				b.requeue(batch)
				select {
				case <-ctx.Done():
				case <-time.After(b.backoff):
				}
			}
		}
	}
}

func (b *Buffer) requeue(batch []model.RawCallRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(batch, b.queue...)
	queueDepth.Set(float64(len(b.queue)))
}

// flushRemaining makes one best-effort write of whatever is still queued at
// shutdown.
func (b *Buffer) flushRemaining() {
	batch := b.Drain(b.capacity)
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := b.sink.WriteCalls(ctx, batch); err != nil {
		log.Printf("[buffer] final flush of %d records failed: %v", len(batch), err)
	}
}
