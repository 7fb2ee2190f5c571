// Package exporter implements the OTLP metric export path (spec.md §2
// item 8, §4.6): periodic snapshotting of the Metric Aggregator,
// conversion to the OTLP data model, and delivery with retry and
// backoff. Grounded on the teacher's internal/otel package for the
// provider/resource setup shape, generalized from a batching trace
// exporter to a periodic-flush metric exporter, and from a bare HTTP
// client to one wrapped in github.com/cenkalti/backoff/v4 retry, the
// pattern DataDog's datadog-agent uses around its own outbound
// senders.
package exporter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/honeybeepf/honeybeepf/internal/apperror"
	"github.com/honeybeepf/honeybeepf/internal/metrics"
)

// Client is the subset of the OTLP metric exporter clients
// (otlpmetricgrpc.New / otlpmetrichttp.New both satisfy it) this
// package depends on, so tests can substitute a fake.
type Client interface {
	Export(ctx context.Context, rm *metricdata.ResourceMetrics) error
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// DefaultFlushInterval is the periodic snapshot/export tick (spec.md §4.6).
const DefaultFlushInterval = 10 * time.Second

// DefaultQueueDepth bounds the number of pending export batches; once
// full, the newest batch is dropped rather than blocking the flush
// ticker (spec.md §4.6 "bounded input queue, shedding at the tail").
const DefaultQueueDepth = 4

// Exporter periodically snapshots an Aggregator and ships the result
// through Client, retrying transient failures with backoff.
type Exporter struct {
	client   Client
	agg      *metrics.Aggregator
	resource *resource.Resource
	interval time.Duration
	queue    chan metricdata.ResourceMetrics
	start    time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithFlushInterval overrides DefaultFlushInterval.
func WithFlushInterval(d time.Duration) Option {
	return func(e *Exporter) { e.interval = d }
}

// WithQueueDepth overrides DefaultQueueDepth.
func WithQueueDepth(n int) Option {
	return func(e *Exporter) { e.queue = make(chan metricdata.ResourceMetrics, n) }
}

// New builds an Exporter that snapshots agg on the configured interval
// and exports through client, tagging every batch with res.
func New(client Client, agg *metrics.Aggregator, res *resource.Resource, opts ...Option) *Exporter {
	e := &Exporter{
		client:   client,
		agg:      agg,
		resource: res,
		interval: DefaultFlushInterval,
		start:    startTime(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.queue == nil {
		e.queue = make(chan metricdata.ResourceMetrics, DefaultQueueDepth)
	}
	return e
}

// startTime exists so tests can stamp a fixed start time on the
// exporter without going through wall-clock time.Now, which the rest
// of this package uses freely for export timestamps.
var startTime = func() time.Time { return time.Now() }

// Run ticks every flush interval, snapshots the aggregator, and hands
// the batch to the sender goroutine via a bounded queue. It blocks
// until ctx is cancelled, then drains the queue with a bounded grace
// period before returning.
func (e *Exporter) Run(ctx context.Context) {
	const drainGrace = 5 * time.Second
	sendCtx, cancelSend := context.WithCancel(context.Background())
	defer cancelSend()
	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		e.sendLoop(sendCtx)
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(e.queue)
			grace := time.AfterFunc(drainGrace, cancelSend)
			defer grace.Stop()
			<-sendDone
			return
		case <-ticker.C:
			e.enqueueSnapshot()
		}
	}
}

// enqueueSnapshot takes a snapshot and offers it to the send queue
// without blocking; a full queue means the sender is behind, so the
// newest batch is dropped and counted (spec.md §4.6).
func (e *Exporter) enqueueSnapshot() {
	rm := buildResourceMetrics(e.resource, e.agg.Snapshot(), e.start, time.Now())
	select {
	case e.queue <- rm:
	default:
		e.agg.Inc(metrics.ExportBatchesDropped, nil, 1)
		log.Printf("exporter: queue full, dropping export batch")
	}
}

// sendLoop drains the queue, exporting each batch with retry/backoff,
// until the queue is closed and empty.
func (e *Exporter) sendLoop(ctx context.Context) {
	for rm := range e.queue {
		if err := e.exportWithRetry(ctx, rm); err != nil {
			e.agg.Inc(metrics.ExportBatchesDropped, nil, 1)
			log.Printf("class=%s cause=%v", apperror.ClassExport, err)
		}
	}
}

// maxExportAttempts bounds retries per batch (spec.md §4.6: "up to a
// bounded number of attempts per batch (default 5)").
const maxExportAttempts = 5

// exportWithRetry exports one batch, retrying transient failures with
// exponential backoff (base 1s, cap 30s) bounded by ctx and by
// maxExportAttempts.
func (e *Exporter) exportWithRetry(ctx context.Context, rm metricdata.ResourceMetrics) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.MaxInterval = 30 * time.Second
	eb.RandomizationFactor = 0.2 // +/-20% jitter

	bo := backoff.WithContext(backoff.WithMaxRetries(eb, maxExportAttempts-1), ctx)
	return backoff.Retry(func() error {
		if err := e.client.Export(ctx, &rm); err != nil {
			return fmt.Errorf("exporter: exporting batch: %w", err)
		}
		return nil
	}, bo)
}

// Shutdown flushes any in-flight batch and closes the underlying
// client, bounded by ctx's deadline.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if err := e.client.ForceFlush(ctx); err != nil {
		log.Printf("exporter: force flush during shutdown: %v", err)
	}
	if err := e.client.Shutdown(ctx); err != nil {
		return fmt.Errorf("exporter: shutting down client: %w", err)
	}
	return nil
}
