// Package demux implements the Event Demultiplexer (spec.md §2 item 6,
// §4.4): a fixed worker pool where each ring buffer is drained by
// exactly one worker at a time, so no ring is ever read concurrently
// from two goroutines. Grounded on the teacher's internal/eventstream
// package (one goroutine looping Read+dispatch per ring), generalized
// from a single ring to a statically partitioned pool of rings, and
// from a lone recover-less loop to one with per-record panic
// isolation, per spec.md §4.4 and §9's crash-isolation invariant.
package demux

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/honeybeepf/honeybeepf/internal/apperror"
	"github.com/honeybeepf/honeybeepf/internal/metrics"
	"github.com/honeybeepf/honeybeepf/internal/probe"
	"github.com/honeybeepf/honeybeepf/internal/ring"
)

// MaxWorkers caps the pool size regardless of CPU count (spec.md §4.4:
// "N = min(8, cpu_count)").
const MaxWorkers = 8

// assignedRing pairs one probe's ring reader with the handler that
// consumes its records.
type assignedRing struct {
	probeName string
	reader    *ring.Reader
	handler   probe.Handler
}

// Demultiplexer statically partitions a set of rings across a fixed
// worker pool. Each ring belongs to exactly one worker for the
// Demultiplexer's lifetime — ownership never migrates, so a ring is
// never drained by two goroutines at once.
type Demultiplexer struct {
	agg     *metrics.Aggregator
	workers [][]assignedRing
}

// New partitions rings round-robin across min(MaxWorkers, cpu_count)
// workers. rings maps probe name to its opened ring.Reader; each probe's
// Handler consumes its ring's records. Probes that are disabled, have no
// Handler bound, or have no ring in rings are skipped: a ring with no
// handler bound has nothing useful to do with its records.
func New(agg *metrics.Aggregator, probes []probe.Probe, rings map[string]*ring.Reader) *Demultiplexer {
	n := MaxWorkers
	if cpu := runtime.NumCPU(); cpu < n {
		n = cpu
	}
	if n < 1 {
		n = 1
	}

	d := &Demultiplexer{agg: agg, workers: make([][]assignedRing, n)}
	i := 0
	for _, p := range probes {
		if !p.Enabled || p.Handler == nil {
			continue
		}
		rd, ok := rings[p.Name]
		if !ok {
			continue
		}
		worker := i % n
		d.workers[worker] = append(d.workers[worker], assignedRing{
			probeName: p.Name,
			reader:    rd,
			handler:   p.Handler,
		})
		i++
	}
	return d
}

// ShutdownGrace bounds how long Run waits for workers to notice
// cancellation and exit before giving up on them (spec.md §5:
// "workers exceeding it are abandoned").
const ShutdownGrace = 3 * time.Second

// Run starts one goroutine per worker and blocks until ctx is
// cancelled, then waits up to ShutdownGrace for every worker to
// observe cancellation and return; stragglers are abandoned. Each
// worker drains its assigned rings in round-robin, looping Drain's
// bounded poll indefinitely.
func (d *Demultiplexer) Run(ctx context.Context) {
	done := make(chan struct{}, len(d.workers))
	for i, assignments := range d.workers {
		go func(id int, assignments []assignedRing) {
			defer func() { done <- struct{}{} }()
			runWorker(ctx, d.agg, id, assignments)
		}(i, assignments)
	}

	<-ctx.Done()
	timeout := time.NewTimer(ShutdownGrace)
	defer timeout.Stop()
	remaining := len(d.workers)
	for remaining > 0 {
		select {
		case <-done:
			remaining--
		case <-timeout.C:
			log.Printf("demux: %d worker(s) still running after shutdown grace period, abandoning", remaining)
			return
		}
	}
}

// runWorker drains this worker's assigned rings in round-robin until
// ctx is cancelled. A ring whose drain returns any error (ring.ErrClosed
// included) is logged and dropped from rotation; when every assigned
// ring has been dropped the worker returns.
func runWorker(ctx context.Context, agg *metrics.Aggregator, id int, assignments []assignedRing) {
	if len(assignments) == 0 {
		<-ctx.Done()
		return
	}
	live := append([]assignedRing(nil), assignments...)
	for len(live) > 0 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		next := live[:0]
		for _, a := range live {
			if err := drainOne(agg, a); err != nil {
				log.Printf("probe=%s class=%s cause=%v", a.probeName, apperror.ClassRing, err)
				continue // drop this ring from rotation
			}
			next = append(next, a)
		}
		live = next
	}
	log.Printf("demux: worker %d has no live rings left, exiting", id)
}

// drainOne drains an assigned ring once, isolating a panic from
// handler.HandleRecord to this record and this worker: the ring keeps
// rotating and the rest of the pool is unaffected.
func drainOne(agg *metrics.Aggregator, a assignedRing) error {
	return a.reader.Drain(func(raw []byte) (err error) {
		defer func() {
			if r := recover(); r != nil {
				agg.Inc(metrics.DroppedRecordsTotal, map[string]string{"probe": a.probeName}, 1)
				err = fmt.Errorf("probe=%s class=%s cause=recovered panic: %v", a.probeName, apperror.ClassHandler, r)
				log.Print(err)
				err = nil // isolate: the ring keeps draining
			}
		}()
		if hErr := a.handler.HandleRecord(raw); hErr != nil {
			agg.Inc(metrics.DroppedRecordsTotal, map[string]string{"probe": a.probeName}, 1)
			log.Printf("probe=%s class=%s cause=%v", a.probeName, apperror.ClassHandler, hErr)
		}
		return nil
	})
}
