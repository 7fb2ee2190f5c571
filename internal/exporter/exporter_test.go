package exporter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/honeybeepf/honeybeepf/internal/metrics"
)

type fakeClient struct {
	mu      sync.Mutex
	batches []metricdata.ResourceMetrics
	failN   int // fail this many Export calls before succeeding
}

func (f *fakeClient) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return context.DeadlineExceeded
	}
	f.batches = append(f.batches, *rm)
	return nil
}

func (f *fakeClient) ForceFlush(context.Context) error { return nil }
func (f *fakeClient) Shutdown(context.Context) error   { return nil }

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func newTestAggregator(t *testing.T) *metrics.Aggregator {
	t.Helper()
	agg := metrics.New(0)
	require.NoError(t, metrics.RegisterGuaranteedInstruments(agg))
	return agg
}

func TestExporter_FlushesOnTicker(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Inc(metrics.BlockIOEventsTotal, map[string]string{"device": "8:0", "op": "read"}, 3)

	client := &fakeClient{}
	res, err := resource.New(context.Background())
	require.NoError(t, err)

	exp := New(client, agg, res, WithFlushInterval(20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	exp.Run(ctx)

	require.GreaterOrEqual(t, client.count(), 1)
}

func TestExporter_DropsBatchWhenQueueFull(t *testing.T) {
	agg := newTestAggregator(t)
	client := &fakeClient{}
	res, err := resource.New(context.Background())
	require.NoError(t, err)

	exp := New(client, agg, res, WithQueueDepth(1))
	// Fill the queue directly without a sender draining it.
	exp.enqueueSnapshot()
	exp.enqueueSnapshot()
	exp.enqueueSnapshot()

	require.Equal(t, uint64(2), agg.CardinalityDropped()+dropsSeen(agg))
}

func dropsSeen(agg *metrics.Aggregator) uint64 {
	snaps := agg.Snapshot()
	for _, s := range snaps {
		if s.Name != metrics.ExportBatchesDropped {
			continue
		}
		var total uint64
		for _, c := range s.Counters {
			total += c.Value
		}
		return total
	}
	return 0
}

func TestBuildResourceMetrics_ConvertsAllKinds(t *testing.T) {
	agg := newTestAggregator(t)
	agg.Inc(metrics.BlockIOEventsTotal, map[string]string{"device": "8:0", "op": "read"}, 1)
	agg.Set(metrics.ActiveProbes, map[string]string{"probe": "block_io"}, 1)
	agg.Observe(metrics.BlockIOLatencyNs, map[string]string{"device": "8:0", "op": "read"}, 5000)

	res, err := resource.New(context.Background())
	require.NoError(t, err)

	rm := buildResourceMetrics(res, agg.Snapshot(), time.Now(), time.Now())
	require.Len(t, rm.ScopeMetrics, 1)
	require.NotEmpty(t, rm.ScopeMetrics[0].Metrics)
}
