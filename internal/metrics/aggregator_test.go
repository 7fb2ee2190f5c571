package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInc_BlockIoHappyPath(t *testing.T) {
	a := New(0)
	require.NoError(t, a.Register(BlockIOEventsTotal, "1", KindCounter, []string{"device", "op"}, nil))
	require.NoError(t, a.Register(BlockIOBytesTotal, "By", KindCounter, []string{"device", "op"}, nil))
	require.NoError(t, a.Register(BlockIOLatencyNs, "ns", KindHistogram, []string{"device", "op"}, latencyBuckets))

	events := []struct {
		op      string
		bytes   uint64
		latency float64
	}{
		{"read", 4096, 120_000},
		{"write", 8192, 300_000},
		{"read", 512, 40_000},
	}
	for _, e := range events {
		labels := map[string]string{"device": "sda", "op": e.op}
		a.Inc(BlockIOEventsTotal, labels, 1)
		a.Inc(BlockIOBytesTotal, labels, e.bytes)
		a.Observe(BlockIOLatencyNs, labels, e.latency)
	}

	snaps := a.Snapshot()
	var readEvents, writeEvents uint64
	var readBytes uint64
	var histCount uint64
	for _, s := range snaps {
		switch s.Name {
		case BlockIOEventsTotal:
			for _, c := range s.Counters {
				switch c.Labels["op"] {
				case "read":
					readEvents = c.Value
				case "write":
					writeEvents = c.Value
				}
			}
		case BlockIOBytesTotal:
			for _, c := range s.Counters {
				if c.Labels["op"] == "read" {
					readBytes = c.Value
				}
			}
		case BlockIOLatencyNs:
			for _, h := range s.Histograms {
				histCount += h.CountDelta
			}
		}
	}
	require.Equal(t, uint64(2), readEvents)
	require.Equal(t, uint64(1), writeEvents)
	require.Equal(t, uint64(4608), readBytes)
	require.Equal(t, uint64(3), histCount)
}

func TestCardinalityCap(t *testing.T) {
	a := New(3)
	require.NoError(t, a.Register("test_counter", "1", KindCounter, []string{"k"}, nil))

	for _, v := range []string{"a", "b", "c", "d"} {
		a.Inc("test_counter", map[string]string{"k": v}, 1)
	}

	require.EqualValues(t, 3, a.SeriesCount("test_counter"))
	require.GreaterOrEqual(t, a.CardinalityDropped(), uint64(1))
}

func TestUnknownLabelFilledIn(t *testing.T) {
	a := New(0)
	require.NoError(t, a.Register("test_gauge", "1", KindGauge, []string{"probe"}, nil))
	a.Set("test_gauge", map[string]string{}, 7)

	snaps := a.Snapshot()
	require.Len(t, snaps, 1)
	require.Len(t, snaps[0].Gauges, 1)
	require.Equal(t, "unknown", snaps[0].Gauges[0].Labels["probe"])
	require.Equal(t, int64(7), snaps[0].Gauges[0].Value)
}

func TestCounterMonotonicityUnderConcurrency(t *testing.T) {
	a := New(0)
	require.NoError(t, a.Register("test_counter", "1", KindCounter, nil, nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Inc("test_counter", nil, 1)
		}()
	}
	wg.Wait()

	snaps := a.Snapshot()
	require.Len(t, snaps[0].Counters, 1)
	require.Equal(t, uint64(50), snaps[0].Counters[0].Value)
}

func TestHistogramConsistency(t *testing.T) {
	a := New(0)
	buckets := []float64{10, 100, 1000}
	require.NoError(t, a.Register("test_hist", "ns", KindHistogram, nil, buckets))

	values := []float64{5, 50, 500, 5000}
	for _, v := range values {
		a.Observe("test_hist", nil, v)
	}

	snaps := a.Snapshot()
	h := snaps[0].Histograms[0]
	var bucketTotal uint64
	for _, d := range h.BucketDeltas {
		bucketTotal += d
	}
	require.Equal(t, h.CountDelta, bucketTotal)
	require.Equal(t, uint64(len(values)), h.CountDelta)
	require.GreaterOrEqual(t, h.SumDelta, 5.0*float64(len(values)))
}
