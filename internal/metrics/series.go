package metrics

import (
	"sync"
	"sync/atomic"
)

// seriesEntry is one instrument x label-value tuple's live state.
// Counter and gauge updates are lock-free (atomics); histogram updates
// take histMu, the per-series lock spec.md §9 calls for.
type seriesEntry struct {
	instrument string
	labels     map[string]string

	counterValue atomic.Uint64
	gaugeValue   atomic.Int64

	histMu          sync.Mutex
	buckets         []float64 // inclusive upper bounds, ascending
	bucketCounts    []uint64  // len(buckets)+1; last is the +Inf bucket
	sum             float64
	lastExportedSum float64
	count           uint64
	observedMin     float64
	hasObserved     bool

	// lastExported* support delta-bucket export (spec.md §3 "Aggregation
	// window"): histograms export deltas per window, counters export
	// cumulative-since-start.
	lastExportedBucketCounts []uint64
}

func newSeriesEntry(instrument string, kind Kind, labels map[string]string, buckets []float64) *seriesEntry {
	s := &seriesEntry{instrument: instrument, labels: labels}
	if kind == KindHistogram {
		s.buckets = buckets
		s.bucketCounts = make([]uint64, len(buckets)+1)
		s.lastExportedBucketCounts = make([]uint64, len(buckets)+1)
	}
	return s
}

func (s *seriesEntry) addCounter(delta uint64) {
	s.counterValue.Add(delta)
}

func (s *seriesEntry) setGauge(v int64) {
	s.gaugeValue.Store(v)
}

func (s *seriesEntry) observeHistogram(v float64) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	idx := len(s.buckets) // default to the +Inf bucket
	for i, upper := range s.buckets {
		if v <= upper {
			idx = i
			break
		}
	}
	s.bucketCounts[idx]++
	s.sum += v
	s.count++
	if !s.hasObserved || v < s.observedMin {
		s.observedMin = v
		s.hasObserved = true
	}
}

// CounterSnapshot is the cumulative-since-start value of a counter series.
type CounterSnapshot struct {
	Labels map[string]string
	Value  uint64
}

// GaugeSnapshot is the current value of a gauge series.
type GaugeSnapshot struct {
	Labels map[string]string
	Value  int64
}

// HistogramSnapshot is one window's delta view of a histogram series.
type HistogramSnapshot struct {
	Labels       map[string]string
	BucketBounds []float64 // ascending upper bounds, not including +Inf
	BucketDeltas []uint64  // len(BucketBounds)+1, last is the +Inf bucket
	SumDelta     float64
	CountDelta   uint64
}

// snapshotCounter reads s as a CounterSnapshot.
func (s *seriesEntry) snapshotCounter() CounterSnapshot {
	return CounterSnapshot{Labels: s.labels, Value: s.counterValue.Load()}
}

// snapshotGauge reads s as a GaugeSnapshot.
func (s *seriesEntry) snapshotGauge() GaugeSnapshot {
	return GaugeSnapshot{Labels: s.labels, Value: s.gaugeValue.Load()}
}

// snapshotHistogram computes and rotates the delta window for a
// histogram series: it must be called at most once per flush tick.
func (s *seriesEntry) snapshotHistogram() HistogramSnapshot {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	deltas := make([]uint64, len(s.bucketCounts))
	var countDelta uint64
	for i, cur := range s.bucketCounts {
		d := cur - s.lastExportedBucketCounts[i]
		deltas[i] = d
		countDelta += d
	}
	copy(s.lastExportedBucketCounts, s.bucketCounts)

	return HistogramSnapshot{
		Labels:       s.labels,
		BucketBounds: s.buckets,
		BucketDeltas: deltas,
		SumDelta:     s.consumeSumDelta(),
		CountDelta:   countDelta,
	}
}

// consumeSumDelta must be called while holding histMu (invoked only
// from snapshotHistogram). It tracks the last-exported cumulative sum
// so windows report a true delta even though sum accumulates forever.
func (s *seriesEntry) consumeSumDelta() float64 {
	delta := s.sum - s.lastExportedSum
	s.lastExportedSum = s.sum
	return delta
}
