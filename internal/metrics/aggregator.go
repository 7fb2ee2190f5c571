// Package metrics implements the Metric Aggregator (spec.md §2 item 7,
// §4.5): typed instruments with labelled series, created lazily on
// first observation. The series map root is guarded by a read-write
// lock for insertion only; counters and gauges update via atomics;
// histograms take a per-series lock (spec.md §9's stated concurrency
// primitives). Inc/Observe/Set never return an error to the probe
// handler that called them. A call that would create a series past the
// cardinality cap is counted in CardinalityDropped; a call naming an
// unregistered instrument or a label key outside the instrument's
// registered key set records nothing and is not counted anywhere.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Kind identifies an instrument's aggregation semantics.
type Kind int

const (
	KindCounter Kind = iota
	KindHistogram
	KindGauge
)

// DefaultCardinalityCap is the default per-instrument series ceiling
// (spec.md §4.5).
const DefaultCardinalityCap = 10_000

// unknownLabelValue fills a missing label per spec.md §4.5.
const unknownLabelValue = "unknown"

// instrumentDef is the fixed-at-registration shape of one instrument.
type instrumentDef struct {
	name      string
	unit      string
	kind      Kind
	labelKeys []string // permitted label keys, in canonical order
	buckets   []float64
}

// Aggregator holds every registered instrument and its series.
type Aggregator struct {
	cardinalityCap int64

	mu          sync.RWMutex // guards instruments and series-map insertion only
	instruments map[string]instrumentDef
	series      map[string]*seriesEntry // key: instrument name + "\x00" + canonical labels
	seriesCount map[string]*int64       // instrument name -> live series count

	cardinalityDropped atomic.Uint64
}

// New creates an Aggregator with the given per-instrument series cap.
// A cap of 0 uses DefaultCardinalityCap.
func New(cardinalityCap int) *Aggregator {
	if cardinalityCap <= 0 {
		cardinalityCap = DefaultCardinalityCap
	}
	return &Aggregator{
		cardinalityCap: int64(cardinalityCap),
		instruments:    make(map[string]instrumentDef),
		series:         make(map[string]*seriesEntry),
		seriesCount:    make(map[string]*int64),
	}
}

// Register declares an instrument. Instrument name -> type is fixed at
// registration and must not be called twice for the same name.
func (a *Aggregator) Register(name, unit string, kind Kind, labelKeys []string, buckets []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.instruments[name]; exists {
		return fmt.Errorf("metrics: instrument %q already registered", name)
	}
	keys := append([]string(nil), labelKeys...)
	sort.Strings(keys)
	a.instruments[name] = instrumentDef{
		name:      name,
		unit:      unit,
		kind:      kind,
		labelKeys: keys,
		buckets:   append([]float64(nil), buckets...),
	}
	zero := int64(0)
	a.seriesCount[name] = &zero
	return nil
}

// canonicalLabels fills missing permitted keys with "unknown" and
// rejects keys outside the instrument's allow-list, returning labels
// in the instrument's canonical key order plus a stable string key.
func canonicalLabels(def instrumentDef, labels map[string]string) (map[string]string, string, error) {
	for k := range labels {
		found := false
		for _, allowed := range def.labelKeys {
			if k == allowed {
				found = true
				break
			}
		}
		if !found {
			return nil, "", fmt.Errorf("metrics: label %q not permitted for instrument %q", k, def.name)
		}
	}

	out := make(map[string]string, len(def.labelKeys))
	var sb strings.Builder
	sb.WriteString(def.name)
	for _, k := range def.labelKeys {
		v, ok := labels[k]
		if !ok || v == "" {
			v = unknownLabelValue
		}
		out[k] = v
		sb.WriteByte(0)
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(v)
	}
	return out, sb.String(), nil
}

// touch returns the series for (name, labels), creating it if this is
// the first observation and the cardinality cap allows it. Returns nil
// when the cap has been reached; callers must then drop the
// observation and count it via cardinalityDropped.
func (a *Aggregator) touch(name string, labels map[string]string) (*seriesEntry, instrumentDef, error) {
	a.mu.RLock()
	def, ok := a.instruments[name]
	s, exists := a.series[seriesKeyFastPath(name, def, labels)]
	a.mu.RUnlock()
	if !ok {
		return nil, instrumentDef{}, fmt.Errorf("metrics: instrument %q not registered", name)
	}
	if exists {
		return s, def, nil
	}

	canon, key, err := canonicalLabels(def, labels)
	if err != nil {
		return nil, instrumentDef{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, exists := a.series[key]; exists {
		return s, def, nil
	}
	count := a.seriesCount[name]
	if atomic.LoadInt64(count) >= a.cardinalityCap {
		a.cardinalityDropped.Add(1)
		return nil, def, nil
	}
	s = newSeriesEntry(name, def.kind, canon, def.buckets)
	a.series[key] = s
	atomic.AddInt64(count, 1)
	return s, def, nil
}

// seriesKeyFastPath avoids building the full canonical key on the hot
// read-lock path when the caller already passed exactly the canonical
// label set; on any mismatch it returns a key that will simply miss,
// falling through to the slow canonicalization path under the write
// lock.
func seriesKeyFastPath(name string, def instrumentDef, labels map[string]string) string {
	for k := range labels {
		permitted := false
		for _, allowed := range def.labelKeys {
			if k == allowed {
				permitted = true
				break
			}
		}
		if !permitted {
			return "" // no series key is empty, so this always misses
		}
	}
	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range def.labelKeys {
		v, ok := labels[k]
		if !ok || v == "" {
			v = unknownLabelValue
		}
		sb.WriteByte(0)
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(v)
	}
	return sb.String()
}

// Inc adds delta to a monotonic counter series, creating it on first
// touch. delta must be non-negative.
func (a *Aggregator) Inc(name string, labels map[string]string, delta uint64) {
	s, def, err := a.touch(name, labels)
	if err != nil || s == nil || def.kind != KindCounter {
		return
	}
	s.addCounter(delta)
}

// Observe records value into a histogram series, creating it on first touch.
func (a *Aggregator) Observe(name string, labels map[string]string, value float64) {
	s, def, err := a.touch(name, labels)
	if err != nil || s == nil || def.kind != KindHistogram {
		return
	}
	s.observeHistogram(value)
}

// Set assigns value to a gauge series, creating it on first touch.
func (a *Aggregator) Set(name string, labels map[string]string, value int64) {
	s, def, err := a.touch(name, labels)
	if err != nil || s == nil || def.kind != KindGauge {
		return
	}
	s.setGauge(value)
}

// CardinalityDropped returns the running total of observations
// rejected because an instrument's series cap was reached.
func (a *Aggregator) CardinalityDropped() uint64 {
	return a.cardinalityDropped.Load()
}

// SeriesCount returns the live series count for a registered instrument.
func (a *Aggregator) SeriesCount(name string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if c, ok := a.seriesCount[name]; ok {
		return atomic.LoadInt64(c)
	}
	return 0
}
