package metrics

// InstrumentSnapshot is one instrument's series set at a flush tick.
type InstrumentSnapshot struct {
	Name       string
	Unit       string
	Kind       Kind
	Counters   []CounterSnapshot
	Gauges     []GaugeSnapshot
	Histograms []HistogramSnapshot
}

// Snapshot takes a consistent, read-locked view of every registered
// instrument's series and, for histograms, rotates the delta window
// (spec.md §4.6 "takes a consistent snapshot ... advance window
// timestamps"). It is meant to be called once per exporter flush tick.
func (a *Aggregator) Snapshot() []InstrumentSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]InstrumentSnapshot, 0, len(a.instruments))
	for name, def := range a.instruments {
		snap := InstrumentSnapshot{Name: name, Unit: def.unit, Kind: def.kind}
		for _, s := range a.series {
			if s.instrument != name {
				continue
			}
			switch def.kind {
			case KindCounter:
				snap.Counters = append(snap.Counters, s.snapshotCounter())
			case KindGauge:
				snap.Gauges = append(snap.Gauges, s.snapshotGauge())
			case KindHistogram:
				snap.Histograms = append(snap.Histograms, s.snapshotHistogram())
			}
		}
		out = append(out, snap)
	}
	return out
}
