package exporter

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/honeybeepf/honeybeepf/internal/metrics"
)

func instrumentationScope() instrumentation.Scope {
	return instrumentation.Scope{Name: scopeName}
}

// scopeName identifies this module's metrics in the exported resource,
// the way go.opentelemetry.io/otel/sdk/metric names an instrumentation
// scope for its own producers.
const scopeName = "github.com/honeybeepf/honeybeepf"

// buildResourceMetrics converts one Snapshot call's worth of instrument
// snapshots into the OTLP metric data model. Counters export as
// cumulative monotonic sums, gauges as last-value gauges, and
// histograms as delta-temporality histograms (spec.md §4.6: "each
// export cycle carries only the delta since the last successful
// export" for histogram buckets; counters and gauges carry their
// current cumulative/instantaneous value every cycle).
func buildResourceMetrics(res *resource.Resource, snaps []metrics.InstrumentSnapshot, start, now time.Time) metricdata.ResourceMetrics {
	ms := make([]metricdata.Metrics, 0, len(snaps))
	for _, s := range snaps {
		switch s.Kind {
		case metrics.KindCounter:
			ms = append(ms, metricdata.Metrics{
				Name: s.Name,
				Unit: s.Unit,
				Data: metricdata.Sum[int64]{
					Temporality: metricdata.CumulativeTemporality,
					IsMonotonic: true,
					DataPoints: counterPoints(s.Counters, start, now),
				},
			})
		case metrics.KindGauge:
			ms = append(ms, metricdata.Metrics{
				Name: s.Name,
				Unit: s.Unit,
				Data: metricdata.Gauge[int64]{
					DataPoints: gaugePoints(s.Gauges, now),
				},
			})
		case metrics.KindHistogram:
			ms = append(ms, metricdata.Metrics{
				Name: s.Name,
				Unit: s.Unit,
				Data: metricdata.Histogram[float64]{
					Temporality: metricdata.DeltaTemporality,
					DataPoints: histogramPoints(s.Histograms, start, now),
				},
			})
		}
	}

	return metricdata.ResourceMetrics{
		Resource: res,
		ScopeMetrics: []metricdata.ScopeMetrics{
			{
				Scope:   instrumentationScope(),
				Metrics: ms,
			},
		},
	}
}

func counterPoints(cs []metrics.CounterSnapshot, start, now time.Time) []metricdata.DataPoint[int64] {
	out := make([]metricdata.DataPoint[int64], 0, len(cs))
	for _, c := range cs {
		out = append(out, metricdata.DataPoint[int64]{
			Attributes: attributeSet(c.Labels),
			StartTime:  start,
			Time:       now,
			Value:      int64(c.Value),
		})
	}
	return out
}

func gaugePoints(gs []metrics.GaugeSnapshot, now time.Time) []metricdata.DataPoint[int64] {
	out := make([]metricdata.DataPoint[int64], 0, len(gs))
	for _, g := range gs {
		out = append(out, metricdata.DataPoint[int64]{
			Attributes: attributeSet(g.Labels),
			Time:       now,
			Value:      g.Value,
		})
	}
	return out
}

func histogramPoints(hs []metrics.HistogramSnapshot, start, now time.Time) []metricdata.HistogramDataPoint[float64] {
	out := make([]metricdata.HistogramDataPoint[float64], 0, len(hs))
	for _, h := range hs {
		out = append(out, metricdata.HistogramDataPoint[float64]{
			Attributes:   attributeSet(h.Labels),
			StartTime:    start,
			Time:         now,
			Count:        h.CountDelta,
			Bounds:       h.BucketBounds,
			BucketCounts: h.BucketDeltas,
			Sum:          h.SumDelta,
		})
	}
	return out
}

func attributeSet(labels map[string]string) attribute.Set {
	kvs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		kvs = append(kvs, attribute.String(k, v))
	}
	return attribute.NewSet(kvs...)
}
