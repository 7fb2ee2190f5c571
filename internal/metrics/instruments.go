package metrics

import "time"

// Instrument names, stable per spec.md §6. Exporter semantics append
// the Prometheus-style "_total" suffix for counters; names here carry
// no double suffix.
const (
	BlockIOEventsTotal   = "honeybeepf_block_io_events"
	BlockIOBytesTotal    = "honeybeepf_block_io_bytes"
	BlockIOLatencyNs     = "honeybeepf_block_io_latency_ns"
	NetworkLatencyNs     = "honeybeepf_network_latency_ns"
	GpuOpenEventsTotal   = "honeybeepf_gpu_open_events"
	ActiveProbes         = "honeybeepf_active_probes"
	NcclCallDurationNs   = "honeybeepf_nccl_call_duration_ns"
	LlmTokensTotal       = "honeybeepf_llm_tokens"
	DroppedRecordsTotal  = "honeybeepf_dropped_records"
	OrphanReturnsTotal   = "honeybeepf_orphan_returns"
	CardinalityDropped   = "honeybeepf_cardinality_dropped"
	ExportBatchesDropped = "honeybeepf_export_batches_dropped"
	VfsLatencyNs         = "honeybeepf_vfs_latency_ns"
	EventIngestionLagNs  = "honeybeepf_event_ingestion_lag_ns"
	CorrelationPending   = "honeybeepf_correlation_pending"
	CorrelationEvictions = "honeybeepf_correlation_evictions"
)

// latencyBuckets are the explicit bucket boundaries spec.md §4.5
// prescribes for "*_latency_ns" instruments, in nanoseconds.
var latencyBuckets = []float64{
	float64(time.Microsecond),
	float64(10 * time.Microsecond),
	float64(100 * time.Microsecond),
	float64(time.Millisecond),
	float64(10 * time.Millisecond),
	float64(100 * time.Millisecond),
	float64(time.Second),
	float64(10 * time.Second),
}

// RegisterGuaranteedInstruments registers every instrument spec.md §6
// guarantees, plus the drop/orphan/cardinality accounting instruments
// spec.md §7 and §8 require to be externally observable. Call once at
// startup before any probe handler runs. The aggregator does not write
// to CardinalityDropped itself: series refused at the cap are counted
// only in Aggregator.CardinalityDropped(), so that instrument has no
// series unless some caller increments it.
func RegisterGuaranteedInstruments(a *Aggregator) error {
	type reg struct {
		name    string
		unit    string
		kind    Kind
		labels  []string
		buckets []float64
	}
	regs := []reg{
		{BlockIOEventsTotal, "1", KindCounter, []string{"device", "op"}, nil},
		{BlockIOBytesTotal, "By", KindCounter, []string{"device", "op"}, nil},
		{BlockIOLatencyNs, "ns", KindHistogram, []string{"device", "op"}, latencyBuckets},
		{NetworkLatencyNs, "ns", KindHistogram, []string{"direction", "peer_class", "peer_host"}, latencyBuckets},
		{GpuOpenEventsTotal, "1", KindCounter, []string{"device"}, nil},
		{ActiveProbes, "1", KindGauge, []string{"probe"}, nil},
		{NcclCallDurationNs, "ns", KindHistogram, []string{"op", "datatype"}, latencyBuckets},
		{LlmTokensTotal, "1", KindCounter, []string{"provider", "model", "kind"}, nil},
		{DroppedRecordsTotal, "1", KindCounter, []string{"probe"}, nil},
		{OrphanReturnsTotal, "1", KindCounter, []string{"probe"}, nil},
		{CardinalityDropped, "1", KindCounter, []string{"instrument"}, nil},
		{ExportBatchesDropped, "1", KindCounter, nil, nil},
		{VfsLatencyNs, "ns", KindHistogram, []string{"op"}, latencyBuckets},
		{EventIngestionLagNs, "ns", KindHistogram, []string{"probe"}, latencyBuckets},
		{CorrelationPending, "1", KindGauge, []string{"probe"}, nil},
		{CorrelationEvictions, "1", KindCounter, []string{"probe"}, nil},
	}
	for _, r := range regs {
		if err := a.Register(r.name, r.unit, r.kind, r.labels, r.buckets); err != nil {
			return err
		}
	}
	return nil
}
