package handlers

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/honeybeepf/honeybeepf/internal/metrics"
	"github.com/honeybeepf/honeybeepf/internal/providers"
	"github.com/honeybeepf/honeybeepf/internal/schema"
)

func encode(t *testing.T, header schema.RecordHeader, payload interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, header))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, payload))
	return buf.Bytes()
}

func newTestAggregator(t *testing.T) *metrics.Aggregator {
	t.Helper()
	agg := metrics.New(0)
	require.NoError(t, metrics.RegisterGuaranteedInstruments(agg))
	return agg
}

func TestNewBlockIO_SuppressesBelowMinBytes(t *testing.T) {
	agg := newTestAggregator(t)
	h := NewBlockIO(agg, 1024)

	raw := encode(t, schema.RecordHeader{}, schema.BlockIoPayload{
		DeviceMajor: 8, DeviceMinor: 0, Bytes: 512, LatencyNs: 1000, OpKind: schema.OpRead,
	})
	require.NoError(t, h.HandleRecord(raw))
	require.Equal(t, int64(0), agg.SeriesCount(metrics.BlockIOEventsTotal))
}

func TestNewBlockIO_RecordsAboveThreshold(t *testing.T) {
	agg := newTestAggregator(t)
	h := NewBlockIO(agg, 1024)

	raw := encode(t, schema.RecordHeader{}, schema.BlockIoPayload{
		DeviceMajor: 8, DeviceMinor: 0, Bytes: 4096, LatencyNs: 120_000, OpKind: schema.OpWrite,
	})
	require.NoError(t, h.HandleRecord(raw))
	require.Equal(t, int64(1), agg.SeriesCount(metrics.BlockIOEventsTotal))
}

func TestClassifyPeer(t *testing.T) {
	self := net.ParseIP("10.0.0.5")
	require.Equal(t, PeerSameHost, ClassifyPeer(self, self))
	require.Equal(t, PeerSameSubnet, ClassifyPeer(net.ParseIP("10.0.0.5"), net.ParseIP("10.0.0.9")))
	require.Equal(t, PeerExternal, ClassifyPeer(net.ParseIP("10.0.0.5"), net.ParseIP("93.184.216.34")))
}

func TestNewNccl_OrphanCountedNotObserved(t *testing.T) {
	agg := newTestAggregator(t)
	h := NewNccl(agg)

	raw := encode(t, schema.RecordHeader{}, schema.NcclCallPayload{
		OpKind: schema.NcclAllReduce, Orphan: 1, DurationNs: 0,
	})
	require.NoError(t, h.HandleRecord(raw))
	require.Equal(t, int64(1), agg.SeriesCount(metrics.OrphanReturnsTotal))
	require.Equal(t, int64(0), agg.SeriesCount(metrics.NcclCallDurationNs))
}

func TestNewNccl_NonOrphanObserved(t *testing.T) {
	agg := newTestAggregator(t)
	h := NewNccl(agg)

	raw := encode(t, schema.RecordHeader{}, schema.NcclCallPayload{
		OpKind: schema.NcclAllReduce, Orphan: 0, DurationNs: 5000,
	})
	require.NoError(t, h.HandleRecord(raw))
	require.Equal(t, int64(1), agg.SeriesCount(metrics.NcclCallDurationNs))
}

func TestNewLlm_MatchedProviderExtractsTokensFromResponseBody(t *testing.T) {
	agg := newTestAggregator(t)
	matcher, err := providers.Compile([]providers.Rule{{
		Name:  "openai",
		Hosts: []string{"api.openai.com"},
		Paths: []string{"/v1/*"},
		Response: providers.ResponseFields{
			UsagePath:             "body.usage",
			PromptTokensField:     "prompt_tokens",
			CompletionTokensField: "completion_tokens",
			ModelPath:             "body.model",
		},
	}})
	require.NoError(t, err)
	h := NewLlm(agg, matcher)

	var payload schema.LlmCallPayload
	copy(payload.Host[:], "api.openai.com")
	copy(payload.Path[:], "/v1/chat/completions")
	body := []byte(`{"model":"gpt-4o","usage":{"prompt_tokens":12,"completion_tokens":34}}`)
	payload.ResponseBodyLen = uint16(len(body))
	copy(payload.ResponseBody[:], body)

	raw := encode(t, schema.RecordHeader{}, payload)
	require.NoError(t, h.HandleRecord(raw))
	require.Equal(t, int64(2), agg.SeriesCount(metrics.LlmTokensTotal))
}

func TestNewLlm_UnmatchedCallIsIgnored(t *testing.T) {
	agg := newTestAggregator(t)
	matcher, err := providers.Compile([]providers.Rule{{
		Name:  "openai",
		Hosts: []string{"api.openai.com"},
	}})
	require.NoError(t, err)
	h := NewLlm(agg, matcher)

	var payload schema.LlmCallPayload
	copy(payload.Host[:], "example.internal")
	copy(payload.Path[:], "/generate")

	raw := encode(t, schema.RecordHeader{}, payload)
	require.NoError(t, h.HandleRecord(raw))
	require.Equal(t, int64(0), agg.SeriesCount(metrics.LlmTokensTotal))
}

func TestNewFilesystem_OrphanCounted(t *testing.T) {
	agg := newTestAggregator(t)
	h := NewFilesystem(agg)

	raw := encode(t, schema.RecordHeader{}, schema.VfsLatencyPayload{OpKind: schema.OpRead, Orphan: 1})
	require.NoError(t, h.HandleRecord(raw))
	require.Equal(t, int64(1), agg.SeriesCount(metrics.OrphanReturnsTotal))
}

func TestNewGpuOpen_ObservesIngestionLag(t *testing.T) {
	agg := newTestAggregator(t)
	h := NewGpuOpen(agg)

	raw := encode(t, schema.RecordHeader{}, schema.GpuOpenPayload{})
	require.NoError(t, h.HandleRecord(raw))
	require.Equal(t, int64(1), agg.SeriesCount(metrics.EventIngestionLagNs))
}

func TestHandlers_RejectMalformedRecord(t *testing.T) {
	agg := newTestAggregator(t)
	h := NewGpuOpen(agg)
	err := h.HandleRecord([]byte{1, 2, 3})
	require.Error(t, err)
}
