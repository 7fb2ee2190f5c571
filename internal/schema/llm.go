package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// llmResponseCaptureSize bounds how much of an LLM response body the
// probe copies into a fixed-size ring record, mirroring the
// detection-buffer cap the original implementation gives up at when a
// protocol never resolves (DETECTION_BUFFER_THRESHOLD in the original
// honeybeepf sources). Provider usage JSON is small relative to this
// window even for a streamed response, so a bounded, one-shot capture
// is sufficient without the original's unbounded read-side buffering.
const llmResponseCaptureSize = 4096

// LlmCallPayload matches spec's LlmCallEvent: the combined record
// emitted by the LLM probe's return hook once a response has been
// observed. It carries the response body byte-for-byte, truncated to
// ResponseBodyLen, rather than pre-extracted token counts — usage
// fields depend on a matched provider rule's usage_path/model_path
// expressions (internal/providers.MatchAndExtract), which only
// userspace can evaluate against a specific provider's JSON shape.
type LlmCallPayload struct {
	Host            [64]byte
	Path            [128]byte
	Status          int32
	Orphan          uint8
	_               [3]byte // pad to 8-byte alignment
	LatencyNs       uint64
	ResponseBodyLen uint16
	_               [6]byte // pad to 8-byte alignment
	ResponseBody    [llmResponseCaptureSize]byte
}

// LlmCallRecordSize is the fixed wire size of an LLM call record.
const LlmCallRecordSize = HeaderSize + 64 + 128 + 4 + 1 + 3 + 8 + 2 + 6 + llmResponseCaptureSize

// HostString returns Host with NUL padding trimmed.
func (p LlmCallPayload) HostString() string { return trimNul(p.Host[:]) }

// PathString returns Path with NUL padding trimmed.
func (p LlmCallPayload) PathString() string { return trimNul(p.Path[:]) }

// IsOrphan reports whether this record is an orphan return.
func (p LlmCallPayload) IsOrphan() bool { return p.Orphan != 0 }

// ResponseBodyBytes returns the captured response body trimmed to
// ResponseBodyLen, which may be less than the capture window when the
// observed response was shorter than it.
func (p LlmCallPayload) ResponseBodyBytes() []byte {
	n := int(p.ResponseBodyLen)
	if n > len(p.ResponseBody) {
		n = len(p.ResponseBody)
	}
	return p.ResponseBody[:n]
}

// DecodeLlmCall validates raw's length and decodes it into a header
// and payload.
func DecodeLlmCall(raw []byte) (RecordHeader, LlmCallPayload, error) {
	if len(raw) != LlmCallRecordSize {
		return RecordHeader{}, LlmCallPayload{}, fmt.Errorf("llm: %w (want %d got %d)", ErrShortRecord, LlmCallRecordSize, len(raw))
	}
	h, rest, err := decodeHeader(raw)
	if err != nil {
		return RecordHeader{}, LlmCallPayload{}, err
	}
	var p LlmCallPayload
	if err := binary.Read(bytes.NewReader(rest), binary.LittleEndian, &p); err != nil {
		return RecordHeader{}, LlmCallPayload{}, fmt.Errorf("llm: decoding payload: %w", err)
	}
	return h, p, nil
}
