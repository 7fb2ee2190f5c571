package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// NcclCallPayload matches spec's NcclCallEvent. It is the combined
// record the correlation store's return hook emits: entry-captured
// arguments plus the computed duration. Orphan is set when the return
// hook found no matching entry (spec §4.3); DurationNs is 0 in that
// case and downstream aggregation must exclude it from the latency
// histogram while still counting it as an orphan.
type NcclCallPayload struct {
	OpKind      NcclOp
	ReductionOp NcclReductionOp
	Datatype    NcclDatatype
	Orphan      uint8
	_           [4]byte // pad to 8-byte alignment
	Count       uint64
	PeerOrRoot  int32
	RetCode     int32
	DurationNs  uint64
}

// NcclCallRecordSize is the fixed wire size of an NCCL call record.
const NcclCallRecordSize = HeaderSize + 1 + 1 + 1 + 1 + 4 + 8 + 4 + 4 + 8

// IsOrphan reports whether this record is an orphan return.
func (p NcclCallPayload) IsOrphan() bool {
	return p.Orphan != 0
}

// DecodeNcclCall validates raw's length and decodes it into a header
// and payload.
func DecodeNcclCall(raw []byte) (RecordHeader, NcclCallPayload, error) {
	if len(raw) != NcclCallRecordSize {
		return RecordHeader{}, NcclCallPayload{}, fmt.Errorf("nccl: %w (want %d got %d)", ErrShortRecord, NcclCallRecordSize, len(raw))
	}
	h, rest, err := decodeHeader(raw)
	if err != nil {
		return RecordHeader{}, NcclCallPayload{}, err
	}
	var p NcclCallPayload
	if err := binary.Read(bytes.NewReader(rest), binary.LittleEndian, &p); err != nil {
		return RecordHeader{}, NcclCallPayload{}, fmt.Errorf("nccl: decoding payload: %w", err)
	}
	return h, p, nil
}
