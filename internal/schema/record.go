// Package schema defines the bit-exact layout of event records shared
// between kernel bytecode and userspace. Every record begins with a
// RecordHeader at offset 0; the remaining bytes hold a probe-specific
// payload. Layouts mirror the C/eBPF struct conventions (explicit
// padding, fixed-width integers, no pointers) so they can be decoded
// directly from the bytes a ring buffer delivers.
package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RecordHeader is the common metadata header prepended to every event
// record, matching spec's EventMetadata. Populated in-kernel at event
// emission.
type RecordHeader struct {
	Pid         uint32
	Tid         uint32
	CgroupID    uint64
	TimestampNs uint64
	Comm        [16]byte // NUL-padded process name
}

// CommString returns the process name with NUL padding trimmed.
func (h RecordHeader) CommString() string {
	n := bytes.IndexByte(h.Comm[:], 0)
	if n < 0 {
		n = len(h.Comm)
	}
	return string(h.Comm[:n])
}

// HeaderSize is the on-wire size of RecordHeader.
const HeaderSize = 4 + 4 + 8 + 8 + 16

// ErrShortRecord is returned when a ring buffer delivers fewer bytes
// than a probe's declared record size. Per spec, partial records are
// never delivered to a handler; callers that see this error have a
// decoding bug, not a legitimate partial-read case.
var ErrShortRecord = fmt.Errorf("schema: record shorter than declared size")

// decodeHeader reads the common header from the front of raw.
func decodeHeader(raw []byte) (RecordHeader, []byte, error) {
	if len(raw) < HeaderSize {
		return RecordHeader{}, nil, ErrShortRecord
	}
	var h RecordHeader
	r := bytes.NewReader(raw[:HeaderSize])
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return RecordHeader{}, nil, fmt.Errorf("schema: decoding header: %w", err)
	}
	return h, raw[HeaderSize:], nil
}

// OpKind enumerates the block-io operation kinds.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
	OpFlush
	OpDiscard
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFlush:
		return "flush"
	case OpDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// Direction enumerates network event direction.
type Direction uint8

const (
	DirectionIngress Direction = iota
	DirectionEgress
)

func (d Direction) String() string {
	if d == DirectionEgress {
		return "egress"
	}
	return "ingress"
}

// NcclOp enumerates the NCCL collective/point-to-point operation kinds.
type NcclOp uint8

const (
	NcclAllReduce NcclOp = iota
	NcclBroadcast
	NcclAllGather
	NcclReduceScatter
	NcclReduce
	NcclAllToAll
	NcclSend
	NcclRecv
	NcclGroupStart
	NcclGroupEnd
)

func (o NcclOp) String() string {
	names := [...]string{
		"AllReduce", "Broadcast", "AllGather", "ReduceScatter", "Reduce",
		"AllToAll", "Send", "Recv", "GroupStart", "GroupEnd",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return "Unknown"
}

// NcclReductionOp enumerates the reduction operations spec.md §9 fixes
// as {Sum, Prod, Max, Min, Avg}.
type NcclReductionOp uint8

const (
	ReductionSum NcclReductionOp = iota
	ReductionProd
	ReductionMax
	ReductionMin
	ReductionAvg
)

func (r NcclReductionOp) String() string {
	names := [...]string{"Sum", "Prod", "Max", "Min", "Avg"}
	if int(r) < len(names) {
		return names[r]
	}
	return "Unknown"
}

// NcclDatatype enumerates the fixed-width element types NCCL calls
// report, width in bytes (1...8) per spec.md §3.
type NcclDatatype uint8

// Width returns the element width in bytes for the datatype.
func (d NcclDatatype) Width() int {
	widths := [...]int{1, 1, 2, 2, 4, 4, 8, 8}
	if int(d) < len(widths) {
		return widths[d]
	}
	return 0
}
