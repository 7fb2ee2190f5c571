package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// VfsLatencyPayload is the filesystem VFS-latency record supplemented
// from the original Rust source (probes/builtin/filesystem/vfs_latency.rs),
// not present in spec's explicit payload list but within its guaranteed
// instrument surface's spirit; see SPEC_FULL.md DOMAIN STACK.
type VfsLatencyPayload struct {
	OpKind     OpKind
	Orphan     uint8
	_          [6]byte // pad to 8-byte alignment
	DurationNs uint64
}

// VfsLatencyRecordSize is the fixed wire size of a VFS-latency record.
const VfsLatencyRecordSize = HeaderSize + 1 + 1 + 6 + 8

// IsOrphan reports whether this record is an orphan return.
func (p VfsLatencyPayload) IsOrphan() bool { return p.Orphan != 0 }

// DecodeVfsLatency validates raw's length and decodes it into a
// header and payload.
func DecodeVfsLatency(raw []byte) (RecordHeader, VfsLatencyPayload, error) {
	if len(raw) != VfsLatencyRecordSize {
		return RecordHeader{}, VfsLatencyPayload{}, fmt.Errorf("vfs_latency: %w (want %d got %d)", ErrShortRecord, VfsLatencyRecordSize, len(raw))
	}
	h, rest, err := decodeHeader(raw)
	if err != nil {
		return RecordHeader{}, VfsLatencyPayload{}, err
	}
	var p VfsLatencyPayload
	if err := binary.Read(bytes.NewReader(rest), binary.LittleEndian, &p); err != nil {
		return RecordHeader{}, VfsLatencyPayload{}, fmt.Errorf("vfs_latency: decoding payload: %w", err)
	}
	return h, p, nil
}
