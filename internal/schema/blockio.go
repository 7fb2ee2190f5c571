package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BlockIoPayload matches the C struct backing spec's BlockIoEvent.
type BlockIoPayload struct {
	DeviceMajor uint32
	DeviceMinor uint32
	Bytes       uint64
	LatencyNs   uint64
	OpKind      OpKind
	_           [7]byte // pad to 8-byte alignment
}

// BlockIoRecordSize is the fixed wire size of a block-io record.
const BlockIoRecordSize = HeaderSize + 4 + 4 + 8 + 8 + 1 + 7

// DecodeBlockIo validates raw's length against BlockIoRecordSize and
// decodes it into a header and payload. Length mismatches return
// ErrShortRecord; no partial record is ever returned.
func DecodeBlockIo(raw []byte) (RecordHeader, BlockIoPayload, error) {
	if len(raw) != BlockIoRecordSize {
		return RecordHeader{}, BlockIoPayload{}, fmt.Errorf("block_io: %w (want %d got %d)", ErrShortRecord, BlockIoRecordSize, len(raw))
	}
	h, rest, err := decodeHeader(raw)
	if err != nil {
		return RecordHeader{}, BlockIoPayload{}, err
	}
	var p BlockIoPayload
	if err := binary.Read(bytes.NewReader(rest), binary.LittleEndian, &p); err != nil {
		return RecordHeader{}, BlockIoPayload{}, fmt.Errorf("block_io: decoding payload: %w", err)
	}
	return h, p, nil
}
