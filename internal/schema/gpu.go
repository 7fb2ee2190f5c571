package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// GpuOpenPayload matches spec's GpuOpenEvent.
type GpuOpenPayload struct {
	DevicePath [64]byte // truncated, NUL-padded
	OpenFlags  int32
	Result     int32
}

// GpuOpenRecordSize is the fixed wire size of a gpu-open record.
const GpuOpenRecordSize = HeaderSize + 64 + 4 + 4

// DevicePathString returns DevicePath with NUL padding trimmed.
func (p GpuOpenPayload) DevicePathString() string {
	return trimNul(p.DevicePath[:])
}

// DecodeGpuOpen validates raw's length and decodes it into a header
// and payload.
func DecodeGpuOpen(raw []byte) (RecordHeader, GpuOpenPayload, error) {
	if len(raw) != GpuOpenRecordSize {
		return RecordHeader{}, GpuOpenPayload{}, fmt.Errorf("gpu_open: %w (want %d got %d)", ErrShortRecord, GpuOpenRecordSize, len(raw))
	}
	h, rest, err := decodeHeader(raw)
	if err != nil {
		return RecordHeader{}, GpuOpenPayload{}, err
	}
	var p GpuOpenPayload
	if err := binary.Read(bytes.NewReader(rest), binary.LittleEndian, &p); err != nil {
		return RecordHeader{}, GpuOpenPayload{}, fmt.Errorf("gpu_open: decoding payload: %w", err)
	}
	return h, p, nil
}

func trimNul(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}
