package schema

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeHeader(t *testing.T, h RecordHeader) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))
	return buf.Bytes()
}

func TestDecodeBlockIo_HappyPath(t *testing.T) {
	h := RecordHeader{Pid: 42, Tid: 42, CgroupID: 7, TimestampNs: 1000}
	copy(h.Comm[:], "myproc")

	raw := encodeHeader(t, h)
	var payloadBuf bytes.Buffer
	require.NoError(t, binary.Write(&payloadBuf, binary.LittleEndian, BlockIoPayload{
		DeviceMajor: 8,
		DeviceMinor: 0,
		Bytes:       4096,
		LatencyNs:   120_000,
		OpKind:      OpRead,
	}))
	raw = append(raw, payloadBuf.Bytes()...)

	require.Len(t, raw, BlockIoRecordSize)

	gotHeader, gotPayload, err := DecodeBlockIo(raw)
	require.NoError(t, err)
	require.Equal(t, uint32(42), gotHeader.Pid)
	require.Equal(t, "myproc", gotHeader.CommString())
	require.Equal(t, uint64(4096), gotPayload.Bytes)
	require.Equal(t, OpRead, gotPayload.OpKind)
	require.Equal(t, "read", gotPayload.OpKind.String())
}

func TestDecodeBlockIo_ShortRecordRejected(t *testing.T) {
	_, _, err := DecodeBlockIo(make([]byte, BlockIoRecordSize-1))
	require.ErrorIs(t, err, ErrShortRecord)
}

func TestDecodeBlockIo_OversizeRecordRejected(t *testing.T) {
	_, _, err := DecodeBlockIo(make([]byte, BlockIoRecordSize+1))
	require.ErrorIs(t, err, ErrShortRecord)
}

func TestNcclCallPayload_OrphanFlag(t *testing.T) {
	p := NcclCallPayload{Orphan: 1, DurationNs: 0}
	require.True(t, p.IsOrphan())

	p2 := NcclCallPayload{Orphan: 0, DurationNs: 500}
	require.False(t, p2.IsOrphan())
}

func TestNcclDatatypeWidth(t *testing.T) {
	cases := []struct {
		dt   NcclDatatype
		want int
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 2}, {4, 4}, {5, 4}, {6, 8}, {7, 8},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.dt.Width())
	}
}

func TestGpuOpenPayload_DevicePathTruncation(t *testing.T) {
	var p GpuOpenPayload
	copy(p.DevicePath[:], "/dev/nvidia0")
	require.Equal(t, "/dev/nvidia0", p.DevicePathString())
}
