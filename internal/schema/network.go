package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// NetworkLatencyPayload matches spec's NetworkLatencyEvent. Addresses
// are 16 bytes each, IPv4-mapped in the v6 form.
type NetworkLatencyPayload struct {
	Saddr     [16]byte
	Daddr     [16]byte
	Sport     uint16
	Dport     uint16
	_         [4]byte // pad LatencyNs to an 8-byte offset
	LatencyNs uint64
	Bytes     uint64
	Direction Direction
	_         [7]byte // pad to 8-byte alignment
}

// NetworkLatencyRecordSize is the fixed wire size of a network-latency record.
const NetworkLatencyRecordSize = HeaderSize + 16 + 16 + 2 + 2 + 4 + 8 + 8 + 1 + 7

// SrcIP returns Saddr as a 16-byte net.IP; an IPv4-mapped address keeps
// its mapped form, which net.IP's To4 and String treat as IPv4.
func (p NetworkLatencyPayload) SrcIP() net.IP {
	return net.IP(p.Saddr[:]).To16()
}

// DstIP returns Daddr as a 16-byte net.IP; an IPv4-mapped address keeps
// its mapped form, which net.IP's To4 and String treat as IPv4.
func (p NetworkLatencyPayload) DstIP() net.IP {
	return net.IP(p.Daddr[:]).To16()
}

// DecodeNetworkLatency validates raw's length and decodes it into a
// header and payload.
func DecodeNetworkLatency(raw []byte) (RecordHeader, NetworkLatencyPayload, error) {
	if len(raw) != NetworkLatencyRecordSize {
		return RecordHeader{}, NetworkLatencyPayload{}, fmt.Errorf("network_latency: %w (want %d got %d)", ErrShortRecord, NetworkLatencyRecordSize, len(raw))
	}
	h, rest, err := decodeHeader(raw)
	if err != nil {
		return RecordHeader{}, NetworkLatencyPayload{}, err
	}
	var p NetworkLatencyPayload
	if err := binary.Read(bytes.NewReader(rest), binary.LittleEndian, &p); err != nil {
		return RecordHeader{}, NetworkLatencyPayload{}, fmt.Errorf("network_latency: decoding payload: %w", err)
	}
	return h, p, nil
}
