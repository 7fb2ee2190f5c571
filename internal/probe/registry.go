package probe

import (
	"fmt"

	"github.com/honeybeepf/honeybeepf/internal/schema"
)

// Names of every probe the built-in table knows about.
const (
	NameBlockIO        = "block_io"
	NameNetworkLatency = "network_latency"
	NameGpuOpen        = "gpu_open"
	NameNccl           = "nccl"
	NameLlm            = "llm"
	NameFilesystem     = "filesystem"
)

// BuiltinTable returns a fresh copy of the static probe catalog, all
// disabled and without handlers bound. Callers enable probes per
// configuration (spec.md §4.2) and bind handlers before starting the
// loader.
func BuiltinTable() []Probe {
	return []Probe{
		{
			Name: NameBlockIO,
			Kind: KindTracepoint,
			AttachDescriptor: AttachDescriptor{
				Category: "block", Name: "block_rq_complete",
			},
			// block_rq_complete's own tracepoint arguments carry the
			// request's latency directly; there is no separate entry
			// hook to pair against a return, so this probe has no
			// pending-call map (unlike network_latency/nccl/llm/filesystem).
			RecordSize: schema.BlockIoRecordSize,
			RingName:   "rb_block_io",
			Correlated: false,
		},
		{
			Name: NameNetworkLatency,
			Kind: KindKprobe,
			AttachDescriptor: AttachDescriptor{
				Symbol: "tcp_sendmsg",
			},
			ReturnDescriptor: &AttachDescriptor{Symbol: "tcp_cleanup_rbuf"},
			RecordSize:       schema.NetworkLatencyRecordSize,
			RingName:         "rb_network_latency",
			Correlated:       true,
		},
		{
			Name: NameGpuOpen,
			Kind: KindKprobe,
			AttachDescriptor: AttachDescriptor{
				Symbol: "nvidia_open" /* resolved against the loaded nvidia module */,
			},
			RecordSize: schema.GpuOpenRecordSize,
			RingName:   "rb_gpu_open",
		},
		{
			Name: NameNccl,
			Kind: KindUprobe,
			AttachDescriptor: AttachDescriptor{
				BinaryPath: "libnccl.so*", Symbol: "ncclAllReduce",
			},
			ReturnDescriptor: &AttachDescriptor{BinaryPath: "libnccl.so*", Symbol: "ncclAllReduce"},
			RecordSize:       schema.NcclCallRecordSize,
			RingName:         "rb_nccl",
			Correlated:       true,
		},
		{
			Name: NameLlm,
			Kind: KindUprobe,
			AttachDescriptor: AttachDescriptor{
				BinaryPath: "libssl.so*", Symbol: "SSL_write",
			},
			ReturnDescriptor: &AttachDescriptor{BinaryPath: "libssl.so*", Symbol: "SSL_read"},
			RecordSize:       schema.LlmCallRecordSize,
			RingName:         "rb_llm",
			Correlated:       true,
		},
		{
			Name: NameFilesystem,
			Kind: KindKprobe,
			AttachDescriptor: AttachDescriptor{
				Symbol: "vfs_read",
			},
			ReturnDescriptor: &AttachDescriptor{Symbol: "vfs_read"},
			RecordSize:       schema.VfsLatencyRecordSize,
			RingName:         "rb_filesystem",
			Correlated:       true,
		},
	}
}

// ByName indexes BuiltinTable by probe name for config lookups.
func ByName() map[string]Probe {
	out := make(map[string]Probe)
	for _, p := range BuiltinTable() {
		out[p.Name] = p
	}
	return out
}

// Resolve applies the enabled-set from configuration to the built-in
// table, enabling named probes and rejecting unknown names (spec.md
// §4.2). Probes absent from enabled keep Enabled=false.
func Resolve(enabled map[string]bool) ([]Probe, error) {
	table := BuiltinTable()
	known := make(map[string]bool, len(table))
	for _, p := range table {
		known[p.Name] = true
	}
	for name := range enabled {
		if !known[name] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProbe, name)
		}
	}
	for i := range table {
		table[i].Enabled = enabled[table[i].Name]
	}
	return table, nil
}

// BindHandlers attaches a handler to each probe whose name appears in
// handlers, returning a new slice (the input is not mutated).
func BindHandlers(probes []Probe, handlers map[string]Handler) []Probe {
	out := make([]Probe, len(probes))
	copy(out, probes)
	for i := range out {
		if h, ok := handlers[out[i].Name]; ok {
			out[i].Handler = h
		}
	}
	return out
}
