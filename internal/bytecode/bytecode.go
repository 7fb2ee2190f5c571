// Package bytecode holds the generated Go bindings for the compiled
// eBPF object (spec.md §1: the kernel-side probe implementations
// themselves are out of this repository's scope; only their Go-side
// loading and lifecycle is). LoadHoneybeepf and the honeybeepfObjects
// struct it populates are produced by bpf2go from the probe C sources
// under probes/, the same way the teacher's internal/bpf package is
// produced from process_tracer.bpf.c.
package bytecode

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -target amd64 honeybeepf ../../probes/honeybeepf.bpf.c -- -I../../probes
