// Package handlers implements the per-probe event handlers spec.md §3
// calls the Probe's "handler": the code that decodes a probe's fixed-
// layout record and folds it into the Metric Aggregator. Handlers are
// synchronous (spec.md §4.4); the LLM handler's provider matching is
// pure in-memory glob and expression evaluation, pre-compiled at
// config-load time. Some I/O does run inline on the calling worker: the
// first record any handler sees reads /proc/stat once for the shared
// time converter, and the network_latency handler, when given a
// peerhost.Resolver, reads /proc/<pid>/environ and /proc/<pid>/cmdline
// and performs DNS lookups the first time it sees a pid.
package handlers

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/honeybeepf/honeybeepf/internal/apperror"
	"github.com/honeybeepf/honeybeepf/internal/metrics"
	"github.com/honeybeepf/honeybeepf/internal/peerhost"
	"github.com/honeybeepf/honeybeepf/internal/probe"
	"github.com/honeybeepf/honeybeepf/internal/providers"
	"github.com/honeybeepf/honeybeepf/internal/schema"
	"github.com/honeybeepf/honeybeepf/internal/timesync"
)

// bootConverter lazily builds the one Converter every handler shares to
// turn a record's monotonic capture time into wall-clock time for
// ingestion-lag accounting. Built once per process, not per handler.
var (
	bootConverterOnce sync.Once
	bootConverter     *timesync.Converter
)

func sharedConverter() *timesync.Converter {
	bootConverterOnce.Do(func() {
		c, err := timesync.NewConverter()
		if err != nil {
			log.Printf("handlers: building time converter: %v", err)
			return
		}
		bootConverter = c
	})
	return bootConverter
}

// observeIngestionLag records the time between a record's in-kernel
// capture and its userspace processing, catching ring buffer backlog
// or a stalled worker before it shows up as stale metrics elsewhere.
func observeIngestionLag(agg *metrics.Aggregator, probeName string, h schema.RecordHeader) {
	c := sharedConverter()
	if c == nil {
		return
	}
	lag := time.Since(c.MonotonicToWallClock(h.TimestampNs))
	if lag < 0 {
		lag = 0
	}
	agg.Observe(metrics.EventIngestionLagNs, map[string]string{"probe": probeName}, float64(lag.Nanoseconds()))
}

// PeerClass classifies a network-latency event's destination relative
// to the host, resolved in userspace per DESIGN.md's decision on
// spec.md §9's open question.
type PeerClass string

const (
	PeerSameHost   PeerClass = "same-host"
	PeerSameSubnet PeerClass = "same-subnet"
	PeerExternal   PeerClass = "external"
)

// ClassifyPeer decides src's relationship to dst: equal addresses are
// same-host, then a /24 (v4) or /64 (v6) subnet heuristic applies;
// anything else is external.
func ClassifyPeer(src, dst net.IP) PeerClass {
	if src.Equal(dst) {
		return PeerSameHost
	}
	if v4 := dst.To4(); v4 != nil {
		if srcV4 := src.To4(); srcV4 != nil {
			mask := net.CIDRMask(24, 32)
			if srcV4.Mask(mask).Equal(v4.Mask(mask)) {
				return PeerSameSubnet
			}
		}
		return PeerExternal
	}
	mask := net.CIDRMask(64, 128)
	if src.Mask(mask).Equal(dst.Mask(mask)) {
		return PeerSameSubnet
	}
	return PeerExternal
}

// NewBlockIO builds the block_io probe's handler. Events with fewer
// bytes than minBytes are suppressed per probes.block_io.min_bytes
// (spec.md §6).
func NewBlockIO(agg *metrics.Aggregator, minBytes uint64) probe.Handler {
	return probe.HandlerFunc(func(raw []byte) error {
		h, p, err := schema.DecodeBlockIo(raw)
		if err != nil {
			return apperror.NewForProbe(apperror.ClassRing, probe.NameBlockIO, err)
		}
		observeIngestionLag(agg, probe.NameBlockIO, h)
		if p.Bytes < minBytes {
			return nil
		}
		labels := map[string]string{"device": deviceLabel(p.DeviceMajor, p.DeviceMinor), "op": p.OpKind.String()}
		agg.Inc(metrics.BlockIOEventsTotal, labels, 1)
		agg.Inc(metrics.BlockIOBytesTotal, labels, p.Bytes)
		agg.Observe(metrics.BlockIOLatencyNs, labels, float64(p.LatencyNs))
		return nil
	})
}

func deviceLabel(major, minor uint32) string {
	return fmt.Sprintf("%d:%d", major, minor)
}

// NewNetworkLatency builds the network_latency probe's handler.
// resolver may be nil, in which case every event's peer_host label
// falls back to "unknown"; when set, it is seeded from the recording
// process's environment and command line the first time that pid is
// seen, and consulted on every subsequent event for that destination.
func NewNetworkLatency(agg *metrics.Aggregator, resolver *peerhost.Resolver) probe.Handler {
	return probe.HandlerFunc(func(raw []byte) error {
		h, p, err := schema.DecodeNetworkLatency(raw)
		if err != nil {
			return apperror.NewForProbe(apperror.ClassRing, probe.NameNetworkLatency, err)
		}
		observeIngestionLag(agg, probe.NameNetworkLatency, h)

		peerClass := ClassifyPeer(p.SrcIP(), p.DstIP())
		peerHost := ""
		if resolver != nil {
			resolver.SeedFromProcess(h.Pid)
			peerHost = resolver.Lookup(p.DstIP().String())
		}
		labels := map[string]string{
			"direction":  p.Direction.String(),
			"peer_class": string(peerClass),
			"peer_host":  peerHost,
		}
		agg.Observe(metrics.NetworkLatencyNs, labels, float64(p.LatencyNs))
		return nil
	})
}

// NewGpuOpen builds the gpu_open probe's handler.
func NewGpuOpen(agg *metrics.Aggregator) probe.Handler {
	return probe.HandlerFunc(func(raw []byte) error {
		h, p, err := schema.DecodeGpuOpen(raw)
		if err != nil {
			return apperror.NewForProbe(apperror.ClassRing, probe.NameGpuOpen, err)
		}
		observeIngestionLag(agg, probe.NameGpuOpen, h)
		labels := map[string]string{"device": p.DevicePathString()}
		agg.Inc(metrics.GpuOpenEventsTotal, labels, 1)
		return nil
	})
}

// NewNccl builds the nccl probe's handler. Orphan returns are counted
// but excluded from the latency histogram (spec.md §4.3, §8).
func NewNccl(agg *metrics.Aggregator) probe.Handler {
	return probe.HandlerFunc(func(raw []byte) error {
		h, p, err := schema.DecodeNcclCall(raw)
		if err != nil {
			return apperror.NewForProbe(apperror.ClassRing, probe.NameNccl, err)
		}
		observeIngestionLag(agg, probe.NameNccl, h)
		if p.IsOrphan() {
			agg.Inc(metrics.OrphanReturnsTotal, map[string]string{"probe": probe.NameNccl}, 1)
			return nil
		}
		labels := map[string]string{"op": p.OpKind.String(), "datatype": fmt.Sprintf("width%d", p.Datatype.Width())}
		agg.Observe(metrics.NcclCallDurationNs, labels, float64(p.DurationNs))
		return nil
	})
}

// NewFilesystem builds the filesystem VFS-latency probe's handler
// (SPEC_FULL.md DOMAIN STACK supplement).
func NewFilesystem(agg *metrics.Aggregator) probe.Handler {
	return probe.HandlerFunc(func(raw []byte) error {
		h, p, err := schema.DecodeVfsLatency(raw)
		if err != nil {
			return apperror.NewForProbe(apperror.ClassRing, probe.NameFilesystem, err)
		}
		observeIngestionLag(agg, probe.NameFilesystem, h)
		if p.IsOrphan() {
			agg.Inc(metrics.OrphanReturnsTotal, map[string]string{"probe": probe.NameFilesystem}, 1)
			return nil
		}
		agg.Observe(metrics.VfsLatencyNs, map[string]string{"op": p.OpKind.String()}, float64(p.DurationNs))
		return nil
	})
}

// NewLlm builds the llm probe's handler. matcher may be nil, in which
// case every call goes unmatched and is ignored per spec.md §6
// ("unmatched calls are ignored"): the kernel side has no way to parse
// a provider's response JSON, so without a compiled rule there is
// nothing to attribute the call to.
func NewLlm(agg *metrics.Aggregator, matcher *providers.Matcher) probe.Handler {
	return probe.HandlerFunc(func(raw []byte) error {
		h, p, err := schema.DecodeLlmCall(raw)
		if err != nil {
			return apperror.NewForProbe(apperror.ClassRing, probe.NameLlm, err)
		}
		observeIngestionLag(agg, probe.NameLlm, h)
		if p.IsOrphan() {
			agg.Inc(metrics.OrphanReturnsTotal, map[string]string{"probe": probe.NameLlm}, 1)
			return nil
		}
		if matcher == nil {
			return nil
		}

		rule, usage, err := matcher.MatchAndExtract(p.HostString(), p.PathString(), p.ResponseBodyBytes())
		if err != nil {
			return apperror.NewForProbe(apperror.ClassHandler, probe.NameLlm, err)
		}
		if rule == nil {
			return nil
		}

		promptLabels := map[string]string{"provider": rule.Name, "model": usage.Model, "kind": "prompt"}
		completionLabels := map[string]string{"provider": rule.Name, "model": usage.Model, "kind": "completion"}
		agg.Inc(metrics.LlmTokensTotal, promptLabels, uint64(max0(usage.PromptTokens)))
		agg.Inc(metrics.LlmTokensTotal, completionLabels, uint64(max0(usage.CompletionTokens)))
		return nil
	})
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
