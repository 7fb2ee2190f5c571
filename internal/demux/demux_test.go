package demux

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/honeybeepf/honeybeepf/internal/metrics"
	"github.com/honeybeepf/honeybeepf/internal/probe"
	"github.com/honeybeepf/honeybeepf/internal/ring"
)

func TestNew_SkipsProbesWithoutHandlerOrRing(t *testing.T) {
	agg := metrics.New(0)
	probes := []probe.Probe{
		{Name: "block_io", Enabled: true, Handler: probe.HandlerFunc(func([]byte) error { return nil })},
		{Name: "gpu_open", Enabled: false, Handler: probe.HandlerFunc(func([]byte) error { return nil })},
		{Name: "nccl", Enabled: true},
	}
	// No rings supplied: every probe above should be skipped, since a
	// ring with no opened reader has nothing to drain.
	d := New(agg, probes, map[string]*ring.Reader{})
	total := 0
	for _, w := range d.workers {
		total += len(w)
	}
	require.Equal(t, 0, total)
}

func TestNew_WorkerCountBoundedByMaxWorkers(t *testing.T) {
	agg := metrics.New(0)
	d := New(agg, nil, map[string]*ring.Reader{})
	require.LessOrEqual(t, len(d.workers), MaxWorkers)
	require.GreaterOrEqual(t, len(d.workers), 1)
}
