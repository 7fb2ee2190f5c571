package loader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/honeybeepf/honeybeepf/internal/probe"
)

func TestReturnKindFor(t *testing.T) {
	require.Equal(t, probe.KindKretprobe, returnKindFor(probe.KindKprobe))
	require.Equal(t, probe.KindUretprobe, returnKindFor(probe.KindUprobe))
	require.Equal(t, probe.KindTracepoint, returnKindFor(probe.KindTracepoint))
}

func TestCapEffHasBPF(t *testing.T) {
	// CAP_BPF is bit 39; 0x8000000000 sets only that bit.
	status := "Name:\tfoo\nCapEff:\t0000008000000000\nCapBnd:\tffffffffffffffff\n"
	ok, err := capEffHasBPF(status)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCapEffHasBPF_BitNotSet(t *testing.T) {
	status := "CapEff:\t0000000000000000\n"
	ok, err := capEffHasBPF(status)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCapEffHasBPF_MissingLine(t *testing.T) {
	_, err := capEffHasBPF("Name:\tfoo\n")
	require.Error(t, err)
}

func TestCapEffHasBPF_Malformed(t *testing.T) {
	_, err := capEffHasBPF("CapEff:\tnot-hex\n")
	require.Error(t, err)
}
