package probe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_EnablesNamedProbes(t *testing.T) {
	probes, err := Resolve(map[string]bool{NameBlockIO: true, NameNccl: false})
	require.NoError(t, err)

	byName := make(map[string]Probe, len(probes))
	for _, p := range probes {
		byName[p.Name] = p
	}
	require.True(t, byName[NameBlockIO].Enabled)
	require.False(t, byName[NameNccl].Enabled)
	require.False(t, byName[NameGpuOpen].Enabled, "unmentioned probes default disabled")
}

func TestResolve_UnknownNameIsError(t *testing.T) {
	_, err := Resolve(map[string]bool{"not_a_real_probe": true})
	require.ErrorIs(t, err, ErrUnknownProbe)
}

func TestBindHandlers_DoesNotMutateInput(t *testing.T) {
	probes, err := Resolve(map[string]bool{NameBlockIO: true})
	require.NoError(t, err)

	called := false
	bound := BindHandlers(probes, map[string]Handler{
		NameBlockIO: HandlerFunc(func([]byte) error { called = true; return nil }),
	})

	require.Nil(t, probes[0].Handler)
	require.NotNil(t, bound[0].Handler)
	require.NoError(t, bound[0].Handler.HandleRecord(nil))
	require.True(t, called)
}
