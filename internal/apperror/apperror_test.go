package apperror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode_FatalClasses(t *testing.T) {
	require.Equal(t, ExitConfigError, New(ClassConfig, errors.New("bad")).ExitCode())
	require.Equal(t, ExitBytecodeLoadFailure, New(ClassLoad, errors.New("bad")).ExitCode())
	require.Equal(t, ExitInsufficientPriv, New(ClassPrivilege, errors.New("bad")).ExitCode())
}

func TestExitCode_NonFatalClassesAreGraceful(t *testing.T) {
	require.Equal(t, ExitGraceful, NewForProbe(ClassAttach, "block_io", errors.New("bad")).ExitCode())
	require.Equal(t, ExitGraceful, New(ClassExport, errors.New("bad")).ExitCode())
}

func TestFatal(t *testing.T) {
	require.True(t, New(ClassConfig, errors.New("x")).Fatal())
	require.False(t, New(ClassHandler, errors.New("x")).Fatal())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewForProbe(ClassRing, "nccl", cause)
	require.ErrorIs(t, err, cause)
}
