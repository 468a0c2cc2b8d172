package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonFatalWrapsWithNonfatalKind(t *testing.T) {
	underlying := errors.New("3 file(s) failed checksum verification")

	wrapped := nonFatal(underlying)
	require.Error(t, wrapped)

	var statusErr *StatusError
	require.True(t, errors.As(wrapped, &statusErr))
	require.Equal(t, "nonfatal", statusErr.Kind)
	require.ErrorIs(t, wrapped, underlying)
}

func TestNonFatalPassesThroughNil(t *testing.T) {
	require.NoError(t, nonFatal(nil))
}

func TestExitCodeForNonfatalIsOne(t *testing.T) {
	require.Equal(t, 1, exitCodeFor(nonFatal(errors.New("mismatch"))))
}

func TestExitCodeForUnclassifiedErrorIsTwo(t *testing.T) {
	require.Equal(t, 2, exitCodeFor(errors.New("not a hoard repository")))
}

func TestExitCodeForFatalStatusErrorIsTwo(t *testing.T) {
	err := &StatusError{Kind: "fatal", Err: errors.New("database corrupt")}
	require.Equal(t, 2, exitCodeFor(err))
}
