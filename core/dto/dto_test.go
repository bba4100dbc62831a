package dto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstallFlags_Has(t *testing.T) {
	flags := FlagReplace | FlagForwardLock

	require.True(t, flags.Has(FlagReplace))
	require.True(t, flags.Has(FlagForwardLock))
	require.True(t, flags.Has(FlagReplace|FlagForwardLock))
	require.False(t, flags.Has(FlagExternal))
	require.Equal(t, "replace|forward-lock", flags.String())
	require.Equal(t, "none", InstallFlags(0).String())
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "SUCCESS", Succeeded.String())
	require.Equal(t, "VERIFICATION_TIMEOUT", FailedVerificationTimeout.String())
	require.Equal(t, "INSUFFICIENT_STORAGE", FailedInsufficientStorage.String())
	require.Equal(t, "STATUS(42)", Status(42).String())
	require.True(t, Succeeded.OK())
	require.False(t, FailedInternalError.OK())
}

func TestNewInstallRequest_UniqueIDs(t *testing.T) {
	a := NewInstallRequest("/tmp/a.pkg", 0, "shell", nil)
	b := NewInstallRequest("/tmp/a.pkg", 0, "shell", nil)

	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, "/tmp/a.pkg", a.Source)
}
