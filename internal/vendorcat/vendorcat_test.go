package vendorcat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault_LooksUpKnownKinds(t *testing.T) {
	cat := Default()

	ceos, ok := cat.Lookup("ceos")
	require.True(t, ok)
	require.Equal(t, ReadinessLogPattern, ceos.Readiness.Kind)
	require.Equal(t, 300*time.Second, ceos.Readiness.Timeout)
	require.Len(t, ceos.Readiness.Progress, 4)

	n9kv, ok := cat.Lookup("cisco_n9kv")
	require.True(t, ok)
	require.True(t, n9kv.RequiresMgmtInterface)
	require.Equal(t, ExtractSSH, n9kv.ConfigExtractMethod)
	require.Equal(t, 240*time.Second, n9kv.Readiness.SSHFallbackAfter)
}

func TestLookup_UnknownKindReturnsFalse(t *testing.T) {
	cat := Default()
	_, ok := cat.Lookup("does-not-exist")
	require.False(t, ok)
}
