package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateVNI(t *testing.T) {
	require.NoError(t, ValidateVNI(100100))
	require.NoError(t, ValidateVNI(MinVNI))
	require.NoError(t, ValidateVNI(MaxVNI))
	require.Error(t, ValidateVNI(0))
	require.Error(t, ValidateVNI(99999))
	require.Error(t, ValidateVNI(MaxVNI+1))
	require.Error(t, ValidateVNI(-5))
}

func TestTunnel_InterfaceName(t *testing.T) {
	tun := Tunnel{VNI: 100200}
	require.Equal(t, "vxlan100200", tun.InterfaceName())
}

func TestParseIP_RejectsGarbage(t *testing.T) {
	_, err := parseIP("not-an-ip")
	require.Error(t, err)

	ip, err := parseIP("10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", ip.String())
}
