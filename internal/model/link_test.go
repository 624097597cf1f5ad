package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalLinkName_SymmetricRegardlessOfOrder(t *testing.T) {
	a := CanonicalLinkName("aaa", "eth2", "zzz", "eth1")
	b := CanonicalLinkName("zzz", "eth1", "aaa", "eth2")
	require.Equal(t, a, b)
	require.Equal(t, "aaa:eth2-zzz:eth1", a)
}

func TestNormalizeLink_NoSwapWhenAlreadySorted(t *testing.T) {
	name, swapped := NormalizeLink("aaa", "eth1", "zzz", "eth2")
	require.False(t, swapped)
	require.Equal(t, "aaa:eth1-zzz:eth2", name)
}

func TestNormalizeLink_SwapsWhenSourceSortsAfterTarget(t *testing.T) {
	// Scenario from spec section 8 #6: source "zzz" > target "aaa", so the
	// canonical form swaps them, and callers must swap every other
	// source/target-keyed field (IPs, indices) to match.
	name, swapped := NormalizeLink("zzz", "eth1", "aaa", "eth2")
	require.True(t, swapped)
	require.Equal(t, "aaa:eth2-zzz:eth1", name)
}

func TestLink_Canonicalize(t *testing.T) {
	l := Link{
		A: Endpoint{Node: "zzz", Interface: "eth1"},
		B: Endpoint{Node: "aaa", Interface: "eth2"},
	}
	c := l.Canonicalize()
	require.Equal(t, "aaa", c.A.Node)
	require.Equal(t, "eth2", c.A.Interface)
	require.Equal(t, "zzz", c.B.Node)
	require.Equal(t, "eth1", c.B.Interface)
	require.Equal(t, "aaa:eth2-zzz:eth1", c.Name())
}

func TestCanonicalLinkName_IdempotentReimport(t *testing.T) {
	// Importing the same graph twice must produce the same link name both
	// times, regardless of which endpoint happens to be listed first.
	seen := make(map[string]int)
	for _, pass := range [][4]string{
		{"aaa", "eth1", "zzz", "eth2"},
		{"zzz", "eth2", "aaa", "eth1"},
	} {
		name := CanonicalLinkName(pass[0], pass[1], pass[2], pass[3])
		seen[name]++
	}
	require.Len(t, seen, 1)
	for _, count := range seen {
		require.Equal(t, 2, count)
	}
}
