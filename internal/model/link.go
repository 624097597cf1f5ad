package model

import "fmt"

// qualifiedIfaceName renders "node:iface" for lexicographic comparison,
// matching the Python source's sort key exactly (spec section 3/8).
func qualifiedIfaceName(node, iface string) string {
	return node + ":" + iface
}

// CanonicalLinkName computes a link's identity string: the two
// "node:iface" endpoints sorted lexicographically and joined with "-".
// generate_link_name(A,a,B,b) == generate_link_name(B,b,A,a), so importing
// the same graph twice never creates a duplicate link (spec section 8).
func CanonicalLinkName(nodeA, ifaceA, nodeB, ifaceB string) string {
	a, b := qualifiedIfaceName(nodeA, ifaceA), qualifiedIfaceName(nodeB, ifaceB)
	if a <= b {
		return a + "-" + b
	}
	return b + "-" + a
}

// NormalizeLink returns the canonical link name along with the endpoints
// in canonical (sorted) order. When the caller's original source endpoint
// sorts after the target endpoint, the two are swapped — and the caller
// MUST swap every other source/target-keyed field (IP addresses, interface
// indices, etc.) to match, or the fields will describe the wrong endpoint.
// This is the fix validated by the "re-import is idempotent" and
// "canonical link import" scenarios in spec section 8.
func NormalizeLink(nodeA, ifaceA, nodeB, ifaceB string) (canonicalName string, swapped bool) {
	a, b := qualifiedIfaceName(nodeA, ifaceA), qualifiedIfaceName(nodeB, ifaceB)
	if a <= b {
		return a + "-" + b, false
	}
	return b + "-" + a, true
}

// Canonicalize returns a new Link with A and B ordered canonically (A's
// qualified name sorts <= B's). ID is left untouched; callers that need a
// fresh or preserved link ID set it separately.
func (l Link) Canonicalize() Link {
	_, swapped := NormalizeLink(l.A.Node, l.A.Interface, l.B.Node, l.B.Interface)
	if swapped {
		l.A, l.B = l.B, l.A
	}
	return l
}

// Name returns this link's canonical identity string.
func (l Link) Name() string {
	return CanonicalLinkName(l.A.Node, l.A.Interface, l.B.Node, l.B.Interface)
}

// String implements fmt.Stringer for log-friendly output.
func (l Link) String() string {
	return fmt.Sprintf("Link(%s)", l.Name())
}
