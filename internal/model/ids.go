package model

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID mints a time-ordered, lexicographically sortable ID — used for
// endpoints, tunnels, and controller jobs where "when was this created"
// matters for log correlation.
func NewULID() string {
	return ulid.Make().String()
}

// NewUUID mints a random v4 UUID — used for lab/node IDs, where no
// ordering property is needed and callers (the controller's API layer)
// expect the conventional UUID shape.
func NewUUID() string {
	return uuid.NewString()
}

// shortToken generates a random lowercase-alphanumeric token of length n,
// used for veth pair name suffixes (vhXXXXXX/vcXXXXXX), which must fit in
// the kernel's 15-character IFNAMSIZ limit and so can't use a ULID/UUID.
func shortToken(n int) (string, error) {
	const alphabet = "0123456789abcdef"
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("generate short token: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// NewVethNames generates a unique (host, container)-side veth pair name,
// each at most 15 characters (IFNAMSIZ), per spec section 4.3.
func NewVethNames() (host, cont string, err error) {
	suffix, err := shortToken(6)
	if err != nil {
		return "", "", err
	}
	return "vh" + suffix, "vc" + suffix, nil
}
