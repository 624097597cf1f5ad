package ovsplugin

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

const vethMTU = 1500

// createVeth creates a veth pair named host/cont and brings the host side
// up. The container side is left down; Docker's libnetwork moves it into
// the target netns and renames it before bringing it up.
func createVeth(host, cont string) error {
	link := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{
			Name: host,
			MTU:  vethMTU,
		},
		PeerName: cont,
	}

	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("create veth %s/%s: %w", host, cont, err)
	}

	hostLink, err := netlink.LinkByName(host)
	if err != nil {
		return fmt.Errorf("lookup host veth %s after create: %w", host, err)
	}
	if err := netlink.LinkSetUp(hostLink); err != nil {
		return fmt.Errorf("set %s up: %w", host, err)
	}
	return nil
}

// deleteVeth removes the host side of a veth pair; the kernel deletes the
// peer automatically. Missing-link is not an error: Leave/DeleteEndpoint
// must be idempotent (spec section 4.3).
func deleteVeth(host string) error {
	link, err := netlink.LinkByName(host)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("lookup veth %s for delete: %w", host, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("delete veth %s: %w", host, err)
	}
	return nil
}

// vethExists reports whether name is present under /sys/class/net via
// netlink, used by state reconciliation (spec section 4.5 step 3).
func vethExists(name string) (bool, error) {
	_, err := netlink.LinkByName(name)
	if err == nil {
		return true, nil
	}
	if _, ok := err.(netlink.LinkNotFoundError); ok {
		return false, nil
	}
	return false, fmt.Errorf("lookup link %s: %w", name, err)
}
