package dockerprovider

import (
	"context"
	"fmt"
	"runtime"

	"github.com/archetype-labs/agent/internal/model"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// renameInterfaces implements spec section 4.2 step 8: Docker's own
// auto-numbering of attached interfaces depends on attach order and is
// frequently wrong, so once the container is running we enter its net
// namespace, find each interface by matching ifindex against the
// OVS-side veth peer, and rename it to the canonical eth1..N order the
// caller attached networks in.
func (p *Provider) renameInterfaces(ctx context.Context, containerID, labID string, node model.Node, netNames []string) error {
	pid, err := p.docker.ContainerPID(ctx, containerID)
	if err != nil {
		return fmt.Errorf("resolve container pid: %w", err)
	}

	hostNS, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get host netns: %w", err)
	}
	defer hostNS.Close()

	contNS, err := netns.GetFromPid(pid)
	if err != nil {
		return fmt.Errorf("get container netns: %w", err)
	}
	defer contNS.Close()

	for i, netName := range netNames {
		ifaceName := fmt.Sprintf("eth%d", i+1)
		port, err := p.plugin.HostVeth(node.Name, ifaceName)
		if err != nil {
			p.log.WithError(err).WithField("iface", ifaceName).Warn("no tracked OVS port for interface, skipping rename")
			continue
		}
		if err := renamePeerInterface(hostNS, contNS, port, ifaceName); err != nil {
			p.log.WithError(err).WithFields(map[string]any{
				"network": netName, "iface": ifaceName,
			}).Warn("rename container interface to canonical name")
		}
	}
	return nil
}

// SetInterfaceCarrier brings an interface up or down inside containerID's
// net namespace, the "clearing the interface carrier" half of interface
// isolate/restore (spec section 4.1): simulating a cable disconnect needs
// both a fresh VLAN tag (internal/ovsplugin.Plugin.Isolate) and the
// container's own view of the link going down.
func (p *Provider) SetInterfaceCarrier(ctx context.Context, containerID, ifaceName string, up bool) error {
	pid, err := p.docker.ContainerPID(ctx, containerID)
	if err != nil {
		return fmt.Errorf("resolve container pid: %w", err)
	}

	contNS, err := netns.GetFromPid(pid)
	if err != nil {
		return fmt.Errorf("get container netns: %w", err)
	}
	defer contNS.Close()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origNS, err := netns.Get()
	if err != nil {
		return fmt.Errorf("snapshot current netns: %w", err)
	}
	defer netns.Set(origNS)

	if err := netns.Set(contNS); err != nil {
		return fmt.Errorf("enter container netns: %w", err)
	}

	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return fmt.Errorf("find interface %s: %w", ifaceName, err)
	}
	if up {
		return netlink.LinkSetUp(link)
	}
	return netlink.LinkSetDown(link)
}

// renamePeerInterface finds the peer ifindex of the OVS-side veth hostVeth
// (which lives in the host namespace), then locates the interface with
// that ifindex inside the container's namespace, downs it, renames it to
// target, and brings it back up. "File exists" is handled by renaming the
// conflicting interface aside first, per spec section 4.2 step 8.
func renamePeerInterface(hostNS, contNS netns.NsHandle, hostVeth, target string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origNS, err := netns.Get()
	if err != nil {
		return fmt.Errorf("snapshot current netns: %w", err)
	}
	defer netns.Set(origNS)

	if err := netns.Set(hostNS); err != nil {
		return fmt.Errorf("enter host netns: %w", err)
	}
	link, err := netlink.LinkByName(hostVeth)
	if err != nil {
		return fmt.Errorf("find host veth %s: %w", hostVeth, err)
	}
	veth, ok := link.(*netlink.Veth)
	if !ok {
		return fmt.Errorf("%s is not a veth", hostVeth)
	}
	peerIndex, err := netlink.VethPeerIndex(veth)
	if err != nil {
		return fmt.Errorf("resolve peer ifindex for %s: %w", hostVeth, err)
	}

	if err := netns.Set(contNS); err != nil {
		return fmt.Errorf("enter container netns: %w", err)
	}
	defer netns.Set(hostNS)

	contLink, err := netlink.LinkByIndex(peerIndex)
	if err != nil {
		return fmt.Errorf("find container-side peer ifindex %d: %w", peerIndex, err)
	}
	if contLink.Attrs().Name == target {
		return nil
	}

	if conflict, err := netlink.LinkByName(target); err == nil {
		aside := target + "-old"
		if err := netlink.LinkSetDown(conflict); err == nil {
			_ = netlink.LinkSetName(conflict, aside)
		}
	}

	if err := netlink.LinkSetDown(contLink); err != nil {
		return fmt.Errorf("down %s: %w", contLink.Attrs().Name, err)
	}
	if err := netlink.LinkSetName(contLink, target); err != nil {
		return fmt.Errorf("rename %s to %s: %w", contLink.Attrs().Name, target, err)
	}
	if err := netlink.LinkSetUp(contLink); err != nil {
		return fmt.Errorf("up %s: %w", target, err)
	}
	return nil
}
