// Package overlay manages cross-host VXLAN tunnels that bridge a lab's
// VLAN onto the underlay network, per spec sections 4.1 and 6.
package overlay

import (
	"context"
	"fmt"

	"github.com/archetype-labs/agent/internal/ovsctl"
	"github.com/vishvananda/netlink"
)

const (
	// MinVNI and MaxVNI bound the VNI range the controller owns
	// (spec section 9's allocator-owned VXLAN VNI space). The agent
	// never chooses a VNI itself, but it validates the one it's handed
	// falls in range before creating a tunnel — section 9 calls out that
	// this validation is "documented but not enforced" upstream and
	// should be enforced on the agent.
	MinVNI = 100000
	MaxVNI = 199999

	// defaultDstPort is the VXLAN UDP destination port (IANA-assigned).
	defaultDstPort = 4789

	// tunnelNamePrefix names tunnel interfaces so SweepOrphanPorts and
	// reconcile-ports can recognize them.
	tunnelNamePrefix = "vxlan"
)

// Tunnel describes one VXLAN link between this host and a remote peer,
// carrying traffic for a single lab's VLAN.
type Tunnel struct {
	LabID    string
	VNI      int
	LocalIP  string
	RemoteIP string
	VLANTag  int
}

// InterfaceName is the deterministic name of the tunnel's network
// interface, derived from its VNI so it's recoverable from OVS port
// listings during reconciliation.
func (t Tunnel) InterfaceName() string {
	return fmt.Sprintf("%s%d", tunnelNamePrefix, t.VNI)
}

// Manager creates and tears down VXLAN tunnels and trunks them onto the
// shared OVS bridge.
type Manager struct {
	Bridge *ovsctl.Client
}

func NewManager(bridge *ovsctl.Client) *Manager {
	return &Manager{Bridge: bridge}
}

// ValidateVNI rejects VNIs outside the legal VXLAN identifier range.
func ValidateVNI(vni int) error {
	if vni < MinVNI || vni > MaxVNI {
		return fmt.Errorf("vni %d out of range [%d, %d]", vni, MinVNI, MaxVNI)
	}
	return nil
}

// CreateTunnel brings up a VXLAN interface for t and attaches it to the
// shared bridge tagged with t.VLANTag, per spec section 6: "created via
// `ip link add {name} type vxlan id {vni} local {ip} remote {ip} dstport
// {port}`", with `df_default=false` on the resulting OVS port so underlay
// routers are free to fragment rather than capping overlay MTU.
func (m *Manager) CreateTunnel(ctx context.Context, t Tunnel) error {
	if err := ValidateVNI(t.VNI); err != nil {
		return err
	}

	name := t.InterfaceName()

	local, err := parseIP(t.LocalIP)
	if err != nil {
		return fmt.Errorf("local ip: %w", err)
	}
	remote, err := parseIP(t.RemoteIP)
	if err != nil {
		return fmt.Errorf("remote ip: %w", err)
	}

	link := &netlink.Vxlan{
		LinkAttrs: netlink.LinkAttrs{
			Name: name,
		},
		VxlanId:  t.VNI,
		Group:    remote,
		SrcAddr:  local,
		Port:     defaultDstPort,
		Learning: true,
	}

	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("create vxlan %s: %w", name, err)
	}

	iface, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup vxlan %s after create: %w", name, err)
	}
	if err := netlink.LinkSetUp(iface); err != nil {
		return fmt.Errorf("set %s up: %w", name, err)
	}

	if err := m.Bridge.AddPort(ctx, name, t.VLANTag); err != nil {
		return fmt.Errorf("attach %s to bridge: %w", name, err)
	}
	if err := m.Bridge.SetInterfaceOption(ctx, name, "df_default", "false"); err != nil {
		return fmt.Errorf("set df_default=false on %s: %w", name, err)
	}

	return nil
}

// DeleteTunnel removes a VXLAN tunnel's OVS port and its network
// interface. Idempotent.
func (m *Manager) DeleteTunnel(ctx context.Context, t Tunnel) error {
	name := t.InterfaceName()

	if err := m.Bridge.DelPort(ctx, name); err != nil {
		return fmt.Errorf("detach %s from bridge: %w", name, err)
	}

	link, err := netlink.LinkByName(name)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("lookup vxlan %s for delete: %w", name, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("delete vxlan %s: %w", name, err)
	}
	return nil
}

// AttachExternal trunks an existing physical interface onto a lab's VLAN,
// for bridging a lab's network onto an external segment.
func (m *Manager) AttachExternal(ctx context.Context, iface string, vlanTag int) error {
	if err := m.Bridge.AddPort(ctx, iface, vlanTag); err != nil {
		return fmt.Errorf("attach external interface %s: %w", iface, err)
	}
	return nil
}

// DetachExternal removes a previously attached external interface from
// the bridge without touching the interface itself (it isn't ours to
// delete).
func (m *Manager) DetachExternal(ctx context.Context, iface string) error {
	if err := m.Bridge.DelPort(ctx, iface); err != nil {
		return fmt.Errorf("detach external interface %s: %w", iface, err)
	}
	return nil
}

// ReconcilePorts deletes every VXLAN tunnel port on the bridge not named
// in validPortNames (spec section 4.1's `/overlay/reconcile-ports`).
// Callers are responsible for enforcing the force/confirm/allow_empty
// guard on an empty validPortNames before calling this.
func (m *Manager) ReconcilePorts(ctx context.Context, validPortNames map[string]struct{}) (removed []string, err error) {
	ports, err := m.Bridge.PortNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, port := range ports {
		if len(port) < len(tunnelNamePrefix) || port[:len(tunnelNamePrefix)] != tunnelNamePrefix {
			continue
		}
		if _, ok := validPortNames[port]; ok {
			continue
		}
		if err := m.Bridge.DelPort(ctx, port); err != nil {
			return removed, fmt.Errorf("delete stale tunnel port %s: %w", port, err)
		}
		removed = append(removed, port)
	}
	return removed, nil
}
