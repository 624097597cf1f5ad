// Package ovsctl wraps ovs-vsctl/ovs-ofctl subprocess invocations. Per spec
// section 6, all OVS interaction goes through these two CLI tools — no
// libovsdb linkage is required or used.
package ovsctl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/archetype-labs/agent/internal/executil"
)

// ownedExternalID is set on every port this package creates, so
// reconciliation (internal/ovsplugin) can distinguish ports it owns from
// ones an operator created by hand that happen to share a name prefix —
// resolving the ownership-tag open question from spec section 9.
const ownedExternalID = "archetype-owned"

// Client drives ovs-vsctl/ovs-ofctl for a single named bridge.
type Client struct {
	Bridge string
}

func New(bridge string) *Client {
	return &Client{Bridge: bridge}
}

// Name returns the bridge name this client drives.
func (c *Client) Name() string {
	return c.Bridge
}

// EnsureBridge creates the bridge if it doesn't exist, sets fail-mode to
// standalone, installs the default "priority=1,actions=normal" flow so
// untagged traffic still switches normally, and brings the bridge
// interface up. Idempotent.
func (c *Client) EnsureBridge(ctx context.Context) error {
	exists, err := executil.RunWithOutput(ctx, "ovs-vsctl", "br-exists", c.Bridge)
	_ = exists
	if err != nil {
		if executil.ExitCode(err) != 2 {
			return fmt.Errorf("check bridge exists: %w", err)
		}
		if err := executil.Run(ctx, "ovs-vsctl", "add-br", c.Bridge); err != nil {
			return fmt.Errorf("create bridge %s: %w", c.Bridge, err)
		}
	}

	if err := executil.Run(ctx, "ovs-vsctl", "set-fail-mode", c.Bridge, "standalone"); err != nil {
		return fmt.Errorf("set fail-mode: %w", err)
	}

	if err := executil.Run(ctx, "ovs-ofctl", "add-flow", c.Bridge, "priority=1,actions=normal"); err != nil {
		return fmt.Errorf("install default flow: %w", err)
	}

	if err := executil.Run(ctx, "ip", "link", "set", c.Bridge, "up"); err != nil {
		return fmt.Errorf("bring bridge up: %w", err)
	}

	return nil
}

// ForBridge returns a Client for a different bridge name, sharing no state
// with c. Used during legacy per-lab bridge migration (spec section 4.5
// step 5), where the agent must drive both the legacy bridge and the
// shared bridge.
func (c *Client) ForBridge(name string) *Client {
	return New(name)
}

// DestroyIfEmpty deletes the bridge if it has no ports left, used once a
// legacy per-lab bridge has had every port migrated off it.
func (c *Client) DestroyIfEmpty(ctx context.Context) error {
	ports, err := c.PortNames(ctx)
	if err != nil {
		return err
	}
	if len(ports) > 0 {
		return fmt.Errorf("bridge %s still has %d port(s)", c.Bridge, len(ports))
	}
	if err := executil.Run(ctx, "ovs-vsctl", "--if-exists", "del-br", c.Bridge); err != nil {
		return fmt.Errorf("delete bridge %s: %w", c.Bridge, err)
	}
	return nil
}

// BridgeExists reports whether the OVS bridge currently exists.
func (c *Client) BridgeExists(ctx context.Context) (bool, error) {
	_, err := executil.RunWithOutput(ctx, "ovs-vsctl", "br-exists", c.Bridge)
	if err == nil {
		return true, nil
	}
	if executil.ExitCode(err) == 2 {
		return false, nil
	}
	return false, err
}

// AddPort attaches an existing network interface (e.g. a veth host side)
// to the bridge, tagging it with vlan, and marks it as owned by this
// agent via an external-id.
func (c *Client) AddPort(ctx context.Context, port string, vlanTag int) error {
	if err := executil.Run(ctx, "ovs-vsctl", "--may-exist", "add-port", c.Bridge, port,
		"tag="+strconv.Itoa(vlanTag),
		"--", "set", "Interface", port, "external-ids:"+ownedExternalID+"=1",
	); err != nil {
		return fmt.Errorf("add port %s: %w", port, err)
	}
	return nil
}

// DelPort removes a port from the bridge. Idempotent: a missing port is
// not an error.
func (c *Client) DelPort(ctx context.Context, port string) error {
	if err := executil.Run(ctx, "ovs-vsctl", "--if-exists", "del-port", c.Bridge, port); err != nil {
		return fmt.Errorf("del port %s: %w", port, err)
	}
	return nil
}

// SetTag sets an existing port's VLAN tag, used by hot-connect/
// hot-disconnect/isolate/restore to retag ports without touching the
// underlying veth.
func (c *Client) SetTag(ctx context.Context, port string, vlanTag int) error {
	if err := executil.Run(ctx, "ovs-vsctl", "set", "Port", port, "tag="+strconv.Itoa(vlanTag)); err != nil {
		return fmt.Errorf("set tag on %s: %w", port, err)
	}
	return nil
}

// PortTag returns the current VLAN tag of port, or 0 if untagged.
func (c *Client) PortTag(ctx context.Context, port string) (int, error) {
	out, err := executil.RunWithOutput(ctx, "ovs-vsctl", "get", "Port", port, "tag")
	if err != nil {
		return 0, fmt.Errorf("get tag for %s: %w", port, err)
	}
	return parseOptionalInt(out)
}

// SetPortOption sets a column=value option on a port, used for
// df_default=false on VXLAN tunnel ports (spec section 6).
func (c *Client) SetInterfaceOption(ctx context.Context, iface, key, value string) error {
	if err := executil.Run(ctx, "ovs-vsctl", "set", "Interface", iface, fmt.Sprintf("options:%s=%s", key, value)); err != nil {
		return fmt.Errorf("set interface option %s=%s on %s: %w", key, value, iface, err)
	}
	return nil
}

// PortNames lists every port currently attached to the bridge.
func (c *Client) PortNames(ctx context.Context) ([]string, error) {
	out, err := executil.RunWithOutput(ctx, "ovs-vsctl", "list-ports", c.Bridge)
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// IsOwnedPort reports whether the bridge marked port with the
// agent-owned external-id, per the ownership-tag decision in DESIGN.md.
func (c *Client) IsOwnedPort(ctx context.Context, port string) (bool, error) {
	out, err := executil.RunWithOutput(ctx, "ovs-vsctl", "get", "Interface", port, "external-ids:"+ownedExternalID)
	if err != nil {
		if strings.Contains(err.Error(), "no key") {
			return false, nil
		}
		return false, fmt.Errorf("get external-ids for %s: %w", port, err)
	}
	return strings.TrimSpace(out) == `"1"`, nil
}

// TagsInUse implements vlan.BridgeTagSource: it returns every VLAN tag
// currently set on any port of the bridge, so the allocator never hands
// out a tag that's already live.
func (c *Client) TagsInUse(ctx context.Context) (map[int]struct{}, error) {
	out, err := executil.RunWithOutput(ctx, "ovs-vsctl", "--format=csv", "--no-headings",
		"--columns=tag", "list", "Port")
	if err != nil {
		return nil, fmt.Errorf("list port tags: %w", err)
	}

	tags := make(map[int]struct{})
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tag, err := strconv.Atoi(line)
		if err != nil {
			continue // empty/"[]" for untagged ports
		}
		tags[tag] = struct{}{}
	}
	return tags, nil
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "[]" || raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
