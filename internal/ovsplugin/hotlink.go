package ovsplugin

import (
	"context"
	"fmt"

	"github.com/archetype-labs/agent/internal/apierr"
)

// RegisterEndpoint records which (node, interface) a tracked endpoint
// belongs to, once the caller (internal/dockerprovider, after attaching a
// container to a network) knows the container name and node identity.
// CreateEndpoint alone can't know this — libnetwork's Options don't carry
// it — so the provider calls back in after Join succeeds.
func (p *Plugin) RegisterEndpoint(networkID, nodeName, containerName string) error {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	var ep *endpoint
	for _, e := range p.state.endpoints {
		if e.NetworkID == networkID {
			ep = e
			break
		}
	}
	if ep == nil {
		return fmt.Errorf("no tracked endpoint for network %s", networkID)
	}

	ep.NodeName = nodeName
	ep.ContainerName = containerName
	p.state.byIface[qualify(nodeName, ep.InterfaceName)] = ep.EndpointID
	p.persistLocked()
	return nil
}

func (p *Plugin) lookupEndpoint(node, iface string) (*endpoint, error) {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	id, ok := p.state.byIface[qualify(node, iface)]
	if !ok {
		return nil, apierr.New(apierr.KindValidation, fmt.Sprintf("no tracked endpoint for %s:%s", node, iface))
	}
	ep, ok := p.state.endpoints[id]
	if !ok {
		return nil, apierr.New(apierr.KindValidation, fmt.Sprintf("stale endpoint reference for %s:%s", node, iface))
	}
	return ep, nil
}

// labOfNode resolves the lab a (node,iface) endpoint belongs to via its
// network's lab_id, used to reject cross-lab hot-connect requests.
func (p *Plugin) labOfNode(node, iface string) (string, error) {
	ep, err := p.lookupEndpoint(node, iface)
	if err != nil {
		return "", err
	}
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.labOf(ep.NetworkID), nil
}

// HotConnect sets matching VLAN tags on two endpoints' OVS ports so they
// L2-bridge together, per spec section 4.3/4.4. Both endpoints must belong
// to labID and must have a tracked OVS port; cross-lab bleed is refused.
func (p *Plugin) HotConnect(ctx context.Context, labID, nodeA, ifaceA, nodeB, ifaceB string) error {
	epA, err := p.lookupEndpoint(nodeA, ifaceA)
	if err != nil {
		return err
	}
	epB, err := p.lookupEndpoint(nodeB, ifaceB)
	if err != nil {
		return err
	}

	labA, err := p.labOfNode(nodeA, ifaceA)
	if err != nil {
		return err
	}
	labB, err := p.labOfNode(nodeB, ifaceB)
	if err != nil {
		return err
	}
	if labA != labID || labB != labID {
		return apierr.New(apierr.KindValidation, "hot-connect endpoints must belong to the requesting lab")
	}

	// Retag B onto A's tag; A keeps its existing tag, so reconnecting a
	// previously-disconnected link doesn't disturb any other link still
	// sharing A's tag.
	if err := p.Bridge.SetTag(ctx, epB.HostVeth, epA.VLANTag); err != nil {
		return fmt.Errorf("retag %s onto %d: %w", epB.HostVeth, epA.VLANTag, err)
	}

	p.state.mu.Lock()
	epB.VLANTag = epA.VLANTag
	p.persistLocked()
	p.state.mu.Unlock()
	return nil
}

// HotDisconnect gives each endpoint of a link its own fresh VLAN tag,
// isolating them from each other and from every other live tag.
func (p *Plugin) HotDisconnect(ctx context.Context, labID, nodeA, ifaceA, nodeB, ifaceB string) error {
	for _, side := range [][2]string{{nodeA, ifaceA}, {nodeB, ifaceB}} {
		ep, err := p.lookupEndpoint(side[0], side[1])
		if err != nil {
			return err
		}
		tag, err := p.VLAN.Allocate(ctx)
		if err != nil {
			return fmt.Errorf("allocate isolation tag: %w", err)
		}
		if err := p.Bridge.SetTag(ctx, ep.HostVeth, tag); err != nil {
			p.VLAN.Release(tag)
			return fmt.Errorf("retag %s: %w", ep.HostVeth, err)
		}
		p.state.mu.Lock()
		p.VLAN.Release(ep.VLANTag)
		ep.VLANTag = tag
		p.persistLocked()
		p.state.mu.Unlock()
	}
	return nil
}

// Isolate simulates a cable disconnect on one interface: fresh unique VLAN
// tag plus (by the caller, which has netns access) carrier-off.
func (p *Plugin) Isolate(ctx context.Context, node, iface string) error {
	ep, err := p.lookupEndpoint(node, iface)
	if err != nil {
		return err
	}
	tag, err := p.VLAN.Allocate(ctx)
	if err != nil {
		return fmt.Errorf("allocate isolation tag: %w", err)
	}
	if err := p.Bridge.SetTag(ctx, ep.HostVeth, tag); err != nil {
		p.VLAN.Release(tag)
		return fmt.Errorf("retag %s: %w", ep.HostVeth, err)
	}
	p.state.mu.Lock()
	p.VLAN.Release(ep.VLANTag)
	ep.VLANTag = tag
	p.persistLocked()
	p.state.mu.Unlock()
	return nil
}

// EndpointPort returns the container-side veth name for a tracked (node,
// iface) endpoint (its name before Docker renames it into the container's
// netns on Join), so the caller can bring the container-side carrier back
// up or down inside the container's netns.
func (p *Plugin) EndpointPort(node, iface string) (string, error) {
	ep, err := p.lookupEndpoint(node, iface)
	if err != nil {
		return "", err
	}
	return ep.ContVeth, nil
}

// HostVeth returns the OVS-attached host-side veth name for a tracked
// (node, iface) endpoint, used to resolve the peer ifindex when renaming
// the matching interface inside the container's netns (spec section 4.2
// step 8).
func (p *Plugin) HostVeth(node, iface string) (string, error) {
	ep, err := p.lookupEndpoint(node, iface)
	if err != nil {
		return "", err
	}
	return ep.HostVeth, nil
}
