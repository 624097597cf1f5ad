package ovsplugin

import (
	"context"
	"fmt"
	"strings"
)

// legacyBridgePrefix is the naming pattern of per-lab bridges created by
// the design this plugin replaces (spec section 4.5 step 5).
const legacyBridgePrefix = "ovs-"

// Load reconciles in-memory state with the persisted snapshot and OVS
// reality, per spec section 4.5 steps 1-3. Step 4 (async reconnect queue,
// orphan port sweep) and step 5 (legacy bridge migration) run separately
// once the HTTP listener is up, via Reconcile.
func (p *Plugin) Load(ctx context.Context) error {
	snap, err := p.Store.Load()
	if err != nil {
		p.log.WithError(err).Error("load persisted ovs plugin state; starting empty")
		snap = nil
	}
	if snap == nil {
		return p.Bridge.EnsureBridge(ctx)
	}

	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	p.state.nextMgmtSubnetIdx = snap.NextMgmtSubnetIdx

	for _, lb := range snap.LabBridges {
		b := p.state.bridgeFor(lb.LabID)
		b.LastActivity = lb.LastActivity
		for _, id := range lb.NetworkIDs {
			b.NetworkIDs[id] = struct{}{}
		}
		for _, vni := range lb.Tunnels {
			b.Tunnels[vni] = struct{}{}
		}
		for iface, tag := range lb.ExternalVLAN {
			b.ExternalVLAN[iface] = tag
		}
	}
	for _, n := range snap.Networks {
		p.state.networks[n.NetworkID] = &network{
			NetworkID:     n.NetworkID,
			LabID:         n.LabID,
			InterfaceName: n.InterfaceName,
		}
	}
	for _, e := range snap.Endpoints {
		p.state.endpoints[e.EndpointID] = &endpoint{
			EndpointID:    e.EndpointID,
			NetworkID:     e.NetworkID,
			InterfaceName: e.InterfaceName,
			HostVeth:      e.HostVeth,
			ContVeth:      e.ContVeth,
			VLANTag:       e.VLANTag,
			ContainerName: e.ContainerName,
		}
		p.VLAN.Reserve(e.VLANTag)
	}

	if len(p.state.labBridges) > 0 {
		if err := p.Bridge.EnsureBridge(ctx); err != nil {
			return err
		}
	}

	return nil
}

// StaleEndpoint is an endpoint whose host veth has disappeared since the
// last run — its container likely still exists but Docker's record of the
// attachment does, or does not, match reality.
type StaleEndpoint struct {
	EndpointID    string
	NetworkID     string
	ContainerName string
}

// FindStaleEndpoints implements spec section 4.5 step 3: for each tracked
// endpoint, check whether its host veth still exists. Missing + has a
// recorded container -> queue for reconnect; missing + no container ->
// drop from state outright.
func (p *Plugin) FindStaleEndpoints() ([]StaleEndpoint, error) {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	var stale []StaleEndpoint
	for id, ep := range p.state.endpoints {
		exists, err := vethExists(ep.HostVeth)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if ep.ContainerName != "" {
			stale = append(stale, StaleEndpoint{
				EndpointID:    id,
				NetworkID:     ep.NetworkID,
				ContainerName: ep.ContainerName,
			})
		} else {
			delete(p.state.endpoints, id)
		}
	}
	p.persistLocked()
	return stale, nil
}

// SweepOrphanPorts implements spec section 4.5 step 4's orphan scan: every
// OVS port whose name looks like a container veth (the vh-prefixed host
// side this plugin creates) but isn't referenced by any tracked endpoint
// is removed.
func (p *Plugin) SweepOrphanPorts(ctx context.Context) (removed []string, err error) {
	ports, err := p.Bridge.PortNames(ctx)
	if err != nil {
		return nil, err
	}

	p.state.mu.Lock()
	tracked := make(map[string]struct{}, len(p.state.endpoints))
	for _, ep := range p.state.endpoints {
		tracked[ep.HostVeth] = struct{}{}
	}
	p.state.mu.Unlock()

	for _, port := range ports {
		if !strings.HasPrefix(port, "vh") {
			continue
		}
		if _, ok := tracked[port]; ok {
			continue
		}
		owned, err := p.Bridge.IsOwnedPort(ctx, port)
		if err != nil {
			p.log.WithError(err).WithField("port", port).Warn("check orphan port ownership")
			continue
		}
		if !owned {
			continue
		}
		if err := p.Bridge.DelPort(ctx, port); err != nil {
			p.log.WithError(err).WithField("port", port).Warn("delete orphan port")
			continue
		}
		removed = append(removed, port)
	}
	return removed, nil
}

// MigrateLegacyBridges implements spec section 4.5 step 5: move every port
// off any bridge named ovs-{labprefix} onto the shared bridge, preserving
// its VLAN tag, then delete the legacy bridge once it's empty.
func (p *Plugin) MigrateLegacyBridges(ctx context.Context, legacyBridges []string) error {
	if p.BridgeFactory == nil {
		return fmt.Errorf("migrate legacy bridges: no bridge factory configured")
	}
	for _, name := range legacyBridges {
		if !strings.HasPrefix(name, legacyBridgePrefix) {
			continue
		}
		legacy := p.BridgeFactory(name)
		ports, err := legacy.PortNames(ctx)
		if err != nil {
			p.log.WithError(err).WithField("bridge", name).Warn("list legacy bridge ports")
			continue
		}
		for _, port := range ports {
			tag, err := legacy.PortTag(ctx, port)
			if err != nil {
				p.log.WithError(err).WithField("port", port).Warn("read legacy port tag")
				continue
			}
			if err := legacy.DelPort(ctx, port); err != nil {
				p.log.WithError(err).WithField("port", port).Warn("detach legacy port")
				continue
			}
			if err := p.Bridge.AddPort(ctx, port, tag); err != nil {
				p.log.WithError(err).WithField("port", port).Error("reattach legacy port to shared bridge")
				continue
			}
		}
		if err := legacy.DestroyIfEmpty(ctx); err != nil {
			p.log.WithError(err).WithField("bridge", name).Warn("destroy drained legacy bridge")
		}
	}
	return nil
}
