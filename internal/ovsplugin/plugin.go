package ovsplugin

import (
	"context"
	"fmt"

	"github.com/archetype-labs/agent/internal/model"
	"github.com/archetype-labs/agent/internal/persistence"
	"github.com/archetype-labs/agent/internal/vlan"
	"github.com/sirupsen/logrus"
)

// Plugin is the Docker network-driver plugin: it answers libnetwork's RPC
// calls and keeps State, the shared OVS bridge, and the on-disk snapshot
// in sync (spec section 4.3).
type Plugin struct {
	Name   string // driver name, used for the socket/spec file path
	Bridge bridgeController
	VLAN   *vlan.Allocator
	Store  *persistence.Store

	// BridgeFactory builds a bridgeController for a named legacy bridge,
	// used only by MigrateLegacyBridges. Defaults to producing an
	// *ovsctl.Client when left nil by callers outside this package's tests.
	BridgeFactory func(name string) bridgeController

	state *State
	log   *logrus.Entry
}

// New constructs a Plugin. Load should be called once before Serve to
// reconcile with any persisted state (spec section 4.5).
func New(name string, bridge bridgeController, allocator *vlan.Allocator, store *persistence.Store, log *logrus.Entry) *Plugin {
	return &Plugin{
		Name:   name,
		Bridge: bridge,
		VLAN:   allocator,
		Store:  store,
		state:  newState(),
		log:    log,
	}
}

func (p *Plugin) persistLocked() {
	snap := p.snapshotLocked()
	if err := p.Store.Save(snap); err != nil {
		p.log.WithError(err).Error("persist ovs plugin state")
	}
}

func (p *Plugin) snapshotLocked() persistence.Snapshot {
	snap := persistence.Snapshot{
		NextMgmtSubnetIdx: p.state.nextMgmtSubnetIdx,
	}
	for _, b := range p.state.labBridges {
		lb := persistence.LabBridgeSnapshot{
			LabID:        b.LabID,
			BridgeName:   p.Bridge.Name(),
			ExternalVLAN: cloneIntMap(b.ExternalVLAN),
			LastActivity: b.LastActivity,
		}
		for id := range b.NetworkIDs {
			lb.NetworkIDs = append(lb.NetworkIDs, id)
		}
		for vni := range b.Tunnels {
			lb.Tunnels = append(lb.Tunnels, vni)
		}
		snap.LabBridges = append(snap.LabBridges, lb)
	}
	for _, n := range p.state.networks {
		snap.Networks = append(snap.Networks, persistence.NetworkSnapshot{
			NetworkID:     n.NetworkID,
			LabID:         n.LabID,
			InterfaceName: n.InterfaceName,
			BridgeName:    p.Bridge.Name(),
		})
	}
	for _, e := range p.state.endpoints {
		snap.Endpoints = append(snap.Endpoints, persistence.EndpointSnapshot{
			EndpointID:    e.EndpointID,
			NetworkID:     e.NetworkID,
			InterfaceName: e.InterfaceName,
			HostVeth:      e.HostVeth,
			ContVeth:      e.ContVeth,
			VLANTag:       e.VLANTag,
			ContainerName: e.ContainerName,
		})
	}
	return snap
}

func cloneIntMap(m map[string]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Activate answers Plugin.Activate.
func (p *Plugin) Activate() activateResponse {
	return activateResponse{Implements: []string{"NetworkDriver"}}
}

// GetCapabilities answers NetworkDriver.GetCapabilities.
func (p *Plugin) GetCapabilities() capabilitiesResponse {
	return capabilitiesResponse{Scope: "local", ConnectivityScope: "local"}
}

// CreateNetwork ensures the shared bridge exists and registers a network
// record. lab_id and interface_name come from the network's Options, set
// by the caller when it creates the Docker network (the controller or
// dockerprovider embeds them as driver options).
func (p *Plugin) CreateNetwork(ctx context.Context, req createNetworkRequest) error {
	labID, ifaceName, err := parseNetworkOptions(req.Options)
	if err != nil {
		return err
	}

	if err := p.Bridge.EnsureBridge(ctx); err != nil {
		return fmt.Errorf("ensure bridge: %w", err)
	}

	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	p.state.networks[req.NetworkID] = &network{
		NetworkID:     req.NetworkID,
		LabID:         labID,
		InterfaceName: ifaceName,
	}
	b := p.state.bridgeFor(labID)
	b.NetworkIDs[req.NetworkID] = struct{}{}

	p.persistLocked()
	return nil
}

func parseNetworkOptions(opts map[string]any) (labID, ifaceName string, err error) {
	generic, _ := opts["com.docker.network.generic"].(map[string]any)
	if generic == nil {
		generic = opts
	}
	labID, _ = generic["archetype.lab_id"].(string)
	ifaceName, _ = generic["archetype.interface_name"].(string)
	if labID == "" || ifaceName == "" {
		return "", "", fmt.Errorf("missing archetype.lab_id/archetype.interface_name network options")
	}
	return labID, ifaceName, nil
}

// DeleteNetwork drops the network registration. The shared bridge is
// never deleted — it also carries VXLAN tunnels for other labs.
func (p *Plugin) DeleteNetwork(req deleteNetworkRequest) error {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	n, ok := p.state.networks[req.NetworkID]
	if !ok {
		return nil // idempotent
	}
	delete(p.state.networks, req.NetworkID)
	if b, ok := p.state.labBridges[n.LabID]; ok {
		delete(b.NetworkIDs, req.NetworkID)
	}

	p.persistLocked()
	return nil
}

// CreateEndpoint provisions a veth pair, attaches the host side to the
// shared bridge with a freshly allocated VLAN tag, and records EndpointState.
func (p *Plugin) CreateEndpoint(ctx context.Context, req createEndpointRequest) (createEndpointResponse, error) {
	p.state.mu.Lock()
	n, ok := p.state.networks[req.NetworkID]
	p.state.mu.Unlock()
	if !ok {
		return createEndpointResponse{}, fmt.Errorf("unknown network %s", req.NetworkID)
	}

	host, cont, err := model.NewVethNames()
	if err != nil {
		return createEndpointResponse{}, fmt.Errorf("generate veth names: %w", err)
	}

	tag, err := p.VLAN.Allocate(ctx)
	if err != nil {
		return createEndpointResponse{}, fmt.Errorf("allocate vlan tag: %w", err)
	}

	if err := createVeth(host, cont); err != nil {
		p.VLAN.Release(tag)
		return createEndpointResponse{}, err
	}
	if err := p.Bridge.AddPort(ctx, host, tag); err != nil {
		p.VLAN.Release(tag)
		_ = deleteVeth(host)
		return createEndpointResponse{}, fmt.Errorf("attach %s to bridge: %w", host, err)
	}

	p.state.mu.Lock()
	p.state.endpoints[req.EndpointID] = &endpoint{
		EndpointID:    req.EndpointID,
		NetworkID:     req.NetworkID,
		InterfaceName: n.InterfaceName,
		HostVeth:      host,
		ContVeth:      cont,
		VLANTag:       tag,
	}
	p.persistLocked()
	p.state.mu.Unlock()

	return createEndpointResponse{}, nil
}

// DeleteEndpoint removes the OVS port and the veth pair, then drops the
// tracked EndpointState. Idempotent: deleting an unknown endpoint is a no-op.
func (p *Plugin) DeleteEndpoint(ctx context.Context, req deleteEndpointRequest) error {
	p.state.mu.Lock()
	ep, ok := p.state.endpoints[req.EndpointID]
	if ok {
		delete(p.state.endpoints, req.EndpointID)
		delete(p.state.byIface, qualify(ep.NodeName, ep.InterfaceName))
	}
	p.persistLocked()
	p.state.mu.Unlock()

	if !ok {
		return nil
	}

	if err := p.Bridge.DelPort(ctx, ep.HostVeth); err != nil {
		p.log.WithError(err).WithField("port", ep.HostVeth).Warn("delete ovs port")
	}
	if err := deleteVeth(ep.HostVeth); err != nil {
		p.log.WithError(err).WithField("veth", ep.HostVeth).Warn("delete veth")
	}
	p.VLAN.Release(ep.VLANTag)
	return nil
}

// Join tells Docker which interface to move into the container's netns
// and what prefix to rename it to.
func (p *Plugin) Join(req joinRequest) (joinResponse, error) {
	p.state.mu.Lock()
	ep, ok := p.state.endpoints[req.EndpointID]
	p.state.mu.Unlock()
	if !ok {
		return joinResponse{}, fmt.Errorf("unknown endpoint %s", req.EndpointID)
	}

	return joinResponse{
		InterfaceName: interfaceName{SrcName: ep.ContVeth, DstPrefix: dstPrefix},
	}, nil
}

// Leave, EndpointOperInfo, DiscoverNew, DiscoverDelete, and the
// Program*Connectivity calls are no-ops returning {} (spec section 4.3):
// there is no per-join teardown beyond what DeleteEndpoint already does,
// and this driver has no gossip/discovery or external connectivity state.

func (p *Plugin) Leave(req leaveRequest) error { return nil }

func (p *Plugin) EndpointOperInfo(req endpointOperInfoRequest) endpointOperInfoResponse {
	return endpointOperInfoResponse{Value: map[string]any{}}
}

func (p *Plugin) DiscoverNew() struct{}    { return struct{}{} }
func (p *Plugin) DiscoverDelete() struct{} { return struct{}{} }
func (p *Plugin) ProgramExternalConnectivity() struct{} { return struct{}{} }
func (p *Plugin) RevokeExternalConnectivity() struct{}  { return struct{}{} }
