package ovsplugin

import (
	"context"
	"testing"

	"github.com/archetype-labs/agent/internal/logging"
	"github.com/archetype-labs/agent/internal/persistence"
	"github.com/archetype-labs/agent/internal/vlan"
	"github.com/stretchr/testify/require"
)

// fakeBridge is an in-memory stand-in for *ovsctl.Client, so RPC handler
// tests never shell out to ovs-vsctl.
type fakeBridge struct {
	name       string
	ensured    bool
	ports      map[string]int // port -> vlan tag
	ownedPorts map[string]bool
}

func newFakeBridge(name string) *fakeBridge {
	return &fakeBridge{name: name, ports: make(map[string]int), ownedPorts: make(map[string]bool)}
}

func (f *fakeBridge) Name() string { return f.name }

func (f *fakeBridge) EnsureBridge(ctx context.Context) error {
	f.ensured = true
	return nil
}

func (f *fakeBridge) BridgeExists(ctx context.Context) (bool, error) { return f.ensured, nil }

func (f *fakeBridge) AddPort(ctx context.Context, port string, vlanTag int) error {
	f.ports[port] = vlanTag
	f.ownedPorts[port] = true
	return nil
}

func (f *fakeBridge) DelPort(ctx context.Context, port string) error {
	delete(f.ports, port)
	delete(f.ownedPorts, port)
	return nil
}

func (f *fakeBridge) SetTag(ctx context.Context, port string, vlanTag int) error {
	f.ports[port] = vlanTag
	return nil
}

func (f *fakeBridge) PortTag(ctx context.Context, port string) (int, error) {
	return f.ports[port], nil
}

func (f *fakeBridge) PortNames(ctx context.Context) ([]string, error) {
	var names []string
	for p := range f.ports {
		names = append(names, p)
	}
	return names, nil
}

func (f *fakeBridge) IsOwnedPort(ctx context.Context, port string) (bool, error) {
	return f.ownedPorts[port], nil
}

func (f *fakeBridge) DestroyIfEmpty(ctx context.Context) error { return nil }

func (f *fakeBridge) TagsInUse(ctx context.Context) (map[int]struct{}, error) {
	tags := make(map[int]struct{}, len(f.ports))
	for _, t := range f.ports {
		tags[t] = struct{}{}
	}
	return tags, nil
}

func newTestPlugin(t *testing.T) (*Plugin, *fakeBridge) {
	t.Helper()
	bridge := newFakeBridge("arch-ovs")
	allocator := vlan.NewAllocator(bridge)
	store := persistence.NewStore(t.TempDir())
	log := logging.For("test")
	return New("archetype-ovs", bridge, allocator, store, log), bridge
}

func TestPlugin_ActivateAndCapabilities(t *testing.T) {
	p, _ := newTestPlugin(t)
	require.Equal(t, []string{"NetworkDriver"}, p.Activate().Implements)
	require.Equal(t, "local", p.GetCapabilities().Scope)
}

func TestPlugin_CreateNetworkEnsuresBridgeAndRegisters(t *testing.T) {
	p, bridge := newTestPlugin(t)
	ctx := context.Background()

	err := p.CreateNetwork(ctx, createNetworkRequest{
		NetworkID: "net1",
		Options: map[string]any{
			"archetype.lab_id":         "lab1",
			"archetype.interface_name": "eth1",
		},
	})
	require.NoError(t, err)
	require.True(t, bridge.ensured)
	require.Contains(t, p.state.networks, "net1")
}

func TestPlugin_CreateNetworkMissingOptionsFails(t *testing.T) {
	p, _ := newTestPlugin(t)
	err := p.CreateNetwork(context.Background(), createNetworkRequest{NetworkID: "net1"})
	require.Error(t, err)
}

func TestPlugin_CreateEndpointThenJoinThenDelete(t *testing.T) {
	p, bridge := newTestPlugin(t)
	ctx := context.Background()

	require.NoError(t, p.CreateNetwork(ctx, createNetworkRequest{
		NetworkID: "net1",
		Options: map[string]any{
			"archetype.lab_id":         "lab1",
			"archetype.interface_name": "eth1",
		},
	}))

	_, err := p.CreateEndpoint(ctx, createEndpointRequest{NetworkID: "net1", EndpointID: "ep1"})
	require.NoError(t, err)
	require.Len(t, bridge.ports, 1)

	joinResp, err := p.Join(joinRequest{NetworkID: "net1", EndpointID: "ep1"})
	require.NoError(t, err)
	require.Equal(t, dstPrefix, joinResp.InterfaceName.DstPrefix)
	require.NotEmpty(t, joinResp.InterfaceName.SrcName)

	require.NoError(t, p.DeleteEndpoint(ctx, deleteEndpointRequest{NetworkID: "net1", EndpointID: "ep1"}))
	require.Empty(t, bridge.ports)
	require.NotContains(t, p.state.endpoints, "ep1")
}

func TestPlugin_DeleteEndpointUnknownIsNoop(t *testing.T) {
	p, _ := newTestPlugin(t)
	err := p.DeleteEndpoint(context.Background(), deleteEndpointRequest{EndpointID: "nope"})
	require.NoError(t, err)
}

func TestPlugin_DeleteNetworkUnknownIsNoop(t *testing.T) {
	p, _ := newTestPlugin(t)
	require.NoError(t, p.DeleteNetwork(deleteNetworkRequest{NetworkID: "nope"}))
}

func TestPlugin_HotConnectRejectsCrossLabEndpoints(t *testing.T) {
	p, _ := newTestPlugin(t)
	ctx := context.Background()

	require.NoError(t, p.CreateNetwork(ctx, createNetworkRequest{
		NetworkID: "net1",
		Options:   map[string]any{"archetype.lab_id": "lab1", "archetype.interface_name": "eth1"},
	}))
	require.NoError(t, p.CreateNetwork(ctx, createNetworkRequest{
		NetworkID: "net2",
		Options:   map[string]any{"archetype.lab_id": "lab2", "archetype.interface_name": "eth1"},
	}))
	_, err := p.CreateEndpoint(ctx, createEndpointRequest{NetworkID: "net1", EndpointID: "ep1"})
	require.NoError(t, err)
	_, err = p.CreateEndpoint(ctx, createEndpointRequest{NetworkID: "net2", EndpointID: "ep2"})
	require.NoError(t, err)

	require.NoError(t, p.RegisterEndpoint("net1", "nodeA", "archetype-lab1-nodea"))
	require.NoError(t, p.RegisterEndpoint("net2", "nodeB", "archetype-lab2-nodeb"))

	err = p.HotConnect(ctx, "lab1", "nodeA", "eth1", "nodeB", "eth1")
	require.Error(t, err)
}

func TestPlugin_HotConnectSetsMatchingTags(t *testing.T) {
	p, bridge := newTestPlugin(t)
	ctx := context.Background()

	require.NoError(t, p.CreateNetwork(ctx, createNetworkRequest{
		NetworkID: "net1",
		Options:   map[string]any{"archetype.lab_id": "lab1", "archetype.interface_name": "eth1"},
	}))
	require.NoError(t, p.CreateNetwork(ctx, createNetworkRequest{
		NetworkID: "net2",
		Options:   map[string]any{"archetype.lab_id": "lab1", "archetype.interface_name": "eth1"},
	}))
	_, err := p.CreateEndpoint(ctx, createEndpointRequest{NetworkID: "net1", EndpointID: "ep1"})
	require.NoError(t, err)
	_, err = p.CreateEndpoint(ctx, createEndpointRequest{NetworkID: "net2", EndpointID: "ep2"})
	require.NoError(t, err)
	require.NoError(t, p.RegisterEndpoint("net1", "nodeA", "archetype-lab1-nodea"))
	require.NoError(t, p.RegisterEndpoint("net2", "nodeB", "archetype-lab1-nodeb"))

	require.NoError(t, p.HotConnect(ctx, "lab1", "nodeA", "eth1", "nodeB", "eth1"))

	epA := p.state.endpoints["ep1"]
	epB := p.state.endpoints["ep2"]
	require.Equal(t, epA.VLANTag, epB.VLANTag)
	require.Equal(t, epA.VLANTag, bridge.ports[epB.HostVeth])
}
