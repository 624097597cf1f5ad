package dockerprovider

import (
	"context"
	"testing"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/logging"
	"github.com/archetype-labs/agent/internal/model"
	"github.com/archetype-labs/agent/internal/ovsplugin"
	"github.com/archetype-labs/agent/internal/persistence"
	"github.com/archetype-labs/agent/internal/vlan"
)

// fakeBridge is a minimal stand-in for ovsctl.Client, satisfying
// ovsplugin's unexported bridgeController interface structurally, the
// same pattern internal/ovsplugin's own tests use.
type fakeBridge struct{ tags map[int]struct{} }

func newFakeBridge() *fakeBridge { return &fakeBridge{tags: make(map[int]struct{})} }

func (f *fakeBridge) Name() string                                         { return "arch-ovs" }
func (f *fakeBridge) EnsureBridge(ctx context.Context) error                { return nil }
func (f *fakeBridge) BridgeExists(ctx context.Context) (bool, error)        { return true, nil }
func (f *fakeBridge) AddPort(ctx context.Context, port string, tag int) error {
	f.tags[tag] = struct{}{}
	return nil
}
func (f *fakeBridge) DelPort(ctx context.Context, port string) error { return nil }
func (f *fakeBridge) SetTag(ctx context.Context, port string, tag int) error {
	f.tags[tag] = struct{}{}
	return nil
}
func (f *fakeBridge) PortTag(ctx context.Context, port string) (int, error)   { return 0, nil }
func (f *fakeBridge) PortNames(ctx context.Context) ([]string, error)        { return nil, nil }
func (f *fakeBridge) IsOwnedPort(ctx context.Context, port string) (bool, error) { return true, nil }
func (f *fakeBridge) DestroyIfEmpty(ctx context.Context) error               { return nil }
func (f *fakeBridge) TagsInUse(ctx context.Context) (map[int]struct{}, error) {
	return f.tags, nil
}

func newTestPluginForDeploy(t *testing.T) *ovsplugin.Plugin {
	t.Helper()
	bridge := newFakeBridge()
	allocator := vlan.NewAllocator(bridge)
	store := persistence.NewStore(t.TempDir())
	return ovsplugin.New("archetype-ovs", bridge, allocator, store, logging.For("test"))
}

func TestDeploy_NoContainerNodesIsNoop(t *testing.T) {
	fd := newFakeDocker()
	p := NewProvider(fd, newTestPluginForDeploy(t), t.TempDir(), logging.For("test"))

	result, err := p.Deploy(context.Background(), model.Lab{ID: "lab1"})
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if len(result.Deployed) != 0 {
		t.Fatalf("Deployed = %v, want empty", result.Deployed)
	}
}

func TestDeploy_MissingImageFailsWithoutPartialDeploy(t *testing.T) {
	fd := newFakeDocker() // no images marked present
	p := NewProvider(fd, newTestPluginForDeploy(t), t.TempDir(), logging.For("test"))

	lab := model.Lab{
		ID: "lab1",
		Nodes: []model.Node{
			{Name: "leaf1", Kind: model.DeviceLinux, Image: "missing:latest"},
		},
	}

	_, err := p.Deploy(context.Background(), lab)
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Kind != apierr.KindMissingImage {
		t.Fatalf("Deploy() error = %v, want KindMissingImage", err)
	}
	if len(fd.created) != 0 {
		t.Fatalf("expected no containers created when an image is missing, got %v", fd.created)
	}
}

func TestDeploy_CreatesAndAttachesInterfacesBeforeStart(t *testing.T) {
	fd := newFakeDocker()
	fd.images["linux:latest"] = true
	p := NewProvider(fd, newTestPluginForDeploy(t), t.TempDir(), logging.For("test"))

	lab := model.Lab{
		ID: "lab1",
		Nodes: []model.Node{
			{Name: "leaf1", Kind: model.DeviceLinux, Image: "linux:latest", InterfaceHint: 2},
		},
	}

	result, err := p.Deploy(context.Background(), lab)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if len(result.Deployed) != 1 || result.Deployed[0] != "leaf1" {
		t.Fatalf("Deployed = %v, want [leaf1]", result.Deployed)
	}

	containerName := ContainerName("lab1", "leaf1")
	if len(fd.created) != 1 || fd.created[0] != containerName {
		t.Fatalf("created = %v, want [%s]", fd.created, containerName)
	}

	id := fd.containers[containerName].ID
	// minInterfaceCount (4) applies because it's higher than the UI hint of 2.
	if got := len(fd.connected[id]); got != minInterfaceCount {
		t.Fatalf("attached %d networks, want %d (the floor)", got, minInterfaceCount)
	}
	if len(fd.started) != 1 || fd.started[0] != id {
		t.Fatalf("started = %v, want [%s]", fd.started, id)
	}
}

func TestDeploy_KeepsRunningContainerUntouched(t *testing.T) {
	fd := newFakeDocker()
	fd.images["linux:latest"] = true
	containerName := ContainerName("lab1", "leaf1")
	fd.containers[containerName] = &ContainerInfo{ID: "existing", Name: containerName, Running: true}
	p := NewProvider(fd, newTestPluginForDeploy(t), t.TempDir(), logging.For("test"))

	lab := model.Lab{
		ID:    "lab1",
		Nodes: []model.Node{{Name: "leaf1", Kind: model.DeviceLinux, Image: "linux:latest"}},
	}

	result, err := p.Deploy(context.Background(), lab)
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if len(result.Deployed) != 1 {
		t.Fatalf("Deployed = %v, want one entry (kept-running node still counts as deployed)", result.Deployed)
	}
	if len(fd.created) != 0 {
		t.Fatal("expected the running container to be left untouched, not recreated")
	}
}
