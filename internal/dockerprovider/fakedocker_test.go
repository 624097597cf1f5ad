package dockerprovider

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

// fakeDocker is an in-memory stand-in for the Docker Engine API, used the
// same way internal/ovsplugin's fakeBridge stands in for ovs-vsctl.
type fakeDocker struct {
	images      map[string]bool
	containers  map[string]*ContainerInfo // keyed by name
	nextID      int
	created     []string // container names, in creation order
	connected   map[string][]string // container id -> network names connected, in order
	started     []string
	stopped     []string
	removed     []string
	netsRemoved []string

	failImage string // ImageExists returns false for this ref
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		images:     make(map[string]bool),
		containers: make(map[string]*ContainerInfo),
		connected:  make(map[string][]string),
	}
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, containerName string) (string, error) {
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.containers[containerName] = &ContainerInfo{ID: id, Name: containerName, Labels: config.Labels}
	f.created = append(f.created, containerName)
	for netName := range networkingConfig.EndpointsConfig {
		f.connected[id] = append(f.connected[id], netName)
	}
	return id, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, containerID string) error {
	f.started = append(f.started, containerID)
	for _, c := range f.containers {
		if c.ID == containerID {
			c.Running = true
		}
	}
	return nil
}

func (f *fakeDocker) ContainerStop(ctx context.Context, containerID string) error {
	f.stopped = append(f.stopped, containerID)
	for _, c := range f.containers {
		if c.ID == containerID {
			c.Running = false
		}
	}
	return nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, containerID string, removeVolumes, force bool) error {
	f.removed = append(f.removed, containerID)
	for name, c := range f.containers {
		if c.ID == containerID {
			delete(f.containers, name)
		}
	}
	return nil
}

func (f *fakeDocker) ContainerInspect(ctx context.Context, containerID string) (ContainerInfo, error) {
	if c, ok := f.containers[containerID]; ok {
		return *c, nil
	}
	for _, c := range f.containers {
		if c.ID == containerID {
			return *c, nil
		}
	}
	return ContainerInfo{}, fmt.Errorf("no such container %s", containerID)
}

func (f *fakeDocker) ContainerList(ctx context.Context, labelFilter string) ([]ContainerSummary, error) {
	var out []ContainerSummary
	for name, c := range f.containers {
		out = append(out, ContainerSummary{ID: c.ID, Names: []string{"/" + name}, Labels: c.Labels})
	}
	return out, nil
}

func (f *fakeDocker) NetworkConnect(ctx context.Context, networkID, containerID string) error {
	f.connected[containerID] = append(f.connected[containerID], networkID)
	return nil
}

func (f *fakeDocker) NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error {
	return nil
}

func (f *fakeDocker) NetworkCreate(ctx context.Context, name, driver string, options map[string]string) (string, error) {
	return name, nil
}

func (f *fakeDocker) NetworkRemove(ctx context.Context, networkID string) error {
	f.netsRemoved = append(f.netsRemoved, networkID)
	return nil
}

func (f *fakeDocker) ImageExists(ctx context.Context, ref string) (bool, error) {
	if ref == f.failImage {
		return false, nil
	}
	return f.images[ref], nil
}

func (f *fakeDocker) ExecRun(ctx context.Context, containerID string, cmd []string) (string, error) {
	return "", nil
}

func (f *fakeDocker) ContainerNetNSPath(ctx context.Context, containerID string) (string, error) {
	return "", fmt.Errorf("not running")
}

func (f *fakeDocker) ContainerPID(ctx context.Context, containerID string) (int, error) {
	return 0, fmt.Errorf("not running")
}
