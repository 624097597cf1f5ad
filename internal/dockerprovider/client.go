// Package dockerprovider is the agent's container-backed node provider
// (spec section 4.2): container lifecycle, cEOS flash layout, interface
// renaming to canonical names, and config extraction.
package dockerprovider

import (
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

// dockerClient is the subset of *client.Client this package depends on.
// Defined locally so deploy/lifecycle logic can be unit tested against a
// fake without a running Docker daemon.
type dockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, containerName string) (string, error)
	ContainerStart(ctx context.Context, containerID string) error
	ContainerStop(ctx context.Context, containerID string) error
	ContainerRemove(ctx context.Context, containerID string, removeVolumes, force bool) error
	ContainerInspect(ctx context.Context, containerID string) (ContainerInfo, error)
	ContainerList(ctx context.Context, labelFilter string) ([]ContainerSummary, error)

	NetworkConnect(ctx context.Context, networkID, containerID string) error
	NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error
	NetworkCreate(ctx context.Context, name, driver string, options map[string]string) (string, error)
	NetworkRemove(ctx context.Context, networkID string) error

	ImageExists(ctx context.Context, ref string) (bool, error)

	ExecRun(ctx context.Context, containerID string, cmd []string) (string, error)
	ContainerNetNSPath(ctx context.Context, containerID string) (string, error)
	ContainerPID(ctx context.Context, containerID string) (int, error)
}

// ContainerInfo is the subset of container inspect state the provider needs.
type ContainerInfo struct {
	ID      string
	Name    string
	Running bool
	Labels  map[string]string
	Mounts  []string
}

// ContainerSummary is a lightweight listing entry (spec section 4.2
// "destroy" lists by both label and name-prefix).
type ContainerSummary struct {
	ID     string
	Names  []string
	Labels map[string]string
}
