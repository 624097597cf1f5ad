package dockerprovider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// sdkClient adapts the official Docker Engine SDK to the dockerClient
// interface this package depends on, so the rest of the provider never
// imports github.com/docker/docker directly.
type sdkClient struct {
	cli *client.Client
}

// NewSDKClient opens a Docker Engine client against sock, negotiating the
// API version with the daemon (the SDK's standard idiom).
func NewSDKClient(sock string) (*sdkClient, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+sock),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &sdkClient{cli: cli}, nil
}

func (s *sdkClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, containerName string) (string, error) {
	resp, err := s.cli.ContainerCreate(ctx, config, hostConfig, networkingConfig, nil, containerName)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s *sdkClient) ContainerStart(ctx context.Context, containerID string) error {
	return s.cli.ContainerStart(ctx, containerID, container.StartOptions{})
}

func (s *sdkClient) ContainerStop(ctx context.Context, containerID string) error {
	return s.cli.ContainerStop(ctx, containerID, container.StopOptions{})
}

func (s *sdkClient) ContainerRemove(ctx context.Context, containerID string, removeVolumes, force bool) error {
	return s.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{RemoveVolumes: removeVolumes, Force: force})
}

func (s *sdkClient) ContainerInspect(ctx context.Context, containerID string) (ContainerInfo, error) {
	json, err := s.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return ContainerInfo{}, err
	}
	info := ContainerInfo{ID: json.ID, Labels: json.Config.Labels}
	if json.Name != "" {
		info.Name = json.Name
	}
	if json.State != nil {
		info.Running = json.State.Running
	}
	for _, m := range json.Mounts {
		info.Mounts = append(info.Mounts, m.Destination)
	}
	return info, nil
}

func (s *sdkClient) ContainerList(ctx context.Context, labelFilter string) ([]ContainerSummary, error) {
	opts := container.ListOptions{All: true}
	if labelFilter != "" {
		opts.Filters = filters.NewArgs(filters.Arg("label", labelFilter))
	}
	containers, err := s.cli.ContainerList(ctx, opts)
	if err != nil {
		return nil, err
	}
	summaries := make([]ContainerSummary, 0, len(containers))
	for _, c := range containers {
		summaries = append(summaries, ContainerSummary{ID: c.ID, Names: c.Names, Labels: c.Labels})
	}
	return summaries, nil
}

func (s *sdkClient) NetworkConnect(ctx context.Context, networkID, containerID string) error {
	return s.cli.NetworkConnect(ctx, networkID, containerID, &network.EndpointSettings{})
}

func (s *sdkClient) NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error {
	return s.cli.NetworkDisconnect(ctx, networkID, containerID, force)
}

func (s *sdkClient) NetworkCreate(ctx context.Context, name, driver string, options map[string]string) (string, error) {
	resp, err := s.cli.NetworkCreate(ctx, name, dockertypes.NetworkCreate{
		Driver:  driver,
		Options: options, // forwarded to our own CreateNetwork handler as generic driver options
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s *sdkClient) NetworkRemove(ctx context.Context, networkID string) error {
	return s.cli.NetworkRemove(ctx, networkID)
}

func (s *sdkClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := s.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *sdkClient) ExecRun(ctx context.Context, containerID string, cmd []string) (string, error) {
	execResp, err := s.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("exec create: %w", err)
	}

	attach, err := s.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, attach.Reader); err != nil {
		return "", fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return "", fmt.Errorf("exec inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		return buf.String(), fmt.Errorf("exec exited %d: %s", inspect.ExitCode, buf.String())
	}
	return buf.String(), nil
}

func (s *sdkClient) ContainerNetNSPath(ctx context.Context, containerID string) (string, error) {
	json, err := s.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", err
	}
	if json.State == nil || json.State.Pid == 0 {
		return "", fmt.Errorf("container %s has no pid (not running)", containerID)
	}
	return "/proc/" + strconv.Itoa(json.State.Pid) + "/ns/net", nil
}

func (s *sdkClient) ContainerPID(ctx context.Context, containerID string) (int, error) {
	json, err := s.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return 0, err
	}
	if json.State == nil {
		return 0, fmt.Errorf("container %s has no state", containerID)
	}
	return json.State.Pid, nil
}
