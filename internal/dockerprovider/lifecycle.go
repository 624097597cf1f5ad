package dockerprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/archetype-labs/agent/internal/apierr"
)

// Start starts an existing, already-deployed container. If Docker reports
// a missing network (a stale reference from a prior deploy whose networks
// were since removed), it disconnects from every lab-scoped network it
// still thinks it's attached to (best-effort, some may already be gone)
// and reconnects to the current set, then retries once, per spec section
// 4.2 "Start of an existing container".
func (p *Provider) Start(ctx context.Context, labID, nodeName string, netNames []string) error {
	containerName := ContainerName(labID, nodeName)
	info, err := p.docker.ContainerInspect(ctx, containerName)
	if err != nil {
		return apierr.New(apierr.KindValidation, fmt.Sprintf("no such container %s", containerName))
	}
	if info.Running {
		return apierr.New(apierr.KindIdempotent, "container already running")
	}

	if err := p.docker.ContainerStart(ctx, info.ID); err != nil {
		if !isMissingNetworkError(err) {
			return p.wrapf(err, "start container %s", containerName)
		}
		p.log.WithField("container", containerName).Warn("stale network reference on start, reattaching")
		for _, netName := range netNames {
			_ = p.docker.NetworkDisconnect(ctx, netName, info.ID, true)
		}
		for _, netName := range netNames {
			if err := p.docker.NetworkConnect(ctx, netName, info.ID); err != nil {
				return p.wrapf(err, "reattach %s to %s", containerName, netName)
			}
		}
		if err := p.docker.ContainerStart(ctx, info.ID); err != nil {
			return p.wrapf(err, "retry start container %s", containerName)
		}
	}

	p.postBoot.Clear(containerName)
	return nil
}

// DestroyNode removes a single node's container, for the per-node
// `/nodes/{lab}/{node}/destroy` endpoint (spec section 4.1) — unlike
// Destroy, which tears down a whole lab, this only ever touches the one
// container named by labID/nodeName. Idempotent: a missing container is
// not an error.
func (p *Provider) DestroyNode(ctx context.Context, labID, nodeName string) error {
	containerName := ContainerName(labID, nodeName)
	info, err := p.docker.ContainerInspect(ctx, containerName)
	if err != nil {
		return nil
	}
	if err := p.docker.ContainerRemove(ctx, info.ID, true, true); err != nil {
		return p.wrapf(err, "remove container %s", containerName)
	}
	p.postBoot.Clear(containerName)
	return nil
}

func isMissingNetworkError(err error) bool {
	return strings.Contains(err.Error(), "network") && strings.Contains(err.Error(), "not found")
}

// Stop stops a container with the configured timeout and clears its
// post-boot idempotency cache entry so post-boot commands re-run on next
// start (spec section 4.2 "Stop").
func (p *Provider) Stop(ctx context.Context, labID, nodeName string) error {
	containerName := ContainerName(labID, nodeName)
	info, err := p.docker.ContainerInspect(ctx, containerName)
	if err != nil {
		return apierr.New(apierr.KindIdempotent, "container already gone")
	}
	if !info.Running {
		p.postBoot.Clear(containerName)
		return apierr.New(apierr.KindIdempotent, "container already stopped")
	}
	if err := p.docker.ContainerStop(ctx, info.ID); err != nil {
		return p.wrapf(err, "stop container %s", containerName)
	}
	p.postBoot.Clear(containerName)
	return nil
}

// DestroyResult reports what a Destroy call actually removed.
type DestroyResult struct {
	ContainersRemoved []string
	NetworksRemoved   []string
}

// Destroy implements spec section 4.2 "Destroy": list containers by both
// label and name-prefix (fallback resilient to Docker label index skew),
// remove force+volumes, delete the lab's Docker networks, and clear the
// lab's VLAN allocations (the latter is the OVS plugin's own state via
// DeleteNetwork, invoked per network here).
func (p *Provider) Destroy(ctx context.Context, labID string, networkIDs []string) (DestroyResult, error) {
	result := DestroyResult{}

	seen := make(map[string]bool)
	byLabel, err := p.docker.ContainerList(ctx, LabelKey+"="+labID)
	if err != nil {
		return result, p.wrapf(err, "list containers by label for lab %s", labID)
	}
	candidates := append([]ContainerSummary{}, byLabel...)

	prefix := NamePrefix(labID)
	byName, err := p.docker.ContainerList(ctx, "")
	if err != nil {
		return result, p.wrapf(err, "list containers for lab %s", labID)
	}
	for _, c := range byName {
		for _, name := range c.Names {
			if strings.HasPrefix(strings.TrimPrefix(name, "/"), prefix) {
				candidates = append(candidates, c)
				break
			}
		}
	}

	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if err := p.docker.ContainerRemove(ctx, c.ID, true, true); err != nil {
			p.log.WithError(err).WithField("container", c.ID).Warn("remove container during lab destroy")
			continue
		}
		result.ContainersRemoved = append(result.ContainersRemoved, c.ID)
		if len(c.Names) > 0 {
			p.postBoot.Clear(strings.TrimPrefix(c.Names[0], "/"))
		}
	}

	for _, netID := range networkIDs {
		if err := p.docker.NetworkRemove(ctx, netID); err != nil {
			p.log.WithError(err).WithField("network", netID).Warn("remove network during lab destroy")
			continue
		}
		result.NetworksRemoved = append(result.NetworksRemoved, netID)
	}

	return result, nil
}
