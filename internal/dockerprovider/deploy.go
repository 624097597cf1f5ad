package dockerprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/model"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

// DeployResult reports per-node outcome of a whole-lab deploy.
type DeployResult struct {
	Deployed []string
	Failed   map[string]error
}

// Deploy runs the whole-lab deploy procedure of spec section 4.2 for
// every container-backed node in lab (VM-backed nodes are the
// libvirtprovider's concern and are skipped here).
func (p *Provider) Deploy(ctx context.Context, lab model.Lab) (DeployResult, error) {
	nodes := nodesByImageKind(lab.Nodes)
	if len(nodes) == 0 {
		return DeployResult{}, nil
	}

	// Step 2: validate every required image exists before touching anything.
	missing, err := p.findMissingImages(ctx, nodes)
	if err != nil {
		return DeployResult{}, err
	}
	if len(missing) > 0 {
		return DeployResult{}, apierr.WithDetails(apierr.KindMissingImage,
			"one or more required images are not present locally", missing)
	}

	// Step 3: stale VLAN/endpoint recovery is the OVS plugin's own
	// persisted state; reconcile it against live containers before
	// attaching any new ones to the shared bridge.
	if err := p.pruneStaleEndpoints(ctx); err != nil {
		p.log.WithError(err).Warn("prune stale endpoints before deploy")
	}

	result := DeployResult{Failed: make(map[string]error)}

	for _, node := range nodes {
		ifaceCount := requiredInterfaceCount(node, lab.Links)

		// Step 4: directories + vendor-specific artifacts.
		if node.Kind == model.DeviceCEOS {
			if _, err := WriteCEOSFlash(p.workspacePath, lab.ID, node.Name, node.StartupConfig, ifaceCount); err != nil {
				result.Failed[node.Name] = p.wrapf(err, "write flash for %s", node.Name)
				continue
			}
		}

		containerName := ContainerName(lab.ID, node.Name)

		if err := p.deployNode(ctx, lab.ID, node, containerName, ifaceCount); err != nil {
			result.Failed[node.Name] = err
			continue
		}

		result.Deployed = append(result.Deployed, node.Name)
	}

	// Step 9: same-host links get matching VLAN tags once both endpoints
	// are attached and running.
	for _, link := range lab.Links {
		if !bothEndpointsDeployed(link, result.Deployed) {
			continue
		}
		if err := p.plugin.HotConnect(ctx, lab.ID, link.A.Node, link.A.Interface, link.B.Node, link.B.Interface); err != nil {
			p.log.WithError(err).WithField("link", link.Name()).Warn("set matching vlan tags for same-host link")
		}
	}

	if len(result.Failed) > 0 && len(result.Deployed) == 0 {
		return result, apierr.New(apierr.KindValidation, "all nodes failed to deploy")
	}
	return result, nil
}

func bothEndpointsDeployed(link model.Link, deployed []string) bool {
	var a, b bool
	for _, name := range deployed {
		if name == link.A.Node {
			a = true
		}
		if name == link.B.Node {
			b = true
		}
	}
	return a && b
}

func (p *Provider) findMissingImages(ctx context.Context, nodes []model.Node) (map[string]string, error) {
	missing := make(map[string]string)
	checked := make(map[string]bool)
	for _, n := range nodes {
		if checked[n.Image] {
			continue
		}
		checked[n.Image] = true
		ok, err := p.docker.ImageExists(ctx, n.Image)
		if err != nil {
			return nil, p.wrapf(err, "check image %s", n.Image)
		}
		if !ok {
			missing[n.Name] = n.Image
		}
	}
	return missing, nil
}

// pruneStaleEndpoints drops tracked OVS endpoints whose containers no
// longer exist, per spec section 4.2 step 3 / section 4.5 step 3.
func (p *Provider) pruneStaleEndpoints(ctx context.Context) error {
	stale, err := p.plugin.FindStaleEndpoints()
	if err != nil {
		return err
	}
	for _, se := range stale {
		if se.ContainerName == "" {
			continue
		}
		if _, err := p.docker.ContainerInspect(ctx, se.ContainerName); err != nil {
			p.log.WithField("endpoint", se.NetworkID).Info("pruning stale endpoint for missing container")
		}
	}
	return nil
}

// deployNode creates (or reuses) one node's container, attaching
// lab-eth1 at create time and every subsequent interface before start, so
// every interface exists before /sbin/init runs (spec section 4.2 step 6).
func (p *Provider) deployNode(ctx context.Context, labID string, node model.Node, containerName string, ifaceCount int) error {
	existing, inspectErr := p.docker.ContainerInspect(ctx, containerName)
	if inspectErr == nil {
		if existing.Running {
			return nil // keep running containers untouched
		}
		if err := p.docker.ContainerRemove(ctx, existing.ID, true, true); err != nil {
			return p.wrapf(err, "remove stopped container %s", containerName)
		}
	}

	netNames := make([]string, 0, ifaceCount)
	for i := 1; i <= ifaceCount; i++ {
		netNames = append(netNames, NetworkName(labID, fmt.Sprintf("eth%d", i)))
	}

	binds := p.flashBinds(labID, node)

	hostConfig := &container.HostConfig{
		Binds:       binds,
		AutoRemove:  false,
		NetworkMode: container.NetworkMode(netNames[0]),
	}

	cfg := &container.Config{
		Image:  node.Image,
		Labels: map[string]string{LabelKey: labID, "archetype.node": node.Name},
	}
	if node.Kind == model.DeviceCEOS {
		cfg.Entrypoint = []string{"/mnt/flash/if-wait.sh"}
	}

	netConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			netNames[0]: {},
		},
	}

	id, err := p.docker.ContainerCreate(ctx, cfg, hostConfig, netConfig, containerName)
	if err != nil {
		return p.wrapf(err, "create container %s", containerName)
	}
	if err := p.plugin.RegisterEndpoint(netNames[0], node.Name, containerName); err != nil {
		p.log.WithError(err).Warn("register endpoint after create")
	}

	// Attach remaining interfaces before start.
	for _, netName := range netNames[1:] {
		if err := p.docker.NetworkConnect(ctx, netName, id); err != nil {
			return p.wrapf(err, "attach %s to %s", containerName, netName)
		}
		if err := p.plugin.RegisterEndpoint(netName, node.Name, containerName); err != nil {
			p.log.WithError(err).Warn("register endpoint after connect")
		}
	}

	if node.Kind == model.DeviceCEOS {
		// Stagger cEOS starts to avoid a kernel-module modprobe race
		// when several start back to back (spec section 4.2 step 7).
		time.Sleep(ceosStartupDelay * time.Second)
	}

	if err := p.docker.ContainerStart(ctx, id); err != nil {
		return p.wrapf(err, "start container %s", containerName)
	}

	// Step 8: canonical interface renaming, matching NetworkState names.
	if err := p.renameInterfaces(ctx, id, labID, node, netNames); err != nil {
		p.log.WithError(err).Warn("rename container interfaces to canonical names")
	}

	return nil
}

func (p *Provider) flashBinds(labID string, node model.Node) []string {
	if node.Kind != model.DeviceCEOS {
		return nil
	}
	hostDir := flashHostDir(p.workspacePath, labID, node.Name)
	return []string{hostDir + ":/mnt/flash"}
}
