package dockerprovider

import (
	"context"
	"fmt"

	"github.com/archetype-labs/agent/internal/model"
	"github.com/archetype-labs/agent/internal/ovsplugin"
	"github.com/archetype-labs/agent/internal/vendorcat"
	"github.com/sirupsen/logrus"
)

// minInterfaceCount is the floor for per-node interface count, regardless
// of topology or UI hints (spec section 4.2 step 5).
const minInterfaceCount = 4

// Provider is the agent's container-backed node provider. It owns
// container lifecycle against Docker and delegates all network-plumbing
// decisions (bridge, VLAN tag, veth pair) to the OVS plugin that Docker's
// own network-driver RPCs already route through.
type Provider struct {
	docker        dockerClient
	plugin        *ovsplugin.Plugin
	catalog       *vendorcat.Catalog
	workspacePath string
	stopTimeout   int // seconds

	postBoot *postBootCache
	log      *logrus.Entry
}

// Option configures a Provider at construction time.
type Option func(*Provider)

func WithStopTimeout(seconds int) Option {
	return func(p *Provider) { p.stopTimeout = seconds }
}

func WithCatalog(cat *vendorcat.Catalog) Option {
	return func(p *Provider) { p.catalog = cat }
}

// NewProvider wires a Provider against a live Docker socket, the shared
// OVS plugin instance (for RegisterEndpoint/EndpointPort/HotConnect), and
// the agent's workspace directory (flash artifacts, configs, VLAN
// bookkeeping).
func NewProvider(docker dockerClient, plugin *ovsplugin.Plugin, workspacePath string, log *logrus.Entry, opts ...Option) *Provider {
	p := &Provider{
		docker:        docker,
		plugin:        plugin,
		catalog:       vendorcat.Default(),
		workspacePath: workspacePath,
		stopTimeout:   10,
		postBoot:      newPostBootCache(),
		log:           log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// requiredInterfaceCount implements spec section 4.2 step 5: the greater
// of the UI-configured hint and the highest interface index any link on
// this node references, with a floor of minInterfaceCount.
func requiredInterfaceCount(node model.Node, links []model.Link) int {
	count := node.InterfaceHint
	for _, l := range links {
		for _, ep := range []model.Endpoint{l.A, l.B} {
			if ep.Node != node.Name {
				continue
			}
			if idx := ifaceIndex(ep.Interface); idx+1 > count {
				count = idx + 1
			}
		}
	}
	if count < minInterfaceCount {
		count = minInterfaceCount
	}
	return count
}

// ifaceIndex extracts the trailing integer from an interface name like
// "eth3" -> 3. Names without a trailing digit run sort last effectively
// by contributing 0.
func ifaceIndex(iface string) int {
	i := len(iface)
	for i > 0 && iface[i-1] >= '0' && iface[i-1] <= '9' {
		i--
	}
	if i == len(iface) {
		return 0
	}
	n := 0
	for _, c := range iface[i:] {
		n = n*10 + int(c-'0')
	}
	return n
}

func nodesByImageKind(nodes []model.Node) (containers []model.Node) {
	for _, n := range nodes {
		if !n.IsVM() {
			containers = append(containers, n)
		}
	}
	return containers
}

func (p *Provider) logEntry(labID, node string) *logrus.Entry {
	return p.log.WithFields(logrus.Fields{"lab_id": labID, "node": node})
}

// ContainerID resolves a node's current Docker container ID, for callers
// outside this package (internal/httpapi's interface isolate/restore
// handlers) that need it for namespace-scoped operations.
func (p *Provider) ContainerID(ctx context.Context, labID, nodeName string) (string, error) {
	info, err := p.docker.ContainerInspect(ctx, ContainerName(labID, nodeName))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (p *Provider) wrapf(err error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
