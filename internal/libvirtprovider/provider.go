package libvirtprovider

import (
	"fmt"
	"sync"

	"github.com/archetype-labs/agent/internal/ovsplugin"
	"github.com/archetype-labs/agent/internal/vendorcat"
	"github.com/sirupsen/logrus"
)

// Provider manages VM-based nodes (image ref ending in .qcow2) via
// libvirt/QEMU, the VM counterpart to internal/dockerprovider.
type Provider struct {
	virt          libvirtClient
	plugin        *ovsplugin.Plugin
	catalog       *vendorcat.Catalog
	workspacePath string
	imageStore    string // qcow2 base image store, host-visible path
	console       ConsolePoller

	poapMu       sync.Mutex
	poapNetworks map[string]string // "lab/node" -> libvirt network name

	log *logrus.Entry
}

type Option func(*Provider)

func WithCatalog(cat *vendorcat.Catalog) Option { return func(p *Provider) { p.catalog = cat } }
func WithImageStore(path string) Option         { return func(p *Provider) { p.imageStore = path } }
func WithConsolePoller(c ConsolePoller) Option   { return func(p *Provider) { p.console = c } }

func NewProvider(virt libvirtClient, plugin *ovsplugin.Plugin, workspacePath string, log *logrus.Entry, opts ...Option) *Provider {
	p := &Provider{
		virt:          virt,
		plugin:        plugin,
		catalog:       vendorcat.Default(),
		workspacePath: workspacePath,
		imageStore:    workspacePath + "/images",
		poapNetworks:  make(map[string]string),
		log:           log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) wrapf(err error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func (p *Provider) nvramDir() string {
	return p.workspacePath + "/nvram"
}
