package libvirtprovider

import (
	"context"
	"os"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/model"
)

// Start powers on a previously-defined, stopped domain. Idempotent:
// already-running is reported as KindIdempotent, matching
// internal/dockerprovider's lifecycle semantics.
func (p *Provider) Start(ctx context.Context, labID, nodeName string) error {
	domainName := DomainName(labID, nodeName)
	info, found, err := p.virt.LookupDomain(ctx, domainName)
	if err != nil {
		return p.wrapf(err, "lookup domain %s", domainName)
	}
	if !found {
		return apierr.New(apierr.KindValidation, "no such domain "+domainName)
	}
	if info.Running {
		return apierr.New(apierr.KindIdempotent, "domain already running")
	}
	if err := p.virt.StartDomain(ctx, domainName); err != nil {
		return p.wrapf(err, "start domain %s", domainName)
	}
	return nil
}

// Stop powers off a running domain. Idempotent: already-stopped is
// KindIdempotent.
func (p *Provider) Stop(ctx context.Context, labID, nodeName string) error {
	domainName := DomainName(labID, nodeName)
	info, found, err := p.virt.LookupDomain(ctx, domainName)
	if err != nil {
		return p.wrapf(err, "lookup domain %s", domainName)
	}
	if !found {
		return apierr.New(apierr.KindIdempotent, "domain already gone")
	}
	if !info.Running {
		return apierr.New(apierr.KindIdempotent, "domain already stopped")
	}
	if err := p.virt.DestroyDomain(ctx, domainName); err != nil {
		return p.wrapf(err, "stop domain %s", domainName)
	}
	return nil
}

// DestroyNode undefines a single node's domain, for the per-node
// `/nodes/{lab}/{node}/destroy` endpoint — unlike Destroy, which sweeps
// every domain matching a lab's name prefix, this only ever touches the
// one domain named by labID/nodeName. Idempotent: a missing domain is not
// an error.
func (p *Provider) DestroyNode(ctx context.Context, labID, nodeName string, kind model.DeviceKind) error {
	domainName := DomainName(labID, nodeName)
	info, found, err := p.virt.LookupDomain(ctx, domainName)
	if err != nil {
		return p.wrapf(err, "lookup domain %s", domainName)
	}
	if !found {
		return nil
	}
	if info.Running {
		if err := p.virt.DestroyDomain(ctx, domainName); err != nil {
			return p.wrapf(err, "destroy domain %s", domainName)
		}
	}

	keepNVRAM := false
	if dev, ok := p.catalog.Lookup(string(kind)); ok {
		keepNVRAM = dev.EFIBoot
	}
	if err := p.virt.UndefineDomain(ctx, domainName, keepNVRAM); err != nil {
		return p.wrapf(err, "undefine domain %s", domainName)
	}
	if keepNVRAM {
		_ = os.Remove(nvramPath(p.nvramDir(), domainName))
	}
	return nil
}

// DestroyResult mirrors internal/dockerprovider.DestroyResult.
type DestroyResult struct {
	DomainsRemoved []string
	Errors         map[string]error
}

// Destroy tears down every VM-backed node's domain and disk overlays for a
// lab (spec section 4.6). It destroys and undefines every domain matching
// the lab's name prefix, not just lab.Nodes — the original placement may
// have nodes present on disk/libvirt that were since dropped from the
// topology, and those still need cleaning up.
func (p *Provider) Destroy(ctx context.Context, lab model.Lab) (DestroyResult, error) {
	efiByName := make(map[string]bool, len(lab.Nodes))
	for _, n := range lab.Nodes {
		if n.IsVM() {
			if dev, ok := p.catalog.Lookup(string(n.Kind)); ok {
				efiByName[DomainName(lab.ID, n.Name)] = dev.EFIBoot
			}
		}
	}

	domains, err := p.virt.ListDomains(ctx, LabPrefix(lab.ID))
	if err != nil {
		return DestroyResult{}, p.wrapf(err, "list domains for lab %s", lab.ID)
	}

	result := DestroyResult{Errors: make(map[string]error)}
	for _, dom := range domains {
		if err := p.virt.DestroyDomain(ctx, dom.Name); err != nil {
			result.Errors[dom.Name] = err
			continue
		}
		keepNVRAM := efiByName[dom.Name]
		if err := p.virt.UndefineDomain(ctx, dom.Name, keepNVRAM); err != nil {
			result.Errors[dom.Name] = err
			continue
		}
		result.DomainsRemoved = append(result.DomainsRemoved, dom.Name)
	}

	for _, n := range lab.Nodes {
		if !n.IsVM() {
			continue
		}
		for _, link := range nodeLinks(n, lab.Links) {
			p.plugin.ReleaseVMPort(ctx, n.Name, ifaceForNode(link, n.Name))
		}
	}

	if disks, err := disksDir(p.workspacePath, lab.ID); err == nil {
		_ = os.RemoveAll(disks)
	}
	for domainName := range efiByName {
		_ = os.Remove(nvramPath(p.nvramDir(), domainName))
	}

	return result, nil
}
