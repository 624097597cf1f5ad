package libvirtprovider

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/model"
)

// DeployResult mirrors internal/dockerprovider.DeployResult: per-node
// success/failure, never a partial-success panic.
type DeployResult struct {
	Deployed []string
	Failed   map[string]error
}

// Deploy provisions every VM-backed node in lab (spec section 4.6's
// per-node deploy sequence), skipping container-backed nodes entirely —
// internal/dockerprovider owns those.
func (p *Provider) Deploy(ctx context.Context, lab model.Lab) (DeployResult, error) {
	nodes := vmNodes(lab.Nodes)
	if len(nodes) == 0 {
		return DeployResult{}, nil
	}

	result := DeployResult{Failed: make(map[string]error)}
	for _, node := range nodes {
		if err := p.deployNode(ctx, lab.ID, node, lab.Links); err != nil {
			result.Failed[node.Name] = err
			continue
		}
		result.Deployed = append(result.Deployed, node.Name)
	}

	for _, link := range lab.Links {
		if !bothEndpointsDeployed(link, result.Deployed) {
			continue
		}
		_ = p.plugin.HotConnect(ctx, lab.ID, link.A.Node, link.A.Interface, link.B.Node, link.B.Interface)
	}

	if len(result.Failed) > 0 && len(result.Deployed) == 0 {
		return result, apierr.New(apierr.KindValidation, "all VM nodes failed to deploy")
	}
	return result, nil
}

func vmNodes(nodes []model.Node) []model.Node {
	var out []model.Node
	for _, n := range nodes {
		if n.IsVM() {
			out = append(out, n)
		}
	}
	return out
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

func nodeLinks(node model.Node, links []model.Link) []model.Link {
	var out []model.Link
	for _, l := range links {
		if l.A.Node == node.Name || l.B.Node == node.Name {
			out = append(out, l)
		}
	}
	return out
}

func ifaceForNode(link model.Link, nodeName string) string {
	if link.A.Node == nodeName {
		return link.A.Interface
	}
	return link.B.Interface
}

func (p *Provider) deployNode(ctx context.Context, labID string, node model.Node, allLinks []model.Link) error {
	domainName := DomainName(labID, node.Name)

	info, found, err := p.virt.LookupDomain(ctx, domainName)
	if err != nil {
		return p.wrapf(err, "lookup domain %s", domainName)
	}
	if found {
		if info.Running {
			return nil
		}
		if err := p.virt.StartDomain(ctx, domainName); err != nil {
			return p.wrapf(err, "start existing domain %s", domainName)
		}
		return nil
	}

	dev, ok := p.catalog.Lookup(string(node.Kind))
	if !ok {
		return fmt.Errorf("unknown device kind %q", node.Kind)
	}

	base, err := resolveBaseImage(p.imageStore, node.Image)
	if err != nil {
		return apierr.New(apierr.KindMissingImage, err.Error())
	}

	disks, err := disksDir(p.workspacePath, labID)
	if err != nil {
		return err
	}
	overlay := filepath.Join(disks, node.Name+".qcow2")
	if err := createOverlay(ctx, base, overlay); err != nil {
		return p.wrapf(err, "create overlay disk for %s", node.Name)
	}

	var dataDisk string
	if dev.DataVolumeSizeMB > 0 {
		dataDisk = filepath.Join(disks, node.Name+"-data.qcow2")
		if err := createDataVolume(ctx, dataDisk, dev.DataVolumeSizeMB); err != nil {
			return p.wrapf(err, "create data volume for %s", node.Name)
		}
	}

	spec, err := NewDomainSpec(labID, node, dev, overlay, dataDisk)
	if err != nil {
		return err
	}

	if dev.EFIBoot {
		fw, err := DetectOVMF(p.nvramDir(), domainName)
		if err != nil {
			return p.wrapf(err, "resolve EFI firmware for %s", node.Name)
		}
		if fw.stateful() {
			fw.NVRAMPath = nvramPath(p.nvramDir(), domainName)
		}
		spec.EFIFirmware = fw
	}

	if err := p.plugin.Bridge.EnsureBridge(ctx); err != nil {
		return p.wrapf(err, "ensure ovs bridge")
	}
	spec.BridgeName = p.plugin.Bridge.Name()

	links := nodeLinks(node, allLinks)
	dataStart := 0
	if dev.RequiresMgmtInterface {
		spec.MgmtNetwork = p.mgmtNetworkFor(labID, node.Name)
		dataStart = 1
	}
	for i, link := range links {
		idx := dataStart + i
		tag, err := p.plugin.VLAN.Allocate(ctx)
		if err != nil {
			return p.wrapf(err, "allocate vlan tag for %s interface %d", node.Name, idx)
		}
		port := OVSPortName(domainName, idx)
		iface := ifaceForNode(link, node.Name)
		p.plugin.RegisterVMPort(labID, node.Name, iface, port, tag)
		spec.DataLinks = append(spec.DataLinks, DataLinkSpec{
			Index:   idx,
			MAC:     DeterministicMAC(domainName, idx),
			OVSPort: port,
			VLANTag: tag,
		})
	}

	domainXMLStr, err := BuildDomainXML(spec)
	if err != nil {
		return err
	}

	if _, err := p.virt.DefineDomain(ctx, domainXMLStr); err != nil {
		return p.wrapf(err, "define domain %s", domainName)
	}
	if err := p.virt.StartDomain(ctx, domainName); err != nil {
		return p.wrapf(err, "start domain %s", domainName)
	}
	return nil
}
