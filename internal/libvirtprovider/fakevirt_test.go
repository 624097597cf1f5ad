package libvirtprovider

import (
	"context"
	"fmt"
	"strings"
)

// fakeVirt is an in-memory stand-in for libvirt, the same pattern
// internal/dockerprovider's fakeDocker uses for the Docker Engine API.
type fakeVirt struct {
	domains  map[string]*DomainInfo
	defined  []string // domain XML blobs passed to DefineDomain, in order
	started  []string
	destroyed []string
	undefined []string
	keptNVRAM map[string]bool

	networks map[string]string // name -> network XML
	leases   map[string]string // mac -> ip
}

func newFakeVirt() *fakeVirt {
	return &fakeVirt{
		domains:   make(map[string]*DomainInfo),
		networks:  make(map[string]string),
		leases:    make(map[string]string),
		keptNVRAM: make(map[string]bool),
	}
}

func (f *fakeVirt) LookupDomain(ctx context.Context, name string) (DomainInfo, bool, error) {
	d, ok := f.domains[name]
	if !ok {
		return DomainInfo{}, false, nil
	}
	return *d, true, nil
}

func (f *fakeVirt) DefineDomain(ctx context.Context, domainXML string) (DomainInfo, error) {
	f.defined = append(f.defined, domainXML)
	name := extractDomainName(domainXML)
	info := DomainInfo{Name: name, UUID: fmt.Sprintf("uuid-%d", len(f.defined))}
	f.domains[name] = &info
	return info, nil
}

func (f *fakeVirt) StartDomain(ctx context.Context, name string) error {
	f.started = append(f.started, name)
	d, ok := f.domains[name]
	if !ok {
		return fmt.Errorf("no such domain %s", name)
	}
	d.Running = true
	return nil
}

func (f *fakeVirt) DestroyDomain(ctx context.Context, name string) error {
	f.destroyed = append(f.destroyed, name)
	if d, ok := f.domains[name]; ok {
		d.Running = false
	}
	return nil
}

func (f *fakeVirt) UndefineDomain(ctx context.Context, name string, keepNVRAM bool) error {
	f.undefined = append(f.undefined, name)
	f.keptNVRAM[name] = keepNVRAM
	delete(f.domains, name)
	return nil
}

func (f *fakeVirt) ListDomains(ctx context.Context, namePrefix string) ([]DomainInfo, error) {
	var out []DomainInfo
	for name, d := range f.domains {
		if namePrefix == "" || strings.HasPrefix(name, namePrefix) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeVirt) DefineNetwork(ctx context.Context, name, networkXML string) error {
	f.networks[name] = networkXML
	return nil
}

func (f *fakeVirt) UndefineNetwork(ctx context.Context, name string) error {
	delete(f.networks, name)
	return nil
}

func (f *fakeVirt) DHCPLeaseIP(ctx context.Context, networkName, mac string) (string, error) {
	ip, ok := f.leases[mac]
	if !ok {
		return "", fmt.Errorf("no lease for %s", mac)
	}
	return ip, nil
}

// extractDomainName pulls <name>...</name> out of a domain XML blob
// without a full XML parse, good enough for test assertions.
func extractDomainName(domainXML string) string {
	start := strings.Index(domainXML, "<name>")
	end := strings.Index(domainXML, "</name>")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return domainXML[start+len("<name>") : end]
}
