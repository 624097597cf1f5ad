package libvirtprovider

import "context"

// DomainInfo is the subset of libvirt domain state providers/tests need.
type DomainInfo struct {
	Name    string
	UUID    string
	Running bool
}

// libvirtClient is the seam between this package and libvirt.org/go/libvirt,
// mirroring internal/ovsplugin's bridgeController / internal/dockerprovider's
// dockerClient pattern: a real adapter (connClient, in libvirtsdk.go) plus an
// in-memory fake for tests, so domain lifecycle logic is exercised without a
// live libvirtd.
type libvirtClient interface {
	LookupDomain(ctx context.Context, name string) (DomainInfo, bool, error)
	DefineDomain(ctx context.Context, domainXML string) (DomainInfo, error)
	StartDomain(ctx context.Context, name string) error
	DestroyDomain(ctx context.Context, name string) error
	UndefineDomain(ctx context.Context, name string, keepNVRAM bool) error
	ListDomains(ctx context.Context, namePrefix string) ([]DomainInfo, error)

	// DefineNetwork/UndefineNetwork manage the per-node POAP NAT networks
	// (spec section 4.6); name is e.g. "ap-poap-{lab}-{node}".
	DefineNetwork(ctx context.Context, name, networkXML string) error
	UndefineNetwork(ctx context.Context, name string) error

	// DHCPLeaseIP resolves a domain's management IP via libvirt's DHCP
	// lease table, used by the ssh readiness probe.
	DHCPLeaseIP(ctx context.Context, networkName, mac string) (string, error)
}
