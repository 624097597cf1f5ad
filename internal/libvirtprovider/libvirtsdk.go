package libvirtprovider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	libvirt "libvirt.org/go/libvirt"
)

// connClient is the real libvirtClient, backed by a lazily (re)dialed
// libvirt.Connect — mirroring vmconfig's lazy-connection pattern: dial on
// first use, redial if the connection has dropped.
type connClient struct {
	uri string

	mu   sync.Mutex
	conn *libvirt.Connect
}

func NewSDKClient(uri string) *connClient {
	if uri == "" {
		uri = "qemu:///system"
	}
	return &connClient{uri: uri}
}

func (c *connClient) connect() (*libvirt.Connect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if alive, err := c.conn.IsAlive(); err == nil && alive {
			return c.conn, nil
		}
		c.conn.Close()
		c.conn = nil
	}
	conn, err := libvirt.NewConnect(c.uri)
	if err != nil {
		return nil, fmt.Errorf("connect to libvirt at %s: %w", c.uri, err)
	}
	c.conn = conn
	return conn, nil
}

func domainInfo(d *libvirt.Domain) (DomainInfo, error) {
	name, err := d.GetName()
	if err != nil {
		return DomainInfo{}, err
	}
	uuid, err := d.GetUUIDString()
	if err != nil {
		return DomainInfo{}, err
	}
	state, _, err := d.GetState()
	if err != nil {
		return DomainInfo{}, err
	}
	return DomainInfo{Name: name, UUID: uuid, Running: state == libvirt.DOMAIN_RUNNING}, nil
}

func (c *connClient) LookupDomain(ctx context.Context, name string) (DomainInfo, bool, error) {
	conn, err := c.connect()
	if err != nil {
		return DomainInfo{}, false, err
	}
	dom, err := conn.LookupDomainByName(name)
	if err != nil {
		if isNotFound(err) {
			return DomainInfo{}, false, nil
		}
		return DomainInfo{}, false, fmt.Errorf("lookup domain %s: %w", name, err)
	}
	defer dom.Free()
	info, err := domainInfo(dom)
	return info, true, err
}

func (c *connClient) DefineDomain(ctx context.Context, domainXML string) (DomainInfo, error) {
	conn, err := c.connect()
	if err != nil {
		return DomainInfo{}, err
	}
	dom, err := conn.DomainDefineXML(domainXML)
	if err != nil {
		return DomainInfo{}, fmt.Errorf("define domain: %w", err)
	}
	defer dom.Free()
	return domainInfo(dom)
}

func (c *connClient) StartDomain(ctx context.Context, name string) error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	dom, err := conn.LookupDomainByName(name)
	if err != nil {
		return fmt.Errorf("lookup domain %s to start: %w", name, err)
	}
	defer dom.Free()
	if err := dom.Create(); err != nil {
		return fmt.Errorf("start domain %s: %w", name, err)
	}
	return nil
}

func (c *connClient) DestroyDomain(ctx context.Context, name string) error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	dom, err := conn.LookupDomainByName(name)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("lookup domain %s to destroy: %w", name, err)
	}
	defer dom.Free()
	state, _, err := dom.GetState()
	if err == nil && state == libvirt.DOMAIN_RUNNING {
		if err := dom.Destroy(); err != nil {
			return fmt.Errorf("destroy domain %s: %w", name, err)
		}
	}
	return nil
}

// UndefineDomain removes a domain's persistent definition. keepNVRAM is
// false for stateless EFI (no NVRAM file exists to worry about) and for
// legacy BIOS domains; when true, it falls back to an NVRAM-preserving
// undefine if the plain undefine fails because libvirt refuses to drop a
// domain with a leftover NVRAM file it didn't create the undefine flag for.
func (c *connClient) UndefineDomain(ctx context.Context, name string, keepNVRAM bool) error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	dom, err := conn.LookupDomainByName(name)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("lookup domain %s to undefine: %w", name, err)
	}
	defer dom.Free()

	err = dom.Undefine()
	if err != nil && keepNVRAM {
		err = dom.UndefineFlags(libvirt.DOMAIN_UNDEFINE_NVRAM)
	}
	if err != nil {
		return fmt.Errorf("undefine domain %s: %w", name, err)
	}
	return nil
}

func (c *connClient) ListDomains(ctx context.Context, namePrefix string) ([]DomainInfo, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	flags := libvirt.CONNECT_LIST_DOMAINS_ACTIVE | libvirt.CONNECT_LIST_DOMAINS_INACTIVE
	domains, err := conn.ListAllDomains(flags)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	var out []DomainInfo
	for i := range domains {
		dom := &domains[i]
		info, err := domainInfo(dom)
		dom.Free()
		if err != nil {
			continue
		}
		if namePrefix != "" && !strings.HasPrefix(info.Name, namePrefix) {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *connClient) DefineNetwork(ctx context.Context, name, networkXML string) error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	net, err := conn.NetworkDefineXML(networkXML)
	if err != nil {
		return fmt.Errorf("define network %s: %w", name, err)
	}
	defer net.Free()
	if err := net.Create(); err != nil {
		return fmt.Errorf("start network %s: %w", name, err)
	}
	return nil
}

func (c *connClient) UndefineNetwork(ctx context.Context, name string) error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	net, err := conn.LookupNetworkByName(name)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("lookup network %s: %w", name, err)
	}
	defer net.Free()
	if active, _ := net.IsActive(); active {
		_ = net.Destroy()
	}
	if err := net.Undefine(); err != nil {
		return fmt.Errorf("undefine network %s: %w", name, err)
	}
	return nil
}

func (c *connClient) DHCPLeaseIP(ctx context.Context, networkName, mac string) (string, error) {
	conn, err := c.connect()
	if err != nil {
		return "", err
	}
	net, err := conn.LookupNetworkByName(networkName)
	if err != nil {
		return "", fmt.Errorf("lookup network %s for dhcp lease: %w", networkName, err)
	}
	defer net.Free()
	leases, err := net.GetDHCPLeases()
	if err != nil {
		return "", fmt.Errorf("get dhcp leases for %s: %w", networkName, err)
	}
	for _, lease := range leases {
		if strings.EqualFold(lease.Mac, mac) {
			return lease.IPaddr, nil
		}
	}
	return "", fmt.Errorf("no dhcp lease found for mac %s on network %s", mac, networkName)
}

func isNotFound(err error) bool {
	lverr, ok := err.(libvirt.Error)
	if !ok {
		return false
	}
	return lverr.Code == libvirt.ERR_NO_DOMAIN || lverr.Code == libvirt.ERR_NO_NETWORK
}
