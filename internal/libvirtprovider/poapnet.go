package libvirtprovider

import (
	"context"
	"encoding/xml"
	"fmt"
)

// POAPNetworkName is the per-node dedicated NAT network name libvirt uses
// for a N9Kv-style device's POAP bootstrap (spec section 4.6).
func POAPNetworkName(labID, nodeName string) string {
	return "ap-poap-" + truncate(filterName(labID), 20) + "-" + truncate(filterName(nodeName), 30)
}

type networkXML struct {
	XMLName xml.Name      `xml:"network"`
	Name    string        `xml:"name"`
	Forward forwardXML    `xml:"forward"`
	Bridge  netBridgeXML  `xml:"bridge"`
	IP      netIPXML      `xml:"ip"`
}

type forwardXML struct {
	Mode string `xml:"mode,attr"`
}

type netBridgeXML struct {
	Name string `xml:"name,attr"`
	STP  string `xml:"stp,attr"`
}

type netIPXML struct {
	Address string     `xml:"address,attr"`
	Netmask string     `xml:"netmask,attr"`
	DHCP    netDHCPXML `xml:"dhcp"`
}

type netDHCPXML struct {
	Range netDHCPRangeXML `xml:"range"`
	Bootp netBootpXML     `xml:"bootp"`
}

type netDHCPRangeXML struct {
	Start string `xml:"start,attr"`
	End   string `xml:"end,attr"`
}

type netBootpXML struct {
	File   string `xml:"file,attr"`
	Server string `xml:"server,attr"`
}

// buildPOAPNetworkXML renders a per-node NAT network pushing DHCP options
// 66 (next-server) and 67 (bootfile URL) so a fresh N9Kv downloads its
// POAP bootstrap script on first boot. gatewayIP doubles as the agent's
// address (option 66's next-server) since the agent listens on the
// network's gateway interface.
func buildPOAPNetworkXML(name, gatewayIP, netmask, dhcpStart, dhcpEnd string, agentAddr string, labID, nodeName string) (string, error) {
	net := networkXML{
		Name:    name,
		Forward: forwardXML{Mode: "nat"},
		Bridge:  netBridgeXML{Name: "virbr-" + truncate(filterName(nodeName), 12), STP: "on"},
		IP: netIPXML{
			Address: gatewayIP,
			Netmask: netmask,
			DHCP: netDHCPXML{
				Range: netDHCPRangeXML{Start: dhcpStart, End: dhcpEnd},
				Bootp: netBootpXML{
					File:   fmt.Sprintf("http://%s/poap/%s/%s/script.py", agentAddr, escapeXML(labID), escapeXML(nodeName)),
					Server: gatewayIP,
				},
			},
		},
	}
	out, err := xml.MarshalIndent(net, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal poap network xml: %w", err)
	}
	return xml.Header + string(out), nil
}

// EnsurePOAPNetwork defines and starts a node's dedicated POAP network,
// idempotently (spec section 4.6). agentAddr is "host:port" the booting
// device can reach the agent's HTTP API on.
func (p *Provider) EnsurePOAPNetwork(ctx context.Context, labID, nodeName, gatewayIP, netmask, dhcpStart, dhcpEnd, agentAddr string) error {
	name := POAPNetworkName(labID, nodeName)
	xmlStr, err := buildPOAPNetworkXML(name, gatewayIP, netmask, dhcpStart, dhcpEnd, agentAddr, labID, nodeName)
	if err != nil {
		return err
	}
	if err := p.virt.DefineNetwork(ctx, name, xmlStr); err != nil {
		return p.wrapf(err, "define poap network for %s/%s", labID, nodeName)
	}
	p.poapMu.Lock()
	p.poapNetworks[labID+"/"+nodeName] = name
	p.poapMu.Unlock()
	return nil
}

// TeardownPOAPNetwork removes a node's POAP network, if any.
func (p *Provider) TeardownPOAPNetwork(ctx context.Context, labID, nodeName string) error {
	p.poapMu.Lock()
	delete(p.poapNetworks, labID+"/"+nodeName)
	p.poapMu.Unlock()
	return p.virt.UndefineNetwork(ctx, POAPNetworkName(labID, nodeName))
}

// mgmtNetworkFor returns the node's dedicated POAP network if one has been
// provisioned for it, else the host's default libvirt NAT network.
func (p *Provider) mgmtNetworkFor(labID, nodeName string) string {
	p.poapMu.Lock()
	defer p.poapMu.Unlock()
	if name, ok := p.poapNetworks[labID+"/"+nodeName]; ok {
		return name
	}
	return "default"
}
