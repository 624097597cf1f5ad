package ovsplugin

import "context"

// RegisterVMPort tracks a libvirt-attached OVS port (spec section 4.6: the
// domain XML's virtualport+vlan element makes libvirt/qemu add the tap to
// the bridge itself, so there is no veth pair or AddPort call here) the
// same way a Docker endpoint is tracked, so HotConnect/HotDisconnect/
// Isolate work uniformly across both providers. Returns the endpoint id so
// the caller can later call ReleaseVMPort.
func (p *Plugin) RegisterVMPort(labID, nodeName, iface, portName string, tag int) string {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	networkID := "vm:" + labID + ":" + nodeName + ":" + iface
	p.state.networks[networkID] = &network{NetworkID: networkID, LabID: labID, InterfaceName: iface}

	endpointID := "vm-ep:" + portName
	p.state.endpoints[endpointID] = &endpoint{
		EndpointID:    endpointID,
		NetworkID:     networkID,
		InterfaceName: iface,
		HostVeth:      portName,
		ContVeth:      portName,
		VLANTag:       tag,
		NodeName:      nodeName,
	}
	p.state.byIface[qualify(nodeName, iface)] = endpointID

	b := p.state.bridgeFor(labID)
	b.NetworkIDs[networkID] = struct{}{}

	p.persistLocked()
	return endpointID
}

// ReleaseVMPort drops a RegisterVMPort registration and releases its VLAN
// tag. The OVS port itself is removed by libvirt tearing down the domain's
// tap device, not by this call.
func (p *Plugin) ReleaseVMPort(ctx context.Context, nodeName, iface string) {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	id, ok := p.state.byIface[qualify(nodeName, iface)]
	if !ok {
		return
	}
	ep, ok := p.state.endpoints[id]
	if !ok {
		return
	}
	labID := p.state.labOf(ep.NetworkID)
	delete(p.state.byIface, qualify(nodeName, iface))
	delete(p.state.endpoints, id)
	delete(p.state.networks, ep.NetworkID)
	if b, ok := p.state.labBridges[labID]; ok {
		delete(b.NetworkIDs, ep.NetworkID)
	}
	p.VLAN.Release(ep.VLANTag)
	p.persistLocked()
}
