package model

import (
	"strconv"
	"time"
)

// LabBridge tracks one lab's use of the agent's single shared OVS bridge:
// which Docker network IDs, VXLAN tunnels, and external-interface VLAN
// attachments belong to it, for TTL-based cleanup and reconciliation.
// bridge_name is always the shared agent-wide bridge (spec section 3) —
// labs never get their own OVS bridge.
type LabBridge struct {
	LabID        string
	BridgeName   string
	NetworkIDs   map[string]struct{} // owning Docker network IDs
	Tunnels      map[int]struct{}    // VNIs with an active tunnel for this lab
	ExternalVLAN map[string]int      // external iface name -> VLAN tag
	LastActivity time.Time
}

// NetworkState is one Docker network (one per container interface),
// persisted so the plugin can reconstruct its view of the world on
// restart without re-querying Docker for intent.
type NetworkState struct {
	NetworkID     string
	LabID         string
	InterfaceName string
	BridgeName    string
}

// EndpointState is one veth pair provisioned for a container interface.
// host_veth is the OVS-side name; cont_veth is the name Docker moves into
// the container's network namespace at Join.
type EndpointState struct {
	EndpointID    string
	NetworkID     string
	InterfaceName string
	HostVeth      string
	ContVeth      string
	VLANTag       int
	ContainerName string
}

// VxlanTunnel is a cross-host link: VNI is globally unique across the
// agent, and at most one tunnel may exist per (local_ip, remote_ip, vni).
type VxlanTunnel struct {
	LabID         string
	VNI           int
	LocalIP       string
	RemoteIP      string
	InterfaceName string
}

// Key uniquely identifies a tunnel for the at-most-one-per-pair invariant.
func (t VxlanTunnel) Key() [3]string {
	return [3]string{t.LocalIP, t.RemoteIP, strconv.Itoa(t.VNI)}
}
