// Package ovsplugin implements Docker's legacy network-driver RPC protocol
// (spec section 4.3): every interface-scoped Docker "network" maps to one
// veth pair on a single shared OVS bridge, isolated by VLAN tag by default
// and linked by retagging matching endpoints onto the same tag.
package ovsplugin

import (
	"time"

	"github.com/archetype-labs/agent/internal/syncx"
)

// labBridge tracks one lab's usage of the shared bridge: which networks
// belong to it and which VXLAN tunnels carry its traffic off-host.
type labBridge struct {
	LabID        string
	NetworkIDs   map[string]struct{}
	Tunnels      map[int]struct{}
	ExternalVLAN map[string]int // interface_name -> vlan tag, for hot-connect bookkeeping
	LastActivity time.Time
}

// network is one Docker network object, scoped to a single lab interface.
type network struct {
	NetworkID     string
	LabID         string
	InterfaceName string
}

// endpoint is one container attachment: a veth pair with an OVS port tag.
type endpoint struct {
	EndpointID    string
	NetworkID     string
	InterfaceName string
	HostVeth      string
	ContVeth      string
	VLANTag       int
	ContainerName string
	NodeName      string // the lab node this endpoint belongs to, for hot-connect lookups
}

// State is the plugin's in-memory registry, guarded by mu and mirrored to
// disk on every mutation via internal/persistence (spec section 4.3 "state
// persistence"). All RPC handlers take this lock for their full duration:
// the plugin processes one Docker libnetwork call at a time, matching the
// reference implementation's single-writer model (spec section 5).
type State struct {
	mu syncx.Mutex

	labBridges map[string]*labBridge        // lab_id -> bridge usage
	networks   map[string]*network          // network_id -> network
	endpoints  map[string]*endpoint         // endpoint_id -> endpoint
	byIface    map[nodeEndpointIface]string // node:iface -> endpoint_id, for hot-connect lookups

	nextMgmtSubnetIdx int
}

func newState() *State {
	return &State{
		labBridges: make(map[string]*labBridge),
		networks:   make(map[string]*network),
		endpoints:  make(map[string]*endpoint),
		byIface:    make(map[nodeEndpointIface]string),
	}
}

func (s *State) bridgeFor(labID string) *labBridge {
	b, ok := s.labBridges[labID]
	if !ok {
		b = &labBridge{
			LabID:        labID,
			NetworkIDs:   make(map[string]struct{}),
			Tunnels:      make(map[int]struct{}),
			ExternalVLAN: make(map[string]int),
		}
		s.labBridges[labID] = b
	}
	return b
}

// labOf returns the lab_id that owns networkID, or "" if unknown.
func (s *State) labOf(networkID string) string {
	if n, ok := s.networks[networkID]; ok {
		return n.LabID
	}
	return ""
}

// nodeEndpointIface identifies one endpoint by the node:interface pair
// recorded in the model, used to resolve hot-connect/hot-disconnect
// requests against tracked OVS ports.
type nodeEndpointIface struct {
	Node      string
	Interface string
}

func qualify(node, iface string) nodeEndpointIface {
	return nodeEndpointIface{Node: node, Interface: iface}
}
