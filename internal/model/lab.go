// Package model defines the shared data types of spec section 3. Types
// owned exclusively by the controller (Lab, Node, Link, NodePlacement,
// NodeState) and types owned exclusively by the agent (LabBridge,
// NetworkState, EndpointState, VxlanTunnel, ActiveConsoleSession) live
// side by side here as plain structs referencing each other only by ID
// tuples, never by pointer — the controller and agent are separate
// processes and this package is imported by both, so it must not bake in
// an ownership direction.
package model

import "time"

// Lab is a declarative topology: a set of nodes, links, and defaults.
// Owned by the controller; every agent operation references a Lab by ID.
type Lab struct {
	ID       string
	Name     string
	Nodes    []Node
	Links    []Link
	Defaults LabDefaults
}

// LabDefaults holds lab-wide settings applied when a Node doesn't
// override them (e.g. a default host assignment).
type LabDefaults struct {
	AgentID string
}

// DeviceKind identifies a node's vendor/platform, used to look up its
// entry in the vendor catalog (internal/vendorcat).
type DeviceKind string

const (
	DeviceLinux    DeviceKind = "linux"
	DeviceCEOS     DeviceKind = "ceos"
	DeviceN9Kv     DeviceKind = "cisco_n9kv"
	DeviceCat9000v DeviceKind = "cat9000v"
	DeviceCiscoIOL DeviceKind = "cisco_iol"
)

// Node is one element of a lab's topology.
type Node struct {
	ID            string
	LabID         string
	Name          string // display_name
	ContainerName string // sanitized, unique within the lab, stable across redeploys
	Kind          DeviceKind
	Image         string // container image ref, or a .qcow2 path for VM-backed devices
	ExplicitHost  string // optional explicit host_id assignment
	InterfaceHint int    // UI-configured max port count, 0 if unset
	StartupConfig string // optional startup config blob

	// VM-only resource hints (internal/libvirtprovider); zero means "use
	// the provider's built-in default" for that field.
	VCPUs           int
	MemoryMB        int
	CPULimitPercent int // 1-100, 0 = unconstrained
}

// IsVM reports whether this node is provisioned via libvirt/QEMU (image
// suffix .qcow2) rather than the Docker provider, per spec section 9's
// provider-dispatch-by-image-suffix rule.
func (n Node) IsVM() bool {
	return len(n.Image) > 6 && n.Image[len(n.Image)-6:] == ".qcow2"
}

// Endpoint identifies one side of a Link: a node and one of its interfaces.
type Endpoint struct {
	Node      string // node name (not ID) — links are defined against the topology graph
	Interface string
}

// Link is an ordered pair of endpoints. Canonical identity is the sorted
// "node:iface" pair; see CanonicalLinkName.
type Link struct {
	ID    string
	LabID string
	A     Endpoint
	B     Endpoint
}

// NodePlacement is (lab_id, node_name) -> host_id, owned by the controller.
// A running node has exactly one placement.
type NodePlacement struct {
	LabID    string
	NodeName string
	HostID   string
	Status   string // e.g. "starting", "running" — informational, not the NodeState machine
}

// ActualState is the agent-observed lifecycle state of a node, driven by
// the state machine in internal/statemachine.
type ActualState string

const (
	StateUndeployed ActualState = "undeployed"
	StatePending    ActualState = "pending"
	StateStarting   ActualState = "starting"
	StateRunning    ActualState = "running"
	StateStopping   ActualState = "stopping"
	StateStopped    ActualState = "stopped"
	StateExited     ActualState = "exited"
	StateError      ActualState = "error"
)

// DesiredState is the user's intent for a node.
type DesiredState string

const (
	DesiredRunning DesiredState = "running"
	DesiredStopped DesiredState = "stopped"
)

// NodeState tracks one node's lifecycle across the lab's life, per spec
// section 3. Created when the lab is first deployed, destroyed with the lab.
type NodeState struct {
	LabID  string
	NodeID string

	Desired DesiredState
	Actual  ActualState

	StartingStartedAt time.Time
	StoppingStartedAt time.Time
	BootStartedAt      time.Time
	ErrorMessage       string
	IsReady            bool
}

// ActiveConsoleSession is the agent-reported state of a web console
// session (spec section 4.8): which node holds the console and whether
// it's currently paused for piggyback extraction. The live PTY/WebSocket
// resources themselves are owned by internal/console, never by this
// package — this is only the ID-tuple-shaped view exposed over the wire.
type ActiveConsoleSession struct {
	LabID    string
	NodeName string

	StartedAt time.Time

	// InputPaused/PTYReadPaused are the flow-gate flags internal/console
	// clears while a piggyback extraction borrows this session's PTY.
	InputPaused   bool
	PTYReadPaused bool
}
