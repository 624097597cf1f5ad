package httpapi

import (
	"github.com/archetype-labs/agent/internal/model"
)

// Result is embedded in every response: callers (the controller, and
// Docker's own plugin protocol indirectly) key off success/error rather
// than HTTP status for expected failure modes (spec section 4.1: "never
// raises to HTTP 500 for expected failure modes").
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func ok() Result  { return Result{Success: true} }
func fail(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// DeployRequest carries this agent's slice of a lab's topology — the
// controller partitions a full topology by placement before sending one
// request per agent (spec section 2).
type DeployRequest struct {
	Lab model.Lab `json:"lab"`
}

type DeployResponse struct {
	Result
	Deployed      []string          `json:"deployed,omitempty"`
	Failed        map[string]string `json:"failed,omitempty"`
	MissingImages map[string]string `json:"missing_images,omitempty"`
}

// NodeActionRequest is the body for /nodes/{lab}/{node}/{start|stop|destroy}.
// Node carries enough of the topology record to dispatch to the right
// provider (model.Node.IsVM) and, for container start, to know which
// networks to reattach if Docker reports a stale reference.
type NodeActionRequest struct {
	Node         model.Node `json:"node"`
	NetworkNames []string   `json:"network_names,omitempty"`
}

type NodeActionResponse struct {
	Result
	Idempotent bool `json:"idempotent,omitempty"`
}

// LinkEndpoint names one side of a hot-connect/hot-disconnect request.
type LinkEndpoint struct {
	Node      string `json:"node"`
	Interface string `json:"interface"`
}

type LinkRequest struct {
	A LinkEndpoint `json:"a"`
	B LinkEndpoint `json:"b"`
}

// InterfaceRestoreRequest carries the peer endpoint a restored interface
// should be retagged onto, matching whatever link it belonged to — the
// agent has no independent memory of a link's other side once isolate has
// already reallocated its tag away.
type InterfaceRestoreRequest struct {
	Peer LinkEndpoint `json:"peer"`
}

type TunnelRequest struct {
	LabID    string `json:"lab_id"`
	VNI      int    `json:"vni"`
	LocalIP  string `json:"local_ip"`
	RemoteIP string `json:"remote_ip"`
	VLANTag  int    `json:"vlan_tag"`
}

type ExternalAttachRequest struct {
	Interface string `json:"interface"`
	VLANTag   int    `json:"vlan_tag"`
}

type ExternalDetachRequest struct {
	Interface string `json:"interface"`
}

type ReconcilePortsRequest struct {
	ValidPortNames []string `json:"valid_port_names"`
	Force          bool     `json:"force"`
	Confirm        bool     `json:"confirm"`
	AllowEmpty     bool     `json:"allow_empty"`
}

type ReconcilePortsResponse struct {
	Result
	Removed []string `json:"removed,omitempty"`
}

// ConsoleExtractRequest drives a serial-console config extraction attempt
// (spec section 4.8), bypassing the vendor catalog's docker/ssh extraction
// paths — used when a node's management network isn't reachable yet.
type ConsoleExtractRequest struct {
	Command        string `json:"command"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	EnablePassword string `json:"enable_password,omitempty"`
	PromptPattern  string `json:"prompt_pattern,omitempty"`
}

type ConsoleExtractResponse struct {
	Result
	Config string `json:"config,omitempty"`
}
