package ovsplugin

// Request/response shapes for Docker's legacy network-driver plugin
// protocol: one JSON object per call, POSTed to /{MethodName} on the
// plugin's Unix socket.

type activateResponse struct {
	Implements []string `json:"Implements"`
}

type capabilitiesResponse struct {
	Scope             string `json:"Scope"`
	ConnectivityScope string `json:"ConnectivityScope"`
}

type createNetworkRequest struct {
	NetworkID string            `json:"NetworkID"`
	Options   map[string]any    `json:"Options"`
	IPv4Data  []ipamData        `json:"IPv4Data"`
	Labels    map[string]string `json:"Labels"`
}

type ipamData struct {
	Pool string `json:"Pool"`
}

type deleteNetworkRequest struct {
	NetworkID string `json:"NetworkID"`
}

type createEndpointRequest struct {
	NetworkID  string         `json:"NetworkID"`
	EndpointID string         `json:"EndpointID"`
	Interface  map[string]any `json:"Interface"`
}

type createEndpointResponse struct {
	Interface *endpointInterface `json:"Interface,omitempty"`
}

type endpointInterface struct {
	Address     string `json:"Address,omitempty"`
	AddressIPv6 string `json:"AddressIPv6,omitempty"`
	MacAddress  string `json:"MacAddress,omitempty"`
}

type deleteEndpointRequest struct {
	NetworkID  string `json:"NetworkID"`
	EndpointID string `json:"EndpointID"`
}

type endpointOperInfoRequest struct {
	NetworkID  string `json:"NetworkID"`
	EndpointID string `json:"EndpointID"`
}

type endpointOperInfoResponse struct {
	Value map[string]any `json:"Value"`
}

type joinRequest struct {
	NetworkID  string `json:"NetworkID"`
	EndpointID string `json:"EndpointID"`
	SandboxKey string `json:"SandboxKey"`
}

type joinResponse struct {
	InterfaceName interfaceName `json:"InterfaceName"`
	Gateway       string        `json:"Gateway,omitempty"`
}

type interfaceName struct {
	SrcName   string `json:"SrcName"`
	DstPrefix string `json:"DstPrefix"`
}

type leaveRequest struct {
	NetworkID  string `json:"NetworkID"`
	EndpointID string `json:"EndpointID"`
}

// dstPrefix is the interface name prefix Docker appends an index to inside
// the container netns (e.g. "eth" -> "eth0").
const dstPrefix = "eth"

// errorResponse is returned (with a non-2xx status is not required by the
// protocol — libnetwork checks the body) whenever a handler fails.
type errorResponse struct {
	Err string `json:"Err"`
}
