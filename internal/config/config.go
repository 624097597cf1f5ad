// Package config loads the agent's process configuration from
// ARCHETYPE_AGENT_* environment variables, per spec section 6.
package config

import (
	"os"
	"strconv"
	"time"
)

const envPrefix = "ARCHETYPE_AGENT_"

// Config is the agent's fully resolved runtime configuration. Loaded once
// at startup; nothing in the agent re-reads the environment afterward.
type Config struct {
	ControllerURL    string
	ControllerSecret string

	AgentHost string
	AgentPort int
	LocalIP   string

	HeartbeatInterval time.Duration

	OVSBridgeName   string
	EnableVXLAN     bool
	EnableOVSPlugin bool

	DockerSocket string

	WorkspacePath string

	LibvirtURI string

	QCOW2StorePath    string
	HostImagePathBase string

	RequestTimeout   time.Duration
	ReadinessTimeout time.Duration

	// AuthSecret, if non-empty, is required as a Bearer token on every
	// agent HTTP endpoint except /health and /healthz.
	AuthSecret string
}

// Load reads Config from the environment, applying the same defaults the
// Python agent shipped with (spec section 6's workspace layout and
// timeouts are load-bearing for on-disk paths other tooling expects).
func Load() Config {
	return Config{
		ControllerURL:    envStr("CONTROLLER_URL", ""),
		ControllerSecret: envStr("CONTROLLER_SECRET", ""),

		AgentHost: envStr("AGENT_HOST", "0.0.0.0"),
		AgentPort: envInt("AGENT_PORT", 8765),
		LocalIP:   envStr("LOCAL_IP", ""),

		HeartbeatInterval: envDuration("HEARTBEAT_INTERVAL", 10*time.Second),

		OVSBridgeName:   envStr("OVS_BRIDGE_NAME", "arch-ovs"),
		EnableVXLAN:     envBool("ENABLE_VXLAN", true),
		EnableOVSPlugin: envBool("ENABLE_OVS_PLUGIN", true),

		DockerSocket: envStr("DOCKER_SOCKET", "/var/run/docker.sock"),

		WorkspacePath: envStr("WORKSPACE_PATH", "/var/lib/archetype-agent"),

		LibvirtURI: envStr("LIBVIRT_URI", "qemu:///system"),

		QCOW2StorePath:    envStr("QCOW2_STORE_PATH", "/var/lib/archetype-agent/images"),
		HostImagePathBase: envStr("HOST_IMAGE_PATH", ""),

		RequestTimeout:   envDuration("REQUEST_TIMEOUT", 30*time.Second),
		ReadinessTimeout: envDuration("READINESS_TIMEOUT", 300*time.Second),

		AuthSecret: envStr("AUTH_SECRET", ""),
	}
}

// Debug reports whether verbose/debug logging was requested. Kept separate
// from Config because it's read before Config.Load() would otherwise run
// (it gates the logger that Load()'s own diagnostics would use).
func Debug() bool {
	return envBool("DEBUG", false)
}

func envStr(name, def string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(name string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
