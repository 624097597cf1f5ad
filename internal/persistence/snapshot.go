// Package persistence implements the agent's on-disk state snapshot:
// atomic temp-file-plus-rename writes so a reader never observes a torn
// write (spec sections 4.3 and 5), and the schema the OVS plugin's
// LabBridge/NetworkState/EndpointState/VxlanTunnel state is projected
// into for on-disk storage.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/archetype-labs/agent/internal/syncx"
)

const schemaVersion = 1

// Snapshot is the JSON document written to
// {workspace}/docker_ovs_plugin_state.json, per spec section 6.
type Snapshot struct {
	SchemaVersion      int                         `json:"schema_version"`
	SavedAt            time.Time                   `json:"saved_at"`
	NextMgmtSubnetIdx  int                         `json:"next_mgmt_subnet_index"`
	LabBridges         []LabBridgeSnapshot         `json:"lab_bridges"`
	Networks           []NetworkSnapshot           `json:"networks"`
	Endpoints          []EndpointSnapshot          `json:"endpoints"`
	ManagementNetworks []ManagementNetworkSnapshot `json:"management_networks"`
}

type LabBridgeSnapshot struct {
	LabID        string         `json:"lab_id"`
	BridgeName   string         `json:"bridge_name"`
	NetworkIDs   []string       `json:"network_ids"`
	Tunnels      []int          `json:"tunnels"`
	ExternalVLAN map[string]int `json:"external_vlan"`
	LastActivity time.Time      `json:"last_activity"`
}

type NetworkSnapshot struct {
	NetworkID     string `json:"network_id"`
	LabID         string `json:"lab_id"`
	InterfaceName string `json:"interface_name"`
	BridgeName    string `json:"bridge_name"`
}

type EndpointSnapshot struct {
	EndpointID    string `json:"endpoint_id"`
	NetworkID     string `json:"network_id"`
	InterfaceName string `json:"interface_name"`
	HostVeth      string `json:"host_veth"`
	ContVeth      string `json:"cont_veth"`
	VLANTag       int    `json:"vlan_tag"`
	ContainerName string `json:"container_name"`
}

// ManagementNetworkSnapshot records a reserved mgmt-style subnet index, so
// subnet assignment doesn't collide across restarts.
type ManagementNetworkSnapshot struct {
	LabID      string `json:"lab_id"`
	SubnetIdx  int    `json:"subnet_index"`
}

// Store guards reads/writes to a single snapshot file. Every mutation the
// OVS plugin makes marks its in-memory state dirty and synchronously calls
// Save — the persisted file is written by at most one goroutine at a time
// (spec section 5).
type Store struct {
	mu   syncx.Mutex
	path string
}

func NewStore(workspacePath string) *Store {
	return &Store{path: filepath.Join(workspacePath, "docker_ovs_plugin_state.json")}
}

// Load reads the persisted snapshot. A missing file is not an error — it
// means this is a fresh agent with no lab state yet (spec section 4.5
// step 1) — and returns (nil, nil).
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt state file on disk is a fatal-class failure per spec
		// section 7: log it (caller's responsibility) and start empty,
		// never crash the agent.
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save atomically persists snap: write to a temp file in the same
// directory, fsync, then rename over the target path. Readers observe
// either the previous file or the fully-written new one, never a partial
// write, because rename(2) is atomic within a filesystem.
func (s *Store) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.SchemaVersion = schemaVersion
	snap.SavedAt = time.Now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}

	return nil
}
