// Package vendorcat is the vendor device catalog: a pure lookup table from
// device kind to its readiness probe, config extraction method, and
// libvirt domain requirements. Spec section 1 explicitly treats this
// catalog as an external collaborator ("vendor config catalog treated as
// a pure lookup table") — this package is intentionally just static data
// plus a Lookup function, not a management subsystem.
package vendorcat

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ReadinessKind is how a provider decides a node has finished booting.
type ReadinessKind string

const (
	ReadinessNone       ReadinessKind = "none"
	ReadinessLogPattern ReadinessKind = "log_pattern"
	ReadinessCLIProbe   ReadinessKind = "cli_probe"
	ReadinessSSH        ReadinessKind = "ssh"
)

// ConfigExtractMethod is how a node's running configuration is pulled.
type ConfigExtractMethod string

const (
	ExtractNone   ConfigExtractMethod = "none"
	ExtractDocker ConfigExtractMethod = "docker"
	ExtractSSH    ConfigExtractMethod = "ssh"
	ExtractSerial ConfigExtractMethod = "serial"
)

// ProgressPattern is a secondary log-pattern match used to report
// intermediate boot progress (e.g. cEOS: ZTP=20, AAA=40, API=60,
// hostname=80), per spec section 4.6.
type ProgressPattern struct {
	Pattern  string `yaml:"pattern"`
	Progress int    `yaml:"progress"`
}

// Readiness describes how to probe a device kind for boot completion.
type Readiness struct {
	Kind     ReadinessKind     `yaml:"kind"`
	Pattern  string            `yaml:"pattern,omitempty"`
	Progress []ProgressPattern `yaml:"progress,omitempty"`
	Probe    string            `yaml:"probe,omitempty"` // command, for cli_probe

	Timeout time.Duration `yaml:"timeout"`

	// SSHFallbackAfter resolves the open question in spec section 9: the
	// SSH readiness probe falls back to virsh console scraping if SSH
	// auth keeps failing during an early-boot window, but the original
	// implementation hard-codes that window. Here it's an explicit,
	// per-device-kind-overridable catalog field.
	SSHFallbackAfter time.Duration `yaml:"ssh_fallback_after,omitempty"`
}

// Device is one vendor catalog entry.
type Device struct {
	Kind                 string              `yaml:"kind"`
	ConfigExtractMethod  ConfigExtractMethod `yaml:"config_extract_method"`
	ConfigExtractCommand string              `yaml:"config_extract_command,omitempty"`
	SSHUsername          string              `yaml:"ssh_username,omitempty"`
	SSHPassword          string              `yaml:"ssh_password,omitempty"`
	Readiness            Readiness           `yaml:"readiness"`

	RequiresMgmtInterface bool `yaml:"requires_mgmt_interface"`
	EFIBoot               bool `yaml:"efi_boot"`
	DataVolumeSizeMB      int  `yaml:"data_volume_size_mb,omitempty"`
	CPULimitSupported     bool `yaml:"cpu_limit_supported"`

	MachineType string `yaml:"machine_type,omitempty"`
	DiskDriver  string `yaml:"disk_driver,omitempty"`
	NICModel    string `yaml:"nic_model,omitempty"`
}

// Catalog is an immutable, in-memory vendor device table.
type Catalog struct {
	devices map[string]Device
}

// Parse loads a Catalog from YAML bytes shaped as a top-level list under
// "devices", each entry matching Device.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Devices []Device `yaml:"devices"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse vendor catalog: %w", err)
	}

	devices := make(map[string]Device, len(doc.Devices))
	for _, d := range doc.Devices {
		devices[d.Kind] = d
	}
	return &Catalog{devices: devices}, nil
}

// Lookup returns the catalog entry for kind, or false if unknown — an
// unknown device kind is a validation-class error (spec section 7) for
// whichever provider is asking, not handled inside this package.
func (c *Catalog) Lookup(kind string) (Device, bool) {
	d, ok := c.devices[kind]
	return d, ok
}

// Default returns the built-in catalog covering the device kinds named
// throughout spec section 4.6, used when no override file is configured.
func Default() *Catalog {
	cat, err := Parse([]byte(defaultCatalogYAML))
	if err != nil {
		// The embedded default catalog is a compile-time constant; a
		// parse failure here means the constant itself is malformed,
		// which is a programming error, not a runtime condition.
		panic(fmt.Sprintf("vendorcat: default catalog is invalid: %v", err))
	}
	return cat
}

const defaultCatalogYAML = `
devices:
  - kind: linux
    config_extract_method: none
    cpu_limit_supported: true
    readiness:
      kind: none
      timeout: 30s

  - kind: ceos
    config_extract_method: docker
    config_extract_command: "Cli -p 15 -c 'show running-config'"
    requires_mgmt_interface: false
    cpu_limit_supported: true
    readiness:
      kind: log_pattern
      pattern: "System is ready"
      timeout: 300s
      progress:
        - pattern: "ZeroTouch Provisioning is disabled"
          progress: 20
        - pattern: "aaa initializing"
          progress: 40
        - pattern: "Started EosSdkAgentMgr"
          progress: 60
        - pattern: "hostname"
          progress: 80

  - kind: cisco_n9kv
    config_extract_method: ssh
    ssh_username: admin
    ssh_password: admin
    requires_mgmt_interface: true
    efi_boot: false
    data_volume_size_mb: 2048
    cpu_limit_supported: true
    readiness:
      kind: ssh
      timeout: 1200s
      ssh_fallback_after: 240s

  - kind: cat9000v
    config_extract_method: ssh
    ssh_username: admin
    ssh_password: admin
    requires_mgmt_interface: true
    efi_boot: true
    cpu_limit_supported: true
    readiness:
      kind: ssh
      timeout: 2400s
      ssh_fallback_after: 300s

  - kind: cisco_iol
    config_extract_method: serial
    cpu_limit_supported: false
    readiness:
      kind: cli_probe
      probe: "show version"
      timeout: 180s
`
