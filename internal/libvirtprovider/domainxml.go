package libvirtprovider

import (
	"encoding/xml"
	"fmt"

	"github.com/archetype-labs/agent/internal/model"
	"github.com/archetype-labs/agent/internal/vendorcat"
)

// Closed lists validated against per spec section 4.6; anything outside
// these fails domain XML generation rather than being passed through to
// libvirt to reject.
var (
	validDiskDrivers   = map[string]bool{"virtio": true, "ide": true, "sata": true, "scsi": true}
	validNICModels     = map[string]bool{"virtio": true, "e1000": true, "e1000e": true, "rtl8139": true, "vmxnet3": true}
	validLibvirtDrivers = map[string]bool{"kvm": true, "qemu": true}
)

const (
	defaultVCPUs       = 2
	defaultMemoryMB    = 2048
	defaultDiskDriver  = "virtio"
	defaultNICModel    = "virtio"
	defaultLibvirtDrv  = "kvm"
	defaultMachineType = "q35"
)

// DomainSpec holds the resolved, validated inputs to domain XML
// generation — everything BuildDomainXML needs, with no further lookups.
type DomainSpec struct {
	Name       string
	VCPUs      int
	MemoryMB   int
	MachineType string
	LibvirtDriver string
	DiskDriver string
	NICModel   string

	DiskPath      string
	DataDiskPath  string // empty if the device has no data volume

	BridgeName  string // shared OVS bridge name, source of every data interface
	MgmtNetwork string // "" if the device has no dedicated mgmt NIC
	DataLinks   []DataLinkSpec

	CPULimitPercent int // 0 = unconstrained

	EFI        bool
	EFIFirmware EFIFirmwareSpec

	Readiness vendorcat.Readiness
	DeviceKind string
}

// DataLinkSpec is one OVS-attached data-plane interface.
type DataLinkSpec struct {
	Index   int
	MAC     string
	OVSPort string
	VLANTag int
}

// EFIFirmwareSpec describes how OVMF firmware is wired in, chosen per
// spec section 4.6's two EFI variants.
type EFIFirmwareSpec struct {
	// Stateful variant: <os><loader>+<nvram> template, detected on the host.
	LoaderPath        string
	NVRAMTemplatePath string
	NVRAMPath         string // per-domain copy libvirt creates from the template

	// Stateless variant: a single read-only pflash drive passed via
	// qemu:commandline, no <loader> element at all.
	PflashPath string
}

func (s EFIFirmwareSpec) stateful() bool  { return s.LoaderPath != "" }
func (s EFIFirmwareSpec) stateless() bool { return s.PflashPath != "" }

// NewDomainSpec resolves a model.Node + vendorcat.Device + already-allocated
// network/overlay details into a DomainSpec, validating every field against
// the closed lists spec section 4.6 requires. Reject, don't coerce: an
// invalid machine/disk/NIC/driver type is a configuration bug upstream, not
// something to silently clamp.
func NewDomainSpec(labID string, node model.Node, dev vendorcat.Device, diskPath, dataDiskPath string) (DomainSpec, error) {
	name := DomainName(labID, node.Name)

	diskDriver := dev.DiskDriver
	if diskDriver == "" {
		diskDriver = defaultDiskDriver
	}
	if !validDiskDrivers[diskDriver] {
		return DomainSpec{}, fmt.Errorf("libvirtprovider: unsupported disk driver %q", diskDriver)
	}

	nicModel := dev.NICModel
	if nicModel == "" {
		nicModel = defaultNICModel
	}
	if !validNICModels[nicModel] {
		return DomainSpec{}, fmt.Errorf("libvirtprovider: unsupported NIC model %q", nicModel)
	}

	machineType := dev.MachineType
	if machineType == "" {
		machineType = defaultMachineType
	}

	libvirtDriver := defaultLibvirtDrv
	if !validLibvirtDrivers[libvirtDriver] {
		return DomainSpec{}, fmt.Errorf("libvirtprovider: unsupported libvirt driver %q", libvirtDriver)
	}

	vcpus := node.VCPUs
	if vcpus <= 0 {
		vcpus = defaultVCPUs
	}
	memMB := node.MemoryMB
	if memMB <= 0 {
		memMB = defaultMemoryMB
	}

	cpuLimit := 0
	if dev.CPULimitSupported && node.CPULimitPercent > 0 {
		cpuLimit = node.CPULimitPercent
		if cpuLimit > 100 {
			cpuLimit = 100
		}
	}

	return DomainSpec{
		Name:            name,
		VCPUs:           vcpus,
		MemoryMB:        memMB,
		MachineType:     machineType,
		LibvirtDriver:   libvirtDriver,
		DiskDriver:      diskDriver,
		NICModel:        nicModel,
		DiskPath:        diskPath,
		DataDiskPath:    dataDiskPath,
		CPULimitPercent: cpuLimit,
		EFI:             dev.EFIBoot,
		Readiness:       dev.Readiness,
		DeviceKind:      dev.Kind,
	}, nil
}

// --- XML struct definitions, marshaled via encoding/xml so every
// user-controlled value (names, paths, MACs) is escaped automatically. ---

type domainXML struct {
	XMLName  xml.Name `xml:"domain"`
	Type     string   `xml:"type,attr"`
	XMLNS    string   `xml:"xmlns:archetype,attr"`
	Name     string   `xml:"name"`
	VCPU     int      `xml:"vcpu"`
	Memory   memoryXML `xml:"memory"`
	OS       osXML     `xml:"os"`
	CPUTune  *cpuTuneXML `xml:"cputune,omitempty"`
	Devices  devicesXML  `xml:"devices"`
	Metadata metadataXML `xml:"metadata"`
	QEMUCmdline *qemuCommandlineXML `xml:"qemu:commandline,omitempty"`
}

type memoryXML struct {
	Unit  string `xml:"unit,attr"`
	Value int    `xml:",chardata"`
}

type osXML struct {
	Type   osTypeXML `xml:"type"`
	Loader *loaderXML `xml:"loader,omitempty"`
	NVRAM  *nvramXML  `xml:"nvram,omitempty"`
}

type osTypeXML struct {
	Arch    string `xml:"arch,attr"`
	Machine string `xml:"machine,attr"`
	Value   string `xml:",chardata"`
}

type loaderXML struct {
	Readonly string `xml:"readonly,attr"`
	Type     string `xml:"type,attr"`
	Path     string `xml:",chardata"`
}

type nvramXML struct {
	Template string `xml:"template,attr"`
	Path     string `xml:",chardata"`
}

type cpuTuneXML struct {
	Period int `xml:"period"`
	Quota  int `xml:"quota"`
}

type devicesXML struct {
	Disks      []diskXML      `xml:"disk"`
	Interfaces []interfaceXML `xml:"interface"`
}

type diskXML struct {
	Type   string        `xml:"type,attr"`
	Device string        `xml:"device,attr"`
	Driver diskDriverXML `xml:"driver"`
	Source diskSourceXML `xml:"source"`
	Target diskTargetXML `xml:"target"`
}

type diskDriverXML struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type diskSourceXML struct {
	File string `xml:"file,attr"`
}

type diskTargetXML struct {
	Dev string `xml:"dev,attr"`
	Bus string `xml:"bus,attr"`
}

type interfaceXML struct {
	Type        string             `xml:"type,attr"`
	MAC         macXML             `xml:"mac"`
	Source      interfaceSourceXML `xml:"source"`
	Target      *targetDevXML      `xml:"target,omitempty"`
	VirtualPort *virtualPortXML    `xml:"virtualport,omitempty"`
	VLAN        *vlanXML           `xml:"vlan,omitempty"`
	Model       modelXML           `xml:"model"`
}

type targetDevXML struct {
	Dev string `xml:"dev,attr"`
}

type macXML struct {
	Address string `xml:"address,attr"`
}

type interfaceSourceXML struct {
	Bridge  string `xml:"bridge,attr,omitempty"`
	Network string `xml:"network,attr,omitempty"`
}

type virtualPortXML struct {
	Type string `xml:"type,attr"`
}

type vlanXML struct {
	Tag vlanTagXML `xml:"tag"`
}

type vlanTagXML struct {
	ID int `xml:"id,attr"`
}

type modelXML struct {
	Type string `xml:"type,attr"`
}

type metadataXML struct {
	Archetype archetypeMetaXML `xml:"archetype:node"`
}

type archetypeMetaXML struct {
	DeviceKind       string `xml:"device-kind,attr"`
	ReadinessKind    string `xml:"readiness-kind,attr"`
	ReadinessPattern string `xml:"readiness-pattern,attr,omitempty"`
	ReadinessTimeout string `xml:"readiness-timeout,attr"`
}

type qemuCommandlineXML struct {
	XMLNS string         `xml:"xmlns:qemu,attr"`
	Args  []qemuArgXML   `xml:"qemu:arg"`
}

type qemuArgXML struct {
	Value string `xml:"value,attr"`
}

// BuildDomainXML renders spec's domain into libvirt domain XML. All string
// fields pass through encoding/xml's attribute/text escaping; nothing here
// builds XML via string concatenation.
func BuildDomainXML(spec DomainSpec) (string, error) {
	dom := domainXML{
		Type:  spec.LibvirtDriver,
		XMLNS: "http://archetype.invalid/domain-metadata/1",
		Name:  spec.Name,
		VCPU:  spec.VCPUs,
		Memory: memoryXML{Unit: "MiB", Value: spec.MemoryMB},
		OS: osXML{
			Type: osTypeXML{Arch: "x86_64", Machine: spec.MachineType, Value: "hvm"},
		},
	}

	if spec.EFI {
		switch {
		case spec.EFIFirmware.stateful():
			dom.OS.Loader = &loaderXML{Readonly: "yes", Type: "pflash", Path: spec.EFIFirmware.LoaderPath}
			dom.OS.NVRAM = &nvramXML{Template: spec.EFIFirmware.NVRAMTemplatePath, Path: spec.EFIFirmware.NVRAMPath}
		case spec.EFIFirmware.stateless():
			dom.QEMUCmdline = &qemuCommandlineXML{
				XMLNS: "http://libvirt.org/schemas/domain/qemu/1.0",
				Args: []qemuArgXML{
					{Value: "-drive"},
					{Value: fmt.Sprintf("if=pflash,format=raw,readonly=on,file=%s", spec.EFIFirmware.PflashPath)},
				},
			}
		default:
			return "", fmt.Errorf("libvirtprovider: efi_boot=true but no OVMF firmware path resolved for %s", spec.Name)
		}
	}

	if spec.CPULimitPercent > 0 {
		quota := spec.VCPUs * 100000 * spec.CPULimitPercent / 100
		dom.CPUTune = &cpuTuneXML{Period: 100000, Quota: quota}
	}

	disks := []diskXML{{
		Type: "file", Device: "disk",
		Driver: diskDriverXML{Name: "qemu", Type: "qcow2"},
		Source: diskSourceXML{File: spec.DiskPath},
		Target: diskTargetXML{Dev: diskTargetDevice(spec.DiskDriver, 0), Bus: spec.DiskDriver},
	}}
	if spec.DataDiskPath != "" {
		disks = append(disks, diskXML{
			Type: "file", Device: "disk",
			Driver: diskDriverXML{Name: "qemu", Type: "qcow2"},
			Source: diskSourceXML{File: spec.DataDiskPath},
			Target: diskTargetXML{Dev: diskTargetDevice(spec.DiskDriver, 1), Bus: spec.DiskDriver},
		})
	}
	dom.Devices.Disks = disks

	var ifaces []interfaceXML
	if spec.MgmtNetwork != "" {
		ifaces = append(ifaces, interfaceXML{
			Type:   "network",
			MAC:    macXML{Address: DeterministicMAC(spec.Name, 0)},
			Source: interfaceSourceXML{Network: spec.MgmtNetwork},
			Model:  modelXML{Type: spec.NICModel},
		})
	}
	for _, link := range spec.DataLinks {
		ifaces = append(ifaces, interfaceXML{
			Type:        "bridge",
			MAC:         macXML{Address: link.MAC},
			Source:      interfaceSourceXML{Bridge: spec.BridgeName},
			Target:      &targetDevXML{Dev: link.OVSPort},
			VirtualPort: &virtualPortXML{Type: "openvswitch"},
			VLAN:        &vlanXML{Tag: vlanTagXML{ID: link.VLANTag}},
			Model:       modelXML{Type: spec.NICModel},
		})
	}
	dom.Devices.Interfaces = ifaces

	dom.Metadata = metadataXML{Archetype: archetypeMetaXML{
		DeviceKind:       spec.DeviceKind,
		ReadinessKind:    string(spec.Readiness.Kind),
		ReadinessPattern: spec.Readiness.Pattern,
		ReadinessTimeout: spec.Readiness.Timeout.String(),
	}}

	out, err := xml.MarshalIndent(dom, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal domain xml: %w", err)
	}
	return xml.Header + string(out), nil
}

func diskTargetDevice(bus string, index int) string {
	letter := byte('a' + index)
	switch bus {
	case "virtio":
		return "vd" + string(letter)
	case "scsi", "sata":
		return "sd" + string(letter)
	default:
		return "hd" + string(letter)
	}
}
