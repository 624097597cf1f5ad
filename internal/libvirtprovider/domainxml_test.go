package libvirtprovider

import (
	"strings"
	"testing"

	"github.com/archetype-labs/agent/internal/model"
	"github.com/archetype-labs/agent/internal/vendorcat"
)

func TestNewDomainSpec_RejectsUnsupportedDiskDriver(t *testing.T) {
	dev := vendorcat.Device{Kind: "linux", DiskDriver: "nope"}
	_, err := NewDomainSpec("lab1", model.Node{Name: "leaf1"}, dev, "/disks/leaf1.qcow2", "")
	if err == nil {
		t.Fatal("expected an error for an unsupported disk driver")
	}
}

func TestNewDomainSpec_RejectsUnsupportedNICModel(t *testing.T) {
	dev := vendorcat.Device{Kind: "linux", NICModel: "token-ring"}
	_, err := NewDomainSpec("lab1", model.Node{Name: "leaf1"}, dev, "/disks/leaf1.qcow2", "")
	if err == nil {
		t.Fatal("expected an error for an unsupported NIC model")
	}
}

func TestNewDomainSpec_AppliesDefaults(t *testing.T) {
	dev := vendorcat.Device{Kind: "linux"}
	spec, err := NewDomainSpec("lab1", model.Node{Name: "leaf1"}, dev, "/disks/leaf1.qcow2", "")
	if err != nil {
		t.Fatalf("NewDomainSpec() error = %v", err)
	}
	if spec.VCPUs != defaultVCPUs || spec.MemoryMB != defaultMemoryMB {
		t.Fatalf("defaults not applied: %+v", spec)
	}
}

func TestNewDomainSpec_ClampsCPULimitAt100(t *testing.T) {
	dev := vendorcat.Device{Kind: "linux", CPULimitSupported: true}
	node := model.Node{Name: "leaf1", CPULimitPercent: 250}
	spec, err := NewDomainSpec("lab1", node, dev, "/disks/leaf1.qcow2", "")
	if err != nil {
		t.Fatalf("NewDomainSpec() error = %v", err)
	}
	if spec.CPULimitPercent != 100 {
		t.Fatalf("CPULimitPercent = %d, want clamped to 100", spec.CPULimitPercent)
	}
}

func TestNewDomainSpec_IgnoresCPULimitWhenDeviceDoesNotSupportIt(t *testing.T) {
	dev := vendorcat.Device{Kind: "linux", CPULimitSupported: false}
	node := model.Node{Name: "leaf1", CPULimitPercent: 50}
	spec, err := NewDomainSpec("lab1", node, dev, "/disks/leaf1.qcow2", "")
	if err != nil {
		t.Fatalf("NewDomainSpec() error = %v", err)
	}
	if spec.CPULimitPercent != 0 {
		t.Fatalf("CPULimitPercent = %d, want 0 when unsupported", spec.CPULimitPercent)
	}
}

func TestBuildDomainXML_EscapesDiskPath(t *testing.T) {
	evilPath := `/disks/weird"name<evil/>&.qcow2`
	spec, err := NewDomainSpec("lab1", model.Node{Name: "leaf1"}, vendorcat.Device{Kind: "linux"}, evilPath, "")
	if err != nil {
		t.Fatalf("NewDomainSpec() error = %v", err)
	}
	out, err := BuildDomainXML(spec)
	if err != nil {
		t.Fatalf("BuildDomainXML() error = %v", err)
	}
	if strings.Contains(out, "<evil/>") {
		t.Fatalf("expected the disk path to be XML-escaped, got:\n%s", out)
	}
	if !strings.Contains(out, "&lt;evil/&gt;") {
		t.Fatalf("expected escaped disk path in output, got:\n%s", out)
	}
}

func TestBuildDomainXML_IncludesVLANTagAndOVSVirtualPort(t *testing.T) {
	spec, err := NewDomainSpec("lab1", model.Node{Name: "leaf1"}, vendorcat.Device{Kind: "linux"}, "/disks/leaf1.qcow2", "")
	if err != nil {
		t.Fatalf("NewDomainSpec() error = %v", err)
	}
	spec.BridgeName = "archetype-ovs"
	spec.DataLinks = []DataLinkSpec{{Index: 0, MAC: "52:54:00:aa:bb:cc", OVSPort: "vmp0", VLANTag: 150}}

	out, err := BuildDomainXML(spec)
	if err != nil {
		t.Fatalf("BuildDomainXML() error = %v", err)
	}
	for _, want := range []string{`type="openvswitch"`, `<tag id="150">`, `bridge="archetype-ovs"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected domain xml to contain %q, got:\n%s", want, out)
		}
	}
}

func TestBuildDomainXML_StatelessEFIUsesQEMUCommandlinePflash(t *testing.T) {
	spec, err := NewDomainSpec("lab1", model.Node{Name: "leaf1"}, vendorcat.Device{Kind: "cat9000v", EFIBoot: true}, "/disks/leaf1.qcow2", "")
	if err != nil {
		t.Fatalf("NewDomainSpec() error = %v", err)
	}
	spec.EFI = true
	spec.EFIFirmware = EFIFirmwareSpec{PflashPath: "/usr/share/OVMF/OVMF_PURE_EFI.fd"}

	out, err := BuildDomainXML(spec)
	if err != nil {
		t.Fatalf("BuildDomainXML() error = %v", err)
	}
	if strings.Contains(out, "<loader") {
		t.Fatalf("stateless EFI must not emit a <loader> element, got:\n%s", out)
	}
	if !strings.Contains(out, "OVMF_PURE_EFI.fd") {
		t.Fatalf("expected the pflash path in qemu:commandline, got:\n%s", out)
	}
}

func TestBuildDomainXML_EFIWithoutFirmwareFails(t *testing.T) {
	spec, err := NewDomainSpec("lab1", model.Node{Name: "leaf1"}, vendorcat.Device{Kind: "cat9000v", EFIBoot: true}, "/disks/leaf1.qcow2", "")
	if err != nil {
		t.Fatalf("NewDomainSpec() error = %v", err)
	}
	spec.EFI = true

	if _, err := BuildDomainXML(spec); err == nil {
		t.Fatal("expected an error when efi_boot=true but no firmware is resolved")
	}
}

func TestBuildDomainXML_CPUTuneQuotaMath(t *testing.T) {
	dev := vendorcat.Device{Kind: "linux", CPULimitSupported: true}
	node := model.Node{Name: "leaf1", VCPUs: 4, CPULimitPercent: 50}
	spec, err := NewDomainSpec("lab1", node, dev, "/disks/leaf1.qcow2", "")
	if err != nil {
		t.Fatalf("NewDomainSpec() error = %v", err)
	}
	out, err := BuildDomainXML(spec)
	if err != nil {
		t.Fatalf("BuildDomainXML() error = %v", err)
	}
	// 4 vcpus * 100000 * 50 / 100 = 200000
	if !strings.Contains(out, "<quota>200000</quota>") {
		t.Fatalf("expected quota 200000 in cputune, got:\n%s", out)
	}
}
