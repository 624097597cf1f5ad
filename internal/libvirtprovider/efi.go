package libvirtprovider

import (
	"fmt"
	"os"
	"path/filepath"
)

// ovmfStatefulCandidates are the common OVMF code+vars pairs shipped by
// Linux distributions' edk2-ovmf packages, checked in order.
var ovmfStatefulCandidates = []struct{ code, vars string }{
	{"/usr/share/OVMF/OVMF_CODE.fd", "/usr/share/OVMF/OVMF_VARS.fd"},
	{"/usr/share/edk2/ovmf/OVMF_CODE.fd", "/usr/share/edk2/ovmf/OVMF_VARS.fd"},
	{"/usr/share/qemu/OVMF_CODE.fd", "/usr/share/qemu/OVMF_VARS.fd"},
}

var ovmfPureCandidates = []string{
	"/usr/share/OVMF/OVMF_PURE_EFI.fd",
	"/usr/share/edk2/ovmf/OVMF.fd",
}

// DetectOVMF locates host OVMF firmware for a domain, preparing a
// per-domain NVRAM copy for the stateful variant when one is found, else
// falling back to the stateless single-pflash-drive variant (spec section
// 4.6). nvramDir is where per-domain NVRAM copies are kept.
func DetectOVMF(nvramDir, domainName string) (EFIFirmwareSpec, error) {
	if err := os.MkdirAll(nvramDir, 0o755); err != nil {
		return EFIFirmwareSpec{}, fmt.Errorf("create nvram dir: %w", err)
	}

	for _, cand := range ovmfStatefulCandidates {
		if !fileExists(cand.code) || !fileExists(cand.vars) {
			continue
		}
		return EFIFirmwareSpec{LoaderPath: cand.code, NVRAMTemplatePath: cand.vars}, nil
	}

	for _, path := range ovmfPureCandidates {
		if fileExists(path) {
			return EFIFirmwareSpec{PflashPath: path}, nil
		}
	}

	return EFIFirmwareSpec{}, fmt.Errorf("no OVMF firmware found on host for domain %s", domainName)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// nvramPath is where a stateful-variant domain's per-domain NVRAM copy
// would live; libvirt creates it from NVRAMTemplatePath on first boot and
// it must be removed explicitly on undefine (VIR_DOMAIN_UNDEFINE_NVRAM),
// since a bare undefine() refuses to drop a domain with a live NVRAM file.
func nvramPath(nvramDir, domainName string) string {
	return filepath.Join(nvramDir, domainName+"_VARS.fd")
}
