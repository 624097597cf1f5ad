// Package libvirtprovider is the agent's VM-backed node provider (spec
// section 4.6): domain XML generation, qcow2 overlay creation, readiness
// probing, and domain lifecycle against libvirt/QEMU.
package libvirtprovider

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

var nameFilterRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func filterName(s string) string {
	return nameFilterRe.ReplaceAllString(s, "")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DomainName is the stable libvirt domain identifier for a node:
// arch-{sanitized_lab[:20]}-{sanitized_node[:30]} (spec section 4.6).
func DomainName(labID, nodeName string) string {
	return "arch-" + truncate(filterName(labID), 20) + "-" + truncate(filterName(nodeName), 30)
}

// LabPrefix is the prefix shared by every domain name in a lab, used to
// enumerate a lab's domains without relying on metadata alone.
func LabPrefix(labID string) string {
	return "arch-" + truncate(filterName(labID), 20)
}

// DeterministicMAC derives a libvirt-safe locally-administered MAC for
// (domainName, ifaceIndex): hash the pair, use bytes 4..6 as the last
// three octets of 52:54:00:XX:XX:XX (spec section 4.6) — stable across
// redeploys of the same node/interface, with no persisted MAC table to
// maintain.
func DeterministicMAC(domainName string, ifaceIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", domainName, ifaceIndex)))
	return fmt.Sprintf("52:54:00:%02x:%02x:%02x", sum[4], sum[5], sum[6])
}

// OVSPortName is the tap device name libvirt is asked to create for a
// data interface (via the domain XML's <target dev=.../>), short enough
// for the kernel's 15-byte IFNAMSIZ limit and stable across redeploys so
// a restarted agent can re-resolve the same tracked OVS port.
func OVSPortName(domainName string, ifaceIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", domainName, ifaceIndex)))
	return fmt.Sprintf("vmp%x", sum[:5])
}

// escapeXML is a defensive fallback for string fields built outside
// encoding/xml's own marshaling (e.g. inside qemu:commandline argument
// values); encoding/xml already escapes element/attribute text for every
// field generated through the struct types in domainxml.go.
func escapeXML(s string) string {
	r := strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;", `'`, "&apos;")
	return r.Replace(s)
}
