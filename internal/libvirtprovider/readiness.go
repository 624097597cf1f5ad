package libvirtprovider

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"regexp"
	"time"

	"github.com/archetype-labs/agent/internal/vendorcat"
)

// ReadinessResult mirrors the result shape spec section 4.6 describes for
// every probe kind: ready/not-ready plus an optional progress percentage
// for log_pattern's secondary markers.
type ReadinessResult struct {
	Ready           bool
	ProgressPercent int
	Message         string
}

// ConsolePoller is the narrow seam into internal/console's cli_probe path:
// run a command on a domain's serial console and return its output. Wired
// in by cmd/agent; left nil, cli_probe readiness reports not-ready rather
// than panicking, since a VM provider must function (for ssh/log_pattern
// devices) even before the console subsystem is wired up.
type ConsolePoller interface {
	RunProbe(ctx context.Context, domainName, command string) (string, error)
}

// CheckReadiness probes a VM node for boot completion per its vendor
// catalog entry's Readiness.Kind (spec section 4.6).
func (p *Provider) CheckReadiness(ctx context.Context, labID, nodeName string, dev vendorcat.Device) (ReadinessResult, error) {
	domainName := DomainName(labID, nodeName)
	info, found, err := p.virt.LookupDomain(ctx, domainName)
	if err != nil {
		return ReadinessResult{}, p.wrapf(err, "lookup domain %s", domainName)
	}
	if !found || !info.Running {
		return ReadinessResult{Ready: false, Message: "domain not running"}, nil
	}

	switch dev.Readiness.Kind {
	case vendorcat.ReadinessNone:
		return ReadinessResult{Ready: true}, nil

	case vendorcat.ReadinessLogPattern:
		return p.checkLogPattern(domainName, dev.Readiness)

	case vendorcat.ReadinessCLIProbe:
		return p.checkCLIProbe(ctx, domainName, dev.Readiness)

	case vendorcat.ReadinessSSH:
		return p.checkSSH(ctx, domainName, dev.Readiness)

	default:
		return ReadinessResult{}, fmt.Errorf("unknown readiness kind %q", dev.Readiness.Kind)
	}
}

// serialLogPath is where this provider configures a domain's serial
// console to log boot output (spec section 4.6's log_pattern probe reads
// this file rather than opening a second virsh console session).
func (p *Provider) serialLogPath(domainName string) string {
	return p.workspacePath + "/console-logs/" + domainName + ".log"
}

func (p *Provider) checkLogPattern(domainName string, r vendorcat.Readiness) (ReadinessResult, error) {
	f, err := os.Open(p.serialLogPath(domainName))
	if err != nil {
		if os.IsNotExist(err) {
			return ReadinessResult{Ready: false, Message: "no console log yet"}, nil
		}
		return ReadinessResult{}, fmt.Errorf("open console log: %w", err)
	}
	defer f.Close()

	readyPattern, err := regexp.Compile(r.Pattern)
	if err != nil {
		return ReadinessResult{}, fmt.Errorf("invalid readiness pattern %q: %w", r.Pattern, err)
	}
	progressPatterns := make([]*regexp.Regexp, len(r.Progress))
	for i, pp := range r.Progress {
		re, err := regexp.Compile(pp.Pattern)
		if err != nil {
			return ReadinessResult{}, fmt.Errorf("invalid progress pattern %q: %w", pp.Pattern, err)
		}
		progressPatterns[i] = re
	}

	result := ReadinessResult{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if readyPattern.MatchString(line) {
			result.Ready = true
			result.ProgressPercent = 100
			continue
		}
		for i, re := range progressPatterns {
			if re.MatchString(line) && r.Progress[i].Progress > result.ProgressPercent {
				result.ProgressPercent = r.Progress[i].Progress
			}
		}
	}
	if !result.Ready {
		result.Message = "boot pattern not yet matched"
	}
	return result, nil
}

func (p *Provider) checkCLIProbe(ctx context.Context, domainName string, r vendorcat.Readiness) (ReadinessResult, error) {
	if p.console == nil {
		return ReadinessResult{Ready: false, Message: "console subsystem not wired up"}, nil
	}
	out, err := p.console.RunProbe(ctx, domainName, r.Probe)
	if err != nil {
		return ReadinessResult{Ready: false, Message: err.Error()}, nil
	}
	return ReadinessResult{Ready: out != ""}, nil
}

func (p *Provider) checkSSH(ctx context.Context, domainName string, r vendorcat.Readiness) (ReadinessResult, error) {
	ip, err := p.managementIP(ctx, domainName)
	if err != nil {
		return ReadinessResult{Ready: false, Message: err.Error()}, nil
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, "22"), 3*time.Second)
	if err != nil {
		return ReadinessResult{Ready: false, Message: "ssh port not open yet"}, nil
	}
	conn.Close()
	return ReadinessResult{Ready: true}, nil
}

// managementIP resolves a domain's mgmt-network IP via its libvirt DHCP
// lease, keyed by the domain's mgmt-interface MAC (interface index 0 when
// RequiresMgmtInterface is set).
func (p *Provider) managementIP(ctx context.Context, domainName string) (string, error) {
	mac := DeterministicMAC(domainName, 0)
	return p.virt.DHCPLeaseIP(ctx, "default", mac)
}
