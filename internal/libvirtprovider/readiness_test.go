package libvirtprovider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/archetype-labs/agent/internal/logging"
	"github.com/archetype-labs/agent/internal/vendorcat"
)

func TestCheckReadiness_DomainNotRunningIsNotReady(t *testing.T) {
	fv := newFakeVirt()
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	result, err := p.CheckReadiness(context.Background(), "lab1", "leaf1", vendorcat.Device{Readiness: vendorcat.Readiness{Kind: vendorcat.ReadinessNone}})
	if err != nil {
		t.Fatalf("CheckReadiness() error = %v", err)
	}
	if result.Ready {
		t.Fatal("expected not-ready for an undefined domain")
	}
}

func TestCheckReadiness_NoneKindIsAlwaysReadyOnceRunning(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "leaf1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: true}
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	result, err := p.CheckReadiness(context.Background(), "lab1", "leaf1", vendorcat.Device{Readiness: vendorcat.Readiness{Kind: vendorcat.ReadinessNone}})
	if err != nil {
		t.Fatalf("CheckReadiness() error = %v", err)
	}
	if !result.Ready {
		t.Fatal("expected ready=true for readiness kind none once the domain is running")
	}
}

func TestCheckReadiness_LogPatternMatchesAndReportsProgress(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "ceos1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: true}
	workspace := t.TempDir()
	p := NewProvider(fv, newTestPlugin(t), workspace, logging.For("test"))

	logDir := filepath.Join(workspace, "console-logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatal(err)
	}
	logContent := "boot start\naaa initializing\nSystem is ready\n"
	if err := os.WriteFile(filepath.Join(logDir, domainName+".log"), []byte(logContent), 0o644); err != nil {
		t.Fatal(err)
	}

	dev := vendorcat.Device{Readiness: vendorcat.Readiness{
		Kind:    vendorcat.ReadinessLogPattern,
		Pattern: "System is ready",
		Progress: []vendorcat.ProgressPattern{
			{Pattern: "aaa initializing", Progress: 40},
		},
	}}

	result, err := p.CheckReadiness(context.Background(), "lab1", "ceos1", dev)
	if err != nil {
		t.Fatalf("CheckReadiness() error = %v", err)
	}
	if !result.Ready {
		t.Fatal("expected ready=true once the readiness pattern has matched")
	}
	if result.ProgressPercent != 100 {
		t.Fatalf("ProgressPercent = %d, want 100 once fully matched", result.ProgressPercent)
	}
}

func TestCheckReadiness_LogPatternNotYetMatchedReportsProgressOnly(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "ceos1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: true}
	workspace := t.TempDir()
	p := NewProvider(fv, newTestPlugin(t), workspace, logging.For("test"))

	logDir := filepath.Join(workspace, "console-logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(logDir, domainName+".log"), []byte("aaa initializing\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dev := vendorcat.Device{Readiness: vendorcat.Readiness{
		Kind:    vendorcat.ReadinessLogPattern,
		Pattern: "System is ready",
		Progress: []vendorcat.ProgressPattern{
			{Pattern: "aaa initializing", Progress: 40},
		},
	}}

	result, err := p.CheckReadiness(context.Background(), "lab1", "ceos1", dev)
	if err != nil {
		t.Fatalf("CheckReadiness() error = %v", err)
	}
	if result.Ready {
		t.Fatal("expected ready=false before the readiness pattern matches")
	}
	if result.ProgressPercent != 40 {
		t.Fatalf("ProgressPercent = %d, want 40", result.ProgressPercent)
	}
}

func TestCheckReadiness_CLIProbeWithoutConsoleIsNotReadyNotError(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "iol1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: true}
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test")) // no WithConsolePoller

	dev := vendorcat.Device{Readiness: vendorcat.Readiness{Kind: vendorcat.ReadinessCLIProbe, Probe: "show version"}}
	result, err := p.CheckReadiness(context.Background(), "lab1", "iol1", dev)
	if err != nil {
		t.Fatalf("CheckReadiness() error = %v, want nil (graceful degrade)", err)
	}
	if result.Ready {
		t.Fatal("expected not-ready when the console subsystem isn't wired up")
	}
}
