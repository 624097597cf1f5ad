package libvirtprovider

import (
	"context"
	"testing"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/logging"
	"github.com/archetype-labs/agent/internal/model"
)

func TestStart_NoSuchDomainIsValidationError(t *testing.T) {
	fv := newFakeVirt()
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	err := p.Start(context.Background(), "lab1", "leaf1")
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Kind != apierr.KindValidation {
		t.Fatalf("Start() error = %v, want KindValidation", err)
	}
}

func TestStart_AlreadyRunningIsIdempotent(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "leaf1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: true}
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	err := p.Start(context.Background(), "lab1", "leaf1")
	if !apierr.IsIdempotentSuccess(err) {
		t.Fatalf("Start() error = %v, want KindIdempotent", err)
	}
	if len(fv.started) != 0 {
		t.Fatal("expected no StartDomain call for an already-running domain")
	}
}

func TestStart_PowersOnStoppedDomain(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "leaf1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: false}
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	if err := p.Start(context.Background(), "lab1", "leaf1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(fv.started) != 1 || fv.started[0] != domainName {
		t.Fatalf("started = %v, want [%s]", fv.started, domainName)
	}
}

func TestStop_AlreadyGoneIsIdempotent(t *testing.T) {
	fv := newFakeVirt()
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	err := p.Stop(context.Background(), "lab1", "leaf1")
	if !apierr.IsIdempotentSuccess(err) {
		t.Fatalf("Stop() error = %v, want KindIdempotent", err)
	}
}

func TestStop_AlreadyStoppedIsIdempotent(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "leaf1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: false}
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	err := p.Stop(context.Background(), "lab1", "leaf1")
	if !apierr.IsIdempotentSuccess(err) {
		t.Fatalf("Stop() error = %v, want KindIdempotent", err)
	}
	if len(fv.destroyed) != 0 {
		t.Fatal("expected no DestroyDomain call for an already-stopped domain")
	}
}

func TestStop_PowersOffRunningDomain(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "leaf1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: true}
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	if err := p.Stop(context.Background(), "lab1", "leaf1"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(fv.destroyed) != 1 || fv.destroyed[0] != domainName {
		t.Fatalf("destroyed = %v, want [%s]", fv.destroyed, domainName)
	}
}

func TestDestroy_RemovesOnlyDomainsMatchingLabPrefix(t *testing.T) {
	fv := newFakeVirt()
	ours := DomainName("lab1", "leaf1")
	other := DomainName("lab2", "leaf1")
	fv.domains[ours] = &DomainInfo{Name: ours, Running: true}
	fv.domains[other] = &DomainInfo{Name: other, Running: true}
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	lab := model.Lab{
		ID:    "lab1",
		Nodes: []model.Node{{Name: "leaf1", Kind: model.DeviceLinux, Image: "leaf1.qcow2"}},
	}

	result, err := p.Destroy(context.Background(), lab)
	if err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if len(result.DomainsRemoved) != 1 || result.DomainsRemoved[0] != ours {
		t.Fatalf("DomainsRemoved = %v, want [%s]", result.DomainsRemoved, ours)
	}
	if _, stillThere := fv.domains[other]; !stillThere {
		t.Fatal("expected a different lab's domain to be left untouched")
	}
	if _, stillThere := fv.domains[ours]; stillThere {
		t.Fatal("expected our lab's domain to be undefined")
	}
}

func TestDestroy_UsesNVRAMKeepFlagForEFIDevices(t *testing.T) {
	fv := newFakeVirt()
	domainName := DomainName("lab1", "cat1")
	fv.domains[domainName] = &DomainInfo{Name: domainName, Running: true}
	p := NewProvider(fv, newTestPlugin(t), t.TempDir(), logging.For("test"))

	lab := model.Lab{
		ID:    "lab1",
		Nodes: []model.Node{{Name: "cat1", Kind: model.DeviceCat9000v, Image: "cat1.qcow2"}},
	}

	if _, err := p.Destroy(context.Background(), lab); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if len(fv.undefined) != 1 || fv.undefined[0] != domainName {
		t.Fatalf("undefined = %v, want [%s]", fv.undefined, domainName)
	}
	if !fv.keptNVRAM[domainName] {
		t.Fatal("expected an EFI-boot device's NVRAM to be preserved on undefine")
	}
}
