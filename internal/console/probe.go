package console

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Prober implements internal/libvirtprovider's ConsolePoller seam for
// cli_probe readiness: a brief, non-blocking console read that skips
// gracefully when another consumer holds the lock (spec section 4.8 —
// "readiness probes call try_lock and skip gracefully rather than
// contend").
type Prober struct {
	Locker     *Locker
	LibvirtURI string
}

func NewProber(locker *Locker, libvirtURI string) *Prober {
	if libvirtURI == "" {
		libvirtURI = "qemu:///system"
	}
	return &Prober{Locker: locker, LibvirtURI: libvirtURI}
}

// RunProbe executes command on domainName's console and returns its
// output, or ("", nil) if the console is busy — a busy console is not
// readiness failure, it's just inconclusive this cycle.
func (p *Prober) RunProbe(ctx context.Context, domainName, command string) (string, error) {
	release, acquired := p.Locker.TryLock(domainName)
	if !acquired {
		return "", nil
	}
	defer release()

	injector, closeConsole, err := OpenVirshConsole(ctx, p.LibvirtURI, domainName)
	if err != nil {
		return "", fmt.Errorf("open console for probe: %w", err)
	}
	defer closeConsole()

	if _, _, err := injector.Expect([]*regexp.Regexp{regexp.MustCompile(`Connected to domain`)}, 5*time.Second); err != nil {
		return "", nil
	}
	if !primeForPrompt(injector, "") {
		return "", nil
	}

	out, err := executeCommand(injector, command, "", 10*time.Second)
	if err != nil {
		return "", nil
	}
	return out, nil
}
