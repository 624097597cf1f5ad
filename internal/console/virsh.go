package console

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/creack/pty"
)

// OpenVirshConsole spawns `virsh -c {uri} console --force {domainName}`
// attached to a pty (spec section 4.6/4.8's literal external-interface
// contract), returning a PtyInjector bound to the master side and a
// close function that kills the virsh process and releases the pty.
//
// --force steals the console from any stray reader rather than failing,
// matching kill_orphaned_virsh's assumption that a prior holder may
// already be gone.
func OpenVirshConsole(ctx context.Context, libvirtURI, domainName string) (*PtyInjector, func(), error) {
	cmd := exec.CommandContext(ctx, "virsh", "-c", libvirtURI, "console", "--force", domainName)
	master, err := pty.Start(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("spawn virsh console for %s: %w", domainName, err)
	}

	injector := NewPtyInjector(master)
	closeFn := func() {
		master.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
	}
	return injector, closeFn, nil
}
