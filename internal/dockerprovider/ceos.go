package dockerprovider

import (
	"fmt"
	"os"
	"path/filepath"
)

// ceosStartupDelay staggers cEOS container starts to avoid a kernel
// module modprobe race when several start back to back (spec section 4.2
// step 7).
const ceosStartupDelay = 5 // seconds

// ifWaitScript is written into flash and runs before /sbin/init: it waits
// for CLAB_INTFS interfaces to appear under /sys/class/net/eth[1-9]* and
// renames them into a contiguous eth1..N in ifindex order, because
// cEOS's platform detection races interface enumeration otherwise (spec
// section 4.2 "cEOS if-wait.sh").
const ifWaitScript = `#!/bin/sh
# Waits for CLAB_INTFS data interfaces to appear, then renumbers them
# eth1..N in ifindex order before handing off to /sbin/init.
set -e

want="${CLAB_INTFS:-1}"
timeout=30
elapsed=0

count_ifaces() {
	ls -d /sys/class/net/eth[1-9]* 2>/dev/null | wc -l
}

while [ "$(count_ifaces)" -lt "$want" ]; do
	if [ "$elapsed" -ge "$timeout" ]; then
		break
	fi
	sleep 1
	elapsed=$((elapsed + 1))
done

i=1
for ifpath in $(ls -d /sys/class/net/eth[1-9]* 2>/dev/null | sort -t h -k2 -n); do
	name=$(basename "$ifpath")
	target="eth${i}"
	if [ "$name" != "$target" ]; then
		ip link set "$name" down
		ip link set "$name" name "$target"
		ip link set "$target" up
	fi
	i=$((i + 1))
done

exec /sbin/init
`

// flashLayout is a node's /mnt/flash directory contents, bind-mounted
// into the container so Docker never needs a tar-stream copy for static
// boot artifacts.
type flashLayout struct {
	HostDir string
}

func flashHostDir(workspacePath, labID, nodeName string) string {
	return filepath.Join(workspacePath, sanitize(labID), "flash", sanitize(nodeName))
}

// WriteCEOSFlash materializes the flash layout for a cEOS node: the
// rendered startup-config, a zerotouch-config marker disabling ZTP, a
// systemd environment drop-in, and if-wait.sh, per spec section 4.2.
func WriteCEOSFlash(workspacePath, labID, nodeName, startupConfig string, maxIntf int) (flashLayout, error) {
	hostDir := flashHostDir(workspacePath, labID, nodeName)
	if err := os.MkdirAll(hostDir, 0o755); err != nil {
		return flashLayout{}, fmt.Errorf("create flash dir: %w", err)
	}

	if startupConfig != "" {
		if err := os.WriteFile(filepath.Join(hostDir, "startup-config"), []byte(startupConfig), 0o644); err != nil {
			return flashLayout{}, fmt.Errorf("write startup-config: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(hostDir, "zerotouch-config"), []byte("DISABLE=True\n"), 0o644); err != nil {
		return flashLayout{}, fmt.Errorf("write zerotouch-config: %w", err)
	}

	env := fmt.Sprintf("CLAB_INTFS=%d\n", maxIntf)
	if err := os.WriteFile(filepath.Join(hostDir, "ceos-env"), []byte(env), 0o644); err != nil {
		return flashLayout{}, fmt.Errorf("write ceos-env: %w", err)
	}

	if err := os.WriteFile(filepath.Join(hostDir, "if-wait.sh"), []byte(ifWaitScript), 0o755); err != nil {
		return flashLayout{}, fmt.Errorf("write if-wait.sh: %w", err)
	}

	return flashLayout{HostDir: hostDir}, nil
}
