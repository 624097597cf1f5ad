package libvirtprovider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/archetype-labs/agent/internal/executil"
)

// disksDir is the per-lab overlay/data-disk directory, created lazily.
func disksDir(workspacePath, labID string) (string, error) {
	dir := filepath.Join(workspacePath, sanitizePath(labID), "disks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create disks dir: %w", err)
	}
	return dir, nil
}

func sanitizePath(s string) string { return filterName(s) }

// resolveBaseImage finds the base qcow2 for a node's image reference:
// an absolute path used as-is, otherwise a lookup in the qcow2 store by
// exact name, by name+".qcow2", then by case-insensitive substring.
func resolveBaseImage(store, imageRef string) (string, error) {
	if imageRef == "" {
		return "", fmt.Errorf("node has no image reference")
	}
	if filepath.IsAbs(imageRef) {
		if _, err := os.Stat(imageRef); err != nil {
			return "", fmt.Errorf("base image %s not found: %w", imageRef, err)
		}
		return imageRef, nil
	}

	candidate := filepath.Join(store, imageRef)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	if filepath.Ext(imageRef) != ".qcow2" && filepath.Ext(imageRef) != ".qcow" {
		withExt := filepath.Join(store, imageRef+".qcow2")
		if _, err := os.Stat(withExt); err == nil {
			return withExt, nil
		}
	}

	entries, err := os.ReadDir(store)
	if err != nil {
		return "", fmt.Errorf("base image %s not found in %s", imageRef, store)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if ext != ".qcow2" && ext != ".qcow" {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name()), strings.ToLower(imageRef)) {
			return filepath.Join(store, e.Name()), nil
		}
	}
	return "", fmt.Errorf("base image %s not found in %s", imageRef, store)
}

// hostImagePath translates a container-visible base image path to the
// path libvirtd (running on the host, outside this container) can read,
// via an explicit override env var or, failing that, the common Docker
// volume mountpoints the deployment compose file uses.
func hostImagePath(containerPath string) string {
	const containerPrefix = "/var/lib/archetype/images"
	const containerRoot = "/var/lib/archetype"
	if override := os.Getenv("ARCHETYPE_HOST_IMAGE_PATH"); override != "" {
		if strings.HasPrefix(containerPath, containerPrefix) {
			return override + containerPath[len(containerPrefix):]
		}
		return containerPath
	}
	if !strings.HasPrefix(containerPath, containerRoot) {
		return containerPath
	}
	for _, volumeBase := range []string{
		"/var/lib/docker/volumes/archetype-iac_archetype_workspaces/_data",
		"/var/lib/docker/volumes/archetype_workspaces/_data",
	} {
		candidate := volumeBase + containerPath[len(containerRoot):]
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return containerPath
}

// createOverlay creates a qcow2 overlay backed by base, unless it already
// exists (deploy is idempotent across agent restarts).
func createOverlay(ctx context.Context, base, overlay string) error {
	if _, err := os.Stat(overlay); err == nil {
		return nil
	}
	hostBase := hostImagePath(base)
	return executil.Run(ctx, "qemu-img", "create", "-F", "qcow2", "-f", "qcow2", "-b", hostBase, overlay)
}

// createDataVolume creates an empty qcow2 data volume of sizeMB, unless it
// already exists.
func createDataVolume(ctx context.Context, path string, sizeMB int) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return executil.Run(ctx, "qemu-img", "create", "-f", "qcow2", path, fmt.Sprintf("%dM", sizeMB))
}
