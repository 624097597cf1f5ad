package dockerprovider

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractViaNVRAM_ParsesConfigFromWorkspace(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "lab1", "configs", "router1", "iol-data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	header := make([]byte, 80)
	config := []byte("\nhostname router1\n!\ninterface Ethernet0/0\n no shutdown\n!\nend")
	if err := os.WriteFile(filepath.Join(dir, "nvram_00001"), append(header, config...), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Provider{workspacePath: root}
	out, err := p.extractViaNVRAM("lab1", "router1")
	if err != nil {
		t.Fatalf("extractViaNVRAM() error = %v", err)
	}
	if !strings.Contains(out, "hostname router1") {
		t.Fatalf("extractViaNVRAM() = %q, want hostname line", out)
	}
}

func TestExtractViaNVRAM_ErrorsWhenNoUsableConfig(t *testing.T) {
	p := &Provider{workspacePath: t.TempDir()}
	if _, err := p.extractViaNVRAM("lab1", "router1"); err == nil {
		t.Fatal("expected an error when no nvram file is present")
	}
}
