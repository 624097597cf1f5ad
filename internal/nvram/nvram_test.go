package nvram

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestParse_EmptyData(t *testing.T) {
	if got := Parse(nil); got != "" {
		t.Fatalf("Parse(nil) = %q, want empty", got)
	}
}

func TestParse_TooSmall(t *testing.T) {
	if got := Parse(bytes.Repeat([]byte{0}, 32)); got != "" {
		t.Fatalf("Parse(32 zero bytes) = %q, want empty", got)
	}
}

func TestParse_NoConfigMarkers(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	if got := Parse(data); got != "" {
		t.Fatalf("Parse(binary noise) = %q, want empty", got)
	}
}

func TestParse_ExtractsSimpleConfig(t *testing.T) {
	header := bytes.Repeat([]byte{0}, 76)
	config := []byte("\nhostname Router1\n!\ninterface Ethernet0/0\n no shutdown\n!\nend")
	padding := bytes.Repeat([]byte{0}, 100)

	got := Parse(append(append(header, config...), padding...))
	if !strings.Contains(got, "hostname Router1") {
		t.Fatalf("Parse() = %q, want it to contain hostname line", got)
	}
	if !strings.Contains(got, "interface Ethernet0/0") {
		t.Fatalf("Parse() = %q, want it to contain interface line", got)
	}
	if !strings.HasSuffix(got, "end") {
		t.Fatalf("Parse() = %q, want it to end with \"end\"", got)
	}
}

func TestParse_ExtractsConfigWithVersionMarker(t *testing.T) {
	header := bytes.Repeat([]byte{0xff}, 80)
	config := []byte("\nversion 15.6\nhostname TestRouter\n!\nend")
	data := append(append(header, config...), bytes.Repeat([]byte{0}, 50)...)

	got := Parse(data)
	if !strings.Contains(got, "version 15.6") || !strings.Contains(got, "hostname TestRouter") {
		t.Fatalf("Parse() = %q, want version and hostname lines", got)
	}
}

func TestParse_ExtractsConfigWithServiceMarker(t *testing.T) {
	header := bytes.Repeat([]byte{0xab}, 100)
	config := []byte("\nno service pad\nservice timestamps\nhostname R1\n!\nend")
	data := append(append(header, config...), bytes.Repeat([]byte{0}, 50)...)

	got := Parse(data)
	if !strings.Contains(got, "no service pad") {
		t.Fatalf("Parse() = %q, want \"no service pad\"", got)
	}
}

func TestParse_TrimsAtNullByte(t *testing.T) {
	header := bytes.Repeat([]byte{0}, 80)
	config := []byte("\nhostname R1\n!\nend")
	binaryAfter := bytes.Repeat([]byte{0, 0xff, 0xfe, 0xfd}, 100)

	got := Parse(append(append(header, config...), binaryAfter...))
	if !strings.Contains(got, "hostname R1") {
		t.Fatalf("Parse() = %q, want hostname line", got)
	}
	if strings.ContainsRune(got, 0xff) {
		t.Fatalf("Parse() = %q, want no high-bit bytes leaking through", got)
	}
}

func TestParse_TrimsToLastEndStatement(t *testing.T) {
	header := bytes.Repeat([]byte{0}, 80)
	config := []byte("\nhostname R1\n!\nend\nsome trailing garbage before null")
	data := append(append(header, config...), bytes.Repeat([]byte{0}, 50)...)

	got := Parse(data)
	if !strings.HasSuffix(got, "end") {
		t.Fatalf("Parse() = %q, want it to end with \"end\"", got)
	}
	if strings.Contains(got, "trailing garbage") {
		t.Fatalf("Parse() = %q, want trailing garbage discarded", got)
	}
}

func TestParse_HandlesLargeConfig(t *testing.T) {
	header := bytes.Repeat([]byte{0}, 80)
	var b strings.Builder
	b.WriteString("\nhostname BigRouter")
	for i := 0; i < 100; i++ {
		b.WriteString("\ninterface Ethernet0/")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("\n ip address 10.0.")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(".1 255.255.255.0")
		b.WriteString("\n no shutdown")
		b.WriteString("\n!")
	}
	b.WriteString("\nend")
	data := append(append(header, []byte(b.String())...), bytes.Repeat([]byte{0}, 100)...)

	got := Parse(data)
	if !strings.Contains(got, "hostname BigRouter") {
		t.Fatalf("Parse() missing hostname line")
	}
	if !strings.Contains(got, "interface Ethernet0/99") {
		t.Fatalf("Parse() missing last interface line")
	}
}

func TestParse_ReturnsEmptyForTinyConfig(t *testing.T) {
	header := bytes.Repeat([]byte{0}, 80)
	config := []byte("\n!\n!\n")
	data := append(append(header, config...), bytes.Repeat([]byte{0}, 50)...)

	if got := Parse(data); got != "" {
		t.Fatalf("Parse() = %q, want empty for a too-short extraction", got)
	}
}

func TestParse_HandlesBinaryInConfigGracefully(t *testing.T) {
	header := bytes.Repeat([]byte{0}, 80)
	config := []byte("\nhostname R1\n\x80\x81!\nend")
	data := append(append(header, config...), bytes.Repeat([]byte{0}, 50)...)

	got := Parse(data)
	if !strings.Contains(got, "hostname R1") {
		t.Fatalf("Parse() = %q, want hostname line despite stray high-bit bytes", got)
	}
}

func TestExtractFromWorkspace_NoFileReturnsEmpty(t *testing.T) {
	got, err := ExtractFromWorkspace(t.TempDir(), "lab1", "router1")
	if err != nil {
		t.Fatalf("ExtractFromWorkspace() error = %v", err)
	}
	if got != "" {
		t.Fatalf("ExtractFromWorkspace() = %q, want empty when no nvram file exists", got)
	}
}

func TestExtractFromWorkspace_ParsesExistingFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "lab1", "configs", "router1", "iol-data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	header := bytes.Repeat([]byte{0}, 80)
	config := []byte("\nhostname Router1\n!\ninterface Ethernet0/0\n no shutdown\n!\nend")
	data := append(append(header, config...), bytes.Repeat([]byte{0}, 50)...)
	if err := os.WriteFile(filepath.Join(dir, "nvram_00001"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ExtractFromWorkspace(root, "lab1", "router1")
	if err != nil {
		t.Fatalf("ExtractFromWorkspace() error = %v", err)
	}
	if !strings.Contains(got, "hostname Router1") {
		t.Fatalf("ExtractFromWorkspace() = %q, want hostname line", got)
	}
}

func TestExtractFromWorkspace_TooSmallReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "lab1", "configs", "router1", "iol-data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nvram_00001"), bytes.Repeat([]byte{0}, 32), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ExtractFromWorkspace(root, "lab1", "router1")
	if err != nil {
		t.Fatalf("ExtractFromWorkspace() error = %v", err)
	}
	if got != "" {
		t.Fatalf("ExtractFromWorkspace() = %q, want empty for a too-small nvram file", got)
	}
}
