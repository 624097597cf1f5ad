// Package nvram parses IOL's raw NVRAM data volume to recover a device's
// running configuration when the container offers no other extraction
// path (spec section 6, workspace layout: "iol-data/nvram_00001"). IOL
// writes its config as a plain ASCII block inside an otherwise-binary
// NVRAM blob, bounded by a recognizable marker line at the start and an
// "end" line before the next NUL byte.
package nvram

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// minExtractedLen is the shortest text Parse will accept as a real
// config; anything shorter is almost certainly a false-positive marker
// match against binary noise.
const minExtractedLen = 10

// configMarkers are the line prefixes that plausibly start an IOS
// config section inside the NVRAM blob.
var configMarkers = []string{
	"version ",
	"hostname ",
	"no service ",
	"service ",
}

// Parse scans raw IOL NVRAM data for a plausible IOS config section and
// returns its ASCII text, or "" if none is found. The scan looks for the
// earliest line beginning with a recognized marker, then extracts from
// there to the last "end" line that appears before the next NUL byte.
func Parse(data []byte) string {
	start := findMarkerStart(data)
	if start < 0 {
		return ""
	}

	end := bytes.IndexByte(data[start:], 0)
	var section []byte
	if end < 0 {
		section = data[start:]
	} else {
		section = data[start : start+end]
	}

	text := asciiOnly(section)
	text = trimToLastEnd(text)
	text = strings.Trim(text, "\r\n")

	if len(text) < minExtractedLen {
		return ""
	}
	if !containsAnyMarker(text, configMarkers) {
		return ""
	}
	return text
}

// findMarkerStart returns the byte offset of the earliest occurrence of
// any config marker at the start of a line, or -1 if none is present.
func findMarkerStart(data []byte) int {
	best := -1
	for _, marker := range configMarkers {
		m := []byte(marker)
		for idx := 0; ; {
			rel := bytes.Index(data[idx:], m)
			if rel < 0 {
				break
			}
			pos := idx + rel
			if pos == 0 || data[pos-1] == '\n' || data[pos-1] == '\r' || data[pos-1] == 0 {
				if best < 0 || pos < best {
					best = pos
				}
				break
			}
			idx = pos + 1
		}
	}
	return best
}

// asciiOnly drops non-printable, non-newline bytes rather than failing
// on them outright; IOL's NVRAM format occasionally interleaves stray
// high-bit bytes inside an otherwise-valid config section.
func asciiOnly(data []byte) string {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\n' || b == '\r' || b == '\t' || (b >= 0x20 && b < 0x7f) {
			out = append(out, b)
		}
	}
	return string(out)
}

// trimToLastEnd cuts text after the last line that is exactly "end",
// discarding any trailing garbage a NUL-less scan would otherwise pick up.
func trimToLastEnd(text string) string {
	lines := strings.Split(text, "\n")
	lastEnd := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "end" {
			lastEnd = i
		}
	}
	if lastEnd < 0 {
		return text
	}
	return strings.Join(lines[:lastEnd+1], "\n")
}

func containsAnyMarker(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// ExtractFromWorkspace reads {workspace}/{lab}/configs/{node}/iol-data/
// nvram_00001 (spec section 6's workspace layout) and parses it, returning
// "" with no error when the file simply doesn't exist yet (the container
// hasn't written NVRAM, or isn't an IOL node at all).
func ExtractFromWorkspace(workspacePath, labID, nodeName string) (string, error) {
	path := filepath.Join(workspacePath, labID, "configs", nodeName, "iol-data", "nvram_00001")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read nvram file %s: %w", path, err)
	}
	return Parse(data), nil
}
