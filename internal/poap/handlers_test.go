package poap

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archetype-labs/agent/internal/logging"
)

func newTestHandlers(t *testing.T, workspace string) *Handlers {
	t.Helper()
	store := openTestStore(t)
	return NewHandlers(workspace, "", store, logging.For("test"))
}

func writeStartupConfig(t *testing.T, workspace, labID, nodeName, content string) {
	t.Helper()
	dir := filepath.Join(workspace, labID, "configs", nodeName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "startup-config"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHandlers_StartupConfigServesWorkspaceFile(t *testing.T) {
	workspace := t.TempDir()
	writeStartupConfig(t, workspace, "lab1", "n9k1", "hostname n9k1\n")

	mux := http.NewServeMux()
	newTestHandlers(t, workspace).Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/poap/lab1/n9k1/startup-config", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hostname n9k1") {
		t.Fatalf("body = %q, want it to contain the startup config", rec.Body.String())
	}
}

func TestHandlers_StartupConfigReturns404WhenMissing(t *testing.T) {
	mux := http.NewServeMux()
	newTestHandlers(t, t.TempDir()).Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/poap/lab1/ghost/startup-config", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandlers_ScriptEndpointIncludesStartupConfigURL(t *testing.T) {
	workspace := t.TempDir()
	writeStartupConfig(t, workspace, "lab2", "n9k2", "hostname n9k2\n")

	mux := http.NewServeMux()
	newTestHandlers(t, workspace).Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/poap/lab2/n9k2/script.py", nil)
	req.Host = "testserver"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := `CONFIG_URL = "http://testserver/poap/lab2/n9k2/startup-config"`
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("body missing %q, got:\n%s", want, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "copy bootflash:startup-config startup-config") {
		t.Fatalf("body missing bootflash copy command")
	}
}

func TestHandlers_ScriptEndpointReturns404WhenConfigMissing(t *testing.T) {
	mux := http.NewServeMux()
	newTestHandlers(t, t.TempDir()).Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/poap/lab3/n9k3/script.py", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandlers_ScriptServeIsRecordedInStore(t *testing.T) {
	workspace := t.TempDir()
	writeStartupConfig(t, workspace, "lab1", "n9k1", "hostname n9k1\n")

	store := openTestStore(t)
	h := NewHandlers(workspace, "", store, logging.For("test"))
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/poap/lab1/n9k1/script.py", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	st, err := store.Get("lab1", "n9k1")
	if err != nil {
		t.Fatal(err)
	}
	if st.ScriptHits != 1 {
		t.Fatalf("ScriptHits = %d, want 1 after serving the script once", st.ScriptHits)
	}
}
