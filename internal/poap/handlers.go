package poap

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Handlers serves the two endpoints a booting N9Kv's bootloader hits
// (spec section 4.6): the bootstrap script and the startup config it
// downloads. Both are unauthenticated — a fresh device has no bearer
// secret to present yet, and it only ever reaches these routes over the
// node's own isolated POAP NAT network.
type Handlers struct {
	workspacePath string
	agentBaseURL  string
	store         *Store
	log           *logrus.Entry
}

func NewHandlers(workspacePath, agentBaseURL string, store *Store, log *logrus.Entry) *Handlers {
	return &Handlers{
		workspacePath: workspacePath,
		agentBaseURL:  agentBaseURL,
		store:         store,
		log:           log,
	}
}

// Register mounts this package's routes on mux, using Go 1.22+ ServeMux
// path patterns rather than pulling in a router library for two routes.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /poap/{lab}/{node}/script.py", h.handleScript)
	mux.HandleFunc("GET /poap/{lab}/{node}/startup-config", h.handleStartupConfig)
}

func (h *Handlers) handleScript(w http.ResponseWriter, r *http.Request) {
	labID := r.PathValue("lab")
	node := r.PathValue("node")

	if _, err := os.Stat(h.startupConfigPath(labID, node)); err != nil {
		http.NotFound(w, r)
		return
	}

	if h.store != nil {
		if _, err := h.store.RecordScriptServe(labID, node); err != nil {
			h.log.WithError(err).Warn("failed to record poap script serve")
		}
	}

	base := h.agentBaseURL
	if base == "" {
		base = "http://" + r.Host
	}
	w.Header().Set("Content-Type", "text/x-python")
	w.Write([]byte(Script(base, labID, node)))
}

func (h *Handlers) handleStartupConfig(w http.ResponseWriter, r *http.Request) {
	labID := r.PathValue("lab")
	node := r.PathValue("node")

	data, err := os.ReadFile(h.startupConfigPath(labID, node))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if h.store != nil {
		if _, err := h.store.RecordConfigServe(labID, node); err != nil {
			h.log.WithError(err).Warn("failed to record poap config serve")
		}
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write(data)
}

func (h *Handlers) startupConfigPath(labID, node string) string {
	return filepath.Join(h.workspacePath, labID, "configs", node, "startup-config")
}
