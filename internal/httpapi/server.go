// Package httpapi is the agent's HTTP surface toward the controller
// (spec section 4.1): deploy, per-node lifecycle actions, hot-link
// connect/disconnect, interface isolate/restore, and VXLAN overlay
// management. Every handler answers with a {success, error} envelope
// rather than an HTTP error status for expected failure modes — only an
// unreachable dependency (Docker, libvirt, OVS) escalates past that.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/archetype-labs/agent/internal/console"
	"github.com/archetype-labs/agent/internal/dockerprovider"
	"github.com/archetype-labs/agent/internal/libvirtprovider"
	"github.com/archetype-labs/agent/internal/overlay"
	"github.com/archetype-labs/agent/internal/ovsplugin"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

// Deps are the agent subsystems this package dispatches HTTP requests
// into. Docker and Libvirt may each be nil if their provider is disabled
// (spec section 6's ENABLE_OVS_PLUGIN-adjacent per-provider toggles);
// requests that would need a disabled provider fail with KindValidation.
type Deps struct {
	Docker  *dockerprovider.Provider
	Libvirt *libvirtprovider.Provider
	Plugin  *ovsplugin.Plugin
	Overlay *overlay.Manager

	// ConsoleRegistry and ConsoleLocker back the web console WebSocket
	// route (spec section 4.8); LibvirtURI is the connection URI used to
	// open a fresh virsh console when no piggyback session exists. Leaving
	// ConsoleRegistry nil disables the route (VM support not configured).
	ConsoleRegistry  *console.Registry
	ConsoleLocker    *console.Locker
	ConsoleExtractor *console.Extractor
	LibvirtURI       string

	// AuthSecret, if non-empty, is required as a Bearer token on every
	// route except /health and /healthz (spec section 4.1).
	AuthSecret string
}

// Server hosts the agent's HTTP API on a stdlib ServeMux — the teacher
// carries no HTTP framework dependency, and this surface is small enough
// that a router library would only add indirection.
type Server struct {
	deps Deps
	log  *logrus.Entry
	http *http.Server
}

func NewServer(deps Deps, log *logrus.Entry) *Server {
	s := &Server{deps: deps, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /deploy", s.handleDeploy)
	mux.HandleFunc("POST /nodes/{lab}/{node}/{action}", s.handleNodeAction)
	mux.HandleFunc("POST /labs/{lab}/links", s.handleCreateLink)
	mux.HandleFunc("DELETE /labs/{lab}/links/{link_id}", s.handleDeleteLink)
	mux.HandleFunc("POST /labs/{lab}/interfaces/{node}/{iface}/isolate", s.handleIsolate)
	mux.HandleFunc("POST /labs/{lab}/interfaces/{node}/{iface}/restore", s.handleRestore)
	mux.HandleFunc("POST /overlay/tunnels", s.handleCreateTunnel)
	mux.HandleFunc("DELETE /overlay/tunnels", s.handleDeleteTunnel)
	mux.HandleFunc("POST /overlay/external/attach", s.handleAttachExternal)
	mux.HandleFunc("POST /overlay/external/detach", s.handleDetachExternal)
	mux.HandleFunc("POST /overlay/reconcile-ports", s.handleReconcilePorts)

	if deps.ConsoleRegistry != nil {
		mux.Handle("GET /labs/{lab}/console/{node}", websocket.Handler(s.handleConsole))
	}
	if deps.ConsoleExtractor != nil {
		mux.HandleFunc("POST /labs/{lab}/nodes/{node}/console-extract", s.handleConsoleExtract)
	}

	s.http = &http.Server{Handler: s.withMiddleware(mux)}
	return s
}

// Handler exposes the fully wrapped mux, mainly for tests that want to
// drive the server with httptest without a real listener.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) ListenAndServe(addr string) error {
	s.http.Addr = addr
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// withMiddleware wraps mux in the chain spec.md's ambient stack section
// calls for: panic recovery first (so a handler bug never takes the whole
// process down), then request logging, then bearer auth.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return s.recoverMiddleware(s.loggingMiddleware(s.authMiddleware(next)))
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.WithField("panic", rec).WithField("path", r.URL.Path).Error("http handler panic")
				writeJSON(w, http.StatusInternalServerError, Result{Success: false, Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start),
		}).Info("http request")
	})
}

// authMiddleware enforces an optional bearer token; empty AuthSecret
// disables auth entirely (spec section 4.1: "when configured secret is
// empty, auth is bypassed").
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.AuthSecret == "" || r.URL.Path == "/health" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		want := "Bearer " + s.deps.AuthSecret
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, Result{Success: false, Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying ResponseWriter's http.Hijacker.
// golang.org/x/net/websocket upgrades a connection by hijacking it
// directly off the ResponseWriter it's handed; without this, wrapping
// every response in statusWriter for request logging would silently
// break the console WebSocket route.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Result{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
