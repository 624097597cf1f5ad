package ovsplugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const (
	socketDir = "/run/docker/plugins"
	specDir   = "/etc/docker/plugins"
)

// Server exposes a Plugin over Docker's legacy plugin discovery mechanism:
// a Unix socket under /run/docker/plugins and a matching .spec file under
// /etc/docker/plugins naming it (spec section 4.3).
type Server struct {
	plugin   *Plugin
	listener net.Listener
	http     *http.Server
	log      *logrus.Entry
}

func NewServer(plugin *Plugin, log *logrus.Entry) *Server {
	mux := http.NewServeMux()
	s := &Server{plugin: plugin, log: log}
	s.http = &http.Server{Handler: mux}

	mux.HandleFunc("/Plugin.Activate", s.handle(func(ctx context.Context, _ json.RawMessage) (any, error) {
		return plugin.Activate(), nil
	}))
	mux.HandleFunc("/NetworkDriver.GetCapabilities", s.handle(func(ctx context.Context, _ json.RawMessage) (any, error) {
		return plugin.GetCapabilities(), nil
	}))
	mux.HandleFunc("/NetworkDriver.CreateNetwork", s.handle(func(ctx context.Context, body json.RawMessage) (any, error) {
		var req createNetworkRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return struct{}{}, plugin.CreateNetwork(ctx, req)
	}))
	mux.HandleFunc("/NetworkDriver.DeleteNetwork", s.handle(func(ctx context.Context, body json.RawMessage) (any, error) {
		var req deleteNetworkRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return struct{}{}, plugin.DeleteNetwork(req)
	}))
	mux.HandleFunc("/NetworkDriver.CreateEndpoint", s.handle(func(ctx context.Context, body json.RawMessage) (any, error) {
		var req createEndpointRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return plugin.CreateEndpoint(ctx, req)
	}))
	mux.HandleFunc("/NetworkDriver.DeleteEndpoint", s.handle(func(ctx context.Context, body json.RawMessage) (any, error) {
		var req deleteEndpointRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return struct{}{}, plugin.DeleteEndpoint(ctx, req)
	}))
	mux.HandleFunc("/NetworkDriver.Join", s.handle(func(ctx context.Context, body json.RawMessage) (any, error) {
		var req joinRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return plugin.Join(req)
	}))
	mux.HandleFunc("/NetworkDriver.Leave", s.handle(func(ctx context.Context, body json.RawMessage) (any, error) {
		var req leaveRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return struct{}{}, plugin.Leave(req)
	}))
	mux.HandleFunc("/NetworkDriver.EndpointOperInfo", s.handle(func(ctx context.Context, body json.RawMessage) (any, error) {
		var req endpointOperInfoRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return plugin.EndpointOperInfo(req), nil
	}))
	mux.HandleFunc("/NetworkDriver.DiscoverNew", s.handle(func(ctx context.Context, _ json.RawMessage) (any, error) {
		return plugin.DiscoverNew(), nil
	}))
	mux.HandleFunc("/NetworkDriver.DiscoverDelete", s.handle(func(ctx context.Context, _ json.RawMessage) (any, error) {
		return plugin.DiscoverDelete(), nil
	}))
	mux.HandleFunc("/NetworkDriver.ProgramExternalConnectivity", s.handle(func(ctx context.Context, _ json.RawMessage) (any, error) {
		return plugin.ProgramExternalConnectivity(), nil
	}))
	mux.HandleFunc("/NetworkDriver.RevokeExternalConnectivity", s.handle(func(ctx context.Context, _ json.RawMessage) (any, error) {
		return plugin.RevokeExternalConnectivity(), nil
	}))

	return s
}

// handle wraps a typed RPC body into the plugin protocol's envelope: POST
// body is the request struct directly (no wrapping), response is either
// the result struct or {Err: "..."} on failure. libnetwork treats a
// non-empty Err field as the failure signal, not the HTTP status code.
func (s *Server) handle(fn func(ctx context.Context, body json.RawMessage) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if r.Body != nil {
			b, err := io.ReadAll(r.Body)
			if err != nil {
				s.writeError(w, err)
				return
			}
			raw = b
		}

		result, err := fn(r.Context(), raw)
		if err != nil {
			s.log.WithError(err).WithField("path", r.URL.Path).Warn("plugin rpc failed")
			s.writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.docker.plugins.v1.1+json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			s.log.WithError(err).Warn("encode plugin rpc response")
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/vnd.docker.plugins.v1.1+json")
	_ = json.NewEncoder(w).Encode(errorResponse{Err: err.Error()})
}

// Serve listens on the plugin's Unix socket and writes the .spec file
// Docker uses for discovery, then blocks serving RPCs until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	sockPath := filepath.Join(socketDir, s.plugin.Name+".sock")
	specPath := filepath.Join(specDir, s.plugin.Name+".spec")

	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.MkdirAll(specDir, 0o755); err != nil {
		return fmt.Errorf("create spec dir: %w", err)
	}

	_ = os.Remove(sockPath)
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sockPath, err)
	}
	s.listener = ln

	if err := os.WriteFile(specPath, []byte("unix://"+sockPath), 0o644); err != nil {
		ln.Close()
		return fmt.Errorf("write spec file %s: %w", specPath, err)
	}

	go func() {
		<-ctx.Done()
		s.http.Close()
	}()

	s.log.WithField("socket", sockPath).Info("ovs network plugin listening")
	err = s.http.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
