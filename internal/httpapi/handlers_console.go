package httpapi

import (
	"net/http"
	"time"

	"github.com/archetype-labs/agent/internal/console"
	"golang.org/x/net/websocket"
)

// handleConsole serves a VM's serial console over a WebSocket (spec
// section 4.8): it opens (or reuses, via piggyback arbitration against
// internal/console's Locker) a virsh console session and pumps bytes in
// both directions until either side closes. Control frames let the
// browser know when console extraction has temporarily taken over the
// PTY in read-only mode.
func (s *Server) handleConsole(ws *websocket.Conn) {
	defer ws.Close()

	req := ws.Request()
	domainName := req.PathValue("node")
	log := s.log.WithField("lab", req.PathValue("lab")).WithField("node", domainName)

	release, acquired := s.deps.ConsoleLocker.TryLock(domainName)
	if !acquired {
		log.Warn("console busy: extraction or another session holds the lock")
		return
	}
	defer release()

	injector, closeConsole, err := console.OpenVirshConsole(req.Context(), s.deps.LibvirtURI, domainName)
	if err != nil {
		log.WithError(err).Warn("open virsh console")
		return
	}
	defer closeConsole()

	sess := &console.Session{DomainName: domainName, Injector: injector}
	sess.SendControl = func(f console.ControlFrame) error {
		return websocket.JSON.Send(ws, f)
	}
	s.deps.ConsoleRegistry.Register(sess)
	defer s.deps.ConsoleRegistry.Unregister(domainName)
	s.deps.ConsoleRegistry.ReplayControlState(sess)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		var buf [4096]byte
		for {
			n, err := ws.Read(buf[:])
			if err != nil {
				return
			}
			if n > 0 {
				if err := injector.Send(string(buf[:n])); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-readerDone:
			return
		default:
		}
		chunk, err := injector.ReadChunk(200 * time.Millisecond)
		if err != nil {
			return
		}
		if len(chunk) == 0 {
			continue
		}
		if _, err := ws.Write(chunk); err != nil {
			return
		}
	}
}

// handleConsoleExtract runs a one-shot console extraction command against
// a domain (spec section 4.8's "console extraction (serial via virsh)"),
// for nodes without management-network reachability yet.
func (s *Server) handleConsoleExtract(w http.ResponseWriter, r *http.Request) {
	domainName := r.PathValue("node")

	var req ConsoleExtractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ConsoleExtractResponse{Result: fail(err)})
		return
	}
	if req.Command == "" {
		req.Command = "show running-config"
	}

	result := s.deps.ConsoleExtractor.Extract(r.Context(), domainName, console.ExtractOptions{
		Command:        req.Command,
		Username:       req.Username,
		Password:       req.Password,
		EnablePassword: req.EnablePassword,
		PromptPattern:  req.PromptPattern,
	})
	if !result.Success {
		writeJSON(w, http.StatusOK, ConsoleExtractResponse{Result: Result{Success: false, Error: result.Error}})
		return
	}
	writeJSON(w, http.StatusOK, ConsoleExtractResponse{Result: ok(), Config: result.Config})
}
