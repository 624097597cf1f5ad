package httpapi

import (
	"net/http"
	"strings"

	"github.com/archetype-labs/agent/internal/apierr"
)

// handleCreateLink hot-connects two already-running interfaces onto a
// shared VLAN (spec section 4.1's POST /labs/{lab}/links), used when a
// link is added to a lab that's already deployed.
func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	labID := r.PathValue("lab")
	var req LinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Result{Success: false, Error: err.Error()})
		return
	}
	if s.deps.Plugin == nil {
		writeJSON(w, http.StatusOK, fail(apierr.New(apierr.KindValidation, "ovs plugin not enabled on this agent")))
		return
	}
	err := s.deps.Plugin.HotConnect(r.Context(), labID, req.A.Node, req.A.Interface, req.B.Node, req.B.Interface)
	writeResult(w, err)
}

// handleDeleteLink hot-disconnects a link. {link_id} is the canonical
// "nodeA:ifaceA-nodeB:ifaceB" link name; the two endpoints are recovered
// from it rather than requiring a body, since DELETE requests
// conventionally carry no payload.
func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	labID := r.PathValue("lab")
	linkID := r.PathValue("link_id")

	a, b, err := parseLinkID(linkID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err))
		return
	}
	if s.deps.Plugin == nil {
		writeJSON(w, http.StatusOK, fail(apierr.New(apierr.KindValidation, "ovs plugin not enabled on this agent")))
		return
	}
	hderr := s.deps.Plugin.HotDisconnect(r.Context(), labID, a.Node, a.Interface, b.Node, b.Interface)
	writeResult(w, hderr)
}

// parseLinkID splits a canonical "node:iface-node:iface" link identifier
// back into its two endpoints.
func parseLinkID(linkID string) (LinkEndpoint, LinkEndpoint, error) {
	sides := strings.SplitN(linkID, "-", 2)
	if len(sides) != 2 {
		return LinkEndpoint{}, LinkEndpoint{}, apierr.New(apierr.KindValidation, "malformed link id "+linkID)
	}
	a, err := parseEndpoint(sides[0])
	if err != nil {
		return LinkEndpoint{}, LinkEndpoint{}, err
	}
	b, err := parseEndpoint(sides[1])
	if err != nil {
		return LinkEndpoint{}, LinkEndpoint{}, err
	}
	return a, b, nil
}

func parseEndpoint(s string) (LinkEndpoint, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return LinkEndpoint{}, apierr.New(apierr.KindValidation, "malformed link endpoint "+s)
	}
	return LinkEndpoint{Node: parts[0], Interface: parts[1]}, nil
}

func writeResult(w http.ResponseWriter, err error) {
	if apierr.IsIdempotentSuccess(err) {
		writeJSON(w, http.StatusOK, ok())
		return
	}
	if err != nil {
		writeJSON(w, http.StatusOK, fail(err))
		return
	}
	writeJSON(w, http.StatusOK, ok())
}
