package httpapi

import (
	"net/http"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/overlay"
)

func (s *Server) handleCreateTunnel(w http.ResponseWriter, r *http.Request) {
	var req TunnelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err))
		return
	}
	if s.deps.Overlay == nil {
		writeResult(w, apierr.New(apierr.KindValidation, "overlay manager not enabled on this agent"))
		return
	}
	err := s.deps.Overlay.CreateTunnel(r.Context(), overlay.Tunnel{
		LabID: req.LabID, VNI: req.VNI, LocalIP: req.LocalIP, RemoteIP: req.RemoteIP, VLANTag: req.VLANTag,
	})
	writeResult(w, err)
}

func (s *Server) handleDeleteTunnel(w http.ResponseWriter, r *http.Request) {
	var req TunnelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err))
		return
	}
	if s.deps.Overlay == nil {
		writeResult(w, apierr.New(apierr.KindValidation, "overlay manager not enabled on this agent"))
		return
	}
	err := s.deps.Overlay.DeleteTunnel(r.Context(), overlay.Tunnel{
		LabID: req.LabID, VNI: req.VNI, LocalIP: req.LocalIP, RemoteIP: req.RemoteIP, VLANTag: req.VLANTag,
	})
	writeResult(w, err)
}

func (s *Server) handleAttachExternal(w http.ResponseWriter, r *http.Request) {
	var req ExternalAttachRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err))
		return
	}
	if s.deps.Overlay == nil {
		writeResult(w, apierr.New(apierr.KindValidation, "overlay manager not enabled on this agent"))
		return
	}
	writeResult(w, s.deps.Overlay.AttachExternal(r.Context(), req.Interface, req.VLANTag))
}

func (s *Server) handleDetachExternal(w http.ResponseWriter, r *http.Request) {
	var req ExternalDetachRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err))
		return
	}
	if s.deps.Overlay == nil {
		writeResult(w, apierr.New(apierr.KindValidation, "overlay manager not enabled on this agent"))
		return
	}
	writeResult(w, s.deps.Overlay.DetachExternal(r.Context(), req.Interface))
}

// handleReconcilePorts enforces the force+confirm+allow_empty guard on an
// empty valid_port_names list (spec section 4.1): without it, a caller
// bug that sends an empty list would delete every overlay tunnel on the
// host.
func (s *Server) handleReconcilePorts(w http.ResponseWriter, r *http.Request) {
	var req ReconcilePortsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ReconcilePortsResponse{Result: fail(err)})
		return
	}
	if len(req.ValidPortNames) == 0 && !(req.Force && req.Confirm && req.AllowEmpty) {
		writeJSON(w, http.StatusOK, ReconcilePortsResponse{
			Result: fail(apierr.New(apierr.KindValidation,
				"refusing to reconcile against an empty port list without force+confirm+allow_empty")),
		})
		return
	}
	if s.deps.Overlay == nil {
		writeJSON(w, http.StatusOK, ReconcilePortsResponse{
			Result: fail(apierr.New(apierr.KindValidation, "overlay manager not enabled on this agent")),
		})
		return
	}

	valid := make(map[string]struct{}, len(req.ValidPortNames))
	for _, name := range req.ValidPortNames {
		valid[name] = struct{}{}
	}
	removed, err := s.deps.Overlay.ReconcilePorts(r.Context(), valid)
	if err != nil {
		writeJSON(w, http.StatusOK, ReconcilePortsResponse{Result: fail(err)})
		return
	}
	writeJSON(w, http.StatusOK, ReconcilePortsResponse{Result: ok(), Removed: removed})
}
