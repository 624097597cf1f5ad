package httpapi

import (
	"net/http"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/model"
)

// handleNodeAction dispatches POST /nodes/{lab}/{node}/{action} to the
// right provider by image suffix (spec section 9: ".qcow2" => libvirt,
// everything else => Docker). action is one of start, stop, destroy.
func (s *Server) handleNodeAction(w http.ResponseWriter, r *http.Request) {
	labID := r.PathValue("lab")
	nodeName := r.PathValue("node")
	action := r.PathValue("action")

	var req NodeActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NodeActionResponse{Result: fail(err)})
		return
	}

	var err error
	switch {
	case req.Node.IsVM():
		err = s.dispatchVMAction(r, labID, nodeName, action, req.Node)
	default:
		err = s.dispatchContainerAction(r, labID, nodeName, action, req.NetworkNames)
	}

	if apierr.IsIdempotentSuccess(err) {
		writeJSON(w, http.StatusOK, NodeActionResponse{Result: ok(), Idempotent: true})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusOK, NodeActionResponse{Result: fail(err)})
		return
	}
	writeJSON(w, http.StatusOK, NodeActionResponse{Result: ok()})
}

func (s *Server) dispatchContainerAction(r *http.Request, labID, nodeName, action string, netNames []string) error {
	if s.deps.Docker == nil {
		return apierr.New(apierr.KindValidation, "docker provider not enabled on this agent")
	}
	switch action {
	case "start":
		return s.deps.Docker.Start(r.Context(), labID, nodeName, netNames)
	case "stop":
		return s.deps.Docker.Stop(r.Context(), labID, nodeName)
	case "destroy":
		return s.deps.Docker.DestroyNode(r.Context(), labID, nodeName)
	default:
		return apierr.New(apierr.KindValidation, "unknown node action "+action)
	}
}

func (s *Server) dispatchVMAction(r *http.Request, labID, nodeName, action string, node model.Node) error {
	if s.deps.Libvirt == nil {
		return apierr.New(apierr.KindValidation, "libvirt provider not enabled on this agent")
	}
	switch action {
	case "start":
		return s.deps.Libvirt.Start(r.Context(), labID, nodeName)
	case "stop":
		return s.deps.Libvirt.Stop(r.Context(), labID, nodeName)
	case "destroy":
		return s.deps.Libvirt.DestroyNode(r.Context(), labID, nodeName, node.Kind)
	default:
		return apierr.New(apierr.KindValidation, "unknown node action "+action)
	}
}
