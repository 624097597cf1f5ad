package httpapi

import (
	"net/http"

	"github.com/archetype-labs/agent/internal/apierr"
)

// handleIsolate simulates a cable pull on one interface: retags its OVS
// port onto a fresh, unconnected VLAN and, for container-backed nodes,
// also downs the interface inside the container's net namespace so the
// guest's own link-state observation matches (spec section 4.1).
func (s *Server) handleIsolate(w http.ResponseWriter, r *http.Request) {
	labID := r.PathValue("lab")
	nodeName := r.PathValue("node")
	iface := r.PathValue("iface")

	if s.deps.Plugin == nil {
		writeResult(w, apierr.New(apierr.KindValidation, "ovs plugin not enabled on this agent"))
		return
	}
	if err := s.deps.Plugin.Isolate(r.Context(), nodeName, iface); err != nil {
		writeResult(w, err)
		return
	}
	s.setCarrierBestEffort(r, labID, nodeName, iface, false)
	writeResult(w, nil)
}

// handleRestore undoes an isolate: retags the interface back onto the
// VLAN shared with its original peer (supplied by the caller, since the
// agent has no memory of it once Isolate reallocated the tag away) and
// brings the container-side interface back up.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	labID := r.PathValue("lab")
	nodeName := r.PathValue("node")
	iface := r.PathValue("iface")

	var req InterfaceRestoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err))
		return
	}
	if s.deps.Plugin == nil {
		writeResult(w, apierr.New(apierr.KindValidation, "ovs plugin not enabled on this agent"))
		return
	}
	err := s.deps.Plugin.HotConnect(r.Context(), labID, nodeName, iface, req.Peer.Node, req.Peer.Interface)
	if err != nil {
		writeResult(w, err)
		return
	}
	s.setCarrierBestEffort(r, labID, nodeName, iface, true)
	writeResult(w, nil)
}

// setCarrierBestEffort toggles the container-side carrier for nodeName's
// interface. VM-backed nodes have no net-namespace concept here (libvirt
// handles their link state through the guest's own virtio-net device), so
// this only applies to Docker-backed nodes, and a lookup failure (e.g. the
// node isn't container-backed, or isn't running) is logged, not fatal —
// the VLAN retag is the operation's primary effect either way.
func (s *Server) setCarrierBestEffort(r *http.Request, labID, nodeName, iface string, up bool) {
	if s.deps.Docker == nil {
		return
	}
	containerID, err := s.deps.Docker.ContainerID(r.Context(), labID, nodeName)
	if err != nil {
		return
	}
	if err := s.deps.Docker.SetInterfaceCarrier(r.Context(), containerID, iface, up); err != nil {
		s.log.WithError(err).WithFields(map[string]any{
			"lab_id": labID, "node": nodeName, "iface": iface,
		}).Warn("set interface carrier")
	}
}
