package httpapi

import (
	"net/http"

	"github.com/archetype-labs/agent/internal/apierr"
)

// handleDeploy runs both providers' whole-lab deploy procedure (spec
// section 4.2), merging their per-node results into one response. A
// missing-image failure from either provider aborts that provider's half
// of the deploy but not the other's.
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, DeployResponse{Result: fail(err)})
		return
	}

	resp := DeployResponse{
		Result: ok(),
		Failed: make(map[string]string),
	}

	if s.deps.Docker != nil {
		dr, err := s.deps.Docker.Deploy(r.Context(), req.Lab)
		if isMissingImage(err) {
			mergeMissingImages(&resp, err)
		} else if err != nil {
			writeJSON(w, http.StatusOK, DeployResponse{Result: fail(err)})
			return
		}
		resp.Deployed = append(resp.Deployed, dr.Deployed...)
		classifyFailures(&resp, dr.Failed)
	}

	if s.deps.Libvirt != nil {
		vr, err := s.deps.Libvirt.Deploy(r.Context(), req.Lab)
		if err != nil {
			writeJSON(w, http.StatusOK, DeployResponse{Result: fail(err)})
			return
		}
		resp.Deployed = append(resp.Deployed, vr.Deployed...)
		classifyFailures(&resp, vr.Failed)
	}

	if len(resp.Failed) > 0 {
		resp.Success = false
		resp.Error = "one or more nodes failed to deploy"
	}
	writeJSON(w, http.StatusOK, resp)
}

// classifyFailures sorts per-node deploy failures into MissingImages
// (expected to be retried once the image is present, per spec section 7)
// versus opaque Failed errors.
func classifyFailures(resp *DeployResponse, failed map[string]error) {
	for name, nerr := range failed {
		if ae, ok := nerr.(*apierr.Error); ok && ae.Kind == apierr.KindMissingImage {
			if resp.MissingImages == nil {
				resp.MissingImages = make(map[string]string)
			}
			resp.MissingImages[name] = ae.Message
			continue
		}
		resp.Failed[name] = nerr.Error()
	}
}

func isMissingImage(err error) bool {
	ae, ok := err.(*apierr.Error)
	return ok && ae.Kind == apierr.KindMissingImage
}

func mergeMissingImages(resp *DeployResponse, err error) {
	ae, ok := err.(*apierr.Error)
	if !ok {
		return
	}
	details, ok := ae.Details.(map[string]string)
	if !ok {
		return
	}
	if resp.MissingImages == nil {
		resp.MissingImages = make(map[string]string, len(details))
	}
	for name, image := range details {
		resp.MissingImages[name] = image
	}
}
