package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReconcilePorts_RefusesEmptyListWithoutForceConfirm(t *testing.T) {
	s := testServer(t, Deps{})
	body, _ := json.Marshal(ReconcilePortsRequest{})
	req := httptest.NewRequest(http.MethodPost, "/overlay/reconcile-ports", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp ReconcilePortsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatal("expected refusal for empty port list without force+confirm+allow_empty")
	}
}

func TestReconcilePorts_FailsCleanlyWhenOverlayDisabled(t *testing.T) {
	s := testServer(t, Deps{})
	body, _ := json.Marshal(ReconcilePortsRequest{
		ValidPortNames: []string{"vxlan100000"},
	})
	req := httptest.NewRequest(http.MethodPost, "/overlay/reconcile-ports", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp ReconcilePortsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatal("expected failure when overlay manager is nil")
	}
}

func TestReconcilePorts_AllowsEmptyListWithFullGuard(t *testing.T) {
	s := testServer(t, Deps{})
	body, _ := json.Marshal(ReconcilePortsRequest{Force: true, Confirm: true, AllowEmpty: true})
	req := httptest.NewRequest(http.MethodPost, "/overlay/reconcile-ports", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp ReconcilePortsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Still fails, but for "overlay disabled" not for the guard — the guard
	// itself must not be the blocker once force+confirm+allow_empty is set.
	if resp.Error == "" {
		t.Fatal("expected an error (overlay disabled), but guard should not be the cause")
	}
}
