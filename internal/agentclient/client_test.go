package agentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/archetype-labs/agent/internal/httpapi"
	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(discardWriter{})
	return log.WithField("test", true)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPing_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, testLog())
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestPing_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := New(srv.URL, "s3cr3t", time.Second, testLog())
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if gotAuth != "Bearer s3cr3t" {
		t.Fatalf("Authorization = %q, want Bearer s3cr3t", gotAuth)
	}
}

func TestCall_RetriesTransientFailureThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, testLog())
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v, want success after retries", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestCall_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, testLog())
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != maxRetries {
		t.Fatalf("attempts = %d, want %d", attempts, maxRetries)
	}
}

func TestReconcilePorts_DecodesApplicationFailureWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "refusing empty reconcile"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, testLog())
	resp, err := c.ReconcilePorts(context.Background(), httpapi.ReconcilePortsRequest{})
	if err != nil {
		t.Fatalf("ReconcilePorts() transport error = %v, want nil (application failure is in the body)", err)
	}
	if resp.Success {
		t.Fatal("expected Success=false from decoded body")
	}
	if resp.Error != "refusing empty reconcile" {
		t.Fatalf("Error = %q", resp.Error)
	}
}
