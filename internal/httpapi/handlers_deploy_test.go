package httpapi

import (
	"errors"
	"testing"

	"github.com/archetype-labs/agent/internal/apierr"
)

func TestClassifyFailures_SplitsMissingImageFromOpaqueErrors(t *testing.T) {
	resp := &DeployResponse{Failed: make(map[string]string)}
	failed := map[string]error{
		"r1": apierr.New(apierr.KindMissingImage, "no image ceos:latest"),
		"r2": errors.New("boom"),
	}
	classifyFailures(resp, failed)

	if resp.MissingImages["r1"] != "no image ceos:latest" {
		t.Fatalf("MissingImages[r1] = %q", resp.MissingImages["r1"])
	}
	if resp.Failed["r2"] != "boom" {
		t.Fatalf("Failed[r2] = %q", resp.Failed["r2"])
	}
	if _, ok := resp.Failed["r1"]; ok {
		t.Fatal("r1 should not also appear in Failed")
	}
}

func TestIsMissingImage(t *testing.T) {
	if !isMissingImage(apierr.New(apierr.KindMissingImage, "x")) {
		t.Fatal("expected true for KindMissingImage")
	}
	if isMissingImage(errors.New("plain")) {
		t.Fatal("expected false for a plain error")
	}
	if isMissingImage(nil) {
		t.Fatal("expected false for nil")
	}
}
