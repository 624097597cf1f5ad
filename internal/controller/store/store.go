// Package store defines the small persistence seams the controller
// lifecycle manager depends on (spec section 4.9's "[ADDED]" note): a
// real installation backs these with a database, which is out of scope
// here, so this package only names the interfaces.
package store

import (
	"context"

	"github.com/archetype-labs/agent/internal/model"
)

// NodeStateStore holds each node's (desired, actual) lifecycle state.
type NodeStateStore interface {
	Get(ctx context.Context, labID, nodeID string) (model.NodeState, bool, error)
	BatchGet(ctx context.Context, labID string, nodeIDs []string) (map[string]model.NodeState, error)
	Put(ctx context.Context, state model.NodeState) error
}

// NodePlacementStore holds which agent each running node is currently
// placed on.
type NodePlacementStore interface {
	Get(ctx context.Context, labID, nodeName string) (model.NodePlacement, bool, error)
	BatchGetForLab(ctx context.Context, labID string) (map[string]model.NodePlacement, error)
	Put(ctx context.Context, placement model.NodePlacement) error
	Delete(ctx context.Context, labID, nodeName string) error
}

// NodeStore batch-loads the topology rows a job operates on, eliminating
// the N+1 queries spec section 4.9 step 1 calls out.
type NodeStore interface {
	BatchGetForLab(ctx context.Context, labID string) (map[string]model.Node, error)
	Get(ctx context.Context, labID, nodeID string) (model.Node, bool, error)
}

// LinkStore batch-loads a lab's links for post-deploy/migration
// same-host and cross-host link reconnection.
type LinkStore interface {
	ForLab(ctx context.Context, labID string) ([]model.Link, error)
}

// Agent is a registered agent's advertised capabilities, as the lifecycle
// manager needs them to resolve placement (spec section 4.9 step 3).
type Agent struct {
	ID        string
	BaseURL   string
	Healthy   bool
	Providers map[string]bool // e.g. "docker": true, "libvirt": true
}

// SupportsKind reports whether this agent advertises the provider a given
// device kind needs (spec section 9's provider-dispatch-by-image-suffix
// rule means VM-backed kinds need "libvirt", everything else "docker").
func (a Agent) SupportsKind(isVM bool) bool {
	if isVM {
		return a.Providers["libvirt"]
	}
	return a.Providers["docker"]
}

// AgentRegistry resolves agent health and capability lookups. The
// heartbeat mechanism that keeps Healthy current lives outside this
// package's scope; AgentRegistry only serves reads the lifecycle manager
// needs.
type AgentRegistry interface {
	Get(ctx context.Context, agentID string) (Agent, bool, error)
	ListHealthy(ctx context.Context) ([]Agent, error)
}
