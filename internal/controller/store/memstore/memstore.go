// Package memstore is an in-memory implementation of internal/controller/store's
// interfaces, mutex-guarded maps sufficient for tests and a single-process
// deployment (spec section 4.9's "[ADDED]" note) — a real installation
// would back these interfaces with a database instead.
package memstore

import (
	"context"
	"sync"

	"github.com/archetype-labs/agent/internal/controller/store"
	"github.com/archetype-labs/agent/internal/model"
)

type nodeStateKey struct{ labID, nodeID string }

// NodeStateStore is the in-memory store.NodeStateStore.
type NodeStateStore struct {
	mu     sync.Mutex
	states map[nodeStateKey]model.NodeState
}

func NewNodeStateStore() *NodeStateStore {
	return &NodeStateStore{states: make(map[nodeStateKey]model.NodeState)}
}

func (s *NodeStateStore) Get(_ context.Context, labID, nodeID string) (model.NodeState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[nodeStateKey{labID, nodeID}]
	return st, ok, nil
}

func (s *NodeStateStore) BatchGet(_ context.Context, labID string, nodeIDs []string) (map[string]model.NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.NodeState, len(nodeIDs))
	for _, id := range nodeIDs {
		if st, ok := s.states[nodeStateKey{labID, id}]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (s *NodeStateStore) Put(_ context.Context, state model.NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[nodeStateKey{state.LabID, state.NodeID}] = state
	return nil
}

type placementKey struct{ labID, nodeName string }

// NodePlacementStore is the in-memory store.NodePlacementStore.
type NodePlacementStore struct {
	mu         sync.Mutex
	placements map[placementKey]model.NodePlacement
}

func NewNodePlacementStore() *NodePlacementStore {
	return &NodePlacementStore{placements: make(map[placementKey]model.NodePlacement)}
}

func (s *NodePlacementStore) Get(_ context.Context, labID, nodeName string) (model.NodePlacement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.placements[placementKey{labID, nodeName}]
	return p, ok, nil
}

func (s *NodePlacementStore) BatchGetForLab(_ context.Context, labID string) (map[string]model.NodePlacement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.NodePlacement)
	for k, p := range s.placements {
		if k.labID == labID {
			out[k.nodeName] = p
		}
	}
	return out, nil
}

func (s *NodePlacementStore) Put(_ context.Context, placement model.NodePlacement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placements[placementKey{placement.LabID, placement.NodeName}] = placement
	return nil
}

func (s *NodePlacementStore) Delete(_ context.Context, labID, nodeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.placements, placementKey{labID, nodeName})
	return nil
}

// NodeStore is the in-memory store.NodeStore, keyed by lab.
type NodeStore struct {
	mu    sync.Mutex
	nodes map[string]map[string]model.Node // labID -> nodeID -> Node
}

func NewNodeStore() *NodeStore {
	return &NodeStore{nodes: make(map[string]map[string]model.Node)}
}

// PutLab seeds this store with a lab's full node set, replacing whatever
// was there before — the controller's own lab-edit path (out of scope
// here) is what normally keeps this current.
func (s *NodeStore) PutLab(labID string, nodes []model.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	s.nodes[labID] = byID
}

func (s *NodeStore) BatchGetForLab(_ context.Context, labID string) (map[string]model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Node, len(s.nodes[labID]))
	for id, n := range s.nodes[labID] {
		out[id] = n
	}
	return out, nil
}

func (s *NodeStore) Get(_ context.Context, labID, nodeID string) (model.Node, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[labID][nodeID]
	return n, ok, nil
}

// LinkStore is the in-memory store.LinkStore, keyed by lab.
type LinkStore struct {
	mu    sync.Mutex
	links map[string][]model.Link
}

func NewLinkStore() *LinkStore {
	return &LinkStore{links: make(map[string][]model.Link)}
}

func (s *LinkStore) PutLab(labID string, links []model.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[labID] = append([]model.Link(nil), links...)
}

func (s *LinkStore) ForLab(_ context.Context, labID string) ([]model.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Link, len(s.links[labID]))
	copy(out, s.links[labID])
	return out, nil
}

// AgentRegistry is the in-memory store.AgentRegistry.
type AgentRegistry struct {
	mu     sync.Mutex
	agents map[string]store.Agent
}

func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]store.Agent)}
}

func (r *AgentRegistry) Put(agent store.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
}

func (r *AgentRegistry) Get(_ context.Context, agentID string) (store.Agent, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	return a, ok, nil
}

func (r *AgentRegistry) ListHealthy(_ context.Context) ([]store.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if a.Healthy {
			out = append(out, a)
		}
	}
	return out, nil
}
