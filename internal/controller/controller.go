// Package controller is the controller-side lifecycle manager (spec
// section 4.9): given a lab and a set of node ids, it resolves each
// node's agent, transitions it through the state machine, and dispatches
// the corresponding deploy/start/stop RPC. It depends only on the small
// store interfaces in internal/controller/store, never a concrete
// database, and talks to agents through the AgentClient interface below
// rather than importing internal/agentclient directly — the same seam
// shape as the teacher's DockerAgent-talks-to-scon-through-sgclient.Client
// split (scon/agent/docker.go / scon/sgclient).
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/archetype-labs/agent/internal/apierr"
	"github.com/archetype-labs/agent/internal/controller/store"
	"github.com/archetype-labs/agent/internal/httpapi"
	"github.com/archetype-labs/agent/internal/model"
	"github.com/archetype-labs/agent/internal/statemachine"
	"github.com/sirupsen/logrus"
)

// AgentClient is the subset of internal/agentclient.Client the lifecycle
// manager calls. *agentclient.Client satisfies this by its method set
// alone; nothing in this package imports that package, so tests supply a
// fake.
type AgentClient interface {
	Deploy(ctx context.Context, lab model.Lab) (httpapi.DeployResponse, error)
	NodeAction(ctx context.Context, labID, nodeName, action string, node model.Node, networkNames []string) (httpapi.NodeActionResponse, error)
	CreateLink(ctx context.Context, labID string, a, b httpapi.LinkEndpoint) (httpapi.Result, error)
}

// Dialer resolves a live AgentClient for a registered agent. Production
// wiring (cmd/agent's companion controller binary, out of this repo's
// scope beyond this package) backs this with agentclient.New per
// store.Agent.BaseURL; tests supply fakes directly.
type Dialer interface {
	Dial(agent store.Agent) AgentClient
}

// Manager orchestrates per-node deploy/start/stop/destroy across agents.
type Manager struct {
	NodeStates  store.NodeStateStore
	Placements  store.NodePlacementStore
	Nodes       store.NodeStore
	Links       store.LinkStore
	Agents      store.AgentRegistry
	Dialer      Dialer
	Log         *logrus.Entry
}

// jobPlan is one node's computed transition within a single Run call.
type jobPlan struct {
	node   model.Node
	state  model.NodeState
	next   model.ActualState
	action statemachine.Action
}

// NodeResult is one node's outcome within a Run.
type NodeResult struct {
	NodeID  string
	Actual  model.ActualState
	Error   string
}

// JobResult rolls up every node's outcome, per spec section 4.9 step 11
// ("finalize: roll job status up from per-node results").
type JobResult struct {
	Results []NodeResult
}

// Failed reports whether any node ended in StateError.
func (r JobResult) Failed() bool {
	for _, res := range r.Results {
		if res.Actual == model.StateError {
			return true
		}
	}
	return false
}

// Run executes spec section 4.9's algorithm for the given lab and node
// ids. lab carries the full topology (nodes + links); nodeIDs scopes
// which of its nodes this job actually touches.
func (m *Manager) Run(ctx context.Context, lab model.Lab, nodeIDs []string) (JobResult, error) {
	// Step 1: load & validate. Batch-load node/placement rows for the
	// whole lab to avoid N+1 lookups, per spec.
	nodesByID, err := m.Nodes.BatchGetForLab(ctx, lab.ID)
	if err != nil {
		return JobResult{}, fmt.Errorf("batch-load nodes: %w", err)
	}
	placements, err := m.Placements.BatchGetForLab(ctx, lab.ID)
	if err != nil {
		return JobResult{}, fmt.Errorf("batch-load placements: %w", err)
	}
	states, err := m.NodeStates.BatchGet(ctx, lab.ID, nodeIDs)
	if err != nil {
		return JobResult{}, fmt.Errorf("batch-get node states: %w", err)
	}

	var plans []jobPlan
	for _, id := range nodeIDs {
		node, ok := nodesByID[id]
		if !ok {
			continue
		}
		st, ok := states[id]
		if !ok {
			st = model.NodeState{LabID: lab.ID, NodeID: id, Desired: model.DesiredRunning, Actual: model.StateUndeployed}
		}
		next, action, ok := statemachine.Next(st.Actual, st.Desired)
		if !ok {
			continue // already matches intent; nothing to do
		}
		plans = append(plans, jobPlan{node: node, state: st, next: next, action: action})
	}
	if len(plans) == 0 {
		return JobResult{}, nil
	}

	// Step 2: set transitional states before any RPC, so the UI reflects
	// intent even if the agent turns out to be unreachable.
	now := time.Now
	for i := range plans {
		p := &plans[i]
		p.state.Actual = p.next
		switch p.next {
		case model.StateStarting:
			p.state.StartingStartedAt = now()
		case model.StateStopping:
			p.state.StoppingStartedAt = now()
		}
		if err := m.NodeStates.Put(ctx, p.state); err != nil {
			return JobResult{}, fmt.Errorf("persist transitional state for %s: %w", p.node.ID, err)
		}
	}

	// Step 3: resolve agents, grouping nodes by resolved agent.
	byAgent := make(map[string][]jobPlan)
	resolutionErr := make(map[string]error)
	for _, p := range plans {
		agentID, err := m.resolveAgent(ctx, lab, p.node, placements)
		if err != nil {
			resolutionErr[p.node.ID] = err
			continue
		}
		byAgent[agentID] = append(byAgent[agentID], p)
	}

	result := JobResult{}
	var mu sync.Mutex
	record := func(nodeID string, actual model.ActualState, err error) {
		mu.Lock()
		defer mu.Unlock()
		res := NodeResult{NodeID: nodeID, Actual: actual}
		if err != nil {
			res.Error = err.Error()
		}
		result.Results = append(result.Results, res)
	}

	for nodeID, err := range resolutionErr {
		m.markError(ctx, lab.ID, nodeID, err)
		record(nodeID, model.StateError, err)
	}

	// Each agent's batch of nodes runs as its own goroutine (spec section
	// 5's "per-agent sub-jobs... fanned out", mirroring
	// util.EntityJobManager's one-goroutine-per-job shape).
	var wg sync.WaitGroup
	for agentID, agentPlans := range byAgent {
		agentID, agentPlans := agentID, agentPlans
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runAgentBatch(ctx, lab, agentID, agentPlans, placements, record)
		}()
	}
	wg.Wait()

	return result, nil
}

// resolveAgent implements spec section 4.9 step 3's priority order:
// explicit host_id, existing placement, lab default, any healthy agent
// advertising the right provider.
func (m *Manager) resolveAgent(ctx context.Context, lab model.Lab, node model.Node, placements map[string]model.NodePlacement) (string, error) {
	if node.ExplicitHost != "" {
		agent, ok, err := m.Agents.Get(ctx, node.ExplicitHost)
		if err != nil {
			return "", err
		}
		if !ok || !agent.Healthy {
			return "", apierr.New(apierr.KindAgentUnavailable, "explicit host "+node.ExplicitHost+" is down")
		}
		return agent.ID, nil
	}
	if p, ok := placements[node.Name]; ok && p.HostID != "" {
		if agent, ok, err := m.Agents.Get(ctx, p.HostID); err == nil && ok && agent.Healthy {
			return agent.ID, nil
		}
	}
	if lab.Defaults.AgentID != "" {
		if agent, ok, err := m.Agents.Get(ctx, lab.Defaults.AgentID); err == nil && ok && agent.Healthy {
			return agent.ID, nil
		}
	}
	healthy, err := m.Agents.ListHealthy(ctx)
	if err != nil {
		return "", err
	}
	for _, agent := range healthy {
		if agent.SupportsKind(node.IsVM()) {
			return agent.ID, nil
		}
	}
	return "", apierr.New(apierr.KindResourceExhausted, "no healthy agent available for node "+node.Name)
}

func (m *Manager) markError(ctx context.Context, labID, nodeID string, err error) {
	st, ok, _ := m.NodeStates.Get(ctx, labID, nodeID)
	if !ok {
		st = model.NodeState{LabID: labID, NodeID: nodeID}
	}
	st.Actual = model.StateError
	st.ErrorMessage = err.Error()
	if perr := m.NodeStates.Put(ctx, st); perr != nil {
		m.Log.WithError(perr).Warn("persist error state")
	}
}
