package controller

import (
	"context"

	"github.com/archetype-labs/agent/internal/httpapi"
	"github.com/archetype-labs/agent/internal/model"
	"github.com/archetype-labs/agent/internal/statemachine"
)

// runAgentBatch executes one resolved agent's share of a job: migration
// cleanup (step 6), deploy (step 8) or per-node start/stop (step 9), and
// same-host link connection (step 10 — cross-host VXLAN tunnels are the
// controller's separate overlay-reconciliation path, not part of a single
// Run call). Every outcome is persisted to NodeStateStore and reported via
// record before returning.
func (m *Manager) runAgentBatch(ctx context.Context, lab model.Lab, agentID string, plans []jobPlan, placements map[string]model.NodePlacement, record func(nodeID string, actual model.ActualState, err error)) {
	agent, ok, err := m.Agents.Get(ctx, agentID)
	if err != nil || !ok {
		if err == nil {
			err = errAgentNotFound(agentID)
		}
		for _, p := range plans {
			m.markError(ctx, lab.ID, p.node.ID, err)
			record(p.node.ID, model.StateError, err)
		}
		return
	}
	client := m.Dialer.Dial(agent)

	// Step 6: migration — a node whose last known placement was on a
	// different agent needs its old container stopped and the stale
	// placement dropped before anything new is created here.
	for _, p := range plans {
		old, ok := placements[p.node.Name]
		if !ok || old.HostID == "" || old.HostID == agentID {
			continue
		}
		if oldAgent, ok, _ := m.Agents.Get(ctx, old.HostID); ok {
			oldClient := m.Dialer.Dial(oldAgent)
			_, _ = oldClient.NodeAction(ctx, lab.ID, p.node.Name, "stop", p.node, nil)
		}
		_ = m.Placements.Delete(ctx, lab.ID, p.node.Name)
	}

	var deployBatch []jobPlan
	for _, p := range plans {
		switch p.action {
		case statemachine.ActionDeployAndStart:
			deployBatch = append(deployBatch, p)
			_ = m.Placements.Put(ctx, model.NodePlacement{LabID: lab.ID, NodeName: p.node.Name, HostID: agentID, Status: "starting"})
		case statemachine.ActionStart, statemachine.ActionRestart:
			m.dispatchNodeAction(ctx, client, lab.ID, p, "start", record)
		case statemachine.ActionStop, statemachine.ActionReverse:
			m.dispatchNodeAction(ctx, client, lab.ID, p, "stop", record)
		}
	}
	if len(deployBatch) > 0 {
		m.dispatchDeploy(ctx, client, lab, deployBatch, record)
	}

	m.connectSameHostLinks(ctx, client, lab, plans)
}

// dispatchNodeAction calls the agent's start/stop RPC for a single
// already-deployed node and persists the resulting actual state.
func (m *Manager) dispatchNodeAction(ctx context.Context, client AgentClient, labID string, p jobPlan, action string, record func(nodeID string, actual model.ActualState, err error)) {
	resp, err := client.NodeAction(ctx, labID, p.node.Name, action, p.node, nil)
	actual := p.next
	var outErr error
	if err != nil {
		actual, outErr = model.StateError, err
	} else if !resp.Success {
		actual, outErr = model.StateError, errString(resp.Error)
	} else if action == "stop" {
		actual = model.StateStopped
	} else {
		actual = model.StateRunning
	}
	m.persistOutcome(ctx, labID, p.node.ID, actual, outErr)
	record(p.node.ID, actual, outErr)
}

// dispatchDeploy sends one whole-topology deploy RPC per spec section
// 4.9 step 8's "whole-topology path": the lab is filtered to just this
// agent's nodes (plus the links between them) before being sent, so the
// agent never needs to know about nodes placed elsewhere.
func (m *Manager) dispatchDeploy(ctx context.Context, client AgentClient, lab model.Lab, batch []jobPlan, record func(nodeID string, actual model.ActualState, err error)) {
	names := make(map[string]bool, len(batch))
	nodes := make([]model.Node, 0, len(batch))
	byName := make(map[string]jobPlan, len(batch))
	for _, p := range batch {
		names[p.node.Name] = true
		nodes = append(nodes, p.node)
		byName[p.node.Name] = p
	}
	var links []model.Link
	for _, l := range lab.Links {
		if names[l.A.Node] && names[l.B.Node] {
			links = append(links, l)
		}
	}
	filtered := lab
	filtered.Nodes = nodes
	filtered.Links = links

	resp, err := client.Deploy(ctx, filtered)
	if err != nil {
		for _, p := range batch {
			m.persistOutcome(ctx, lab.ID, p.node.ID, model.StateError, err)
			record(p.node.ID, model.StateError, err)
		}
		return
	}
	for _, name := range resp.Deployed {
		p, ok := byName[name]
		if !ok {
			continue
		}
		m.persistOutcome(ctx, lab.ID, p.node.ID, model.StateRunning, nil)
		record(p.node.ID, model.StateRunning, nil)
	}
	for name, reason := range resp.Failed {
		p, ok := byName[name]
		if !ok {
			continue
		}
		err := errString(reason)
		m.persistOutcome(ctx, lab.ID, p.node.ID, model.StateError, err)
		record(p.node.ID, model.StateError, err)
	}
	for name, image := range resp.MissingImages {
		p, ok := byName[name]
		if !ok {
			continue
		}
		err := errString("missing image: " + image)
		m.persistOutcome(ctx, lab.ID, p.node.ID, model.StateError, err)
		record(p.node.ID, model.StateError, err)
	}
}

// connectSameHostLinks hot-connects every link whose both endpoints are
// part of this batch and have just come up (spec section 4.9 step 10,
// restricted to links resolved to the same agent — cross-host links are
// the overlay's concern).
func (m *Manager) connectSameHostLinks(ctx context.Context, client AgentClient, lab model.Lab, plans []jobPlan) {
	starting := make(map[string]bool, len(plans))
	for _, p := range plans {
		if p.next == model.StateStarting {
			starting[p.node.Name] = true
		}
	}
	if len(starting) == 0 {
		return
	}
	links, err := m.Links.ForLab(ctx, lab.ID)
	if err != nil {
		m.Log.WithError(err).Warn("load links for post-deploy connect")
		return
	}
	for _, link := range links {
		if !starting[link.A.Node] || !starting[link.B.Node] {
			continue
		}
		a := httpapi.LinkEndpoint{Node: link.A.Node, Interface: link.A.Interface}
		b := httpapi.LinkEndpoint{Node: link.B.Node, Interface: link.B.Interface}
		if _, err := client.CreateLink(ctx, lab.ID, a, b); err != nil {
			m.Log.WithError(err).WithField("link", link.Name()).Warn("connect same-host link")
		}
	}
}

func (m *Manager) persistOutcome(ctx context.Context, labID, nodeID string, actual model.ActualState, err error) {
	st, ok, _ := m.NodeStates.Get(ctx, labID, nodeID)
	if !ok {
		st = model.NodeState{LabID: labID, NodeID: nodeID}
	}
	st.Actual = actual
	if err != nil {
		st.ErrorMessage = err.Error()
	} else {
		st.ErrorMessage = ""
	}
	if perr := m.NodeStates.Put(ctx, st); perr != nil {
		m.Log.WithError(perr).Warn("persist node state")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func errAgentNotFound(agentID string) error {
	return errString("agent " + agentID + " not found")
}
