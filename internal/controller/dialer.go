package controller

import (
	"time"

	"github.com/archetype-labs/agent/internal/agentclient"
	"github.com/archetype-labs/agent/internal/controller/store"
	"github.com/sirupsen/logrus"
)

// HTTPDialer dials a real internal/agentclient.Client per agent, the
// production Dialer implementation.
type HTTPDialer struct {
	Timeout time.Duration
	Log     *logrus.Entry
}

func (d HTTPDialer) Dial(agent store.Agent) AgentClient {
	// Per-agent bearer secrets live in whatever secret store backs a real
	// deployment (out of scope here, like the rest of store.AgentRegistry's
	// backing store); HTTPDialer dials unauthenticated, which is only safe
	// behind a trusted network boundary.
	return agentclient.New(agent.BaseURL, "", d.Timeout, d.Log.WithField("agent_id", agent.ID))
}
