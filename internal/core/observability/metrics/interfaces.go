package metrics

import (
	"net/http"
	"time"
)

// Recorder receives runner measurements. Implementations must be safe for
// concurrent use since agents are ticked in parallel.
type Recorder interface {
	// ObserveTick records one agent tick and the state it produced.
	ObserveTick(tree string, state string, elapsed time.Duration)
	// SetAgents reports the number of live agents.
	SetAgents(n int)
	// AgentSpawned counts spawned agents.
	AgentSpawned(tree string)
	// AgentDespawned counts despawned agents by reason.
	AgentDespawned(tree string, reason string)
	// TreeSettled counts trees reaching a terminal state.
	TreeSettled(tree string, state string)
}

// Exporter exposes collected metrics over HTTP.
type Exporter interface {
	Handler() http.Handler
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) ObserveTick(string, string, time.Duration) {}
func (Nop) SetAgents(int)                             {}
func (Nop) AgentSpawned(string)                       {}
func (Nop) AgentDespawned(string, string)             {}
func (Nop) TreeSettled(string, string)                {}

func (Nop) Handler() http.Handler {
	return http.NotFoundHandler()
}
