package verify

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrAgentNotFound = errors.New("verification agent not found")
	ErrAgentExists   = errors.New("verification agent already registered")
)

// Handler receives a verification request on behalf of an agent. It must
// not block on the vote itself; agents answer later through Engine.Vote.
type Handler func(ctx context.Context, req Request) error

// LocalDirectory is an AgentDirectory of agents living in this process.
type LocalDirectory struct {
	mu       sync.RWMutex
	agents   []Agent
	handlers map[string]Handler
}

func NewLocalDirectory() *LocalDirectory {
	return &LocalDirectory{handlers: make(map[string]Handler)}
}

// Register adds an agent and the handler that receives its requests.
func (d *LocalDirectory) Register(agent Agent, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[agent.Package]; ok {
		return errors.Wrap(ErrAgentExists, agent.Package)
	}
	d.agents = append(d.agents, agent)
	d.handlers[agent.Package] = h
	return nil
}

// Unregister removes the agent for pkg, if any.
func (d *LocalDirectory) Unregister(pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, pkg)
	for i, a := range d.agents {
		if a.Package == pkg {
			d.agents = append(d.agents[:i], d.agents[i+1:]...)
			return
		}
	}
}

func (d *LocalDirectory) Agents() []Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Agent, len(d.agents))
	copy(out, d.agents)
	return out
}

func (d *LocalDirectory) Dispatch(ctx context.Context, agent Agent, req Request) error {
	d.mu.RLock()
	h, ok := d.handlers[agent.Package]
	d.mu.RUnlock()
	if !ok {
		return errors.Wrap(ErrAgentNotFound, agent.Package)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return h(ctx, req)
}
