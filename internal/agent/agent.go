// Package agent defines the agent execution contract and the capability
// registry the scheduler resolves agent types against.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkorhonen/overseer/pkg/models"
)

// Agent executes a single task and reports its result. Implementations must
// honor ctx cancellation; a cancelled execution returns ctx.Err().
type Agent interface {
	Execute(ctx context.Context, task *models.Task) (*models.Result, error)
}

// Func adapts a plain function to the Agent interface.
type Func func(ctx context.Context, task *models.Task) (*models.Result, error)

// Execute implements Agent.
func (f Func) Execute(ctx context.Context, task *models.Task) (*models.Result, error) {
	return f(ctx, task)
}

// UnavailableError reports a task whose agent type has no registered agent.
type UnavailableError struct {
	AgentType string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("no agent registered for type %q", e.AgentType)
}

// ExecutionError wraps a failure produced while running a task.
type ExecutionError struct {
	TaskID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s execution failed: %v", e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Registry maps agent types to agents. There is no fallback: resolving an
// unregistered type is an error the caller must surface, not paper over.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register binds an agent to an agent type, replacing any previous binding.
func (r *Registry) Register(agentType string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentType] = a
}

// Resolve returns the agent for a type, or an UnavailableError.
func (r *Registry) Resolve(agentType string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentType]
	if !ok {
		return nil, &UnavailableError{AgentType: agentType}
	}
	return a, nil
}

// Types returns the registered agent types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
