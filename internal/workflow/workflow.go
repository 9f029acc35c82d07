// Package workflow implements the workflow state machine and the engine
// that drives plans through planning, execution, and quality checks.
package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkorhonen/overseer/internal/graph"
	"github.com/pkorhonen/overseer/pkg/models"
)

// transitions declares the legal state machine edges. Anything not listed
// here is rejected with an InvalidTransitionError.
var transitions = map[models.WorkflowStatus][]models.WorkflowStatus{
	models.StatusPending: {
		models.StatusPlanning,
		models.StatusAborted,
	},
	models.StatusPlanning: {
		models.StatusExecuting,
		models.StatusFailed,
		models.StatusAborted,
	},
	models.StatusExecuting: {
		models.StatusQualityCheck,
		models.StatusFailed,
		models.StatusAborted,
	},
	models.StatusQualityCheck: {
		models.StatusCompleted,
		models.StatusExecuting,
		models.StatusFailed,
		models.StatusAborted,
	},
}

// InvalidTransitionError reports a status change outside the declared table.
type InvalidTransitionError struct {
	From models.WorkflowStatus
	To   models.WorkflowStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid workflow transition %s -> %s", e.From, e.To)
}

// allowed reports whether from -> to is a declared edge.
func allowed(from, to models.WorkflowStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Context is the full state of one workflow. All transitions go through
// transition(), serialized by the mutex, so observers never see a state
// outside the declared machine.
type Context struct {
	mu sync.Mutex

	// ID uniquely identifies the workflow.
	ID string
	// Name is the human-readable workflow name.
	Name string
	// Goal describes what the workflow is trying to achieve.
	Goal string
	// Status is the current lifecycle state.
	Status models.WorkflowStatus
	// Plan holds the workflow's tasks.
	Plan []*models.Task
	// Results maps task ID to the agent result, filled in as tasks finish.
	Results map[string]*models.Result
	// RetryCount is the number of quality gate retry rounds consumed.
	RetryCount int
	// MaxRetries is the quality gate retry budget.
	MaxRetries int
	// QualityGates names the gates this workflow must pass.
	QualityGates []string
	// History records every transition, oldest first.
	History []models.Transition
	// AgentsInvolved lists the distinct agent types in the plan.
	AgentsInvolved []string
	// QualityReport holds the most recent gate run.
	QualityReport []models.QualityGateResult
	// BoardDecision holds the approval decision when the board was consulted.
	BoardDecision *models.Decision
	// Failure holds the terminal failure reason, if any.
	Failure string
	// CreatedAt is when the workflow was created.
	CreatedAt time.Time
	// UpdatedAt is the time of the last transition.
	UpdatedAt time.Time

	// graph is set once the plan has been validated. Snapshots read task
	// state through its lock, which the scheduler mutates under.
	graph *graph.DependencyGraph

	now func() time.Time
}

// newContext creates a workflow context in StatusPending.
func newContext(id, name, goal string, plan []*models.Task) *Context {
	now := time.Now()
	return &Context{
		ID:        id,
		Name:      name,
		Goal:      goal,
		Status:    models.StatusPending,
		Plan:      plan,
		Results:   make(map[string]*models.Result),
		CreatedAt: now,
		UpdatedAt: now,
		now:       time.Now,
	}
}

// transition moves the workflow to a new status, appending to History.
// Illegal edges leave the context untouched and return an
// InvalidTransitionError.
func (c *Context) transition(to models.WorkflowStatus, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !allowed(c.Status, to) {
		return &InvalidTransitionError{From: c.Status, To: to}
	}

	at := c.now()
	c.History = append(c.History, models.Transition{
		From:   c.Status,
		To:     to,
		Reason: reason,
		At:     at,
	})
	c.Status = to
	c.UpdatedAt = at
	return nil
}

// CurrentStatus returns the status under the context lock.
func (c *Context) CurrentStatus() models.WorkflowStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Status
}

// TaskSnapshot is a point-in-time view of one running task.
type TaskSnapshot struct {
	ID        string
	AgentType string
	StartedAt time.Time
}

// Snapshot is a point-in-time copy of a workflow's observable state.
type Snapshot struct {
	ID             string
	Name           string
	Goal           string
	Status         models.WorkflowStatus
	Plan           []*models.Task
	Results        map[string]*models.Result
	RetryCount     int
	MaxRetries     int
	QualityGates   []string
	History        []models.Transition
	AgentsInvolved []string
	QualityReport  []models.QualityGateResult
	BoardDecision  *models.Decision
	Failure        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// RunningTasks lists tasks currently executing with their start times.
	RunningTasks []TaskSnapshot
	// TasksDone counts completed tasks, a progress measure between sweeps.
	TasksDone int
}

// snapshot copies the context under its lock.
func (c *Context) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		ID:             c.ID,
		Name:           c.Name,
		Goal:           c.Goal,
		Status:         c.Status,
		RetryCount:     c.RetryCount,
		MaxRetries:     c.MaxRetries,
		QualityGates:   append([]string(nil), c.QualityGates...),
		History:        append([]models.Transition(nil), c.History...),
		AgentsInvolved: append([]string(nil), c.AgentsInvolved...),
		QualityReport:  append([]models.QualityGateResult(nil), c.QualityReport...),
		BoardDecision:  c.BoardDecision,
		Failure:        c.Failure,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	s.Results = make(map[string]*models.Result, len(c.Results))
	for id, r := range c.Results {
		s.Results[id] = r
	}
	// Before the graph exists nothing else mutates the plan; after, task
	// state is only safe to read through the graph.
	plan := make([]*models.Task, 0, len(c.Plan))
	if c.graph != nil {
		plan = c.graph.SnapshotTasks()
	} else {
		for _, task := range c.Plan {
			plan = append(plan, task.Clone())
		}
	}
	for _, task := range plan {
		s.Plan = append(s.Plan, task)
		switch task.Status {
		case models.TaskStatusRunning:
			snap := TaskSnapshot{ID: task.ID, AgentType: task.AgentType}
			if task.StartedAt != nil {
				snap.StartedAt = *task.StartedAt
			}
			s.RunningTasks = append(s.RunningTasks, snap)
		case models.TaskStatusDone:
			s.TasksDone++
		}
	}
	return s
}

// agentsInvolved extracts the distinct agent types from a plan, in plan
// order.
func agentsInvolved(plan []*models.Task) []string {
	seen := make(map[string]bool)
	var agents []string
	for _, task := range plan {
		if !seen[task.AgentType] {
			seen[task.AgentType] = true
			agents = append(agents, task.AgentType)
		}
	}
	return agents
}
