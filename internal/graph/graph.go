// Package graph provides the task dependency DAG used for scheduling.
package graph

import (
	"sync"
	"time"

	"github.com/pkorhonen/overseer/pkg/models"
)

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// order preserves plan order for deterministic iteration.
	order []string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build constructs the dependency graph from a plan. It fails with a
// ValidationError if a dependency references an unknown task ID, a task ID
// is duplicated, or the dependency relation contains a cycle.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if task.ID == "" {
			return models.NewValidationError("plan contains a task with no ID")
		}
		if _, exists := g.nodes[task.ID]; exists {
			return models.NewValidationError("duplicate task ID %q", task.ID)
		}
		g.nodes[task.ID] = task
		g.order = append(g.order, task.ID)
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return models.NewValidationError("task %q depends on unknown task %q", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return models.NewValidationError("circular dependency detected in plan")
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// GetReady returns task IDs whose dependencies are all complete and whose
// own status is still pending. These tasks can be dispatched in parallel.
// Order follows the original plan order.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] {
			continue
		}
		task := g.nodes[id]
		if task.Status != models.TaskStatusPending {
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkComplete marks a task as completed, unblocking its dependents in
// subsequent calls to GetReady.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// MarkIncomplete reverses MarkComplete. Used when a quality gate failure
// sends a task back for re-dispatch in the next retry generation.
func (g *DependencyGraph) MarkIncomplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.completed, taskID)
}

// GetTask returns the task for a given ID, or nil if not found. The pointer
// is the live node; callers that run while a scheduler is dispatching must
// use Snapshot instead and mutate only through the Mark* methods, which hold
// the graph lock.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Snapshot returns a point-in-time copy of one task, or nil if not found.
func (g *DependencyGraph) Snapshot(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	task := g.nodes[taskID]
	if task == nil {
		return nil
	}
	return task.Clone()
}

// SnapshotTasks returns point-in-time copies of all tasks in plan order.
func (g *DependencyGraph) SnapshotTasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tasks := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.nodes[id].Clone())
	}
	return tasks
}

// MarkRunning transitions a pending task to running and stamps its dispatch.
// Returns false when the task is unknown or no longer pending.
func (g *DependencyGraph) MarkRunning(taskID, assignedTo string, at time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	task := g.nodes[taskID]
	if task == nil || task.Status != models.TaskStatusPending {
		return false
	}
	task.Status = models.TaskStatusRunning
	task.StartedAt = &at
	task.AssignedTo = assignedTo
	return true
}

// MarkDone records a successful result, moves the task to done, and unblocks
// its dependents.
func (g *DependencyGraph) MarkDone(taskID string, result *models.Result, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	task := g.nodes[taskID]
	if task == nil {
		return
	}
	task.Status = models.TaskStatusDone
	task.Result = result
	task.CompletedAt = &at
	g.completed[taskID] = true
}

// MarkFailed moves a task to failed with the given reason.
func (g *DependencyGraph) MarkFailed(taskID, errMsg string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	task := g.nodes[taskID]
	if task == nil {
		return
	}
	task.Status = models.TaskStatusFailed
	task.Error = errMsg
	task.CompletedAt = &at
}

// MarkCancelled cancels a pending task. Returns false when the task is
// unknown or already past pending.
func (g *DependencyGraph) MarkCancelled(taskID, errMsg string, at time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	task := g.nodes[taskID]
	if task == nil || task.Status != models.TaskStatusPending {
		return false
	}
	task.Status = models.TaskStatusCancelled
	task.Error = errMsg
	task.CompletedAt = &at
	return true
}

// Requeue returns a task to pending after a transient failure, consuming one
// of its retries.
func (g *DependencyGraph) Requeue(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	task := g.nodes[taskID]
	if task == nil {
		return
	}
	task.Retries++
	task.Status = models.TaskStatusPending
	task.StartedAt = nil
	task.AssignedTo = ""
}

// Reset returns a task to pending with a fresh outcome and retry budget,
// reopening it in the ready set. Used between retry generations.
func (g *DependencyGraph) Reset(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	task := g.nodes[taskID]
	if task == nil {
		return
	}
	delete(g.completed, taskID)
	task.Status = models.TaskStatusPending
	task.Result = nil
	task.Error = ""
	task.Retries = 0
	task.StartedAt = nil
	task.CompletedAt = nil
	task.AssignedTo = ""
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[taskID]
}

// GetDependents returns the IDs of tasks that directly depend on the given task.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// IsComplete returns true if every task in the graph has been marked complete.
func (g *DependencyGraph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id := range g.nodes {
		if !g.completed[id] {
			return false
		}
	}
	return true
}
