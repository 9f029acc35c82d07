package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pkorhonen/overseer/internal/agent"
	"github.com/pkorhonen/overseer/internal/board"
	"github.com/pkorhonen/overseer/internal/bus"
	"github.com/pkorhonen/overseer/internal/gates"
	"github.com/pkorhonen/overseer/internal/graph"
	"github.com/pkorhonen/overseer/internal/memory"
	"github.com/pkorhonen/overseer/internal/metrics"
	"github.com/pkorhonen/overseer/internal/scheduler"
	"github.com/pkorhonen/overseer/pkg/models"
)

// defaultEventBuffer is the event channel capacity when not configured.
const defaultEventBuffer = 128

// Engine owns workflow lifecycles: it validates plans, consults the board,
// runs the scheduler, evaluates quality gates, and drives each workflow
// context through the state machine. Finished workflows stay queryable.
type Engine struct {
	registry *agent.Registry
	bus      *bus.Bus
	pipeline *gates.Pipeline
	board    *board.Gate
	memory   memory.Store
	metrics  *metrics.Collector

	concurrencyLimit int
	maxRetries       int
	taskRetries      int
	boardThreshold   int
	eventBuffer      int

	mu            sync.Mutex
	instances     map[string]*instance
	droppedEvents int
	events        chan Event
	wg            sync.WaitGroup
}

// instance pairs a workflow context with its execution machinery.
type instance struct {
	wf     *Context
	cancel context.CancelFunc
	done   chan struct{}

	mu sync.Mutex
	// sched is the scheduler of the current retry generation.
	sched *scheduler.Scheduler
	// abortReason is set when Abort was requested.
	abortReason string
	// failReason is set when the monitor force-fails the workflow.
	failReason string
}

func (in *instance) setScheduler(s *scheduler.Scheduler) {
	in.mu.Lock()
	in.sched = s
	in.mu.Unlock()
}

func (in *instance) currentScheduler() *scheduler.Scheduler {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.sched
}

// New creates an engine dispatching against the given agent registry.
func New(registry *agent.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:         registry,
		concurrencyLimit: scheduler.DefaultConcurrencyLimit,
		maxRetries:       3,
		taskRetries:      scheduler.DefaultTaskRetries,
		boardThreshold:   board.DefaultComplexityThreshold,
		eventBuffer:      defaultEventBuffer,
		instances:        make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = bus.New()
	}
	if e.pipeline == nil {
		e.pipeline = gates.NewPipeline()
	}
	if e.board == nil {
		e.board = board.New()
	}
	e.events = make(chan Event, e.eventBuffer)
	return e
}

// Bus returns the engine's message bus.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// ExecuteOptions tunes one workflow submission.
type ExecuteOptions struct {
	// QualityGates names the gates the workflow must pass. Empty means no
	// gate check.
	QualityGates []string
	// MaxRetries overrides the engine's quality gate retry budget when
	// positive.
	MaxRetries int
	// ConcurrencyLimit overrides the engine's dispatch cap when positive.
	ConcurrencyLimit int
	// Complexity is the board review complexity estimate, 1 through 10.
	// Zero means unassessed; the board is only consulted when
	// RequireBoardApproval is set or Complexity reaches the threshold.
	Complexity int
	// RequireBoardApproval forces a board review regardless of complexity.
	RequireBoardApproval bool
}

// Execute submits a workflow and returns its ID. The workflow runs in the
// background; malformed plans still produce a context, which immediately
// transitions to FAILED with the validation detail in its history.
func (e *Engine) Execute(name, goal string, plan []*models.Task, opts ExecuteOptions) string {
	// Submission owns the task lifecycle; whatever status the caller left
	// on the plan is discarded so every task enters the ready set.
	for _, task := range plan {
		task.Status = models.TaskStatusPending
	}

	id := uuid.New().String()
	wf := newContext(id, name, goal, plan)
	wf.MaxRetries = e.maxRetries
	if opts.MaxRetries > 0 {
		wf.MaxRetries = opts.MaxRetries
	}
	wf.QualityGates = append([]string(nil), opts.QualityGates...)

	runCtx, cancel := context.WithCancel(context.Background())
	inst := &instance{
		wf:     wf,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	e.instances[id] = inst
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(inst.done)
		defer cancel()
		e.run(runCtx, inst, opts)
	}()

	debugLog("workflow %s submitted: %s (%d tasks)", id, name, len(plan))
	return id
}

// run drives one workflow from PLANNING to a terminal status.
func (e *Engine) run(runCtx context.Context, inst *instance, opts ExecuteOptions) {
	wf := inst.wf

	e.transition(wf, models.StatusPlanning, "plan validation started")
	e.emit(Event{Type: EventWorkflowStarted, WorkflowID: wf.ID, Status: models.StatusPlanning})

	wf.mu.Lock()
	wf.AgentsInvolved = agentsInvolved(wf.Plan)
	wf.mu.Unlock()

	if len(wf.Plan) == 0 {
		e.fail(wf, "plan contains no tasks")
		return
	}

	g := graph.New()
	if err := g.Build(wf.Plan); err != nil {
		e.fail(wf, fmt.Sprintf("plan validation failed: %v", err))
		return
	}
	wf.mu.Lock()
	wf.graph = g
	wf.mu.Unlock()

	if opts.RequireBoardApproval || (opts.Complexity >= e.boardThreshold && opts.Complexity > 0) {
		if !e.boardReview(wf, opts, opts.Complexity) {
			return
		}
	}
	if e.interrupted(runCtx, inst) {
		return
	}

	for {
		reason := "dispatching tasks"
		if wf.RetryCount > 0 {
			reason = fmt.Sprintf("retry %d of %d", wf.RetryCount, wf.MaxRetries)
		}
		e.transition(wf, models.StatusExecuting, reason)

		limit := e.concurrencyLimit
		if opts.ConcurrencyLimit > 0 {
			limit = opts.ConcurrencyLimit
		}
		sched := scheduler.New(wf.ID, g, e.registry, e.bus, scheduler.Options{
			ConcurrencyLimit: limit,
			TaskRetries:      e.taskRetries,
			Memory:           e.memory,
			Metrics:          e.metrics,
		})
		inst.setScheduler(sched)

		err := sched.Run(runCtx)
		if e.interrupted(runCtx, inst) {
			return
		}
		if err != nil {
			e.fail(wf, err.Error())
			return
		}

		artifact := e.collectResults(wf, g)

		e.transition(wf, models.StatusQualityCheck, "evaluating quality gates")
		report := e.pipeline.Run(runCtx, artifact, wf.QualityGates)

		wf.mu.Lock()
		wf.QualityReport = report
		wf.mu.Unlock()

		if e.interrupted(runCtx, inst) {
			return
		}

		if models.GatesPassed(report) {
			e.transition(wf, models.StatusCompleted, "all quality gates passed")
			e.emit(Event{Type: EventWorkflowCompleted, WorkflowID: wf.ID, Status: models.StatusCompleted})
			debugLog("workflow %s completed", wf.ID)
			return
		}

		failing := models.FailingGates(report)
		names := make([]string, len(failing))
		for i, r := range failing {
			names[i] = r.Gate
		}
		e.emit(Event{
			Type:       EventGatesFailed,
			WorkflowID: wf.ID,
			Status:     models.StatusQualityCheck,
			Message:    strings.Join(names, ", "),
		})

		wf.mu.Lock()
		retriesLeft := wf.RetryCount < wf.MaxRetries
		wf.mu.Unlock()
		if !retriesLeft {
			e.fail(wf, fmt.Sprintf("%v: gates still failing: %s",
				ErrRetryExhausted, strings.Join(names, ", ")))
			return
		}

		wf.mu.Lock()
		wf.RetryCount++
		retryCount := wf.RetryCount
		wf.mu.Unlock()

		// Repeated gate failures raise the effective complexity. When that
		// crosses the board threshold, the retry needs a fresh approval.
		if opts.Complexity > 0 && opts.Complexity < e.boardThreshold &&
			opts.Complexity+retryCount >= e.boardThreshold {
			if !e.boardReview(wf, opts, opts.Complexity+retryCount) {
				return
			}
		}

		e.resetFailingTasks(wf, g, failing)
		e.emit(Event{
			Type:       EventRetry,
			WorkflowID: wf.ID,
			Message:    fmt.Sprintf("retry %d of %d", retryCount, wf.MaxRetries),
		})
		debugLog("workflow %s: gate retry %d, failing gates: %s",
			wf.ID, retryCount, strings.Join(names, ", "))
	}
}

// boardReview consults the board and handles rejection. Returns false when
// the workflow has reached a terminal state.
func (e *Engine) boardReview(wf *Context, opts ExecuteOptions, complexity int) bool {
	if complexity < 1 {
		complexity = 1
	}
	if complexity > 10 {
		complexity = 10
	}

	wf.mu.Lock()
	agents := append([]string(nil), wf.AgentsInvolved...)
	wf.mu.Unlock()

	decision, err := e.board.Review(models.Proposal{
		WorkflowType:   wf.Name,
		Complexity:     complexity,
		AgentsRequired: agents,
	})
	if err != nil {
		e.fail(wf, fmt.Sprintf("board review failed: %v", err))
		return false
	}

	wf.mu.Lock()
	wf.BoardDecision = &decision
	wf.mu.Unlock()

	e.emit(Event{
		Type:       EventBoardDecision,
		WorkflowID: wf.ID,
		Message:    fmt.Sprintf("%s: %s", decision.Tier, decision.Reason),
	})

	if !decision.Approved {
		e.transition(wf, models.StatusAborted, fmt.Sprintf("board rejected: %s", decision.Reason))
		e.emit(Event{Type: EventWorkflowAborted, WorkflowID: wf.ID, Status: models.StatusAborted})
		return false
	}
	return true
}

// collectResults copies task results into the context and builds the gate
// artifact, keyed by task ID.
func (e *Engine) collectResults(wf *Context, g *graph.DependencyGraph) gates.Artifact {
	artifact := make(gates.Artifact)
	wf.mu.Lock()
	defer wf.mu.Unlock()
	for _, task := range g.SnapshotTasks() {
		if task.Result == nil {
			continue
		}
		wf.Results[task.ID] = task.Result
		if task.Result.Output != nil {
			artifact[task.ID] = task.Result.Output
		}
	}
	return artifact
}

// resetFailingTasks sends the tasks behind failing gate results back to the
// ready set for the next generation. Gates attribute tasks through the
// "task_ids" detail; without any attribution the whole plan is re-run.
func (e *Engine) resetFailingTasks(wf *Context, g *graph.DependencyGraph, failing []models.QualityGateResult) {
	targets := make(map[string]bool)
	for _, r := range failing {
		ids, ok := r.Details["task_ids"].([]string)
		if !ok {
			continue
		}
		for _, id := range ids {
			targets[id] = true
		}
	}
	if len(targets) == 0 {
		for _, task := range g.SnapshotTasks() {
			targets[task.ID] = true
		}
	}

	// Deterministic reset order keeps the history readable.
	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	wf.mu.Lock()
	defer wf.mu.Unlock()
	for _, id := range ids {
		g.Reset(id)
		delete(wf.Results, id)
	}
}

// interrupted checks for an external abort or force-fail and applies the
// terminal transition. Returns true when the workflow is finished.
func (e *Engine) interrupted(runCtx context.Context, inst *instance) bool {
	if runCtx.Err() == nil {
		return false
	}
	inst.mu.Lock()
	failReason := inst.failReason
	abortReason := inst.abortReason
	inst.mu.Unlock()

	if failReason != "" {
		e.fail(inst.wf, failReason)
		return true
	}
	if abortReason == "" {
		abortReason = "aborted"
	}
	e.transition(inst.wf, models.StatusAborted, abortReason)
	e.emit(Event{Type: EventWorkflowAborted, WorkflowID: inst.wf.ID, Status: models.StatusAborted})
	return true
}

// fail transitions a workflow to FAILED and records the reason.
func (e *Engine) fail(wf *Context, reason string) {
	wf.mu.Lock()
	wf.Failure = reason
	wf.mu.Unlock()
	e.transition(wf, models.StatusFailed, reason)
	e.emit(Event{Type: EventWorkflowFailed, WorkflowID: wf.ID, Status: models.StatusFailed, Message: reason})
	debugLog("workflow %s failed: %s", wf.ID, reason)
}

// transition applies a state change and emits it. The engine only attempts
// declared edges; an invalid edge here means a terminal state won a race,
// which is logged and otherwise ignored.
func (e *Engine) transition(wf *Context, to models.WorkflowStatus, reason string) {
	if err := wf.transition(to, reason); err != nil {
		debugLog("workflow %s: %v", wf.ID, err)
		return
	}
	e.emit(Event{Type: EventTransition, WorkflowID: wf.ID, Status: to, Message: reason})
}

// lookup finds an instance by workflow ID.
func (e *Engine) lookup(id string) (*instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return inst, nil
}

// Status returns a snapshot of a workflow's state.
func (e *Engine) Status(id string) (Snapshot, error) {
	inst, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return inst.wf.snapshot(), nil
}

// Await blocks until the workflow reaches a terminal status or ctx is
// cancelled, then returns the final snapshot.
func (e *Engine) Await(ctx context.Context, id string) (Snapshot, error) {
	inst, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-inst.done:
		return inst.wf.snapshot(), nil
	}
}

// Abort cancels a running workflow. In-flight task executions are
// cancelled and the workflow transitions to ABORTED.
func (e *Engine) Abort(id, reason string) error {
	inst, err := e.lookup(id)
	if err != nil {
		return err
	}
	if inst.wf.CurrentStatus().Terminal() {
		return ErrAlreadyTerminal
	}
	inst.mu.Lock()
	inst.abortReason = reason
	inst.mu.Unlock()
	inst.cancel()
	return nil
}

// FailWorkflow force-fails a workflow, used by the monitor when a deadlock
// outlives its grace window.
func (e *Engine) FailWorkflow(id, reason string) error {
	inst, err := e.lookup(id)
	if err != nil {
		return err
	}
	if inst.wf.CurrentStatus().Terminal() {
		return ErrAlreadyTerminal
	}
	inst.mu.Lock()
	inst.failReason = reason
	inst.mu.Unlock()
	inst.cancel()
	return nil
}

// CancelTask cancels one running task in a workflow. The cancellation flows
// through the scheduler's report path, so the task keeps its retry budget.
func (e *Engine) CancelTask(workflowID, taskID string) bool {
	inst, err := e.lookup(workflowID)
	if err != nil {
		return false
	}
	sched := inst.currentScheduler()
	if sched == nil {
		return false
	}
	return sched.CancelTask(taskID)
}

// Snapshots returns a snapshot of every known workflow, including finished
// ones, sorted by creation time.
func (e *Engine) Snapshots() []Snapshot {
	e.mu.Lock()
	instances := make([]*instance, 0, len(e.instances))
	for _, inst := range e.instances {
		instances = append(instances, inst)
	}
	e.mu.Unlock()

	snaps := make([]Snapshot, 0, len(instances))
	for _, inst := range instances {
		snaps = append(snaps, inst.wf.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps
}

// Stop aborts every active workflow and waits for them to finish, up to
// ctx's deadline.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	for _, inst := range e.instances {
		if !inst.wf.CurrentStatus().Terminal() {
			inst.mu.Lock()
			if inst.abortReason == "" {
				inst.abortReason = "engine shutting down"
			}
			inst.mu.Unlock()
			inst.cancel()
		}
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
