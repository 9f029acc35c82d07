package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkorhonen/overseer/internal/agent"
	"github.com/pkorhonen/overseer/internal/gates"
	"github.com/pkorhonen/overseer/pkg/models"
)

func okAgent(output map[string]interface{}) agent.Agent {
	return agent.Func(func(ctx context.Context, task *models.Task) (*models.Result, error) {
		return &models.Result{Status: models.ResultStatusCompleted, Output: output}, nil
	})
}

func task(id, agentType string, deps ...string) *models.Task {
	return &models.Task{ID: id, AgentType: agentType, DependsOn: deps, Status: models.TaskStatusPending}
}

// passGate always passes; failNTimes fails its first n runs, attributing a
// task, then passes.
type passGate struct{ name string }

func (g *passGate) Name() string { return g.name }
func (g *passGate) Validate(gates.Artifact) models.QualityGateResult {
	return models.QualityGateResult{Gate: g.name, Passed: true}
}

type failNTimes struct {
	mu     sync.Mutex
	name   string
	n      int
	taskID string
	runs   int
}

func (g *failNTimes) Name() string { return g.name }

func (g *failNTimes) Validate(gates.Artifact) models.QualityGateResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs++
	if g.runs <= g.n {
		res := models.QualityGateResult{Gate: g.name, Passed: false, Reason: "not good enough"}
		if g.taskID != "" {
			res.Details = map[string]interface{}{"task_ids": []string{g.taskID}}
		}
		return res
	}
	return models.QualityGateResult{Gate: g.name, Passed: true}
}

func await(t *testing.T, e *Engine, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := e.Await(ctx, id)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	return snap
}

func historyStatuses(snap Snapshot) []models.WorkflowStatus {
	out := []models.WorkflowStatus{models.StatusPending}
	for _, tr := range snap.History {
		out = append(out, tr.To)
	}
	return out
}

func TestHappyPath(t *testing.T) {
	reg := agent.NewRegistry()
	output := map[string]interface{}{"tests_passed": true}
	reg.Register("coder", okAgent(output))
	reg.Register("tester", okAgent(output))

	p := gates.NewPipeline()
	p.Register(&passGate{name: "tests"})
	p.Register(&passGate{name: "review"})

	e := New(reg, WithPipeline(p))
	id := e.Execute("feature", "build the feature", []*models.Task{
		task("a", "coder"),
		task("b", "coder", "a"),
		task("c", "tester", "a"),
		task("d", "tester", "b", "c"),
	}, ExecuteOptions{QualityGates: []string{"tests", "review"}})

	snap := await(t, e, id)
	if snap.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Failure)
	}
	if len(snap.Results) != 4 {
		t.Errorf("expected 4 results, got %d", len(snap.Results))
	}

	want := []models.WorkflowStatus{
		models.StatusPending, models.StatusPlanning, models.StatusExecuting,
		models.StatusQualityCheck, models.StatusCompleted,
	}
	got := historyStatuses(snap)
	if len(got) != len(want) {
		t.Fatalf("unexpected history: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d]: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestTaskFailureFailsWorkflow(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("coder", okAgent(nil))
	reg.Register("deploy", agent.Func(func(ctx context.Context, task *models.Task) (*models.Result, error) {
		return nil, errors.New("deploy exploded")
	}))

	e := New(reg, WithTaskRetries(-1))
	id := e.Execute("release", "ship it", []*models.Task{
		task("build", "coder"),
		task("deploy", "deploy", "build"),
		task("docs", "coder"),
	}, ExecuteOptions{})

	snap := await(t, e, id)
	if snap.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if !strings.Contains(snap.Failure, "deploy") {
		t.Errorf("expected failure naming the task, got %q", snap.Failure)
	}

	statuses := make(map[string]models.TaskStatus)
	for _, tk := range snap.Plan {
		statuses[tk.ID] = tk.Status
	}
	// The independent branch still completed.
	if statuses["docs"] != models.TaskStatusDone {
		t.Errorf("expected docs done, got %s", statuses["docs"])
	}
	if statuses["deploy"] != models.TaskStatusFailed {
		t.Errorf("expected deploy failed, got %s", statuses["deploy"])
	}
}

func TestGateFailureRetriesAttributedTasks(t *testing.T) {
	var mu sync.Mutex
	executions := make(map[string]int)
	reg := agent.NewRegistry()
	counting := agent.Func(func(ctx context.Context, task *models.Task) (*models.Result, error) {
		mu.Lock()
		executions[task.ID]++
		mu.Unlock()
		return &models.Result{Status: models.ResultStatusCompleted}, nil
	})
	reg.Register("coder", counting)

	p := gates.NewPipeline()
	p.Register(&failNTimes{name: "coverage", n: 1, taskID: "b"})

	e := New(reg, WithPipeline(p))
	id := e.Execute("feature", "goal", []*models.Task{
		task("a", "coder"),
		task("b", "coder"),
	}, ExecuteOptions{QualityGates: []string{"coverage"}, MaxRetries: 2})

	snap := await(t, e, id)
	if snap.Status != models.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s (%s)", snap.Status, snap.Failure)
	}
	if snap.RetryCount != 1 {
		t.Errorf("expected 1 retry consumed, got %d", snap.RetryCount)
	}

	mu.Lock()
	defer mu.Unlock()
	// Only the attributed task was re-dispatched.
	if executions["b"] != 2 {
		t.Errorf("expected b executed twice, got %d", executions["b"])
	}
	if executions["a"] != 1 {
		t.Errorf("expected a executed once, got %d", executions["a"])
	}
}

func TestGateRetryExhaustionFails(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("coder", okAgent(nil))

	p := gates.NewPipeline()
	p.Register(&failNTimes{name: "coverage", n: 100})

	e := New(reg, WithPipeline(p))
	id := e.Execute("feature", "goal", []*models.Task{task("a", "coder")},
		ExecuteOptions{QualityGates: []string{"coverage"}, MaxRetries: 1})

	snap := await(t, e, id)
	if snap.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if !strings.Contains(snap.Failure, "coverage") {
		t.Errorf("expected failing gate named, got %q", snap.Failure)
	}
	if snap.RetryCount != 1 {
		t.Errorf("expected retry budget consumed, got %d", snap.RetryCount)
	}
}

func TestHighComplexityRoutedThroughBoard(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("coder", okAgent(nil))

	e := New(reg)
	id := e.Execute("migration", "rebuild storage", []*models.Task{task("a", "coder")},
		ExecuteOptions{Complexity: 9})

	snap := await(t, e, id)
	if snap.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Failure)
	}
	if snap.BoardDecision == nil {
		t.Fatal("expected a board decision")
	}
	if snap.BoardDecision.Tier != models.TierFullBoard {
		t.Errorf("expected FullBoard review, got %s", snap.BoardDecision.Tier)
	}
	for _, want := range []string{"rollback_plan", "security_audit", "post_mortem"} {
		found := false
		for _, c := range snap.BoardDecision.Conditions {
			if c == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected condition %s, got %v", want, snap.BoardDecision.Conditions)
		}
	}
}

func TestLowComplexitySkipsBoard(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("coder", okAgent(nil))

	e := New(reg)
	id := e.Execute("chore", "tidy up", []*models.Task{task("a", "coder")},
		ExecuteOptions{Complexity: 2})

	snap := await(t, e, id)
	if snap.BoardDecision != nil {
		t.Errorf("expected no board review below threshold, got %+v", snap.BoardDecision)
	}
}

func TestMalformedPlanLeavesAuditableRecord(t *testing.T) {
	e := New(agent.NewRegistry())
	id := e.Execute("broken", "goal", []*models.Task{
		task("a", "coder", "c"),
		task("b", "coder", "a"),
		task("c", "coder", "b"),
	}, ExecuteOptions{})

	snap := await(t, e, id)
	if snap.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if !strings.Contains(snap.Failure, "circular") {
		t.Errorf("expected validation detail in failure, got %q", snap.Failure)
	}

	want := []models.WorkflowStatus{
		models.StatusPending, models.StatusPlanning, models.StatusFailed,
	}
	got := historyStatuses(snap)
	if len(got) != len(want) {
		t.Fatalf("unexpected history: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d]: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestUnknownGateNameFailsWorkflow(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("coder", okAgent(nil))

	e := New(reg, WithMaxRetries(0))
	id := e.Execute("feature", "goal", []*models.Task{task("a", "coder")},
		ExecuteOptions{QualityGates: []string{"definitely_not_registered"}})

	snap := await(t, e, id)
	if snap.Status != models.StatusFailed {
		t.Fatalf("expected failed for unknown gate, got %s", snap.Status)
	}
	if !strings.Contains(snap.Failure, "definitely_not_registered") {
		t.Errorf("expected unknown gate named, got %q", snap.Failure)
	}
}

func TestAbort(t *testing.T) {
	reg := agent.NewRegistry()
	started := make(chan struct{})
	var once sync.Once
	reg.Register("slow", agent.Func(func(ctx context.Context, task *models.Task) (*models.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	e := New(reg)
	id := e.Execute("longhaul", "goal", []*models.Task{task("a", "slow")}, ExecuteOptions{})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}
	if err := e.Abort(id, "operator request"); err != nil {
		t.Fatalf("abort failed: %v", err)
	}

	snap := await(t, e, id)
	if snap.Status != models.StatusAborted {
		t.Fatalf("expected aborted, got %s", snap.Status)
	}

	if err := e.Abort(id, "again"); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("expected ErrAlreadyTerminal on second abort, got %v", err)
	}
}

func TestFailWorkflowForcesFailure(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("slow", agent.Func(func(ctx context.Context, task *models.Task) (*models.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	e := New(reg)
	id := e.Execute("stuck", "goal", []*models.Task{task("a", "slow")}, ExecuteOptions{})

	time.Sleep(20 * time.Millisecond)
	if err := e.FailWorkflow(id, "deadlock detected: no progress"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	snap := await(t, e, id)
	if snap.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if !strings.Contains(snap.Failure, "deadlock") {
		t.Errorf("expected deadlock reason, got %q", snap.Failure)
	}
}

func TestStatusUnknownWorkflow(t *testing.T) {
	e := New(agent.NewRegistry())
	if _, err := e.Status("nope"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestFinishedWorkflowsRemainQueryable(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("coder", okAgent(nil))

	e := New(reg)
	id := e.Execute("feature", "goal", []*models.Task{task("a", "coder")}, ExecuteOptions{})
	await(t, e, id)

	snap, err := e.Status(id)
	if err != nil {
		t.Fatalf("status after completion failed: %v", err)
	}
	if snap.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", snap.Status)
	}
	if len(e.Snapshots()) != 1 {
		t.Errorf("expected workflow retained in snapshots")
	}
}

func TestStatusPollingDuringExecution(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("coder", agent.Func(func(ctx context.Context, task *models.Task) (*models.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		return &models.Result{Status: models.ResultStatusCompleted}, nil
	}))

	e := New(reg)
	id := e.Execute("poll", "poll while executing", []*models.Task{
		task("a", "coder"),
		task("b", "coder", "a"),
		task("c", "coder", "a"),
		task("d", "coder", "b", "c"),
	}, ExecuteOptions{})

	// Hammer the read paths the monitor and CLI use while the scheduler is
	// dispatching; the race detector flags any unlocked task access.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := e.Status(id); err != nil {
				return
			}
			e.Snapshots()
		}
	}()

	snap := await(t, e, id)
	close(stop)
	wg.Wait()

	if snap.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Failure)
	}
	if snap.TasksDone != 4 {
		t.Errorf("expected 4 tasks done, got %d", snap.TasksDone)
	}
}

func TestExecuteNormalizesTaskStatus(t *testing.T) {
	reg := agent.NewRegistry()
	reg.Register("coder", okAgent(nil))

	e := New(reg)
	// Tasks built directly carry the zero-value status; submission still
	// has to place them in the ready set.
	id := e.Execute("bare", "run a bare plan", []*models.Task{
		{ID: "a", AgentType: "coder"},
		{ID: "b", AgentType: "coder", DependsOn: []string{"a"}},
	}, ExecuteOptions{})

	snap := await(t, e, id)
	if snap.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Failure)
	}
}
