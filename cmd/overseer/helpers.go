package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/fatih/color"

	"github.com/pkorhonen/overseer/internal/agent"
	"github.com/pkorhonen/overseer/internal/board"
	"github.com/pkorhonen/overseer/internal/bus"
	"github.com/pkorhonen/overseer/internal/config"
	"github.com/pkorhonen/overseer/internal/gates"
	"github.com/pkorhonen/overseer/internal/memory"
	"github.com/pkorhonen/overseer/internal/metrics"
	"github.com/pkorhonen/overseer/internal/monitor"
	"github.com/pkorhonen/overseer/internal/workflow"
	"github.com/pkorhonen/overseer/pkg/models"
)

// runtime bundles the engine with everything wired around it.
type runtime struct {
	cfg      *config.Config
	engine   *workflow.Engine
	registry *agent.Registry
	bus      *bus.Bus
	metrics  *metrics.Collector
	monitor  *monitor.Monitor
	store    memory.Store
	logger   *workflow.DebugLogger
}

// loadConfig loads configuration from --config or the default paths.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// newRuntime wires a full engine from configuration.
func newRuntime(cfg *config.Config) (*runtime, error) {
	registry := agent.NewRegistry()
	b := bus.New()
	collector := metrics.NewCollector()

	pipeline := gates.NewPipeline()
	gates.RegisterBuiltins(pipeline, gates.Thresholds{
		MinCoverage:      cfg.Gates.MinCoverage,
		MaxComplexity:    cfg.Gates.MaxComplexity,
		MaxArtifactLines: cfg.Gates.MaxArtifactLines,
	})

	memoryPath := cfg.Memory.Path
	if memoryPath == "" {
		memoryPath = memory.DefaultPath()
	}
	store, err := memory.Open(memoryPath)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	logger, err := workflow.NewDebugLogger(debugLogPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open debug log: %w", err)
	}

	engine := workflow.New(registry,
		workflow.WithLogger(logger),
		workflow.WithBus(b),
		workflow.WithPipeline(pipeline),
		workflow.WithBoard(board.New()),
		workflow.WithMemory(store),
		workflow.WithMetrics(collector),
		workflow.WithConcurrencyLimit(cfg.Orchestrator.ConcurrencyLimit),
		workflow.WithMaxRetries(cfg.Orchestrator.MaxRetries),
		workflow.WithTaskRetries(cfg.Orchestrator.TaskRetries),
		workflow.WithBoardThreshold(cfg.Board.ComplexityThreshold),
	)

	mon := monitor.New(engine, b,
		cfg.Monitor.SweepInterval,
		cfg.Monitor.GracePeriod,
		cfg.TaskTimeout,
	)

	return &runtime{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
		bus:      b,
		metrics:  collector,
		monitor:  mon,
		store:    store,
		logger:   logger,
	}, nil
}

// close releases runtime resources.
func (rt *runtime) close() {
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.logger != nil {
		rt.logger.Close()
	}
}

// registerSimulatedAgents binds a simulated agent to every agent type in
// the plan. The CLI has no real agent fleet; simulated agents exercise the
// orchestration path end to end.
func (rt *runtime) registerSimulatedAgents(tasks []*models.Task) {
	for _, task := range tasks {
		if _, err := rt.registry.Resolve(task.AgentType); err == nil {
			continue
		}
		rt.registry.Register(task.AgentType, simulatedAgent(task.AgentType))
	}
}

// simulatedAgent produces an agent that does a short burst of pretend work
// and reports a passing artifact.
func simulatedAgent(agentType string) agent.Agent {
	return agent.Func(func(ctx context.Context, task *models.Task) (*models.Result, error) {
		delay := time.Duration(50+rand.Intn(150)) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		return &models.Result{
			Status: models.ResultStatusCompleted,
			Output: map[string]interface{}{
				"agent":        agentType,
				"summary":      fmt.Sprintf("simulated %s for task %s", agentType, task.ID),
				"tests_passed": true,
			},
			Duration: delay,
		}, nil
	})
}

// printStatus prints a colored status symbol with a message.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// statusColor maps a workflow status to a display color.
func statusColor(status models.WorkflowStatus) color.Attribute {
	switch status {
	case models.StatusCompleted:
		return color.FgGreen
	case models.StatusFailed:
		return color.FgRed
	case models.StatusAborted:
		return color.FgYellow
	default:
		return color.FgCyan
	}
}

// printSummary renders a finished workflow.
func printSummary(snap workflow.Snapshot) {
	c := color.New(statusColor(snap.Status))
	fmt.Printf("\nWorkflow %s: %s\n", snap.Name, c.Sprint(string(snap.Status)))
	if snap.Failure != "" {
		printStatus("✗", snap.Failure, color.FgRed)
	}
	if snap.BoardDecision != nil {
		d := snap.BoardDecision
		verdict := "approved"
		if !d.Approved {
			verdict = "rejected"
		}
		fmt.Printf("  board: %s by %s (%s)\n", verdict, d.Tier, d.Reason)
		for _, cond := range d.Conditions {
			fmt.Printf("    condition: %s\n", cond)
		}
	}

	fmt.Println("  tasks:")
	for _, task := range snap.Plan {
		symbol, attr := "•", color.FgWhite
		switch task.Status {
		case models.TaskStatusDone:
			symbol, attr = "✓", color.FgGreen
		case models.TaskStatusFailed:
			symbol, attr = "✗", color.FgRed
		case models.TaskStatusCancelled:
			symbol, attr = "⊘", color.FgYellow
		}
		line := fmt.Sprintf("%s [%s]", task.ID, task.AgentType)
		if task.Error != "" {
			line += ": " + task.Error
		}
		fmt.Printf("    %s %s\n", color.New(attr).Sprint(symbol), line)
	}

	if len(snap.QualityReport) > 0 {
		fmt.Println("  quality gates:")
		for _, r := range snap.QualityReport {
			if r.Passed {
				printStatus("    ✓", fmt.Sprintf("%s: %s", r.Gate, r.Reason), color.FgGreen)
			} else {
				printStatus("    ✗", fmt.Sprintf("%s: %s", r.Gate, r.Reason), color.FgRed)
			}
		}
	}

	if len(snap.History) > 0 {
		fmt.Println("  history:")
		for _, t := range snap.History {
			fmt.Printf("    %s → %s (%s)\n", t.From, t.To, t.Reason)
		}
	}
}

// printDashboard renders the metrics summary.
func printDashboard(d metrics.Dashboard) {
	if d.TotalTasks == 0 {
		return
	}
	fmt.Printf("\n%d tasks executed, %.0f%% success\n", d.TotalTasks, d.OverallSuccessRate*100)
	for _, a := range d.Agents {
		fmt.Printf("  %-16s %3d tasks  %3.0f%% success  avg %s\n",
			a.Agent, a.Total, a.SuccessRate*100, a.AvgDuration.Round(time.Millisecond))
	}
	for _, ec := range d.TopErrors {
		printStatus("  ✗", fmt.Sprintf("%dx %s", ec.Count, ec.Error), color.FgRed)
	}
}
