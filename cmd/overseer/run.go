package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pkorhonen/overseer/internal/source"
	"github.com/pkorhonen/overseer/internal/workflow"
	"github.com/pkorhonen/overseer/pkg/models"
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Run a workflow plan to completion",
	Long: `Run executes one workflow plan and prints the outcome.

The plan file declares the workflow name, its tasks with dependencies, the
quality gates to enforce, and an optional complexity estimate. Plans at or
above the board threshold are routed through the approval gate before any
task is dispatched.

Agent types in the plan are bound to simulated agents; overseer exercises
the full orchestration path without an external agent fleet.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(args[0])
	},
}

func runPlan(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	req, err := source.ParsePlan(data)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.registerSimulatedAgents(req.Tasks)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	monCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go rt.monitor.Run(monCtx)

	id := rt.engine.Execute(req.Name, req.Goal, req.Tasks, workflow.ExecuteOptions{
		QualityGates:         req.QualityGates,
		MaxRetries:           req.MaxRetries,
		ConcurrencyLimit:     req.ConcurrencyLimit,
		Complexity:           req.Complexity,
		RequireBoardApproval: req.RequireBoardApproval,
	})
	fmt.Printf("workflow %s started (%d tasks)\n", id, len(req.Tasks))

	snap, err := rt.engine.Await(ctx, id)
	if err != nil {
		// Interrupted: abort and report the final state.
		rt.engine.Abort(id, "interrupted")
		snap, err = rt.engine.Await(context.Background(), id)
		if err != nil {
			return err
		}
	}

	printSummary(snap)
	printDashboard(rt.metrics.Dashboard())

	if snap.Status != models.StatusCompleted {
		os.Exit(1)
	}
	return nil
}
