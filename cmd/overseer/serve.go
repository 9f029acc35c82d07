package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pkorhonen/overseer/internal/source"
	"github.com/pkorhonen/overseer/internal/workflow"
	"github.com/pkorhonen/overseer/pkg/models"
)

var serveSpoolDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch a spool directory and run incoming plans",
	Long: `Serve runs overseer as a daemon. Plan YAML files dropped into the
spool directory are picked up, executed, and moved to spool/processed;
malformed files move to spool/rejected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveSpoolDir, "spool", "", "Spool directory (default from config)")
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	spoolDir := serveSpoolDir
	if spoolDir == "" {
		spoolDir = cfg.Spool.Dir
	}
	spool, err := source.NewSpool(spoolDir)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go rt.monitor.Run(ctx)

	spoolErr := make(chan error, 1)
	go func() { spoolErr <- spool.Run(ctx) }()

	go announce(ctx, rt.engine)

	printStatus("✓", fmt.Sprintf("watching %s", spoolDir), color.FgGreen)

	for {
		select {
		case err := <-spoolErr:
			shutdown(rt)
			return err
		case <-ctx.Done():
			shutdown(rt)
			return nil
		case req, ok := <-spool.Requests():
			if !ok {
				shutdown(rt)
				return nil
			}
			rt.registerSimulatedAgents(req.Tasks)
			id := rt.engine.Execute(req.Name, req.Goal, req.Tasks, workflow.ExecuteOptions{
				QualityGates:         req.QualityGates,
				MaxRetries:           req.MaxRetries,
				ConcurrencyLimit:     req.ConcurrencyLimit,
				Complexity:           req.Complexity,
				RequireBoardApproval: req.RequireBoardApproval,
			})
			printStatus("•", fmt.Sprintf("workflow %s started: %s", id, req.Name), color.FgCyan)
			if err := spool.Ack(req); err != nil {
				printStatus("✗", err.Error(), color.FgRed)
			}
		}
	}
}

// announce reports terminal workflow events as they happen.
func announce(ctx context.Context, engine *workflow.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-engine.Events():
			switch ev.Type {
			case workflow.EventWorkflowCompleted:
				printStatus("✓", fmt.Sprintf("workflow %s completed", ev.WorkflowID), color.FgGreen)
			case workflow.EventWorkflowFailed:
				printStatus("✗", fmt.Sprintf("workflow %s failed: %s", ev.WorkflowID, ev.Message), color.FgRed)
			case workflow.EventWorkflowAborted:
				printStatus("⊘", fmt.Sprintf("workflow %s aborted", ev.WorkflowID), color.FgYellow)
			}
		}
	}
}

// shutdown aborts active workflows and prints the final tally.
func shutdown(rt *runtime) {
	stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	rt.engine.Stop(stopCtx)

	completed, failed := 0, 0
	for _, snap := range rt.engine.Snapshots() {
		switch snap.Status {
		case models.StatusCompleted:
			completed++
		case models.StatusFailed:
			failed++
		}
	}
	fmt.Printf("shutdown: %d completed, %d failed\n", completed, failed)
	printDashboard(rt.metrics.Dashboard())
}
