package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	debugLogPath string
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Workflow orchestration engine",
	Long: `Overseer coordinates multi-agent workflows: it validates task plans,
routes high-complexity work through a board approval gate, dispatches tasks
over their dependency graph, and holds results to quality gates before a
workflow may complete.

Core capabilities:
- DAG scheduling with bounded concurrency and per-task retries
- Priority message bus with synchronous critical escalation
- Complexity-routed board approvals with attached conditions
- Quality gate pipeline with bounded workflow-level retries
- Self-healing monitor for deadlocks and overrunning tasks`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: XDG config + project .overseer.yaml)")
	rootCmd.PersistentFlags().StringVar(&debugLogPath, "debug-log", "", "Write engine debug logging to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
