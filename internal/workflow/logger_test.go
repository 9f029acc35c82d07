package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkorhonen/overseer/internal/agent"
	"github.com/pkorhonen/overseer/pkg/models"
)

func TestDebugLoggerCapturesEngineActivity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("failed to open logger: %v", err)
	}
	t.Cleanup(func() {
		setPackageLogger(nil)
		logger.Close()
	})

	reg := agent.NewRegistry()
	reg.Register("coder", okAgent(nil))

	e := New(reg, WithLogger(logger))
	id := e.Execute("logged", "goal", []*models.Task{task("a", "coder")}, ExecuteOptions{})
	await(t, e, id)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "submitted") {
		t.Errorf("expected the submission logged, got:\n%s", data)
	}
	if !strings.Contains(string(data), "completed") {
		t.Errorf("expected the completion logged, got:\n%s", data)
	}
}

func TestDebugLoggerEmptyPathIsNoop(t *testing.T) {
	logger, err := NewDebugLogger("")
	if err != nil {
		t.Fatalf("expected no-op logger, got %v", err)
	}
	logger.Log("dropped")
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	NopLogger().Log("dropped too")

	var nilLogger *DebugLogger
	nilLogger.Log("also dropped")
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil close failed: %v", err)
	}
}
