package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkorhonen/overseer/pkg/models"
)

const samplePlan = `
name: release
goal: ship the feature
complexity: 8
quality_gates: [tests, security]
max_retries: 2
tasks:
  - id: build
    agent_type: coder
    description: build the artifact
  - id: deploy
    agent_type: deployer
    depends_on: [build]
`

func TestParsePlan(t *testing.T) {
	req, err := ParsePlan([]byte(samplePlan))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.Name != "release" || req.Complexity != 8 {
		t.Errorf("unexpected header: %+v", req)
	}
	if len(req.QualityGates) != 2 || req.QualityGates[1] != "security" {
		t.Errorf("unexpected gates: %v", req.QualityGates)
	}
	if len(req.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(req.Tasks))
	}
	if req.Tasks[1].DependsOn[0] != "build" {
		t.Errorf("unexpected dependency: %v", req.Tasks[1].DependsOn)
	}
	for _, task := range req.Tasks {
		if task.Status != models.TaskStatusPending {
			t.Errorf("task %s: expected pending, got %s", task.ID, task.Status)
		}
	}
}

func TestParsePlanRejectsMissingName(t *testing.T) {
	if _, err := ParsePlan([]byte("goal: no name here")); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestParsePlanRejectsBadYAML(t *testing.T) {
	if _, err := ParsePlan([]byte("{{not yaml")); err == nil {
		t.Error("expected error for malformed document")
	}
}

func TestSpoolDeliversExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plan.yaml"), []byte(samplePlan), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	spool, err := NewSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go spool.Run(ctx)

	select {
	case req := <-spool.Requests():
		if req.Name != "release" {
			t.Errorf("unexpected plan: %+v", req)
		}
		if err := spool.Ack(req); err != nil {
			t.Fatalf("ack failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "processed", "plan.yaml")); err != nil {
			t.Errorf("expected plan moved to processed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("spool never delivered the existing plan")
	}
}

func TestSpoolRejectsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("{{nope"), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	spool, err := NewSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go spool.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(dir, "rejected", "bad.yaml")); err == nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("malformed plan never moved to rejected")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSpoolPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go spool.Run(ctx)

	// Give the watcher a moment to attach, then drop a plan in.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "incoming.yaml"), []byte(samplePlan), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	select {
	case req := <-spool.Requests():
		if req.Name != "release" {
			t.Errorf("unexpected plan: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("spool never noticed the new plan")
	}
}
