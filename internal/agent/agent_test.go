package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/pkorhonen/overseer/pkg/models"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("coder", Func(func(ctx context.Context, task *models.Task) (*models.Result, error) {
		return &models.Result{Status: models.ResultStatusCompleted}, nil
	}))

	a, err := r.Resolve("coder")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := a.Execute(context.Background(), &models.Task{ID: "t1"})
	if err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}
	if !res.Succeeded() {
		t.Error("expected successful result")
	}
}

func TestResolveUnknownTypeFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("nonexistent")
	if err == nil {
		t.Fatal("expected error for unknown agent type")
	}
	var uerr *UnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnavailableError, got %T", err)
	}
	if uerr.AgentType != "nonexistent" {
		t.Errorf("expected agent type in error, got %q", uerr.AgentType)
	}
}

func TestTypesSorted(t *testing.T) {
	r := NewRegistry()
	noop := Func(func(context.Context, *models.Task) (*models.Result, error) { return nil, nil })
	r.Register("tester", noop)
	r.Register("coder", noop)

	types := r.Types()
	if len(types) != 2 || types[0] != "coder" || types[1] != "tester" {
		t.Errorf("expected sorted types, got %v", types)
	}
}

func TestExecutionErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &ExecutionError{TaskID: "t1", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}
