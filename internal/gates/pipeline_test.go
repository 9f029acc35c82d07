package gates

import (
	"context"
	"testing"

	"github.com/pkorhonen/overseer/pkg/models"
)

type stubGate struct {
	name   string
	passed bool
}

func (s *stubGate) Name() string { return s.name }

func (s *stubGate) Validate(Artifact) models.QualityGateResult {
	return models.QualityGateResult{Gate: s.name, Passed: s.passed}
}

func TestRunReturnsResultsInRequestOrder(t *testing.T) {
	p := NewPipeline()
	p.Register(&stubGate{name: "a", passed: true})
	p.Register(&stubGate{name: "b", passed: false})
	p.Register(&stubGate{name: "c", passed: true})

	results := p.Run(context.Background(), Artifact{}, []string{"c", "a", "b"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"c", "a", "b"} {
		if results[i].Gate != want {
			t.Errorf("result %d: expected gate %s, got %s", i, want, results[i].Gate)
		}
	}
}

func TestUnknownGateFails(t *testing.T) {
	p := NewPipeline()
	p.Register(&stubGate{name: "known", passed: true})

	results := p.Run(context.Background(), Artifact{}, []string{"known", "typo"})
	if models.GatesPassed(results) {
		t.Fatal("expected aggregate failure for unknown gate")
	}
	failing := models.FailingGates(results)
	if len(failing) != 1 || failing[0].Gate != "typo" {
		t.Errorf("expected only the unknown gate failing, got %+v", failing)
	}
}

func TestFullFailingListReturned(t *testing.T) {
	p := NewPipeline()
	p.Register(&stubGate{name: "a", passed: false})
	p.Register(&stubGate{name: "b", passed: false})
	p.Register(&stubGate{name: "c", passed: true})

	results := p.Run(context.Background(), Artifact{}, []string{"a", "b", "c"})
	failing := models.FailingGates(results)
	if len(failing) != 2 {
		t.Errorf("expected both failing gates reported, got %+v", failing)
	}
}

func TestRunWithNoGates(t *testing.T) {
	p := NewPipeline()
	results := p.Run(context.Background(), Artifact{}, nil)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if !models.GatesPassed(results) {
		t.Error("expected empty gate list to pass")
	}
}
