package gates

import (
	"testing"
)

func TestCoverageGateAttributesTasks(t *testing.T) {
	g := &CoverageGate{Min: 70}
	artifact := Artifact{
		"t1": map[string]interface{}{"coverage": 85.0},
		"t2": map[string]interface{}{"coverage": 40.0},
	}

	res := g.Validate(artifact)
	if res.Passed {
		t.Fatal("expected failure for coverage below threshold")
	}
	ids, ok := res.Details["task_ids"].([]string)
	if !ok || len(ids) != 1 || ids[0] != "t2" {
		t.Errorf("expected t2 attributed, got %v", res.Details["task_ids"])
	}
}

func TestCoverageGatePassesWithoutData(t *testing.T) {
	g := &CoverageGate{Min: 70}
	res := g.Validate(Artifact{"t1": map[string]interface{}{"code": "x"}})
	if !res.Passed {
		t.Errorf("expected pass when no coverage reported, got %s", res.Reason)
	}
}

func TestComplexityGate(t *testing.T) {
	g := &ComplexityGate{Max: 10}
	res := g.Validate(Artifact{"t1": map[string]interface{}{"complexity_score": 12}})
	if res.Passed {
		t.Error("expected failure over complexity limit")
	}

	res = g.Validate(Artifact{"t1": map[string]interface{}{"complexity_score": 7}})
	if !res.Passed {
		t.Errorf("expected pass under limit, got %s", res.Reason)
	}
}

func TestSizeGate(t *testing.T) {
	g := &SizeGate{MaxLines: 3}
	res := g.Validate(Artifact{"t1": map[string]interface{}{"code": "a\nb\nc\nd"}})
	if res.Passed {
		t.Error("expected failure over line limit")
	}
	res = g.Validate(Artifact{"t1": map[string]interface{}{"code": "a\nb"}})
	if !res.Passed {
		t.Errorf("expected pass under limit, got %s", res.Reason)
	}
}

func TestSecurityGateFindsPatterns(t *testing.T) {
	g := NewSecurityGate()
	artifact := Artifact{
		"t1": map[string]interface{}{"code": "password = \"hunter2\"\nresult = eval(input)"},
		"t2": map[string]interface{}{"code": "clean code"},
	}

	res := g.Validate(artifact)
	if res.Passed {
		t.Fatal("expected security findings")
	}
	ids, _ := res.Details["task_ids"].([]string)
	if len(ids) != 1 || ids[0] != "t1" {
		t.Errorf("expected only t1 attributed, got %v", ids)
	}
}

func TestTestsGate(t *testing.T) {
	g := &TestsGate{}
	res := g.Validate(Artifact{"t1": map[string]interface{}{"tests_passed": false}})
	if res.Passed {
		t.Error("expected failure for failed tests")
	}
	res = g.Validate(Artifact{"t1": map[string]interface{}{"tests_passed": true}})
	if !res.Passed {
		t.Error("expected pass")
	}
}

func TestGatesAreIdempotent(t *testing.T) {
	g := &CoverageGate{Min: 70}
	artifact := Artifact{"t1": map[string]interface{}{"coverage": 40.0}}

	first := g.Validate(artifact)
	second := g.Validate(artifact)
	if first.Passed != second.Passed || first.Reason != second.Reason {
		t.Errorf("same artifact produced different results: %+v vs %+v", first, second)
	}
}
