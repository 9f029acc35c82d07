package board

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pkorhonen/overseer/pkg/models"
)

func TestTierRouting(t *testing.T) {
	tests := []struct {
		complexity int
		tier       models.ReviewerTier
	}{
		{1, models.TierCOO},
		{3, models.TierCOO},
		{4, models.TierCPO},
		{6, models.TierCPO},
		{7, models.TierCTO},
		{8, models.TierCTO},
		{9, models.TierFullBoard},
		{10, models.TierFullBoard},
	}

	g := New()
	for _, tt := range tests {
		d, err := g.Review(models.Proposal{WorkflowType: "feature", Complexity: tt.complexity})
		if err != nil {
			t.Fatalf("complexity %d: unexpected error: %v", tt.complexity, err)
		}
		if d.Tier != tt.tier {
			t.Errorf("complexity %d: expected tier %s, got %s", tt.complexity, tt.tier, d.Tier)
		}
		if !d.Approved {
			t.Errorf("complexity %d: expected approval", tt.complexity)
		}
	}
}

func TestComplexityOutOfRange(t *testing.T) {
	g := New()
	for _, c := range []int{0, -1, 11} {
		_, err := g.Review(models.Proposal{Complexity: c})
		if err == nil {
			t.Errorf("complexity %d: expected error", c)
			continue
		}
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("complexity %d: expected ValidationError, got %T", c, err)
		}
	}
}

func TestCOOAttachesNoConditions(t *testing.T) {
	g := New()
	d, err := g.Review(models.Proposal{Complexity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Conditions) != 0 {
		t.Errorf("expected no conditions, got %v", d.Conditions)
	}
	if d.Risk != models.RiskLow {
		t.Errorf("expected low risk, got %s", d.Risk)
	}
}

func TestCPOConditions(t *testing.T) {
	g := New()
	d, _ := g.Review(models.Proposal{Complexity: 5})
	if !reflect.DeepEqual(d.Conditions, []string{ConditionProgressReport}) {
		t.Errorf("expected progress report condition, got %v", d.Conditions)
	}

	d, _ = g.Review(models.Proposal{
		Complexity:     5,
		AgentsRequired: []string{"coder", "tester", "reviewer"},
	})
	if !containsCondition(d.Conditions, ConditionCoordinationCheckpoint) {
		t.Errorf("expected coordination checkpoint for >2 agents, got %v", d.Conditions)
	}
}

func TestCTOConditions(t *testing.T) {
	g := New()
	d, _ := g.Review(models.Proposal{Complexity: 8})
	for _, want := range []string{ConditionDailyCheckpoints, ConditionCodeReview} {
		if !containsCondition(d.Conditions, want) {
			t.Errorf("expected condition %s, got %v", want, d.Conditions)
		}
	}

	d, _ = g.Review(models.Proposal{Complexity: 8, TouchesDatabase: true})
	if !containsCondition(d.Conditions, ConditionMigrationRollbackPlan) {
		t.Errorf("expected migration rollback plan, got %v", d.Conditions)
	}
	if d.Risk != models.RiskHigh {
		t.Errorf("expected high risk for database work, got %s", d.Risk)
	}
}

func TestFullBoardConditions(t *testing.T) {
	g := New()
	d, _ := g.Review(models.Proposal{Complexity: 10})
	for _, want := range []string{ConditionRollbackPlan, ConditionSecurityAudit, ConditionPostMortem} {
		if !containsCondition(d.Conditions, want) {
			t.Errorf("expected condition %s, got %v", want, d.Conditions)
		}
	}
	if d.Risk != models.RiskCritical {
		t.Errorf("expected critical risk, got %s", d.Risk)
	}

	d, _ = g.Review(models.Proposal{Complexity: 9, TouchesExternalServices: true})
	if !containsCondition(d.Conditions, ConditionPenetrationTest) {
		t.Errorf("expected penetration test for external services, got %v", d.Conditions)
	}
}

func TestDecisionsAreDeterministic(t *testing.T) {
	g := New()
	p := models.Proposal{WorkflowType: "migration", Complexity: 8, TouchesDatabase: true}
	first, _ := g.Review(p)
	second, _ := g.Review(p)

	first.DecidedAt = second.DecidedAt
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical proposals produced different decisions:\n%+v\n%+v", first, second)
	}
}

func TestHistoryRetained(t *testing.T) {
	g := New()
	g.Review(models.Proposal{Complexity: 2})
	g.Review(models.Proposal{Complexity: 9})

	history := g.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(history))
	}
	if history[0].Tier != models.TierCOO || history[1].Tier != models.TierFullBoard {
		t.Errorf("history out of order: %+v", history)
	}
}

func containsCondition(conditions []string, want string) bool {
	for _, c := range conditions {
		if c == want {
			return true
		}
	}
	return false
}
