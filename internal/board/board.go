// Package board implements the complexity-routed approval policy that gates
// higher-risk workflows.
package board

import (
	"sync"
	"time"

	"github.com/pkorhonen/overseer/pkg/models"
)

// Conditions attached by reviewers. FullBoard approvals always carry the
// rollback plan, security audit, and post-mortem obligations.
const (
	ConditionProgressReport          = "progress_report"
	ConditionCoordinationCheckpoint  = "coordination_checkpoint"
	ConditionDailyCheckpoints        = "daily_checkpoints"
	ConditionCodeReview              = "code_review"
	ConditionIntegrationTest         = "integration_test"
	ConditionMigrationRollbackPlan   = "migration_rollback_plan"
	ConditionRollbackPlan            = "rollback_plan"
	ConditionSecurityAudit           = "security_audit"
	ConditionPostMortem              = "post_mortem"
	ConditionPenetrationTest         = "penetration_test"
)

// DefaultComplexityThreshold is the complexity at or above which a workflow
// is routed through the board before dispatch.
const DefaultComplexityThreshold = 7

// Gate routes proposals to the appropriate reviewer tier by complexity and
// retains the decision history for inspection.
type Gate struct {
	mu      sync.Mutex
	history []models.Decision
	now     func() time.Time
}

// New creates a board decision gate.
func New() *Gate {
	return &Gate{now: time.Now}
}

// Review evaluates a proposal and returns a decision. The mapping is
// deterministic in the proposal:
//
//	complexity 1-3  -> COO, auto-approved, no conditions
//	complexity 4-6  -> CPO, progress report required
//	complexity 7-8  -> CTO, daily checkpoints and code review required
//	complexity 9-10 -> FullBoard, rollback plan, security audit, post-mortem
//
// Complexity outside [1,10] fails with a ValidationError.
func (g *Gate) Review(p models.Proposal) (models.Decision, error) {
	if p.Complexity < 1 || p.Complexity > 10 {
		return models.Decision{}, models.NewValidationError(
			"proposal complexity %d outside range [1,10]", p.Complexity)
	}

	var d models.Decision
	switch {
	case p.Complexity <= 3:
		d = g.cooReview(p)
	case p.Complexity <= 6:
		d = g.cpoReview(p)
	case p.Complexity <= 8:
		d = g.ctoReview(p)
	default:
		d = g.fullBoardReview(p)
	}
	d.DecidedAt = g.now()

	g.mu.Lock()
	g.history = append(g.history, d)
	g.mu.Unlock()
	return d, nil
}

// History returns all decisions made by this gate, oldest first.
func (g *Gate) History() []models.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.Decision, len(g.history))
	copy(out, g.history)
	return out
}

// cooReview auto-approves low-complexity operational work.
func (g *Gate) cooReview(p models.Proposal) models.Decision {
	return models.Decision{
		Approved: true,
		Tier:     models.TierCOO,
		Reason:   "low complexity, auto-approved by operations",
		Risk:     models.RiskLow,
	}
}

// cpoReview approves medium-complexity work with product oversight.
func (g *Gate) cpoReview(p models.Proposal) models.Decision {
	conditions := []string{ConditionProgressReport}
	if len(p.AgentsRequired) > 2 {
		conditions = append(conditions, ConditionCoordinationCheckpoint)
	}
	return models.Decision{
		Approved:   true,
		Tier:       models.TierCPO,
		Reason:     "medium complexity, approved with product oversight",
		Conditions: conditions,
		Risk:       models.RiskMedium,
	}
}

// ctoReview approves high-complexity work with technical safeguards.
func (g *Gate) ctoReview(p models.Proposal) models.Decision {
	conditions := []string{ConditionDailyCheckpoints, ConditionCodeReview}
	if p.TouchesExternalServices {
		conditions = append(conditions, ConditionIntegrationTest)
	}
	risk := models.RiskMedium
	if p.TouchesDatabase {
		conditions = append(conditions, ConditionMigrationRollbackPlan)
		risk = models.RiskHigh
	}
	return models.Decision{
		Approved:   true,
		Tier:       models.TierCTO,
		Reason:     "high complexity, approved with technical safeguards",
		Conditions: conditions,
		Risk:       risk,
	}
}

// fullBoardReview approves critical work with maximum safeguards.
func (g *Gate) fullBoardReview(p models.Proposal) models.Decision {
	conditions := []string{
		ConditionDailyCheckpoints,
		ConditionRollbackPlan,
		ConditionSecurityAudit,
		ConditionPostMortem,
	}
	if p.TouchesExternalServices {
		conditions = append(conditions, ConditionPenetrationTest)
	}
	return models.Decision{
		Approved:   true,
		Tier:       models.TierFullBoard,
		Reason:     "critical complexity, full board approval with maximum safeguards",
		Conditions: conditions,
		Risk:       models.RiskCritical,
	}
}
