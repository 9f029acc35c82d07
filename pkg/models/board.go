package models

import "time"

// ReviewerTier identifies which reviewer a proposal is routed to.
// Higher tiers attach more conditions to their approvals.
type ReviewerTier string

const (
	// TierCOO auto-approves low-complexity operational work.
	TierCOO ReviewerTier = "COO"
	// TierCPO reviews medium-complexity work with product oversight.
	TierCPO ReviewerTier = "CPO"
	// TierCTO reviews high-complexity work with technical safeguards.
	TierCTO ReviewerTier = "CTO"
	// TierFullBoard reviews critical work with maximum safeguards.
	TierFullBoard ReviewerTier = "FullBoard"
)

// Valid returns true if the tier is a known value.
func (t ReviewerTier) Valid() bool {
	switch t {
	case TierCOO, TierCPO, TierCTO, TierFullBoard:
		return true
	default:
		return false
	}
}

// RiskLevel is the board's risk assessment of a proposal.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Proposal is a request for board review of a workflow.
type Proposal struct {
	// WorkflowType names the kind of workflow being proposed.
	WorkflowType string `json:"workflow_type"`
	// Complexity is the estimated complexity, 1 through 10.
	Complexity int `json:"complexity"`
	// AgentsRequired lists the agent types the workflow will use.
	AgentsRequired []string `json:"agents_required,omitempty"`
	// EstimatedDuration is the expected wall-clock runtime.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// TouchesExternalServices flags integration with outside systems.
	TouchesExternalServices bool `json:"touches_external_services,omitempty"`
	// TouchesDatabase flags schema or data changes.
	TouchesDatabase bool `json:"touches_database,omitempty"`
}

// Decision is the board's verdict on a proposal. For a given proposal it
// is deterministic: identical proposals yield identical decisions.
type Decision struct {
	// Approved indicates whether the proposal may proceed.
	Approved bool `json:"approved"`
	// Tier is the reviewer that made the decision.
	Tier ReviewerTier `json:"tier"`
	// Reason explains the decision.
	Reason string `json:"reason"`
	// Conditions lists obligations attached to the approval.
	Conditions []string `json:"conditions,omitempty"`
	// Risk is the assessed risk level.
	Risk RiskLevel `json:"risk"`
	// DecidedAt is when the decision was made.
	DecidedAt time.Time `json:"decided_at"`
}
