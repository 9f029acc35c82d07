package models

// QualityGateResult is the outcome of one quality gate run over an artifact.
// Gates are idempotent: re-validating an unmodified artifact yields an
// identical result.
type QualityGateResult struct {
	// Gate is the gate name.
	Gate string `json:"gate"`
	// Passed indicates whether the artifact satisfied the gate.
	Passed bool `json:"passed"`
	// Reason explains the result.
	Reason string `json:"reason,omitempty"`
	// Details carries gate-specific metrics, such as the measured value and
	// the threshold. When a gate can attribute a failure to specific tasks,
	// it lists their IDs under the "task_ids" key so the orchestrator can
	// re-dispatch only the work tied to the failing artifact.
	Details map[string]interface{} `json:"details,omitempty"`
}

// GatesPassed returns true if every result in the list passed.
func GatesPassed(results []QualityGateResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// FailingGates returns the subset of results that did not pass, preserving
// order, so remediation guidance can name every failing gate at once.
func FailingGates(results []QualityGateResult) []QualityGateResult {
	var failing []QualityGateResult
	for _, r := range results {
		if !r.Passed {
			failing = append(failing, r)
		}
	}
	return failing
}
