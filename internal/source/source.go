// Package source supplies workflow plans to the engine, either parsed
// directly from YAML or pulled from a watched spool directory.
package source

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/pkorhonen/overseer/pkg/models"
)

// PlanRequest is one parsed workflow submission.
type PlanRequest struct {
	// Name is the workflow name.
	Name string `yaml:"name"`
	// Goal describes the intended outcome.
	Goal string `yaml:"goal"`
	// Complexity is the board review estimate, 1 through 10. Zero means
	// unassessed.
	Complexity int `yaml:"complexity"`
	// QualityGates names the gates the workflow must pass.
	QualityGates []string `yaml:"quality_gates"`
	// MaxRetries overrides the quality gate retry budget when positive.
	MaxRetries int `yaml:"max_retries"`
	// ConcurrencyLimit overrides the dispatch cap when positive.
	ConcurrencyLimit int `yaml:"concurrency_limit"`
	// RequireBoardApproval forces a board review regardless of complexity.
	RequireBoardApproval bool `yaml:"require_board_approval"`
	// Tasks is the workflow plan.
	Tasks []*models.Task `yaml:"tasks"`

	// Source identifies where the request came from, e.g. a spool file
	// path. Set by the task source, not the YAML.
	Source string `yaml:"-"`
}

// ParsePlan decodes a YAML plan document. Structural validation beyond
// decoding is left to the engine, which records it on the workflow.
func ParsePlan(data []byte) (*PlanRequest, error) {
	var req PlanRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("parse plan: missing name")
	}
	for _, task := range req.Tasks {
		task.Status = models.TaskStatusPending
	}
	return &req, nil
}
