// Package gates runs named quality validators over workflow artifacts
// before a workflow may complete.
package gates

import (
	"context"
	"sync"

	"github.com/pkorhonen/overseer/pkg/models"
)

// Artifact is the validated material: the workflow's aggregated results,
// keyed by task ID, plus any merged artifact fields the tasks produced.
type Artifact map[string]interface{}

// Validator is a single quality gate. Validators must be pure: identical
// artifacts yield identical results, and validators share no mutable state,
// so the pipeline may run them concurrently.
type Validator interface {
	// Name is the gate name used to select this validator.
	Name() string
	// Validate checks the artifact and reports the outcome.
	Validate(artifact Artifact) models.QualityGateResult
}

// Pipeline holds the registered validators and runs selected gates.
type Pipeline struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{validators: make(map[string]Validator)}
}

// Register adds a validator. A later registration under the same name
// replaces the earlier one.
func (p *Pipeline) Register(v Validator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validators[v.Name()] = v
}

// Names returns the registered gate names.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.validators))
	for name := range p.validators {
		names = append(names, name)
	}
	return names
}

// Run evaluates the named gates over the artifact concurrently and returns
// one result per requested gate, in request order. An unknown gate name
// yields a failing result naming the gate; silently skipping it would let a
// misspelled gate pass the pipeline. The aggregate verdict is the logical
// AND over all results; callers get the full failing list, not just the
// first failure.
func (p *Pipeline) Run(ctx context.Context, artifact Artifact, gateNames []string) []models.QualityGateResult {
	results := make([]models.QualityGateResult, len(gateNames))

	var wg sync.WaitGroup
	for i, name := range gateNames {
		p.mu.RLock()
		v := p.validators[name]
		p.mu.RUnlock()

		if v == nil {
			results[i] = models.QualityGateResult{
				Gate:   name,
				Passed: false,
				Reason: "unknown quality gate",
			}
			continue
		}
		if ctx.Err() != nil {
			results[i] = models.QualityGateResult{
				Gate:   name,
				Passed: false,
				Reason: "gate evaluation cancelled",
			}
			continue
		}

		wg.Add(1)
		go func(i int, v Validator) {
			defer wg.Done()
			results[i] = v.Validate(artifact)
		}(i, v)
	}
	wg.Wait()

	return results
}
