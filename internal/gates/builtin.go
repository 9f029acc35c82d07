package gates

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkorhonen/overseer/pkg/models"
)

// Built-in gate names.
const (
	GateCoverage   = "coverage"
	GateComplexity = "complexity"
	GateSize       = "size"
	GateSecurity   = "security"
	GateTests      = "tests"
)

// Thresholds configures the built-in gates.
type Thresholds struct {
	// MinCoverage is the minimum acceptable coverage percentage.
	MinCoverage float64
	// MaxComplexity is the maximum acceptable complexity score.
	MaxComplexity float64
	// MaxArtifactLines is the maximum line count for a produced artifact.
	MaxArtifactLines int
}

// DefaultThresholds mirrors the historical gate defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCoverage:      70,
		MaxComplexity:    10,
		MaxArtifactLines: 300,
	}
}

// RegisterBuiltins registers the built-in gates on a pipeline.
func RegisterBuiltins(p *Pipeline, t Thresholds) {
	p.Register(&CoverageGate{Min: t.MinCoverage})
	p.Register(&ComplexityGate{Max: t.MaxComplexity})
	p.Register(&SizeGate{MaxLines: t.MaxArtifactLines})
	p.Register(NewSecurityGate())
	p.Register(&TestsGate{})
}

// taskOutput extracts a task's output map from the artifact entry.
func taskOutput(v interface{}) (map[string]interface{}, bool) {
	out, ok := v.(map[string]interface{})
	return out, ok
}

// toFloat converts the numeric types agents report into a float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CoverageGate checks that every reported coverage figure meets the minimum.
type CoverageGate struct {
	Min float64
}

func (g *CoverageGate) Name() string { return GateCoverage }

func (g *CoverageGate) Validate(artifact Artifact) models.QualityGateResult {
	var failing []string
	var lowest float64 = -1
	seen := false

	for taskID, v := range artifact {
		out, ok := taskOutput(v)
		if !ok {
			continue
		}
		cov, ok := toFloat(out["coverage"])
		if !ok {
			continue
		}
		seen = true
		if lowest < 0 || cov < lowest {
			lowest = cov
		}
		if cov < g.Min {
			failing = append(failing, taskID)
		}
	}

	if !seen {
		return models.QualityGateResult{
			Gate:   GateCoverage,
			Passed: true,
			Reason: "no coverage data reported",
		}
	}
	if len(failing) > 0 {
		return models.QualityGateResult{
			Gate:   GateCoverage,
			Passed: false,
			Reason: fmt.Sprintf("coverage %.1f%% below threshold %.1f%%", lowest, g.Min),
			Details: map[string]interface{}{
				"coverage":  lowest,
				"threshold": g.Min,
				"task_ids":  failing,
			},
		}
	}
	return models.QualityGateResult{
		Gate:    GateCoverage,
		Passed:  true,
		Reason:  fmt.Sprintf("coverage %.1f%% meets threshold %.1f%%", lowest, g.Min),
		Details: map[string]interface{}{"coverage": lowest, "threshold": g.Min},
	}
}

// ComplexityGate checks that reported complexity scores stay under the limit.
type ComplexityGate struct {
	Max float64
}

func (g *ComplexityGate) Name() string { return GateComplexity }

func (g *ComplexityGate) Validate(artifact Artifact) models.QualityGateResult {
	var failing []string
	var highest float64

	for taskID, v := range artifact {
		out, ok := taskOutput(v)
		if !ok {
			continue
		}
		score, ok := toFloat(out["complexity_score"])
		if !ok {
			continue
		}
		if score > highest {
			highest = score
		}
		if score > g.Max {
			failing = append(failing, taskID)
		}
	}

	if len(failing) > 0 {
		return models.QualityGateResult{
			Gate:   GateComplexity,
			Passed: false,
			Reason: fmt.Sprintf("complexity %.0f exceeds limit %.0f", highest, g.Max),
			Details: map[string]interface{}{
				"complexity": highest,
				"threshold":  g.Max,
				"task_ids":   failing,
			},
		}
	}
	return models.QualityGateResult{
		Gate:   GateComplexity,
		Passed: true,
		Reason: fmt.Sprintf("complexity within limit %.0f", g.Max),
	}
}

// SizeGate checks that produced code artifacts stay under a line budget.
type SizeGate struct {
	MaxLines int
}

func (g *SizeGate) Name() string { return GateSize }

func (g *SizeGate) Validate(artifact Artifact) models.QualityGateResult {
	var failing []string
	largest := 0

	for taskID, v := range artifact {
		out, ok := taskOutput(v)
		if !ok {
			continue
		}
		code, ok := out["code"].(string)
		if !ok || code == "" {
			continue
		}
		lines := strings.Count(code, "\n") + 1
		if lines > largest {
			largest = lines
		}
		if lines > g.MaxLines {
			failing = append(failing, taskID)
		}
	}

	if len(failing) > 0 {
		return models.QualityGateResult{
			Gate:   GateSize,
			Passed: false,
			Reason: fmt.Sprintf("artifact has %d lines, limit is %d", largest, g.MaxLines),
			Details: map[string]interface{}{
				"lines":     largest,
				"threshold": g.MaxLines,
				"task_ids":  failing,
			},
		}
	}
	return models.QualityGateResult{
		Gate:   GateSize,
		Passed: true,
		Reason: fmt.Sprintf("artifacts within %d line limit", g.MaxLines),
	}
}

// SecurityGate scans produced code for known-dangerous patterns.
type SecurityGate struct {
	patterns map[string]*regexp.Regexp
}

// NewSecurityGate creates a security gate with the default pattern set.
func NewSecurityGate() *SecurityGate {
	return &SecurityGate{
		patterns: map[string]*regexp.Regexp{
			"hardcoded_secret": regexp.MustCompile(`(?i)(password|secret|api_key|token)\s*=\s*["'][^"']+["']`),
			"eval_call":        regexp.MustCompile(`\beval\s*\(`),
			"shell_true":       regexp.MustCompile(`shell\s*=\s*True`),
			"sql_concat":       regexp.MustCompile(`(?i)(select|insert|update|delete)\s.*["']\s*\+`),
		},
	}
}

func (g *SecurityGate) Name() string { return GateSecurity }

func (g *SecurityGate) Validate(artifact Artifact) models.QualityGateResult {
	var findings []map[string]interface{}
	taskSet := make(map[string]bool)

	for taskID, v := range artifact {
		out, ok := taskOutput(v)
		if !ok {
			continue
		}
		code, ok := out["code"].(string)
		if !ok || code == "" {
			continue
		}
		for i, line := range strings.Split(code, "\n") {
			for name, pattern := range g.patterns {
				if pattern.MatchString(line) {
					findings = append(findings, map[string]interface{}{
						"type": name,
						"task": taskID,
						"line": i + 1,
					})
					taskSet[taskID] = true
				}
			}
		}
	}

	if len(findings) > 0 {
		var taskIDs []string
		for id := range taskSet {
			taskIDs = append(taskIDs, id)
		}
		return models.QualityGateResult{
			Gate:   GateSecurity,
			Passed: false,
			Reason: fmt.Sprintf("found %d security findings", len(findings)),
			Details: map[string]interface{}{
				"findings": findings,
				"task_ids": taskIDs,
			},
		}
	}
	return models.QualityGateResult{
		Gate:   GateSecurity,
		Passed: true,
		Reason: "no security findings",
	}
}

// TestsGate checks agent-reported test outcomes.
type TestsGate struct{}

func (g *TestsGate) Name() string { return GateTests }

func (g *TestsGate) Validate(artifact Artifact) models.QualityGateResult {
	var failing []string

	for taskID, v := range artifact {
		out, ok := taskOutput(v)
		if !ok {
			continue
		}
		passed, ok := out["tests_passed"].(bool)
		if !ok {
			continue
		}
		if !passed {
			failing = append(failing, taskID)
		}
	}

	if len(failing) > 0 {
		return models.QualityGateResult{
			Gate:    GateTests,
			Passed:  false,
			Reason:  "reported test failures",
			Details: map[string]interface{}{"task_ids": failing},
		}
	}
	return models.QualityGateResult{
		Gate:   GateTests,
		Passed: true,
		Reason: "all reported tests passed",
	}
}
