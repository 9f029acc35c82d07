package metrics

import (
	"testing"
	"time"
)

func TestAgentStats(t *testing.T) {
	c := NewCollector()
	c.RecordEvent("coder", "t1", 100*time.Millisecond, OutcomeSuccess, "")
	c.RecordEvent("coder", "t2", 300*time.Millisecond, OutcomeSuccess, "")
	c.RecordEvent("coder", "t3", 200*time.Millisecond, OutcomeFailure, "boom")
	c.RecordEvent("tester", "t4", 50*time.Millisecond, OutcomeSuccess, "")

	stats := c.AgentStats("coder")
	if stats.Total != 3 {
		t.Errorf("expected 3 tasks, got %d", stats.Total)
	}
	if stats.Successes != 2 || stats.Failures != 1 {
		t.Errorf("unexpected outcome counts: %+v", stats)
	}
	if stats.AvgDuration != 200*time.Millisecond {
		t.Errorf("expected avg 200ms, got %s", stats.AvgDuration)
	}
	if stats.MinDuration != 100*time.Millisecond || stats.MaxDuration != 300*time.Millisecond {
		t.Errorf("unexpected min/max: %s/%s", stats.MinDuration, stats.MaxDuration)
	}
	if stats.SuccessRate < 0.66 || stats.SuccessRate > 0.67 {
		t.Errorf("expected success rate ~0.67, got %f", stats.SuccessRate)
	}
}

func TestDashboard(t *testing.T) {
	c := NewCollector()
	c.RecordEvent("coder", "t1", time.Second, OutcomeSuccess, "")
	c.RecordEvent("coder", "t2", time.Second, OutcomeFailure, "compile error")
	c.RecordEvent("coder", "t3", time.Second, OutcomeFailure, "compile error")
	c.RecordEvent("tester", "t4", time.Second, OutcomeFailure, "flaky test")

	d := c.Dashboard()
	if d.TotalTasks != 4 {
		t.Errorf("expected 4 tasks, got %d", d.TotalTasks)
	}
	if d.OverallSuccessRate != 0.25 {
		t.Errorf("expected 0.25 success rate, got %f", d.OverallSuccessRate)
	}
	if d.TaskDistribution["coder"] != 0.75 {
		t.Errorf("expected coder share 0.75, got %f", d.TaskDistribution["coder"])
	}
	if len(d.TopErrors) == 0 || d.TopErrors[0].Error != "compile error" || d.TopErrors[0].Count != 2 {
		t.Errorf("expected compile error first, got %+v", d.TopErrors)
	}
}

func TestDashboardEmpty(t *testing.T) {
	d := NewCollector().Dashboard()
	if d.TotalTasks != 0 || d.OverallSuccessRate != 0 {
		t.Errorf("expected zero dashboard, got %+v", d)
	}
}

func TestTimeoutCountedSeparately(t *testing.T) {
	c := NewCollector()
	c.RecordEvent("coder", "t1", time.Second, OutcomeTimeout, "timed out")

	stats := c.AgentStats("coder")
	if stats.Timeouts != 1 || stats.Failures != 0 {
		t.Errorf("expected timeout counted, got %+v", stats)
	}
}
