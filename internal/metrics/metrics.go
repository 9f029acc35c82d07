// Package metrics collects per-agent task execution statistics and renders
// them into a dashboard snapshot.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Outcome labels for task events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// TaskEvent is one recorded task execution.
type TaskEvent struct {
	// Agent is the agent type that ran the task.
	Agent string
	// TaskID identifies the task.
	TaskID string
	// Duration is the wall-clock execution time.
	Duration time.Duration
	// Outcome is one of the Outcome constants.
	Outcome string
	// Error holds the failure message when the outcome is not success.
	Error string
	// At is when the event was recorded.
	At time.Time
}

// AgentStats aggregates events for one agent type.
type AgentStats struct {
	Agent       string
	Total       int
	Successes   int
	Failures    int
	Timeouts    int
	SuccessRate float64
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Dashboard is a point-in-time summary of everything recorded.
type Dashboard struct {
	// TotalTasks counts all recorded events.
	TotalTasks int
	// OverallSuccessRate is successes over total, 0 when nothing recorded.
	OverallSuccessRate float64
	// Agents holds per-agent stats, sorted by agent type.
	Agents []AgentStats
	// TaskDistribution maps agent type to its share of all tasks, [0,1].
	TaskDistribution map[string]float64
	// TopErrors lists the most frequent error messages, most frequent first,
	// capped at five.
	TopErrors []ErrorCount
}

// ErrorCount pairs an error message with its occurrence count.
type ErrorCount struct {
	Error string
	Count int
}

// Collector records task events. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []TaskEvent
	now    func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// RecordEvent records one task execution.
func (c *Collector) RecordEvent(agent, taskID string, duration time.Duration, outcome, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, TaskEvent{
		Agent:    agent,
		TaskID:   taskID,
		Duration: duration,
		Outcome:  outcome,
		Error:    errMsg,
		At:       c.now(),
	})
}

// Events returns a copy of all recorded events, oldest first.
func (c *Collector) Events() []TaskEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TaskEvent, len(c.events))
	copy(out, c.events)
	return out
}

// AgentStats computes aggregate statistics for one agent type.
func (c *Collector) AgentStats(agent string) AgentStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentStatsLocked(agent)
}

func (c *Collector) agentStatsLocked(agent string) AgentStats {
	stats := AgentStats{Agent: agent}
	var total time.Duration

	for _, ev := range c.events {
		if ev.Agent != agent {
			continue
		}
		stats.Total++
		total += ev.Duration
		if stats.MinDuration == 0 || ev.Duration < stats.MinDuration {
			stats.MinDuration = ev.Duration
		}
		if ev.Duration > stats.MaxDuration {
			stats.MaxDuration = ev.Duration
		}
		switch ev.Outcome {
		case OutcomeSuccess:
			stats.Successes++
		case OutcomeTimeout:
			stats.Timeouts++
		default:
			stats.Failures++
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Total)
		stats.AvgDuration = total / time.Duration(stats.Total)
	}
	return stats
}

// Dashboard builds a summary across all agents.
func (c *Collector) Dashboard() Dashboard {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Dashboard{TaskDistribution: make(map[string]float64)}
	d.TotalTasks = len(c.events)
	if d.TotalTasks == 0 {
		return d
	}

	agents := make(map[string]bool)
	errCounts := make(map[string]int)
	successes := 0
	for _, ev := range c.events {
		agents[ev.Agent] = true
		if ev.Outcome == OutcomeSuccess {
			successes++
		} else if ev.Error != "" {
			errCounts[ev.Error]++
		}
	}
	d.OverallSuccessRate = float64(successes) / float64(d.TotalTasks)

	names := make([]string, 0, len(agents))
	for a := range agents {
		names = append(names, a)
	}
	sort.Strings(names)
	for _, a := range names {
		stats := c.agentStatsLocked(a)
		d.Agents = append(d.Agents, stats)
		d.TaskDistribution[a] = float64(stats.Total) / float64(d.TotalTasks)
	}

	for msg, n := range errCounts {
		d.TopErrors = append(d.TopErrors, ErrorCount{Error: msg, Count: n})
	}
	sort.Slice(d.TopErrors, func(i, j int) bool {
		if d.TopErrors[i].Count != d.TopErrors[j].Count {
			return d.TopErrors[i].Count > d.TopErrors[j].Count
		}
		return d.TopErrors[i].Error < d.TopErrors[j].Error
	})
	if len(d.TopErrors) > 5 {
		d.TopErrors = d.TopErrors[:5]
	}
	return d
}
