package models

import "time"

// MemoryEntry is one fact in an agent's knowledge store. Entries are keyed
// by (agent, category, key); storing again under the same key overwrites.
type MemoryEntry struct {
	// Agent is the agent type that owns this entry.
	Agent string `json:"agent"`
	// Category groups related entries, e.g. "task_outcome" or "pattern".
	Category string `json:"category"`
	// Key identifies the entry within its category.
	Key string `json:"key"`
	// Value is the stored payload.
	Value map[string]interface{} `json:"value"`
	// SuccessRate tracks how often acting on this entry worked out, [0,1].
	SuccessRate float64 `json:"success_rate"`
	// AccessCount counts recalls of this entry.
	AccessCount int `json:"access_count"`
	// CreatedAt is when the entry was first stored.
	CreatedAt time.Time `json:"created_at"`
	// LastAccessed is the most recent recall time.
	LastAccessed time.Time `json:"last_accessed"`
}
