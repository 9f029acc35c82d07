// Package memory provides the persistent knowledge store agents use to
// carry learned outcomes across workflows.
package memory

import (
	"errors"
	"io"

	"github.com/pkorhonen/overseer/pkg/models"
)

// ErrNotFound is returned when no entry matches a recall.
var ErrNotFound = errors.New("memory: entry not found")

// DefaultMinSuccessRate is the cross-agent recall threshold: entries below
// it are not worth learning from another agent.
const DefaultMinSuccessRate = 0.7

// Store is the knowledge store contract. Recalls bump the entry's access
// count and last-accessed time.
type Store interface {
	// Store saves an entry under (agent, category, key) with the given
	// success rate, overwriting any previous value while preserving its
	// creation time.
	Store(agent, category, key string, value map[string]interface{}, successRate float64) error
	// Recall fetches one entry, or ErrNotFound.
	Recall(agent, category, key string) (*models.MemoryEntry, error)
	// RecallCategory fetches all of an agent's entries in a category.
	RecallCategory(agent, category string) ([]*models.MemoryEntry, error)
	// RecallCrossAgent fetches every agent's entries in a category at or
	// above minSuccessRate, letting one agent learn from another's proven
	// outcomes.
	RecallCrossAgent(category string, minSuccessRate float64) ([]*models.MemoryEntry, error)
	// UpdateSuccessRate folds a new outcome into the entry's success rate.
	UpdateSuccessRate(agent, category, key string, success bool) error
	// Stats summarizes the store contents.
	Stats() (StoreStats, error)

	io.Closer
}

// StoreStats summarizes the knowledge store.
type StoreStats struct {
	// Entries is the total entry count.
	Entries int
	// Agents is the number of distinct agents with entries.
	Agents int
	// Categories is the number of distinct categories.
	Categories int
	// TotalAccesses sums access counts over all entries.
	TotalAccesses int
}
