package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkorhonen/overseer/pkg/models"
)

// DB is the SQLite-backed knowledge store.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// DefaultPath returns the default knowledge store location.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "overseer", "memory.db")
}

// Open opens the knowledge store at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{conn: conn, path: path, now: time.Now}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// migrate applies pending schema migrations.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Memories},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Memories = `
CREATE TABLE IF NOT EXISTS memories (
	agent TEXT NOT NULL,
	category TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	success_rate REAL NOT NULL DEFAULT 1.0,
	access_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	last_accessed DATETIME NOT NULL,
	PRIMARY KEY (agent, category, key)
);

CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
`

// Store implements Store. The success rate is clamped to [0, 1].
func (db *DB) Store(agent, category, key string, value map[string]interface{}, successRate float64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode memory value: %w", err)
	}
	if successRate < 0 {
		successRate = 0
	} else if successRate > 1 {
		successRate = 1
	}

	now := db.now().UTC()
	_, err = db.conn.Exec(`
		INSERT INTO memories (agent, category, key, value, success_rate, access_count, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(agent, category, key) DO UPDATE SET
			value = excluded.value,
			success_rate = excluded.success_rate,
			last_accessed = excluded.last_accessed
	`, agent, category, key, string(payload), successRate, now, now)
	if err != nil {
		return fmt.Errorf("store memory: %w", err)
	}
	return nil
}

// Recall implements Store. A successful recall bumps access_count and
// last_accessed.
func (db *DB) Recall(agent, category, key string) (*models.MemoryEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRow(`
		SELECT agent, category, key, value, success_rate, access_count, created_at, last_accessed
		FROM memories WHERE agent = ? AND category = ? AND key = ?
	`, agent, category, key)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recall memory: %w", err)
	}

	now := db.now().UTC()
	_, err = db.conn.Exec(`
		UPDATE memories SET access_count = access_count + 1, last_accessed = ?
		WHERE agent = ? AND category = ? AND key = ?
	`, now, agent, category, key)
	if err != nil {
		return nil, fmt.Errorf("touch memory: %w", err)
	}
	entry.AccessCount++
	entry.LastAccessed = now
	return entry, nil
}

// RecallCategory implements Store.
func (db *DB) RecallCategory(agent, category string) ([]*models.MemoryEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT agent, category, key, value, success_rate, access_count, created_at, last_accessed
		FROM memories WHERE agent = ? AND category = ?
		ORDER BY last_accessed DESC
	`, agent, category)
	if err != nil {
		return nil, fmt.Errorf("recall category: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// RecallCrossAgent implements Store.
func (db *DB) RecallCrossAgent(category string, minSuccessRate float64) ([]*models.MemoryEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT agent, category, key, value, success_rate, access_count, created_at, last_accessed
		FROM memories WHERE category = ? AND success_rate >= ?
		ORDER BY success_rate DESC, last_accessed DESC
	`, category, minSuccessRate)
	if err != nil {
		return nil, fmt.Errorf("recall cross-agent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// UpdateSuccessRate implements Store. The rate is an exponential moving
// average weighted 80/20 toward history, matching how outcome patterns
// should decay slowly rather than flip on one result.
func (db *DB) UpdateSuccessRate(agent, category, key string, success bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	res, err := db.conn.Exec(`
		UPDATE memories SET success_rate = success_rate * 0.8 + ? * 0.2
		WHERE agent = ? AND category = ? AND key = ?
	`, outcome, agent, category, key)
	if err != nil {
		return fmt.Errorf("update success rate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update success rate: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats implements Store.
func (db *DB) Stats() (StoreStats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var stats StoreStats
	row := db.conn.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT agent), COUNT(DISTINCT category), COALESCE(SUM(access_count), 0)
		FROM memories
	`)
	if err := row.Scan(&stats.Entries, &stats.Agents, &stats.Categories, &stats.TotalAccesses); err != nil {
		return StoreStats{}, fmt.Errorf("memory stats: %w", err)
	}
	return stats, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanEntry.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*models.MemoryEntry, error) {
	var entry models.MemoryEntry
	var payload string
	err := s.Scan(&entry.Agent, &entry.Category, &entry.Key, &payload,
		&entry.SuccessRate, &entry.AccessCount, &entry.CreatedAt, &entry.LastAccessed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &entry.Value); err != nil {
		return nil, fmt.Errorf("decode memory value: %w", err)
	}
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*models.MemoryEntry, error) {
	var entries []*models.MemoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return entries, nil
}
