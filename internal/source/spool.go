package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TaskSource produces plan requests for the engine to execute.
type TaskSource interface {
	// Requests is the stream of incoming plans. Closed when the source
	// stops.
	Requests() <-chan *PlanRequest
	// Ack marks a request fully handed to the engine so it is not
	// delivered again.
	Ack(req *PlanRequest) error
}

// Spool watches a directory for plan YAML files. Files present at startup
// are delivered first, in name order; new files are picked up via fsnotify.
// Acknowledged plans move to processed/, malformed files to rejected/, so
// the spool directory itself always holds only pending work.
type Spool struct {
	dir      string
	requests chan *PlanRequest

	mu sync.Mutex
	// seen guards against duplicate delivery when a create event races the
	// initial scan.
	seen map[string]bool
}

// NewSpool creates a spool over dir, creating it and its processed/ and
// rejected/ subdirectories as needed.
func NewSpool(dir string) (*Spool, error) {
	for _, d := range []string{dir, filepath.Join(dir, "processed"), filepath.Join(dir, "rejected")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create spool directory: %w", err)
		}
	}
	return &Spool{
		dir:      dir,
		requests: make(chan *PlanRequest, 16),
		seen:     make(map[string]bool),
	}, nil
}

// Requests implements TaskSource.
func (s *Spool) Requests() <-chan *PlanRequest {
	return s.requests
}

// Ack implements TaskSource by moving the plan file to processed/.
func (s *Spool) Ack(req *PlanRequest) error {
	if req.Source == "" {
		return nil
	}
	dest := filepath.Join(s.dir, "processed", filepath.Base(req.Source))
	if err := os.Rename(req.Source, dest); err != nil {
		return fmt.Errorf("ack plan %s: %w", req.Source, err)
	}
	return nil
}

// Run watches the spool until ctx is cancelled, then closes the request
// channel.
func (s *Spool) Run(ctx context.Context) error {
	defer close(s.requests)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch spool directory: %w", err)
	}

	// Deliver anything already spooled before reacting to events.
	if err := s.scan(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !planFile(event.Name) {
				continue
			}
			if !s.deliver(ctx, event.Name) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("spool watcher: %w", err)
		}
	}
}

// scan delivers existing plan files in name order.
func (s *Spool) scan(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read spool directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !planFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if !s.deliver(ctx, filepath.Join(s.dir, name)) {
			return nil
		}
	}
	return nil
}

// deliver parses one plan file and sends it downstream. Returns false when
// ctx was cancelled.
func (s *Spool) deliver(ctx context.Context, path string) bool {
	s.mu.Lock()
	if s.seen[path] {
		s.mu.Unlock()
		return true
	}
	s.seen[path] = true
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		// Moved away or still mid-write; a later write event brings the
		// file back around.
		s.forget(path)
		return true
	}

	req, err := ParsePlan(data)
	if err != nil {
		s.reject(path)
		return true
	}
	req.Source = path

	select {
	case <-ctx.Done():
		return false
	case s.requests <- req:
		return true
	}
}

// reject moves a malformed plan file aside.
func (s *Spool) reject(path string) {
	dest := filepath.Join(s.dir, "rejected", filepath.Base(path))
	os.Rename(path, dest)
}

// forget allows a path to be delivered again.
func (s *Spool) forget(path string) {
	s.mu.Lock()
	delete(s.seen, path)
	s.mu.Unlock()
}

// planFile reports whether a path looks like a plan document.
func planFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
