package workflow

import (
	"github.com/pkorhonen/overseer/internal/board"
	"github.com/pkorhonen/overseer/internal/bus"
	"github.com/pkorhonen/overseer/internal/gates"
	"github.com/pkorhonen/overseer/internal/memory"
	"github.com/pkorhonen/overseer/internal/metrics"
)

// Option configures the Engine.
type Option func(*Engine)

// WithBus sets the message bus. A fresh bus is created when unset.
func WithBus(b *bus.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithPipeline sets the quality gate pipeline. An empty pipeline is created
// when unset.
func WithPipeline(p *gates.Pipeline) Option {
	return func(e *Engine) { e.pipeline = p }
}

// WithBoard sets the board decision gate.
func WithBoard(g *board.Gate) Option {
	return func(e *Engine) { e.board = g }
}

// WithMemory sets the knowledge store task outcomes are written to.
func WithMemory(s memory.Store) Option {
	return func(e *Engine) { e.memory = s }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithLogger routes the package's debug logging to the given logger. The
// hook is package level, matching how engine internals log without carrying
// a logger through every call.
func WithLogger(l *DebugLogger) Option {
	return func(*Engine) {
		setPackageLogger(l)
	}
}

// WithConcurrencyLimit caps in-flight tasks per workflow.
func WithConcurrencyLimit(n int) Option {
	return func(e *Engine) { e.concurrencyLimit = n }
}

// WithMaxRetries sets the default quality gate retry budget.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithTaskRetries sets the per-task transient failure budget.
func WithTaskRetries(n int) Option {
	return func(e *Engine) { e.taskRetries = n }
}

// WithBoardThreshold sets the complexity at or above which workflows are
// routed through the board.
func WithBoardThreshold(n int) Option {
	return func(e *Engine) { e.boardThreshold = n }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(e *Engine) { e.eventBuffer = n }
}
