package forestz

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// errIDTaken means a pooled identity is already open under another caller.
var errIDTaken = errors.New("id taken")

// spanKeyType is a private type for context keys to avoid collisions.
type spanKeyType struct{}

var spanKey spanKeyType

// ActiveSpan is a handle on a span opened through StartSpan.
// Safe for concurrent use by multiple goroutines; the span itself may be
// finished from a different goroutine than the one that started it.
type ActiveSpan struct {
	engine   *Engine
	trace    uuid.UUID
	id       ID
	mu       sync.Mutex
	finished bool
}

// SpanOption configures a span started with StartSpan.
type SpanOption func(*spanConfig)

type spanConfig struct {
	fields map[string]any
	level  Level
}

// WithLevel sets the span's level. The default is LevelInfo.
func WithLevel(level Level) SpanOption {
	return func(c *spanConfig) { c.level = level }
}

// WithFields sets the span's initial fields.
func WithFields(fields map[string]any) SpanOption {
	return func(c *spanConfig) { c.fields = fields }
}

// StartSpan opens a span with an identity from the engine's pool.
// If ctx carries a span from this engine, the new span is its child.
func (e *Engine) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *ActiveSpan) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := spanConfig{level: LevelInfo}
	for _, opt := range opts {
		opt(&cfg)
	}

	parent := NoParent
	if p := SpanFromContext(ctx); p != nil && p.engine == e {
		parent = p.id
	}

	var (
		id  ID
		acc *accumulator
		err error
	)
	for {
		// Hook callers pick their own identities and may hold this one.
		id = e.ids.Get()
		// A parent that closed concurrently still yields an open, detached span.
		acc, err = e.openSpan(id, parent, name, cfg.level, cfg.fields, e.clock.Now(), true)
		if !errors.Is(err, errIDTaken) {
			break
		}
	}
	span := &ActiveSpan{engine: e, id: id}
	if acc != nil {
		span.trace = acc.traceID()
	}
	return span.Context(ctx), span
}

// Event records an event against the span carried by ctx, or as a tree of
// its own when ctx carries no span from this engine.
func (e *Engine) Event(ctx context.Context, level Level, message string, fields map[string]any) error {
	if p := SpanFromContext(ctx); p != nil && p.engine == e {
		return e.RecordEvent(p.id, level, message, fields)
	}
	return e.RecordEvent(NoParent, level, message, fields)
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanKey).(*ActiveSpan)
	return span
}

// ID returns the span's identity.
func (a *ActiveSpan) ID() ID { return a.id }

// TraceID returns the identifier shared by every node of the span's trace.
func (a *ActiveSpan) TraceID() uuid.UUID { return a.trace }

// Event records an event inside the span.
func (a *ActiveSpan) Event(level Level, message string, fields map[string]any) error {
	return a.engine.RecordEvent(a.id, level, message, fields)
}

// SetField records a field on the span while it is open.
func (a *ActiveSpan) SetField(key string, value any) error {
	return a.engine.RecordFields(a.id, map[string]any{key: value})
}

// Finish closes the span at the engine's current time.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Prevent double-finishing.
	if a.finished {
		return
	}
	a.finished = true
	_ = a.engine.CloseSpan(a.id, a.engine.clock.Now())
}

// Context returns a copy of parent that carries this span.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	return context.WithValue(parent, spanKey, a)
}
