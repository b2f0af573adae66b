package forestz

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"
)

const (
	defaultTombstones = 1024
	defaultPoolSize   = 4096
)

// Reserved field keys.
const (
	// TraceIDField on a span sets the trace ID for it and its descendants.
	// The value may be a uuid.UUID or a string uuid.Parse accepts.
	TraceIDField = "uuid"

	// ImmediateField set to true on an event also writes the event to the
	// engine logger at once, with the names of its enclosing spans. The
	// event is recorded in the tree as usual, without this field.
	ImmediateField = "immediate"
)

// Engine assembles span and event notifications into per-trace trees and
// hands every completed root to its Sink.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Engine struct {
	sink       Sink
	registry   *registry
	ids        *IDPool
	clock      clockz.Clock
	logger     *slog.Logger
	onError    func(error)
	tagger     Tagger
	registerer prometheus.Registerer
	metrics    *engineMetrics
	tombstones int
	poolSize   int
	violations atomic.Uint64
	rejected   atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to stamp span and event times.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the logger contract violations are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithErrorHandler replaces the default logging error handler.
// The handler is called synchronously on the notifying goroutine and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Engine) { e.onError = fn }
}

// WithTagger sets how events are tagged. Events the tagger declines, or all
// events without a tagger, are tagged by level.
func WithTagger(fn Tagger) Option {
	return func(e *Engine) { e.tagger = fn }
}

// WithTombstones sets how many transferred identities are remembered to
// report late closes as duplicates. Zero disables the distinction.
func WithTombstones(n int) Option {
	return func(e *Engine) { e.tombstones = n }
}

// WithIDPoolSize sets how many released identities StartSpan keeps for reuse.
func WithIDPoolSize(n int) Option {
	return func(e *Engine) { e.poolSize = n }
}

// WithRegisterer registers engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg }
}

// New creates an engine that delivers completed trees to sink.
// A nil sink discards every tree.
func New(sink Sink, opts ...Option) *Engine {
	e := &Engine{
		sink:       sink,
		clock:      clockz.RealClock,
		tombstones: defaultTombstones,
		poolSize:   defaultPoolSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = DiscardSink
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.onError == nil {
		e.onError = e.logViolation
	}
	e.registry = newRegistry(e.tombstones)
	e.ids = NewIDPool(e.poolSize)
	e.metrics = newEngineMetrics(e.registry)
	if e.registerer != nil {
		e.metrics.register(e.registerer)
	}
	return e
}

// OpenSpan records a span-opened notification.
//
// If parent names an open span the new span becomes a candidate child of it.
// If parent is non-zero but not open, the span is still opened as a detached
// root and an error wrapping ErrUnknownOrClosedSpan is returned.
func (e *Engine) OpenSpan(id, parent ID, name string, level Level, fields map[string]any) error {
	_, err := e.openSpan(id, parent, name, level, fields, e.clock.Now(), false)
	return err
}

// OpenSpanAt is OpenSpan with a start time observed by the caller.
func (e *Engine) OpenSpanAt(id, parent ID, name string, level Level, fields map[string]any, start time.Time) error {
	_, err := e.openSpan(id, parent, name, level, fields, start, false)
	return err
}

func (e *Engine) openSpan(id, parent ID, name string, level Level, fields map[string]any, start time.Time, pooled bool) (*accumulator, error) {
	if id == NoParent {
		return nil, e.report(spanErr("open", id, ErrInvalidID))
	}

	node := &Node{
		Kind:      KindSpan,
		Name:      name,
		Level:     level,
		Fields:    maps.Clone(fields),
		StartedAt: start,
	}

	var parentErr error
	root, depth, parentID := id, 0, NoParent
	if parent != NoParent {
		if p := e.registry.get(parent); p != nil && p.isOpen() {
			node.TraceID = p.traceID()
			root, depth, parentID = p.root, p.depth+1, parent
		} else {
			node.Detached = true
			parentErr = spanErr("open", parent, ErrUnknownOrClosedSpan)
		}
	}
	if trace, ok := traceIDFrom(node.Fields); ok {
		node.TraceID = trace
	} else if parentID == NoParent {
		node.TraceID = uuid.New()
	}

	acc := newAccumulator(id, parentID, root, depth, node)
	acc.pooled = pooled
	if !e.registry.insert(acc) {
		if pooled {
			return nil, errIDTaken
		}
		return nil, e.report(spanErr("open", id, ErrDuplicateSpan))
	}
	e.metrics.opened.Inc()

	if parentErr != nil {
		return acc, e.report(parentErr)
	}
	return acc, nil
}

// RecordEvent records an event against the open span parent.
// With parent == NoParent the event is submitted to the Sink as its own tree.
func (e *Engine) RecordEvent(parent ID, level Level, message string, fields map[string]any) error {
	return e.RecordEventAt(parent, level, message, fields, e.clock.Now())
}

// RecordEventAt is RecordEvent with a timestamp observed by the caller.
func (e *Engine) RecordEventAt(parent ID, level Level, message string, fields map[string]any, at time.Time) error {
	event := &Node{
		Kind:      KindEvent,
		Name:      message,
		Level:     level,
		Fields:    maps.Clone(fields),
		StartedAt: at,
	}
	immediate, _ := event.Fields[ImmediateField].(bool)
	delete(event.Fields, ImmediateField)
	if e.tagger != nil {
		if tag, ok := e.tagger(event); ok {
			event.Tag = &tag
		}
	}
	e.metrics.events.Inc()

	if parent == NoParent {
		event.TraceID = uuid.New()
		if immediate {
			e.writeImmediate(event, nil)
		}
		e.submit(event)
		return nil
	}

	acc := e.registry.get(parent)
	if acc == nil {
		return e.report(spanErr("event", parent, ErrUnknownOrClosedSpan))
	}
	event.TraceID = acc.traceID()
	if immediate {
		e.writeImmediate(event, acc)
	}
	if !acc.appendEvent(event) {
		return e.report(spanErr("event", parent, ErrUnknownOrClosedSpan))
	}
	return nil
}

// RecordFields merges fields into an open span.
func (e *Engine) RecordFields(id ID, fields map[string]any) error {
	acc := e.registry.get(id)
	if acc == nil || !acc.mergeFields(fields) {
		return e.report(spanErr("record", id, ErrUnknownOrClosedSpan))
	}
	return nil
}

// CloseSpan records a span-closed notification with the observed end time.
// The span moves into its parent's children, or to the Sink if it is a root.
func (e *Engine) CloseSpan(id ID, end time.Time) error {
	acc := e.registry.get(id)
	if acc == nil {
		if e.registry.transferred(id) {
			return e.report(spanErr("close", id, ErrDuplicateClose))
		}
		return e.report(spanErr("close", id, ErrUnknownOrClosedSpan))
	}

	node := acc.close(end, false)
	if node == nil {
		return e.report(spanErr("close", id, ErrDuplicateClose))
	}
	e.metrics.closed.WithLabelValues("false").Inc()
	e.transfer(acc, node)
	return nil
}

// transfer moves a closed node to its single next owner.
func (e *Engine) transfer(acc *accumulator, node *Node) {
	e.registry.remove(acc.id)
	defer func() {
		acc.markTransferred()
		if acc.pooled {
			e.ids.Put(acc.id)
		}
	}()

	if acc.parent != NoParent {
		if p := e.registry.get(acc.parent); p != nil && p.appendChild(node) {
			return
		}
		// The parent closed first, so this subtree becomes its own trace.
		node.Detached = true
	}
	node.Percentage = 100
	e.submit(node)
}

func (e *Engine) submit(tree *Node) {
	res := e.sink.Submit(tree)
	if res.Accepted() {
		e.metrics.submitted.Inc()
		return
	}
	e.rejected.Add(1)
	e.metrics.rejected.Inc()
	if !errors.Is(res.Reason, ErrQueueOverflow) {
		e.report(res.Reason)
	}
}

// Flush force-closes every open span at the current time, marking each
// Truncated, and returns how many were closed. Descendants close before
// their ancestors so every subtree still reaches its root.
func (e *Engine) Flush() int {
	return e.flush(func(*accumulator) bool { return true })
}

// FlushTrace force-closes the open spans of the trace rooted at root.
func (e *Engine) FlushTrace(root ID) int {
	return e.flush(func(acc *accumulator) bool { return acc.root == root })
}

func (e *Engine) flush(match func(*accumulator) bool) int {
	accs := e.registry.snapshot()
	accs = slices.DeleteFunc(accs, func(acc *accumulator) bool { return !match(acc) })
	slices.SortFunc(accs, func(a, b *accumulator) int { return cmp.Compare(b.depth, a.depth) })

	now := e.clock.Now()
	closed := 0
	for _, acc := range accs {
		node := acc.close(now, true)
		if node == nil {
			// Closed normally while flushing.
			continue
		}
		e.metrics.closed.WithLabelValues("true").Inc()
		e.transfer(acc, node)
		closed++
	}
	if closed > 0 {
		e.logger.Debug("forestz: flushed open spans", "count", closed)
	}
	return closed
}

// OpenSpans returns the number of spans currently open.
func (e *Engine) OpenSpans() int {
	return e.registry.len()
}

// Violations returns how many contract violations have been reported.
func (e *Engine) Violations() uint64 {
	return e.violations.Load()
}

// Rejected returns how many trees the Sink refused.
func (e *Engine) Rejected() uint64 {
	return e.rejected.Load()
}

// Close flushes every open span and stops recycling identities.
func (e *Engine) Close() {
	e.Flush()
	e.ids.Close()
}

// report hands a violation to the error handler and returns it.
// A panicking handler never reaches the notifying goroutine.
func (e *Engine) report(err error) error {
	e.violations.Add(1)
	e.metrics.violations.WithLabelValues(violationKind(err)).Inc()
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("forestz: error handler panicked", "panic", r)
			}
		}()
		e.onError(err)
	}()
	return err
}

// writeImmediate logs event with the path of spans enclosing it, root first.
func (e *Engine) writeImmediate(event *Node, acc *accumulator) {
	var path []string
	for a := acc; a != nil; a = e.registry.get(a.parent) {
		path = append(path, a.name)
	}
	slices.Reverse(path)

	attrs := make([]slog.Attr, 0, len(event.Fields)+2)
	attrs = append(attrs, slog.String("trace_id", event.TraceID.String()))
	if len(path) > 0 {
		attrs = append(attrs, slog.String("path", strings.Join(path, " > ")))
	}
	for _, k := range slices.Sorted(maps.Keys(event.Fields)) {
		attrs = append(attrs, slog.Any(k, event.Fields[k]))
	}
	e.logger.LogAttrs(context.Background(), slogLevel(event.Level), "IMMEDIATE "+event.Name, attrs...)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelTrace:
		return slog.LevelDebug - 4
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

func traceIDFrom(fields map[string]any) (uuid.UUID, bool) {
	switch v := fields[TraceIDField].(type) {
	case uuid.UUID:
		return v, true
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	}
	return uuid.Nil, false
}

func (e *Engine) logViolation(err error) {
	e.logger.Warn("forestz: contract violation", "error", err)
}

func violationKind(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateClose):
		return "duplicate_close"
	case errors.Is(err, ErrUnknownOrClosedSpan):
		return "unknown_or_closed"
	case errors.Is(err, ErrDuplicateSpan):
		return "duplicate_span"
	case errors.Is(err, ErrInvalidID):
		return "invalid_id"
	}
	return "sink"
}
