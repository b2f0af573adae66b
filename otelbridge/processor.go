// Package otelbridge feeds OpenTelemetry SDK spans into a forestz Engine.
//
// Register the processor with a TracerProvider and every span it records is
// assembled into a forestz tree:
//
//	engine := forestz.New(queue)
//	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(otelbridge.NewProcessor(engine)))
//
// Span events are only visible once a span ends, so they are recorded just
// before the close and follow any child spans that completed earlier.
package otelbridge

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/forestz"
)

// LevelKey is the attribute that sets a span's or event's level.
const LevelKey attribute.Key = "level"

// Processor is an sdktrace.SpanProcessor that forwards span lifecycles to an Engine.
type Processor struct {
	engine   *forestz.Engine
	shutdown atomic.Bool
}

var _ sdktrace.SpanProcessor = (*Processor)(nil)

// NewProcessor creates a processor for engine.
func NewProcessor(engine *forestz.Engine) *Processor {
	return &Processor{engine: engine}
}

// SpanID converts an OpenTelemetry span ID to a forestz identity.
func SpanID(id trace.SpanID) forestz.ID {
	return forestz.ID(binary.BigEndian.Uint64(id[:]))
}

// OnStart opens the span. A remote or missing parent starts a new tree.
func (p *Processor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	if p.shutdown.Load() {
		return
	}

	parent := forestz.NoParent
	if sc := s.Parent(); sc.IsValid() && !sc.IsRemote() {
		parent = SpanID(sc.SpanID())
	}

	attrs := s.Attributes()
	_ = p.engine.OpenSpanAt(
		SpanID(s.SpanContext().SpanID()),
		parent,
		s.Name(),
		levelOf(attrs, forestz.LevelInfo),
		fieldsOf(attrs),
		s.StartTime(),
	)
}

// OnEnd records the span's events and closes it at its end time.
func (p *Processor) OnEnd(s sdktrace.ReadOnlySpan) {
	if p.shutdown.Load() {
		return
	}

	id := SpanID(s.SpanContext().SpanID())
	fields := fieldsOf(s.Attributes())
	if st := s.Status(); st.Code == codes.Error {
		if fields == nil {
			fields = make(map[string]any, 1)
		}
		fields["error"] = st.Description
	}
	if len(fields) > 0 {
		_ = p.engine.RecordFields(id, fields)
	}

	for _, ev := range s.Events() {
		_ = p.engine.RecordEventAt(id, levelOf(ev.Attributes, forestz.LevelInfo), ev.Name, fieldsOf(ev.Attributes), ev.Time)
	}
	_ = p.engine.CloseSpan(id, s.EndTime())
}

// ForceFlush force-closes every open span so pending trees reach the sink.
func (p *Processor) ForceFlush(context.Context) error {
	if p.shutdown.Load() {
		return nil
	}
	p.engine.Flush()
	return nil
}

// Shutdown flushes the engine and ignores later calls.
func (p *Processor) Shutdown(context.Context) error {
	if p.shutdown.CompareAndSwap(false, true) {
		p.engine.Flush()
	}
	return nil
}

func levelOf(attrs []attribute.KeyValue, fallback forestz.Level) forestz.Level {
	for _, kv := range attrs {
		if kv.Key != LevelKey {
			continue
		}
		if l, err := forestz.ParseLevel(kv.Value.Emit()); err == nil {
			return l
		}
	}
	return fallback
}

func fieldsOf(attrs []attribute.KeyValue) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	fields := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		if kv.Key == LevelKey {
			continue
		}
		fields[string(kv.Key)] = kv.Value.AsInterface()
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
