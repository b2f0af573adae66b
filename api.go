// Package forestz collects spans and events into per-trace trees.
//
// Concurrent tasks emit span and event notifications that interleave freely
// across goroutines. forestz routes every notification to the node it belongs
// to and hands each trace to a Sink only once its root span closes, so the
// output of one task is never interleaved with the output of another.
//
// Core Components:
//   - Engine: Routes open/event/close notifications and assembles trees.
//   - Node: A finished, read-only span or event with ordered children.
//   - Sink: Accepts completed root trees.
//   - Queue: A bounded Sink that feeds a Processor from one background goroutine.
//   - ActiveSpan: Context-propagating handle over an open span.
//
// Basic Usage:
//
//	queue := forestz.NewQueue(forestz.NewPrinter(render.NewPretty(), os.Stdout))
//	defer queue.Shutdown(context.Background())
//
//	engine := forestz.New(queue)
//	defer engine.Flush()
//
//	ctx, span := engine.StartSpan(ctx, "counting_evens")
//	span.Event(forestz.LevelInfo, "0", nil)
//	span.Finish()
//
// Notification API:
//
// Instrumentation hooks that manage their own identities call OpenSpan,
// RecordEvent and CloseSpan directly. Any goroutine may deliver a
// notification for any identity; exclusion is per node, never global.
//
// Children:
//
// A node's children appear in the order they completed, not the order they
// started. A span's Percentage is its share of its immediate parent's
// duration and is only computed once that parent has closed. Roots are
// always 100.
//
// Reserved fields:
//
// A span field named "uuid" sets the trace ID for the span and its
// descendants. An event field "immediate" set to true also writes the event
// to the engine logger as soon as it is recorded.
//
// Shutdown:
//
// Spans that never receive a close notification keep their memory until
// Flush (or FlushTrace) force-closes them. Force-closed nodes are marked
// Truncated and still reach the Sink.
package forestz

import (
	"fmt"
	"strings"
)

// Level is the severity of a span or event.
type Level int8

// Severity levels, ordered from least to most severe.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"trace", "debug", "info", "warn", "error"}

var levelIcons = [...]string{"📍", "🐛", "💬", "🚧", "🚨"}

// String returns the lowercase level name.
func (l Level) String() string {
	if l < LevelTrace || l > LevelError {
		return fmt.Sprintf("level(%d)", int8(l))
	}
	return levelNames[l]
}

// Icon returns the glyph used when rendering events of this level.
func (l Level) Icon() string {
	if l < LevelTrace || l > LevelError {
		return "?"
	}
	return levelIcons[l]
}

// ParseLevel parses a level name. Matching is case-insensitive and accepts
// "warning" as an alias for warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("forestz: unknown level %q", s)
}

// Kind tags a Node as a span or an event.
type Kind uint8

const (
	// KindSpan is a named unit of work with a duration.
	KindSpan Kind = iota
	// KindEvent is an instantaneous leaf record.
	KindEvent
)

func (k Kind) String() string {
	if k == KindEvent {
		return "event"
	}
	return "span"
}

// MarshalText encodes the level as its name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalText encodes the kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "span":
		*k = KindSpan
	case "event":
		*k = KindEvent
	default:
		return fmt.Errorf("forestz: unknown kind %q", text)
	}
	return nil
}
