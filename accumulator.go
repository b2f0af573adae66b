package forestz

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

type lifecycle uint8

const (
	stateOpen lifecycle = iota
	stateClosed
	stateTransferred
)

// accumulator owns one open span node until it is transferred.
// Safe for concurrent use; the mutex guards only this node.
//
//nolint:govet // Field order optimized for readability
type accumulator struct {
	node   *Node
	name   string
	trace  uuid.UUID
	id     ID
	parent ID
	root   ID
	depth  int
	mu     sync.Mutex
	state  lifecycle
	pooled bool
}

func newAccumulator(id, parent, root ID, depth int, node *Node) *accumulator {
	return &accumulator{
		id:     id,
		parent: parent,
		root:   root,
		depth:  depth,
		node:   node,
		name:   node.Name,
		trace:  node.TraceID,
	}
}

// traceID is fixed at open time and needs no lock.
func (a *accumulator) traceID() uuid.UUID { return a.trace }

// appendEvent adds an event node. Returns false if the span is no longer open.
func (a *accumulator) appendEvent(event *Node) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateOpen {
		return false
	}
	a.node.Children = append(a.node.Children, event)
	return true
}

// appendChild takes ownership of a closed child span.
// Returns false if the span is no longer open and the caller keeps ownership.
func (a *accumulator) appendChild(child *Node) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateOpen {
		return false
	}
	a.node.Children = append(a.node.Children, child)
	a.node.Inner += child.Duration
	return true
}

// mergeFields records fields on an open span. Later values win.
func (a *accumulator) mergeFields(fields map[string]any) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateOpen {
		return false
	}
	if a.node.Fields == nil {
		a.node.Fields = make(map[string]any, len(fields))
	}
	maps.Copy(a.node.Fields, fields)
	return true
}

// close finalizes the node exactly once and returns it.
// The children are immutable from here on, so their percentages are final.
// Returns nil if the span was already closed.
func (a *accumulator) close(end time.Time, truncated bool) *Node {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateOpen {
		return nil
	}
	a.state = stateClosed

	n := a.node
	if end.Before(n.StartedAt) {
		// Clock skew between the hook and the engine.
		end = n.StartedAt
	}
	n.Duration = end.Sub(n.StartedAt)
	if n.Duration < n.Inner {
		// A child outlived the end time the caller observed for this span.
		n.Duration = n.Inner
		end = n.StartedAt.Add(n.Inner)
	}
	n.EndedAt = &end
	n.Truncated = truncated

	for _, child := range n.Children {
		if child.Kind == KindSpan {
			child.Percentage = percentOf(child.Duration, n.Duration)
		}
	}
	return n
}

func (a *accumulator) markTransferred() {
	a.mu.Lock()
	a.state = stateTransferred
	a.node = nil
	a.mu.Unlock()
}

func (a *accumulator) isOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == stateOpen
}
