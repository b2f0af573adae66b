package forestz

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Node is a span or an event in a finished trace.
// Nodes handed to a Sink are no longer referenced by the engine and must be
// treated as read-only by consumers.
//
//nolint:govet // Field order follows JSON serialization order
type Node struct {
	Kind       Kind           `json:"kind"`
	TraceID    uuid.UUID      `json:"trace_id"`
	Name       string         `json:"name"`
	Level      Level          `json:"level"`
	Tag        *Tag           `json:"tag,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
	Inner      time.Duration  `json:"inner,omitempty"`
	Percentage float64        `json:"percentage,omitempty"`
	Truncated  bool           `json:"truncated,omitempty"`
	Detached   bool           `json:"detached,omitempty"`
	Children   []*Node        `json:"children,omitempty"`
}

// IsSpan reports whether the node is a span.
func (n *Node) IsSpan() bool { return n.Kind == KindSpan }

// IsEvent reports whether the node is an event.
func (n *Node) IsEvent() bool { return n.Kind == KindEvent }

// Base returns the time spent in the span outside of its child spans.
func (n *Node) Base() time.Duration {
	if n.Inner >= n.Duration {
		return 0
	}
	return n.Duration - n.Inner
}

// Walk visits the node and its descendants in pre-order.
// Returning false from fn skips the children of the visited node.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(node *Node, depth int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

// Count returns the number of nodes in the tree rooted at n.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// Clone returns a deep copy of the tree rooted at n.
func (n *Node) Clone() *Node {
	c := *n
	if n.EndedAt != nil {
		end := *n.EndedAt
		c.EndedAt = &end
	}
	if n.Tag != nil {
		tag := *n.Tag
		c.Tag = &tag
	}
	if n.Fields != nil {
		c.Fields = maps.Clone(n.Fields)
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// percentOf returns child as a percentage of parent, clamped to [0, 100].
// A zero-length parent is fully covered by whatever it contains.
func percentOf(child, parent time.Duration) float64 {
	if parent <= 0 {
		return 100
	}
	p := 100 * float64(child) / float64(parent)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
