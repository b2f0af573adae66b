// Package render formats finished forestz trees for output.
//
// Pretty draws a tree with box glyphs, one line per node:
//
//	INFO     counting_evens [ 1.20ms | 100.00% ]
//	INFO     ┝━ 💬 [info]: 0
//	INFO     ┝━ 💬 [info]: 2
//	INFO     ┕━ 💬 [info]: 4
//
// A span line shows its duration and its share of the immediate parent.
// When a span has child spans, the share spent in its own body comes first:
// "[ 4.59ms | 0.81% / 61.41% ]".
//
// JSON encodes the tree as one object per line, or indented.
package render

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zoobzio/forestz"
)

type indent uint8

const (
	indentNull indent = iota
	indentLine
	indentFork
	indentTurn
)

func (i indent) String() string {
	switch i {
	case indentLine:
		return "│  "
	case indentFork:
		return "┝━ "
	case indentTurn:
		return "┕━ "
	}
	return "   "
}

// Pretty renders trees as indented text.
type Pretty struct {
	timestamps bool
	traceIDs   bool
}

// PrettyOption configures Pretty.
type PrettyOption func(*Pretty)

// WithTimestamps prefixes every line with the node's start time.
func WithTimestamps() PrettyOption {
	return func(p *Pretty) { p.timestamps = true }
}

// WithTraceIDs prefixes every line with the node's trace ID.
func WithTraceIDs() PrettyOption {
	return func(p *Pretty) { p.traceIDs = true }
}

// NewPretty creates a Pretty formatter.
func NewPretty(opts ...PrettyOption) *Pretty {
	p := &Pretty{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Format renders the whole tree.
func (p *Pretty) Format(tree *forestz.Node) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256)
	p.formatNode(&buf, tree, make([]indent, 0, 16))
	return buf.Bytes(), nil
}

func (p *Pretty) formatNode(buf *bytes.Buffer, n *forestz.Node, indents []indent) {
	if p.traceIDs {
		fmt.Fprintf(buf, "%s ", n.TraceID)
	}
	if p.timestamps {
		fmt.Fprintf(buf, "%-32s ", n.StartedAt.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(buf, "%-8s ", strings.ToUpper(n.Level.String()))
	for _, i := range indents {
		buf.WriteString(i.String())
	}

	if n.IsEvent() {
		tag := forestz.NewTag("", n.Level)
		if n.Tag != nil {
			tag = *n.Tag
		}
		fmt.Fprintf(buf, "%s [%s]: %s", tag.Icon, tag, n.Name)
		writeFields(buf, n.Fields)
		buf.WriteByte('\n')
		return
	}

	fmt.Fprintf(buf, "%s [ %s | ", n.Name, DurationString(n.Duration))
	if n.Inner > 0 && n.Duration > 0 {
		base := n.Percentage * float64(n.Base()) / float64(n.Duration)
		fmt.Fprintf(buf, "%.2f%% / ", base)
	}
	fmt.Fprintf(buf, "%.2f%% ]", n.Percentage)
	if n.Truncated {
		buf.WriteString(" (truncated)")
	}
	if n.Detached {
		buf.WriteString(" (detached)")
	}
	writeFields(buf, n.Fields)
	buf.WriteByte('\n')

	if len(n.Children) == 0 {
		return
	}

	// The edge leading to this span continues only if it has later siblings.
	if last := len(indents) - 1; last >= 0 {
		switch indents[last] {
		case indentTurn:
			indents[last] = indentNull
		case indentFork:
			indents[last] = indentLine
		}
	}

	indents = append(indents, indentFork)
	for i, child := range n.Children {
		if i == len(n.Children)-1 {
			indents[len(indents)-1] = indentTurn
		} else {
			indents[len(indents)-1] = indentFork
		}
		p.formatNode(buf, child, indents)
	}
}

func writeFields(buf *bytes.Buffer, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, " | %s: %v", k, fields[k])
	}
}

// DurationString prints d with three significant digits, e.g. "26.0µs".
func DurationString(d time.Duration) string {
	t := float64(d)
	for _, unit := range []string{"ns", "µs", "ms", "s"} {
		switch {
		case t < 10:
			return fmt.Sprintf("%.2f%s", t, unit)
		case t < 100:
			return fmt.Sprintf("%.1f%s", t, unit)
		case t < 1000:
			return fmt.Sprintf("%.0f%s", t, unit)
		}
		t /= 1000
	}
	return fmt.Sprintf("%.0fs", t*1000)
}
