package integration

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/forestz"
	"github.com/zoobzio/forestz/render"
)

// Harness wires an engine to a queue that renders into a buffer and keeps
// a copy of every delivered tree.
//
//nolint:govet // Field alignment optimized for test helper readability
type Harness struct {
	Engine  *forestz.Engine
	Queue   *forestz.Queue
	Capture *forestz.Capture
	out     bytes.Buffer
	outMu   sync.Mutex
	t       *testing.T
}

// lockedWriter serializes writes into the harness buffer.
type lockedWriter struct{ h *Harness }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.h.outMu.Lock()
	defer w.h.outMu.Unlock()
	return w.h.out.Write(p)
}

// NewHarness creates a harness. Queue options are applied after the defaults.
func NewHarness(t *testing.T, opts ...forestz.QueueOption) *Harness {
	t.Helper()
	h := &Harness{Capture: forestz.NewCapture(), t: t}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	printer := forestz.NewPrinter(render.NewPretty(render.WithTraceIDs()), lockedWriter{h})
	processor := forestz.ProcessorFunc(func(tree *forestz.Node) error {
		if err := printer.Process(tree); err != nil {
			return err
		}
		return h.Capture.Process(tree)
	})

	base := []forestz.QueueOption{forestz.WithCapacity(256), forestz.WithQueueLogger(logger)}
	h.Queue = forestz.NewQueue(processor, append(base, opts...)...)
	h.Engine = forestz.New(h.Queue, forestz.WithLogger(logger), forestz.WithErrorHandler(func(error) {}))
	t.Cleanup(h.Close)
	return h
}

// Close flushes the engine and drains the queue.
func (h *Harness) Close() {
	h.Engine.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Queue.Shutdown(ctx); err != nil {
		h.t.Errorf("queue shutdown: %v", err)
	}
}

// WaitForTrees waits for n trees and fails the test on timeout.
func (h *Harness) WaitForTrees(n int) []*forestz.Node {
	h.t.Helper()
	trees := h.Capture.WaitFor(n, 5*time.Second)
	if len(trees) < n {
		h.t.Errorf("Timeout waiting for trees: expected %d, got %d", n, len(trees))
	}
	return trees
}

// Lines returns the rendered output so far.
func (h *Harness) Lines() []string {
	h.outMu.Lock()
	defer h.outMu.Unlock()

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(h.out.Bytes()))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// AssertContiguous verifies every trace occupies one unbroken block of
// rendered lines. Lines start with the trace ID.
func (h *Harness) AssertContiguous() {
	h.t.Helper()
	finished := map[string]bool{}
	current := ""
	for i, line := range h.Lines() {
		trace, _, ok := strings.Cut(line, " ")
		if !ok {
			h.t.Errorf("Line %d has no trace prefix: %q", i, line)
			continue
		}
		if trace == current {
			continue
		}
		if finished[trace] {
			h.t.Errorf("Trace %s resumes at line %d after another trace", trace, i)
		}
		if current != "" {
			finished[current] = true
		}
		current = trace
	}
}

// FindNode returns the first node named name in tree, or nil.
func FindNode(tree *forestz.Node, name string) *forestz.Node {
	var found *forestz.Node
	tree.Walk(func(n *forestz.Node, _ int) bool {
		if found == nil && n.Name == name {
			found = n
		}
		return found == nil
	})
	return found
}

// ChildNames lists the names of n's direct children.
func ChildNames(n *forestz.Node) []string {
	out := make([]string, len(n.Children))
	for i, c := range n.Children {
		out[i] = c.Name
	}
	return out
}

// AssertPercentages checks every span child against its parent's duration.
func AssertPercentages(t *testing.T, tree *forestz.Node) {
	t.Helper()
	if tree.IsSpan() && tree.Percentage != 100 {
		t.Errorf("Root %s: expected 100%%, got %v", tree.Name, tree.Percentage)
	}
	tree.Walk(func(n *forestz.Node, _ int) bool {
		for _, c := range n.Children {
			if !c.IsSpan() {
				continue
			}
			if c.Percentage < 0 || c.Percentage > 100 {
				t.Errorf("%s: percentage %v out of range", c.Name, c.Percentage)
			}
			if n.Duration > 0 {
				want := 100 * float64(c.Duration) / float64(n.Duration)
				if want > 100 {
					want = 100
				}
				if d := c.Percentage - want; d > 1e-6 || d < -1e-6 {
					t.Errorf("%s: expected %v%% of %s, got %v", c.Name, want, n.Name, c.Percentage)
				}
			}
		}
		return true
	})
}
