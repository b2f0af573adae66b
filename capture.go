package forestz

import (
	"sync"
	"time"
)

// Capture is a Processor that keeps trees in memory for inspection.
// Safe for concurrent use by multiple goroutines.
type Capture struct {
	trees []*Node
	mu    sync.Mutex
	cond  *sync.Cond
}

// NewCapture creates an empty Capture.
func NewCapture() *Capture {
	c := &Capture{
		trees: make([]*Node, 0, 8), // Start with small capacity.
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Process stores the tree.
func (c *Capture) Process(tree *Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.trees = append(c.trees, tree)
	c.cond.Broadcast()
	return nil
}

// Submit stores the tree directly, letting a Capture act as a synchronous Sink.
func (c *Capture) Submit(tree *Node) SubmitResult {
	if tree == nil {
		return dropped(ErrNilTree)
	}
	_ = c.Process(tree)
	return accepted()
}

// Export returns deep copies of the captured trees in arrival order and
// clears the buffer.
func (c *Capture) Export() []*Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.trees) == 0 {
		return nil
	}

	result := make([]*Node, len(c.trees))
	for i, tree := range c.trees {
		result[i] = tree.Clone()
	}

	// Only shrink if the buffer is very oversized to avoid allocation churn.
	if cap(c.trees) > 256 && len(c.trees) < cap(c.trees)/8 {
		c.trees = make([]*Node, 0, cap(c.trees)/4)
	} else {
		clear(c.trees)
		c.trees = c.trees[:0]
	}
	return result
}

// Count returns the number of captured trees.
func (c *Capture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.trees)
}

// Reset drops every captured tree.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.trees)
	c.trees = c.trees[:0]
}

// WaitFor blocks until at least n trees are captured or timeout elapses,
// then exports. Fewer than n trees are returned on timeout.
func (c *Capture) WaitFor(n int, timeout time.Duration) []*Node {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	for len(c.trees) < n && time.Now().Before(deadline) {
		c.cond.Wait()
	}
	c.mu.Unlock()
	return c.Export()
}
