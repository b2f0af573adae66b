package forestz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Policy decides what Submit does when the queue is full.
type Policy uint8

const (
	// Block waits for space. No tree is lost, producers may stall.
	Block Policy = iota
	// DropOldest evicts the oldest queued tree to make room.
	DropOldest
	// DropNewest rejects the submitted tree.
	DropNewest
)

func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	}
	return "block"
}

// ParsePolicy parses a policy name such as "block" or "drop-oldest".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "block", "":
		return Block, nil
	case "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	}
	return Block, fmt.Errorf("forestz: unknown policy %q", s)
}

const defaultCapacity = 1024

// Queue is a bounded Sink that delivers trees to a Processor in submission
// order from a single background goroutine.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Queue struct {
	processor  Processor
	trees      chan *Node
	stopCh     chan struct{}
	done       chan struct{}
	logger     *slog.Logger
	onError    func(error)
	registerer prometheus.Registerer
	metrics    *queueMetrics
	capacity   int
	policy     Policy
	dropped    atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
	mu         sync.RWMutex // Held shared by in-flight sends, exclusively by Shutdown.
	syncMu     sync.Mutex
	closed     atomic.Bool
	syncMode   bool // Process inline for deterministic tests.
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCapacity sets how many trees may wait for the processor.
func WithCapacity(n int) QueueOption {
	return func(q *Queue) { q.capacity = n }
}

// WithPolicy sets the overflow policy.
func WithPolicy(p Policy) QueueOption {
	return func(q *Queue) { q.policy = p }
}

// WithQueueLogger sets the logger processor failures are reported to.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = logger }
}

// WithQueueErrorHandler replaces the default logging of processor failures.
func WithQueueErrorHandler(fn func(error)) QueueOption {
	return func(q *Queue) { q.onError = fn }
}

// WithQueueRegisterer registers queue metrics with reg.
func WithQueueRegisterer(reg prometheus.Registerer) QueueOption {
	return func(q *Queue) { q.registerer = reg }
}

// NewQueue creates a queue feeding processor and starts its worker.
func NewQueue(processor Processor, opts ...QueueOption) *Queue {
	q := &Queue{
		processor: processor,
		capacity:  defaultCapacity,
		policy:    Block,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.processor == nil {
		q.processor = Discard
	}
	if q.capacity < 1 {
		q.capacity = 1
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	if q.onError == nil {
		q.onError = func(err error) {
			q.logger.Error("forestz: processing failed", "error", err)
		}
	}
	q.trees = make(chan *Node, q.capacity)
	q.metrics = newQueueMetrics(q)
	if q.registerer != nil {
		q.metrics.register(q.registerer)
	}

	go q.run()
	return q
}

// run delivers trees until the channel is closed and drained.
func (q *Queue) run() {
	defer close(q.done)

	for tree := range q.trees {
		q.process(tree)
	}
}

// process hands one tree to the processor. Failures stay on this goroutine.
func (q *Queue) process(tree *Node) {
	defer func() {
		if r := recover(); r != nil {
			q.fail(fmt.Errorf("forestz: processor panicked on %q: %v", tree.Name, r))
		}
	}()

	if err := q.processor.Process(tree); err != nil {
		q.fail(err)
		return
	}
	q.delivered.Add(1)
	q.metrics.delivered.Inc()
}

func (q *Queue) fail(err error) {
	q.failed.Add(1)
	q.metrics.failed.Inc()
	q.onError(err)
}

// Submit enqueues a root tree according to the overflow policy.
func (q *Queue) Submit(tree *Node) SubmitResult {
	if tree == nil {
		q.drop("nil")
		return dropped(ErrNilTree)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed.Load() {
		q.drop("closed")
		return dropped(ErrSinkClosed)
	}
	q.metrics.submitted.Inc()

	if q.syncMode {
		q.syncMu.Lock()
		defer q.syncMu.Unlock()
		q.process(tree)
		return accepted()
	}

	switch q.policy {
	case DropNewest:
		select {
		case q.trees <- tree:
			return accepted()
		default:
			q.drop("overflow")
			return dropped(ErrQueueOverflow)
		}

	case DropOldest:
		for {
			select {
			case q.trees <- tree:
				return accepted()
			default:
			}
			// Full: evict the head and retry. The worker may win the race,
			// in which case there is room on the next attempt.
			select {
			case old := <-q.trees:
				q.drop("evicted")
				q.logger.Debug("forestz: evicted queued tree", "name", old.Name)
			default:
			}
		}

	default:
		select {
		case q.trees <- tree:
			return accepted()
		case <-q.stopCh:
			q.drop("closed")
			return dropped(ErrSinkClosed)
		}
	}
}

func (q *Queue) drop(reason string) {
	q.dropped.Add(1)
	q.metrics.dropped.WithLabelValues(reason).Inc()
}

// Shutdown stops accepting trees, waits for queued ones to be processed,
// and returns early with ctx's error if ctx ends first.
func (q *Queue) Shutdown(ctx context.Context) error {
	if q.closed.CompareAndSwap(false, true) {
		// Release producers blocked on a full queue, then wait out in-flight sends.
		close(q.stopCh)
		q.mu.Lock()
		close(q.trees)
		q.mu.Unlock()
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("forestz: queue shutdown: %w", ctx.Err())
	}
}

// SetSyncMode enables synchronous processing for testing.
// When enabled, Submit processes trees directly without the channel.
// Must be called before the first Submit.
func (q *Queue) SetSyncMode(sync bool) {
	q.syncMode = sync
}

// Len returns the number of trees waiting for the processor.
func (q *Queue) Len() int { return len(q.trees) }

// Capacity returns the queue bound.
func (q *Queue) Capacity() int { return q.capacity }

// Policy returns the overflow policy.
func (q *Queue) Policy() Policy { return q.policy }

// Dropped returns how many trees were dropped or evicted.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Delivered returns how many trees the processor handled successfully.
func (q *Queue) Delivered() int64 { return q.delivered.Load() }

// Failed returns how many trees the processor failed on.
func (q *Queue) Failed() int64 { return q.failed.Load() }
