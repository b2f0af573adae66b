package forestz

// Sink accepts completed root trees from the engine.
// Submit must not perform formatting or I/O on the calling goroutine.
type Sink interface {
	Submit(root *Node) SubmitResult
}

// SubmitStatus is the outcome of a Submit call.
type SubmitStatus uint8

const (
	// Accepted means the sink took ownership of the tree.
	Accepted SubmitStatus = iota
	// Dropped means the tree was discarded; Reason says why.
	Dropped
)

func (s SubmitStatus) String() string {
	if s == Dropped {
		return "dropped"
	}
	return "accepted"
}

// SubmitResult reports what a Sink did with a tree.
type SubmitResult struct {
	Reason error
	Status SubmitStatus
}

// Accepted reports whether the sink took the tree.
func (r SubmitResult) Accepted() bool { return r.Status == Accepted }

func accepted() SubmitResult { return SubmitResult{Status: Accepted} }

func dropped(reason error) SubmitResult {
	return SubmitResult{Status: Dropped, Reason: reason}
}

// SubmitFunc adapts a function to the Sink interface.
type SubmitFunc func(root *Node) SubmitResult

// Submit calls f(root).
func (f SubmitFunc) Submit(root *Node) SubmitResult { return f(root) }

// DiscardSink accepts and forgets every tree.
var DiscardSink Sink = SubmitFunc(func(*Node) SubmitResult { return accepted() })
