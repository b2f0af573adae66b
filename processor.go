package forestz

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Processor renders or stores a completed tree.
// Processors run on the Queue's background goroutine, never on the
// goroutines that produce spans.
type Processor interface {
	Process(tree *Node) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(tree *Node) error

// Process calls f(tree).
func (f ProcessorFunc) Process(tree *Node) error { return f(tree) }

// Discard is a Processor that ignores every tree.
var Discard Processor = ProcessorFunc(func(*Node) error { return nil })

// WithFallback returns a Processor that tries primary first and hands the
// tree to fallback if primary fails.
func WithFallback(primary, fallback Processor) Processor {
	return ProcessorFunc(func(tree *Node) error {
		err := primary.Process(tree)
		if err == nil {
			return nil
		}
		if ferr := fallback.Process(tree); ferr != nil {
			return errors.Join(err, ferr)
		}
		return nil
	})
}

// Formatter turns a tree into bytes.
// Implementations live in the render package.
type Formatter interface {
	Format(tree *Node) ([]byte, error)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(tree *Node) ([]byte, error)

// Format calls f(tree).
func (f FormatterFunc) Format(tree *Node) ([]byte, error) { return f(tree) }

// Printer is a Processor that formats each tree and writes it with a single
// Write call, so trees never interleave on the writer.
type Printer struct {
	formatter Formatter
	w         io.Writer
	mu        sync.Mutex
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(formatter Formatter, w io.Writer) *Printer {
	return &Printer{formatter: formatter, w: w}
}

// Process formats and writes the tree.
func (p *Printer) Process(tree *Node) error {
	buf, err := p.formatter.Format(tree)
	if err != nil {
		return fmt.Errorf("forestz: format %q: %w", tree.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(buf); err != nil {
		return fmt.Errorf("forestz: write %q: %w", tree.Name, err)
	}
	return nil
}
