package integration

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"testing"

	"github.com/zoobzio/forestz"
)

// TestCountingTasksRenderAsSeparateBlocks runs the evens/odds scenario on two
// goroutines that yield after every event.
func TestCountingTasksRenderAsSeparateBlocks(t *testing.T) {
	h := NewHarness(t)

	var wg sync.WaitGroup
	for start, name := range []string{"counting_evens", "counting_odds"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, span := h.Engine.StartSpan(context.Background(), name)
			defer span.Finish()
			for i := start; i < 6; i += 2 {
				_ = span.Event(forestz.LevelInfo, strconv.Itoa(i), nil)
				runtime.Gosched()
			}
		}()
	}
	wg.Wait()

	trees := h.WaitForTrees(2)
	byName := map[string]*forestz.Node{}
	for _, tree := range trees {
		byName[tree.Name] = tree
	}
	want := map[string][]string{
		"counting_evens": {"0", "2", "4"},
		"counting_odds":  {"1", "3", "5"},
	}
	for name, children := range want {
		tree := byName[name]
		if tree == nil {
			t.Fatalf("Missing tree %s", name)
		}
		got := ChildNames(tree)
		if len(got) != len(children) {
			t.Fatalf("%s: expected %v, got %v", name, children, got)
		}
		for i := range children {
			if got[i] != children[i] {
				t.Errorf("%s: expected %v, got %v", name, children, got)
			}
		}
		if tree.Percentage != 100 {
			t.Errorf("%s: expected 100%%, got %v", name, tree.Percentage)
		}
	}

	if lines := h.Lines(); len(lines) != 8 {
		t.Errorf("Expected 8 rendered lines, got %d", len(lines))
	}
	h.AssertContiguous()
}

// TestManyTasksStayCoherent interleaves many nested tasks and checks the
// rendered output block by block.
func TestManyTasksStayCoherent(t *testing.T) {
	h := NewHarness(t)

	const tasks = 32
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(task int) {
			defer wg.Done()
			ctx, root := h.Engine.StartSpan(context.Background(), "task-"+strconv.Itoa(task))
			for step := 0; step < 3; step++ {
				stepCtx, s := h.Engine.StartSpan(ctx, "step-"+strconv.Itoa(step))
				for j := 0; j < 5; j++ {
					_ = h.Engine.Event(stepCtx, forestz.LevelDebug, strconv.Itoa(j), map[string]any{"task": task})
					runtime.Gosched()
				}
				s.Finish()
			}
			root.Finish()
		}(i)
	}
	wg.Wait()

	trees := h.WaitForTrees(tasks)
	for _, tree := range trees {
		if got := tree.Count(); got != 1+3+15 {
			t.Errorf("%s: expected 19 nodes, got %d", tree.Name, got)
		}
		AssertPercentages(t, tree)
	}
	h.AssertContiguous()
}

// TestSpanMigratesBetweenGoroutines closes a span on a different goroutine
// from the one that opened it, as a task hopping worker threads would.
func TestSpanMigratesBetweenGoroutines(t *testing.T) {
	h := NewHarness(t)

	ctx, _ := h.Engine.StartSpan(context.Background(), "migrating")
	toSecond := make(chan context.Context)
	toThird := make(chan context.Context)
	done := make(chan struct{})

	go func() {
		c := <-toSecond
		_ = h.Engine.Event(c, forestz.LevelInfo, "on worker 2", nil)
		toThird <- c
	}()
	go func() {
		c := <-toThird
		_ = h.Engine.Event(c, forestz.LevelInfo, "on worker 3", nil)
		forestz.SpanFromContext(c).Finish()
		close(done)
	}()

	_ = h.Engine.Event(ctx, forestz.LevelInfo, "on worker 1", nil)
	toSecond <- ctx
	<-done

	trees := h.WaitForTrees(1)
	got := ChildNames(trees[0])
	want := []string{"on worker 1", "on worker 2", "on worker 3"}
	if len(got) != 3 {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
}
