package forestz

import (
	"testing"
	"time"
)

func sampleNode() *Node {
	return &Node{
		Kind:     KindSpan,
		Name:     "root",
		Duration: 10 * time.Millisecond,
		Inner:    4 * time.Millisecond,
		Fields:   map[string]any{"k": "v"},
		Children: []*Node{
			{Kind: KindEvent, Name: "e1"},
			{
				Kind:     KindSpan,
				Name:     "child",
				Duration: 4 * time.Millisecond,
				Children: []*Node{{Kind: KindEvent, Name: "e2"}},
			},
		},
	}
}

func TestNodeWalk(t *testing.T) {
	var visited []string
	var depths []int
	sampleNode().Walk(func(n *Node, depth int) bool {
		visited = append(visited, n.Name)
		depths = append(depths, depth)
		return true
	})

	want := []string{"root", "e1", "child", "e2"}
	if len(visited) != len(want) {
		t.Fatalf("Expected %v, got %v", want, visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, visited[i])
		}
	}
	if depths[3] != 2 {
		t.Errorf("Expected e2 at depth 2, got %d", depths[3])
	}
}

func TestNodeWalkSkip(t *testing.T) {
	count := 0
	sampleNode().Walk(func(n *Node, _ int) bool {
		count++
		return n.Name != "child"
	})
	if count != 3 {
		t.Errorf("Expected child's subtree to be skipped, visited %d", count)
	}
}

func TestNodeCountAndBase(t *testing.T) {
	n := sampleNode()
	if n.Count() != 4 {
		t.Errorf("Expected 4 nodes, got %d", n.Count())
	}
	if n.Base() != 6*time.Millisecond {
		t.Errorf("Expected base 6ms, got %v", n.Base())
	}

	n.Inner = 20 * time.Millisecond
	if n.Base() != 0 {
		t.Errorf("Expected base clamped to 0, got %v", n.Base())
	}
}

func TestNodeClone(t *testing.T) {
	orig := sampleNode()
	c := orig.Clone()

	c.Fields["k"] = "changed"
	c.Children[1].Children[0].Name = "changed"
	c.Children = append(c.Children, &Node{Name: "extra"})

	if orig.Fields["k"] != "v" {
		t.Error("Clone shares fields with the original")
	}
	if orig.Children[1].Children[0].Name != "e2" {
		t.Error("Clone shares descendants with the original")
	}
	if len(orig.Children) != 2 {
		t.Error("Clone shares the children slice with the original")
	}
}

func TestPercentOf(t *testing.T) {
	tests := []struct {
		name          string
		child, parent time.Duration
		want          float64
	}{
		{"quarter", 25, 100, 25},
		{"whole", 100, 100, 100},
		{"over", 150, 100, 100},
		{"negative", -5, 100, 0},
		{"zero parent", 0, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentOf(tt.child, tt.parent); got != tt.want {
				t.Errorf("percentOf(%d, %d) = %v, want %v", tt.child, tt.parent, got, tt.want)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	for l := LevelTrace; l <= LevelError; l++ {
		parsed, err := ParseLevel(l.String())
		if err != nil || parsed != l {
			t.Errorf("Level %v does not round-trip: %v %v", l, parsed, err)
		}
		if l.Icon() == "?" {
			t.Errorf("Level %v has no icon", l)
		}
	}
	if l, err := ParseLevel(" WARNING "); err != nil || l != LevelWarn {
		t.Errorf("Expected warning alias, got %v %v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
	if got := Level(42).String(); got != "level(42)" {
		t.Errorf("Unexpected out-of-range name %q", got)
	}

	var l Level
	if err := l.UnmarshalText([]byte("debug")); err != nil || l != LevelDebug {
		t.Errorf("UnmarshalText: %v %v", l, err)
	}
}

func TestKindText(t *testing.T) {
	var k Kind
	if err := k.UnmarshalText([]byte("event")); err != nil || k != KindEvent {
		t.Errorf("UnmarshalText: %v %v", k, err)
	}
	if err := k.UnmarshalText([]byte("blob")); err == nil {
		t.Error("Expected error for unknown kind")
	}
	if text, _ := KindSpan.MarshalText(); string(text) != "span" {
		t.Errorf("Expected span, got %s", text)
	}
}
