package forestz

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTagString(t *testing.T) {
	tests := []struct {
		tag  Tag
		want string
		icon string
	}{
		{NewTag("", LevelInfo), "info", "💬"},
		{NewTag("request", LevelError), "request.error", "🚨"},
		{Tag{Prefix: "security", Label: "critical", Icon: "🔐"}, "security.critical", "🔐"},
	}
	for _, tt := range tests {
		if got := tt.tag.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
		if tt.tag.Icon != tt.icon {
			t.Errorf("%s: expected icon %q, got %q", tt.want, tt.icon, tt.tag.Icon)
		}
	}
}

func TestTagUnmarshalText(t *testing.T) {
	var tag Tag
	if err := tag.UnmarshalText([]byte("request.error")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tag != NewTag("request", LevelError) {
		t.Errorf("Expected request.error level tag, got %+v", tag)
	}

	if err := tag.UnmarshalText([]byte("critical")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tag.Prefix != "" || tag.Label != "critical" || tag.Icon != "" {
		t.Errorf("Expected bare custom label, got %+v", tag)
	}
}

func TestEngineTagger(t *testing.T) {
	tagger := func(event *Node) (Tag, bool) {
		target, _ := event.Fields["target"].(string)
		switch {
		case target == "security" && event.Level == LevelError:
			return Tag{Prefix: target, Label: "critical", Icon: "🔐"}, true
		case target == "admin" || target == "request":
			return NewTag(target, event.Level), true
		}
		return Tag{}, false
	}
	e, capture, _, _ := newTestEngine(t, WithTagger(tagger))

	_ = e.OpenSpan(1, NoParent, "kanidm", LevelInfo, nil)
	_ = e.RecordEvent(1, LevelInfo, "some info for the admin", map[string]any{"target": "admin"})
	_ = e.RecordEvent(1, LevelError, "the request timed out", map[string]any{"target": "request"})
	_ = e.RecordEvent(1, LevelError, "the db has been breached", map[string]any{"target": "security"})
	_ = e.RecordEvent(1, LevelInfo, "no tags here", nil)
	_ = e.CloseSpan(1, epoch)

	want := []string{"admin.info", "request.error", "security.critical", ""}
	children := capture.Export()[0].Children
	if len(children) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(children))
	}
	for i, c := range children {
		got := ""
		if c.Tag != nil {
			got = c.Tag.String()
		}
		if got != want[i] {
			t.Errorf("%s: expected tag %q, got %q", c.Name, want[i], got)
		}
	}
}

func TestEngineImmediateEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug - 4}))
	e, capture, _, _ := newTestEngine(t, WithLogger(logger))

	_ = e.OpenSpan(1, NoParent, "root", LevelInfo, nil)
	_ = e.OpenSpan(2, 1, "inner", LevelInfo, nil)
	_ = e.RecordEvent(2, LevelWarn, "disk full", map[string]any{ImmediateField: true, "dev": "sda"})
	_ = e.RecordEvent(2, LevelInfo, "quiet", map[string]any{ImmediateField: false})

	// Written before either span closes.
	out := buf.String()
	for _, want := range []string{`level=WARN`, `msg="IMMEDIATE disk full"`, `path="root > inner"`, `dev=sda`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in immediate output, got %q", want, out)
		}
	}
	if strings.Contains(out, "quiet") {
		t.Errorf("Expected only immediate events logged, got %q", out)
	}

	_ = e.CloseSpan(2, epoch)
	_ = e.CloseSpan(1, epoch)
	events := capture.Export()[0].Children[0].Children
	if len(events) != 2 {
		t.Fatalf("Expected both events in the tree, got %d", len(events))
	}
	for _, ev := range events {
		if _, ok := ev.Fields[ImmediateField]; ok {
			t.Errorf("%s: expected immediate flag stripped, got %v", ev.Name, ev.Fields)
		}
	}
	if events[0].Fields["dev"] != "sda" {
		t.Errorf("Expected dev field kept, got %v", events[0].Fields)
	}
}
