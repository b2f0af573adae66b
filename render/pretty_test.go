package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/forestz"
)

func event(level forestz.Level, msg string, fields map[string]any) *forestz.Node {
	return &forestz.Node{Kind: forestz.KindEvent, Level: level, Name: msg, Fields: fields}
}

func TestPrettyFlatSpan(t *testing.T) {
	tree := &forestz.Node{
		Kind:       forestz.KindSpan,
		Name:       "counting_evens",
		Level:      forestz.LevelInfo,
		Duration:   1200 * time.Microsecond,
		Percentage: 100,
		Children: []*forestz.Node{
			event(forestz.LevelInfo, "0", nil),
			event(forestz.LevelInfo, "2", nil),
			event(forestz.LevelInfo, "4", nil),
		},
	}

	out, err := NewPretty().Format(tree)
	require.NoError(t, err)

	want := strings.Join([]string{
		"INFO     counting_evens [ 1.20ms | 100.00% ]",
		"INFO     ┝━ 💬 [info]: 0",
		"INFO     ┝━ 💬 [info]: 2",
		"INFO     ┕━ 💬 [info]: 4",
		"",
	}, "\n")
	assert.Equal(t, want, string(out))
}

func TestPrettyTaggedEvents(t *testing.T) {
	breach := event(forestz.LevelError, "the db has been breached", nil)
	breach.Tag = &forestz.Tag{Prefix: "security", Label: "critical", Icon: "🔐"}
	admin := event(forestz.LevelInfo, "some info for the admin", nil)
	tag := forestz.NewTag("admin", forestz.LevelInfo)
	admin.Tag = &tag

	tree := &forestz.Node{
		Kind:       forestz.KindSpan,
		Name:       "kanidm",
		Level:      forestz.LevelInfo,
		Duration:   time.Millisecond,
		Percentage: 100,
		Children:   []*forestz.Node{admin, breach, event(forestz.LevelInfo, "no tags here", nil)},
	}

	out, err := NewPretty().Format(tree)
	require.NoError(t, err)

	want := strings.Join([]string{
		"INFO     kanidm [ 1.00ms | 100.00% ]",
		"INFO     ┝━ 💬 [admin.info]: some info for the admin",
		"ERROR    ┝━ 🔐 [security.critical]: the db has been breached",
		"INFO     ┕━ 💬 [info]: no tags here",
		"",
	}, "\n")
	assert.Equal(t, want, string(out))
}

func TestPrettyNestedSpans(t *testing.T) {
	tree := &forestz.Node{
		Kind:       forestz.KindSpan,
		Name:       "outer",
		Level:      forestz.LevelInfo,
		Duration:   10 * time.Millisecond,
		Inner:      6 * time.Millisecond,
		Percentage: 100,
		Children: []*forestz.Node{
			{
				Kind:       forestz.KindSpan,
				Name:       "inner",
				Level:      forestz.LevelInfo,
				Duration:   6 * time.Millisecond,
				Percentage: 60,
				Children:   []*forestz.Node{event(forestz.LevelDebug, "hi", nil)},
			},
			event(forestz.LevelWarn, "after", nil),
		},
	}

	out, err := NewPretty().Format(tree)
	require.NoError(t, err)

	want := strings.Join([]string{
		"INFO     outer [ 10.0ms | 40.00% / 100.00% ]",
		"INFO     ┝━ inner [ 6.00ms | 60.00% ]",
		"DEBUG    │  ┕━ 🐛 [debug]: hi",
		"WARN     ┕━ 🚧 [warn]: after",
		"",
	}, "\n")
	assert.Equal(t, want, string(out))
}

func TestPrettyClosedBranchLeavesBlankIndent(t *testing.T) {
	tree := &forestz.Node{
		Kind: forestz.KindSpan, Name: "root", Level: forestz.LevelInfo, Percentage: 100,
		Children: []*forestz.Node{
			{
				Kind: forestz.KindSpan, Name: "last", Level: forestz.LevelInfo, Percentage: 100,
				Children: []*forestz.Node{
					event(forestz.LevelInfo, "a", nil),
					event(forestz.LevelInfo, "b", nil),
				},
			},
		},
	}

	out, err := NewPretty().Format(tree)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "INFO     ┕━ last [ 0.00ns | 100.00% ]", lines[1])
	assert.Equal(t, "INFO        ┝━ 💬 [info]: a", lines[2])
	assert.Equal(t, "INFO        ┕━ 💬 [info]: b", lines[3])
}

func TestPrettyFieldsAndAnnotations(t *testing.T) {
	tree := &forestz.Node{
		Kind:       forestz.KindSpan,
		Name:       "job",
		Level:      forestz.LevelError,
		Duration:   26 * time.Microsecond,
		Percentage: 100,
		Truncated:  true,
		Detached:   true,
		Fields:     map[string]any{"worker": 3},
		Children: []*forestz.Node{
			event(forestz.LevelTrace, "tick", map[string]any{"b": 2, "a": "x"}),
		},
	}

	out, err := NewPretty().Format(tree)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ERROR    job [ 26.0µs | 100.00% ] (truncated) (detached) | worker: 3", lines[0])
	assert.Equal(t, "TRACE    ┕━ 📍 [trace]: tick | a: x | b: 2", lines[1])
}

func TestPrettyPrefixes(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tree := &forestz.Node{
		Kind:       forestz.KindEvent,
		Name:       "orphan",
		Level:      forestz.LevelInfo,
		StartedAt:  started,
		Percentage: 100,
	}

	out, err := NewPretty(WithTimestamps(), WithTraceIDs()).Format(tree)
	require.NoError(t, err)

	line := string(out)
	assert.True(t, strings.HasPrefix(line, tree.TraceID.String()+" "))
	assert.Contains(t, line, started.Format(time.RFC3339Nano))
	assert.True(t, strings.HasSuffix(line, "💬 [info]: orphan\n"))
}

func TestDurationString(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0.00ns"},
		{7, "7.00ns"},
		{512, "512ns"},
		{26 * time.Microsecond, "26.0µs"},
		{1200 * time.Microsecond, "1.20ms"},
		{4590 * time.Microsecond, "4.59ms"},
		{250 * time.Millisecond, "250ms"},
		{3 * time.Second, "3.00s"},
		{2 * time.Hour, "7200s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DurationString(tt.in))
		})
	}
}
