package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_CloudLoggingKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "mountgate", nil)

	log.Info(context.Background(), "mount ready", "path", "/mnt/storage/.env")
	log.Critical(context.Background(), "mount never appeared")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "INFO", lines[0]["severity"])
	assert.Equal(t, "mount ready", lines[0]["message"])
	assert.Equal(t, "/mnt/storage/.env", lines[0]["path"])
	assert.Equal(t, "mountgate", lines[0]["service"])
	assert.NotContains(t, lines[0], "level")
	assert.NotContains(t, lines[0], "msg")

	assert.Equal(t, "CRITICAL", lines[1]["severity"])
}

func TestLogger_MinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "mountgate", nil)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARNING", lines[0]["severity"])
}

func TestLogger_EventsFireForCritical(t *testing.T) {
	var got []Record
	events := Events{
		Critical: func(_ context.Context, r Record) { got = append(got, r) },
	}

	var buf bytes.Buffer
	log := NewWithEvents(&buf, LevelInfo, "mountgate", nil, events)
	log.Error(context.Background(), "not critical")
	log.Critical(context.Background(), "degraded", "attempts", 10)

	require.Len(t, got, 1)
	assert.Equal(t, "degraded", got[0].Message)
	assert.Equal(t, LevelCritical, got[0].Level)
}

func TestLogger_TraceIDAppended(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "mountgate", func(context.Context) string { return "abc123" })

	log.Info(context.Background(), "traced")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "abc123", lines[0]["trace_id"])
}

func TestLoggerContext_AddsDynamicAttrs(t *testing.T) {
	var buf bytes.Buffer
	lc := NewLoggerContext(New(&buf, LevelInfo, "mountgate", nil))

	lc.Add("state", "awaiting_mount")
	lc.Info(context.Background(), "waiting")
	lc.Clear()
	lc.Info(context.Background(), "cleared")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "awaiting_mount", lines[0]["state"])
	assert.NotContains(t, lines[1], "state")
}

func TestLogger_SourcePointsAtCaller(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "mountgate", nil)
	lc := NewLoggerContext(log)

	ctx := context.Background()
	log.Info(ctx, "direct")
	lc.Debug(ctx, "ctx debug")
	lc.Info(ctx, "ctx info")
	lc.Warn(ctx, "ctx warn")
	lc.Error(ctx, "ctx error")
	lc.Critical(ctx, "ctx critical")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 6)
	for _, line := range lines {
		file, ok := line["file"].(string)
		require.True(t, ok, "record %q has no file attribute", line["message"])
		assert.True(t, strings.HasPrefix(file, "logger_test.go:"),
			"record %q attributed to %s", line["message"], file)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"debug", LevelDebug, false},
		{"WARNING", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"Critical", LevelCritical, false},
		{"verbose", LevelInfo, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
