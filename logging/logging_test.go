package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visualscript/testutil"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	pub := testutil.NewMockPublisher()
	l := NewLogger(slogger, WithGraphName("demo"), WithPublisher(pub))

	var seen []Entry
	l.OnLog.Subscribe(func(e Entry) { seen = append(seen, e) })

	l.Verbose("node-1", "verbose text")
	l.Info("node-1", "info text")
	l.Warn("node-2", "warn text")
	l.Error("node-3", "error text")

	require.Len(t, seen, 4)
	assert.Equal(t, []Level{LevelVerbose, LevelInfo, LevelWarn, LevelError},
		[]Level{seen[0].Level, seen[1].Level, seen[2].Level, seen[3].Level})
	assert.Equal(t, "demo", seen[2].Graph)
	assert.Equal(t, "node-2", seen[2].Source)

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "source=node-3")

	assert.Equal(t, 4, pub.Total())
	assert.Equal(t, 2, pub.Count("logs.demo.node-1"))
	errs := pub.Messages("logs.demo.node-3")
	require.Len(t, errs, 1)
	var entry Entry
	require.NoError(t, json.Unmarshal(errs[0], &entry))
	assert.Equal(t, "error text", entry.Message)
	assert.NotEmpty(t, entry.Timestamp)
}

func TestLogger_PublishFailureIsLoggedLocally(t *testing.T) {
	var buf bytes.Buffer
	pub := testutil.NewMockPublisher()
	pub.FailWith(errors.New("connection closed"))
	l := NewLogger(slog.New(slog.NewTextHandler(&buf, nil)), WithPublisher(pub))

	l.Info("src", "hello")
	assert.Contains(t, buf.String(), "Failed to publish log to NATS")
}

func TestLogger_PublishRate(t *testing.T) {
	var buf bytes.Buffer
	pub := testutil.NewMockPublisher()
	l := NewLogger(slog.New(slog.NewTextHandler(&buf, nil)), WithGraphName("demo"),
		WithPublisher(pub), WithPublishRate(0.001, 2))

	for range 5 {
		l.Info("spam", "tick")
	}
	assert.Equal(t, 2, pub.Count("logs.demo.spam"), "burst is published")
	assert.Equal(t, int64(3), l.Dropped())
	assert.Equal(t, 5, strings.Count(buf.String(), "msg=tick"), "every entry reaches slog")
}

func TestLogger_ZeroPublishRateIsUnlimited(t *testing.T) {
	pub := testutil.NewMockPublisher()
	l := NewLogger(nil, WithPublisher(pub), WithPublishRate(0, 0))
	assert.Nil(t, l.limiter)
	for range 10 {
		l.Info("src", "hello")
	}
	assert.Equal(t, 10, pub.Total())
}

func TestLogger_NilConnectionDisablesPublishing(t *testing.T) {
	var nc *nats.Conn
	l := NewLogger(nil, WithPublisher(nc))
	assert.Nil(t, l.publisher)
	assert.NotPanics(t, func() { l.Info("src", "hello") })
}

func TestSubject(t *testing.T) {
	tests := []struct {
		graph, source, want string
	}{
		{"demo", "node", "logs.demo.node"},
		{"my graph", "a.b", "logs.my_graph.a_b"},
		{"g", "*", "logs.g._"},
		{"", "", "logs._._"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(tt.graph, tt.source))
		})
	}
}
