package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visualscript/config"
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/testutil"
)

// syncBuffer is written by the loop goroutine and read by the test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func graphJSON(text string) string {
	return string(testutil.LifecycleGraph("hello", text, "bye"))
}

func writeGraph(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testRunner(t *testing.T, cfg *config.Config) (*Runner, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewRunner(cfg, logger)
	require.NoError(t, r.Setup(context.Background(), ""))
	return r, out
}

func TestRunner_RunsGraphUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Graph.Path = writeGraph(t, t.TempDir(), "hello.json", graphJSON("hi"))
	cfg.Engine.TickInterval = config.Duration(5 * time.Millisecond)
	r, out := testRunner(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	logs := out.String()
	assert.Contains(t, logs, "msg=hi")
	assert.Contains(t, logs, "msg=bye", "onEnd runs at shutdown")
	assert.Contains(t, logs, "graph=hello")
	assert.Less(t, strings.Index(logs, "msg=hi"), strings.Index(logs, "msg=bye"))
	assert.Contains(t, logs, `msg="Graph stopped"`)
	assert.True(t, r.health.AggregateHealth(appName).IsUnhealthy(), "a stopped graph is unhealthy")
}

func TestRunner_MetricsServerFailureStopsRun(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := config.Default()
	cfg.Graph.Path = writeGraph(t, t.TempDir(), "hello.json", graphJSON("hi"))
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = busy.Addr().(*net.TCPAddr).Port
	r, out := testRunner(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = r.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.NoError(t, ctx.Err(), "run ended before the deadline")
	assert.Contains(t, out.String(), `msg="Graph stopped"`)
}

func TestRunner_RefusesInvalidGraph(t *testing.T) {
	cfg := config.Default()
	cfg.Graph.Path = writeGraph(t, t.TempDir(), "loop.json", testutil.CycleGraph)
	cfg.Metrics.Enabled = true
	r, out := testRunner(t, cfg)

	_, err := r.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, out.String(), "Graph validation issue")

	result, err := r.Validate(context.Background())
	require.NoError(t, err, "validation reports issues without failing")
	assert.False(t, result.Valid())
	assert.NotEmpty(t, result.Errors)
}

func TestRunner_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		setup func(cfg *config.Config)
	}{
		{"no source", func(*config.Config) {}},
		{"missing file", func(cfg *config.Config) { cfg.Graph.Path = filepath.Join(dir, "nope.json") }},
		{"not a graph", func(cfg *config.Config) { cfg.Graph.Path = writeGraph(t, dir, "bad.json", `{"nodes": 3}`) }},
		{"unknown node type", func(cfg *config.Config) {
			cfg.Graph.Path = writeGraph(t, dir, "unknown.json", `{"nodes": [{"type": "no/such", "id": "x"}]}`)
		}},
		{"unknown store id", func(cfg *config.Config) { cfg.Graph.StoreID = "missing" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.setup(cfg)
			r, _ := testRunner(t, cfg)
			_, err := r.Load(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestRunner_ReloadsOnFileChange(t *testing.T) {
	cfg := config.Default()
	cfg.Graph.Path = writeGraph(t, t.TempDir(), "hello.json", graphJSON("first"))
	cfg.Graph.Watch = true
	r, out := testRunner(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Watching graph file") },
		2*time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(cfg.Graph.Path, []byte(graphJSON("second")), 0o600))
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "msg=second") },
		5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, out.String(), "msg=first")
}

func TestRunner_KeepsGraphWhenReloadFails(t *testing.T) {
	cfg := config.Default()
	cfg.Graph.Path = writeGraph(t, t.TempDir(), "hello.json", graphJSON("hi"))
	r, _ := testRunner(t, cfg)
	r.loop.Start()
	defer r.loop.Stop()

	require.NoError(t, r.Reload(context.Background()))
	require.NoError(t, os.WriteFile(cfg.Graph.Path, []byte(testutil.CycleGraph), 0o600))
	assert.Error(t, r.Reload(context.Background()))

	var name string
	r.loop.Do(func() { name = r.current.graph.Name })
	assert.Equal(t, "hello", name)

	r.reloadLogged(context.Background(), "test")
	status, ok := r.health.Get("graph")
	require.True(t, ok)
	assert.True(t, status.IsDegraded())
	assert.NotContains(t, status.Message, cfg.Graph.Path, "paths are not exposed")

	r.loop.Do(r.stop)
	status, _ = r.health.Get("graph")
	assert.True(t, status.IsUnhealthy())
}

func TestRunner_SaveAndRunStoredGraph(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Engine.TickInterval = config.Duration(5 * time.Millisecond)
	r, out := testRunner(t, cfg)

	doc, err := r.Save(ctx, writeGraph(t, dir, "ignored-name.json", graphJSON("stored")), "")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Name, "name comes from the graph document")
	assert.Equal(t, int64(1), doc.Version)

	updated, err := r.Save(ctx, writeGraph(t, dir, "v2.json", graphJSON("stored v2")), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, updated.ID)
	assert.Equal(t, int64(2), updated.Version)

	cfg.Graph.StoreID = doc.ID
	cfg.Graph.Watch = true
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- r.Run(runCtx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), `msg="stored v2"`) },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), r.version())

	_, err = r.Save(ctx, writeGraph(t, dir, "v3.json", graphJSON("stored v3")), doc.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), `msg="stored v3"`) },
		2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunner_LoadsWorldSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeGraph(t, dir, "world.yaml", `
components:
  position: {x: 0, y: 0}
entities:
  - components:
      position: {x: 1, y: 2}
`)
	cfg := config.Default()
	out := &syncBuffer{}
	r := NewRunner(cfg, slog.New(slog.NewTextHandler(out, nil)))
	require.NoError(t, r.Setup(context.Background(), path))
	assert.Contains(t, r.world.ComponentNames(), "position")
	assert.Contains(t, out.String(), "entities=1")

	r = NewRunner(cfg, nil)
	assert.Error(t, r.Setup(context.Background(), filepath.Join(dir, "missing.yaml")))
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	cli, err := parseFlags([]string{"--log-level", "debug", "--tick", "50ms", "--watch", "graph.json"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "graph.json", cli.GraphPath)

	cfg := config.Default()
	cfg.Graph.StoreID = "from-config"
	cfg.Log.Format = "json"
	cli.apply(cfg)
	assert.Equal(t, "graph.json", cfg.Graph.Path)
	assert.Empty(t, cfg.Graph.StoreID, "a graph flag replaces the configured store id")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset flags keep config values")
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.TickInterval.Std())
	assert.True(t, cfg.Graph.Watch)

	cli, err = parseFlags([]string{"--nats-url", "nats://example:4222", "--metrics-port", "9100"}, &stderr)
	require.NoError(t, err)
	cfg = config.Default()
	cli.apply(cfg)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://example:4222", cfg.NATS.URL)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)

	_, err = parseFlags([]string{"--no-such-flag"}, &stderr)
	assert.Error(t, err)
}

func TestRun_VersionAndPrintConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "visualscript version "+Version)

	stdout.Reset()
	t.Setenv("VISUALSCRIPT_ENGINE_MAX_STEPS", "42")
	require.NoError(t, run([]string{"--print-config", "yaml", "--log-level", "warn"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "max_steps: 42")
	assert.Contains(t, stdout.String(), "level: warn")

	err := run([]string{"--help"}, &stdout, &stderr)
	assert.True(t, stderrors.Is(err, flag.ErrHelp))
	assert.Contains(t, stderr.String(), "Examples:")
}

func TestRun_RejectsBadConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--log-level", "loud", "--print-config", "json"}, &stdout, &stderr)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))

	err = run([]string{"--save"}, &stdout, &stderr)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig), "save needs a graph and nats")
}

func TestRun_ValidateGraph(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	good := writeGraph(t, dir, "hello.json", graphJSON("hi"))
	require.NoError(t, run([]string{"--validate", good}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "graph is valid")

	stdout.Reset()
	bad := writeGraph(t, dir, "loop.json", testutil.CycleGraph)
	err := run([]string{"--validate", bad}, &stdout, &stderr)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, stdout.String(), "error")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger("debug", "json", &buf)
	logger.Debug("hello")
	assert.Contains(t, buf.String(), `"service":"visualscript"`)
	assert.Contains(t, buf.String(), `"source"`)

	buf.Reset()
	logger = setupLogger("warn", "text", &buf)
	logger.Info("dropped")
	assert.Empty(t, buf.String())
}
