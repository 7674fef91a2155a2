package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/visualscript/config"
	"github.com/c360/visualscript/ecs"
	"github.com/c360/visualscript/engine"
	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/flowgraph"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/graphio"
	"github.com/c360/visualscript/graphstore"
	"github.com/c360/visualscript/health"
	"github.com/c360/visualscript/logging"
	"github.com/c360/visualscript/metric"
	"github.com/c360/visualscript/natsclient"
	"github.com/c360/visualscript/pkg/clock"
	"github.com/c360/visualscript/pkg/retry"
	"github.com/c360/visualscript/pkg/tlsutil"
	"github.com/c360/visualscript/profiles"
	"github.com/c360/visualscript/profiles/core"
	"github.com/c360/visualscript/profiles/scene"
	"github.com/c360/visualscript/profiles/script"
)

// Runner hosts one graph at a time on an event loop. Everything that touches the
// graph, its engine or the ECS world runs on the loop goroutine.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	loop    *clock.Loop
	world   *ecs.World
	scene   *scene.MemoryScene
	metrics *metric.MetricsRegistry
	nats    *natsclient.Client
	store   *graphstore.Store
	health  *health.Monitor

	// loop-owned
	current *running
}

// running is the graph currently executing
type running struct {
	graph     *graph.Graph
	engine    *engine.Engine
	lifecycle *core.LifecycleEventEmitter
	version   int64
	lastTick  time.Time
	stopTick  func()
}

// loaded is a graph built from its source, not yet running
type loaded struct {
	graph     *graph.Graph
	lifecycle *core.LifecycleEventEmitter
	result    *flowgraph.ValidationResult
	version   int64
}

// NewRunner creates a runner for cfg. Call Setup before loading graphs.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger,
		loop:   clock.NewLoop(),
		world:  ecs.NewWorld(ecs.WithLogger(logger)),
		scene:  scene.NewMemoryScene(),
		health: health.NewMonitor(),
	}
	if cfg.Metrics.Enabled {
		r.metrics = metric.NewMetricsRegistry()
	}
	return r
}

func (r *Runner) coreMetrics() *metric.Metrics {
	if r.metrics == nil {
		return nil
	}
	return r.metrics.CoreMetrics()
}

// Setup connects to NATS and opens the graph store when enabled, and loads the
// ECS world snapshot at worldPath when given
func (r *Runner) Setup(ctx context.Context, worldPath string) error {
	if worldPath != "" {
		if err := r.loadWorld(worldPath); err != nil {
			return err
		}
	}

	if !r.cfg.NATS.Enabled {
		opts := []graphstore.Option{graphstore.WithLogger(r.logger)}
		if m := r.coreMetrics(); m != nil {
			opts = append(opts, graphstore.WithMetrics(m))
		}
		r.store = graphstore.NewMemory(opts...)
		return nil
	}

	client, err := r.connect(ctx)
	if err != nil {
		return err
	}
	r.nats = client
	r.health.Probe("nats", func() health.Status {
		if client.IsHealthy() {
			return health.NewHealthy("nats", "connected")
		}
		return health.NewUnhealthy("nats", client.Status().String())
	})

	opts := []graphstore.Option{graphstore.WithLogger(r.logger)}
	if m := r.coreMetrics(); m != nil {
		opts = append(opts, graphstore.WithMetrics(m))
	}
	store, err := graphstore.Open(ctx, client, r.cfg.NATS.Bucket, opts...)
	if err != nil {
		return errors.Wrap(err, "Runner", "Setup", "open graph store")
	}
	r.store = store
	return nil
}

func (r *Runner) connect(ctx context.Context) (*natsclient.Client, error) {
	nc := r.cfg.NATS
	opts := []natsclient.Option{
		natsclient.WithLogger(r.logger),
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithReconnectWait(nc.ReconnectWait.Std()),
		natsclient.WithReconnectCallback(func() {
			r.logger.Info("Graph store connection restored", "bucket", nc.Bucket)
		}),
	}
	if m := r.coreMetrics(); m != nil {
		opts = append(opts, natsclient.WithMetrics(m))
	}
	if nc.Username != "" {
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.Token != "" {
		opts = append(opts, natsclient.WithToken(nc.Token))
	}
	tlsConfig, err := tlsutil.LoadClientTLSConfig(nc.TLS)
	if err != nil {
		return nil, err
	}
	opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	client, err := natsclient.NewClient(nc.URL, opts...)
	if err != nil {
		return nil, err
	}

	cfg := retry.Quick()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.logger.Warn("NATS connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	if err := retry.Do(ctx, cfg, func() error { return client.Connect(ctx) }); err != nil {
		return nil, errors.Wrap(err, "Runner", "connect", "connect to "+nc.URL)
	}
	return client, nil
}

func (r *Runner) loadWorld(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapInvalid(err, "Runner", "loadWorld", "read "+path)
	}
	snapshot, err := ecs.ParseSnapshot(path, data)
	if err != nil {
		return err
	}
	entities, err := r.world.Load(snapshot)
	if err != nil {
		return errors.Wrap(err, "Runner", "loadWorld", "load "+path)
	}
	r.logger.Info("Loaded world snapshot", "path", path,
		"components", len(r.world.ComponentNames()), "entities", len(entities))
	return nil
}

// Close releases the NATS connection
func (r *Runner) Close(ctx context.Context) error {
	if r.nats == nil {
		return nil
	}
	return r.nats.Close(ctx)
}

// registry builds a fresh registry for one graph load, bound to lc and the
// runner's loop, scene and world
func (r *Runner) registry(graphName string, lc *core.LifecycleEventEmitter) (*graph.Registry, error) {
	logOpts := []logging.Option{logging.WithGraphName(graphName)}
	if r.cfg.NATS.PublishLogs && r.nats != nil {
		logOpts = append(logOpts,
			logging.WithPublisher(r.nats),
			logging.WithPublishRate(r.cfg.NATS.PublishRate, r.cfg.NATS.PublishBurst))
	}
	return profiles.RegisterAll(nil, profiles.Options{
		Core: []core.Option{
			core.WithLogger(logging.NewLogger(r.logger, logOpts...)),
			core.WithLifecycle(lc),
			core.WithScheduler(r.loop),
		},
		Scene: []scene.Option{scene.WithScene(r.scene)},
		Script: []script.Option{
			script.WithTimeout(r.cfg.Engine.ScriptTimeout.Std()),
			script.WithCacheSize(r.cfg.Engine.ScriptCacheSize),
		},
		World: r.world,
	})
}

// Load reads and builds the configured graph. Validation errors fail the load.
func (r *Runner) Load(ctx context.Context) (*loaded, error) {
	l, err := r.load(ctx)
	if m := r.coreMetrics(); m != nil {
		m.RecordGraphLoad(err == nil)
	}
	return l, err
}

func (r *Runner) load(ctx context.Context) (*loaded, error) {
	l, err := r.build(ctx)
	if err != nil {
		return nil, err
	}
	for _, issue := range l.result.Issues() {
		if m := r.coreMetrics(); m != nil {
			m.RecordValidationIssue(issue.Type, issue.Severity)
		}
		r.logger.Warn("Graph validation issue", "graph", l.graph.Name, "type", issue.Type,
			"severity", issue.Severity, "node_id", issue.NodeID, "message", issue.Message)
	}
	if !l.result.Valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d validation errors", errors.ErrInvalidData, len(l.result.Errors)),
			"Runner", "load", "validate "+l.graph.Name)
	}
	return l, nil
}

// build reads the configured graph source and builds it with a fresh registry
func (r *Runner) build(ctx context.Context) (*loaded, error) {
	lc := core.NewLifecycleEventEmitter()

	var (
		g       *graph.Graph
		result  *flowgraph.ValidationResult
		version int64
	)
	switch {
	case r.cfg.Graph.StoreID != "":
		doc, err := r.store.Get(ctx, r.cfg.Graph.StoreID)
		if err != nil {
			return nil, err
		}
		reg, err := r.registry(doc.Name, lc)
		if err != nil {
			return nil, err
		}
		g, result, err = doc.Build(reg, r.logger)
		if err != nil {
			return nil, err
		}
		version = doc.Version
	case r.cfg.Graph.Path != "":
		data, err := os.ReadFile(r.cfg.Graph.Path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Runner", "build", "read "+r.cfg.Graph.Path)
		}
		if err := graphio.ValidateDocument(data); err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(r.cfg.Graph.Path), filepath.Ext(r.cfg.Graph.Path))
		reg, err := r.registry(name, lc)
		if err != nil {
			return nil, err
		}
		g, result, err = graphio.Load(data, reg, r.logger)
		if err != nil {
			return nil, err
		}
		if g.Name == "" {
			g.Name = name
		}
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no graph path or store id", errors.ErrInvalidConfig), "Runner", "build", "graph source")
	}

	return &loaded{graph: g, lifecycle: lc, result: result, version: version}, nil
}

// start replaces the running graph with l. It must run on the loop.
func (r *Runner) start(l *loaded) error {
	r.stop()

	engine.UnregisterMetrics(r.metrics)
	eng, err := engine.New(l.graph,
		engine.WithLogger(r.logger),
		engine.WithMaxSteps(r.cfg.Engine.MaxSteps),
		engine.WithMetrics(r.metrics))
	if err != nil {
		return err
	}
	eng.OnNodeError.Subscribe(func(ne *engine.NodeError) {
		r.logger.Error("Node failed", "graph", l.graph.Name, "node_id", ne.NodeID,
			"node_type", ne.NodeType, "error", ne.Cause)
	})

	cur := &running{graph: l.graph, engine: eng, lifecycle: l.lifecycle, version: l.version}
	r.current = cur

	now := r.loop.Now()
	eng.Start()
	cur.lastTick = now
	l.lifecycle.Start(now)
	r.burst()
	cur.stopTick = r.loop.Every(r.cfg.Engine.TickInterval.Std(), r.tick)

	r.health.UpdateHealthy("graph", "running "+l.graph.Name)
	r.logger.Info("Graph started", "graph", l.graph.Name, "nodes", len(l.graph.Nodes()))
	return nil
}

// tick emits one lifecycle frame, executes the ECS systems and drains the engine
func (r *Runner) tick() {
	cur := r.current
	if cur == nil {
		return
	}
	now := r.loop.Now()
	delta := now.Sub(cur.lastTick)
	cur.lastTick = now

	cur.lifecycle.TickAt(now)
	r.world.Execute(delta)
	r.burst()
}

func (r *Runner) burst() {
	if r.current == nil {
		return
	}
	if _, err := r.current.engine.ExecuteAllSync(r.cfg.Engine.MaxSteps); err != nil {
		r.logger.Warn("Execution burst aborted", "graph", r.current.graph.Name, "error", err)
	}
}

// stop ends and disposes the running graph. It must run on the loop.
func (r *Runner) stop() {
	cur := r.current
	if cur == nil {
		return
	}
	cur.stopTick()

	// onEnd flows run before teardown
	cur.lifecycle.End()
	r.burst()
	r.current = nil

	cur.engine.Dispose()
	r.health.UpdateUnhealthy("graph", "stopped "+cur.graph.Name)
	r.logger.Info("Graph stopped", "graph", cur.graph.Name, "steps", cur.engine.Steps())
}

// Reload loads the configured graph and swaps it in. The running graph is kept
// when the load fails.
func (r *Runner) Reload(ctx context.Context) error {
	l, err := r.Load(ctx)
	if err != nil {
		return err
	}
	var startErr error
	if !r.loop.Do(func() { startErr = r.start(l) }) {
		return errors.WrapFatal(fmt.Errorf("event loop stopped"), "Runner", "Reload", "start graph")
	}
	return startErr
}

// version reports the store version of the running graph, 0 for files
func (r *Runner) version() int64 {
	var v int64
	r.loop.Do(func() {
		if r.current != nil {
			v = r.current.version
		}
	})
	return v
}

// Run starts the loop and the configured graph, and blocks until ctx is done or
// the metrics server fails
func (r *Runner) Run(ctx context.Context) error {
	r.loop.Start()
	defer r.loop.Stop()

	if err := r.Reload(ctx); err != nil {
		return err
	}
	defer r.loop.Do(r.stop)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.cfg.Graph.Watch {
		if err := r.watch(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if r.metrics != nil {
		srv := metric.NewServer(r.cfg.Metrics.Port, r.cfg.Metrics.Path, r.metrics)
		srv.SetHealthHandler(r.health.Handler(appName))
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			return srv.Stop()
		})
		r.logger.Info("Serving metrics", "address", srv.Address())
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

// Validate loads the configured graph and returns its validation result
func (r *Runner) Validate(ctx context.Context) (*flowgraph.ValidationResult, error) {
	l, err := r.build(ctx)
	if err != nil {
		return nil, err
	}
	return l.result, nil
}

// Save writes the graph file at path to the store, updating id when it is set,
// and returns the stored document
func (r *Runner) Save(ctx context.Context, path, id string) (*graphstore.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Runner", "Save", "read "+path)
	}
	doc := &graphstore.Document{
		ID:    id,
		Name:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Graph: data,
	}
	if parsed, err := graphio.Decode(bytes.NewReader(data)); err == nil && parsed.Name != "" {
		doc.Name = parsed.Name
	}

	if id == "" {
		if err := r.store.Create(ctx, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	current, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Version = current.Version
	doc.Description = current.Description
	if err := r.store.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
