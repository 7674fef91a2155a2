package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/metric"
)

// DefaultMaxSteps bounds a synchronous burst when no limit is configured
const DefaultMaxSteps = 10000

// Engine schedules fibers over a graph. It is single-threaded: every method, node
// behavior and timer callback must run on the same goroutine.
type Engine struct {
	graph    *graph.Graph
	logger   *slog.Logger
	metrics  *engineMetrics
	maxSteps int

	// OnNodeExecutionStart and OnNodeExecutionEnd bracket every node body the
	// engine runs. OnNodeError fires for recovered node failures.
	OnNodeExecutionStart graph.Emitter[*graph.Node]
	OnNodeExecutionEnd   graph.Emitter[*graph.Node]
	OnNodeError          graph.Emitter[*NodeError]

	queue        []*Fiber
	executing    bool
	started      bool
	disposed     bool
	initialized  map[string]bool
	asyncPending map[string]int
	evaluating   map[string]bool
	unsubscribe  []func()
	totalSteps   int64
}

// Option configures an Engine
type Option func(*Engine) error

// WithLogger sets the engine logger. Defaults to the graph logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

// WithMaxSteps sets the step bound used by commits that start a burst
func WithMaxSteps(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return errors.WrapInvalid(fmt.Errorf("%w: max steps %d", errors.ErrInvalidConfig, n),
				"Engine", "WithMaxSteps", "option validation")
		}
		e.maxSteps = n
		return nil
	}
}

// WithMetrics registers engine metrics with registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(e *Engine) error {
		m, err := newEngineMetrics(registry)
		if err != nil {
			return errors.Wrap(err, "Engine", "WithMetrics", "metrics registration")
		}
		e.metrics = m
		return nil
	}
}

// New creates an engine for g. Event nodes are initialized by Start.
func New(g *graph.Graph, opts ...Option) (*Engine, error) {
	e := &Engine{
		graph:        g,
		logger:       g.Logger(),
		maxSteps:     DefaultMaxSteps,
		initialized:  make(map[string]bool),
		asyncPending: make(map[string]int),
		evaluating:   make(map[string]bool),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Graph returns the graph the engine runs
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Start initializes every event node once and keeps tracking nodes added to,
// removed from or reconfigured in the graph afterwards.
func (e *Engine) Start() {
	if e.started || e.disposed {
		return
	}
	e.started = true

	e.unsubscribe = append(e.unsubscribe,
		e.graph.OnNodeAdded.Subscribe(func(n *graph.Node) {
			if n.Kind() == graph.KindEvent {
				e.initEvent(n)
			}
		}),
		e.graph.OnNodeRemoved.Subscribe(e.disposeNode),
		e.graph.OnNodeReconfigured.Subscribe(e.reconfigureNode),
	)

	for _, n := range e.graph.Nodes() {
		if n.Kind() == graph.KindEvent {
			e.initEvent(n)
		}
	}
	e.logger.Debug("Engine started", "graph", e.graph.Name, "events", len(e.initialized))
}

func (e *Engine) initEvent(n *graph.Node) {
	if e.initialized[n.ID] {
		return
	}
	e.initialized[n.ID] = true
	b := n.Description.Behavior.(graph.EventBehavior)
	ctx := e.newContext(n, nil)
	e.guard(n, func() { b.Init(ctx) })
}

// reconfigureNode tears down a node whose configuration changed. Event nodes are
// initialized again with fresh state so their subscriptions follow the new
// configuration; async nodes drop their pending operations.
func (e *Engine) reconfigureNode(n *graph.Node) {
	switch n.Kind() {
	case graph.KindEvent:
		if !e.initialized[n.ID] {
			return
		}
		e.disposeNode(n)
		resetState(n)
		e.initEvent(n)
	case graph.KindAsync:
		e.disposeNode(n)
		resetState(n)
		e.metrics.setAsyncPending(e.AsyncPending())
	}
}

func resetState(n *graph.Node) {
	if n.Description.InitialState != nil {
		n.State = n.Description.InitialState()
	}
}

// CommitToNewFiber queues a fiber that continues from node's output flow socket.
// The fiber sees node's data outputs as they are now, even if node writes them
// again before the fiber runs. onCompleted runs after every downstream branch
// has finished.
func (e *Engine) CommitToNewFiber(node *graph.Node, socket string, onCompleted func()) error {
	if e.disposed {
		return nil
	}
	f := newFiber(e)
	f.capture(node)
	if err := f.commit(node, socket, onCompleted); err != nil {
		return err
	}
	f.flush()
	if !f.done() {
		e.queue = append(e.queue, f)
	}
	return nil
}

// runIfIdle drains the queue unless a burst is already running, in which case the
// running burst picks up the new fiber. A step limit overflow is reported as a
// failure of node, the node whose commit started the burst.
func (e *Engine) runIfIdle(node *graph.Node) {
	if e.executing || e.disposed {
		return
	}
	if _, err := e.ExecuteAllSync(e.maxSteps); err != nil {
		e.reportError(&NodeError{NodeID: node.ID, NodeType: node.TypeName(), Cause: err})
	}
}

// ExecuteAllSync runs queued fibers until none remain or maxSteps steps have run.
// Hitting the limit with work left discards the remaining fibers and returns an
// error wrapping ErrMaxStepsExceeded. Calls made while a burst is running return
// immediately.
func (e *Engine) ExecuteAllSync(maxSteps int) (int, error) {
	if maxSteps <= 0 {
		maxSteps = e.maxSteps
	}
	return e.run(maxSteps, true)
}

// ExecuteAll drains the queue in batches of batchSteps until it is empty or ctx
// is done. Unlike ExecuteAllSync it never discards work.
func (e *Engine) ExecuteAll(ctx context.Context, batchSteps int) error {
	if batchSteps <= 0 {
		batchSteps = e.maxSteps
	}
	for len(e.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.run(batchSteps, false); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) run(maxSteps int, discardOnLimit bool) (int, error) {
	if e.executing || len(e.queue) == 0 {
		return 0, nil
	}
	e.executing = true
	start := time.Now()
	steps := 0
	limitHit := false
	defer func() {
		e.executing = false
		e.totalSteps += int64(steps)
		e.metrics.recordBurst(steps, time.Since(start).Seconds(), limitHit)
	}()

	for len(e.queue) > 0 {
		if steps >= maxSteps {
			if !discardOnLimit {
				return steps, nil
			}
			limitHit = true
			dropped := len(e.queue)
			e.queue = nil
			err := errors.Wrap(
				fmt.Errorf("%w: limit %d reached with %d fibers queued", errors.ErrMaxStepsExceeded, maxSteps, dropped),
				"Engine", "ExecuteAllSync", "burst")
			e.logger.Error("Execution burst exceeded step limit",
				"graph", e.graph.Name, "max_steps", maxSteps, "discarded_fibers", dropped, "error", err)
			return steps, err
		}

		f := e.queue[0]
		f.step()
		steps++
		if f.done() {
			e.queue = e.queue[1:]
		}
	}
	return steps, nil
}

// Pending reports whether fibers are queued
func (e *Engine) Pending() bool { return len(e.queue) > 0 }

// AsyncPending returns the number of async operations that have not finished
func (e *Engine) AsyncPending() int {
	total := 0
	for _, n := range e.asyncPending {
		total += n
	}
	return total
}

// Steps returns the number of fiber steps executed so far
func (e *Engine) Steps() int64 { return e.totalSteps }

// trackAsync records a started operation and returns its completion callback
func (e *Engine) trackAsync(n *graph.Node) func() {
	e.asyncPending[n.ID]++
	e.metrics.setAsyncPending(e.AsyncPending())

	done := false
	return func() {
		if done {
			e.logger.Warn("Async node finished more than once",
				"node_id", n.ID, "node_type", n.TypeName())
			return
		}
		done = true
		if e.asyncPending[n.ID] > 0 {
			e.asyncPending[n.ID]--
			if e.asyncPending[n.ID] == 0 {
				delete(e.asyncPending, n.ID)
			}
		}
		e.metrics.setAsyncPending(e.AsyncPending())
	}
}

// Dispose tears down every event and async node and drops queued work. Pending
// timers that fire afterwards cannot start new fibers.
func (e *Engine) Dispose() {
	if e.disposed {
		return
	}
	for _, unsub := range e.unsubscribe {
		unsub()
	}
	e.unsubscribe = nil

	for _, n := range e.graph.Nodes() {
		e.disposeNode(n)
	}
	e.disposed = true
	e.queue = nil
	e.asyncPending = make(map[string]int)
	e.metrics.setAsyncPending(0)
	e.logger.Debug("Engine disposed", "graph", e.graph.Name)
}

func (e *Engine) disposeNode(n *graph.Node) {
	switch b := n.Description.Behavior.(type) {
	case graph.EventBehavior:
		if !e.initialized[n.ID] {
			return
		}
		delete(e.initialized, n.ID)
		if b.Dispose != nil {
			ctx := e.newContext(n, nil)
			e.guard(n, func() { b.Dispose(ctx) })
		}
	case graph.AsyncBehavior:
		delete(e.asyncPending, n.ID)
		if b.Dispose != nil {
			ctx := e.newContext(n, nil)
			e.guard(n, func() { b.Dispose(ctx) })
		}
	}
}
