package core

import (
	"time"

	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/values"
)

// Tick is one host frame
type Tick struct {
	DeltaSeconds   float64
	ElapsedSeconds float64
}

// LifecycleEventEmitter carries host lifecycle events to lifecycle nodes. The host
// emits StartEvent once after the engine started, TickEvent every frame and
// EndEvent before teardown.
type LifecycleEventEmitter struct {
	StartEvent graph.Emitter[struct{}]
	EndEvent   graph.Emitter[struct{}]
	TickEvent  graph.Emitter[Tick]

	started time.Time
	last    time.Time
}

// NewLifecycleEventEmitter creates an emitter with no listeners
func NewLifecycleEventEmitter() *LifecycleEventEmitter {
	return &LifecycleEventEmitter{}
}

// Start emits StartEvent and resets tick timing to now
func (l *LifecycleEventEmitter) Start(now time.Time) {
	l.started, l.last = now, now
	l.StartEvent.Emit(struct{}{})
}

// TickAt emits a TickEvent measured against the previous tick
func (l *LifecycleEventEmitter) TickAt(now time.Time) {
	if l.started.IsZero() {
		l.started, l.last = now, now
	}
	tick := Tick{
		DeltaSeconds:   now.Sub(l.last).Seconds(),
		ElapsedSeconds: now.Sub(l.started).Seconds(),
	}
	l.last = now
	l.TickEvent.Emit(tick)
}

// End emits EndEvent
func (l *LifecycleEventEmitter) End() {
	l.EndEvent.Emit(struct{}{})
}

type subscription struct {
	unsubscribe func()
}

func (s *subscription) release() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func newSubscription() any { return &subscription{} }

func disposeSubscription(ctx graph.Context) {
	graph.StateOf[subscription](ctx).release()
}

func lifecycle(ctx graph.Context) (*LifecycleEventEmitter, bool) {
	return graph.Dependency[*LifecycleEventEmitter](ctx.Graph(), LifecycleDependency)
}

func lifecycleNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeEventNode(graph.EventDefinition{
			Meta:         graph.Meta{TypeName: "lifecycle/onStart", Category: "Event", Label: "On Start"},
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: newSubscription,
			Init: func(ctx graph.Context) {
				l, ok := lifecycle(ctx)
				if !ok {
					return
				}
				graph.StateOf[subscription](ctx).unsubscribe = l.StartEvent.Subscribe(func(struct{}) {
					ctx.Commit("flow")
				})
			},
			Dispose: disposeSubscription,
		}),
		graph.MakeEventNode(graph.EventDefinition{
			Meta:         graph.Meta{TypeName: "lifecycle/onEnd", Category: "Event", Label: "On End"},
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: newSubscription,
			Init: func(ctx graph.Context) {
				l, ok := lifecycle(ctx)
				if !ok {
					return
				}
				graph.StateOf[subscription](ctx).unsubscribe = l.EndEvent.Subscribe(func(struct{}) {
					ctx.Commit("flow")
				})
			},
			Dispose: disposeSubscription,
		}),
		graph.MakeEventNode(graph.EventDefinition{
			Meta: graph.Meta{TypeName: "lifecycle/onTick", Category: "Event", Label: "On Tick"},
			Out: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("deltaSeconds", values.FloatTypeName),
				graph.Data("elapsedSeconds", values.FloatTypeName),
			),
			InitialState: newSubscription,
			Init: func(ctx graph.Context) {
				l, ok := lifecycle(ctx)
				if !ok {
					return
				}
				graph.StateOf[subscription](ctx).unsubscribe = l.TickEvent.Subscribe(func(t Tick) {
					ctx.Write("deltaSeconds", t.DeltaSeconds)
					ctx.Write("elapsedSeconds", t.ElapsedSeconds)
					ctx.Commit("flow")
				})
			},
			Dispose: disposeSubscription,
		}),
	}
}
