package core

import (
	"time"

	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/pkg/clock"
)

// operation is one started async operation waiting on a timer
type operation struct {
	version  int
	timer    clock.Timer
	finished func()
}

// timerState implements cancellation by version: cancel and dispose bump the
// version so callbacks of older operations become no-ops. Invalidated
// operations are finished right away.
type timerState struct {
	version int
	pending []*operation
}

func newTimerState() any { return &timerState{} }

func (st *timerState) start(sched clock.Scheduler, d time.Duration, finished func(), fire func()) {
	op := &operation{version: st.version, finished: finished}
	op.timer = sched.AfterFunc(d, func() {
		if op.version != st.version || !st.remove(op) {
			return
		}
		fire()
		op.finished()
	})
	st.pending = append(st.pending, op)
}

func (st *timerState) remove(op *operation) bool {
	for i, p := range st.pending {
		if p == op {
			st.pending = append(st.pending[:i], st.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (st *timerState) busy() bool { return len(st.pending) > 0 }

// invalidate cancels every pending operation
func (st *timerState) invalidate() {
	st.version++
	pending := st.pending
	st.pending = nil
	for _, op := range pending {
		op.timer.Stop()
		op.finished()
	}
}

func disposeTimers(ctx graph.Context) {
	graph.StateOf[timerState](ctx).invalidate()
}

func scheduler(ctx graph.Context) (clock.Scheduler, bool) {
	return graph.Dependency[clock.Scheduler](ctx.Graph(), SchedulerDependency)
}

func seconds(v float64) time.Duration {
	if v < 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func timeNodes() []*graph.Description {
	return []*graph.Description{
		graph.MakeAsyncNode(graph.AsyncDefinition{
			Meta: graph.Meta{TypeName: "time/delay", Category: "Time", Label: "Delay"},
			In: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("duration", floatT).WithDefault(1.0),
				graph.Flow("cancel"),
			),
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: newTimerState,
			Triggered: func(ctx graph.Context, socket string, finished func()) {
				st := graph.StateOf[timerState](ctx)
				if socket == "cancel" {
					st.invalidate()
					finished()
					return
				}
				sched, ok := scheduler(ctx)
				if !ok {
					finished()
					return
				}
				st.start(sched, seconds(graph.ReadAs[float64](ctx, "duration")), finished, func() {
					ctx.Commit("flow")
				})
			},
			Dispose: disposeTimers,
		}),
		graph.MakeAsyncNode(graph.AsyncDefinition{
			Meta: graph.Meta{
				TypeName: "flow/debounce", Category: "Flow", Label: "Debounce",
				Help: "Commits once waitDuration seconds passed without another trigger",
			},
			In: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("waitDuration", floatT).WithDefault(0.25),
				graph.Flow("cancel"),
			),
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: newTimerState,
			Triggered: func(ctx graph.Context, socket string, finished func()) {
				st := graph.StateOf[timerState](ctx)
				st.invalidate()
				if socket == "cancel" {
					finished()
					return
				}
				sched, ok := scheduler(ctx)
				if !ok {
					finished()
					return
				}
				st.start(sched, seconds(graph.ReadAs[float64](ctx, "waitDuration")), finished, func() {
					ctx.Commit("flow")
				})
			},
			Dispose: disposeTimers,
		}),
		graph.MakeAsyncNode(graph.AsyncDefinition{
			Meta: graph.Meta{
				TypeName: "flow/throttle", Category: "Flow", Label: "Throttle",
				Help: "Commits immediately, then drops triggers for duration seconds",
			},
			In: graph.Sockets(
				graph.Flow("flow"),
				graph.Data("duration", floatT).WithDefault(1.0),
				graph.Flow("cancel"),
			),
			Out:          graph.Sockets(graph.Flow("flow")),
			InitialState: newTimerState,
			Triggered: func(ctx graph.Context, socket string, finished func()) {
				st := graph.StateOf[timerState](ctx)
				if socket == "cancel" {
					st.invalidate()
					finished()
					return
				}
				if st.busy() {
					finished()
					return
				}
				sched, ok := scheduler(ctx)
				if !ok {
					finished()
					return
				}
				ctx.Commit("flow")
				st.start(sched, seconds(graph.ReadAs[float64](ctx, "duration")), finished, func() {})
			},
			Dispose: disposeTimers,
		}),
		graph.MakeFunctionNode(graph.FunctionDefinition{
			Meta: graph.Meta{TypeName: "time/now", Category: "Time", Label: "Now"},
			Out:  graph.Sockets(graph.Data("seconds", floatT)),
			Exec: func(ctx graph.Context) {
				now := time.Now()
				// Read the registry directly: a host without a scheduler is not an error here
				if sched, ok := ctx.Graph().Registry().Dependencies[SchedulerDependency].(clock.Scheduler); ok {
					now = sched.Now()
				}
				ctx.Write("seconds", float64(now.UnixNano())/float64(time.Second))
			},
		}),
	}
}
