package clock

import (
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

// Loop is a Scheduler backed by a goja_nodejs event loop. Timers and submitted
// jobs all run on the loop goroutine, which makes it the single goroutine allowed
// to touch a graph and its engine.
type Loop struct {
	loop *eventloop.EventLoop

	mu      sync.Mutex
	stopped chan struct{} // closed by Stop, replaced by Start
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a stopped event loop scheduler
func NewLoop() *Loop {
	return &Loop{loop: eventloop.NewEventLoop(), stopped: make(chan struct{})}
}

// Start runs the loop in a background goroutine
func (l *Loop) Start() {
	l.mu.Lock()
	select {
	case <-l.stopped:
		l.stopped = make(chan struct{})
	default:
	}
	l.mu.Unlock()
	l.loop.Start()
}

// Stop halts the loop and waits for the current job to finish. Pending timers are
// discarded and callers blocked in Do return false.
func (l *Loop) Stop() {
	l.loop.Stop()
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.stopped:
	default:
		close(l.stopped)
	}
}

func (l *Loop) stoppedCh() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Now returns wall clock time
func (l *Loop) Now() time.Time { return time.Now() }

// AfterFunc schedules fn on the loop after d. It must be called from the loop goroutine.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{loop: l.loop}
	t.timer = l.loop.SetTimeout(func(*goja.Runtime) {
		if t.done {
			return
		}
		t.done = true
		fn()
	}, d)
	return t
}

// Every runs fn on the loop every d until the returned stop function is called
func (l *Loop) Every(d time.Duration, fn func()) (stop func()) {
	interval := l.loop.SetInterval(func(*goja.Runtime) { fn() }, d)
	return func() { l.loop.ClearInterval(interval) }
}

// Submit queues fn on the loop. It reports false when the loop has been stopped.
func (l *Loop) Submit(fn func()) bool {
	return l.loop.RunOnLoop(func(*goja.Runtime) { fn() })
}

// Do runs fn on the loop and waits for it to return. It reports false without
// running fn when the loop is stopped before fn gets its turn.
func (l *Loop) Do(fn func()) bool {
	stopped := l.stoppedCh()
	select {
	case <-stopped:
		return false
	default:
	}

	done := make(chan struct{})
	ran := false
	if !l.Submit(func() {
		defer close(done)
		select {
		case <-stopped:
			return
		default:
		}
		fn()
		ran = true
	}) {
		return false
	}
	select {
	case <-done:
		return ran
	case <-stopped:
		// a job already running when Stop was called still gets to finish
		select {
		case <-done:
			return ran
		default:
			return false
		}
	}
}

type loopTimer struct {
	loop  *eventloop.EventLoop
	timer *eventloop.Timer
	done  bool
}

func (t *loopTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	t.loop.ClearTimeout(t.timer)
	return true
}
