package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_FiresInDeadlineOrder(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFake(start)
	var fired []string
	var at []time.Duration

	record := func(name string) func() {
		return func() {
			fired = append(fired, name)
			at = append(at, f.Now().Sub(start))
		}
	}
	f.AfterFunc(300*time.Millisecond, record("c"))
	f.AfterFunc(100*time.Millisecond, record("a"))
	f.AfterFunc(100*time.Millisecond, record("b"))

	f.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, at)
	assert.Equal(t, 250*time.Millisecond, f.Now().Sub(start))

	f.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, f.Pending())
}

func TestFake_StopAndNestedScheduling(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var count int

	stopped := f.AfterFunc(10*time.Millisecond, func() { count += 100 })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	f.AfterFunc(10*time.Millisecond, func() {
		count++
		f.AfterFunc(10*time.Millisecond, func() { count++ })
	})

	f.Advance(50 * time.Millisecond)
	assert.Equal(t, 2, count)
}

func TestLoop_RunsTimersOnLoop(t *testing.T) {
	l := NewLoop()
	l.Start()
	defer l.Stop()

	var fired atomic.Int32
	done := make(chan struct{})
	require.True(t, l.Submit(func() {
		cancelled := l.AfterFunc(5*time.Millisecond, func() { fired.Add(100) })
		cancelled.Stop()
		l.AfterFunc(10*time.Millisecond, func() {
			fired.Add(1)
			close(done)
		})
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, int32(1), fired.Load())
}

func TestLoop_Do(t *testing.T) {
	l := NewLoop()
	l.Start()
	defer l.Stop()

	ran := false
	require.True(t, l.Do(func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_DoAfterStopReturns(t *testing.T) {
	l := NewLoop()
	l.Start()
	l.Stop()

	result := make(chan bool, 1)
	go func() { result <- l.Do(func() { t.Error("job ran on a stopped loop") }) }()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Do blocked on a stopped loop")
	}
}

func TestLoop_StopReleasesQueuedDo(t *testing.T) {
	l := NewLoop()
	l.Start()

	release := make(chan struct{})
	started := make(chan struct{})
	l.Submit(func() {
		close(started)
		<-release
	})
	<-started

	result := make(chan bool, 1)
	go func() { result <- l.Do(func() {}) }()

	stopped := make(chan struct{})
	go func() {
		l.Stop()
		close(stopped)
	}()
	close(release)
	<-stopped

	select {
	case <-result:
	case <-time.After(2 * time.Second):
		t.Fatal("Do still blocked after Stop")
	}
}

func TestLoop_RestartAfterStop(t *testing.T) {
	l := NewLoop()
	l.Start()
	l.Stop()
	l.Start()
	defer l.Stop()

	ran := false
	require.True(t, l.Do(func() { ran = true }))
	assert.True(t, ran)
}
