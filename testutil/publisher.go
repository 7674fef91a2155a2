package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// MockPublisher records published messages in memory
type MockPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

// NewMockPublisher creates an empty publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: make(map[string][][]byte)}
}

// Publish stores a copy of data under subject. After FailWith it returns the
// configured error and stores nothing.
func (p *MockPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages[subject] = append(p.messages[subject], append([]byte(nil), data...))
	return nil
}

// FailWith makes later publishes return err. A nil err restores publishing.
func (p *MockPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Messages returns the messages published to subject in order
func (p *MockPublisher) Messages(subject string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.messages[subject]))
	copy(out, p.messages[subject])
	return out
}

// Count returns the number of messages published to subject
func (p *MockPublisher) Count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[subject])
}

// Subjects returns every subject with at least one message, sorted
func (p *MockPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.messages)
}

// Total returns the number of messages across all subjects
func (p *MockPublisher) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, msgs := range p.messages {
		n += len(msgs)
	}
	return n
}

// Clear drops every recorded message
func (p *MockPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = make(map[string][][]byte)
}

// WaitForMessageCount fails t unless subject has at least count messages
// before timeout
func WaitForMessageCount(t testing.TB, p *MockPublisher, subject string, count int, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.Count(subject) >= count {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, p.Count(subject))
			return
		case <-ticker.C:
		}
	}
}
