package natsclient

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// MemoryBucket is an in-process jetstream.KeyValue covering the operations
// KVStore uses. It backs graph storage when NATS is disabled and in unit tests.
// Methods outside that set panic.
type MemoryBucket struct {
	jetstream.KeyValue

	name string

	mu       sync.Mutex
	revision uint64
	entries  map[string]*memoryEntry
	watchers []*memoryWatcher
}

// NewMemoryBucket returns an empty bucket called name
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{name: name, entries: make(map[string]*memoryEntry)}
}

// Bucket returns the bucket name
func (b *MemoryBucket) Bucket() string { return b.name }

// Get returns the latest value of key
func (b *MemoryBucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok || e.op == jetstream.KeyValueDelete {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

// Put stores value under key
func (b *MemoryBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store(key, value, jetstream.KeyValuePut), nil
}

// Create stores value only when key has no live value
func (b *MemoryBucket) Create(_ context.Context, key string, value []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[key]; ok && e.op != jetstream.KeyValueDelete {
		return 0, jetstream.ErrKeyExists
	}
	return b.store(key, value, jetstream.KeyValuePut), nil
}

// Update stores value when key is at revision
func (b *MemoryBucket) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok || e.revision != revision {
		return 0, jetstream.ErrKeyExists
	}
	return b.store(key, value, jetstream.KeyValuePut), nil
}

// Delete leaves a delete marker for key
func (b *MemoryBucket) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; ok {
		b.store(key, nil, jetstream.KeyValueDelete)
	}
	return nil
}

// Keys returns live keys in sorted order
func (b *MemoryBucket) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.entries))
	for k, e := range b.entries {
		if e.op != jetstream.KeyValueDelete {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	slices.Sort(keys)
	return keys, nil
}

// Watch delivers the current values matching pattern, a nil marker, then every
// later change until ctx is done or Stop is called
func (b *MemoryBucket) Watch(ctx context.Context, pattern string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.entries))
	for k, e := range b.entries {
		if e.op != jetstream.KeyValueDelete && subjectMatch(pattern, k) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(x, y string) int { return cmp.Compare(b.entries[x].revision, b.entries[y].revision) })

	w := &memoryWatcher{bucket: b, pattern: pattern, updates: make(chan jetstream.KeyValueEntry, len(keys)+64)}
	for _, k := range keys {
		w.send(b.entries[k])
	}
	w.updates <- nil
	b.watchers = append(b.watchers, w)
	context.AfterFunc(ctx, func() { _ = w.Stop() })
	return w, nil
}

func (b *MemoryBucket) store(key string, value []byte, op jetstream.KeyValueOp) uint64 {
	b.revision++
	e := &memoryEntry{
		bucket:   b.name,
		key:      key,
		value:    slices.Clone(value),
		revision: b.revision,
		created:  time.Now(),
		op:       op,
	}
	b.entries[key] = e
	for _, w := range b.watchers {
		if subjectMatch(w.pattern, key) {
			w.send(e)
		}
	}
	return e.revision
}

// subjectMatch applies NATS wildcard rules: "*" matches one token, ">" the rest
func subjectMatch(pattern, key string) bool {
	pt, kt := strings.Split(pattern, "."), strings.Split(key, ".")
	for i, p := range pt {
		if p == ">" {
			return len(kt) > i
		}
		if i >= len(kt) || (p != "*" && p != kt[i]) {
			return false
		}
	}
	return len(pt) == len(kt)
}

type memoryEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	op       jetstream.KeyValueOp
}

func (e *memoryEntry) Bucket() string                  { return e.bucket }
func (e *memoryEntry) Key() string                     { return e.key }
func (e *memoryEntry) Value() []byte                   { return e.value }
func (e *memoryEntry) Revision() uint64                { return e.revision }
func (e *memoryEntry) Created() time.Time              { return e.created }
func (e *memoryEntry) Delta() uint64                   { return 0 }
func (e *memoryEntry) Operation() jetstream.KeyValueOp { return e.op }

type memoryWatcher struct {
	bucket  *MemoryBucket
	pattern string
	updates chan jetstream.KeyValueEntry
	stopped bool
}

func (w *memoryWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.updates }

// send drops the change when the consumer has fallen behind
func (w *memoryWatcher) send(e jetstream.KeyValueEntry) {
	select {
	case w.updates <- e:
	default:
	}
}

func (w *memoryWatcher) Stop() error {
	b := w.bucket
	b.mu.Lock()
	defer b.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	b.watchers = slices.DeleteFunc(b.watchers, func(x *memoryWatcher) bool { return x == w })
	close(w.updates)
	return nil
}
