package graphstore

import (
	"cmp"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/metric"
	"github.com/c360/visualscript/natsclient"
)

// DefaultBucket is the KV bucket graphs are stored in
const DefaultBucket = "visualscript_graphs"

// Store provides persistence for graph documents
type Store struct {
	kv      *natsclient.KVStore
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts store operations in m
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock replaces time.Now for document timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store on kv
func New(kv *natsclient.KVStore, opts ...Option) *Store {
	s := &Store{kv: kv, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates bucket on the client's JetStream if needed and returns a store on it
func Open(ctx context.Context, client *natsclient.Client, bucket string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: nats client", errors.ErrMissingDependency),
			"graphstore", "Open", "client check")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := client.EnsureKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Visual script graph documents",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "graphstore", "Open", "ensure bucket "+bucket)
	}
	s := New(nil, opts...)
	s.kv = natsclient.NewKVStore(kv, s.logger)
	return s, nil
}

// NewMemory returns a store backed by an in-process bucket
func NewMemory(opts ...Option) *Store {
	s := New(nil, opts...)
	s.kv = natsclient.NewKVStore(natsclient.NewMemoryBucket(DefaultBucket), s.logger)
	return s
}

func (s *Store) record(op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(op, err == nil)
	}
}

// Create stores a new document. An empty ID is replaced with a UUID. Version is
// set to 1 and both timestamps to now.
func (s *Store) Create(ctx context.Context, doc *Document) (err error) {
	defer func() { s.record("create", err) }()
	if doc == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil document", errors.ErrInvalidData), "graphstore", "Create", "document check")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	doc.Version = 1
	doc.CreatedAt = s.now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapFatal(err, "graphstore", "Create", "marshal document")
	}
	if _, err := s.kv.Create(ctx, doc.ID, data); err != nil {
		if stderrors.Is(err, errors.ErrVersionConflict) {
			return errors.WrapInvalid(fmt.Errorf("%w: graph %s", errors.ErrDuplicateID, doc.ID),
				"graphstore", "Create", "graph already exists")
		}
		return errors.Wrap(err, "graphstore", "Create", "create in KV")
	}
	s.logger.Info("Graph stored", "id", doc.ID, "name", doc.Name)
	return nil
}

// Get returns the document stored under id
func (s *Store) Get(ctx context.Context, id string) (doc *Document, err error) {
	defer func() { s.record("get", err) }()
	doc, _, err = s.get(ctx, id)
	return doc, err
}

func (s *Store) get(ctx context.Context, id string) (*Document, uint64, error) {
	if id == "" {
		return nil, 0, errors.WrapInvalid(fmt.Errorf("%w: empty graph id", errors.ErrInvalidData),
			"graphstore", "Get", "id check")
	}
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		return nil, 0, errors.Wrap(err, "graphstore", "Get", "get "+id)
	}
	doc, err := decode(entry.Value)
	if err != nil {
		return nil, 0, err
	}
	return doc, entry.Revision, nil
}

func decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"graphstore", "decode", "unmarshal document")
	}
	return &doc, nil
}

// Update replaces a stored document. doc.Version must equal the stored version;
// otherwise the document was changed by someone else and ErrVersionConflict is
// returned. On success doc.Version is incremented.
func (s *Store) Update(ctx context.Context, doc *Document) (err error) {
	defer func() { s.record("update", err) }()
	if doc == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil document", errors.ErrInvalidData), "graphstore", "Update", "document check")
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	current, revision, err := s.get(ctx, doc.ID)
	if err != nil {
		return err
	}
	if current.Version != doc.Version {
		return errors.WrapInvalid(
			fmt.Errorf("%w: graph %s is at version %d, update is based on %d",
				errors.ErrVersionConflict, doc.ID, current.Version, doc.Version),
			"graphstore", "Update", "version check")
	}

	next := *doc
	next.Version++
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(&next)
	if err != nil {
		return errors.WrapFatal(err, "graphstore", "Update", "marshal document")
	}
	if _, err := s.kv.Update(ctx, doc.ID, data, revision); err != nil {
		if stderrors.Is(err, errors.ErrVersionConflict) {
			return errors.WrapInvalid(err, "graphstore", "Update", "concurrent update")
		}
		return errors.Wrap(err, "graphstore", "Update", "update in KV")
	}
	*doc = next
	s.logger.Debug("Graph updated", "id", doc.ID, "version", doc.Version)
	return nil
}

// Delete removes the document stored under id
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.record("delete", err) }()
	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty graph id", errors.ErrInvalidData),
			"graphstore", "Delete", "id check")
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "graphstore", "Delete", "delete "+id)
	}
	s.logger.Info("Graph deleted", "id", id)
	return nil
}

// List returns every stored document ordered by name then id
func (s *Store) List(ctx context.Context) (docs []*Document, err error) {
	defer func() { s.record("list", err) }()
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "graphstore", "List", "list keys")
	}
	docs = make([]*Document, 0, len(keys))
	for _, key := range keys {
		doc, _, err := s.get(ctx, key)
		if err != nil {
			if stderrors.Is(err, errors.ErrKeyNotFound) {
				continue
			}
			return nil, errors.Wrap(err, "graphstore", "List", "get "+key)
		}
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b *Document) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return docs, nil
}

// Watch delivers the document stored under id, then every later version, until
// ctx is done. Deletes and undecodable values are logged and skipped.
func (s *Store) Watch(ctx context.Context, id string) (<-chan *Document, error) {
	w, err := s.kv.Watch(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "graphstore", "Watch", "watch "+id)
	}
	out := make(chan *Document, 1)
	go func() {
		defer close(out)
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				if entry.Operation() != jetstream.KeyValuePut {
					s.logger.Warn("Watched graph removed", "id", id)
					continue
				}
				doc, err := decode(entry.Value())
				if err != nil {
					s.logger.Warn("Watched graph unreadable", "id", id, "error", err)
					continue
				}
				select {
				case out <- doc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
