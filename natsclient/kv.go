package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/pkg/retry"
)

// KVEntry is a value with the revision CAS updates compare against
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KV operations
type KVOptions struct {
	MaxRetries    int           // CAS retries after the first attempt
	RetryDelay    time.Duration // initial delay between retries
	MaxRetryDelay time.Duration
	Timeout       time.Duration // per operation; zero disables
	MaxValueSize  int           // zero disables the check
}

// DefaultKVOptions returns the options used by NewKVStore
func DefaultKVOptions() KVOptions {
	return KVOptions{
		MaxRetries:    10,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: time.Second,
		Timeout:       5 * time.Second,
		MaxValueSize:  1024 * 1024,
	}
}

// KVStore wraps a JetStream bucket with classified errors and CAS retries
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore creates a store on bucket
func NewKVStore(bucket jetstream.KeyValue, logger *slog.Logger, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KVStore{bucket: bucket, options: options, logger: logger}
}

func (kv *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get returns key with its revision. A missing key is ErrKeyNotFound.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "KVStore", "Get", "lookup")
		}
		return nil, errors.WrapTransient(err, "KVStore", "Get", "get "+key)
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put writes key without a revision check
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := kv.checkSize(value); err != nil {
		return 0, err
	}
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "Put", "put "+key)
	}
	kv.logger.Debug("KV put", "key", key, "revision", rev)
	return rev, nil
}

// Create writes key only when it does not exist. An existing key is a transient
// ErrVersionConflict, so UpdateWithRetry retries it.
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := kv.checkSize(value); err != nil {
		return 0, err
	}
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if isConflict(err) {
			return 0, errors.WrapTransient(fmt.Errorf("%w: %s exists", errors.ErrVersionConflict, key), "KVStore", "Create", "create")
		}
		return 0, errors.WrapTransient(err, "KVStore", "Create", "create "+key)
	}
	kv.logger.Debug("KV create", "key", key, "revision", rev)
	return rev, nil
}

// Update writes key when its revision still equals revision. A stale revision is
// ErrVersionConflict.
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := kv.checkSize(value); err != nil {
		return 0, err
	}
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if isConflict(err) {
			return 0, errors.WrapTransient(
				fmt.Errorf("%w: %s is not at revision %d", errors.ErrVersionConflict, key, revision),
				"KVStore", "Update", "compare revision")
		}
		return 0, errors.WrapTransient(err, "KVStore", "Update", "update "+key)
	}
	kv.logger.Debug("KV update", "key", key, "old_revision", revision, "revision", rev)
	return rev, nil
}

// UpdateWithRetry applies updateFn to the current value (nil when missing) and
// writes the result with a revision check, retrying on conflicts with
// exponential backoff. Errors from updateFn are returned without retry.
func (kv *KVStore) UpdateWithRetry(ctx context.Context, key string, updateFn func(current []byte) ([]byte, error)) (uint64, error) {
	cfg := retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     kv.options.MaxRetryDelay,
		Multiplier:   2,
		AddJitter:    true,
	}
	attempt := 0
	rev, err := retry.DoWithResult(ctx, cfg, func() (uint64, error) {
		attempt++
		var current []byte
		var revision uint64
		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			current, revision = entry.Value, entry.Revision
		case !stderrors.Is(err, errors.ErrKeyNotFound):
			return 0, err
		}

		next, err := updateFn(current)
		if err != nil {
			return 0, retry.NonRetryable(err)
		}
		if err := kv.checkSize(next); err != nil {
			return 0, retry.NonRetryable(err)
		}

		if revision == 0 {
			rev, err := kv.Create(ctx, key, next)
			if err != nil && stderrors.Is(err, errors.ErrVersionConflict) {
				kv.logger.Debug("KV create conflict, retrying", "key", key, "attempt", attempt)
			}
			return rev, err
		}
		rev, err := kv.Update(ctx, key, next, revision)
		if err != nil && stderrors.Is(err, errors.ErrVersionConflict) {
			kv.logger.Debug("KV update conflict, retrying", "key", key, "attempt", attempt)
		}
		return rev, err
	})
	if err != nil {
		var nre *retry.NonRetryableError
		if stderrors.As(err, &nre) {
			return 0, nre.Err
		}
		return 0, errors.Wrap(err, "KVStore", "UpdateWithRetry", "update "+key)
	}
	return rev, nil
}

// Delete removes key
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	if _, err := kv.Get(ctx, key); err != nil {
		return err
	}
	if err := kv.bucket.Delete(ctx, key); err != nil {
		return errors.WrapTransient(err, "KVStore", "Delete", "delete "+key)
	}
	kv.logger.Debug("KV delete", "key", key)
	return nil
}

// Keys returns every key in the bucket
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "Keys", "list keys")
	}
	return keys, nil
}

// Watch streams changes of keys matching pattern until ctx is done
func (kv *KVStore) Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error) {
	w, err := kv.bucket.Watch(ctx, pattern)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Watch", "watch "+pattern)
	}
	return w, nil
}

func (kv *KVStore) checkSize(value []byte) error {
	if kv.options.MaxValueSize > 0 && len(value) > kv.options.MaxValueSize {
		return errors.WrapInvalid(
			fmt.Errorf("%w: value size %d exceeds maximum %d", errors.ErrInvalidData, len(value), kv.options.MaxValueSize),
			"KVStore", "checkSize", "size check")
	}
	return nil
}

// isConflict reports a wrong-revision or key-exists failure from JetStream
func isConflict(err error) bool {
	if stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}
