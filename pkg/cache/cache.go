// Package cache provides a generic, thread-safe LRU cache with hit and
// eviction statistics. The script host bounds its compiled program caches with
// it.
package cache

import (
	"fmt"

	"github.com/c360/visualscript/errors"
)

// EvictCallback is called with the key and value of an entry pushed out by a
// newer one or removed with Delete or Clear. It runs outside the cache lock.
type EvictCallback[V any] func(key string, value V)

// Option configures a cache
type Option[V any] func(*options[V])

type options[V any] struct {
	evictFn EvictCallback[V]
}

// WithEvictionCallback registers fn for removed entries
func WithEvictionCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(o *options[V]) { o.evictFn = fn }
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: cache key cannot be empty", errors.ErrInvalidData),
			"cache", "validateKey", "key validation")
	}
	return nil
}
