// Package cache provides a small map-with-expiry used by the engine's
// stateful stores (retransmission, deduplication, blockwise assembly).
//
// Unlike the teacher implementation this is not safe for concurrent use:
// the engine that owns a Cache is itself single-threaded per the protocol
// engine's concurrency contract, so no lock is paid for here.
package cache

import "time"

type Element[T any] struct {
	validUntil time.Time
	data       T
	onExpire   func(d T)
}

// NewElement creates an element that can be stored in a Cache. A zero
// validUntil means the element never expires on its own.
func NewElement[T any](data T, validUntil time.Time, onExpire func(d T)) *Element[T] {
	if onExpire == nil {
		onExpire = func(T) {
			// NO-OP as default
		}
	}
	return &Element[T]{data: data, validUntil: validUntil, onExpire: onExpire}
}

func (e *Element[T]) IsExpired(now time.Time) bool {
	if e.validUntil.IsZero() {
		return false
	}
	return now.After(e.validUntil)
}

func (e *Element[T]) Data() T {
	return e.data
}

// Cache is a map of keys to Elements with expiry-driven eviction.
type Cache[K comparable, V any] struct {
	data map[K]*Element[V]
}

// NewCache creates an empty Cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{data: make(map[K]*Element[V])}
}

// LoadOrStore loads the existing unexpired element for key, or stores e and
// returns it. now is the caller's own clock reading, never read internally,
// per the engine's external-clock-collaborator contract.
//
// If an element for the key exists and is unexpired then this element
// (oldE) is returned and loaded is true. Otherwise e is stored and
// (e, false) is returned.
func (c *Cache[K, V]) LoadOrStore(key K, e *Element[V], now time.Time) (actual *Element[V], loaded bool) {
	if old, ok := c.data[key]; ok && !old.IsExpired(now) {
		return old, true
	}
	c.data[key] = e
	return e, false
}

// Store unconditionally stores e for key, overwriting any existing element.
func (c *Cache[K, V]) Store(key K, e *Element[V]) {
	c.data[key] = e
}

// Load loads the element with given key from the cache. now is the
// caller's own clock reading, never read internally, per the engine's
// external-clock-collaborator contract.
//
// If an element for key is not found then (nil, false) is returned.
// If an unexpired element for key is found then (*Element, true) is returned.
func (c *Cache[K, V]) Load(key K, now time.Time) (element *Element[V], loaded bool) {
	a, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if a.IsExpired(now) {
		return nil, false
	}
	return a, true
}

// Delete removes the element for given key from the cache.
func (c *Cache[K, V]) Delete(key K) (deleted bool) {
	_, ok := c.data[key]
	delete(c.data, key)
	return ok
}

// Len reports the number of entries currently stored, expired or not.
func (c *Cache[K, V]) Len() int {
	return len(c.data)
}

// CheckExpirations iterates over all elements in the cache, checks each for
// expiration, deletes expired elements from the cache and invokes the
// onExpire function on each of them.
func (c *Cache[K, V]) CheckExpirations(now time.Time) {
	for k, e := range c.data {
		if e.IsExpired(now) {
			delete(c.data, k)
			e.onExpire(e.data)
		}
	}
}

// PullOutAll removes all elements from the cache and returns them in a map.
func (c *Cache[K, V]) PullOutAll() map[K]V {
	res := make(map[K]V, len(c.data))
	for key, value := range c.data {
		res[key] = value.Data()
	}
	c.data = make(map[K]*Element[V])
	return res
}

// Range calls f sequentially for each key and element present in the
// cache, stopping early if f returns false.
func (c *Cache[K, V]) Range(f func(key K, e *Element[V]) bool) {
	for k, e := range c.data {
		if !f(k, e) {
			return
		}
	}
}
