// Package coordinator deduplicates and debounces keyed backend calls.
//
// A [Coordinator] guarantees at most one in-flight call per key and reuses the
// result of a completed call for a debounce window. Callers that arrive while a
// call is running share its result. Each caller waits on its own context: a
// caller giving up does not cancel the shared call for the others.
package coordinator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Option configures a [Coordinator].
type Option[V any] func(*Coordinator[V])

// WithClock replaces time.Now. Tests use it to step past the debounce window.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Coordinator[V]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDebounce sets how long a successful result is reused after its call
// completes. Zero disables reuse; only in-flight calls are shared.
func WithDebounce[V any](d time.Duration) Option[V] {
	return func(c *Coordinator[V]) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

type cached[V any] struct {
	value V
	at    time.Time
}

// Coordinator is safe for concurrent use.
type Coordinator[V any] struct {
	group singleflight.Group
	now   func() time.Time

	mu       sync.Mutex
	debounce time.Duration
	cache    map[string]cached[V]
	gens     map[string]uint64
}

// New creates a Coordinator. The zero debounce only shares in-flight calls.
func New[V any](opts ...Option[V]) *Coordinator[V] {
	c := &Coordinator[V]{
		now:   time.Now,
		cache: make(map[string]cached[V]),
		gens:  make(map[string]uint64),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Result carries the outcome of [Coordinator.Do].
type Result[V any] struct {
	Value V
	// Shared is true when the value came from another caller's call or from
	// the debounce cache.
	Shared bool
}

// Do returns the recent result for key if one is still fresh, otherwise joins
// or starts the call for key. fn runs with a context detached from ctx's
// cancellation so that one caller leaving does not abort the others; ctx still
// bounds how long this caller waits. Errors are never cached.
func (c *Coordinator[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (Result[V], error) {
	if err := ctx.Err(); err != nil {
		return Result[V]{}, err
	}
	if v, ok := c.fresh(key); ok {
		return Result[V]{Value: v, Shared: true}, nil
	}

	c.mu.Lock()
	gen := c.gens[key]
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fn(detached)
		if err == nil {
			c.store(key, v, gen)
		}
		return v, err
	})

	select {
	case <-ctx.Done():
		return Result[V]{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result[V]{}, r.Err
		}
		v, _ := r.Val.(V)
		return Result[V]{Value: v, Shared: r.Shared}, nil
	}
}

// Forget drops any cached result for key and detaches a running call so that
// the next Do starts a fresh one.
func (c *Coordinator[V]) Forget(key string) {
	c.mu.Lock()
	delete(c.cache, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(key)
}

// SetDebounce changes the reuse window. Cached results are judged against
// the new window from the next call on; a negative d is ignored.
func (c *Coordinator[V]) SetDebounce(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounce = d
	if d == 0 {
		clear(c.cache)
	}
}

// Cached reports whether a result for key is cached and still fresh.
func (c *Coordinator[V]) Cached(key string) bool {
	_, ok := c.fresh(key)
	return ok
}

func (c *Coordinator[V]) fresh(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debounce <= 0 {
		return zero, false
	}
	e, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.at) >= c.debounce {
		delete(c.cache, key)
		return zero, false
	}
	return e.value, true
}

// store keeps v unless key was forgotten while the call ran.
func (c *Coordinator[V]) store(key string, v V, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debounce <= 0 || c.gens[key] != gen {
		return
	}
	c.cache[key] = cached[V]{value: v, at: c.now()}
}
