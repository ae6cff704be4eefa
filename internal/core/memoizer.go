// Package core implements the memoization engine: the eviction store, the
// result classifier, and the wrap loop that ties them to the argument-key
// serializer.
//
// # Features
//
//   - Memoization: results are cached per function identity plus encoded
//     argument list, so identical calls never recompute.
//   - Result shapes: plain values, Deferred (asynchronous) results, and
//     single-shot synchronous or asynchronous iterators each cache with
//     shape-specific semantics.
//   - In-flight request deduplication: overlapping calls for one key run the
//     underlying function once; the rest wait for its outcome.
//   - Expiration and capacity: entries live for a configurable TTL (default
//     5 minutes) in a store bounded to a configurable entry count (default
//     100) with LRU eviction.
//   - Failure eviction: rejected deferred results are dropped from the cache
//     so the next identical call retries.
//
// # Usage
//
// This package is not intended for direct use. Use the memofn package for a
// public API.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ostrenko/memofn/internal/lib/argkey"
	"github.com/ostrenko/memofn/internal/lib/errs"
	"github.com/ostrenko/memofn/internal/lib/hooks"
)

// Default settings for store capacity, entry TTL, and the expiry sweep.
const (
	DefaultMaxEntries      = 100
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = 1 * time.Minute
)

// ErrPanic is returned if a panic occurs in the memoized function.
var ErrPanic = errors.New("panic occurred in memoized function")

// Func is the calling convention the facade wraps: positional arguments in,
// one result and an error out. A nil-error result may be a plain value, an
// Awaitable, an Iterator, or an AsyncIterator; the cache treats each shape
// differently. A non-nil error propagates to the caller and caches nothing.
type Func func(args ...any) (any, error)

type config struct {
	maxEntries      int
	ttl             time.Duration
	cleanupInterval time.Duration
}

// Option mutates the cache configuration before it becomes active.
type Option func(*config)

// WithMaxEntries bounds the number of cached results. Zero (or negative)
// disables caching entirely: every probe misses.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		if n < 0 {
			n = 0
		}
		c.maxEntries = n
	}
}

// WithTTL sets how long an entry stays valid. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		if d < 0 {
			d = 0
		}
		c.ttl = d
	}
}

// WithCleanupInterval sets the cadence of the background expiry sweep.
// Zero leaves expiry entirely to lazy pruning on access.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *config) {
		if d < 0 {
			d = 0
		}
		c.cleanupInterval = d
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		maxEntries:      DefaultMaxEntries,
		ttl:             DefaultTTL,
		cleanupInterval: DefaultCleanupInterval,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// inflightCall deduplicates concurrent calls for the same key.
// It holds the result and error, and a wait group for synchronization.
type inflightCall struct {
	wg  sync.WaitGroup // waits for the function execution to complete
	val any
	err error
}

// Stats is a snapshot of the active store.
type Stats struct {
	Size int // live entries, counted after lazy pruning
	Max  int // configured capacity
}

// Cache owns one eviction store plus the identity registry and in-flight
// table shared by every function memoized through it.
type Cache struct {
	mu       sync.Mutex // protects store pointer and inflight map
	store    *Store
	reg      *argkey.Registry
	inflight map[string]*inflightCall
	hooks    *hooks.Hooks
}

// New builds a cache from the given options; unset options take the
// defaults. Pass nil hooks if no instrumentation is needed.
func New(h *hooks.Hooks, opts ...Option) *Cache {
	if h == nil {
		h = &hooks.Hooks{}
	}
	c := &Cache{
		reg:      argkey.NewRegistry(),
		inflight: make(map[string]*inflightCall),
		hooks:    h,
	}
	c.store = c.newStore(newConfig(opts))
	return c
}

func (c *Cache) newStore(cfg config) *Store {
	return NewStore(cfg.maxEntries, cfg.ttl, cfg.cleanupInterval, func(key string) {
		c.hooks.Run(c.hooks.OnEvict, key)
	})
}

// Memoize wraps fn with the cache-key lookup/store protocol. The function's
// identity id is assigned once here, not per call, so every call through the
// returned wrapper keys into the same per-function namespace.
func (c *Cache) Memoize(fn Func) Func {
	fnID := c.reg.FuncID(fn)
	return func(args ...any) (any, error) {
		return c.call(fnID, fn, args)
	}
}

// call executes one memoized invocation: build the key, probe the store,
// dedup overlapping misses, run the function, classify and store the result.
func (c *Cache) call(fnID string, fn Func, args []any) (any, error) {
	key, err := argkey.Build(c.reg, fnID, args)
	if err != nil {
		return nil, err
	}

	// Fast path: a live entry serves the call without running fn.
	if entry, found := c.storeRef().Get(key); found {
		c.hooks.Run(c.hooks.OnHit, key)
		return entry.Unwrap(), nil
	}

	c.mu.Lock()
	// Re-probe under the lock: the computing goroutine stores its entry and
	// clears its in-flight marker in one critical section, so a racing miss
	// lands either on the entry here or on the marker below, never between.
	if entry, found := c.store.Get(key); found {
		c.mu.Unlock()
		c.hooks.Run(c.hooks.OnHit, key)
		return entry.Unwrap(), nil
	}

	// Check if another goroutine is already computing this key.
	if ic, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		ic.wg.Wait()
		return ic.val, ic.err
	}

	// Mark this key as in-flight.
	ic := &inflightCall{}
	ic.wg.Add(1)
	c.inflight[key] = ic
	c.mu.Unlock()

	c.hooks.Run(c.hooks.OnMiss, key)

	val, err := invoke(fn, args)

	if err != nil {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()

		// Failed calls are never cached; the next identical call retries.
		ic.err = err
		ic.wg.Done()
		c.hooks.SafeLogError(err)
		return nil, err
	}

	// The entry must be stored before the in-flight marker disappears, and
	// the two must change together, so a deferred payload is observable while
	// still pending and no overlapping caller re-runs fn.
	entry := Classify(val)
	c.mu.Lock()
	store := c.store
	gen := store.Set(key, entry)
	delete(c.inflight, key)
	c.mu.Unlock()
	if entry.Kind == KindDeferred {
		watchSettlement(store, key, gen, entry.Payload.(Awaitable))
	}
	c.hooks.Run(c.hooks.OnSet, key)

	ic.val = val
	ic.wg.Done()
	return val, nil
}

// watchSettlement evicts the entry once its deferred outcome fails, so a
// later identical call retries instead of replaying the failure. The failure
// itself still reaches whoever awaits the Deferred. Eviction is pinned to the
// watched record's generation: if the key expired and was recomputed before
// the rejection lands, this watcher says nothing about the replacement and
// leaves it alone.
func watchSettlement(s *Store, key string, gen uint64, aw Awaitable) {
	go func() {
		if _, err := aw.Await(context.Background()); err != nil {
			s.DeleteGen(key, gen)
		}
	}()
}

// Setup replaces the active store with one built from opts; unset options
// fall back to the defaults. All unexpired entries migrate into the new
// store, least recently used first, before it is installed, so callers never
// observe an empty window mid-session.
func (c *Cache) Setup(opts ...Option) {
	next := c.newStore(newConfig(opts))
	c.mu.Lock()
	old := c.store
	for key, entry := range old.Entries() {
		gen := next.Set(key, entry)
		// A migrated pending deferred needs a watcher against its new record;
		// the one watching the old record dies with the old store.
		if entry.Kind == KindDeferred {
			watchSettlement(next, key, gen, entry.Payload.(Awaitable))
		}
	}
	c.store = next
	c.mu.Unlock()
	old.discard()
}

// Clear empties the active store.
func (c *Cache) Clear() {
	c.storeRef().Clear()
}

// Stats returns the live entry count (pruning expired entries as a side
// effect) and the configured capacity of the active store.
func (c *Cache) Stats() Stats {
	s := c.storeRef()
	return Stats{Size: s.Len(), Max: s.Max()}
}

func (c *Cache) storeRef() *Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// invoke runs fn, converting a panic into an ErrPanic-wrapped error so
// in-flight waiters are always released and nothing is cached.
func invoke(fn Func, args []any) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch x := r.(type) {
			case error:
				err = errs.NewError(ErrPanic, map[string]interface{}{
					"panic": x,
				})
			case string:
				err = errs.NewError(ErrPanic, map[string]interface{}{
					"panic": x,
				})
			default:
				err = errs.NewError(ErrPanic, map[string]interface{}{
					"panic": fmt.Errorf("%v", x),
				})
			}
			val = nil
		}
	}()
	return fn(args...)
}
