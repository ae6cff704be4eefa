// Package memofn provides function-result memoization: given an arbitrary
// function, it returns a wrapped function that caches results keyed by the
// original function's identity plus its call arguments.
//
// # Overview
//
// memofn enables memoization, in-flight request deduplication, time-based
// expiration, and LRU-based capacity limiting for any Go function.
//
// ## Features
//
//   - Memoization: avoids redundant computation by caching results for
//     identical input parameters.
//   - Result shapes: plain values cache as-is (including nil results, which
//     round-trip back as nil); a Deferred result is stored while still
//     pending, so concurrent callers await the same underlying computation;
//     Iterator and AsyncIterator results are stored live and shared,
//     including partial consumption.
//   - In-flight request deduplication: only one execution per key for
//     overlapping calls; others wait for the result.
//   - Failure eviction: errors and rejected Deferred results are never
//     retained, so the next identical call retries.
//   - Expiration: entries expire after a configurable TTL (default: 5 minutes).
//   - Capacity limit: up to a configurable number of entries (default: 100),
//     evicting the least recently used when full.
//   - Concurrency safety: all operations are safe for concurrent use.
//   - Extensibility: optional hooks for logging (zap) and metrics (see the
//     metrics package).
//
// ## Usage Example
//
//	fetch := func(args ...any) (any, error) {
//		return fetchDataFromRemote(args[0].(string))
//	}
//	cached := memofn.Memoize(fetch)
//	result, err := cached("https://example.com")
//
// Typed functions of one argument can skip the variadic convention:
//
//	cachedFetch := memofn.NewCachedFunction(fetchDataFromRemote, nil)
//	result, err := cachedFetch("https://example.com")
//
// ## Customization
//
//   - Use New to build an isolated cache; the package-level functions share
//     one default instance.
//   - Use options (WithMaxEntries, WithTTL, WithCleanupInterval) to
//     customize capacity and expiry.
//   - Use Hooks (for example hooks from NewZapHooks or metrics.Metrics) to
//     observe cache traffic.
//
// See package documentation and tests for more details.
package memofn

import (
	"time"

	"github.com/ostrenko/memofn/internal/core"
	"github.com/ostrenko/memofn/internal/lib/hooks"
	"go.uber.org/zap"
)

// Func is the generic calling convention Memoize wraps: positional arguments
// in, one result and an error out.
type Func = core.Func

// Cache is an isolated memoization context: its own store, identity
// registry, and in-flight table.
type Cache = core.Cache

// Option configures a cache's store (capacity, TTL, cleanup cadence).
type Option = core.Option

// Stats is a snapshot of a cache's store: live size and capacity.
type Stats = core.Stats

// Hooks provides optional hooks for cache events (hit, miss, set, evict).
type Hooks = hooks.Hooks

// Deferred is an asynchronous result; return one from a memoized function to
// get in-flight deduplication and failure eviction.
type Deferred = core.Deferred

// Awaitable is the interface a result must satisfy to cache as a deferred
// computation.
type Awaitable = core.Awaitable

// Iterator is the synchronous single-shot iteration result shape.
type Iterator = core.Iterator

// AsyncIterator is the asynchronous iteration result shape.
type AsyncIterator = core.AsyncIterator

// Default configuration applied by New and Setup for unset options.
const (
	DefaultMaxEntries      = core.DefaultMaxEntries
	DefaultTTL             = core.DefaultTTL
	DefaultCleanupInterval = core.DefaultCleanupInterval
)

// ErrPanic is returned if a panic occurs in the memoized function.
var ErrPanic = core.ErrPanic

// WithMaxEntries bounds the number of cached results. Zero disables caching.
func WithMaxEntries(n int) Option { return core.WithMaxEntries(n) }

// WithTTL sets how long an entry stays valid. Zero disables expiry.
func WithTTL(d time.Duration) Option { return core.WithTTL(d) }

// WithCleanupInterval sets the cadence of the background expiry sweep.
// Zero leaves expiry entirely to lazy pruning on access.
func WithCleanupInterval(d time.Duration) Option { return core.WithCleanupInterval(d) }

// New builds an isolated cache. Pass nil hooks if no instrumentation is
// needed; unset options take the defaults (100 entries, 5 minute TTL).
func New(h *Hooks, opts ...Option) *Cache {
	return core.New(h, opts...)
}

// NewDeferred starts fn in its own goroutine and returns the Deferred
// carrying its eventual outcome.
func NewDeferred(fn func() (any, error)) *Deferred { return core.NewDeferred(fn) }

// ResolveDeferred returns an already-settled Deferred carrying v.
func ResolveDeferred(v any) *Deferred { return core.Resolve(v) }

// RejectDeferred returns an already-settled Deferred carrying err.
func RejectDeferred(err error) *Deferred { return core.Reject(err) }

// NewSliceIterator exposes a finite result sequence as a cacheable Iterator.
func NewSliceIterator(items ...any) Iterator { return core.NewSliceIterator(items...) }

// NewChanIterator exposes a channel of results as a cacheable AsyncIterator.
// The sequence ends when the channel closes.
func NewChanIterator(ch <-chan any) AsyncIterator { return core.NewChanIterator(ch) }

// NewZapHooks returns a hook set that reports cache traffic at debug level
// and failures at error level through the given logger.
func NewZapHooks(logger *zap.Logger) *Hooks { return hooks.NewZapHooks(logger) }

// defaultCache backs the package-level API. Library users that need
// isolation (tests, independent subsystems) build their own with New.
var defaultCache = core.New(nil)

// Memoize wraps fn with the default shared cache. The wrapper has the same
// calling convention as fn; results are cached per argument list.
func Memoize(fn Func) Func {
	return defaultCache.Memoize(fn)
}

// Setup replaces the default cache's store with one built from opts; unset
// options fall back to the defaults. Unexpired entries migrate into the new
// store before it is installed.
func Setup(opts ...Option) {
	defaultCache.Setup(opts...)
}

// ClearCache empties the default cache.
func ClearCache() {
	defaultCache.Clear()
}

// CacheStats reports the default cache's live entry count and capacity.
func CacheStats() Stats {
	return defaultCache.Stats()
}

// NewCachedFunction wraps a typed single-argument function with its own
// isolated cache.
//
//   - fn: the function to cache, of type func(K) (V, error).
//   - h: optional hooks for cache events. Pass nil if not needed.
//   - opts: optional store configuration.
//
// This preserves fn's signature exactly:
//
//	cachedFetch := memofn.NewCachedFunction(fetchDataFromRemote, nil)
//	result, err := cachedFetch(2000)
//
// A non-nil error from fn propagates to the caller and caches nothing.
func NewCachedFunction[K any, V any](fn func(K) (V, error), h *Hooks, opts ...Option) func(K) (V, error) {
	c := core.New(h, opts...)
	wrapped := c.Memoize(func(args ...any) (any, error) {
		return fn(args[0].(K))
	})
	return func(arg K) (V, error) {
		res, err := wrapped(arg)
		if err != nil {
			var zero V
			return zero, err
		}
		v, _ := res.(V) // a nil result yields V's zero value
		return v, nil
	}
}
