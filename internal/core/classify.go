package core

import "context"

// EntryKind tags the shape of a cached result.
type EntryKind uint8

const (
	// KindValue is a plain result, stored as-is (nil goes through nilToken).
	KindValue EntryKind = iota
	// KindDeferred is an in-flight asynchronous result. The Awaitable itself
	// is stored, not its resolved value, so concurrent callers attach to the
	// same pending operation.
	KindDeferred
	// KindIterator is a live single-shot iterator, stored and shared.
	KindIterator
	// KindAsyncIterator is the asynchronous variant of KindIterator.
	KindAsyncIterator
)

// CacheEntry is the tagged union stored per cache key.
type CacheEntry struct {
	Kind    EntryKind
	Payload any
}

// Awaitable is the deferred result shape: anything a caller can await.
// A hit on a deferred entry returns the same Awaitable every waiter holds.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// Iterator is the synchronous single-shot iteration shape. Repeated hits on
// the same key return the same instance, so consumers share iteration state,
// including partial consumption.
type Iterator interface {
	Next() (any, bool)
}

// AsyncIterator is the asynchronous iteration shape. Next blocks until an
// element is produced, the sequence ends, or ctx is done. Sharing semantics
// match Iterator.
type AsyncIterator interface {
	Next(ctx context.Context) (any, bool, error)
}

// nilMarker's unexported type makes the nil sentinel non-forgeable: no caller
// can produce a value that type-asserts to *nilMarker. The padding byte keeps
// the allocation off the shared zero-size address, in case anyone compares by
// identity anyway.
type nilMarker struct{ _ byte }

// nilToken marks a cached nil result so a hit can be told apart from a
// missing entry. Never exposed.
var nilToken = new(nilMarker)

// Classify inspects a function result and builds the entry that caches it.
// The first matching shape wins: deferred, then asynchronous iterator, then
// synchronous iterator, then plain value.
func Classify(res any) CacheEntry {
	switch res.(type) {
	case Awaitable:
		return CacheEntry{Kind: KindDeferred, Payload: res}
	case AsyncIterator:
		return CacheEntry{Kind: KindAsyncIterator, Payload: res}
	case Iterator:
		return CacheEntry{Kind: KindIterator, Payload: res}
	default:
		if res == nil {
			return CacheEntry{Kind: KindValue, Payload: nilToken}
		}
		return CacheEntry{Kind: KindValue, Payload: res}
	}
}

// Unwrap returns the externally visible result for a stored entry: plain
// values have the nil marshalling reversed, the other shapes are already the
// correct type.
func (e CacheEntry) Unwrap() any {
	if e.Kind == KindValue {
		if _, ok := e.Payload.(*nilMarker); ok {
			return nil
		}
	}
	return e.Payload
}

// sliceIterator drives a fixed slice to exhaustion.
type sliceIterator struct {
	items []any
}

// NewSliceIterator exposes a finite result sequence as a cacheable Iterator.
func NewSliceIterator(items ...any) Iterator {
	return &sliceIterator{items: items}
}

func (it *sliceIterator) Next() (any, bool) {
	if len(it.items) == 0 {
		return nil, false
	}
	v := it.items[0]
	it.items = it.items[1:]
	return v, true
}

// chanIterator adapts a receive channel to the AsyncIterator shape. The
// sequence ends when the channel closes.
type chanIterator struct {
	ch <-chan any
}

// NewChanIterator exposes a channel of results as a cacheable AsyncIterator.
func NewChanIterator(ch <-chan any) AsyncIterator {
	return &chanIterator{ch: ch}
}

func (it *chanIterator) Next(ctx context.Context) (any, bool, error) {
	select {
	case v, ok := <-it.ch:
		if !ok {
			return nil, false, nil
		}
		return v, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
