package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnValuesAreCached(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return args[0].(int) * 2, nil
	})

	v1, err := cached(5)
	require.NoError(t, err)
	v2, err := cached(5)
	require.NoError(t, err)

	assert.Equal(t, 10, v1)
	assert.Equal(t, 10, v2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDistinctArgumentsInvokeSeparately(t *testing.T) {
	var counter atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		return int(counter.Add(1)) - 1, nil
	})

	v1, err := cached("a")
	require.NoError(t, err)
	v2, err := cached("b")
	require.NoError(t, err)

	assert.Equal(t, 0, v1)
	assert.Equal(t, 1, v2)
}

func TestZeroArgumentCallsAreCached(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return "once", nil
	})

	cached()
	cached()
	assert.Equal(t, int32(1), calls.Load())
}

func TestWrappedFunctionsDoNotShareKeys(t *testing.T) {
	c := New(nil)

	f := c.Memoize(func(args ...any) (any, error) { return "f", nil })
	g := c.Memoize(func(args ...any) (any, error) { return "g", nil })

	vf, _ := f(1)
	vg, _ := g(1)
	assert.Equal(t, "f", vf)
	assert.Equal(t, "g", vg)
}

func TestNilResultRoundTrips(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	v, err := cached()
	require.NoError(t, err)
	assert.Nil(t, v)

	// The hit must return nil again, not the internal token.
	v, err = cached()
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestZeroSizePointerResultRoundTrips(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	// A *struct{} result shares its address with every other zero-size
	// allocation; it must still come back as itself on a hit, never as nil.
	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return new(struct{}), nil
	})

	first, err := cached()
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := cached()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return nil, boom
	})

	_, err := cached(1)
	assert.ErrorIs(t, err, boom)
	_, err = cached(1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPanicsSurfaceAsErrPanicAndAreNotCached(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		panic("kaboom")
	})

	_, err := cached()
	assert.ErrorIs(t, err, ErrPanic)
	_, err = cached()
	assert.ErrorIs(t, err, ErrPanic)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConcurrentCallsAreDeduplicated(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		return args[0].(int) * 3, nil
	})

	const n = 10
	var wg sync.WaitGroup
	results := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cached(4)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 12, results[i])
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRacingMissesNeverDoubleInvoke(t *testing.T) {
	const rounds = 200
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(nil, WithMaxEntries(rounds))

	// The wrapper returns a still-pending deferred immediately, so the window
	// between the function returning and its result being published is live on
	// every round. Each key must still run the function exactly once.
	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return NewDeferred(func() (any, error) {
			<-release
			return args[0], nil
		}), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := cached(i)
				assert.NoError(t, err)
			}(i)
		}
	}
	wg.Wait()
	close(release)

	assert.Equal(t, int32(rounds), calls.Load())
}

func TestDeferredCallersShareOneInvocation(t *testing.T) {
	var invocations atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		return NewDeferred(func() (any, error) {
			invocations.Add(1)
			time.Sleep(50 * time.Millisecond)
			return "shared", nil
		}), nil
	})

	const n = 3
	var wg sync.WaitGroup
	values := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cached("k")
			if err != nil {
				errs[i] = err
				return
			}
			values[i], errs[i] = res.(Awaitable).Await(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), invocations.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", values[i])
	}
}

func TestDeferredEntryIsThePendingOperationItself(t *testing.T) {
	c := New(nil)
	release := make(chan struct{})

	cached := c.Memoize(func(args ...any) (any, error) {
		return NewDeferred(func() (any, error) {
			<-release
			return "v", nil
		}), nil
	})

	first, err := cached()
	require.NoError(t, err)
	second, err := cached()
	require.NoError(t, err)

	// Both callers hold the same still-pending deferred.
	assert.Same(t, first, second)
	assert.False(t, first.(*Deferred).Settled())
	close(release)
}

func TestDeferredFailureEvictsEntry(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		n := calls.Add(1)
		return NewDeferred(func() (any, error) {
			if n == 1 {
				return nil, boom
			}
			return "recovered", nil
		}), nil
	})

	res, err := cached("k")
	require.NoError(t, err)
	_, err = res.(Awaitable).Await(context.Background())
	assert.ErrorIs(t, err, boom)

	// The settlement watcher removes the entry shortly after rejection.
	assert.Eventually(t, func() bool {
		return c.Stats().Size == 0
	}, time.Second, 5*time.Millisecond)

	res, err = cached("k")
	require.NoError(t, err)
	v, err := res.(Awaitable).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStaleRejectionSparesRecomputedEntry(t *testing.T) {
	var calls atomic.Int32
	fail := make(chan error, 1)
	c := New(nil, WithTTL(100*time.Millisecond), WithCleanupInterval(0))

	cached := c.Memoize(func(args ...any) (any, error) {
		if calls.Add(1) == 1 {
			return NewDeferred(func() (any, error) {
				return nil, <-fail
			}), nil
		}
		return Resolve("fresh"), nil
	})

	first, err := cached("k")
	require.NoError(t, err)

	// Let the entry expire, then recompute the key.
	time.Sleep(120 * time.Millisecond)
	second, err := cached("k")
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Equal(t, 1, c.Stats().Size)

	// The first deferred rejects only now. Its watcher is watching a record
	// that no longer exists and must leave the replacement alone.
	fail <- errors.New("late failure")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, c.Stats().Size)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIteratorHitsShareConsumptionState(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return NewSliceIterator(1, 2, 3), nil
	})

	first, err := cached()
	require.NoError(t, err)
	second, err := cached()
	require.NoError(t, err)
	assert.Same(t, first, second)

	v, ok := first.(Iterator).Next()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// The second holder sees only what is left unconsumed.
	v, ok = second.(Iterator).Next()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAsyncIteratorHitsShareInstance(t *testing.T) {
	c := New(nil)
	ch := make(chan any, 2)
	ch <- "x"
	ch <- "y"
	close(ch)

	cached := c.Memoize(func(args ...any) (any, error) {
		return NewChanIterator(ch), nil
	})

	first, _ := cached()
	second, _ := cached()
	assert.Same(t, first, second)

	v, ok, err := first.(AsyncIterator).Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok, err = second.(AsyncIterator).Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "y", v)
}

func TestResultsExpireAfterTTL(t *testing.T) {
	var calls atomic.Int32
	c := New(nil, WithTTL(50*time.Millisecond), WithCleanupInterval(0))

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return args[0].(int) + 1, nil
	})

	v, _ := cached(7)
	assert.Equal(t, 8, v)
	v, _ = cached(7)
	assert.Equal(t, 8, v)
	assert.Equal(t, int32(1), calls.Load())

	time.Sleep(60 * time.Millisecond)

	v, _ = cached(7)
	assert.Equal(t, 8, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheCapacityLimitAndEviction(t *testing.T) {
	var calls atomic.Int32
	c := New(nil, WithMaxEntries(2), WithTTL(0))

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return args[0], nil
	})

	cached(1) // call #1
	cached(2) // call #2

	// At capacity, this read refreshes key 1's recency.
	cached(1)

	cached(3) // call #3, evicts key 2
	cached(2) // call #4, miss again

	assert.Equal(t, int32(4), calls.Load())
}

func TestZeroCapacityDisablesCaching(t *testing.T) {
	var calls atomic.Int32
	c := New(nil, WithMaxEntries(0))

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return "v", nil
	})

	cached()
	cached()
	assert.Equal(t, int32(2), calls.Load())
}

func TestSetupMigratesUnexpiredEntries(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return args[0].(int) * 10, nil
	})

	for i := 0; i < 3; i++ {
		cached(i)
	}
	require.Equal(t, int32(3), calls.Load())

	c.Setup(WithMaxEntries(50), WithTTL(time.Minute))

	stats := c.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 50, stats.Max)

	// Previously cached results remain retrievable without re-invoking.
	for i := 0; i < 3; i++ {
		v, err := cached(i)
		require.NoError(t, err)
		assert.Equal(t, i*10, v)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestSetupDropsEntriesBeyondNewCapacity(t *testing.T) {
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		return args[0], nil
	})
	for i := 0; i < 5; i++ {
		cached(i)
	}

	c.Setup(WithMaxEntries(2))
	assert.Equal(t, 2, c.Stats().Size)
}

func TestClearEmptiesActiveStore(t *testing.T) {
	var calls atomic.Int32
	c := New(nil)

	cached := c.Memoize(func(args ...any) (any, error) {
		calls.Add(1)
		return "v", nil
	})

	cached()
	c.Clear()
	cached()
	assert.Equal(t, int32(2), calls.Load())
}

func TestStatsReflectLivePrunedCount(t *testing.T) {
	c := New(nil, WithTTL(30*time.Millisecond), WithCleanupInterval(0))

	cached := c.Memoize(func(args ...any) (any, error) {
		return args[0], nil
	})
	cached(1)
	cached(2)
	assert.Equal(t, 2, c.Stats().Size)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, c.Stats().Size)
	assert.Equal(t, DefaultMaxEntries, c.Stats().Max)
}
