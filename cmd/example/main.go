package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ostrenko/memofn"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cache := memofn.New(memofn.NewZapHooks(logger))

	// Plain value shape: the second call is served from the cache.
	cachedFunction := cache.Memoize(func(args ...any) (any, error) {
		return heavyComputation(args[0].(time.Duration))
	})
	fmt.Printf("[%v] Starting heavy computation...\n", time.Now().Truncate(time.Second))
	res, err := cachedFunction(2000 * time.Millisecond)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("[%v] Heavy computation completed, result - %s.\n", time.Now().Truncate(time.Second), res)

	fmt.Printf("[%v] Starting cached heavy computation...\n", time.Now().Truncate(time.Second))
	res, err = cachedFunction(2000 * time.Millisecond)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("[%v] Heavy computation completed, result cached - %s.\n", time.Now().Truncate(time.Second), res)

	// Deferred shape: both calls share one underlying computation.
	deferredFn := cache.Memoize(func(args ...any) (any, error) {
		return memofn.NewDeferred(func() (any, error) {
			time.Sleep(time.Second)
			return "deferred value", nil
		}), nil
	})
	first, _ := deferredFn()
	second, _ := deferredFn()
	v, _ := first.(memofn.Awaitable).Await(context.Background())
	fmt.Printf("deferred resolved to %q (shared: %v)\n", v, first == second)

	// Iterator shape: hits share the same live iterator, including
	// whatever has already been consumed.
	iterFn := cache.Memoize(func(args ...any) (any, error) {
		return memofn.NewSliceIterator(1, 2, 3), nil
	})
	it1, _ := iterFn()
	it2, _ := iterFn()
	a, _ := it1.(memofn.Iterator).Next()
	b, _ := it2.(memofn.Iterator).Next()
	fmt.Printf("shared iterator yielded %v then %v\n", a, b)

	stats := cache.Stats()
	fmt.Printf("cache holds %d of %d entries\n", stats.Size, stats.Max)
}

func heavyComputation(t time.Duration) (string, error) {
	time.Sleep(t)
	return "cached value", nil
}
