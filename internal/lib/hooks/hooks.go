// Package hooks defines the lifecycle hooks a cache can fire around its
// operations. Hooks are optional; the cache itself never logs or records
// metrics, it only calls out through whatever set the caller installs.
package hooks

import (
	"fmt"

	"go.uber.org/zap"
)

// HookFunc is called on lifecycle events. It receives the cache key of the
// operation and may return an error to signal that something went wrong.
type HookFunc func(key string) error

// HookFuncError is called whenever another hook errors or panics.
// It must never panic itself.
type HookFuncError func(err error)

// Hooks holds the set of lifecycle hooks and an error-logging hook.
type Hooks struct {
	OnHit    HookFunc      // called after a cache hit
	OnMiss   HookFunc      // called before the underlying function runs
	OnSet    HookFunc      // called after a result is stored
	OnEvict  HookFunc      // called after an entry is removed for any reason
	LogError HookFuncError // called on any hook error or panic, and on wrapped-function errors
}

// Run executes the given hook fn with the provided key.
// If fn returns an error *or* panics, Run will recover and forward
// the error to Hooks.LogError (if non-nil), and will not panic itself.
func (h *Hooks) Run(fn HookFunc, key string) {
	if fn == nil {
		return
	}

	// catch panics in the hook
	defer func() {
		if r := recover(); r != nil {
			h.SafeLogError(toError(r))
		}
	}()

	// run the hook
	if err := fn(key); err != nil {
		h.SafeLogError(err)
	}
}

// SafeLogError calls the LogError hook if set, and recovers if it panics.
func (h *Hooks) SafeLogError(err error) {
	if h.LogError == nil {
		return
	}
	defer func() {
		recover() // swallow any panic in LogError
	}()
	h.LogError(err)
}

// toError converts a recovered panic value into an error.
func toError(r any) error {
	switch v := r.(type) {
	case error:
		return v
	case string:
		return fmt.Errorf("%s", v)
	default:
		return fmt.Errorf("%v", v)
	}
}

// NewZapHooks returns a hook set that reports cache traffic at debug level
// and failures at error level through the given logger.
func NewZapHooks(logger *zap.Logger) *Hooks {
	return &Hooks{
		OnHit: func(key string) error {
			logger.Debug("cache hit", zap.String("key", key))
			return nil
		},
		OnMiss: func(key string) error {
			logger.Debug("cache miss", zap.String("key", key))
			return nil
		},
		OnSet: func(key string) error {
			logger.Debug("cache set", zap.String("key", key))
			return nil
		},
		OnEvict: func(key string) error {
			logger.Debug("cache evict", zap.String("key", key))
			return nil
		},
		LogError: func(err error) {
			logger.Error("cache error", zap.Error(err))
		},
	}
}
