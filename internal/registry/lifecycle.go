package registry

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// LifecycleHook is executed when a spec is registered or unregistered.
// Hooks run synchronously; an error aborts the operation.
type LifecycleHook interface {
	// OnRegister is called after the spec has been completed and before it
	// becomes visible to lookups.
	OnRegister(ctx context.Context, spec *core.Spec) error

	// OnUnregister is called before the spec is removed.
	OnUnregister(ctx context.Context, spec *core.Spec) error
}

// LifecycleHookFunc adapts plain functions to LifecycleHook. Nil functions are no-ops.
type LifecycleHookFunc struct {
	OnRegisterFunc   func(ctx context.Context, spec *core.Spec) error
	OnUnregisterFunc func(ctx context.Context, spec *core.Spec) error
}

// OnRegister calls OnRegisterFunc if it's not nil.
func (f LifecycleHookFunc) OnRegister(ctx context.Context, spec *core.Spec) error {
	if f.OnRegisterFunc != nil {
		return f.OnRegisterFunc(ctx, spec)
	}
	return nil
}

// OnUnregister calls OnUnregisterFunc if it's not nil.
func (f LifecycleHookFunc) OnUnregister(ctx context.Context, spec *core.Spec) error {
	if f.OnUnregisterFunc != nil {
		return f.OnUnregisterFunc(ctx, spec)
	}
	return nil
}

// LifecycleManager holds the hooks run by a Registry.
type LifecycleManager struct {
	mu    sync.RWMutex
	hooks []LifecycleHook
}

// NewLifecycleManager creates a new lifecycle manager.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// RegisterHook adds a hook. Hooks run in the order they were added.
func (lm *LifecycleManager) RegisterHook(hook LifecycleHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

// HookCount returns the number of registered hooks.
func (lm *LifecycleManager) HookCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.hooks)
}

func (lm *LifecycleManager) snapshot() []LifecycleHook {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	hooks := make([]LifecycleHook, len(lm.hooks))
	copy(hooks, lm.hooks)
	return hooks
}

// ExecuteRegisterHooks runs every OnRegister hook, stopping at the first error.
func (lm *LifecycleManager) ExecuteRegisterHooks(ctx context.Context, spec *core.Spec) error {
	for _, hook := range lm.snapshot() {
		if err := hook.OnRegister(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteUnregisterHooks runs every OnUnregister hook, stopping at the first error.
func (lm *LifecycleManager) ExecuteUnregisterHooks(ctx context.Context, spec *core.Spec) error {
	for _, hook := range lm.snapshot() {
		if err := hook.OnUnregister(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}
