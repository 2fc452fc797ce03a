package storage

import (
	"context"
	"sync"

	"github.com/platinummonkey/schoolhouse/pkg/contextkeys"
)

// AfterCommitHooks collects functions to run once a unit of work commits
type AfterCommitHooks struct {
	mu    sync.Mutex
	hooks []func(context.Context)
}

// WithAfterCommit opens a hook list for a unit of work. Backends call it
// when a transaction begins and Run after it commits.
func WithAfterCommit(ctx context.Context) (context.Context, *AfterCommitHooks) {
	hooks := &AfterCommitHooks{}
	return context.WithValue(ctx, contextkeys.AfterCommitKey, hooks), hooks
}

// AfterCommit registers fn to run after the surrounding unit of work commits.
// Outside a unit of work fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	hooks, ok := ctx.Value(contextkeys.AfterCommitKey).(*AfterCommitHooks)
	if !ok || hooks == nil {
		fn(ctx)
		return
	}
	hooks.mu.Lock()
	hooks.hooks = append(hooks.hooks, fn)
	hooks.mu.Unlock()
}

// Run executes the registered hooks in registration order. The context
// passed to hooks no longer carries the hook list, so hooks registering
// further hooks run them immediately.
func (h *AfterCommitHooks) Run(ctx context.Context) {
	h.mu.Lock()
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	ctx = context.WithValue(ctx, contextkeys.AfterCommitKey, (*AfterCommitHooks)(nil))
	for _, fn := range hooks {
		fn(ctx)
	}
}

// Len reports the number of pending hooks
func (h *AfterCommitHooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}
