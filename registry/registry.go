package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/soyjavierquiroz/kurukin-core/store"
)

// ErrNoStacks is returned when no active stack is available for a pick.
var ErrNoStacks = errors.New("no active stacks available")

// Registry holds the current stack inventory and assigns stacks to tenants
// with a persisted round-robin pointer per vertical. The inventory can be
// swapped at runtime via Replace when the stacks file changes.
type Registry struct {
	mu       sync.RWMutex
	stacks   []Stack
	pointers store.PointerStore
	logger   *slog.Logger
}

// New creates a Registry over an initial inventory.
func New(stacks []Stack, pointers store.PointerStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{stacks: stacks, pointers: pointers, logger: logger}
}

// Replace swaps the whole inventory. Round-robin pointers are kept; the
// pick index is always reduced modulo the current pool size.
func (r *Registry) Replace(stacks []Stack) {
	r.mu.Lock()
	r.stacks = stacks
	r.mu.Unlock()
	r.logger.Info("stack inventory replaced", "stacks", len(stacks))
}

// ActiveStacks returns the active subset of the inventory.
func (r *Registry) ActiveStacks() []Stack {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Stack
	for _, s := range r.stacks {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// Get returns the stack with the given id, active or not.
func (r *Registry) Get(stackID string) (Stack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.stacks {
		if s.StackID == stackID {
			return s, true
		}
	}
	return Stack{}, false
}

// PickForVertical selects a stack for a new tenant in the given vertical.
// It tries stacks supporting the vertical first, then stacks supporting
// "general", then any active stack. Within the candidate pool the pick
// rotates round-robin, keyed by the vertical, so consecutive tenants land
// on different stacks.
func (r *Registry) PickForVertical(ctx context.Context, vertical string) (Stack, error) {
	vertical = Slug(vertical)
	if vertical == "" {
		vertical = "general"
	}

	pool := r.candidates(vertical)
	if len(pool) == 0 {
		return Stack{}, ErrNoStacks
	}

	idx, err := r.pointers.Next(ctx, vertical, len(pool))
	if err != nil {
		return Stack{}, err
	}
	picked := pool[idx]
	r.logger.Info("stack picked",
		"vertical", vertical,
		"stack_id", picked.StackID,
		"pool", len(pool),
		"index", idx)
	return picked, nil
}

// candidates builds the pick pool for a vertical using the fallback chain.
func (r *Registry) candidates(vertical string) []Stack {
	active := r.ActiveStacks()

	var exact []Stack
	for _, s := range active {
		if s.Supports(vertical) {
			exact = append(exact, s)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	var general []Stack
	for _, s := range active {
		if s.Supports("general") {
			general = append(general, s)
		}
	}
	if len(general) > 0 {
		return general
	}
	return active
}
