package core

import (
	"context"
	"fmt"
)

// HookFunc post-processes one column after direct field assignment. It may
// change any entity field and mutate related entities through the run's
// backend. Relation changes must converge: running a hook twice with the same
// input leaves the same relation set.
type HookFunc func(ctx context.Context, run *Run, e *Entity, value string, rec Record) error

// Hooks binds hook ids to functions. It is fixed when the importer is built.
type Hooks map[string]HookFunc

// runHooks executes deferred hooks in the order given.
func runHooks(ctx context.Context, run *Run, hooks Hooks, e *Entity, deferred []DeferredHook, rec Record) error {
	for _, d := range deferred {
		fn := hooks[d.HookID]
		if fn == nil {
			// NewImporter rejects unbound hooks, so this only trips on a hand-built Run.
			return fmt.Errorf("hook %q for column %q is not bound", d.HookID, d.Column)
		}
		if err := fn(ctx, run, e, d.Value, rec); err != nil {
			return fmt.Errorf("hook %s: %w", d.HookID, err)
		}
	}
	return nil
}
