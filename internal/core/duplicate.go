package core

import (
	"context"
	"fmt"
	"strings"
)

// FindFunc looks up an existing entity for a record. It must not write: during
// preview it runs against the real backend. Returning (nil, nil) means
// "no match", including when the identifying data is unavailable.
type FindFunc func(ctx context.Context, run *Run, value string, rec Record) (*Entity, error)

// DuplicateCheck is one identity strategy, keyed by the source column whose
// value is passed to Find.
type DuplicateCheck struct {
	Column string
	Find   FindFunc
}

// DuplicateResolver evaluates duplicate checks in declaration order.
type DuplicateResolver struct {
	checks []DuplicateCheck
}

// NewDuplicateResolver returns a resolver over checks.
func NewDuplicateResolver(checks []DuplicateCheck) *DuplicateResolver {
	return &DuplicateResolver{checks: checks}
}

// FindExisting returns the entity matched by the first check that finds one,
// or nil if none does. Checks whose column is missing or blank are skipped.
func (d *DuplicateResolver) FindExisting(ctx context.Context, run *Run, rec Record) (*Entity, error) {
	for _, check := range d.checks {
		val, ok := rec.Lookup(check.Column)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		found, err := check.Find(ctx, run, val, rec)
		if err != nil {
			return nil, backendErr(fmt.Sprintf("duplicate check on %q", check.Column), err)
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// FindByField is a FindFunc matching entities of type t whose field equals the value.
func FindByField(t EntityType, field string) FindFunc {
	return func(ctx context.Context, run *Run, value string, _ Record) (*Entity, error) {
		return run.Backend().FindOne(ctx, t, Where(field, value))
	}
}
