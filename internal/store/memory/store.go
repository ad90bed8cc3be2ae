// Package memory provides an in-memory content tree and run history.
//
// It backs `--backend memory` runs and the tests of every package that needs
// a real core.Backend. Write counters make it possible to assert that a
// preview run left the store untouched.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
)

// WriteStats counts mutating backend calls.
type WriteStats struct {
	Creates   int `json:"creates"` // Create calls
	Inserts   int `json:"inserts"` // Saves of new entities
	Updates   int `json:"updates"` // Saves of existing entities
	Relations int `json:"relations"`
	Publishes int `json:"publishes"`
}

// Total returns the number of mutating calls.
func (w WriteStats) Total() int {
	return w.Creates + w.Inserts + w.Updates + w.Relations + w.Publishes
}

// Store is a thread-safe in-memory implementation of core.Backend and
// core.History.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	nextID    int64
	entities  map[int64]*core.Entity
	order     []int64 // creation order
	relations map[int64]map[string][]int64
	stats     WriteStats

	runs []core.RunRecord
}

var (
	_ core.Backend = (*Store)(nil)
	_ core.History = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:       time.Now,
		entities:  make(map[int64]*core.Entity),
		relations: make(map[int64]map[string][]int64),
	}
}

// SetClock replaces the clock used to stamp Created and LastEdited.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FindOne returns the first entity of type t, by creation order, matching f.
func (s *Store) FindOne(ctx context.Context, t core.EntityType, f core.Filter) (*core.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findOne(ctx, t, f)
}

func (s *Store) findOne(_ context.Context, t core.EntityType, f core.Filter) (*core.Entity, error) {
	for _, id := range s.order {
		e := s.entities[id]
		if e.Type == t && f.Matches(e) {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

// Create returns an unsaved entity.
func (s *Store) Create(_ context.Context, t core.EntityType, fields core.Fields) (*core.Entity, error) {
	s.mu.Lock()
	s.stats.Creates++
	s.mu.Unlock()

	e := &core.Entity{Type: t, Fields: make(core.Fields, len(fields))}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e, nil
}

// Save inserts a new entity or replaces a stored one. Inserts stamp Created
// (overwriting any value), stamp LastEdited when empty and assign a unique
// URL segment.
func (s *Store) Save(ctx context.Context, e *core.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.IsNew() {
		stamp := s.now().Format(core.TimestampLayout)
		e.Set(core.FieldCreated, stamp)
		if e.Get(core.FieldLastEdited) == "" {
			e.Set(core.FieldLastEdited, stamp)
		}
		if err := core.AssignURLSegment(ctx, core.FinderFunc(s.findOne), e); err != nil {
			return err
		}
		s.nextID++
		e.ID = s.nextID
		s.order = append(s.order, e.ID)
		s.entities[e.ID] = e.Clone()
		s.stats.Inserts++
		return nil
	}

	if _, ok := s.entities[e.ID]; !ok {
		return fmt.Errorf("save %s %d: %w", e.Type, e.ID, core.ErrNotFound)
	}
	if err := core.AssignURLSegment(ctx, core.FinderFunc(s.findOne), e); err != nil {
		return err
	}
	s.entities[e.ID] = e.Clone()
	s.stats.Updates++
	return nil
}

// AddRelation links related to e under relation. Adding an existing link is a no-op.
func (s *Store) AddRelation(_ context.Context, e *core.Entity, relation string, related *core.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStored(e); err != nil {
		return fmt.Errorf("add %s relation: %w", relation, err)
	}
	if err := s.requireStored(related); err != nil {
		return fmt.Errorf("add %s relation: %w", relation, err)
	}

	rels := s.relationsOf(e.ID)
	for _, id := range rels[relation] {
		if id == related.ID {
			return nil
		}
	}
	rels[relation] = append(rels[relation], related.ID)
	s.stats.Relations++
	return nil
}

// ClearRelation removes every link of e under relation.
func (s *Store) ClearRelation(_ context.Context, e *core.Entity, relation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStored(e); err != nil {
		return fmt.Errorf("clear %s relation: %w", relation, err)
	}
	s.relationsOf(e.ID)[relation] = nil
	s.stats.Relations++
	return nil
}

// Publish marks e as published.
func (s *Store) Publish(_ context.Context, e *core.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entities[e.ID]
	if !ok {
		return fmt.Errorf("publish %s %d: %w", e.Type, e.ID, core.ErrNotFound)
	}
	stored.Published = true
	e.Published = true
	s.stats.Publishes++
	return nil
}

// Link returns the relative link of e built from the URL segments of its
// ancestor chain, e.g. "/blogs/my-blog/hello/".
func (s *Store) Link(_ context.Context, e *core.Entity) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link := e.Get(core.FieldURLSegment) + "/"
	seen := map[int64]bool{e.ID: true}
	for parentID := e.ParentID; parentID != 0; {
		parent, ok := s.entities[parentID]
		if !ok {
			return "", fmt.Errorf("link %s: parent %d: %w", e.Type, parentID, core.ErrNotFound)
		}
		if seen[parentID] {
			return "", fmt.Errorf("link %s: cycle at %d", e.Type, parentID)
		}
		seen[parentID] = true
		link = parent.Get(core.FieldURLSegment) + "/" + link
		parentID = parent.ParentID
	}
	return "/" + link, nil
}

func (s *Store) requireStored(e *core.Entity) error {
	if e == nil || e.IsNew() {
		return fmt.Errorf("entity must be saved first")
	}
	if _, ok := s.entities[e.ID]; !ok {
		return fmt.Errorf("%s %d: %w", e.Type, e.ID, core.ErrNotFound)
	}
	return nil
}

func (s *Store) relationsOf(id int64) map[string][]int64 {
	rels, ok := s.relations[id]
	if !ok {
		rels = make(map[string][]int64)
		s.relations[id] = rels
	}
	return rels
}

// Get returns a stored entity by id.
func (s *Store) Get(id int64) (*core.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// All returns every entity of type t in creation order.
func (s *Store) All(t core.EntityType) []*core.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Entity
	for _, id := range s.order {
		if e := s.entities[id]; e.Type == t {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Count returns the number of entities of type t.
func (s *Store) Count(t core.EntityType) int {
	return len(s.All(t))
}

// Related returns the entities linked to e under relation, in link order.
func (s *Store) Related(e *core.Entity, relation string) []*core.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Entity
	for _, id := range s.relations[e.ID][relation] {
		if r, ok := s.entities[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Stats returns the write counters.
func (s *Store) Stats() WriteStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// RecordRun stores a run record, replacing one with the same id.
func (s *Store) RecordRun(_ context.Context, rec core.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.runs {
		if s.runs[i].ID == rec.ID {
			s.runs[i] = rec
			return nil
		}
	}
	s.runs = append(s.runs, rec)
	return nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(_ context.Context, limit int) ([]core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.RunRecord, len(s.runs))
	copy(out, s.runs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(_ context.Context, id string) (*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.runs {
		if s.runs[i].ID == id {
			rec := s.runs[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
}

// PruneRuns deletes runs started before the cutoff.
func (s *Store) PruneRuns(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.runs[:0]
	var pruned int64
	for _, rec := range s.runs {
		if rec.StartedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	s.runs = kept
	return pruned, nil
}
