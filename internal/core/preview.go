package core

// preview.go implements the write-free backend used for dry runs.
//
// Reads fall through to the real backend; every write lands in an in-memory
// layer. Later records of the same run see what earlier records "created", so
// a preview produces the same report a real run would while the real backend
// receives no Create, Save, relation or Publish call.

import (
	"context"
	"fmt"
	"slices"
	"time"
)

type previewBackend struct {
	base Backend
	now  func() time.Time

	entities  map[int64]*Entity // entities created in preview plus shadow copies of base entities
	created   []int64           // preview-created ids in creation order
	relations map[int64]map[string][]int64
}

// NewPreviewBackend wraps base so that writes are kept in memory.
func NewPreviewBackend(base Backend) Backend {
	return &previewBackend{
		base:      base,
		now:       time.Now,
		entities:  make(map[int64]*Entity),
		relations: make(map[int64]map[string][]int64),
	}
}

func (p *previewBackend) FindOne(ctx context.Context, t EntityType, f Filter) (*Entity, error) {
	found, err := p.base.FindOne(ctx, t, f)
	if err != nil {
		return nil, err
	}
	if found != nil {
		if shadow, ok := p.entities[found.ID]; ok {
			found = nil
			if f.Matches(shadow) {
				found = shadow
			}
		}
	}
	// A base entity edited in this run may match now where the base copy
	// does not. The lowest id wins, as it would in the base backend.
	for _, id := range p.shadowIDs() {
		if found != nil && id >= found.ID {
			break
		}
		if e := p.entities[id]; e.Type == t && f.Matches(e) {
			found = e
			break
		}
	}
	if found != nil {
		return found.Clone(), nil
	}
	// Preview-created ids are negative and always newer than base entities.
	for _, id := range p.created {
		e := p.entities[id]
		if e.Type == t && f.Matches(e) {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

// shadowIDs returns the ids of shadowed base entities in ascending order.
func (p *previewBackend) shadowIDs() []int64 {
	ids := make([]int64, 0, len(p.entities)-len(p.created))
	for id := range p.entities {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (p *previewBackend) Create(_ context.Context, t EntityType, fields Fields) (*Entity, error) {
	e := &Entity{Type: t, Fields: make(Fields, len(fields))}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e, nil
}

func (p *previewBackend) Save(ctx context.Context, e *Entity) error {
	if e.IsNew() {
		e.ID = -int64(len(p.created) + 1)
		stamp := p.now().Format(TimestampLayout)
		e.Set(FieldCreated, stamp)
		if e.Get(FieldLastEdited) == "" {
			e.Set(FieldLastEdited, stamp)
		}
		if err := AssignURLSegment(ctx, p, e); err != nil {
			return err
		}
		p.created = append(p.created, e.ID)
	} else if err := AssignURLSegment(ctx, p, e); err != nil {
		return err
	}
	p.entities[e.ID] = e.Clone()
	return nil
}

func (p *previewBackend) AddRelation(_ context.Context, e *Entity, relation string, related *Entity) error {
	if e.IsNew() || related.IsNew() {
		return fmt.Errorf("add %s relation: both entities must be saved first", relation)
	}
	rels := p.relationsOf(e.ID)
	for _, id := range rels[relation] {
		if id == related.ID {
			return nil
		}
	}
	rels[relation] = append(rels[relation], related.ID)
	return nil
}

func (p *previewBackend) ClearRelation(_ context.Context, e *Entity, relation string) error {
	if e.IsNew() {
		return fmt.Errorf("clear %s relation: entity must be saved first", relation)
	}
	p.relationsOf(e.ID)[relation] = nil
	return nil
}

func (p *previewBackend) relationsOf(id int64) map[string][]int64 {
	rels, ok := p.relations[id]
	if !ok {
		rels = make(map[string][]int64)
		p.relations[id] = rels
	}
	return rels
}

func (p *previewBackend) Publish(_ context.Context, e *Entity) error {
	if e.IsNew() {
		return fmt.Errorf("publish %s: entity must be saved first", e.Type)
	}
	e.Published = true
	if stored, ok := p.entities[e.ID]; ok {
		stored.Published = true
	} else {
		p.entities[e.ID] = e.Clone()
	}
	return nil
}

func (p *previewBackend) Link(ctx context.Context, e *Entity) (string, error) {
	segment := e.Get(FieldURLSegment)
	if e.ParentID == 0 {
		return "/" + segment + "/", nil
	}
	if parent, ok := p.entities[e.ParentID]; ok {
		parentLink, err := p.Link(ctx, parent)
		if err != nil {
			return "", err
		}
		return parentLink + segment + "/", nil
	}
	// Parent only exists in the real backend; let it walk the stored ancestry.
	return p.base.Link(ctx, &Entity{Type: e.Type, ParentID: e.ParentID, Fields: Fields{FieldURLSegment: segment}})
}
