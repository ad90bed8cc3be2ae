package core

import (
	"context"
	"io"
)

// Backend is the content tree the importer reconciles against.
// Implementations own persistence, URL segments and publishing.
//
// FindOne returns (nil, nil) when nothing matches; when several entities match
// it returns the first by creation order.
type Backend interface {
	Finder
	Create(ctx context.Context, t EntityType, fields Fields) (*Entity, error)
	Save(ctx context.Context, e *Entity) error
	AddRelation(ctx context.Context, e *Entity, relation string, related *Entity) error
	ClearRelation(ctx context.Context, e *Entity, relation string) error
	Publish(ctx context.Context, e *Entity) error
	Link(ctx context.Context, e *Entity) (string, error)
}

// Finder is the lookup half of Backend.
type Finder interface {
	FindOne(ctx context.Context, t EntityType, f Filter) (*Entity, error)
}

// FinderFunc adapts a function to Finder. Backends use it to hand their
// unlocked lookup to AssignURLSegment while holding their own lock.
type FinderFunc func(ctx context.Context, t EntityType, f Filter) (*Entity, error)

// FindOne calls fn.
func (fn FinderFunc) FindOne(ctx context.Context, t EntityType, f Filter) (*Entity, error) {
	return fn(ctx, t, f)
}

// RecordReader yields records in source order. Read returns io.EOF when done.
type RecordReader interface {
	Read() (Record, error)
}

// SliceReader adapts a slice of records to RecordReader.
type SliceReader struct {
	records []Record
	pos     int
}

// NewSliceReader returns a reader over records.
func NewSliceReader(records ...Record) *SliceReader {
	return &SliceReader{records: records}
}

func (s *SliceReader) Read() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}
