// Package core provides the reconciliation algorithm for Drupal content imports.
// This package has no storage or transport dependencies and can be driven by any frontend.
package core

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// EntityType names a kind of content in the target tree ("BlogEntry", "Member", ...).
type EntityType string

// Common field names shared by backends and importers.
const (
	FieldTitle      = "Title"
	FieldURLSegment = "URLSegment"
	FieldCreated    = "Created"
	FieldLastEdited = "LastEdited"
)

// TimestampLayout is the layout backends use when stamping Created.
const TimestampLayout = "2006-01-02 15:04:05"

// Fields holds the scalar field values of an entity.
type Fields map[string]string

// Record is one flat row from the source export. It is immutable: all
// accessors return copies or values, nothing modifies the row in place.
type Record struct {
	Line    int // 1-indexed source line, 0 if unknown
	columns []string
	values  map[string]string
}

// NewRecord builds a record from a header and a row of values.
// Missing trailing values are treated as empty; extra values are dropped.
func NewRecord(line int, header, row []string) Record {
	r := Record{
		Line:    line,
		columns: make([]string, 0, len(header)),
		values:  make(map[string]string, len(header)),
	}
	for i, col := range header {
		if _, dup := r.values[col]; dup {
			continue
		}
		val := ""
		if i < len(row) {
			val = row[i]
		}
		r.columns = append(r.columns, col)
		r.values[col] = val
	}
	return r
}

// RecordFromMap builds a record from a map. Columns are ordered by name.
func RecordFromMap(line int, m map[string]string) Record {
	cols := make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = m[c]
	}
	return NewRecord(line, cols, row)
}

// Get returns the value for a column, or "" if absent.
func (r Record) Get(col string) string {
	return r.values[col]
}

// Lookup returns the value for a column and whether the column is present.
func (r Record) Lookup(col string) (string, bool) {
	v, ok := r.values[col]
	return v, ok
}

// Columns returns the record's column names in source order.
func (r Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// IsEmpty reports whether every value is blank.
func (r Record) IsEmpty() bool {
	for _, v := range r.values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Entity is a node in the target content tree (post, comment, member, container).
// ID 0 means the entity has not been persisted yet.
type Entity struct {
	Type      EntityType
	ID        int64
	ParentID  int64
	Fields    Fields
	Published bool
}

// Get returns a field value.
func (e *Entity) Get(field string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[field]
}

// Set assigns a field value.
func (e *Entity) Set(field, value string) {
	if e.Fields == nil {
		e.Fields = make(Fields)
	}
	e.Fields[field] = value
}

// IsNew reports whether the entity still needs its first save.
func (e *Entity) IsNew() bool {
	return e.ID == 0
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Fields = make(Fields, len(e.Fields))
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	return &c
}

// Filter selects entities by exact field equality, optionally scoped to a parent.
type Filter struct {
	Fields    map[string]string
	ParentID  int64
	HasParent bool
}

// Where starts a filter on a single field.
func Where(field, value string) Filter {
	return Filter{Fields: map[string]string{field: value}}
}

// And adds a field condition. The receiver is not modified.
func (f Filter) And(field, value string) Filter {
	out := Filter{ParentID: f.ParentID, HasParent: f.HasParent, Fields: make(map[string]string, len(f.Fields)+1)}
	for k, v := range f.Fields {
		out.Fields[k] = v
	}
	out.Fields[field] = value
	return out
}

// Under scopes the filter to direct children of parentID.
func (f Filter) Under(parentID int64) Filter {
	f.ParentID = parentID
	f.HasParent = true
	return f
}

// Matches reports whether e satisfies the filter.
func (f Filter) Matches(e *Entity) bool {
	if f.HasParent && e.ParentID != f.ParentID {
		return false
	}
	for k, v := range f.Fields {
		if e.Get(k) != v {
			return false
		}
	}
	return true
}

// String renders the filter for logs and error messages.
func (f Filter) String() string {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Quote(f.Fields[k]))
	}
	if f.HasParent {
		parts = append(parts, "ParentID="+strconv.FormatInt(f.ParentID, 10))
	}
	return strings.Join(parts, " ")
}

// Outcome is the per-record result of a run.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ImportResult is the outcome of one record.
type ImportResult struct {
	Line     int     `json:"line"`
	Key      string  `json:"key,omitempty"` // natural key from the source (nid, cid, uid)
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"` // non-empty when Outcome is OutcomeFailed
	EntityID int64   `json:"entityId,omitempty"`
}

// Counts aggregates outcomes across a run.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Total returns the number of records seen.
func (c Counts) Total() int {
	return c.Created + c.Updated + c.Skipped + c.Failed
}

func (c *Counts) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		c.Created++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	}
}

// Report is the aggregated result of one import run.
type Report struct {
	RunID        string         `json:"runId"`
	Importer     string         `json:"importer"`
	Source       string         `json:"source,omitempty"`
	Preview      bool           `json:"preview"`
	Counts       Counts         `json:"counts"`
	Results      []ImportResult `json:"results"`
	RewriteRules string         `json:"rewriteRules,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	Duration     time.Duration  `json:"duration"`
	Error        string         `json:"error,omitempty"` // non-empty if the run aborted
}

// Failures returns the failed results in source order.
func (r *Report) Failures() []ImportResult {
	var out []ImportResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

func (r *Report) add(res ImportResult) {
	r.Results = append(r.Results, res)
	r.Counts.add(res.Outcome)
}

// RunPhase indicates the current stage of a run.
type RunPhase string

const (
	PhaseStarting  RunPhase = "starting"
	PhaseImporting RunPhase = "importing"
	PhaseComplete  RunPhase = "complete"
	PhaseFailed    RunPhase = "failed"
	PhaseCancelled RunPhase = "cancelled"
)

// RunProgress represents the current state of a run.
type RunProgress struct {
	RunID    string
	Importer string
	Phase    RunPhase
	Line     int
	Counts   Counts
}

// ProgressCallback is called after every record and on phase changes.
type ProgressCallback func(RunProgress)
