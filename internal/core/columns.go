package core

import "fmt"

// ColumnKind distinguishes direct field columns from hook columns.
type ColumnKind int

const (
	// ColumnField copies the raw value into a target field.
	ColumnField ColumnKind = iota
	// ColumnHook defers the value to a named hook.
	ColumnHook
)

func (k ColumnKind) String() string {
	switch k {
	case ColumnField:
		return "field"
	case ColumnHook:
		return "hook"
	default:
		return fmt.Sprintf("ColumnKind(%d)", int(k))
	}
}

// Column maps one source column to either a target field or a hook.
type Column struct {
	Source string     // Column name in the export (must match the header exactly)
	Kind   ColumnKind // Field or hook
	Target string     // Field name for ColumnField, hook id for ColumnHook
}

// Field declares a direct field column.
func Field(source, target string) Column {
	return Column{Source: source, Kind: ColumnField, Target: target}
}

// Hook declares a column handled by the hook bound to hookID.
func Hook(source, hookID string) Column {
	return Column{Source: source, Kind: ColumnHook, Target: hookID}
}

// ColumnMap is the ordered column declaration of an importer.
// Declaration order is the order hooks run in.
type ColumnMap []Column

// Assignment is a direct field assignment produced by MapRecord.
type Assignment struct {
	Field string
	Value string
}

// DeferredHook is a hook invocation produced by MapRecord.
type DeferredHook struct {
	HookID string
	Column string
	Value  string
}

// MapRecord resolves a record against the column map. Columns the map does not
// declare are ignored, and declared columns absent from the record produce nothing.
// Both results follow column map order, not record order.
func MapRecord(rec Record, cm ColumnMap) ([]Assignment, []DeferredHook) {
	var assignments []Assignment
	var hooks []DeferredHook

	for _, col := range cm {
		val, ok := rec.Lookup(col.Source)
		if !ok {
			continue
		}
		switch col.Kind {
		case ColumnField:
			assignments = append(assignments, Assignment{Field: col.Target, Value: val})
		case ColumnHook:
			hooks = append(hooks, DeferredHook{HookID: col.Target, Column: col.Source, Value: val})
		}
	}

	return assignments, hooks
}

// Apply assigns the mapped fields to the entity.
func Apply(e *Entity, assignments []Assignment) {
	for _, a := range assignments {
		e.Set(a.Field, a.Value)
	}
}

// Target returns the target of the first column declared for source.
func (cm ColumnMap) Target(source string) (Column, bool) {
	for _, col := range cm {
		if col.Source == source {
			return col, true
		}
	}
	return Column{}, false
}

// Without returns a copy of the map minus the given source columns.
func (cm ColumnMap) Without(sources ...string) ColumnMap {
	drop := make(map[string]bool, len(sources))
	for _, s := range sources {
		drop[s] = true
	}
	out := make(ColumnMap, 0, len(cm))
	for _, col := range cm {
		if !drop[col.Source] {
			out = append(out, col)
		}
	}
	return out
}
