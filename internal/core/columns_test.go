package core

import (
	"reflect"
	"testing"
)

func TestMapRecord(t *testing.T) {
	cm := ColumnMap{
		Field("nid", "DrupalNid"),
		Hook("body", "content"),
		Field("title", FieldTitle),
		Hook("tags", "tags"),
		Field("changed", FieldLastEdited),
	}

	// Record order differs from map order; "extra" is undeclared, "changed" absent.
	rec := NewRecord(2,
		[]string{"tags", "extra", "title", "body", "nid"},
		[]string{"a, b", "ignored", "Hello", "<p>x</p>", "5"},
	)

	assignments, hooks := MapRecord(rec, cm)

	wantAssign := []Assignment{
		{Field: "DrupalNid", Value: "5"},
		{Field: FieldTitle, Value: "Hello"},
	}
	if !reflect.DeepEqual(assignments, wantAssign) {
		t.Errorf("assignments = %+v, want %+v", assignments, wantAssign)
	}

	wantHooks := []DeferredHook{
		{HookID: "content", Column: "body", Value: "<p>x</p>"},
		{HookID: "tags", Column: "tags", Value: "a, b"},
	}
	if !reflect.DeepEqual(hooks, wantHooks) {
		t.Errorf("hooks = %+v, want %+v", hooks, wantHooks)
	}
}

func TestMapRecord_UndeclaredColumnDoesNotChangeOutput(t *testing.T) {
	cm := ColumnMap{Field("title", FieldTitle)}

	plain := RecordFromMap(1, map[string]string{"title": "A"})
	superset := RecordFromMap(1, map[string]string{"title": "A", "legacy_flag": "1", "Title": "B"})

	a1, h1 := MapRecord(plain, cm)
	a2, h2 := MapRecord(superset, cm)
	if !reflect.DeepEqual(a1, a2) || !reflect.DeepEqual(h1, h2) {
		t.Errorf("superset export changed output: %+v/%+v vs %+v/%+v", a1, h1, a2, h2)
	}
}

func TestColumnMap_Without(t *testing.T) {
	cm := ColumnMap{Field("uid", "DrupalUid"), Field("title", "Nickname"), Field("mail", "Email")}

	got := cm.Without("uid")
	if len(got) != 2 || got[0].Source != "title" {
		t.Errorf("Without(uid) = %+v", got)
	}
	if len(cm) != 3 {
		t.Error("Without must not modify the receiver")
	}

	if _, ok := got.Target("uid"); ok {
		t.Error("uid should be gone")
	}
	if col, ok := got.Target("mail"); !ok || col.Target != "Email" || col.Kind != ColumnField {
		t.Errorf("Target(mail) = %+v, %v", col, ok)
	}
}

func TestRecord(t *testing.T) {
	rec := NewRecord(3, []string{"a", "b", "a"}, []string{"1"})

	if got := rec.Columns(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Columns() = %v, duplicate header should keep first", got)
	}
	if v, ok := rec.Lookup("b"); !ok || v != "" {
		t.Errorf("short row: Lookup(b) = %q, %v", v, ok)
	}
	if _, ok := rec.Lookup("c"); ok {
		t.Error("Lookup(c) should report absent")
	}
	if rec.IsEmpty() {
		t.Error("record with a value is not empty")
	}
	if !NewRecord(4, []string{"a"}, []string{"  "}).IsEmpty() {
		t.Error("blank record should be empty")
	}

	cols := rec.Columns()
	cols[0] = "mutated"
	if rec.Columns()[0] != "a" {
		t.Error("Columns() must return a copy")
	}
}
