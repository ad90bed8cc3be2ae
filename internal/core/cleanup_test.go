package core

import (
	"context"
	"reflect"
	"testing"
)

func TestCleanupHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "font tags stripped", input: "<font color=red>Hi</font>", want: "Hi"},
		{name: "style attribute stripped", input: `<p style="margin: 0">x</p>`, want: "<p>x</p>"},
		{name: "closing font with space", input: "<FONT>a</font >", want: "<FONT>a"},
		{name: "nested word clutter", input: `<span style="x"><font face="Arial">t</font></span>`, want: "<span>t</span>"},
		{name: "clean html untouched", input: "<p>plain</p>", want: "<p>plain</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanupHTML(tt.input); got != tt.want {
				t.Errorf("CleanupHTML(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitTags(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{input: "a, b", want: []string{"a", "b"}},
		{input: " go ,, drupal ,", want: []string{"go", "drupal"}},
		{input: "", want: nil},
	}

	for _, tt := range tests {
		if got := SplitTags(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitTags(%q) = %#v, want %#v", tt.input, got, tt.want)
		}
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		input         string
		first, second string
	}{
		{input: "Jane Doe", first: "Jane", second: "Doe"},
		{input: "Jan van der Berg", first: "Jan", second: "van der Berg"},
		{input: "Prince", first: "Prince", second: ""},
		{input: "Tab\tSeparated", first: "Tab", second: "Separated"},
	}

	for _, tt := range tests {
		first, second := SplitName(tt.input)
		if first != tt.first || second != tt.second {
			t.Errorf("SplitName(%q) = %q, %q, want %q, %q", tt.input, first, second, tt.first, tt.second)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "Hello World", want: "hello-world"},
		{input: "blog/12", want: "blog-12"},
		{input: "Café Déjà Vu!", want: "cafe-deja-vu"},
		{input: "  --  ", want: ""},
	}

	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAssignURLSegment(t *testing.T) {
	// "hello" is taken by entity 1 under parent 2.
	taken := FinderFunc(func(_ context.Context, _ EntityType, f Filter) (*Entity, error) {
		if f.Fields[FieldURLSegment] == "hello" && f.ParentID == 2 {
			return &Entity{ID: 1}, nil
		}
		return nil, nil
	})

	tests := []struct {
		name   string
		entity *Entity
		want   string
	}{
		{"from title", &Entity{Type: "BlogEntry", ParentID: 3, Fields: Fields{FieldTitle: "Hello"}}, "hello"},
		{"taken by sibling", &Entity{Type: "BlogEntry", ParentID: 2, Fields: Fields{FieldTitle: "Hello"}}, "hello-2"},
		{"own segment is not a clash", &Entity{Type: "BlogEntry", ID: 1, ParentID: 2, Fields: Fields{FieldTitle: "Hello"}}, "hello"},
		{"no title", &Entity{Type: "BlogEntry"}, "new-blogentry"},
		{"explicit segment kept", &Entity{Type: "BlogEntry", Fields: Fields{FieldTitle: "Hello", FieldURLSegment: "custom"}}, "custom"},
		{"placeholder kept without title", &Entity{Type: "BlogEntry", ID: 4, Fields: Fields{FieldURLSegment: "new-blogentry"}}, "new-blogentry"},
		{"placeholder replaced by title", &Entity{Type: "BlogEntry", ID: 4, Fields: Fields{FieldTitle: "Later", FieldURLSegment: "new-blogentry"}}, "later"},
		{"numbered placeholder replaced", &Entity{Type: "BlogEntry", ID: 4, Fields: Fields{FieldTitle: "Later", FieldURLSegment: "new-blogentry-3"}}, "later"},
		{"lookalike segment kept", &Entity{Type: "BlogEntry", ID: 4, Fields: Fields{FieldTitle: "Later", FieldURLSegment: "new-blogentry-tips"}}, "new-blogentry-tips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := AssignURLSegment(context.Background(), taken, tt.entity); err != nil {
				t.Fatal(err)
			}
			if got := tt.entity.Get(FieldURLSegment); got != tt.want {
				t.Errorf("URLSegment = %q, want %q", got, tt.want)
			}
		})
	}
}
