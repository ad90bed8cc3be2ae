package core_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/JonMunkholm/drupalmigrate/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	typeArticle core.EntityType = "Article"
	typeSection core.EntityType = "Section"
	typeTag     core.EntityType = "Tag"
	typeAuthor  core.EntityType = "Author"
)

// articleDef exercises every stage of the pipeline: a container parent,
// ordered duplicate checks, direct fields, hooks with relations and an
// after-save redirect.
func articleDef() core.Definition {
	return core.Definition{
		Key:             "articles",
		Label:           "Articles",
		EntityType:      typeArticle,
		KeyColumn:       "id",
		RequiredColumns: []string{"id"},
		Columns: core.ColumnMap{
			core.Field("id", "LegacyID"),
			core.Field("title", core.FieldTitle),
			core.Hook("body", "content"),
			core.Hook("tags", "tags"),
			core.Hook("title_echo", "echo"),
		},
		Hooks: core.Hooks{
			"content": func(_ context.Context, _ *core.Run, e *core.Entity, v string, _ core.Record) error {
				e.Set("Content", core.CleanupHTML(v))
				return nil
			},
			"tags": tagsHook,
			"echo": func(_ context.Context, _ *core.Run, e *core.Entity, _ string, _ core.Record) error {
				e.Set("SeenTitle", e.Get(core.FieldTitle))
				return nil
			},
		},
		DuplicateChecks: []core.DuplicateCheck{
			{Column: "id", Find: core.FindByField(typeArticle, "LegacyID")},
			{Column: "title", Find: core.FindByField(typeArticle, core.FieldTitle)},
		},
		Parent: func(ctx context.Context, run *core.Run, rec core.Record) (int64, error) {
			section, err := run.Containers().Resolve(ctx, core.ContainerSpec{
				Type:     typeSection,
				Match:    core.Fields{core.FieldURLSegment: core.Slugify(rec.Get("section"))},
				Ancestor: &core.ContainerSpec{Type: typeSection, Match: core.Fields{core.FieldTitle: "Sections"}, RootID: run.Options.ParentContainerID},
				New:      func() core.Fields { return core.Fields{core.FieldTitle: rec.Get("section")} },
			})
			if err != nil {
				return 0, err
			}
			return section.ID, nil
		},
		AfterSave: func(ctx context.Context, run *core.Run, e *core.Entity, rec core.Record) error {
			if run.Options.Publish {
				if err := run.Backend().Publish(ctx, e); err != nil {
					return err
				}
			}
			link, err := run.Backend().Link(ctx, e)
			if err != nil {
				return err
			}
			run.Ledger().Record("node/"+rec.Get("id"), link)
			return nil
		},
	}
}

func tagsHook(ctx context.Context, run *core.Run, e *core.Entity, v string, _ core.Record) error {
	b := run.Backend()
	if e.IsNew() {
		if err := b.Save(ctx, e); err != nil {
			return err
		}
	}
	if err := b.ClearRelation(ctx, e, "Tags"); err != nil {
		return err
	}
	for _, name := range core.SplitTags(v) {
		tag, err := b.FindOne(ctx, typeTag, core.Where(core.FieldTitle, name))
		if err != nil {
			return err
		}
		if tag == nil {
			if tag, err = b.Create(ctx, typeTag, core.Fields{core.FieldTitle: name}); err != nil {
				return err
			}
			if err := b.Save(ctx, tag); err != nil {
				return err
			}
		}
		if err := b.AddRelation(ctx, e, "Tags", tag); err != nil {
			return err
		}
	}
	return nil
}

func rec(line int, m map[string]string) core.Record {
	return core.RecordFromMap(line, m)
}

func runImport(t *testing.T, b core.Backend, opts core.Options, preview bool, records ...core.Record) *core.Report {
	t.Helper()
	imp, err := core.NewImporter(articleDef(), b, opts)
	require.NoError(t, err)
	report, err := imp.Run(context.Background(), core.NewSliceReader(records...), core.RunOptions{Preview: preview, Source: "test"})
	require.NoError(t, err)
	return report
}

func sampleRecords() []core.Record {
	return []core.Record{
		rec(2, map[string]string{"id": "1", "title": "First", "section": "News", "body": "<font color=red>Hi</font>", "tags": "a, b"}),
		rec(3, map[string]string{"id": "2", "title": "Second", "section": "News", "tags": "b"}),
		rec(4, map[string]string{"id": "3", "title": "Third", "section": "Sports"}),
	}
}

func TestImporter_Scenario(t *testing.T) {
	store := memory.New()
	report := runImport(t, store, core.Options{}, false, sampleRecords()...)

	assert.Equal(t, core.Counts{Created: 3}, report.Counts)
	assert.False(t, report.Preview)
	assert.NotEmpty(t, report.RunID)

	first, err := store.FindOne(context.Background(), typeArticle, core.Where("LegacyID", "1"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Hi", first.Get("Content"))

	// "Sections" root plus one section per distinct name.
	assert.Equal(t, 3, store.Count(typeSection))

	link, err := store.Link(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "/sections/news/first/", link)

	assert.Equal(t,
		"RewriteRule ^node/1 /sections/news/first/ [R=301,L]\n"+
			"RewriteRule ^node/2 /sections/news/second/ [R=301,L]\n"+
			"RewriteRule ^node/3 /sections/sports/third/ [R=301,L]",
		report.RewriteRules)
}

func TestImporter_Idempotent(t *testing.T) {
	store := memory.New()
	runImport(t, store, core.Options{}, false, sampleRecords()...)
	second := runImport(t, store, core.Options{}, false, sampleRecords()...)

	assert.Equal(t, core.Counts{Updated: 3}, second.Counts)
	assert.Equal(t, 3, store.Count(typeArticle))
	assert.Equal(t, 3, store.Count(typeSection))
	assert.Equal(t, 2, store.Count(typeTag))

	for _, id := range []string{"1", "2", "3"} {
		n := 0
		for _, e := range store.All(typeArticle) {
			if e.Get("LegacyID") == id {
				n++
			}
		}
		assert.Equal(t, 1, n, "articles with LegacyID %s", id)
	}
}

func TestImporter_DuplicateCheckOrder(t *testing.T) {
	store := memory.New()
	runImport(t, store, core.Options{}, false,
		rec(2, map[string]string{"id": "1", "title": "Strong", "section": "News"}),
		rec(3, map[string]string{"id": "2", "title": "Weak", "section": "News"}),
	)

	// id matches article 1, title matches article 2: the id check wins.
	report := runImport(t, store, core.Options{}, false,
		rec(2, map[string]string{"id": "1", "title": "Weak", "section": "News"}),
	)
	require.Len(t, report.Results, 1)
	assert.Equal(t, core.OutcomeUpdated, report.Results[0].Outcome)

	byID, _ := store.FindOne(context.Background(), typeArticle, core.Where("LegacyID", "1"))
	assert.Equal(t, byID.ID, report.Results[0].EntityID)
	assert.Equal(t, 2, store.Count(typeArticle))
}

func TestImporter_WeakCheckUsedWhenStrongKeyBlank(t *testing.T) {
	store := memory.New()
	runImport(t, store, core.Options{}, false,
		rec(2, map[string]string{"id": "1", "title": "Only", "section": "News"}),
	)

	def := articleDef()
	def.RequiredColumns = nil
	imp, err := core.NewImporter(def, store, core.Options{})
	require.NoError(t, err)

	report, err := imp.Run(context.Background(), core.NewSliceReader(
		rec(2, map[string]string{"id": "", "title": "Only", "section": "News"}),
	), core.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.Counts{Updated: 1}, report.Counts)
}

func TestImporter_HooksSeeMappedFields(t *testing.T) {
	store := memory.New()
	runImport(t, store, core.Options{}, false,
		rec(2, map[string]string{"id": "1", "title": "Mapped", "title_echo": "raw", "section": "News"}),
	)

	e, _ := store.FindOne(context.Background(), typeArticle, core.Where("LegacyID", "1"))
	require.NotNil(t, e)
	assert.Equal(t, "Mapped", e.Get("SeenTitle"))
}

func TestImporter_RelationIdempotence(t *testing.T) {
	store := memory.New()
	runImport(t, store, core.Options{}, false, rec(2, map[string]string{"id": "1", "title": "T", "section": "S", "tags": "a, b"}))
	runImport(t, store, core.Options{}, false, rec(2, map[string]string{"id": "1", "title": "T", "section": "S", "tags": "b, c"}))

	e, _ := store.FindOne(context.Background(), typeArticle, core.Where("LegacyID", "1"))
	require.NotNil(t, e)

	var names []string
	for _, tag := range store.Related(e, "Tags") {
		names = append(names, tag.Get(core.FieldTitle))
	}
	assert.ElementsMatch(t, []string{"b", "c"}, names)
}

func TestImporter_FailureIsolation(t *testing.T) {
	store := memory.New()
	def := articleDef()
	def.Hooks["content"] = func(_ context.Context, _ *core.Run, e *core.Entity, v string, rec core.Record) error {
		if v == "bad" {
			return core.RecordErrorf(rec, "unparseable body")
		}
		e.Set("Content", v)
		return nil
	}
	imp, err := core.NewImporter(def, store, core.Options{})
	require.NoError(t, err)

	report, err := imp.Run(context.Background(), core.NewSliceReader(
		rec(2, map[string]string{"id": "1", "title": "ok", "section": "S"}),
		rec(3, map[string]string{"id": "2", "title": "bad", "section": "S", "body": "bad"}),
		rec(4, map[string]string{"title": "no id", "section": "S"}),
		rec(5, map[string]string{"id": "", "title": ""}),
		rec(6, map[string]string{"id": "4", "title": "after", "section": "S"}),
	), core.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, core.Counts{Created: 2, Skipped: 1, Failed: 2}, report.Counts)

	failures := report.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "2", failures[0].Key)
	assert.Contains(t, failures[0].Reason, "unparseable body")
	assert.Equal(t, 4, failures[1].Line)
	assert.Contains(t, failures[1].Reason, "missing required column id")

	assert.Equal(t, core.OutcomeCreated, report.Results[4].Outcome)
}

type failingBackend struct {
	core.Backend
	failSaves bool
}

func (f *failingBackend) Save(ctx context.Context, e *core.Entity) error {
	if f.failSaves && e.Type == typeArticle {
		return errors.New("connection reset by peer")
	}
	return f.Backend.Save(ctx, e)
}

func TestImporter_BackendErrorIsPerRecord(t *testing.T) {
	b := &failingBackend{Backend: memory.New(), failSaves: true}
	def := articleDef()
	def.Columns = def.Columns.Without("tags")
	imp, err := core.NewImporter(def, b, core.Options{})
	require.NoError(t, err)

	report, err := imp.Run(context.Background(), core.NewSliceReader(
		rec(2, map[string]string{"id": "1", "title": "x", "section": "S"}),
		rec(3, map[string]string{"id": "2", "title": "y", "section": "S"}),
	), core.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Counts.Failed)
	assert.Contains(t, report.Results[0].Reason, "backend error during save Article")
}

func TestImporter_Preview(t *testing.T) {
	live := memory.New()
	expected := runImport(t, live, core.Options{Publish: true}, false, sampleRecords()...)

	preview := memory.New()
	got := runImport(t, preview, core.Options{Publish: true}, true, sampleRecords()...)

	assert.True(t, got.Preview)
	assert.Zero(t, preview.Stats().Total(), "preview must not write")
	assert.Equal(t, expected.Counts, got.Counts)
	assert.Equal(t, expected.RewriteRules, got.RewriteRules)
	require.Len(t, got.Results, len(expected.Results))
	for i := range expected.Results {
		assert.Equal(t, expected.Results[i].Outcome, got.Results[i].Outcome)
		assert.Equal(t, expected.Results[i].Key, got.Results[i].Key)
	}
}

func TestImporter_PreviewAgainstExistingData(t *testing.T) {
	store := memory.New()
	runImport(t, store, core.Options{}, false, sampleRecords()[:1]...)
	before := store.Stats()

	report := runImport(t, store, core.Options{}, true, sampleRecords()...)

	assert.Equal(t, core.Counts{Created: 2, Updated: 1}, report.Counts)
	assert.Equal(t, before, store.Stats())
	assert.Equal(t, 1, store.Count(typeArticle))
}

func TestNewImporter_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Definition)
		want   string
	}{
		{name: "no key", mutate: func(d *core.Definition) { d.Key = "" }, want: "no key"},
		{name: "no entity type", mutate: func(d *core.Definition) { d.EntityType = "" }, want: "no entity type"},
		{name: "empty columns", mutate: func(d *core.Definition) { d.Columns = nil }, want: "empty column map"},
		{name: "unbound hook", mutate: func(d *core.Definition) { delete(d.Hooks, "tags") }, want: `unbound hook "tags"`},
		{name: "duplicate column", mutate: func(d *core.Definition) {
			d.Columns = append(d.Columns, core.Field("id", "Other"))
		}, want: "declared twice"},
		{name: "incomplete check", mutate: func(d *core.Definition) {
			d.DuplicateChecks = append(d.DuplicateChecks, core.DuplicateCheck{Column: "x"})
		}, want: "incomplete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := articleDef()
			tt.mutate(&def)
			_, err := core.NewImporter(def, memory.New(), core.Options{})

			var ce *core.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Contains(t, ce.Error(), tt.want)
		})
	}

	_, err := core.NewImporter(articleDef(), nil, core.Options{})
	var ce *core.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

type cancelAfter struct {
	records []core.Record
	cancel  context.CancelFunc
	n       int
}

func (c *cancelAfter) Read() (core.Record, error) {
	if c.n == 1 {
		c.cancel()
	}
	if c.n >= len(c.records) {
		return core.Record{}, io.EOF
	}
	r := c.records[c.n]
	c.n++
	return r, nil
}

func TestImporter_CancelReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	imp, err := core.NewImporter(articleDef(), memory.New(), core.Options{})
	require.NoError(t, err)

	var phases []core.RunPhase
	report, err := imp.Run(ctx, &cancelAfter{records: sampleRecords(), cancel: cancel}, core.RunOptions{
		OnProgress: func(p core.RunProgress) { phases = append(phases, p.Phase) },
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, report)
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, core.PhaseCancelled, phases[len(phases)-1])
	assert.Less(t, report.Counts.Total(), 3)
}

type brokenReader struct{}

func (brokenReader) Read() (core.Record, error) {
	return core.Record{}, fmt.Errorf("invalid csv: bare quote")
}

func TestImporter_ReaderErrorAborts(t *testing.T) {
	imp, err := core.NewImporter(articleDef(), memory.New(), core.Options{})
	require.NoError(t, err)

	report, err := imp.Run(context.Background(), brokenReader{}, core.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, "SRC001", core.MapError(err).Code)
	assert.Contains(t, report.Error, "read record")
}
