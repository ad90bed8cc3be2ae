package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/drupalmigrate/internal/logging"
	"github.com/google/uuid"
)

// Capabilities is an explicit descriptor of what the target schema supports
// (e.g. "member_uid_field"). Importers decide their column maps and identity
// strategies from it when they are built, never by probing the schema.
type Capabilities map[string]bool

// Has reports whether a capability is enabled.
func (c Capabilities) Has(name string) bool {
	return c[name]
}

// Options configures an importer instance.
type Options struct {
	// ParentContainerID is where new top-level containers attach (0 = root).
	ParentContainerID int64 `json:"parentContainerId"`
	// DefaultContainerID is used when a record carries no container information.
	// 0 means "first container by creation order, else create one".
	DefaultContainerID int64 `json:"defaultContainerId"`
	// Publish publishes entities and containers after they are saved.
	Publish      bool         `json:"publish"`
	Capabilities Capabilities `json:"capabilities,omitempty"`
}

// ParentFunc resolves the container a record's entity belongs under.
type ParentFunc func(ctx context.Context, run *Run, rec Record) (int64, error)

// AfterSaveFunc runs once the entity has been saved (publishing, redirects,
// re-assigning fields the backend stamps on insert).
type AfterSaveFunc func(ctx context.Context, run *Run, e *Entity, rec Record) error

// Definition contains everything needed to import one kind of record.
type Definition struct {
	Key             string     // Unique identifier: "posts"
	Label           string     // Display name: "Blog posts"
	EntityType      EntityType // Type of entity created
	KeyColumn       string     // Source column used as the natural key in reports
	RequiredColumns []string   // Records missing any of these fail
	Columns         ColumnMap
	Hooks           Hooks
	DuplicateChecks []DuplicateCheck
	Parent          ParentFunc    // Optional
	AfterSave       AfterSaveFunc // Optional
}

// Run is the state of one import run, handed to hooks and resolvers.
type Run struct {
	ID       string
	Importer string
	Options  Options
	Preview  bool

	backend    Backend
	ledger     *RedirectLedger
	containers *ContainerResolver
	logger     *slog.Logger
}

// NewRun creates run state over backend. Importer.Run does this itself; it is
// exported for driving hooks and resolvers directly.
func NewRun(id, importer string, backend Backend, opts Options, logger *slog.Logger) *Run {
	if logger == nil {
		logger = slog.Default()
	}
	return &Run{
		ID:         id,
		Importer:   importer,
		Options:    opts,
		backend:    backend,
		ledger:     NewRedirectLedger(),
		containers: NewContainerResolver(backend, opts.Publish),
		logger:     logger,
	}
}

// Backend returns the backend for this run (the preview overlay in preview mode).
func (r *Run) Backend() Backend { return r.backend }

// Ledger returns the run's redirect ledger.
func (r *Run) Ledger() *RedirectLedger { return r.ledger }

// Containers returns the run's container resolver.
func (r *Run) Containers() *ContainerResolver { return r.containers }

// Logger returns a logger carrying run_id and importer.
func (r *Run) Logger() *slog.Logger { return r.logger }

// RunOptions controls a single run.
type RunOptions struct {
	Preview    bool             // Resolve everything, write nothing
	Source     string           // Description of the input for the report (file name, DSN host)
	OnProgress ProgressCallback // Optional
}

// Importer reconciles records against a backend according to a Definition.
type Importer struct {
	def        Definition
	backend    Backend
	opts       Options
	duplicates *DuplicateResolver

	now   func() time.Time
	newID func() string
}

// NewImporter validates def and binds it to backend. Problems are reported as
// a *ConfigurationError before any record is read.
func NewImporter(def Definition, backend Backend, opts Options) (*Importer, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, configErrorf(def.Key, "no backend")
	}
	return &Importer{
		def:        def,
		backend:    backend,
		opts:       opts,
		duplicates: NewDuplicateResolver(def.DuplicateChecks),
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

func validateDefinition(def Definition) error {
	if def.Key == "" {
		return configErrorf("", "definition has no key")
	}
	if def.EntityType == "" {
		return configErrorf(def.Key, "no entity type")
	}
	if len(def.Columns) == 0 {
		return configErrorf(def.Key, "empty column map")
	}

	seen := make(map[string]bool, len(def.Columns))
	for _, col := range def.Columns {
		if col.Source == "" || col.Target == "" {
			return configErrorf(def.Key, "column %q has no source or target", col.Source)
		}
		if seen[col.Source] {
			return configErrorf(def.Key, "column %q declared twice", col.Source)
		}
		seen[col.Source] = true
		if col.Kind == ColumnHook && def.Hooks[col.Target] == nil {
			return configErrorf(def.Key, "column %q uses unbound hook %q", col.Source, col.Target)
		}
	}

	for i, check := range def.DuplicateChecks {
		if check.Column == "" || check.Find == nil {
			return configErrorf(def.Key, "duplicate check %d is incomplete", i)
		}
	}
	return nil
}

// Definition returns the importer's definition.
func (imp *Importer) Definition() Definition { return imp.def }

// Options returns the importer's options.
func (imp *Importer) Options() Options { return imp.opts }

// Run processes every record from r in order. Record-level problems are
// reported per record and never stop the run; the returned error is non-nil
// only when the run itself aborted (cancelled context, unreadable input), in
// which case the report covers the records processed so far.
func (imp *Importer) Run(ctx context.Context, r RecordReader, ro RunOptions) (*Report, error) {
	report := &Report{
		RunID:     imp.newID(),
		Importer:  imp.def.Key,
		Source:    ro.Source,
		Preview:   ro.Preview,
		StartedAt: imp.now(),
	}

	backend := imp.backend
	if ro.Preview {
		backend = NewPreviewBackend(backend)
	}
	logger := logging.WithFields(ctx, "run_id", report.RunID, "importer", imp.def.Key, "preview", ro.Preview)
	run := NewRun(report.RunID, imp.def.Key, backend, imp.opts, logger)
	run.Preview = ro.Preview

	notify := func(phase RunPhase, line int) {
		if ro.OnProgress != nil {
			ro.OnProgress(RunProgress{
				RunID:    report.RunID,
				Importer: imp.def.Key,
				Phase:    phase,
				Line:     line,
				Counts:   report.Counts,
			})
		}
	}

	logger.Info("import run started", "source", ro.Source)
	notify(PhaseStarting, 0)

	finish := func(phase RunPhase, err error) (*Report, error) {
		report.RewriteRules = run.ledger.Render()
		report.Duration = time.Since(report.StartedAt)
		if err != nil {
			report.Error = err.Error()
		}
		notify(phase, 0)
		logger.Info("import run finished",
			"phase", phase,
			"created", report.Counts.Created,
			"updated", report.Counts.Updated,
			"skipped", report.Counts.Skipped,
			"failed", report.Counts.Failed,
			"redirects", run.ledger.Len(),
			"duration_ms", report.Duration.Milliseconds(),
		)
		return report, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(PhaseCancelled, fmt.Errorf("run cancelled: %w", err))
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return finish(PhaseFailed, fmt.Errorf("read record: %w", err))
		}

		res := imp.processRecord(ctx, run, rec)
		if res.Outcome == OutcomeFailed && ctx.Err() != nil {
			// The failure was the cancellation itself, not the record.
			return finish(PhaseCancelled, fmt.Errorf("run cancelled at line %d: %w", rec.Line, ctx.Err()))
		}
		report.add(res)
		notify(PhaseImporting, rec.Line)
	}

	return finish(PhaseComplete, nil)
}

// processRecord reconciles one record and classifies the outcome.
func (imp *Importer) processRecord(ctx context.Context, run *Run, rec Record) ImportResult {
	res := ImportResult{Line: rec.Line}
	if imp.def.KeyColumn != "" {
		res.Key = rec.Get(imp.def.KeyColumn)
	}

	if rec.IsEmpty() {
		res.Outcome = OutcomeSkipped
		return res
	}

	e, outcome, err := imp.reconcile(ctx, run, rec)
	if err != nil {
		var re *RecordError
		if errors.As(err, &re) && re.Key == "" {
			re.Key = res.Key
		}
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		run.logger.Warn("record failed", "line", rec.Line, "key", res.Key, "error", err)
		return res
	}

	res.Outcome = outcome
	res.EntityID = e.ID
	run.logger.Debug("record imported", "line", rec.Line, "key", res.Key, "outcome", outcome, "entity_id", e.ID)
	return res
}

// reconcile runs the per-record pipeline: container, duplicate lookup,
// create-or-reuse, field assignment, hooks, save, after-save.
func (imp *Importer) reconcile(ctx context.Context, run *Run, rec Record) (*Entity, Outcome, error) {
	var missing []string
	for _, col := range imp.def.RequiredColumns {
		if v, ok := rec.Lookup(col); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, "", &RecordError{Line: rec.Line, Reason: fmt.Sprintf("missing required column %s", strings.Join(missing, ", "))}
	}

	var parentID int64
	if imp.def.Parent != nil {
		id, err := imp.def.Parent(ctx, run, rec)
		if err != nil {
			return nil, "", backendErr("resolve parent", err)
		}
		parentID = id
	}

	e, err := imp.duplicates.FindExisting(ctx, run, rec)
	if err != nil {
		return nil, "", err
	}

	outcome := OutcomeUpdated
	if e == nil {
		outcome = OutcomeCreated
		e, err = run.backend.Create(ctx, imp.def.EntityType, nil)
		if err != nil {
			return nil, "", backendErr("create "+string(imp.def.EntityType), err)
		}
	}
	if parentID != 0 {
		e.ParentID = parentID
	}

	assignments, deferred := MapRecord(rec, imp.def.Columns)
	Apply(e, assignments)

	if err := runHooks(ctx, run, imp.def.Hooks, e, deferred, rec); err != nil {
		return nil, "", backendErr("run hooks", err)
	}

	if err := run.backend.Save(ctx, e); err != nil {
		return nil, "", backendErr("save "+string(imp.def.EntityType), err)
	}

	if imp.def.AfterSave != nil {
		if err := imp.def.AfterSave(ctx, run, e, rec); err != nil {
			return nil, "", backendErr("after save", err)
		}
	}

	return e, outcome, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
