// Package core provides the reconciliation algorithm for Drupal content imports.
//
// The package knows nothing about CSV files, MySQL, Postgres or HTTP. It maps
// flat source records onto entities held by a [Backend] and decides, per
// record, whether to create, update or skip. Web handlers, the CLI and tests
// all drive it the same way.
//
// # Importers
//
// Each importer is a [Definition] registered at init time with [Register]:
//
//	core.Register(core.Registration{
//	    Info:  core.ImporterInfo{Key: "posts", Label: "Blog posts", EntityType: "BlogEntry"},
//	    Build: buildPosts,
//	})
//
// The build func receives the run [Options] so the column map and duplicate
// checks can depend on declared [Capabilities] instead of schema probing.
//
// # Run Flow
//
// For every record, in input order, [Importer.Run]:
//
//  1. Skips empty records and fails records missing a required column
//  2. Resolves the parent container (created on demand by [ContainerResolver])
//  3. Evaluates duplicate checks in order; the first match is reused
//  4. Assigns direct fields, then runs hooks in column map order
//  5. Saves, then runs the after-save step (publish, redirects)
//
// A record that fails is reported and the run moves on. Only a cancelled
// context or an unreadable source aborts the run.
//
// # Preview
//
// With RunOptions.Preview the backend is wrapped by [NewPreviewBackend]. Every
// lookup and link is still resolved, writes stay in memory, and the report
// matches what a real run would produce.
//
// # Error Handling
//
// Errors are classified as [ConfigurationError], [RecordError] or
// [BackendError]. [MapError] turns them into codes for operators:
//
//   - CFG001-CFG002: importer cannot be built
//   - REC001-REC002: a record was rejected
//   - BE001-BE003: storage failures
//   - SRC001-SRC003: input failures
//   - RUN001-RUN003: run lifecycle
package core
