package drupal

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
)

func init() {
	registerComments()
}

const commentsQuery = `SELECT
	c.cid AS cid,
	c.nid AS nid,
	c.subject AS subject,
	c.name AS name,
	c.mail AS mail,
	c.comment AS comment,
	FROM_UNIXTIME(c.timestamp) AS timestamp,
	c.hostname AS hostname,
	c.homepage AS homepage
FROM {comments} c
ORDER BY c.cid`

func registerComments() {
	core.Register(core.Registration{
		Info: core.ImporterInfo{
			Key:         "comments",
			Label:       "Blog comments",
			EntityType:  TypeComment,
			Description: "Drupal comments attached to their blog entries",
			Query:       commentsQuery,
		},
		Build: buildComments,
	})
}

func buildComments(opts core.Options) (core.Definition, error) {
	if !opts.Capabilities.Has(CapComments) {
		return core.Definition{}, &core.ConfigurationError{
			Importer: "comments",
			Reason:   "the target has no comments support (capability " + CapComments + ")",
		}
	}

	return core.Definition{
		Key:        "comments",
		Label:      "Blog comments",
		EntityType: TypeComment,
		KeyColumn:  "cid",
		// The parent entry is found by nid.
		RequiredColumns: []string{"nid"},
		Columns: core.ColumnMap{
			core.Field("nid", fieldDrupalNid),
			core.Field("cid", fieldDrupalCid),
			core.Field("subject", "Subject"),
			core.Field("name", fieldName),
			core.Field("mail", "Email"),
			core.Hook("comment", "comment"),
			core.Field("timestamp", core.FieldCreated),
			core.Field("hostname", "Hostname"),
			core.Field("homepage", "URL"),
		},
		Hooks: core.Hooks{
			"comment": commentBody,
		},
		DuplicateChecks: []core.DuplicateCheck{
			{Column: "cid", Find: findCommentByCid},
			{Column: "nid", Find: findCommentOnEntry},
		},
		Parent:    commentParent,
		AfterSave: restoreCreated("timestamp"),
	}, nil
}

func commentBody(_ context.Context, _ *core.Run, e *core.Entity, value string, _ core.Record) error {
	e.Set(fieldComment, core.CleanupHTML(value))
	return nil
}

// commentParent returns the entry the comment belongs to. Comments may be
// imported before their posts, so a missing entry is created as a
// placeholder the posts import later fills in by nid.
func commentParent(ctx context.Context, run *core.Run, rec core.Record) (int64, error) {
	b := run.Backend()
	nid := rec.Get("nid")

	entry, err := b.FindOne(ctx, TypeBlogEntry, core.Where(fieldDrupalNid, nid))
	if err != nil {
		return 0, fmt.Errorf("find entry %s: %w", nid, err)
	}
	if entry != nil {
		return entry.ID, nil
	}

	holderID, err := defaultHolder(ctx, run)
	if err != nil {
		return 0, err
	}
	entry, err = b.Create(ctx, TypeBlogEntry, core.Fields{fieldDrupalNid: nid})
	if err != nil {
		return 0, fmt.Errorf("create placeholder entry %s: %w", nid, err)
	}
	entry.ParentID = holderID
	if err := b.Save(ctx, entry); err != nil {
		return 0, fmt.Errorf("save placeholder entry %s: %w", nid, err)
	}
	run.Logger().Debug("created placeholder entry", "nid", nid, "entity_id", entry.ID)
	return entry.ID, nil
}

func findCommentByCid(ctx context.Context, run *core.Run, value string, _ core.Record) (*core.Entity, error) {
	return run.Backend().FindOne(ctx, TypeComment, core.Where(fieldDrupalCid, value))
}

// findCommentOnEntry matches a comment with the same author name and creation
// time on the same entry, for exports that carry no cid.
func findCommentOnEntry(ctx context.Context, run *core.Run, value string, rec core.Record) (*core.Entity, error) {
	b := run.Backend()
	entry, err := b.FindOne(ctx, TypeBlogEntry, core.Where(fieldDrupalNid, value))
	if err != nil || entry == nil {
		return nil, err
	}
	filter := core.Where(fieldName, rec.Get("name")).
		And(core.FieldCreated, rec.Get("timestamp")).
		Under(entry.ID)
	return b.FindOne(ctx, TypeComment, filter)
}
