// Package drupal registers the Drupal 6 blog importers with the core registry.
// Import this package for its side effects:
//
//	import _ "github.com/JonMunkholm/drupalmigrate/internal/drupal"
//
// Each importer file uses init() to register itself.
package drupal

import (
	"context"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
)

// Target entity types.
const (
	TypeBlogTree     core.EntityType = "BlogTree"
	TypeBlogHolder   core.EntityType = "BlogHolder"
	TypeBlogEntry    core.EntityType = "BlogEntry"
	TypeBlogCategory core.EntityType = "BlogCategory"
	TypeComment      core.EntityType = "Comment"
	TypeMember       core.EntityType = "Member"
)

// Capabilities the target schema may declare in core.Options.
const (
	CapBlogCategories      = "blog_categories"       // BlogEntry has a BlogCategories many-many
	CapAuthorRelation      = "author_relation"       // BlogEntry has an Author has-one (AuthorID)
	CapMemberUIDField      = "member_uid_field"      // Member has a DrupalUid field
	CapMemberNicknameField = "member_nickname_field" // Member has a Nickname field
	CapComments            = "comments"              // the comments module is installed
)

// Field and relation names on the target entities.
const (
	fieldDrupalNid   = "DrupalNid"
	fieldDrupalCid   = "DrupalCid"
	fieldDrupalUID   = "DrupalUid"
	fieldNickname    = "Nickname"
	fieldContent     = "Content"
	fieldComment     = "Comment"
	fieldDate        = "Date"
	fieldTags        = "Tags"
	fieldAuthor      = "Author"
	fieldAuthorID    = "AuthorID"
	fieldName        = "Name"
	fieldFirstName   = "FirstName"
	fieldSurname     = "Surname"
	relBlogCategory  = "BlogCategories"
	blogTreeTitle    = "Blogs"
	defaultBlogTitle = "Blog"
)

// blogTreeSpec is the single "Blogs" tree every holder lives under.
func blogTreeSpec(opts core.Options) core.ContainerSpec {
	return core.ContainerSpec{
		Type:   TypeBlogTree,
		Match:  core.Fields{core.FieldTitle: blogTreeTitle},
		RootID: opts.ParentContainerID,
	}
}

// holderSpec identifies a blog holder by the slug of its Drupal blog path.
func holderSpec(opts core.Options, blogPath, blogTitle string) core.ContainerSpec {
	tree := blogTreeSpec(opts)
	return core.ContainerSpec{
		Type:     TypeBlogHolder,
		Match:    core.Fields{core.FieldURLSegment: core.Slugify(blogPath)},
		Ancestor: &tree,
		New: func() core.Fields {
			if blogTitle == "" {
				return nil
			}
			return core.Fields{core.FieldTitle: blogTitle}
		},
	}
}

// resolveHolder returns the holder for a record's blog_path, or the default
// holder when the record has none.
func resolveHolder(ctx context.Context, run *core.Run, rec core.Record) (int64, error) {
	if core.Slugify(rec.Get("blog_path")) == "" {
		return defaultHolder(ctx, run)
	}
	holder, err := run.Containers().Resolve(ctx, holderSpec(run.Options, rec.Get("blog_path"), rec.Get("blog_title")))
	if err != nil {
		return 0, err
	}
	return holder.ID, nil
}

// defaultHolder picks the holder for records that carry no blog information:
// the configured DefaultContainerID, else the first holder by creation order,
// else a new "Blog" holder under the tree.
func defaultHolder(ctx context.Context, run *core.Run) (int64, error) {
	if id := run.Options.DefaultContainerID; id != 0 {
		return id, nil
	}

	first, err := run.Backend().FindOne(ctx, TypeBlogHolder, core.Filter{})
	if err != nil {
		return 0, err
	}
	if first != nil {
		return first.ID, nil
	}

	tree := blogTreeSpec(run.Options)
	holder, err := run.Containers().Resolve(ctx, core.ContainerSpec{
		Type:     TypeBlogHolder,
		Match:    core.Fields{core.FieldTitle: defaultBlogTitle},
		Ancestor: &tree,
	})
	if err != nil {
		return 0, err
	}
	return holder.ID, nil
}

// restoreCreated returns an after-save step that writes the source creation
// timestamp back, since backends stamp Created when they insert.
func restoreCreated(column string) core.AfterSaveFunc {
	return func(ctx context.Context, run *core.Run, e *core.Entity, rec core.Record) error {
		created := rec.Get(column)
		if created == "" || e.Get(core.FieldCreated) == created {
			return nil
		}
		e.Set(core.FieldCreated, created)
		return run.Backend().Save(ctx, e)
	}
}
