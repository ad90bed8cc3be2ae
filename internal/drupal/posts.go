package drupal

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
)

func init() {
	registerPosts()
}

const postsQuery = `SELECT
	n.nid AS nid,
	n.title AS title,
	r.body AS body,
	FROM_UNIXTIME(n.changed) AS changed,
	FROM_UNIXTIME(n.created) AS created,
	(SELECT GROUP_CONCAT(td.name ORDER BY td.weight, td.name SEPARATOR ',')
		FROM {term_node} tn JOIN {term_data} td ON td.tid = tn.tid
		WHERE tn.vid = n.vid) AS tags,
	n.uid AS author_title,
	u.name AS author,
	a.dst AS dst,
	CONCAT('blog/', n.uid) AS blog_path,
	CONCAT(u.name, '''s blog') AS blog_title
FROM {node} n
JOIN {node_revisions} r ON r.vid = n.vid
LEFT JOIN {users} u ON u.uid = n.uid
LEFT JOIN {url_alias} a ON a.src = CONCAT('node/', n.nid)
WHERE n.type = 'blog'
ORDER BY n.nid`

func registerPosts() {
	core.Register(core.Registration{
		Info: core.ImporterInfo{
			Key:         "posts",
			Label:       "Blog posts",
			EntityType:  TypeBlogEntry,
			Description: "Drupal blog nodes into blog entries, grouped into one holder per blog",
			Query:       postsQuery,
		},
		Build: buildPosts,
	})
}

func buildPosts(opts core.Options) (core.Definition, error) {
	caps := opts.Capabilities

	hooks := core.Hooks{
		"content": postContent,
		"created": postCreated,
		"tags":    postTagsField,
		"author":  postAuthorField,
	}
	if caps.Has(CapBlogCategories) {
		hooks["tags"] = postCategories
	}
	if caps.Has(CapAuthorRelation) && (caps.Has(CapMemberUIDField) || caps.Has(CapMemberNicknameField)) {
		hooks["author"] = postAuthorRelation
	}

	return core.Definition{
		Key:             "posts",
		Label:           "Blog posts",
		EntityType:      TypeBlogEntry,
		KeyColumn:       "nid",
		RequiredColumns: []string{"nid"},
		Columns: core.ColumnMap{
			core.Field("nid", fieldDrupalNid),
			core.Field("title", core.FieldTitle),
			core.Hook("body", "content"),
			core.Field("changed", core.FieldLastEdited),
			core.Hook("created", "created"),
			core.Hook("tags", "tags"),
			core.Hook("author_title", "author"),
		},
		Hooks: hooks,
		DuplicateChecks: []core.DuplicateCheck{
			{Column: "nid", Find: core.FindByField(TypeBlogEntry, fieldDrupalNid)},
		},
		Parent:    resolveHolder,
		AfterSave: afterPostSave,
	}, nil
}

func postContent(_ context.Context, _ *core.Run, e *core.Entity, value string, _ core.Record) error {
	e.Set(fieldContent, core.CleanupHTML(value))
	return nil
}

func postCreated(_ context.Context, _ *core.Run, e *core.Entity, value string, _ core.Record) error {
	e.Set(fieldDate, value)
	e.Set(core.FieldCreated, value)
	return nil
}

func postTagsField(_ context.Context, _ *core.Run, e *core.Entity, value string, _ core.Record) error {
	e.Set(fieldTags, strings.Join(core.SplitTags(value), ", "))
	return nil
}

// postCategories replaces the entry's categories with the record's tags.
// Clearing first keeps the relation set equal to the tag list on re-runs.
func postCategories(ctx context.Context, run *core.Run, e *core.Entity, value string, _ core.Record) error {
	b := run.Backend()

	// Relations need a persisted entry, under its holder.
	if err := b.Save(ctx, e); err != nil {
		return fmt.Errorf("save entry before categories: %w", err)
	}
	if err := b.ClearRelation(ctx, e, relBlogCategory); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}

	for _, tag := range core.SplitTags(value) {
		cat, err := b.FindOne(ctx, TypeBlogCategory, core.Where(core.FieldTitle, tag))
		if err != nil {
			return fmt.Errorf("find category %q: %w", tag, err)
		}
		if cat == nil {
			if cat, err = b.Create(ctx, TypeBlogCategory, core.Fields{core.FieldTitle: tag}); err != nil {
				return fmt.Errorf("create category %q: %w", tag, err)
			}
			if err := b.Save(ctx, cat); err != nil {
				return fmt.Errorf("save category %q: %w", tag, err)
			}
		}
		if err := b.AddRelation(ctx, e, relBlogCategory, cat); err != nil {
			return fmt.Errorf("relate category %q: %w", tag, err)
		}

		link, err := b.Link(ctx, cat)
		if err != nil {
			return fmt.Errorf("link category %q: %w", tag, err)
		}
		run.Ledger().Record("category/tag-list/"+cat.Get(core.FieldURLSegment), link)
	}
	return nil
}

func postAuthorField(_ context.Context, _ *core.Run, e *core.Entity, value string, rec core.Record) error {
	e.Set(fieldAuthor, authorNickname(value, rec))
	return nil
}

// postAuthorRelation links the entry to its Member, matching by Drupal uid
// first and nickname second, and creates the member when neither matches.
func postAuthorRelation(ctx context.Context, run *core.Run, e *core.Entity, value string, rec core.Record) error {
	b := run.Backend()
	caps := run.Options.Capabilities
	nickname := authorNickname(value, rec)

	var member *core.Entity
	var err error
	if caps.Has(CapMemberUIDField) && value != "" {
		if member, err = b.FindOne(ctx, TypeMember, core.Where(fieldDrupalUID, value)); err != nil {
			return fmt.Errorf("find member by uid: %w", err)
		}
	}
	if member == nil && caps.Has(CapMemberNicknameField) && nickname != "" {
		if member, err = b.FindOne(ctx, TypeMember, core.Where(fieldNickname, nickname)); err != nil {
			return fmt.Errorf("find member by nickname: %w", err)
		}
	}

	if member == nil {
		fields := core.Fields{}
		if caps.Has(CapMemberUIDField) {
			fields[fieldDrupalUID] = value
		}
		if caps.Has(CapMemberNicknameField) {
			fields[fieldNickname] = nickname
		}
		if member, err = b.Create(ctx, TypeMember, fields); err != nil {
			return fmt.Errorf("create member: %w", err)
		}
		if err := b.Save(ctx, member); err != nil {
			return fmt.Errorf("save member: %w", err)
		}
	}

	e.Set(fieldAuthorID, strconv.FormatInt(member.ID, 10))
	if err := b.Save(ctx, e); err != nil {
		return fmt.Errorf("save entry author: %w", err)
	}
	return nil
}

// authorNickname prefers the exported author name over the raw author value.
func authorNickname(value string, rec core.Record) string {
	if nick := strings.TrimSpace(rec.Get("author")); nick != "" {
		return nick
	}
	return value
}

var restorePostCreated = restoreCreated("created")

func afterPostSave(ctx context.Context, run *core.Run, e *core.Entity, rec core.Record) error {
	b := run.Backend()

	if err := restorePostCreated(ctx, run, e, rec); err != nil {
		return err
	}
	if run.Options.Publish {
		if err := b.Publish(ctx, e); err != nil {
			return fmt.Errorf("publish entry: %w", err)
		}
	}

	dst := strings.TrimSpace(rec.Get("dst"))
	if dst == "" {
		return nil
	}
	link, err := b.Link(ctx, e)
	if err != nil {
		return fmt.Errorf("link entry: %w", err)
	}
	run.Ledger().Record(dst, link)
	return nil
}
