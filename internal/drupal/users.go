package drupal

import (
	"context"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
)

func init() {
	registerUsers()
}

const usersQuery = `SELECT
	u.uid AS uid,
	u.name AS title,
	u.name AS name,
	u.mail AS mail,
	FROM_UNIXTIME(u.created) AS created,
	FROM_UNIXTIME(GREATEST(u.access, u.login, u.created)) AS changed
FROM {users} u
WHERE u.uid > 0
ORDER BY u.uid`

func registerUsers() {
	core.Register(core.Registration{
		Info: core.ImporterInfo{
			Key:         "users",
			Label:       "Members",
			EntityType:  TypeMember,
			Description: "Drupal user accounts into members",
			Query:       usersQuery,
		},
		Build: buildUsers,
	})
}

func buildUsers(opts core.Options) (core.Definition, error) {
	hasUID := opts.Capabilities.Has(CapMemberUIDField)
	hasNickname := opts.Capabilities.Has(CapMemberNicknameField)
	if !hasUID && !hasNickname {
		return core.Definition{}, &core.ConfigurationError{
			Importer: "users",
			Reason:   "members need a DrupalUid or Nickname field (capability " + CapMemberUIDField + " or " + CapMemberNicknameField + ")",
		}
	}

	// Columns for a field the target lacks are dropped, with their checks.
	columns := core.ColumnMap{
		core.Field("uid", fieldDrupalUID),
		core.Field("title", fieldNickname),
		core.Field("mail", "Email"),
		core.Hook("name", "name"),
		core.Field("created", core.FieldCreated),
		core.Field("changed", core.FieldLastEdited),
	}
	var checks []core.DuplicateCheck
	if hasUID {
		checks = append(checks, core.DuplicateCheck{Column: "uid", Find: core.FindByField(TypeMember, fieldDrupalUID)})
	} else {
		columns = columns.Without("uid")
	}
	if hasNickname {
		checks = append(checks, core.DuplicateCheck{Column: "title", Find: core.FindByField(TypeMember, fieldNickname)})
	} else {
		columns = columns.Without("title")
	}

	keyColumn := "uid"
	if _, ok := columns.Target(keyColumn); !ok {
		keyColumn = "title"
	}

	return core.Definition{
		Key:             "users",
		Label:           "Members",
		EntityType:      TypeMember,
		KeyColumn:       keyColumn,
		Columns:         columns,
		Hooks:           core.Hooks{"name": memberName},
		DuplicateChecks: checks,
		AfterSave:       restoreCreated("created"),
	}, nil
}

func memberName(_ context.Context, _ *core.Run, e *core.Entity, value string, _ core.Record) error {
	first, surname := core.SplitName(value)
	e.Set(fieldFirstName, first)
	if surname != "" {
		e.Set(fieldSurname, surname)
	}
	return nil
}
