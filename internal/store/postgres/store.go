// Package postgres stores the content tree and import run history in
// PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect parses the URL, applies the pool settings and pings the database.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store is a core.Backend and core.History over PostgreSQL.
type Store struct {
	db  DBTX
	now func() time.Time
}

// New returns a store using db. Call Migrate once before first use.
func New(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const entityColumns = `id, type, parent_id, fields, published`

// FindOne returns the oldest entity of type t matching f, or nil.
func (s *Store) FindOne(ctx context.Context, t core.EntityType, f core.Filter) (*core.Entity, error) {
	query, args, err := findQuery(t, f)
	if err != nil {
		return nil, err
	}
	e, err := scanEntity(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s (%s): %w", t, f, err)
	}
	return e, nil
}

// findQuery builds the lookup for f. Non-empty values use jsonb containment;
// an empty value also matches an absent key.
func findQuery(t core.EntityType, f core.Filter) (string, []any, error) {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	contains := make(map[string]string)
	var sb strings.Builder
	args := []any{string(t)}
	sb.WriteString("SELECT " + entityColumns + " FROM entities WHERE type = $1")

	for _, k := range keys {
		v := f.Fields[k]
		if v != "" {
			contains[k] = v
			continue
		}
		args = append(args, k)
		sb.WriteString(" AND COALESCE(fields->>$" + strconv.Itoa(len(args)) + ", '') = ''")
	}
	if len(contains) > 0 {
		doc, err := json.Marshal(contains)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, doc)
		sb.WriteString(" AND fields @> $" + strconv.Itoa(len(args)))
	}
	if f.HasParent {
		args = append(args, f.ParentID)
		sb.WriteString(" AND parent_id = $" + strconv.Itoa(len(args)))
	}
	sb.WriteString(" ORDER BY id LIMIT 1")
	return sb.String(), args, nil
}

func scanEntity(row pgx.Row) (*core.Entity, error) {
	var (
		e   core.Entity
		typ string
		raw []byte
	)
	if err := row.Scan(&e.ID, &typ, &e.ParentID, &raw, &e.Published); err != nil {
		return nil, err
	}
	e.Type = core.EntityType(typ)
	e.Fields = make(core.Fields)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %d: %w", e.ID, err)
		}
	}
	return &e, nil
}

// Create returns an unsaved entity.
func (s *Store) Create(_ context.Context, t core.EntityType, fields core.Fields) (*core.Entity, error) {
	e := &core.Entity{Type: t, Fields: make(core.Fields, len(fields))}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e, nil
}

// Save inserts new entities (stamping Created and a URL segment) and updates
// existing ones, replacing a placeholder URL segment once a title is set.
func (s *Store) Save(ctx context.Context, e *core.Entity) error {
	if e.IsNew() {
		return s.insert(ctx, e)
	}
	if err := core.AssignURLSegment(ctx, s, e); err != nil {
		return err
	}

	doc, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE entities SET parent_id = $2, fields = $3, published = $4, updated_at = now() WHERE id = $1`,
		e.ID, e.ParentID, doc, e.Published)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", e.Type, e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s %d: %w", e.Type, e.ID, core.ErrNotFound)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, e *core.Entity) error {
	stamp := s.now().Format(core.TimestampLayout)
	e.Set(core.FieldCreated, stamp)
	if e.Get(core.FieldLastEdited) == "" {
		e.Set(core.FieldLastEdited, stamp)
	}
	if err := core.AssignURLSegment(ctx, s, e); err != nil {
		return err
	}

	doc, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO entities (type, parent_id, fields, published) VALUES ($1, $2, $3, $4) RETURNING id`,
		string(e.Type), e.ParentID, doc, e.Published).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert %s: %w", e.Type, err)
	}
	return nil
}

// AddRelation links e to related. Adding an existing link is a no-op.
func (s *Store) AddRelation(ctx context.Context, e *core.Entity, relation string, related *core.Entity) error {
	if e.IsNew() || related.IsNew() {
		return fmt.Errorf("add %s relation: both entities must be saved first", relation)
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO entity_relations (entity_id, relation, related_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		e.ID, relation, related.ID)
	if err != nil {
		return fmt.Errorf("add %s relation: %w", relation, err)
	}
	return nil
}

// ClearRelation removes every link of e under relation.
func (s *Store) ClearRelation(ctx context.Context, e *core.Entity, relation string) error {
	if e.IsNew() {
		return fmt.Errorf("clear %s relation: entity must be saved first", relation)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM entity_relations WHERE entity_id = $1 AND relation = $2`, e.ID, relation); err != nil {
		return fmt.Errorf("clear %s relation: %w", relation, err)
	}
	return nil
}

// Related returns the entities linked from e under relation, in id order.
func (s *Store) Related(ctx context.Context, e *core.Entity, relation string) ([]*core.Entity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.type, e.parent_id, e.fields, e.published
		FROM entity_relations r JOIN entities e ON e.id = r.related_id
		WHERE r.entity_id = $1 AND r.relation = $2
		ORDER BY e.id`,
		e.ID, relation)
	if err != nil {
		return nil, fmt.Errorf("list %s relation: %w", relation, err)
	}
	defer rows.Close()

	var out []*core.Entity
	for rows.Next() {
		related, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s relation: %w", relation, err)
		}
		out = append(out, related)
	}
	return out, rows.Err()
}

// Publish marks e published.
func (s *Store) Publish(ctx context.Context, e *core.Entity) error {
	if e.IsNew() {
		return fmt.Errorf("publish %s: entity must be saved first", e.Type)
	}
	tag, err := s.db.Exec(ctx, `UPDATE entities SET published = TRUE, updated_at = now() WHERE id = $1`, e.ID)
	if err != nil {
		return fmt.Errorf("publish %s %d: %w", e.Type, e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("publish %s %d: %w", e.Type, e.ID, core.ErrNotFound)
	}
	e.Published = true
	return nil
}

// maxDepth bounds ancestor walks so a parent cycle cannot loop forever.
const maxDepth = 64

const ancestorsQuery = `WITH RECURSIVE chain AS (
	SELECT id, parent_id, COALESCE(fields->>'URLSegment', '') AS segment, 1 AS depth
	FROM entities WHERE id = $1
	UNION ALL
	SELECT p.id, p.parent_id, COALESCE(p.fields->>'URLSegment', ''), c.depth + 1
	FROM entities p JOIN chain c ON p.id = c.parent_id
	WHERE c.depth < $2
)
SELECT parent_id, segment FROM chain ORDER BY depth DESC`

// Link returns the relative link of e built from the URL segments of its
// ancestor chain, e.g. "/blogs/my-blog/hello/".
func (s *Store) Link(ctx context.Context, e *core.Entity) (string, error) {
	link := e.Get(core.FieldURLSegment) + "/"
	if e.ParentID == 0 {
		return "/" + link, nil
	}

	rows, err := s.db.Query(ctx, ancestorsQuery, e.ParentID, maxDepth)
	if err != nil {
		return "", fmt.Errorf("link %s: %w", e.Type, err)
	}
	defer rows.Close()

	var (
		segments  []string
		topParent int64 = -1
	)
	for rows.Next() {
		var parentID int64
		var segment string
		if err := rows.Scan(&parentID, &segment); err != nil {
			return "", fmt.Errorf("link %s: %w", e.Type, err)
		}
		if topParent < 0 {
			topParent = parentID
		}
		segments = append(segments, segment)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("link %s: %w", e.Type, err)
	}

	// The walk must end at the root; anything else is a dangling parent or a cycle.
	if len(segments) == 0 || topParent != 0 {
		return "", fmt.Errorf("link %s: parent %d: %w", e.Type, e.ParentID, core.ErrNotFound)
	}
	return "/" + strings.Join(segments, "/") + "/" + link, nil
}
