package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/jackc/pgx/v5"
)

const runColumns = `id, importer, source, preview, counts, failures, rewrite_rules, error, requested_by, started_at, duration_ms`

// RecordRun stores a run record, replacing one with the same id.
func (s *Store) RecordRun(ctx context.Context, rec core.RunRecord) error {
	counts, err := json.Marshal(rec.Counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}
	failures := rec.Failures
	if failures == nil {
		failures = []core.ImportResult{}
	}
	failuresDoc, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}
	requester, err := json.Marshal(rec.RequestedBy)
	if err != nil {
		return fmt.Errorf("encode requester: %w", err)
	}

	_, err = s.db.Exec(ctx, `INSERT INTO import_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			importer = EXCLUDED.importer,
			source = EXCLUDED.source,
			preview = EXCLUDED.preview,
			counts = EXCLUDED.counts,
			failures = EXCLUDED.failures,
			rewrite_rules = EXCLUDED.rewrite_rules,
			error = EXCLUDED.error,
			requested_by = EXCLUDED.requested_by,
			started_at = EXCLUDED.started_at,
			duration_ms = EXCLUDED.duration_ms`,
		rec.ID, rec.Importer, rec.Source, rec.Preview, counts, failuresDoc,
		rec.RewriteRules, rec.Error, requester, rec.StartedAt, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.ID, err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]core.RunRecord, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, `SELECT `+runColumns+` FROM import_runs ORDER BY started_at DESC LIMIT $1`, lim)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []core.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*core.RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM import_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// PruneRuns deletes runs started before the cutoff.
func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM import_runs WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (*core.RunRecord, error) {
	var (
		rec                           core.RunRecord
		counts, failures, requestedBy []byte
		durationMs                    int64
	)
	err := row.Scan(&rec.ID, &rec.Importer, &rec.Source, &rec.Preview, &counts, &failures,
		&rec.RewriteRules, &rec.Error, &requestedBy, &rec.StartedAt, &durationMs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(counts, &rec.Counts); err != nil {
		return nil, fmt.Errorf("decode counts: %w", err)
	}
	if err := json.Unmarshal(failures, &rec.Failures); err != nil {
		return nil, fmt.Errorf("decode failures: %w", err)
	}
	if err := json.Unmarshal(requestedBy, &rec.RequestedBy); err != nil {
		return nil, fmt.Errorf("decode requester: %w", err)
	}
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return &rec, nil
}
