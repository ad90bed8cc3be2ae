package core

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned by History.GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the stored summary of one import run. Results are kept only
// for failed records; created/updated/skipped are summarized by Counts.
type RunRecord struct {
	ID           string         `json:"id"`
	Importer     string         `json:"importer"`
	Source       string         `json:"source,omitempty"`
	Preview      bool           `json:"preview"`
	Counts       Counts         `json:"counts"`
	Failures     []ImportResult `json:"failures,omitempty"`
	RewriteRules string         `json:"rewriteRules,omitempty"`
	Error        string         `json:"error,omitempty"`
	RequestedBy  Requester      `json:"requestedBy"`
	StartedAt    time.Time      `json:"startedAt"`
	Duration     time.Duration  `json:"duration"`
}

// NewRunRecord summarizes a report for storage.
func NewRunRecord(r *Report, by Requester) RunRecord {
	return RunRecord{
		ID:           r.RunID,
		Importer:     r.Importer,
		Source:       r.Source,
		Preview:      r.Preview,
		Counts:       r.Counts,
		Failures:     r.Failures(),
		RewriteRules: r.RewriteRules,
		Error:        r.Error,
		RequestedBy:  by,
		StartedAt:    r.StartedAt,
		Duration:     r.Duration,
	}
}

// History stores run records. ListRuns returns newest first.
type History interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
}
