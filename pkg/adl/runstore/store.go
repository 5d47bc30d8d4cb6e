// Package runstore persists finished run records.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/scheduler"
)

// Store persists run records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores rec, replacing any record with the same RunID.
	Save(ctx context.Context, rec *Record) error

	// Load retrieves a record.
	// Returns ErrNotFound if the run has no record.
	Load(ctx context.Context, runID string) (*Record, error)

	// List returns metadata for every record, oldest first.
	// Returns an empty slice (not error) if there are none.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a record.
	// Returns nil if the record doesn't exist.
	Delete(ctx context.Context, runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record is a run serialized for storage.
type Record struct {
	RunID      string
	Status     scheduler.Status
	StartedAt  time.Time
	FinishedAt time.Time
	// Data is the JSON encoding of the scheduler.Run.
	Data []byte
}

// Info provides metadata without loading the run.
type Info struct {
	RunID      string
	Status     scheduler.Status
	StartedAt  time.Time
	FinishedAt time.Time
	Size       int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("run record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("run store closed")

	// ErrInvalidRecord indicates a record without a run id.
	ErrInvalidRecord = errors.New("invalid run record")
)

// NewRecord serializes run.
func NewRecord(run *scheduler.Run) (*Record, error) {
	if run == nil || run.ID == "" {
		return nil, fmt.Errorf("%w: run has no id", ErrInvalidRecord)
	}
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	return &Record{
		RunID:      run.ID,
		Status:     run.Status,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Data:       data,
	}, nil
}

// Run decodes the stored run.
func (r *Record) Run() (*scheduler.Run, error) {
	var run scheduler.Run
	if err := json.Unmarshal(r.Data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", r.RunID, err)
	}
	return &run, nil
}

// Info returns the metadata of r.
func (r *Record) Info() Info {
	return Info{
		RunID:      r.RunID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Size:       int64(len(r.Data)),
	}
}

func validate(rec *Record) error {
	if rec == nil || rec.RunID == "" {
		return fmt.Errorf("%w: missing run id", ErrInvalidRecord)
	}
	return nil
}

func sortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].StartedAt.Before(infos[j].StartedAt)
		}
		return infos[i].RunID < infos[j].RunID
	})
}

const timeLayout = time.RFC3339Nano
