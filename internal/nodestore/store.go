// Package nodestore defines the interface for storing and retrieving the
// mutable execution state of workflow node instances, and the provenance
// records that let a later run reuse earlier results.
//
// The store separates two concerns:
//   - Live state (status, outputs, errors) of the current run, written by the
//     engine's workers and read by downstream instances and the status server.
//   - Records of finished instances keyed by an input hash. A record from an
//     earlier run whose outputs still exist lets the engine skip the instance.
//
// Implementations must be safe for concurrent use.
package nodestore

import (
	"context"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Status is the execution state of one node instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCached    Status = "cached"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Succeeded reports whether downstream instances may consume the outputs.
func (s Status) Succeeded() bool {
	return s == StatusCompleted || s == StatusCached
}

// Record is the provenance of one finished instance.
type Record struct {
	RunID      string
	InstanceID string
	Subject    string
	Tool       string
	Hash       string
	Outputs    cty.Value
	Status     Status
	Error      string
	Started    time.Time
	Finished   time.Time
}

// Store manages node instance state.
type Store interface {
	// SetStatus updates the execution status of an instance.
	SetStatus(ctx context.Context, id string, status Status) error
	// GetStatus returns StatusPending if no status has been set yet.
	GetStatus(ctx context.Context, id string) (Status, error)

	// SetOutputs records the outputs of a successful instance as a cty object.
	SetOutputs(ctx context.Context, id string, outputs cty.Value) error
	// GetOutputs returns the outputs and whether any were recorded.
	GetOutputs(ctx context.Context, id string) (cty.Value, bool, error)

	// SetError records the failure of an instance.
	SetError(ctx context.Context, id string, nodeErr error) error
	// GetError returns nil if the instance did not fail.
	GetError(ctx context.Context, id string) (error, error)

	// Summary counts instances per status in the current run.
	Summary(ctx context.Context) (map[Status]int, error)

	// Save persists the record of a finished instance.
	Save(ctx context.Context, rec *Record) error
	// Lookup returns the most recent successful record with the given hash,
	// or nil when there is none.
	Lookup(ctx context.Context, hash string) (*Record, error)

	Close() error
}
