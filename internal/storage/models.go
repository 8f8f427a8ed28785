package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchResult summarises one UpsertBatch call.
type BatchResult struct {
	Inserted int
	Updated  int
	Failures []PersistenceError
}

// Persisted returns the number of committed records.
func (r BatchResult) Persisted() int {
	return r.Inserted + r.Updated
}

// PersistenceError records a failed upsert for a single bond. The rest of the
// batch is unaffected.
type PersistenceError struct {
	SecID string
	Err   error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.SecID, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// RunStatus describes how an ingestion cycle ended. A partial run stopped
// listing early on an error.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunSkipped   RunStatus = "skipped"
)

// RunRecord is one row of the ingestion ledger.
type RunRecord struct {
	ID            uuid.UUID
	StartedAt     time.Time
	FinishedAt    time.Time
	Pages         int
	Listed        int
	Inserted      int
	Updated       int
	Dropped       int
	Failed        int
	PersistFailed int
	Status        RunStatus
	Error         *string
}
