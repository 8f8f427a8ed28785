package pipeline

import (
	"time"

	"github.com/google/uuid"

	"moex-bond-screener/internal/bond"
	"moex-bond-screener/internal/storage"
)

// CycleReport summarises one ingestion cycle.
type CycleReport struct {
	RunID         uuid.UUID
	StartedAt     time.Time
	FinishedAt    time.Time
	Pages         int
	Listed        int
	Inserted      int
	Updated       int
	Dropped       map[bond.FilterReason]int
	Failed        int
	PersistFailed int
	// ListErr is set when pagination stopped on a lister error.
	ListErr error
	// Skipped is set when another process held the ingestion lock.
	Skipped bool
}

func newReport(started time.Time) CycleReport {
	return CycleReport{
		RunID:     uuid.New(),
		StartedAt: started,
		Dropped:   make(map[bond.FilterReason]int),
	}
}

// Elapsed returns the wall time of the cycle.
func (r CycleReport) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// DroppedTotal sums drops over all reasons.
func (r CycleReport) DroppedTotal() int {
	total := 0
	for _, n := range r.Dropped {
		total += n
	}
	return total
}

// Persisted is the number of records committed during the cycle.
func (r CycleReport) Persisted() int {
	return r.Inserted + r.Updated
}

// Status classifies the cycle for the run ledger.
func (r CycleReport) Status() storage.RunStatus {
	switch {
	case r.Skipped:
		return storage.RunSkipped
	case r.ListErr != nil:
		return storage.RunPartial
	default:
		return storage.RunCompleted
	}
}

// RunRecord converts the report into a ledger row.
func (r CycleReport) RunRecord() storage.RunRecord {
	rec := storage.RunRecord{
		ID:            r.RunID,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Pages:         r.Pages,
		Listed:        r.Listed,
		Inserted:      r.Inserted,
		Updated:       r.Updated,
		Dropped:       r.DroppedTotal(),
		Failed:        r.Failed,
		PersistFailed: r.PersistFailed,
		Status:        r.Status(),
	}
	if r.ListErr != nil {
		msg := r.ListErr.Error()
		rec.Error = &msg
	}
	return rec
}
