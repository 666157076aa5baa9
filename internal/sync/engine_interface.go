package sync

import (
	"context"
	"time"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
)

// Syncer defines the replay operations consumed by the scheduler and the
// agent API. This interface allows for fakes in tests.
type Syncer interface {
	// Sync runs one replay pass. It never fails; outcomes are recorded on
	// the queue entries.
	Sync(ctx context.Context) models.SyncResult

	// Status returns the current sync status.
	Status() Status

	// LastSync returns when the last non-empty pass finished.
	LastSync() *time.Time

	// LastResult returns the counts of the last non-empty pass.
	LastResult() models.SyncResult
}

var _ Syncer = (*Orchestrator)(nil)
