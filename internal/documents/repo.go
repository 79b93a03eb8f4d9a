package documents

import (
	"context"
	"time"
)

// Repo defines persistence operations for document records. Mutating
// operations never touch soft-deleted records; scan queries exclude them.
type Repo interface {
	Create(ctx context.Context, rec DocumentRecord) error
	// Get returns a record by ID without ownership scoping; reserved for
	// internal pipeline actors.
	Get(ctx context.Context, id string) (DocumentRecord, error)
	// GetOwned returns a record only when it belongs to the org/location.
	GetOwned(ctx context.Context, orgID, locationID, id string) (DocumentRecord, error)
	List(ctx context.Context, orgID, locationID string, limit, offset int) ([]DocumentRecord, error)

	// CompleteUpload transitions exactly one record from UPLOADING to
	// PENDING_ANALYSIS. Returns ErrInvalidState when the record is not in
	// UPLOADING.
	CompleteUpload(ctx context.Context, orgID, locationID, id string) error
	// MarkAnalyzing records a started job: sets the handle, moves to
	// ANALYZING and stamps last_attempt_at.
	MarkAnalyzing(ctx context.Context, id, jobHandle string, countAttempt bool) error
	// MarkCompleted moves to ANALYSIS_COMPLETE and flags the record for
	// review.
	MarkCompleted(ctx context.Context, id string, confidence float64) error
	MarkFailed(ctx context.Context, id, failureCode, failureReason string, countAttempt bool) error
	// Requeue moves a record back to PENDING_ANALYSIS, clearing the stale
	// job handle and failure metadata.
	Requeue(ctx context.Context, id string, countAttempt bool) error
	// ResetForReplacement swaps in a new stored object and clears all
	// analysis-derived state, including the attempt counter.
	ResetForReplacement(ctx context.Context, id, storageKey, originalFilename, mediaType string) error
	SetReviewStatus(ctx context.Context, id string, review ReviewStatus) error

	ListAnalyzing(ctx context.Context, limit int) ([]DocumentRecord, error)
	ListStuckAnalyzing(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error)
	ListRetryableFailed(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error)
	ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error)

	SoftDelete(ctx context.Context, orgID, locationID string, ids []string) (int, error)
	Restore(ctx context.Context, orgID, locationID string, ids []string) (int, error)
	HardDelete(ctx context.Context, orgID, locationID, id string) error
}
