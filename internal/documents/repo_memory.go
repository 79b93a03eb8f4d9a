package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores document records in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]DocumentRecord
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]DocumentRecord)}
}

// Create stores the record. Timestamps are filled only when zero, so callers
// may seed historical records.
func (r *MemoryRepo) Create(ctx context.Context, rec DocumentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.ReviewStatus == "" {
		rec.ReviewStatus = ReviewNone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rec.ID] = rec
	return nil
}

// Get returns a record by ID regardless of ownership.
func (r *MemoryRepo) Get(ctx context.Context, id string) (DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return DocumentRecord{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return DocumentRecord{}, ErrNotFound
	}
	return rec, nil
}

// GetOwned returns a record only when it belongs to the org/location.
func (r *MemoryRepo) GetOwned(ctx context.Context, orgID, locationID, id string) (DocumentRecord, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return DocumentRecord{}, err
	}
	if rec.OrgID != orgID || rec.LocationID != locationID {
		return DocumentRecord{}, ErrNotFound
	}
	return rec, nil
}

// List returns non-deleted records for an org/location, newest first.
func (r *MemoryRepo) List(ctx context.Context, orgID, locationID string, limit, offset int) ([]DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	var recs []DocumentRecord
	for _, rec := range r.byID {
		if rec.OrgID == orgID && rec.LocationID == locationID && rec.DeletedAt == nil {
			recs = append(recs, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	if offset >= len(recs) {
		return []DocumentRecord{}, nil
	}
	end := len(recs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return recs[offset:end], nil
}

// CompleteUpload transitions UPLOADING -> PENDING_ANALYSIS.
func (r *MemoryRepo) CompleteUpload(ctx context.Context, orgID, locationID, id string) error {
	return r.update(ctx, id, func(rec *DocumentRecord) error {
		if rec.OrgID != orgID || rec.LocationID != locationID {
			return ErrNotFound
		}
		if rec.ProcessingStatus != StatusUploading {
			return ErrInvalidState
		}
		rec.ProcessingStatus = StatusPendingAnalysis
		return nil
	})
}

// MarkAnalyzing records a started analysis job.
func (r *MemoryRepo) MarkAnalyzing(ctx context.Context, id, jobHandle string, countAttempt bool) error {
	return r.update(ctx, id, func(rec *DocumentRecord) error {
		now := time.Now().UTC()
		rec.ProcessingStatus = StatusAnalyzing
		rec.JobHandle = jobHandle
		rec.LastAttemptAt = &now
		rec.FailureCode = ""
		rec.FailureReason = ""
		if countAttempt && rec.AttemptCount < MaxAttempts {
			rec.AttemptCount++
		}
		return nil
	})
}

// MarkCompleted resolves a record as successfully analyzed.
func (r *MemoryRepo) MarkCompleted(ctx context.Context, id string, confidence float64) error {
	return r.update(ctx, id, func(rec *DocumentRecord) error {
		rec.ProcessingStatus = StatusAnalysisComplete
		rec.ReviewStatus = ReviewNeeded
		rec.Confidence = &confidence
		rec.FailureCode = ""
		rec.FailureReason = ""
		return nil
	})
}

// MarkFailed resolves a record as failed.
func (r *MemoryRepo) MarkFailed(ctx context.Context, id, failureCode, failureReason string, countAttempt bool) error {
	return r.update(ctx, id, func(rec *DocumentRecord) error {
		rec.ProcessingStatus = StatusAnalysisFailed
		rec.FailureCode = failureCode
		rec.FailureReason = failureReason
		if countAttempt && rec.AttemptCount < MaxAttempts {
			rec.AttemptCount++
		}
		return nil
	})
}

// Requeue moves a record back to PENDING_ANALYSIS.
func (r *MemoryRepo) Requeue(ctx context.Context, id string, countAttempt bool) error {
	return r.update(ctx, id, func(rec *DocumentRecord) error {
		rec.ProcessingStatus = StatusPendingAnalysis
		rec.JobHandle = ""
		rec.FailureCode = ""
		rec.FailureReason = ""
		if countAttempt && rec.AttemptCount < MaxAttempts {
			rec.AttemptCount++
		}
		return nil
	})
}

// ResetForReplacement swaps the stored object and clears derived state.
func (r *MemoryRepo) ResetForReplacement(ctx context.Context, id, storageKey, originalFilename, mediaType string) error {
	return r.update(ctx, id, func(rec *DocumentRecord) error {
		rec.StorageKey = storageKey
		rec.OriginalFilename = originalFilename
		rec.MediaType = mediaType
		rec.ProcessingStatus = StatusPendingAnalysis
		rec.JobHandle = ""
		rec.AttemptCount = 0
		rec.LastAttemptAt = nil
		rec.FailureCode = ""
		rec.FailureReason = ""
		rec.ReviewStatus = ReviewNone
		rec.Confidence = nil
		return nil
	})
}

// SetReviewStatus updates the human sign-off axis.
func (r *MemoryRepo) SetReviewStatus(ctx context.Context, id string, review ReviewStatus) error {
	return r.update(ctx, id, func(rec *DocumentRecord) error {
		rec.ReviewStatus = review
		return nil
	})
}

// ListAnalyzing returns non-deleted ANALYZING records with a job handle.
func (r *MemoryRepo) ListAnalyzing(ctx context.Context, limit int) ([]DocumentRecord, error) {
	return r.scan(ctx, limit, func(rec DocumentRecord) bool {
		return rec.ProcessingStatus == StatusAnalyzing && rec.JobHandle != ""
	})
}

// ListStuckAnalyzing returns ANALYZING records not updated since olderThan.
func (r *MemoryRepo) ListStuckAnalyzing(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error) {
	return r.scan(ctx, limit, func(rec DocumentRecord) bool {
		return rec.ProcessingStatus == StatusAnalyzing && rec.UpdatedAt.Before(olderThan)
	})
}

// ListRetryableFailed returns failed records with attempts remaining.
func (r *MemoryRepo) ListRetryableFailed(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error) {
	return r.scan(ctx, limit, func(rec DocumentRecord) bool {
		return rec.ProcessingStatus == StatusAnalysisFailed &&
			rec.AttemptCount < MaxAttempts &&
			rec.UpdatedAt.Before(olderThan)
	})
}

// ListStuckPending returns PENDING_ANALYSIS records that never started a job.
func (r *MemoryRepo) ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error) {
	return r.scan(ctx, limit, func(rec DocumentRecord) bool {
		return rec.ProcessingStatus == StatusPendingAnalysis && rec.UpdatedAt.Before(olderThan)
	})
}

// SoftDelete marks the given owned records as deleted.
func (r *MemoryRepo) SoftDelete(ctx context.Context, orgID, locationID string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, id := range ids {
		rec, ok := r.byID[id]
		if !ok || rec.OrgID != orgID || rec.LocationID != locationID || rec.DeletedAt != nil {
			continue
		}
		rec.DeletedAt = &now
		rec.UpdatedAt = now
		r.byID[id] = rec
		count++
	}
	return count, nil
}

// Restore clears the delete marker on the given owned records.
func (r *MemoryRepo) Restore(ctx context.Context, orgID, locationID string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, id := range ids {
		rec, ok := r.byID[id]
		if !ok || rec.OrgID != orgID || rec.LocationID != locationID || rec.DeletedAt == nil {
			continue
		}
		rec.DeletedAt = nil
		rec.UpdatedAt = now
		r.byID[id] = rec
		count++
	}
	return count, nil
}

// HardDelete removes an owned record entirely.
func (r *MemoryRepo) HardDelete(ctx context.Context, orgID, locationID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok || rec.OrgID != orgID || rec.LocationID != locationID {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *MemoryRepo) update(ctx context.Context, id string, apply func(rec *DocumentRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if rec.DeletedAt != nil {
		return ErrDeleted
	}
	if err := apply(&rec); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()
	r.byID[id] = rec
	return nil
}

func (r *MemoryRepo) scan(ctx context.Context, limit int, match func(rec DocumentRecord) bool) ([]DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var recs []DocumentRecord
	for _, rec := range r.byID {
		if rec.DeletedAt == nil && match(rec) {
			recs = append(recs, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].UpdatedAt.Before(recs[j].UpdatedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

var _ Repo = (*MemoryRepo)(nil)
