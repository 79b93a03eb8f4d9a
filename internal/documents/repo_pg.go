package documents

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const recordColumns = `id, org_id, location_id, source, original_filename, media_type, storage_key, processing_status, job_handle, attempt_count, last_attempt_at, failure_code, failure_reason, review_status, confidence, deleted_at, created_at, updated_at`

// Create inserts a new document record.
func (r *PGRepo) Create(ctx context.Context, rec DocumentRecord) error {
	const query = `
INSERT INTO document_records (
    id,
    org_id,
    location_id,
    source,
    original_filename,
    media_type,
    storage_key,
    processing_status,
    review_status,
    attempt_count,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

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

	var storageKey sql.NullString
	if rec.StorageKey != "" {
		storageKey = sql.NullString{String: rec.StorageKey, Valid: true}
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.OrgID,
		rec.LocationID,
		rec.Source,
		rec.OriginalFilename,
		rec.MediaType,
		storageKey,
		string(rec.ProcessingStatus),
		string(rec.ReviewStatus),
		rec.AttemptCount,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

// Get fetches a record by ID without ownership scoping.
func (r *PGRepo) Get(ctx context.Context, id string) (DocumentRecord, error) {
	const query = `
SELECT ` + recordColumns + `
FROM document_records
WHERE id = $1
LIMIT 1`
	return r.queryRecord(ctx, query, id)
}

// GetOwned fetches a record by ID scoped to an org/location.
func (r *PGRepo) GetOwned(ctx context.Context, orgID, locationID, id string) (DocumentRecord, error) {
	const query = `
SELECT ` + recordColumns + `
FROM document_records
WHERE org_id = $1 AND location_id = $2 AND id = $3
LIMIT 1`
	return r.queryRecord(ctx, query, orgID, locationID, id)
}

// List returns non-deleted records for an org/location, newest first.
func (r *PGRepo) List(ctx context.Context, orgID, locationID string, limit, offset int) ([]DocumentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + recordColumns + `
FROM document_records
WHERE org_id = $1 AND location_id = $2 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	return r.queryRecords(ctx, query, orgID, locationID, limit, offset)
}

// CompleteUpload transitions UPLOADING -> PENDING_ANALYSIS for an owned record.
func (r *PGRepo) CompleteUpload(ctx context.Context, orgID, locationID, id string) error {
	const query = `
UPDATE document_records
SET processing_status = $1, updated_at = NOW()
WHERE org_id = $2 AND location_id = $3 AND id = $4
  AND processing_status = $5 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query,
		string(StatusPendingAnalysis), orgID, locationID, id, string(StatusUploading))
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Distinguish missing record from a state conflict.
		if _, err := r.GetOwned(ctx, orgID, locationID, id); err != nil {
			return err
		}
		return ErrInvalidState
	}
	return nil
}

// MarkAnalyzing records a started job on a record.
func (r *PGRepo) MarkAnalyzing(ctx context.Context, id, jobHandle string, countAttempt bool) error {
	const query = `
UPDATE document_records
SET processing_status = $1,
    job_handle = $2,
    last_attempt_at = NOW(),
    failure_code = NULL,
    failure_reason = NULL,
    attempt_count = LEAST(attempt_count + $3, $4),
    updated_at = NOW()
WHERE id = $5 AND deleted_at IS NULL`
	inc := 0
	if countAttempt {
		inc = 1
	}
	return r.execOne(ctx, query, string(StatusAnalyzing), jobHandle, inc, MaxAttempts, id)
}

// MarkCompleted resolves a record as successfully analyzed and flags it for
// human review.
func (r *PGRepo) MarkCompleted(ctx context.Context, id string, confidence float64) error {
	const query = `
UPDATE document_records
SET processing_status = $1,
    review_status = $2,
    confidence = $3,
    failure_code = NULL,
    failure_reason = NULL,
    updated_at = NOW()
WHERE id = $4 AND deleted_at IS NULL`
	return r.execOne(ctx, query, string(StatusAnalysisComplete), string(ReviewNeeded), confidence, id)
}

// MarkFailed resolves a record as failed.
func (r *PGRepo) MarkFailed(ctx context.Context, id, failureCode, failureReason string, countAttempt bool) error {
	const query = `
UPDATE document_records
SET processing_status = $1,
    failure_code = $2,
    failure_reason = $3,
    attempt_count = LEAST(attempt_count + $4, $5),
    updated_at = NOW()
WHERE id = $6 AND deleted_at IS NULL`
	inc := 0
	if countAttempt {
		inc = 1
	}
	return r.execOne(ctx, query, string(StatusAnalysisFailed), failureCode, failureReason, inc, MaxAttempts, id)
}

// Requeue moves a record back to PENDING_ANALYSIS.
func (r *PGRepo) Requeue(ctx context.Context, id string, countAttempt bool) error {
	const query = `
UPDATE document_records
SET processing_status = $1,
    job_handle = NULL,
    failure_code = NULL,
    failure_reason = NULL,
    attempt_count = LEAST(attempt_count + $2, $3),
    updated_at = NOW()
WHERE id = $4 AND deleted_at IS NULL`
	inc := 0
	if countAttempt {
		inc = 1
	}
	return r.execOne(ctx, query, string(StatusPendingAnalysis), inc, MaxAttempts, id)
}

// ResetForReplacement swaps in a new stored object and clears derived state.
func (r *PGRepo) ResetForReplacement(ctx context.Context, id, storageKey, originalFilename, mediaType string) error {
	const query = `
UPDATE document_records
SET storage_key = $1,
    original_filename = $2,
    media_type = $3,
    processing_status = $4,
    job_handle = NULL,
    attempt_count = 0,
    last_attempt_at = NULL,
    failure_code = NULL,
    failure_reason = NULL,
    review_status = $5,
    confidence = NULL,
    updated_at = NOW()
WHERE id = $6 AND deleted_at IS NULL`
	return r.execOne(ctx, query, storageKey, originalFilename, mediaType,
		string(StatusPendingAnalysis), string(ReviewNone), id)
}

// SetReviewStatus updates the human sign-off axis.
func (r *PGRepo) SetReviewStatus(ctx context.Context, id string, review ReviewStatus) error {
	const query = `
UPDATE document_records
SET review_status = $1, updated_at = NOW()
WHERE id = $2 AND deleted_at IS NULL`
	return r.execOne(ctx, query, string(review), id)
}

// ListAnalyzing returns non-deleted ANALYZING records with a job handle,
// oldest first so stale records drain before fresh ones.
func (r *PGRepo) ListAnalyzing(ctx context.Context, limit int) ([]DocumentRecord, error) {
	const query = `
SELECT ` + recordColumns + `
FROM document_records
WHERE processing_status = $1 AND job_handle IS NOT NULL AND deleted_at IS NULL
ORDER BY updated_at ASC
LIMIT $2`
	return r.queryRecords(ctx, query, string(StatusAnalyzing), limit)
}

// ListStuckAnalyzing returns ANALYZING records not updated since olderThan.
func (r *PGRepo) ListStuckAnalyzing(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error) {
	const query = `
SELECT ` + recordColumns + `
FROM document_records
WHERE processing_status = $1 AND updated_at < $2 AND deleted_at IS NULL
ORDER BY updated_at ASC
LIMIT $3`
	return r.queryRecords(ctx, query, string(StatusAnalyzing), olderThan, limit)
}

// ListRetryableFailed returns failed records with attempts remaining.
func (r *PGRepo) ListRetryableFailed(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error) {
	const query = `
SELECT ` + recordColumns + `
FROM document_records
WHERE processing_status = $1 AND attempt_count < $2 AND updated_at < $3 AND deleted_at IS NULL
ORDER BY updated_at ASC
LIMIT $4`
	return r.queryRecords(ctx, query, string(StatusAnalysisFailed), MaxAttempts, olderThan, limit)
}

// ListStuckPending returns PENDING_ANALYSIS records that never got a job.
func (r *PGRepo) ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]DocumentRecord, error) {
	const query = `
SELECT ` + recordColumns + `
FROM document_records
WHERE processing_status = $1 AND updated_at < $2 AND deleted_at IS NULL
ORDER BY updated_at ASC
LIMIT $3`
	return r.queryRecords(ctx, query, string(StatusPendingAnalysis), olderThan, limit)
}

// SoftDelete marks the given owned records as deleted.
func (r *PGRepo) SoftDelete(ctx context.Context, orgID, locationID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `
UPDATE document_records
SET deleted_at = NOW(), updated_at = NOW()
WHERE org_id = $1 AND location_id = $2 AND id = ANY($3::uuid[]) AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, orgID, locationID, textArray(ids))
	if err != nil {
		return 0, err
	}
	updated, _ := res.RowsAffected()
	return int(updated), nil
}

// Restore clears the delete marker on the given owned records.
func (r *PGRepo) Restore(ctx context.Context, orgID, locationID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `
UPDATE document_records
SET deleted_at = NULL, updated_at = NOW()
WHERE org_id = $1 AND location_id = $2 AND id = ANY($3::uuid[]) AND deleted_at IS NOT NULL`
	res, err := r.DB.ExecContext(ctx, query, orgID, locationID, textArray(ids))
	if err != nil {
		return 0, err
	}
	updated, _ := res.RowsAffected()
	return int(updated), nil
}

// HardDelete removes an owned record entirely. Derived extraction rows go
// with it via ON DELETE CASCADE.
func (r *PGRepo) HardDelete(ctx context.Context, orgID, locationID, id string) error {
	const query = `
DELETE FROM document_records
WHERE org_id = $1 AND location_id = $2 AND id = $3`
	res, err := r.DB.ExecContext(ctx, query, orgID, locationID, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) queryRecord(ctx context.Context, query string, args ...any) (DocumentRecord, error) {
	row := r.DB.QueryRowContext(ctx, query, args...)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentRecord{}, ErrNotFound
		}
		return DocumentRecord{}, err
	}
	return rec, nil
}

func (r *PGRepo) queryRecords(ctx context.Context, query string, args ...any) ([]DocumentRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (DocumentRecord, error) {
	var rec DocumentRecord
	var status, review string
	var storageKey, jobHandle, failureCode, failureReason sql.NullString
	var lastAttemptAt, deletedAt sql.NullTime
	var confidence sql.NullFloat64
	if err := row.Scan(
		&rec.ID,
		&rec.OrgID,
		&rec.LocationID,
		&rec.Source,
		&rec.OriginalFilename,
		&rec.MediaType,
		&storageKey,
		&status,
		&jobHandle,
		&rec.AttemptCount,
		&lastAttemptAt,
		&failureCode,
		&failureReason,
		&review,
		&confidence,
		&deletedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return DocumentRecord{}, err
	}
	rec.ProcessingStatus = Status(status)
	rec.ReviewStatus = ReviewStatus(review)
	if storageKey.Valid {
		rec.StorageKey = storageKey.String
	}
	if jobHandle.Valid {
		rec.JobHandle = jobHandle.String
	}
	if failureCode.Valid {
		rec.FailureCode = failureCode.String
	}
	if failureReason.Valid {
		rec.FailureReason = failureReason.String
	}
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		rec.LastAttemptAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	if confidence.Valid {
		c := confidence.Float64
		rec.Confidence = &c
	}
	return rec, nil
}

// textArray renders ids as a Postgres array literal for use with ANY($n).
// IDs are UUIDs generated by this service, so no quoting is needed.
func textArray(ids []string) string {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out + "}"
}

var _ Repo = (*PGRepo)(nil)
