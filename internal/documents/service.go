package documents

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"invoice-backend/internal/analysis"
	"invoice-backend/internal/queue"
	"invoice-backend/internal/shared/metrics"
	"invoice-backend/internal/shared/storage/object"
	"invoice-backend/internal/shared/telemetry"
)

// MaxUploadSessions caps how many presigned upload sessions one call may
// create.
const MaxUploadSessions = 20

const startTimeout = 30 * time.Second

// DerivedDeleter removes analysis-derived rows owned by a document. Deleting
// for a document with no rows is a no-op. The extraction repo implements it.
type DerivedDeleter interface {
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Service contains submission and lifecycle logic for document records.
type Service struct {
	Store    object.ObjectStore
	Repo     Repo
	Analyzer analysis.Client
	// Queue hands job starts to an external worker when set; otherwise job
	// starts run on an in-process goroutine.
	Queue   queue.Client
	Derived DerivedDeleter
}

// UploadFileSpec describes one file a client intends to upload.
type UploadFileSpec struct {
	FileName  string
	MediaType string
}

// UploadSession is a pre-created record with a presigned write target.
type UploadSession struct {
	DocumentID string
	StorageKey string
	UploadURL  string
}

// Submit stores the document and starts analysis synchronously. Side effects
// are strictly ordered: storage write, then record, then job start.
func (s *Service) Submit(ctx context.Context, orgID, locationID, fileName, mediaType string, r io.Reader) (DocumentRecord, error) {
	if orgID == "" || locationID == "" || fileName == "" {
		return DocumentRecord{}, ErrInvalidInput
	}

	id := uuid.NewString()
	storageKey := StorageKey(orgID, id, fileName)

	mediaType, r = sniffMediaType(mediaType, r)
	if _, err := s.Store.Save(ctx, storageKey, mediaType, r); err != nil {
		return DocumentRecord{}, stageErr(StageStorage, err)
	}

	rec := DocumentRecord{
		ID:               id,
		OrgID:            orgID,
		LocationID:       locationID,
		Source:           SourceUpload,
		OriginalFilename: fileName,
		MediaType:        mediaType,
		StorageKey:       storageKey,
		ProcessingStatus: StatusPendingAnalysis,
		ReviewStatus:     ReviewNone,
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		// The stored object is orphaned; cleanup is out of band.
		return DocumentRecord{}, stageErr(StageRecord, err)
	}
	metrics.IncDocumentSubmitted()

	if err := s.startJob(ctx, rec); err != nil {
		return DocumentRecord{}, stageErr(StageJobStart, err)
	}
	return s.Repo.Get(ctx, id)
}

// CreateUploadSessions pre-creates UPLOADING records with presigned write
// targets. At most MaxUploadSessions per call.
func (s *Service) CreateUploadSessions(ctx context.Context, orgID, locationID string, files []UploadFileSpec) ([]UploadSession, error) {
	if orgID == "" || locationID == "" || len(files) == 0 {
		return nil, ErrInvalidInput
	}
	if len(files) > MaxUploadSessions {
		return nil, ErrInvalidInput
	}

	sessions := make([]UploadSession, 0, len(files))
	for _, f := range files {
		if f.FileName == "" {
			return nil, ErrInvalidInput
		}
		mediaType := f.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}

		id := uuid.NewString()
		storageKey := StorageKey(orgID, id, f.FileName)
		uploadURL, err := s.Store.PresignUpload(ctx, storageKey, mediaType)
		if err != nil {
			return nil, stageErr(StageStorage, err)
		}

		rec := DocumentRecord{
			ID:               id,
			OrgID:            orgID,
			LocationID:       locationID,
			Source:           SourceUpload,
			OriginalFilename: f.FileName,
			MediaType:        mediaType,
			StorageKey:       storageKey,
			ProcessingStatus: StatusUploading,
			ReviewStatus:     ReviewNone,
		}
		if err := s.Repo.Create(ctx, rec); err != nil {
			return nil, stageErr(StageRecord, err)
		}

		sessions = append(sessions, UploadSession{
			DocumentID: id,
			StorageKey: storageKey,
			UploadURL:  uploadURL,
		})
	}
	metrics.IncDocumentSubmitted()
	return sessions, nil
}

// CompleteUpload confirms a presigned upload. The state transition is
// synchronous and authoritative; the job start is fire-and-forget.
func (s *Service) CompleteUpload(ctx context.Context, orgID, locationID, id string) (DocumentRecord, error) {
	if err := s.Repo.CompleteUpload(ctx, orgID, locationID, id); err != nil {
		return DocumentRecord{}, err
	}
	s.startAsync(id)
	return s.Repo.GetOwned(ctx, orgID, locationID, id)
}

// StartAnalysis starts the provider job for a PENDING_ANALYSIS record. Called
// by the queue worker, the in-process async path and the janitor-adjacent
// flows. A record no longer pending is a no-op.
func (s *Service) StartAnalysis(ctx context.Context, id string) error {
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.DeletedAt != nil {
		return ErrDeleted
	}
	if rec.ProcessingStatus != StatusPendingAnalysis {
		return nil
	}
	return s.startJob(ctx, rec)
}

// startJob calls the provider and records the outcome. A successful start
// does not consume an attempt; a failed start does.
func (s *Service) startJob(ctx context.Context, rec DocumentRecord) error {
	handle, err := s.Analyzer.StartJob(ctx, rec.StorageKey)
	if err != nil {
		metrics.IncAnalysisFailed()
		if markErr := s.Repo.MarkFailed(ctx, rec.ID, FailureCodeStartFailed, err.Error(), true); markErr != nil {
			telemetry.Error("document.mark_failed_error", map[string]any{
				"document_id": rec.ID,
				"error":       markErr.Error(),
			})
		}
		return err
	}
	if err := s.Repo.MarkAnalyzing(ctx, rec.ID, handle, false); err != nil {
		return err
	}
	metrics.IncAnalysisStarted()
	telemetry.Info("document.analysis_started", map[string]any{
		"document_id": rec.ID,
		"org_id":      rec.OrgID,
		"job_handle":  handle,
	})
	return nil
}

// startAsync hands the job start to the queue when configured, falling back
// to an in-process goroutine.
func (s *Service) startAsync(id string) {
	if s.Queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		msg := queue.Message{
			DocumentID: id,
			RequestID:  uuid.NewString(),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		err := s.Queue.Send(ctx, msg)
		if err == nil {
			return
		}
		// Fall through to the in-process path so the record is not stranded.
		telemetry.Error("document.enqueue_failed", map[string]any{
			"document_id": id,
			"error":       err.Error(),
		})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		if err := s.StartAnalysis(ctx, id); err != nil {
			telemetry.Error("document.async_start_failed", map[string]any{
				"document_id": id,
				"error":       err.Error(),
			})
		}
	}()
}

// Retry requeues a failed record. Only ANALYSIS_FAILED records with attempts
// remaining qualify; the requeue itself does not consume an attempt.
func (s *Service) Retry(ctx context.Context, orgID, locationID, id string) (DocumentRecord, error) {
	rec, err := s.Repo.GetOwned(ctx, orgID, locationID, id)
	if err != nil {
		return DocumentRecord{}, err
	}
	if rec.DeletedAt != nil {
		return DocumentRecord{}, ErrDeleted
	}
	if rec.ProcessingStatus != StatusAnalysisFailed {
		return DocumentRecord{}, ErrInvalidState
	}
	if !rec.AttemptsRemaining() {
		return DocumentRecord{}, ErrRetryExhausted
	}
	if err := s.Repo.Requeue(ctx, id, false); err != nil {
		return DocumentRecord{}, err
	}
	s.startAsync(id)
	return s.Repo.GetOwned(ctx, orgID, locationID, id)
}

// Replace swaps in a new file and resets all analysis-derived state,
// including the attempt counter. Stale extraction rows are dropped so the
// next successful analysis starts from a clean slate.
func (s *Service) Replace(ctx context.Context, orgID, locationID, id, fileName, mediaType string, r io.Reader) (DocumentRecord, error) {
	if fileName == "" {
		return DocumentRecord{}, ErrInvalidInput
	}
	rec, err := s.Repo.GetOwned(ctx, orgID, locationID, id)
	if err != nil {
		return DocumentRecord{}, err
	}
	if rec.DeletedAt != nil {
		return DocumentRecord{}, ErrDeleted
	}

	storageKey := StorageKey(orgID, id, fileName)
	mediaType, r = sniffMediaType(mediaType, r)
	if _, err := s.Store.Save(ctx, storageKey, mediaType, r); err != nil {
		return DocumentRecord{}, stageErr(StageStorage, err)
	}
	if err := s.Repo.ResetForReplacement(ctx, id, storageKey, fileName, mediaType); err != nil {
		return DocumentRecord{}, err
	}
	if s.Derived != nil {
		if err := s.Derived.DeleteByDocument(ctx, id); err != nil {
			telemetry.Error("document.derived_cleanup_failed", map[string]any{
				"document_id": id,
				"error":       err.Error(),
			})
		}
	}
	s.startAsync(id)
	return s.Repo.GetOwned(ctx, orgID, locationID, id)
}

// Get returns an owned record.
func (s *Service) Get(ctx context.Context, orgID, locationID, id string) (DocumentRecord, error) {
	return s.Repo.GetOwned(ctx, orgID, locationID, id)
}

// List returns non-deleted owned records, newest first.
func (s *Service) List(ctx context.Context, orgID, locationID string, limit, offset int) ([]DocumentRecord, error) {
	return s.Repo.List(ctx, orgID, locationID, limit, offset)
}

// BulkDelete soft-deletes the given owned records and returns how many
// changed.
func (s *Service) BulkDelete(ctx context.Context, orgID, locationID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidInput
	}
	return s.Repo.SoftDelete(ctx, orgID, locationID, ids)
}

// BulkRestore un-deletes the given owned records and returns how many
// changed.
func (s *Service) BulkRestore(ctx context.Context, orgID, locationID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidInput
	}
	return s.Repo.Restore(ctx, orgID, locationID, ids)
}

// HardDelete removes a record and its derived extraction and audit rows.
func (s *Service) HardDelete(ctx context.Context, orgID, locationID, id string) error {
	if _, err := s.Repo.GetOwned(ctx, orgID, locationID, id); err != nil {
		return err
	}
	// Postgres cascades via foreign keys; the memory repos need the explicit
	// call. Harmless to run on both.
	if s.Derived != nil {
		if err := s.Derived.DeleteByDocument(ctx, id); err != nil {
			return err
		}
	}
	return s.Repo.HardDelete(ctx, orgID, locationID, id)
}

// sniffMediaType detects the content type from the leading bytes when the
// caller did not supply one.
func sniffMediaType(mediaType string, r io.Reader) (string, io.Reader) {
	if mediaType != "" {
		return mediaType, r
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(r, head)
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(bytes.NewReader(head), r)
}
