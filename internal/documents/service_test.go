package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"invoice-backend/internal/analysis"
	"invoice-backend/internal/shared/storage/object"
	"invoice-backend/internal/shared/storage/object/local"
)

func newTestService(t *testing.T) (*Service, *MemoryRepo, *analysis.MemoryClient) {
	t.Helper()
	repo := NewMemoryRepo()
	analyzer := analysis.NewMemoryClient()
	svc := &Service{
		Store:    local.New(t.TempDir()),
		Repo:     repo,
		Analyzer: analyzer,
	}
	return svc, repo, analyzer
}

func TestSubmitStartsAnalysis(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec, err := svc.Submit(context.Background(), "org-1", "loc-1", "invoice.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-1.4")))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.ProcessingStatus != StatusAnalyzing {
		t.Fatalf("status = %s, want %s", rec.ProcessingStatus, StatusAnalyzing)
	}
	if rec.JobHandle == "" {
		t.Fatal("expected a job handle after start")
	}
	if rec.AttemptCount != 0 {
		t.Fatalf("attempt count = %d, want 0 after successful start", rec.AttemptCount)
	}
	if !strings.HasPrefix(rec.StorageKey, "documents/org-1/") {
		t.Fatalf("storage key %q not namespaced by org", rec.StorageKey)
	}
	if rec.ReviewStatus != ReviewNone {
		t.Fatalf("review status = %s, want %s", rec.ReviewStatus, ReviewNone)
	}
}

func TestSubmitJobStartFailure(t *testing.T) {
	svc, repo, analyzer := newTestService(t)
	analyzer.FailStarts(errors.New("provider unavailable"))

	_, err := svc.Submit(context.Background(), "org-1", "loc-1", "invoice.pdf", "application/pdf", bytes.NewReader([]byte("data")))
	if err == nil {
		t.Fatal("expected error when job start fails")
	}
	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageJobStart {
		t.Fatalf("error = %v, want stage %q", err, StageJobStart)
	}

	recs, err := repo.List(context.Background(), "org-1", "loc-1", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ProcessingStatus != StatusAnalysisFailed {
		t.Fatalf("status = %s, want %s", rec.ProcessingStatus, StatusAnalysisFailed)
	}
	if rec.FailureCode != FailureCodeStartFailed {
		t.Fatalf("failure code = %s, want %s", rec.FailureCode, FailureCodeStartFailed)
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1 after failed start", rec.AttemptCount)
	}
}

type failingStore struct {
	object.ObjectStore
}

func (f failingStore) Save(ctx context.Context, storageKey, contentType string, r io.Reader) (int64, error) {
	return 0, errors.New("disk full")
}

func TestSubmitStorageFailureCreatesNoRecord(t *testing.T) {
	svc, repo, _ := newTestService(t)
	svc.Store = failingStore{svc.Store}

	_, err := svc.Submit(context.Background(), "org-1", "loc-1", "invoice.pdf", "application/pdf", bytes.NewReader([]byte("data")))
	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageStorage {
		t.Fatalf("error = %v, want stage %q", err, StageStorage)
	}

	recs, _ := repo.List(context.Background(), "org-1", "loc-1", 10, 0)
	if len(recs) != 0 {
		t.Fatalf("records = %d, want none after storage failure", len(recs))
	}
}

func TestRetryExhausted(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed := DocumentRecord{
		ID:               "doc-1",
		OrgID:            "org-1",
		LocationID:       "loc-1",
		Source:           SourceUpload,
		OriginalFilename: "invoice.pdf",
		ProcessingStatus: StatusAnalysisFailed,
		AttemptCount:     MaxAttempts,
		FailureCode:      FailureCodeRetryExhausted,
	}
	if err := repo.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.Retry(context.Background(), "org-1", "loc-1", "doc-1")
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}

	rec, _ := repo.Get(context.Background(), "doc-1")
	if rec.ProcessingStatus != StatusAnalysisFailed || rec.AttemptCount != MaxAttempts {
		t.Fatalf("record mutated on rejected retry: status=%s attempts=%d", rec.ProcessingStatus, rec.AttemptCount)
	}
}

func TestRetryRequeuesWithoutConsumingAttempt(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed := DocumentRecord{
		ID:               "doc-1",
		OrgID:            "org-1",
		LocationID:       "loc-1",
		StorageKey:       "documents/org-1/doc-1",
		ProcessingStatus: StatusAnalysisFailed,
		AttemptCount:     1,
		FailureCode:      FailureCodeStuck,
		FailureReason:    "no provider signal within the stuck threshold",
	}
	if err := repo.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := svc.Retry(context.Background(), "org-1", "loc-1", "doc-1")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if rec.ProcessingStatus == StatusAnalysisFailed {
		t.Fatalf("status = %s, want requeued", rec.ProcessingStatus)
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, manual retry must not consume an attempt", rec.AttemptCount)
	}
	if rec.FailureCode != "" || rec.FailureReason != "" {
		t.Fatalf("failure metadata not cleared: %s %s", rec.FailureCode, rec.FailureReason)
	}
}

func TestRetryRejectsWrongState(t *testing.T) {
	svc, repo, _ := newTestService(t)
	if err := repo.Create(context.Background(), DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: StatusAnalysisComplete,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.Retry(context.Background(), "org-1", "loc-1", "doc-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
}

func TestCreateUploadSessionsLimit(t *testing.T) {
	svc, _, _ := newTestService(t)

	files := make([]UploadFileSpec, MaxUploadSessions+1)
	for i := range files {
		files[i] = UploadFileSpec{FileName: "invoice.pdf"}
	}
	if _, err := svc.CreateUploadSessions(context.Background(), "org-1", "loc-1", files); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput above the session cap", err)
	}
}

func TestCompleteUploadTransitionsExactlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t)

	sessions, err := svc.CreateUploadSessions(context.Background(), "org-1", "loc-1", []UploadFileSpec{
		{FileName: "invoice.pdf", MediaType: "application/pdf"},
	})
	if err != nil {
		t.Fatalf("CreateUploadSessions: %v", err)
	}
	id := sessions[0].DocumentID

	rec, err := svc.CompleteUpload(context.Background(), "org-1", "loc-1", id)
	if err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	if rec.ProcessingStatus == StatusUploading {
		t.Fatalf("status = %s, want transitioned out of UPLOADING", rec.ProcessingStatus)
	}

	if _, err := svc.CompleteUpload(context.Background(), "org-1", "loc-1", id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second complete error = %v, want ErrInvalidState", err)
	}
}

func TestReplaceResetsDerivedState(t *testing.T) {
	svc, repo, _ := newTestService(t)
	now := time.Now().UTC()
	conf := 0.42
	if err := repo.Create(context.Background(), DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		OriginalFilename: "old.pdf",
		StorageKey:       "documents/org-1/doc-1-old.pdf",
		ProcessingStatus: StatusAnalysisFailed,
		AttemptCount:     MaxAttempts,
		LastAttemptAt:    &now,
		FailureCode:      FailureCodeRetryExhausted,
		ReviewStatus:     ReviewNeeded,
		Confidence:       &conf,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := svc.Replace(context.Background(), "org-1", "loc-1", "doc-1", "new.pdf", "application/pdf", bytes.NewReader([]byte("new")))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if rec.AttemptCount != 0 {
		t.Fatalf("attempt count = %d, want reset to 0", rec.AttemptCount)
	}
	if rec.FailureCode != "" || rec.Confidence != nil {
		t.Fatal("failure metadata and confidence must be cleared on replace")
	}
	if rec.OriginalFilename != "new.pdf" {
		t.Fatalf("filename = %s, want new.pdf", rec.OriginalFilename)
	}
	if rec.ReviewStatus != ReviewNone {
		t.Fatalf("review status = %s, want %s", rec.ReviewStatus, ReviewNone)
	}
}

func TestSoftDeleteHidesFromListing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	for _, id := range []string{"doc-1", "doc-2"} {
		if err := repo.Create(context.Background(), DocumentRecord{
			ID: id, OrgID: "org-1", LocationID: "loc-1",
			ProcessingStatus: StatusAnalysisComplete,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	count, err := svc.BulkDelete(context.Background(), "org-1", "loc-1", []string{"doc-1"})
	if err != nil || count != 1 {
		t.Fatalf("BulkDelete = (%d, %v), want (1, nil)", count, err)
	}

	recs, _ := svc.List(context.Background(), "org-1", "loc-1", 10, 0)
	if len(recs) != 1 || recs[0].ID != "doc-2" {
		t.Fatalf("listing should exclude deleted records, got %d", len(recs))
	}

	count, err = svc.BulkRestore(context.Background(), "org-1", "loc-1", []string{"doc-1"})
	if err != nil || count != 1 {
		t.Fatalf("BulkRestore = (%d, %v), want (1, nil)", count, err)
	}
	recs, _ = svc.List(context.Background(), "org-1", "loc-1", 10, 0)
	if len(recs) != 2 {
		t.Fatalf("listing after restore = %d records, want 2", len(recs))
	}
}

type fakeDeleter struct {
	deleted []string
}

func (f *fakeDeleter) DeleteByDocument(ctx context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

func TestHardDeleteRemovesDerivedRows(t *testing.T) {
	svc, repo, _ := newTestService(t)
	deleter := &fakeDeleter{}
	svc.Derived = deleter

	if err := repo.Create(context.Background(), DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: StatusAnalysisComplete,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.HardDelete(context.Background(), "org-1", "loc-1", "doc-1"); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if len(deleter.deleted) != 1 || deleter.deleted[0] != "doc-1" {
		t.Fatalf("derived cleanup calls = %v, want [doc-1]", deleter.deleted)
	}
	if _, err := repo.Get(context.Background(), "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after hard delete = %v, want ErrNotFound", err)
	}
}

func TestOwnershipScoping(t *testing.T) {
	svc, repo, _ := newTestService(t)
	if err := repo.Create(context.Background(), DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: StatusAnalysisComplete,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.Get(context.Background(), "org-2", "loc-1", "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-org get = %v, want ErrNotFound", err)
	}
}
