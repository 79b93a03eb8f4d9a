package processing

import (
	"context"
	"errors"
	"testing"
	"time"

	"invoice-backend/internal/documents"
)

func seedAged(t *testing.T, docs *documents.MemoryRepo, rec documents.DocumentRecord, age time.Duration) {
	t.Helper()
	now := time.Now().UTC()
	rec.CreatedAt = now.Add(-age)
	rec.UpdatedAt = now.Add(-age)
	if err := docs.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestJanitorFailsStuckAnalyzing(t *testing.T) {
	svc, docs, _, _ := newTestService(t)
	seedAged(t, docs, documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalyzing,
		JobHandle:        "job-1",
		AttemptCount:     1,
	}, 15*time.Minute)

	res := svc.RunJanitor(context.Background())
	if res.FailedOut != 1 {
		t.Fatalf("failed out = %d, want 1", res.FailedOut)
	}

	rec, _ := docs.Get(context.Background(), "doc-1")
	if rec.ProcessingStatus != documents.StatusAnalysisFailed {
		t.Fatalf("status = %s, want %s", rec.ProcessingStatus, documents.StatusAnalysisFailed)
	}
	if rec.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", rec.AttemptCount)
	}
	if rec.FailureCode != documents.FailureCodeStuck {
		t.Fatalf("failure code = %s, want %s", rec.FailureCode, documents.FailureCodeStuck)
	}
}

func TestJanitorTerminalReasonAtAttemptCap(t *testing.T) {
	svc, docs, _, _ := newTestService(t)
	seedAged(t, docs, documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalyzing,
		JobHandle:        "job-1",
		AttemptCount:     documents.MaxAttempts,
	}, 15*time.Minute)

	svc.RunJanitor(context.Background())

	rec, _ := docs.Get(context.Background(), "doc-1")
	if rec.FailureCode != documents.FailureCodeRetryExhausted {
		t.Fatalf("failure code = %s, want %s", rec.FailureCode, documents.FailureCodeRetryExhausted)
	}
	if rec.AttemptCount != documents.MaxAttempts {
		t.Fatalf("attempt count = %d, must never exceed %d", rec.AttemptCount, documents.MaxAttempts)
	}
}

func TestJanitorRequeuesRetryableFailed(t *testing.T) {
	svc, docs, _, _ := newTestService(t)
	seedAged(t, docs, documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalysisFailed,
		JobHandle:        "job-stale",
		AttemptCount:     1,
		FailureCode:      documents.FailureCodeStuck,
	}, 15*time.Minute)

	res := svc.RunJanitor(context.Background())
	if res.Requeued != 1 {
		t.Fatalf("requeued = %d, want 1", res.Requeued)
	}

	rec, _ := docs.Get(context.Background(), "doc-1")
	if rec.ProcessingStatus != documents.StatusPendingAnalysis {
		t.Fatalf("status = %s, want %s", rec.ProcessingStatus, documents.StatusPendingAnalysis)
	}
	if rec.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", rec.AttemptCount)
	}
	if rec.JobHandle != "" {
		t.Fatalf("stale job handle %q must be cleared on requeue", rec.JobHandle)
	}
}

func TestJanitorLeavesExhaustedFailedAlone(t *testing.T) {
	svc, docs, _, _ := newTestService(t)
	seedAged(t, docs, documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalysisFailed,
		AttemptCount:     documents.MaxAttempts,
		FailureCode:      documents.FailureCodeRetryExhausted,
	}, time.Hour)

	res := svc.RunJanitor(context.Background())
	if res.Requeued != 0 {
		t.Fatalf("requeued = %d, exhausted records must stay failed", res.Requeued)
	}
	rec, _ := docs.Get(context.Background(), "doc-1")
	if rec.ProcessingStatus != documents.StatusAnalysisFailed {
		t.Fatalf("status = %s, want unchanged", rec.ProcessingStatus)
	}
}

func TestJanitorStartsStuckPending(t *testing.T) {
	svc, docs, _, _ := newTestService(t)
	seedAged(t, docs, documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		StorageKey:       "documents/org-1/doc-1",
		ProcessingStatus: documents.StatusPendingAnalysis,
	}, 15*time.Minute)

	res := svc.RunJanitor(context.Background())
	if res.Started != 1 {
		t.Fatalf("started = %d, want 1", res.Started)
	}

	rec, _ := docs.Get(context.Background(), "doc-1")
	if rec.ProcessingStatus != documents.StatusAnalyzing {
		t.Fatalf("status = %s, want %s", rec.ProcessingStatus, documents.StatusAnalyzing)
	}
	if rec.JobHandle == "" {
		t.Fatal("expected a job handle after direct start")
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, janitor direct start must consume an attempt", rec.AttemptCount)
	}
}

func TestJanitorStuckPendingStartFailure(t *testing.T) {
	svc, docs, _, analyzer := newTestService(t)
	analyzer.FailStarts(errors.New("provider down"))
	seedAged(t, docs, documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		StorageKey:       "documents/org-1/doc-1",
		ProcessingStatus: documents.StatusPendingAnalysis,
	}, 15*time.Minute)

	svc.RunJanitor(context.Background())

	rec, _ := docs.Get(context.Background(), "doc-1")
	if rec.ProcessingStatus != documents.StatusAnalysisFailed {
		t.Fatalf("status = %s, want %s", rec.ProcessingStatus, documents.StatusAnalysisFailed)
	}
	if rec.FailureCode != documents.FailureCodeStartFailed {
		t.Fatalf("failure code = %s, want %s", rec.FailureCode, documents.FailureCodeStartFailed)
	}
	if rec.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", rec.AttemptCount)
	}
}

func TestJanitorIgnoresFreshRecords(t *testing.T) {
	svc, docs, _, _ := newTestService(t)
	seedAged(t, docs, documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalyzing,
		JobHandle:        "job-1",
	}, time.Minute)

	res := svc.RunJanitor(context.Background())
	if res.FailedOut+res.Requeued+res.Started != 0 {
		t.Fatalf("janitor touched fresh records: %+v", res)
	}
}

func TestJanitorSkipsWhenPassInFlight(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.janitorMu.Lock()
	defer svc.janitorMu.Unlock()

	res := svc.RunJanitor(context.Background())
	if !res.Skipped {
		t.Fatal("overlapping janitor pass must be skipped, not queued")
	}
}
