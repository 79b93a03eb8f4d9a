package processing

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"invoice-backend/internal/analysis"
	"invoice-backend/internal/documents"
	"invoice-backend/internal/extraction"
	"invoice-backend/internal/shared/storage/object/local"
)

func newTestService(t *testing.T) (*Service, *documents.MemoryRepo, *extraction.MemoryRepo, *analysis.MemoryClient) {
	t.Helper()
	docs := documents.NewMemoryRepo()
	extractions := extraction.NewMemoryRepo()
	analyzer := analysis.NewMemoryClient()
	svc := &Service{
		Docs:           docs,
		Extractions:    extractions,
		Analyzer:       analyzer,
		Store:          local.New(t.TempDir()),
		StuckThreshold: 10 * time.Minute,
		ScanLimit:      100,
	}
	return svc, docs, extractions, analyzer
}

func seedAnalyzing(t *testing.T, docs *documents.MemoryRepo, analyzer *analysis.MemoryClient, id string) string {
	t.Helper()
	ctx := context.Background()
	handle, err := analyzer.StartJob(ctx, "documents/org-1/"+id)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if err := docs.Create(ctx, documents.DocumentRecord{
		ID: id, OrgID: "org-1", LocationID: "loc-1",
		StorageKey:       "documents/org-1/" + id,
		ProcessingStatus: documents.StatusAnalyzing,
		JobHandle:        handle,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return handle
}

func TestPollCompletesSucceededJob(t *testing.T) {
	svc, docs, extractions, analyzer := newTestService(t)
	ctx := context.Background()
	handle := seedAnalyzing(t, docs, analyzer, "doc-1")

	analyzer.Complete(handle, analysis.Invoice{
		SupplierName: "Dairy Co",
		Total:        100.00,
		Confidence:   0.91,
		LineItems: []analysis.LineItem{
			{Description: "Milk", Quantity: 2, UnitPrice: 5, LineTotal: 10},
		},
	})

	res := svc.RunPoll(ctx)
	if res.Skipped || res.Polled != 1 || res.Completed != 1 {
		t.Fatalf("poll result = %+v, want one completed", res)
	}

	rec, err := docs.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.ProcessingStatus != documents.StatusAnalysisComplete {
		t.Fatalf("status = %s, want %s", rec.ProcessingStatus, documents.StatusAnalysisComplete)
	}
	if rec.ReviewStatus != documents.ReviewNeeded {
		t.Fatalf("review = %s, want %s even at high confidence", rec.ReviewStatus, documents.ReviewNeeded)
	}
	if rec.Confidence == nil || *rec.Confidence != 0.91 {
		t.Fatalf("confidence = %v, want 0.91", rec.Confidence)
	}

	doc, err := extractions.GetByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetByDocument: %v", err)
	}
	if doc.Total != 100.00 {
		t.Fatalf("total = %v, want 100.00", doc.Total)
	}
	if len(doc.LineItems) != 1 || doc.LineItems[0].Description != "Milk" {
		t.Fatalf("line items = %+v, want exactly one (Milk)", doc.LineItems)
	}
}

func TestPollIsIdempotentOnResolvedRecords(t *testing.T) {
	svc, docs, extractions, analyzer := newTestService(t)
	ctx := context.Background()
	handle := seedAnalyzing(t, docs, analyzer, "doc-1")
	analyzer.Complete(handle, analysis.Invoice{Total: 50})

	svc.RunPoll(ctx)
	first, err := extractions.GetByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetByDocument: %v", err)
	}
	before, _ := docs.Get(ctx, "doc-1")

	res := svc.RunPoll(ctx)
	if res.Polled != 0 {
		t.Fatalf("second pass polled %d records, resolved records must not be rescanned", res.Polled)
	}
	second, _ := extractions.GetByDocument(ctx, "doc-1")
	if second.ID != first.ID {
		t.Fatal("extracted document must not be recreated on re-poll")
	}
	after, _ := docs.Get(ctx, "doc-1")
	if after.AttemptCount != before.AttemptCount {
		t.Fatalf("attempt count changed %d -> %d on idempotent poll", before.AttemptCount, after.AttemptCount)
	}
}

func TestApplySuccessKeepsOneSnapshotPerAttempt(t *testing.T) {
	svc, docs, extractions, analyzer := newTestService(t)
	ctx := context.Background()
	seedAnalyzing(t, docs, analyzer, "doc-1")

	rec, err := docs.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	result := analysis.JobResult{
		Status:  analysis.JobStatusSucceeded,
		Invoice: &analysis.Invoice{Total: 25, Confidence: 0.8},
		Raw:     json.RawMessage(`{"vendor":"Dairy Co"}`),
	}

	// A completion write can fail after the snapshot lands; the next pass
	// re-runs the whole success path for the same job handle.
	if err := svc.applySuccess(ctx, rec, result); err != nil {
		t.Fatalf("first applySuccess: %v", err)
	}
	if err := svc.applySuccess(ctx, rec, result); err != nil {
		t.Fatalf("second applySuccess: %v", err)
	}

	results, err := extractions.ListResults(ctx, "doc-1", 10)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("snapshots = %d, want exactly one per analysis attempt", len(results))
	}
}

func TestPollSkipsSoftDeletedRecords(t *testing.T) {
	svc, docs, _, analyzer := newTestService(t)
	ctx := context.Background()
	handle := seedAnalyzing(t, docs, analyzer, "doc-1")
	analyzer.Complete(handle, analysis.Invoice{Total: 10})

	if _, err := docs.SoftDelete(ctx, "org-1", "loc-1", []string{"doc-1"}); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	res := svc.RunPoll(ctx)
	if res.Polled != 0 {
		t.Fatalf("polled %d records, deleted records must be invisible to the poller", res.Polled)
	}
}

func TestPollMarksProviderRejection(t *testing.T) {
	svc, docs, _, analyzer := newTestService(t)
	ctx := context.Background()
	handle := seedAnalyzing(t, docs, analyzer, "doc-1")
	analyzer.Fail(handle, "unreadable document")

	svc.RunPoll(ctx)

	rec, _ := docs.Get(ctx, "doc-1")
	if rec.ProcessingStatus != documents.StatusAnalysisFailed {
		t.Fatalf("status = %s, want %s", rec.ProcessingStatus, documents.StatusAnalysisFailed)
	}
	if rec.FailureCode != documents.FailureCodeProviderRejected {
		t.Fatalf("failure code = %s, want %s", rec.FailureCode, documents.FailureCodeProviderRejected)
	}
	if rec.AttemptCount != 0 {
		t.Fatalf("attempt count = %d, provider rejection must not consume an attempt", rec.AttemptCount)
	}
	if rec.FailureReason != "unreadable document" {
		t.Fatalf("failure reason = %q", rec.FailureReason)
	}
}

func TestPollSkipsWhenPassInFlight(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.pollMu.Lock()
	defer svc.pollMu.Unlock()

	res := svc.RunPoll(context.Background())
	if !res.Skipped {
		t.Fatal("overlapping poll pass must be skipped, not queued")
	}
}

func TestPollOneHydratesReadURL(t *testing.T) {
	svc, docs, _, analyzer := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Store.Save(ctx, "documents/org-1/doc-1", "application/pdf", readerOf("content")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	handle := seedAnalyzing(t, docs, analyzer, "doc-1")
	analyzer.Complete(handle, analysis.Invoice{Total: 1})

	polled, err := svc.PollOne(ctx, "org-1", "loc-1", "doc-1")
	if err != nil {
		t.Fatalf("PollOne: %v", err)
	}
	if polled.Record.ProcessingStatus != documents.StatusAnalysisComplete {
		t.Fatalf("status = %s, want %s", polled.Record.ProcessingStatus, documents.StatusAnalysisComplete)
	}
	if polled.ReadURL == "" {
		t.Fatal("expected a read URL for the stored document")
	}
}

func readerOf(s string) *strings.Reader {
	return strings.NewReader(s)
}
