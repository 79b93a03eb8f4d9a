package processing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"invoice-backend/internal/analysis"
	"invoice-backend/internal/documents"
)

func TestRefreshBatchRejectsOversizedBatch(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	ids := make([]string, BatchLimit+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%d", i)
	}
	_, err := svc.RefreshBatch(context.Background(), "org-1", "loc-1", ids)
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("error = %v, want ErrBatchTooLarge before any provider call", err)
	}
}

func TestRefreshBatchRequiresIDs(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.RefreshBatch(context.Background(), "org-1", "loc-1", nil); !errors.Is(err, documents.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRefreshBatchIsolatesPerDocumentOutcomes(t *testing.T) {
	svc, docs, _, analyzer := newTestService(t)
	ctx := context.Background()

	handle := seedAnalyzing(t, docs, analyzer, "doc-running")
	analyzer.Complete(handle, analysis.Invoice{Total: 7})

	if err := docs.Create(ctx, documents.DocumentRecord{
		ID: "doc-done", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalysisComplete,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, err := svc.RefreshBatch(ctx, "org-1", "loc-1", []string{"doc-running", "doc-done", "doc-missing"})
	if err != nil {
		t.Fatalf("RefreshBatch: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}

	byID := make(map[string]BatchItem, len(items))
	for _, item := range items {
		byID[item.DocumentID] = item
	}

	if !byID["doc-running"].Refreshed {
		t.Fatalf("doc-running = %+v, want refreshed", byID["doc-running"])
	}
	if byID["doc-running"].ProcessingStatus != string(documents.StatusAnalysisComplete) {
		t.Fatalf("doc-running status = %s, want %s", byID["doc-running"].ProcessingStatus, documents.StatusAnalysisComplete)
	}
	if byID["doc-done"].Reason != "not_analyzing" {
		t.Fatalf("doc-done reason = %q, want not_analyzing", byID["doc-done"].Reason)
	}
	if byID["doc-missing"].Reason != "not_found" {
		t.Fatalf("doc-missing reason = %q, want not_found", byID["doc-missing"].Reason)
	}
}

func TestRefreshBatchOrderMatchesInput(t *testing.T) {
	svc, docs, _, analyzer := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("doc-%d", i)
		seedAnalyzing(t, docs, analyzer, id)
		ids = append(ids, id)
	}

	items, err := svc.RefreshBatch(ctx, "org-1", "loc-1", ids)
	if err != nil {
		t.Fatalf("RefreshBatch: %v", err)
	}
	for i, item := range items {
		if item.DocumentID != ids[i] {
			t.Fatalf("items[%d] = %s, want %s", i, item.DocumentID, ids[i])
		}
	}
}
