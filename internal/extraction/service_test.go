package extraction

import (
	"context"
	"errors"
	"testing"

	"invoice-backend/internal/documents"
	"invoice-backend/internal/suppliers"
)

func newTestService(t *testing.T) (*Service, *documents.MemoryRepo, *MemoryRepo) {
	t.Helper()
	docs := documents.NewMemoryRepo()
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:      repo,
		Documents: docs,
		Suppliers: suppliers.NewMemoryResolver(),
	}
	return svc, docs, repo
}

func seedExtracted(t *testing.T, docs *documents.MemoryRepo, repo *MemoryRepo, documentID string, itemCount int) ExtractedDocument {
	t.Helper()
	ctx := context.Background()
	if err := docs.Create(ctx, documents.DocumentRecord{
		ID: documentID, OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalysisComplete,
		ReviewStatus:     documents.ReviewNeeded,
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	items := make([]LineItem, itemCount)
	for i := range items {
		items[i] = LineItem{Description: "item", Quantity: 1, UnitPrice: 2, LineTotal: 2}
	}
	doc, err := repo.Upsert(ctx, ExtractedDocument{
		DocumentID:   documentID,
		SupplierName: "ACME Supplies Ltd",
		Total:        float64(itemCount) * 2,
		LineItems:    items,
	})
	if err != nil {
		t.Fatalf("seed extraction: %v", err)
	}
	return doc
}

func TestVerifyKeepsSelectedSubset(t *testing.T) {
	svc, docs, repo := newTestService(t)
	ctx := context.Background()
	doc := seedExtracted(t, docs, repo, "doc-1", 3)

	out, err := svc.Verify(ctx, "org-1", "loc-1", "doc-1", VerifyInput{
		SupplierName:        "ACME",
		SelectedLineItemIDs: []string{doc.LineItems[0].ID, doc.LineItems[2].ID},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(out.LineItems) != 2 {
		t.Fatalf("kept %d line items, want 2", len(out.LineItems))
	}
	if out.SupplierID == "" || out.SupplierName != "ACME" {
		t.Fatalf("supplier = %q/%q, want resolved ACME", out.SupplierID, out.SupplierName)
	}

	rec, _ := docs.Get(ctx, "doc-1")
	if rec.ReviewStatus != documents.ReviewVerified {
		t.Fatalf("review = %s, want %s", rec.ReviewStatus, documents.ReviewVerified)
	}
}

func TestVerifyRejectsForeignLineItem(t *testing.T) {
	svc, docs, repo := newTestService(t)
	ctx := context.Background()
	mine := seedExtracted(t, docs, repo, "doc-1", 2)
	other := seedExtracted(t, docs, repo, "doc-2", 1)

	_, err := svc.Verify(ctx, "org-1", "loc-1", "doc-1", VerifyInput{
		SupplierName:        "ACME",
		SelectedLineItemIDs: []string{mine.LineItems[0].ID, other.LineItems[0].ID},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for a foreign line item", err)
	}

	doc, _ := repo.GetByDocument(ctx, "doc-1")
	if len(doc.LineItems) != 2 {
		t.Fatalf("line items = %d, rejected verify must not delete anything", len(doc.LineItems))
	}
	rec, _ := docs.Get(ctx, "doc-1")
	if rec.ReviewStatus != documents.ReviewNeeded {
		t.Fatalf("review = %s, must be unchanged", rec.ReviewStatus)
	}
}

func TestVerifyRequiresSupplierReference(t *testing.T) {
	svc, docs, repo := newTestService(t)
	doc := seedExtracted(t, docs, repo, "doc-1", 1)

	_, err := svc.Verify(context.Background(), "org-1", "loc-1", "doc-1", VerifyInput{
		SelectedLineItemIDs: []string{doc.LineItems[0].ID},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation without a supplier reference", err)
	}
}

func TestVerifyRejectsUnknownSupplierID(t *testing.T) {
	svc, docs, repo := newTestService(t)
	seedExtracted(t, docs, repo, "doc-1", 1)

	_, err := svc.Verify(context.Background(), "org-1", "loc-1", "doc-1", VerifyInput{
		SupplierID: "nope",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for unknown supplier id", err)
	}
}

func TestVerifyWithoutExtraction(t *testing.T) {
	svc, docs, _ := newTestService(t)
	if err := docs.Create(context.Background(), documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalysisComplete,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.Verify(context.Background(), "org-1", "loc-1", "doc-1", VerifyInput{SupplierName: "ACME"})
	if !errors.Is(err, ErrNoExtraction) {
		t.Fatalf("error = %v, want ErrNoExtraction", err)
	}
}

func TestVerifyIsIdempotentByOverwrite(t *testing.T) {
	svc, docs, repo := newTestService(t)
	ctx := context.Background()
	doc := seedExtracted(t, docs, repo, "doc-1", 2)

	keep := []string{doc.LineItems[0].ID}
	if _, err := svc.Verify(ctx, "org-1", "loc-1", "doc-1", VerifyInput{SupplierName: "ACME", SelectedLineItemIDs: keep}); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	out, err := svc.Verify(ctx, "org-1", "loc-1", "doc-1", VerifyInput{SupplierName: "ACME", SelectedLineItemIDs: keep})
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if len(out.LineItems) != 1 {
		t.Fatalf("line items = %d after re-verify, want 1", len(out.LineItems))
	}
}

func TestRevertRequiresVerified(t *testing.T) {
	svc, docs, repo := newTestService(t)
	ctx := context.Background()
	seedExtracted(t, docs, repo, "doc-1", 1)

	if err := svc.Revert(ctx, "org-1", "loc-1", "doc-1"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("error = %v, want ErrNotVerified", err)
	}

	if err := docs.SetReviewStatus(ctx, "doc-1", documents.ReviewVerified); err != nil {
		t.Fatalf("SetReviewStatus: %v", err)
	}
	if err := svc.Revert(ctx, "org-1", "loc-1", "doc-1"); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	rec, _ := docs.Get(ctx, "doc-1")
	if rec.ReviewStatus != documents.ReviewNeeded {
		t.Fatalf("review = %s, want %s", rec.ReviewStatus, documents.ReviewNeeded)
	}
}

func TestManualEntryCreatesShellForFailedRecord(t *testing.T) {
	svc, docs, repo := newTestService(t)
	ctx := context.Background()
	if err := docs.Create(ctx, documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalysisFailed,
		AttemptCount:     documents.MaxAttempts,
		FailureCode:      documents.FailureCodeRetryExhausted,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	doc, err := svc.ManualEntry(ctx, "org-1", "loc-1", "doc-1")
	if err != nil {
		t.Fatalf("ManualEntry: %v", err)
	}
	if doc.ID == "" || len(doc.LineItems) != 0 {
		t.Fatalf("shell = %+v, want empty extracted document", doc)
	}

	// Processing state stays terminal.
	rec, _ := docs.Get(ctx, "doc-1")
	if rec.ProcessingStatus != documents.StatusAnalysisFailed {
		t.Fatalf("status = %s, manual entry must not touch processing state", rec.ProcessingStatus)
	}
	if rec.ReviewStatus != documents.ReviewNeeded {
		t.Fatalf("review = %s, want %s for the new shell", rec.ReviewStatus, documents.ReviewNeeded)
	}

	if _, err := repo.GetByDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("GetByDocument: %v", err)
	}
}

func TestManualEntryRejectsNonFailedRecord(t *testing.T) {
	svc, docs, _ := newTestService(t)
	if err := docs.Create(context.Background(), documents.DocumentRecord{
		ID: "doc-1", OrgID: "org-1", LocationID: "loc-1",
		ProcessingStatus: documents.StatusAnalysisComplete,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.ManualEntry(context.Background(), "org-1", "loc-1", "doc-1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
}
