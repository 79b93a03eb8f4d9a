package extraction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo stores extracted invoice data in memory.
type MemoryRepo struct {
	mu         sync.RWMutex
	byDocument map[string]ExtractedDocument
	results    map[string][]AnalysisResult
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byDocument: make(map[string]ExtractedDocument),
		results:    make(map[string][]AnalysisResult),
	}
}

// Upsert replaces the extracted document for a record, keeping an existing
// row's ID.
func (r *MemoryRepo) Upsert(ctx context.Context, doc ExtractedDocument) (ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return ExtractedDocument{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.byDocument[doc.DocumentID]; ok {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	} else {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	items := make([]LineItem, len(doc.LineItems))
	for i, item := range doc.LineItems {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.ExtractedDocumentID = doc.ID
		item.Position = i
		items[i] = item
	}
	doc.LineItems = items

	r.byDocument[doc.DocumentID] = doc
	return doc, nil
}

// GetByDocument returns the extracted document for a record.
func (r *MemoryRepo) GetByDocument(ctx context.Context, documentID string) (ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return ExtractedDocument{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.byDocument[documentID]
	if !ok {
		return ExtractedDocument{}, ErrNotFound
	}
	doc.LineItems = append([]LineItem(nil), doc.LineItems...)
	return doc, nil
}

// KeepLineItems drops every line item except the given ones.
func (r *MemoryRepo) KeepLineItems(ctx context.Context, extractedDocumentID string, keepIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keep := make(map[string]bool, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for docID, doc := range r.byDocument {
		if doc.ID != extractedDocumentID {
			continue
		}
		var kept []LineItem
		for _, item := range doc.LineItems {
			if keep[item.ID] {
				kept = append(kept, item)
			}
		}
		for i := range kept {
			kept[i].Position = i
		}
		doc.LineItems = kept
		doc.UpdatedAt = time.Now().UTC()
		r.byDocument[docID] = doc
		return nil
	}
	return ErrNotFound
}

// SetSupplier stamps the resolved supplier on the extracted document.
func (r *MemoryRepo) SetSupplier(ctx context.Context, extractedDocumentID, supplierID, supplierName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for docID, doc := range r.byDocument {
		if doc.ID != extractedDocumentID {
			continue
		}
		doc.SupplierID = supplierID
		doc.SupplierName = supplierName
		doc.UpdatedAt = time.Now().UTC()
		r.byDocument[docID] = doc
		return nil
	}
	return ErrNotFound
}

// SaveResult stores a raw payload snapshot, one per (document, job handle).
func (r *MemoryRepo) SaveResult(ctx context.Context, res AnalysisResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.JobHandle != "" {
		for _, existing := range r.results[res.DocumentID] {
			if existing.JobHandle == res.JobHandle {
				return nil
			}
		}
	}
	r.results[res.DocumentID] = append(r.results[res.DocumentID], res)
	return nil
}

// ListResults returns payload snapshots for a document, newest first.
func (r *MemoryRepo) ListResults(ctx context.Context, documentID string, limit int) ([]AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := append([]AnalysisResult(nil), r.results[documentID]...)
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteByDocument removes all derived rows for a document.
func (r *MemoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byDocument, documentID)
	delete(r.results, documentID)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
