package extraction

import "context"

// Repo defines persistence operations for extracted invoice data.
type Repo interface {
	// Upsert stores the extracted document for a record, replacing any
	// existing row and its line items in place. The existing row's ID is
	// kept so external references stay stable.
	Upsert(ctx context.Context, doc ExtractedDocument) (ExtractedDocument, error)
	// GetByDocument returns the extracted document and its line items for a
	// document record.
	GetByDocument(ctx context.Context, documentID string) (ExtractedDocument, error)
	// KeepLineItems deletes every line item of the extracted document except
	// the given ones.
	KeepLineItems(ctx context.Context, extractedDocumentID string, keepIDs []string) error
	// SetSupplier stamps the resolved supplier on the extracted document.
	SetSupplier(ctx context.Context, extractedDocumentID, supplierID, supplierName string) error
	// SaveResult stores a raw provider payload snapshot. At most one row
	// exists per (document, job handle); replays are no-ops.
	SaveResult(ctx context.Context, res AnalysisResult) error
	// ListResults returns payload snapshots for a document, newest first.
	ListResults(ctx context.Context, documentID string, limit int) ([]AnalysisResult, error)
	// DeleteByDocument removes the extracted document, its line items and
	// all payload snapshots. Removing nothing is not an error.
	DeleteByDocument(ctx context.Context, documentID string) error
}
