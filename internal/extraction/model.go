package extraction

import (
	"encoding/json"
	"time"
)

// ExtractedDocument is the parsed invoice header derived from one document.
// At most one exists per document; re-analysis replaces it in place.
type ExtractedDocument struct {
	ID            string
	DocumentID    string
	SupplierID    string
	SupplierName  string
	InvoiceNumber string
	InvoiceDate   *time.Time
	Subtotal      *float64
	Tax           *float64
	Total         float64
	CurrencyCode  string
	LineItems     []LineItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LineItem is one extracted invoice line, ordered by Position.
type LineItem struct {
	ID                  string
	ExtractedDocumentID string
	Description         string
	Quantity            float64
	UnitPrice           float64
	LineTotal           float64
	CategoryCode        string
	Position            int
}

// AnalysisResult is the raw provider payload snapshot kept per successful
// analysis attempt for audit and debugging.
type AnalysisResult struct {
	ID         string
	DocumentID string
	JobHandle  string
	Raw        json.RawMessage
	CreatedAt  time.Time
}
