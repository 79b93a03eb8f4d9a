package analysis

import (
	"context"
	"encoding/json"
	"time"
)

// JobStatus is the provider job state decoded at the client boundary.
// Unrecognized provider values map to JobStatusUnknown.
type JobStatus int

const (
	JobStatusUnknown JobStatus = iota
	JobStatusRunning
	JobStatusSucceeded
	JobStatusFailed
)

// String returns a stable name for logging.
func (s JobStatus) String() string {
	switch s {
	case JobStatusRunning:
		return "RUNNING"
	case JobStatusSucceeded:
		return "SUCCEEDED"
	case JobStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// LineItem is one extracted invoice line.
type LineItem struct {
	Description  string
	Quantity     float64
	UnitPrice    float64
	LineTotal    float64
	CategoryCode string
}

// Invoice is the parsed payload of a successful analysis job.
type Invoice struct {
	SupplierName  string
	InvoiceNumber string
	InvoiceDate   *time.Time
	Subtotal      *float64
	Tax           *float64
	Total         float64
	CurrencyCode  string
	Confidence    float64
	LineItems     []LineItem
}

// JobResult is the outcome of a status query. Invoice and Raw are set only
// when Status is JobStatusSucceeded.
type JobResult struct {
	Status        JobStatus
	Invoice       *Invoice
	Raw           json.RawMessage
	FailureReason string
}

// Client is the document-analysis provider gateway. Jobs are asynchronous:
// StartJob returns an opaque handle and GetJobStatus is polled until the job
// resolves.
type Client interface {
	StartJob(ctx context.Context, storageKey string) (string, error)
	GetJobStatus(ctx context.Context, jobHandle string) (JobResult, error)
}
