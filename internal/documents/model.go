package documents

import "time"

// Status is the automatic pipeline state of a document record.
type Status string

const (
	StatusUploading        Status = "UPLOADING"
	StatusPendingAnalysis  Status = "PENDING_ANALYSIS"
	StatusAnalyzing        Status = "ANALYZING"
	StatusAnalysisComplete Status = "ANALYSIS_COMPLETE"
	StatusAnalysisFailed   Status = "ANALYSIS_FAILED"
)

// ReviewStatus is the human sign-off axis, independent of processing state.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = "NONE"
	ReviewNeeded   ReviewStatus = "NEEDS_REVIEW"
	ReviewVerified ReviewStatus = "VERIFIED"
)

// Source tags how the document entered the system.
const (
	SourceUpload = "upload"
	SourceSynced = "synced"
)

// MaxAttempts caps automatic analysis attempts. Once a record reaches the
// cap, only explicit operator action (replace file, manual entry) moves it.
const MaxAttempts = 3

// Failure codes stored on ANALYSIS_FAILED records.
const (
	FailureCodeStartFailed      = "START_FAILED"
	FailureCodeProviderRejected = "PROVIDER_REJECTED"
	FailureCodeStuck            = "STUCK"
	FailureCodeRetryExhausted   = "RETRY_EXHAUSTED"
)

// DocumentRecord tracks one uploaded document's storage location and
// processing/review state.
type DocumentRecord struct {
	ID               string
	OrgID            string
	LocationID       string
	Source           string
	OriginalFilename string
	MediaType        string
	StorageKey       string
	ProcessingStatus Status
	JobHandle        string
	AttemptCount     int
	LastAttemptAt    *time.Time
	FailureCode      string
	FailureReason    string
	ReviewStatus     ReviewStatus
	Confidence       *float64
	DeletedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AttemptsRemaining reports whether the record may still be retried
// automatically.
func (r DocumentRecord) AttemptsRemaining() bool {
	return r.AttemptCount < MaxAttempts
}
