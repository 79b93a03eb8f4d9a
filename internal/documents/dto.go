package documents

import "time"

// RecordResponse is the wire shape of a document record.
type RecordResponse struct {
	DocumentID       string     `json:"documentId"`
	Source           string     `json:"source"`
	OriginalFilename string     `json:"originalFilename"`
	MediaType        string     `json:"mediaType"`
	ProcessingStatus string     `json:"processingStatus"`
	ReviewStatus     string     `json:"reviewStatus"`
	AttemptCount     int        `json:"attemptCount"`
	LastAttemptAt    *time.Time `json:"lastAttemptAt,omitempty"`
	FailureCode      string     `json:"failureCode,omitempty"`
	FailureReason    string     `json:"failureReason,omitempty"`
	Confidence       *float64   `json:"confidence,omitempty"`
	Deleted          bool       `json:"deleted"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toResponse(rec DocumentRecord) RecordResponse {
	return RecordResponse{
		DocumentID:       rec.ID,
		Source:           rec.Source,
		OriginalFilename: rec.OriginalFilename,
		MediaType:        rec.MediaType,
		ProcessingStatus: string(rec.ProcessingStatus),
		ReviewStatus:     string(rec.ReviewStatus),
		AttemptCount:     rec.AttemptCount,
		LastAttemptAt:    rec.LastAttemptAt,
		FailureCode:      rec.FailureCode,
		FailureReason:    rec.FailureReason,
		Confidence:       rec.Confidence,
		Deleted:          rec.DeletedAt != nil,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

type sessionRequest struct {
	Files []sessionFile `json:"files"`
}

type sessionFile struct {
	FileName  string `json:"fileName"`
	MediaType string `json:"mediaType"`
}

type sessionResponse struct {
	DocumentID string `json:"documentId"`
	StorageKey string `json:"storageKey"`
	UploadURL  string `json:"uploadUrl"`
}

type idsRequest struct {
	DocumentIDs []string `json:"documentIds"`
}
