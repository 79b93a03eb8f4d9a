package documents

import "errors"

var (
	ErrNotFound       = errors.New("document not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidState   = errors.New("invalid document state")
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	ErrDeleted        = errors.New("document is deleted")
)

// Stage tags for submission errors.
const (
	StageStorage  = "storage"
	StageRecord   = "record"
	StageJobStart = "job_start"
)

// StageError tags a submission failure with the pipeline stage it occurred in
// so callers can log and alert on the right boundary.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
