package extraction

import "errors"

var (
	ErrNotFound     = errors.New("extracted document not found")
	ErrValidation   = errors.New("validation error")
	ErrNotVerified  = errors.New("document was never verified")
	ErrNoExtraction = errors.New("document has no extracted data")
	ErrInvalidState = errors.New("invalid document state")
)
