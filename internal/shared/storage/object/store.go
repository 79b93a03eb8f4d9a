package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for saving and retrieving binary objects.
// Keys are caller-provided; the store never invents its own layout.
type ObjectStore interface {
	Save(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	PresignUpload(ctx context.Context, storageKey string, contentType string) (url string, err error)
	PresignRead(ctx context.Context, storageKey string) (url string, err error)
}
