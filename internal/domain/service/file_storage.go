package service

import (
	"context"
	"io"
)

// Upload is an already-validated inbound file.
type Upload struct {
	Filename string
	MIMEType string
	Size     int64
	Content  io.Reader
}

// FileStorage persists uploads and returns a stable reference string.
type FileStorage interface {
	Save(ctx context.Context, prefix string, upload Upload) (string, error)

	// Delete removes a stored object. A missing object is not an error.
	Delete(ctx context.Context, ref string) error
}
