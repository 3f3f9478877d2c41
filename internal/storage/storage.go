package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo carries the blob metadata a download response needs.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// Store is the blob collaborator: file bytes go in under an opaque
// path and come back as a stream. Metadata lives elsewhere.
type Store interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectName string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, objectName string) error
	PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration, filename string) (string, error)
}
