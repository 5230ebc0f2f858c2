package archive

import (
	"context"
)

// ObjectStore provides an interface for object storage operations.
// This interface enables mocking and testing of the archive.
type ObjectStore interface {
	// Put writes data to bucket/object, replacing any existing object.
	Put(ctx context.Context, bucket, object string, data []byte, contentType string) error

	// Get reads the whole object.
	Get(ctx context.Context, bucket, object string) ([]byte, error)
}
