// Package objstore defines the object-store collaborator interface of
// spec.md §4.2 and a concrete S3-backed implementation. The core never
// assumes anything about the backing store beyond this interface.
package objstore

import (
	"context"
	"time"
)

// Entry is one listed key, with whatever metadata the backend could supply.
type Entry struct {
	Key          string
	ETag         string
	LastModified time.Time
	Size         int64
}

// Client is the exact surface §4.2 says the core consumes.
type Client interface {
	Get(ctx context.Context, key string) (data []byte, etag string, lastModified time.Time, size int64, err error)
	GetRange(ctx context.Context, key string, off, length int64) ([]byte, error)
	GetJSON(ctx context.Context, key string, v interface{}) error
	Put(ctx context.Context, key string, data []byte) (etag string, size int64, err error)
	PutJSON(ctx context.Context, key string, v interface{}) (etag string, size int64, err error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix, delimiter string) ([]Entry, error)
}

// interface guards
var (
	_ Client = (*S3Store)(nil)
	_ Client = (*MemStore)(nil)
)
