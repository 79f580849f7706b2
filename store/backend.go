package store

import (
	"context"
	"errors"
	"fmt"
)

// Logical buckets of the storage schema.
const (
	BucketMessages = "messages"
	BucketQueue    = "queue"
)

// Secondary indexes. Index values are strings; timestamps are encoded as
// zero-padded decimals so lexicographic order matches numeric order.
const (
	IndexConversation = "conversation_id"
	IndexTimestamp    = "timestamp"
	IndexNextRetry    = "next_retry_at"
)

// ErrNotFound indicates a record does not exist in the backend.
var ErrNotFound = errors.New("record not found")

var errMessageNil = errors.New("message is nil")

// StorageError reports a persistence failure. Storage failures always
// propagate to the caller; the store never buffers writes it could lose.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Record is one stored document plus its index values.
type Record struct {
	Key     string
	Indexes map[string]string
	Value   []byte
}

// Backend is the async key-value storage trait the MessageStore runs on.
// Implementations must make Put durable before returning and must treat
// the two secondary indexes as first-class query capabilities.
type Backend interface {
	// Get returns the stored value for key, or ErrNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put upserts a record.
	Put(ctx context.Context, bucket string, rec Record) error
	// Delete removes a record. Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket, key string) error
	// AllByIndex returns all values whose index equals value.
	AllByIndex(ctx context.Context, bucket, index, value string) ([][]byte, error)
	// AllByIndexUpTo returns all values whose index is <= max in
	// lexicographic order.
	AllByIndexUpTo(ctx context.Context, bucket, index, max string) ([][]byte, error)
	// Usage reports the approximate stored size in bytes.
	Usage(ctx context.Context) (int64, error)
	// Close releases the backend's resources.
	Close() error
}

// encodeIndexTime renders a Unix-millisecond timestamp as a fixed-width
// decimal index value.
func encodeIndexTime(unixMilli int64) string {
	if unixMilli < 0 {
		unixMilli = 0
	}
	return fmt.Sprintf("%020d", unixMilli)
}
