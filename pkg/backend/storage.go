package backend

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Storage defines the contract for the key/value layer below a backend.
// Keys are slash separated. Implementations must be safe for concurrent use.
type Storage interface {
	// Write stores data with the given key.
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves data for the given key.
	// Returns os.ErrNotExist if the key does not exist.
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns keys matching the given prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data for the given key.
	// Returns nil if the key does not exist (idempotent).
	Delete(ctx context.Context, key string) error

	// ReadGeneration returns the data and an opaque generation token.
	// Returns os.ErrNotExist if the key does not exist.
	ReadGeneration(ctx context.Context, key string) ([]byte, string, error)

	// WriteIfGeneration writes data only if the stored generation equals
	// generation. An empty generation requires the key to be absent.
	// Returns lock.ErrGenerationMismatch otherwise.
	WriteIfGeneration(ctx context.Context, key string, data []byte, generation string) error

	// DeleteIfGeneration deletes the key only if the stored generation
	// equals generation. A missing key is not an error.
	DeleteIfGeneration(ctx context.Context, key string, generation string) error

	// URI returns the location of key, e.g. file:///tmp/x or s3://bucket/x.
	URI(key string) string

	// Close releases any resources held by the storage backend.
	Close() error
}

// contentGeneration derives a generation token from the stored bytes.
func contentGeneration(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
