// Package storage persists uploaded and imported event logs.
//
// Only the raw serialized logs are stored. Index tables are always rebuilt
// in memory from a decoded log and are never written to disk.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Benny93/ocelgraph-go/internal/ocel"
)

var (
	// ErrLogNotFound is returned when no log is stored under a name.
	ErrLogNotFound = errors.New("log not found")

	// ErrNotInitialized is returned when a store is used before Initialize
	// or after Close.
	ErrNotInitialized = errors.New("store not initialized")
)

// StoredLog describes a stored log without its payload.
type StoredLog struct {
	// Name is the key the log is stored under, usually a file name.
	Name string `json:"name"`

	// Format is the serialization of the payload.
	Format ocel.Format `json:"format"`

	// Size is the payload size in bytes.
	Size int64 `json:"size"`

	// Checksum is the hex SHA-256 of the payload.
	Checksum string `json:"checksum"`

	// StoredAt is the time the payload was last written.
	StoredAt time.Time `json:"stored_at"`
}

// LogStore defines the interface for raw-log storage implementations.
//
// Implementations must be safe for concurrent use.
type LogStore interface {
	// Initialize opens or creates the store at the given path.
	// If readOnly is true, writes fail.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the store.
	Close() error

	// Put stores data under name, replacing any previous payload.
	Put(ctx context.Context, name string, format ocel.Format, data []byte) (StoredLog, error)

	// Get returns the metadata and payload stored under name.
	Get(ctx context.Context, name string) (StoredLog, []byte, error)

	// List returns the metadata of every stored log, sorted by name.
	List(ctx context.Context) ([]StoredLog, error)

	// Delete removes the log stored under name.
	Delete(ctx context.Context, name string) error
}
