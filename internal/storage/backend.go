// Package storage persists imported federations.
//
// It defines the StorageBackend interface that all storage implementations
// must satisfy. Federations are stored whole, keyed by name; graphs are not
// stored because every build recomputes them from the federation.
package storage

import (
	"context"
	"errors"

	"github.com/Benny93/fedgraph/internal/federation"
)

var (
	// ErrNotFound is returned when no federation has the requested name.
	ErrNotFound = errors.New("federation not found")

	// ErrNotInitialized is returned when a backend is used before
	// Initialize or after Close.
	ErrNotInitialized = errors.New("storage backend not initialized")

	// ErrInvalidName is returned for a federation without a name.
	ErrInvalidName = errors.New("federation name is empty")
)

// StorageBackend defines the interface for storage implementations.
//
// Implementations must be thread-safe and support concurrent access.
type StorageBackend interface {
	// Lifecycle methods

	// Initialize opens or creates the storage backend at the given path.
	// If readOnly is true, the backend is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// Federation operations

	// SaveFederation stores a federation under its name, replacing any
	// federation stored under the same name.
	SaveFederation(ctx context.Context, fed *federation.Federation) error

	// LoadFederation returns the federation stored under name, or
	// ErrNotFound.
	LoadFederation(ctx context.Context, name string) (*federation.Federation, error)

	// GetSummary returns the summary of the federation stored under name,
	// or ErrNotFound.
	GetSummary(ctx context.Context, name string) (*federation.Summary, error)

	// ListFederations returns the summaries of all federations sorted by
	// name.
	ListFederations(ctx context.Context) ([]federation.Summary, error)

	// DeleteFederation removes the federation stored under name, or
	// returns ErrNotFound.
	DeleteFederation(ctx context.Context, name string) error

	// FederationCount returns the number of stored federations.
	FederationCount() int
}
