package interfaces

import (
	"context"
)

// StorageBackend uploads content to one content-addressed storage provider.
type StorageBackend interface {
	// Put uploads the blob and returns the identifier the provider assigned.
	Put(ctx context.Context, blob ContentBlob) (ContentIdentifier, error)

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// ContentStore is the uniform entry point over all configured backends.
// Implementations never retry and report every failure as *UploadError.
type ContentStore interface {
	Put(ctx context.Context, blob ContentBlob, backend BackendSelector) (ContentIdentifier, error)
}

// StorageBackendFactory creates storage backends.
type StorageBackendFactory interface {
	// StorageBackendFor creates a backend from a location URI.
	// Supports web3://, pinata://, ipfs://, s3://, file://, vault://
	StorageBackendFor(locationURI string) (BackendSelector, StorageBackend, error)
}
