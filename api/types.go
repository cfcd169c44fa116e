package api

import (
	"context"

	"github.com/ruteri/trustmesh-backend/interfaces"
)

// Publisher uploads metadata and anchors it for an owner.
type Publisher interface {
	// Upload stores the blob on the selected backend and returns its identifier.
	// Nothing is anchored.
	Upload(ctx context.Context, blob interfaces.ContentBlob, backend interfaces.BackendSelector) (interfaces.ContentIdentifier, error)

	// Publish uploads the blob and anchors the identifier for owner.
	Publish(ctx context.Context, owner interfaces.Identity, blob interfaces.ContentBlob, backend interfaces.BackendSelector) (interfaces.Record, error)
}

// RecordLookup reads records from the ledger.
type RecordLookup interface {
	Lookup(ctx context.Context, owner interfaces.Identity) (interfaces.Record, error)
}

// UploadResponse is returned by POST /upload-ipfs/{backend}.
type UploadResponse struct {
	// IpfsHash is the content identifier assigned by the backend.
	IpfsHash interfaces.ContentIdentifier `json:"ipfsHash"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is a human readable description of the failure.
	Error string `json:"error"`

	// Kind is one of the interfaces.Kind* constants.
	Kind string `json:"kind"`
}

// RecordResponse is the JSON form of a ledger record.
type RecordResponse = interfaces.Record

// MaxRequestBodySize bounds JSON request bodies.
const MaxRequestBodySize = 1 << 20
