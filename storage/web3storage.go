package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/trustmesh-backend/interfaces"
)

// DefaultWeb3StorageEndpoint is the public Web3.Storage API.
const DefaultWeb3StorageEndpoint = "https://api.web3.storage"

// web3FileName is the name uploaded JSON metadata is stored under.
const web3FileName = "trustmesh.json"

// Web3StorageBackend uploads content through the Web3.Storage HTTP API.
// It is the free-tier backend of the dApp.
type Web3StorageBackend struct {
	endpoint string
	token    string
	client   *http.Client
	log      *slog.Logger
}

// NewWeb3StorageBackend creates a Web3.Storage backend. With an empty token
// uploads fail with ErrMissingCredentials; the factory refuses to build one.
func NewWeb3StorageBackend(endpoint, token string, client *http.Client, log *slog.Logger) *Web3StorageBackend {
	if endpoint == "" {
		endpoint = DefaultWeb3StorageEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Web3StorageBackend{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
		client:   client,
		log:      log,
	}
}

type web3UploadResponse struct {
	CID string `json:"cid"`
}

// Put uploads the blob as a single unwrapped file. JSON payloads are
// re-indented with two spaces before upload.
func (b *Web3StorageBackend) Put(ctx context.Context, blob interfaces.ContentBlob) (interfaces.ContentIdentifier, error) {
	if b.token == "" {
		return "", fmt.Errorf("%w: WEB3STORAGE_TOKEN not set", interfaces.ErrMissingCredentials)
	}

	start := time.Now()
	data := blob.Data
	if blob.IsJSON() {
		var indented bytes.Buffer
		if err := json.Indent(&indented, blob.Data, "", "  "); err != nil {
			return "", fmt.Errorf("%w: invalid JSON: %v", interfaces.ErrPayloadRejected, err)
		}
		data = indented.Bytes()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("X-Name", web3FileName)
	if blob.MediaType != "" {
		req.Header.Set("Content-Type", blob.MediaType)
	}

	body, err := doUpload(b.client, req)
	if err != nil {
		b.log.Warn("Web3.Storage upload failed",
			"err", err,
			slog.Int("size", len(data)),
			slog.Duration("duration", time.Since(start)))
		return "", err
	}

	var resp web3UploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: could not parse upload response: %v", interfaces.ErrInvalidContentIdentifier, err)
	}

	id, err := ParseCID(resp.CID)
	if err != nil {
		return "", err
	}

	b.log.Debug("Uploaded content to Web3.Storage",
		slog.String("cid", id.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}

// Available reports whether an API token is configured. The API has no
// unauthenticated health endpoint, so reachability is only known on upload.
func (b *Web3StorageBackend) Available(ctx context.Context) bool {
	return b.token != ""
}

// Name returns a unique identifier for this storage backend.
func (b *Web3StorageBackend) Name() string {
	return "web3-storage"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *Web3StorageBackend) LocationURI() string {
	return "web3://" + strings.TrimPrefix(strings.TrimPrefix(b.endpoint, "https://"), "http://")
}
