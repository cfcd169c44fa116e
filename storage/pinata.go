package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/trustmesh-backend/interfaces"
)

// DefaultPinataEndpoint is the public Pinata pinning API.
const DefaultPinataEndpoint = "https://api.pinata.cloud"

// PinataBackend pins content through the Pinata pinning API using a JWT.
type PinataBackend struct {
	endpoint string
	jwt      string
	client   *http.Client
	log      *slog.Logger
}

// NewPinataBackend creates a Pinata backend. With an empty JWT uploads fail
// with ErrMissingCredentials; the factory refuses to build one.
func NewPinataBackend(endpoint, jwt string, client *http.Client, log *slog.Logger) *PinataBackend {
	if endpoint == "" {
		endpoint = DefaultPinataEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &PinataBackend{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		jwt:      jwt,
		client:   client,
		log:      log,
	}
}

type pinataMetadata struct {
	Name string `json:"name"`
}

type pinJSONRequest struct {
	PinataContent  json.RawMessage `json:"pinataContent"`
	PinataMetadata pinataMetadata  `json:"pinataMetadata"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Put pins JSON payloads with pinJSONToIPFS and everything else with pinFileToIPFS.
func (b *PinataBackend) Put(ctx context.Context, blob interfaces.ContentBlob) (interfaces.ContentIdentifier, error) {
	if b.jwt == "" {
		return "", fmt.Errorf("%w: PINATA_JWT not set", interfaces.ErrMissingCredentials)
	}

	start := time.Now()
	var (
		req *http.Request
		err error
	)
	if blob.IsJSON() {
		req, err = b.jsonRequest(ctx, blob)
	} else {
		req, err = b.fileRequest(ctx, blob)
	}
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+b.jwt)

	body, err := doUpload(b.client, req)
	if err != nil {
		b.log.Warn("Pinata upload failed",
			"err", err,
			slog.Int("size", len(blob.Data)),
			slog.Duration("duration", time.Since(start)))
		return "", err
	}

	var resp pinResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: could not parse pin response: %v", interfaces.ErrInvalidContentIdentifier, err)
	}

	id, err := ParseCID(resp.IpfsHash)
	if err != nil {
		return "", err
	}

	b.log.Debug("Pinned content on Pinata",
		slog.String("cid", id.String()),
		slog.Int64("pinSize", resp.PinSize),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}

func (b *PinataBackend) jsonRequest(ctx context.Context, blob interfaces.ContentBlob) (*http.Request, error) {
	if !json.Valid(blob.Data) {
		return nil, fmt.Errorf("%w: invalid JSON", interfaces.ErrPayloadRejected)
	}

	payload, err := json.Marshal(pinJSONRequest{
		PinataContent:  json.RawMessage(blob.Data),
		PinataMetadata: pinataMetadata{Name: web3FileName},
	})
	if err != nil {
		return nil, fmt.Errorf("could not encode pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/pinning/pinJSONToIPFS", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", interfaces.MediaTypeJSON)
	return req, nil
}

func (b *PinataBackend) fileRequest(ctx context.Context, blob interfaces.ContentBlob) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "trustmesh")
	if err != nil {
		return nil, fmt.Errorf("could not create multipart file: %w", err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return nil, fmt.Errorf("could not write multipart file: %w", err)
	}

	meta, _ := json.Marshal(pinataMetadata{Name: "trustmesh"})
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, fmt.Errorf("could not write pin metadata: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/pinning/pinFileToIPFS", &buf)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// Available reports whether a JWT is configured.
func (b *PinataBackend) Available(ctx context.Context) bool {
	return b.jwt != ""
}

// Name returns a unique identifier for this storage backend.
func (b *PinataBackend) Name() string {
	return "pinata"
}

// LocationURI returns the URI that identifies this storage backend.
func (b *PinataBackend) LocationURI() string {
	return "pinata://" + strings.TrimPrefix(strings.TrimPrefix(b.endpoint, "https://"), "http://")
}
