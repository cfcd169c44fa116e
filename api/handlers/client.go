package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ruteri/trustmesh-backend/api"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// APIError is a non-2xx answer of the backend.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

// Is lets 404 answers match interfaces.ErrRecordNotFound.
func (e *APIError) Is(target error) bool {
	return target == interfaces.ErrRecordNotFound && e.Kind == interfaces.KindNotFound
}

// Client calls the registration backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a client for the backend at baseURL
// (e.g. "http://localhost:4000"). A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithToken sets the bearer token sent with every request.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// Upload stores metadata on backend without anchoring it.
func (c *Client) Upload(ctx context.Context, backend interfaces.BackendSelector, metadata []byte) (interfaces.ContentIdentifier, error) {
	var resp api.UploadResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/upload-ipfs/%s", backend), metadata, &resp); err != nil {
		return "", err
	}
	return resp.IpfsHash, nil
}

// Publish uploads metadata and anchors it for owner.
func (c *Client) Publish(ctx context.Context, owner interfaces.Identity, backend interfaces.BackendSelector, metadata []byte) (interfaces.Record, error) {
	var record api.RecordResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/publish/%s/%s", owner.String(), backend), metadata, &record)
	return record, err
}

// Record reads the record of owner.
func (c *Client) Record(ctx context.Context, owner interfaces.Identity) (interfaces.Record, error) {
	var record api.RecordResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/record/%s", owner.String()), nil, &record)
	return record, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", interfaces.MediaTypeJSON)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Kind != "" {
			apiErr.Kind = errResp.Kind
			apiErr.Message = errResp.Error
		} else {
			apiErr.Kind = interfaces.KindInternal
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}
