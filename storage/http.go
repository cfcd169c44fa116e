package storage

import (
	"fmt"
	"io"
	"net/http"

	"github.com/ruteri/trustmesh-backend/interfaces"
)

// maxErrorBody bounds how much of a provider error response is kept for messages.
const maxErrorBody = 4096

// doUpload executes an upload request against a pinning HTTP API and maps
// transport failures and status codes onto the storage sentinel errors.
// The response body is returned only for 2xx responses.
func doUpload(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read response: %v", interfaces.ErrBackendUnavailable, err)
		}
		return body, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, statusError(resp.StatusCode, body)
}

// statusError maps a provider status code onto a storage sentinel error.
func statusError(status int, body []byte) error {
	return fmt.Errorf("%w: status %d: %s", statusKind(status), status, string(body))
}

func statusKind(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return interfaces.ErrMissingCredentials
	case http.StatusRequestEntityTooLarge, http.StatusBadRequest,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return interfaces.ErrPayloadRejected
	default:
		return interfaces.ErrBackendUnavailable
	}
}
