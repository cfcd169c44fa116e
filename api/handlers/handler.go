package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/trustmesh-backend/api"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// Handler processes HTTP requests for uploads, publishes and record lookups.
type Handler struct {
	publisher   api.Publisher
	records     api.RecordLookup
	maxBodySize int64
	publishKey  string
	log         *slog.Logger
}

// NewHandler creates a new HTTP request handler.
//
// Parameters:
//   - publisher: uploads content and anchors it on the ledger
//   - records: serves record lookups
//   - log: structured logger
func NewHandler(publisher api.Publisher, records api.RecordLookup, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		publisher:   publisher,
		records:     records,
		maxBodySize: api.MaxRequestBodySize,
		log:         log,
	}
}

// RequirePublishToken makes POST /publish answer 401 unless the request
// carries "Authorization: Bearer <token>". An empty token leaves the route open.
func (h *Handler) RequirePublishToken(token string) *Handler {
	h.publishKey = token
	return h
}

// RegisterRoutes configures the router with the backend endpoints:
//   - POST /upload-ipfs/{backend}
//   - POST /publish/{address}/{backend}
//   - GET /record/{address}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload-ipfs/{backend}", h.HandleUpload)
	r.Post("/publish/{address}/{backend}", h.HandlePublish)
	r.Get("/record/{address}", h.HandleRecord)
}

// HandleUpload stores the JSON body on the selected backend.
//
// URL format: POST /upload-ipfs/{backend}
//
// Response: JSON-encoded api.UploadResponse
//
// Status codes:
//   - 200 OK: content stored
//   - 400 Bad Request: invalid JSON or unknown backend
//   - 413 Request Entity Too Large: body over 1 MiB
//   - 500 Internal Server Error: the backend failed
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	backend, err := interfaces.ParseBackendSelector(r.PathValue("backend"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, interfaces.KindBadRequest, err)
		return
	}

	blob, ok := h.readJSONBody(w, r)
	if !ok {
		return
	}

	cid, err := h.publisher.Upload(r.Context(), blob, backend)
	if err != nil {
		h.log.Error("Upload failed", "err", err, slog.String("backend", backend.String()))
		h.writeWorkflowError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.UploadResponse{IpfsHash: cid})
}

// HandlePublish uploads the JSON body and anchors it for the address.
//
// URL format: POST /publish/{address}/{backend}
//
// Response: JSON-encoded api.RecordResponse as read back from the ledger
//
// The server signs as whichever identity it holds a key for, so the route is
// meant for trusted operators. Deployments reachable by others must set a
// publish token, see RequirePublishToken.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if !h.authorizedToPublish(r) {
		h.writeError(w, http.StatusUnauthorized, interfaces.KindUnauthorized, errors.New("missing or invalid publish token"))
		return
	}

	owner, err := interfaces.NewIdentityFromHex(r.PathValue("address"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, interfaces.KindBadRequest, err)
		return
	}
	backend, err := interfaces.ParseBackendSelector(r.PathValue("backend"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, interfaces.KindBadRequest, err)
		return
	}

	blob, ok := h.readJSONBody(w, r)
	if !ok {
		return
	}

	record, err := h.publisher.Publish(r.Context(), owner, blob, backend)
	if err != nil {
		h.log.Error("Publish failed", "err", err,
			slog.String("owner", owner.String()),
			slog.String("backend", backend.String()))
		h.writeWorkflowError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.RecordResponse(record))
}

// HandleRecord returns the record anchored for the address.
//
// URL format: GET /record/{address}
//
// Status codes:
//   - 200 OK: record found
//   - 400 Bad Request: invalid address
//   - 404 Not Found: no record for the address
//   - 503 Service Unavailable: the ledger could not be reached
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	owner, err := interfaces.NewIdentityFromHex(r.PathValue("address"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, interfaces.KindBadRequest, err)
		return
	}

	record, err := h.records.Lookup(r.Context(), owner)
	if err != nil {
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			h.log.Error("Record lookup failed", "err", err, slog.String("owner", owner.String()))
		}
		h.writeWorkflowError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.RecordResponse(record))
}

func (h *Handler) authorizedToPublish(r *http.Request) bool {
	if h.publishKey == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(h.publishKey)) == 1
}

// readJSONBody reads a bounded body and checks it is a JSON document.
// It writes the error response itself and reports false on failure.
func (h *Handler) readJSONBody(w http.ResponseWriter, r *http.Request) (interfaces.ContentBlob, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, interfaces.KindBadRequest, err)
			return interfaces.ContentBlob{}, false
		}
		h.writeError(w, http.StatusBadRequest, interfaces.KindBadRequest, err)
		return interfaces.ContentBlob{}, false
	}

	if len(body) == 0 || !json.Valid(body) {
		h.writeError(w, http.StatusBadRequest, interfaces.KindBadRequest, errors.New("request body is not valid JSON"))
		return interfaces.ContentBlob{}, false
	}

	return interfaces.ContentBlob{Data: body, MediaType: interfaces.MediaTypeJSON}, true
}

func (h *Handler) writeWorkflowError(w http.ResponseWriter, err error) {
	kind := interfaces.ErrorKind(err)
	h.writeError(w, StatusForError(err), kind, err)
}

// StatusForError maps a workflow error onto an HTTP status code.
func StatusForError(err error) int {
	switch interfaces.ErrorKind(err) {
	case interfaces.KindUpload:
		if errors.Is(err, interfaces.ErrUnknownBackend) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case interfaces.KindNotFound:
		return http.StatusNotFound
	case interfaces.KindLedgerRejected:
		return http.StatusUnprocessableEntity
	case interfaces.KindLedgerUnavailable:
		return http.StatusServiceUnavailable
	case interfaces.KindReceiptTimeout, interfaces.KindAnchorAmbiguous:
		return http.StatusGatewayTimeout
	case interfaces.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, kind string, err error) {
	h.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: kind})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
