package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ruteri/trustmesh-backend/interfaces"
	"github.com/ruteri/trustmesh-backend/metrics"
)

// ContentStore routes uploads to the backend the caller selected.
// It never retries; every failure is returned as *interfaces.UploadError.
type ContentStore struct {
	backends       map[interfaces.BackendSelector]interfaces.StorageBackend
	uploadTimeout  time.Duration
	maxPayloadSize int
	log            *slog.Logger
}

// ContentStoreOpts configures a ContentStore.
type ContentStoreOpts struct {
	// UploadTimeout bounds a single backend upload. Zero means no bound
	// beyond the caller's context.
	UploadTimeout time.Duration

	// MaxPayloadSize rejects larger blobs before contacting a backend.
	// Zero disables the check.
	MaxPayloadSize int
}

// NewContentStore creates a content store over the given backends.
func NewContentStore(backends map[interfaces.BackendSelector]interfaces.StorageBackend, opts ContentStoreOpts, log *slog.Logger) *ContentStore {
	if log == nil {
		log = slog.Default()
	}
	s := &ContentStore{
		backends:       make(map[interfaces.BackendSelector]interfaces.StorageBackend, len(backends)),
		uploadTimeout:  opts.UploadTimeout,
		maxPayloadSize: opts.MaxPayloadSize,
		log:            log,
	}
	for sel, backend := range backends {
		s.backends[sel] = backend
	}
	return s
}

// Backends returns the configured selectors in sorted order.
func (s *ContentStore) Backends() []interfaces.BackendSelector {
	selectors := make([]interfaces.BackendSelector, 0, len(s.backends))
	for sel := range s.backends {
		selectors = append(selectors, sel)
	}
	slices.Sort(selectors)
	return selectors
}

// Put uploads blob to the selected backend and returns its content identifier.
func (s *ContentStore) Put(ctx context.Context, blob interfaces.ContentBlob, backend interfaces.BackendSelector) (interfaces.ContentIdentifier, error) {
	impl, ok := s.backends[backend]
	if !ok {
		return "", &interfaces.UploadError{
			Backend: backend,
			Err:     fmt.Errorf("%w: %q is not configured", interfaces.ErrUnknownBackend, backend),
		}
	}

	if len(blob.Data) == 0 {
		return "", &interfaces.UploadError{
			Backend: backend,
			Err:     fmt.Errorf("%w: empty payload", interfaces.ErrPayloadRejected),
		}
	}
	if s.maxPayloadSize > 0 && len(blob.Data) > s.maxPayloadSize {
		return "", &interfaces.UploadError{
			Backend: backend,
			Err:     fmt.Errorf("%w: payload of %d bytes exceeds limit of %d", interfaces.ErrPayloadRejected, len(blob.Data), s.maxPayloadSize),
		}
	}

	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	start := time.Now()
	id, err := impl.Put(ctx, blob)
	metrics.ObserveUpload(backend.String(), err == nil, time.Since(start))
	if err != nil {
		s.log.Warn("Upload failed",
			slog.String("backend", backend.String()),
			slog.String("backend_name", impl.Name()),
			"err", err)
		return "", &interfaces.UploadError{Backend: backend, Err: err}
	}

	s.log.Info("Uploaded content",
		slog.String("backend", backend.String()),
		slog.String("cid", id.String()),
		slog.Int("size", len(blob.Data)),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}
