package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/trustmesh-backend/interfaces"
)

// MirrorBackend implements interfaces.StorageBackend over a primary backend
// with best-effort replication to mirrors. Only the primary decides success
// and only its identifier is returned.
type MirrorBackend struct {
	primary interfaces.StorageBackend
	mirrors []interfaces.StorageBackend
	log     *slog.Logger
}

// NewMirrorBackend creates a new mirroring backend.
func NewMirrorBackend(primary interfaces.StorageBackend, mirrors []interfaces.StorageBackend, logger *slog.Logger) *MirrorBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MirrorBackend{
		primary: primary,
		mirrors: mirrors,
		log:     logger,
	}
}

// Put stores the blob on the primary, then copies it to every available mirror.
func (m *MirrorBackend) Put(ctx context.Context, blob interfaces.ContentBlob) (interfaces.ContentIdentifier, error) {
	start := time.Now()

	id, err := m.primary.Put(ctx, blob)
	if err != nil {
		return "", err
	}

	for _, mirror := range m.mirrors {
		if ctx.Err() != nil {
			break
		}
		if !mirror.Available(ctx) {
			m.log.Debug("Mirror unavailable", slog.String("backend_name", mirror.Name()))
			continue
		}

		mirrorID, err := mirror.Put(ctx, blob)
		if err != nil {
			m.log.Warn("Failed to replicate to mirror",
				slog.String("backend_name", mirror.Name()),
				slog.String("cid", id.String()),
				"err", err)
			continue
		}
		if mirrorID != id {
			// Gateways may pick different CID versions or chunking for the same bytes.
			m.log.Warn("Inconsistent identifiers from mirror",
				slog.String("backend_name", mirror.Name()),
				slog.String("expected_cid", id.String()),
				slog.String("actual_cid", mirrorID.String()))
		}
	}

	m.log.Debug("Stored content with mirrors",
		slog.String("backend_name", m.primary.Name()),
		slog.String("cid", id.String()),
		slog.Int("mirrors", len(m.mirrors)),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}

// Available reports the primary's availability.
func (m *MirrorBackend) Available(ctx context.Context) bool {
	return m.primary.Available(ctx)
}

// Name returns the name of this backend
func (m *MirrorBackend) Name() string {
	return fmt.Sprintf("mirror-%s", m.primary.Name())
}

// LocationURI joins the primary and mirror URIs the way they are configured.
func (m *MirrorBackend) LocationURI() string {
	locations := []string{m.primary.LocationURI()}
	for _, backend := range m.mirrors {
		locations = append(locations, backend.LocationURI())
	}
	return strings.Join(locations, "|")
}
