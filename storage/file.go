package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/trustmesh-backend/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Content is stored under its CIDv1, which makes writes idempotent.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Put writes the blob to <baseDir>/<cid> and returns the CID.
func (b *FileBackend) Put(ctx context.Context, blob interfaces.ContentBlob) (interfaces.ContentIdentifier, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := ComputeCID(blob.Data)
	if err != nil {
		return "", err
	}

	filePath := b.filePath(id)

	// Write to a temporary file first so readers never observe partial content.
	tmp, err := os.CreateTemp(b.baseDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create file: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: failed to write file: %v", interfaces.ErrBackendUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to write file: %v", interfaces.ErrBackendUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", fmt.Errorf("%w: failed to move file: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.String("cid", id.String()))

	return id, nil
}

// Fetch reads previously stored content back. Used by tests and tooling.
func (b *FileBackend) Fetch(id interfaces.ContentIdentifier) ([]byte, error) {
	return os.ReadFile(b.filePath(id))
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) filePath(id interfaces.ContentIdentifier) string {
	return filepath.Join(b.baseDir, id.String())
}
