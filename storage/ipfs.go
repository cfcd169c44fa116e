package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ipfs/boxo/files"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// IPFSBackend implements a storage backend on top of a Kubo (go-ipfs) node API.
// Content is added with CIDv1 and pinned on the node.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the specified host and port.
// The timeout bounds every request made to the node, in addition to the caller's context.
func NewIPFSBackend(host, port string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
	}, nil
}

type ipfsAddResult struct {
	Name string
	Hash string
	Size string
}

// Put adds the blob to the node and returns the CID the node assigned.
// Returns ErrBackendUnavailable if the node is not accessible.
func (b *IPFSBackend) Put(ctx context.Context, blob interfaces.ContentBlob) (interfaces.ContentIdentifier, error) {
	start := time.Now()

	// Same body layout as shell.Add, but executed with the caller's context.
	fr := files.NewReaderFile(bytes.NewReader(blob.Data))
	dir := files.NewSliceDirectory([]files.DirEntry{files.FileEntry("", fr)})
	body := files.NewMultiFileReader(dir, true, false)

	var out ipfsAddResult
	err := b.shell.Request("add").
		Option("cid-version", 1).
		Option("pin", true).
		Body(body).
		Exec(ctx, &out)
	if err != nil {
		b.log.Error("Failed to add data to IPFS",
			slog.String("host", b.host),
			slog.String("port", b.port),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("%w: failed to add data to IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}

	id, err := ParseCID(out.Hash)
	if err != nil {
		return "", err
	}

	b.log.Debug("Stored content in IPFS",
		slog.String("cid", id.String()),
		slog.Int("size", len(blob.Data)),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}

// Available checks if the IPFS node answers its version endpoint.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	var out struct{ Version string }
	if err := b.shell.Request("version").Exec(ctx, &out); err != nil {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port),
			"err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}
