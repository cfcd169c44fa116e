package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/trustmesh-backend/interfaces"
)

// FactoryCredentials carries the secrets backends need. Web3.Storage and
// Pinata credentials are only ever taken from here, never from a URI.
type FactoryCredentials struct {
	Web3StorageToken string
	PinataJWT        string
	VaultToken       string
	S3AccessKey      string
	S3SecretKey      string
}

// StorageBackendFactory creates storage backends from URI strings and
// assembles the selector map a ContentStore is built from.
type StorageBackendFactory struct {
	log         *slog.Logger
	creds       FactoryCredentials
	httpClient  *http.Client
	ipfsTimeout time.Duration
}

var _ interfaces.StorageBackendFactory = (*StorageBackendFactory)(nil)

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger, creds FactoryCredentials, httpClient *http.Client) *StorageBackendFactory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &StorageBackendFactory{
		log:         logger,
		creds:       creds,
		httpClient:  httpClient,
		ipfsTimeout: 30 * time.Second,
	}
}

// StorageBackendFor creates a storage backend from a location URI and returns
// the selector it is served under.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - web3:// - Web3.Storage upload API
//   - pinata:// - Pinata pinning API
//   - ipfs:// - Kubo node API
//   - s3:// - S3-compatible IPFS pinning gateway
//   - file:// - Local filesystem storage
//   - vault:// - HashiCorp Vault KV v2
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *StorageBackendFactory) StorageBackendFor(locationURI string) (interfaces.BackendSelector, interfaces.StorageBackend, error) {
	u, err := url.Parse(strings.TrimSpace(locationURI))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	selector, err := interfaces.ParseBackendSelector(strings.ToLower(u.Scheme))
	if err != nil {
		return "", nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}

	var backend interfaces.StorageBackend
	switch selector {
	case interfaces.Web3Backend:
		backend, err = sf.createWeb3StorageBackend(u)
	case interfaces.PinataBackend:
		backend, err = sf.createPinataBackend(u)
	case interfaces.IPFSBackend:
		backend, err = sf.createIPFSBackend(u)
	case interfaces.S3Backend:
		backend, err = sf.createS3Backend(u)
	case interfaces.FileBackend:
		backend, err = sf.createFileBackend(u)
	case interfaces.VaultBackend:
		backend, err = sf.createVaultBackend(u)
	default:
		err = fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
	if err != nil {
		return "", nil, err
	}

	return selector, backend, nil
}

// CreateBackends builds the selector map for a ContentStore.
//
// Each entry is a primary URI optionally followed by mirror URIs separated by
// '|', e.g. "ipfs://localhost:5001|file:///var/lib/trustmesh". Mirrors receive
// a best-effort copy after the primary accepted the content. Backends whose
// credentials are missing are skipped with a warning, so their selector
// reports ErrUnknownBackend at upload time.
func (sf *StorageBackendFactory) CreateBackends(entries []string) (map[interfaces.BackendSelector]interfaces.StorageBackend, error) {
	backends := make(map[interfaces.BackendSelector]interfaces.StorageBackend, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		uris := strings.Split(entry, "|")
		selector, primary, err := sf.StorageBackendFor(uris[0])
		if errors.Is(err, interfaces.ErrMissingCredentials) {
			sf.log.Warn("Skipping storage backend without credentials",
				slog.String("locationURI", uris[0]),
				"err", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, exists := backends[selector]; exists {
			return nil, fmt.Errorf("%w: backend %q configured twice", interfaces.ErrInvalidLocationURI, selector)
		}

		mirrors := make([]interfaces.StorageBackend, 0, len(uris)-1)
		for _, uri := range uris[1:] {
			_, mirror, err := sf.StorageBackendFor(uri)
			if err != nil {
				sf.log.Warn("Failed to create mirror backend",
					"err", err,
					slog.String("locationURI", uri))
				continue
			}
			mirrors = append(mirrors, mirror)
		}

		if len(mirrors) > 0 {
			backends[selector] = NewMirrorBackend(primary, mirrors, sf.log)
		} else {
			backends[selector] = primary
		}

		sf.log.Debug("Configured storage backend",
			slog.String("backend", selector.String()),
			slog.String("locationURI", backends[selector].LocationURI()))
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return backends, nil
}

// createWeb3StorageBackend creates a Web3.Storage backend.
// URI format: web3://api.web3.storage[?insecure=true]
func (sf *StorageBackendFactory) createWeb3StorageBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Web3.Storage backend", slog.String("uri", u.Redacted()))
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials are not accepted in web3 URIs", interfaces.ErrInvalidLocationURI)
	}
	if sf.creds.Web3StorageToken == "" {
		return nil, fmt.Errorf("%w: WEB3STORAGE_TOKEN not set", interfaces.ErrMissingCredentials)
	}
	return NewWeb3StorageBackend(httpEndpoint(u), sf.creds.Web3StorageToken, sf.httpClient, sf.log), nil
}

// createPinataBackend creates a Pinata backend.
// URI format: pinata://api.pinata.cloud[?insecure=true]
func (sf *StorageBackendFactory) createPinataBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Pinata backend", slog.String("uri", u.Redacted()))
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials are not accepted in pinata URIs", interfaces.ErrInvalidLocationURI)
	}
	if sf.creds.PinataJWT == "" {
		return nil, fmt.Errorf("%w: PINATA_JWT not set", interfaces.ErrMissingCredentials)
	}
	return NewPinataBackend(httpEndpoint(u), sf.creds.PinataJWT, sf.httpClient, sf.log), nil
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", u.String()))

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host in IPFS URI", interfaces.ErrInvalidLocationURI)
	}
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	timeout := sf.ipfsTimeout
	if raw := u.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q: %v", interfaces.ErrInvalidLocationURI, raw, err)
		}
		timeout = parsed
	}

	return NewIPFSBackend(host, port, timeout, sf.log)
}

// createS3Backend creates an S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-east-1&endpoint=s3.filebase.com
// Credentials in the URI take precedence over the configured ones.
func (sf *StorageBackendFactory) createS3Backend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", u.Redacted()))

	bucketName := u.Host
	if bucketName == "" {
		return nil, fmt.Errorf("%w: missing bucket in S3 URI", interfaces.ErrInvalidLocationURI)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1" // Default region
	}
	endpoint := query.Get("endpoint")

	accessKey, secretKey := sf.creds.S3AccessKey, sf.creds.S3SecretKey
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, u.String())
	}

	return NewFileBackend(path, sf.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://host:8200/mount/path[?insecure=true]
func (sf *StorageBackendFactory) createVaultBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", u.String()))

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if u.Host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected vault://host:port/mount/path", interfaces.ErrInvalidLocationURI)
	}

	return NewVaultBackend(httpEndpoint(u), parts[0], parts[1], sf.creds.VaultToken, sf.log)
}

// httpEndpoint turns a backend URI host into an HTTP(S) base URL.
// "insecure=true" selects plain HTTP, used against local nodes and test servers.
func httpEndpoint(u *url.URL) string {
	scheme := "https"
	if u.Query().Get("insecure") == "true" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
