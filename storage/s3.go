package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// s3CIDMetadataKey is the object metadata key S3-compatible IPFS gateways
// (for example Filebase) use to report the CID they pinned.
const s3CIDMetadataKey = "Cid"

// S3Backend implements a storage backend on an S3-compatible IPFS pinning gateway.
// Objects are keyed by the locally computed CIDv1; the gateway's own CID is
// preferred when it reports one in the object metadata.
type S3Backend struct {
	client      s3iface.S3API
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates a new S3 storage backend. Uploads require credentials;
// without them every Put fails with ErrMissingCredentials.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: s3 backend %s requires an access key and secret", interfaces.ErrMissingCredentials, bucketName)
	}

	cfg := aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return newS3BackendWithClient(s3.New(sess), bucketName, prefix, uri, log), nil
}

func newS3BackendWithClient(client s3iface.S3API, bucketName, prefix, uri string, log *slog.Logger) *S3Backend {
	return &S3Backend{
		client:      client,
		bucketName:  bucketName,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
	}
}

// Put uploads the object and returns the CID reported by the gateway, falling
// back to the locally computed CIDv1.
func (b *S3Backend) Put(ctx context.Context, blob interfaces.ContentBlob) (interfaces.ContentIdentifier, error) {
	start := time.Now()

	id, err := ComputeCID(blob.Data)
	if err != nil {
		return "", err
	}
	key := b.objectKey(id)

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(blob.Data),
	}
	if blob.MediaType != "" {
		input.ContentType = aws.String(blob.MediaType)
	}

	if _, err := b.client.PutObjectWithContext(ctx, input); err != nil {
		b.log.Error("Failed to upload object to S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return "", classifyS3Error(err)
	}

	head, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		// The object is stored; the gateway CID is optional.
		b.log.Warn("Could not read object metadata, using computed CID",
			slog.String("key", key),
			"err", err)
		return id, nil
	}

	if gatewayCID := aws.StringValue(head.Metadata[s3CIDMetadataKey]); gatewayCID != "" {
		parsed, err := ParseCID(gatewayCID)
		if err != nil {
			return "", err
		}
		id = parsed
	}

	b.log.Debug("Stored content in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.String("cid", id.String()),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}

// Available checks if the S3 backend is accessible by attempting to head the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) objectKey(id interfaces.ContentIdentifier) string {
	if b.prefix == "" {
		return id.String()
	}
	return path.Join(b.prefix, id.String())
}

func classifyS3Error(err error) error {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %v", statusKind(reqErr.StatusCode()), err)
	}
	return fmt.Errorf("%w: failed to upload object to S3: %v", interfaces.ErrBackendUnavailable, err)
}
