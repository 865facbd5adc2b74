// Package transport moves packed archives to and from S3-compatible object
// storage.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
	"github.com/ome/omero-cli-transfer/internal/atomicfile"
)

// Scheme prefixes package locations held in object storage.
const Scheme = "s3://"

// Config holds the bucket and endpoint settings. Credentials fall back to
// the default AWS chain when AccessKeyID is empty.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional; e.g. a MinIO URL
	Prefix          string // key prefix for uploads
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// HTTPClient replaces the SDK's transport, for tests.
	HTTPClient *http.Client
}

// S3 uploads and fetches package archives.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3 builds a client from cfg. The bucket is only required for
// uploads; fetches name their bucket in the URI.
func NewS3(ctx context.Context, cfg Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &S3{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/"), logger: logger}, nil
}

// IsRemote reports whether location names an object in storage.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, Scheme)
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %s is not an s3:// location", apperrors.ErrInvalidInput, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: %s does not name an object", apperrors.ErrInvalidInput, uri)
	}
	return bucket, key, nil
}

// Upload stores the file at local under the configured prefix and returns
// its s3:// location.
func (t *S3) Upload(ctx context.Context, local string) (string, error) {
	if t.bucket == "" {
		return "", fmt.Errorf("%w: no transport bucket configured", apperrors.ErrInvalidInput)
	}
	f, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	defer f.Close()

	key := path.Join(t.prefix, filepath.Base(local))
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(local)),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", local, err)
	}
	uri := Scheme + t.bucket + "/" + key
	t.logger.Info("package uploaded", zap.String("uri", uri))
	return uri, nil
}

// Fetch downloads the object named by uri into dir and returns the local
// path.
func (t *S3) Fetch(ctx context.Context, uri, dir string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", notFoundOr(err), uri, err)
	}
	defer out.Body.Close()

	dest := filepath.Join(dir, path.Base(key))
	if err := atomicfile.WriteFrom(dest, out.Body, 0o644); err != nil {
		return "", err
	}
	t.logger.Info("package fetched", zap.String("uri", uri), zap.String("path", dest))
	return dest, nil
}

func notFoundOr(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return apperrors.ErrNotFound
	}
	return apperrors.ErrInvalidInput
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return "application/zip"
	case ".tar":
		return "application/x-tar"
	}
	return "application/octet-stream"
}
