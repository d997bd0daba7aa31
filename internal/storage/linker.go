// Package storage turns stored report references into links a patient can open.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/config"
)

// Reference errors are permanent: retrying the same reference cannot succeed.
var (
	ErrInvalidReference     = apperr.Validation("invalid_report_reference", "report reference is not valid")
	ErrStorageNotConfigured = apperr.Validation("storage_not_configured", "object storage is not configured")
)

// Presigner is the part of *minio.Client the linker needs.
type Presigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// ReportLinker resolves report references. http(s) URLs pass through;
// s3://bucket/key and bare object keys become presigned GET URLs.
type ReportLinker struct {
	presigner Presigner
	bucket    string
	ttl       time.Duration
}

func NewReportLinker(presigner Presigner, bucket string, ttl time.Duration) *ReportLinker {
	return &ReportLinker{
		presigner: presigner,
		bucket:    bucket,
		ttl:       ttl,
	}
}

// NewMinioClient returns nil when no endpoint is configured.
func NewMinioClient(cfg config.Config) (*minio.Client, error) {
	if cfg.MinioEndpoint == "" {
		return nil, nil
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

func (l *ReportLinker) Link(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}

	bucket, key, err := l.objectFor(ref)
	if err != nil {
		return "", err
	}
	if l.presigner == nil {
		return "", fmt.Errorf("%w: cannot presign %q", ErrStorageNotConfigured, ref)
	}

	params := url.Values{}
	params.Set("response-content-disposition", "inline")
	u, err := l.presigner.PresignedGetObject(ctx, bucket, key, l.ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign report %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

func (l *ReportLinker) objectFor(ref string) (bucket, key string, err error) {
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
		}
		return bucket, key, nil
	}
	if strings.Contains(ref, "://") {
		return "", "", fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidReference, ref)
	}
	return l.bucket, strings.TrimPrefix(ref, "/"), nil
}

// NewLinkerFromConfig wires the MinIO presigner when an endpoint is set.
// Without one only absolute URLs can be linked.
func NewLinkerFromConfig(cfg config.Config) (*ReportLinker, error) {
	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	var presigner Presigner
	if client != nil {
		presigner = client
	}
	return NewReportLinker(presigner, cfg.MinioBucket, cfg.ReportLinkTTL), nil
}
