// Package attachments stores opinion attachments in an S3-compatible object
// store. Keys are opaque to the rest of the system; the database only holds
// them next to a display title.
package attachments

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"agora/core/internal/util"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Service struct {
	client *minio.Client
	bucket string
	log    *zap.SugaredLogger
}

func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	s := &Service{client: client, bucket: cfg.Bucket, log: log}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return s, nil
}

// Upload streams a file into the bucket and returns its object key.
func (s *Service) Upload(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	key := util.NewID("obj") + path.Ext(filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	return key, nil
}

// Copy duplicates an object server-side and returns the new key. Opinion
// copies get their own objects so deleting an original never breaks a copy.
func (s *Service) Copy(ctx context.Context, objectKey string) (string, error) {
	key := util.NewID("obj") + path.Ext(objectKey)
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: key},
		minio.CopySrcOptions{Bucket: s.bucket, Object: objectKey},
	)
	if err != nil {
		return "", fmt.Errorf("copy object %s: %w", objectKey, err)
	}
	return key, nil
}

func (s *Service) Delete(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", objectKey, err)
	}
	return nil
}

// DownloadURL returns a presigned GET URL valid for expiry.
func (s *Service) DownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// SharedKeys is the degenerate copier used when no object store is
// configured: copies reference the original object.
type SharedKeys struct{}

func (SharedKeys) Copy(ctx context.Context, objectKey string) (string, error) {
	return objectKey, nil
}
