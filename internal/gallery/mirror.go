package gallery

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/zcc135820/imagebridge/internal/config"
)

// Mirror uploads saved artifacts to an S3-compatible bucket. It is strictly
// best-effort: the local save is the source of truth.
type Mirror struct {
	client *minio.Client
	bucket string
}

// NewMirror connects to the configured object store and ensures the bucket
// exists.
func NewMirror(cfg config.ObjectStore) (*Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("gallery mirror: connect failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("gallery mirror: bucket check failed: %w", err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("gallery mirror: create bucket failed: %w", err)
		}
	}
	return &Mirror{client: client, bucket: cfg.Bucket}, nil
}

// Upload pushes one artifact. Errors are logged and swallowed.
func (m *Mirror) Upload(objectName string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	_, err := m.client.PutObject(ctx, m.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		log.Warnf("gallery mirror: upload %s failed: %v", objectName, err)
		return
	}
	log.Debugf("gallery mirror: uploaded %s", objectName)
}
