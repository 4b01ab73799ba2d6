// Package objectstore mirrors finished output files to an S3-compatible
// bucket.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/couchcryptid/wildfire-water-etl/internal/store"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options locate the bucket.
type Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
	// Prefix is prepended to every object key, typically the feature kind.
	Prefix string
	RunID  string
}

// Mirror implements pipeline.Mirror with minio-go.
type Mirror struct {
	client *minio.Client
	opts   Options
	logger *slog.Logger
}

// NewMirror creates the client. It does not contact the server.
func NewMirror(opts Options, logger *slog.Logger) (*Mirror, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return &Mirror{client: client, opts: opts, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.opts.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.opts.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.opts.Bucket, minio.MakeBucketOptions{Region: m.opts.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.opts.Bucket, err)
	}
	m.logger.Info("bucket created", "bucket", m.opts.Bucket)
	return nil
}

// Mirror uploads the content of one output file.
func (m *Mirror) Mirror(ctx context.Context, featureID string, content []byte) error {
	key := m.Key(featureID)
	_, err := m.client.PutObject(ctx, m.opts.Bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "text/plain",
		UserMetadata: map[string]string{
			"feature-id": featureID,
			"run-id":     m.opts.RunID,
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	m.logger.Debug("output mirrored", "feature_id", featureID, "bucket", m.opts.Bucket, "key", key)
	return nil
}

// Key is the object key of a feature's output file.
func (m *Mirror) Key(featureID string) string {
	return path.Join(m.opts.Prefix, featureID+store.OutputExt)
}
