package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Archiver copies a run's workbooks somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, runID, localPath string) (string, error)
}

// NopArchiver is used when archiving is disabled.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string, string) (string, error) { return "", nil }

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	// Region skips the bucket location lookup when set.
	Region string
	UseSSL bool
}

type MinIOArchiver struct {
	client *minio.Client
	bucket string
	prefix string

	mu    sync.Mutex
	ready bool
}

func NewMinIOArchiver(cfg MinIOConfig) (*MinIOArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &MinIOArchiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Archive uploads localPath as <prefix>/<runID>/<base name>, creating the
// bucket on first use.
func (a *MinIOArchiver) Archive(ctx context.Context, runID, localPath string) (string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	object := ObjectName(a.prefix, runID, localPath)
	_, err = a.client.PutObject(ctx, a.bucket, object, file, stat.Size(), minio.PutObjectOptions{
		ContentType:  contentType(localPath),
		UserMetadata: map[string]string{"run-id": runID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", object, err)
	}
	return object, nil
}

func (a *MinIOArchiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil && !bucketOwned(err) {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	a.ready = true
	return nil
}

// bucketOwned reports a MakeBucket error meaning the bucket is already ours,
// e.g. created by another process since BucketExists.
func bucketOwned(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return true
	}
	return false
}

// ObjectName is the key a local file is archived under.
func ObjectName(prefix, runID, localPath string) string {
	return path.Join(prefix, runID, filepath.Base(localPath))
}

func contentType(p string) string {
	ext := filepath.Ext(p)
	if ext == ".xlsx" {
		return xlsxContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
