package uploader

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"

	"github.com/luhtaf/dupremover/internal/config"
	"github.com/luhtaf/dupremover/internal/log"
)

// Artifact is a file produced by a scan, such as the duplicates log or the
// journal database.
type Artifact struct {
	Path   string
	Kind   string // "duplicates_log" | "journal"
	ScanID string
	Root   string
	TS     time.Time
}

type Uploader struct {
	cli        *minio.Client
	bucket     string
	prefix     string
	maxRetries int
	backoffMS  int
}

func New(cfg config.S3Cfg) (*Uploader, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Uploader{cli: cli, bucket: cfg.Bucket, prefix: cfg.Prefix, maxRetries: retries, backoffMS: cfg.BackoffMS}, nil
}

func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.cli.BucketExists(ctx, u.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return u.cli.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// ObjectKey lays artifacts out as <prefix>/YYYY/MM/DD/<scan id>/<file name>.
func (u *Uploader) ObjectKey(ts time.Time, scanID, name string) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s/%s",
		u.prefix, ts.Year(), ts.Month(), ts.Day(), scanID, filepath.Base(name),
	)
}

// Upload puts one artifact and tags it. It returns the object key.
func (u *Uploader) Upload(ctx context.Context, a Artifact) (string, error) {
	key := u.ObjectKey(a.TS.UTC(), a.ScanID, a.Path)
	putOpts := minio.PutObjectOptions{
		ContentType: ContentType(a.Path),
		UserMetadata: map[string]string{
			"x-amz-meta-scan_id": a.ScanID,
			"x-amz-meta-kind":    a.Kind,
			"x-amz-meta-root":    a.Root,
			"x-amz-meta-ts":      a.TS.UTC().Format(time.RFC3339),
		},
	}
	if _, err := u.cli.FPutObject(ctx, u.bucket, key, a.Path, putOpts); err != nil {
		return "", err
	}
	t, err := tags.NewTags(map[string]string{
		"scan_id": a.ScanID,
		"kind":    a.Kind,
	}, true)
	if err != nil {
		return "", err
	}
	if err := u.cli.PutObjectTagging(ctx, u.bucket, key, t, minio.PutObjectTaggingOptions{}); err != nil {
		return "", err
	}
	return key, nil
}

// UploadWithRetry retries Upload with linear backoff.
func (u *Uploader) UploadWithRetry(ctx context.Context, a Artifact) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		start := time.Now()
		key, err := u.Upload(ctx, a)
		if err == nil {
			log.L.Infow("upload_success",
				"event", "upload_success",
				"component", log.Component,
				"key", key,
				"bucket", u.bucket,
				"kind", a.Kind,
				"scan_id", a.ScanID,
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return key, nil
		}
		lastErr = err
		if attempt == u.maxRetries {
			break
		}
		d := config.BackoffDuration(u.backoffMS, attempt)
		log.L.Warnw("upload_retry",
			"event", "upload_retry",
			"component", log.Component,
			"kind", a.Kind,
			"attempt", attempt,
			"delay", d.String(),
			"err", err,
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d):
		}
	}
	return "", fmt.Errorf("upload %s after %d attempts: %w", a.Path, u.maxRetries, lastErr)
}

// ContentType guesses a MIME type from the file extension.
func ContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".txt", ".log":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".db", ".sqlite", ".sqlite3":
		return "application/vnd.sqlite3"
	default:
		return "application/octet-stream"
	}
}
