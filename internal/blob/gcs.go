package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const (
	maxUploadRetries = 4
	uploadTimeout    = 50 * time.Second
)

// GCS keeps documents as objects in a Cloud Storage bucket.
type GCS struct {
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// NewGCS returns a store over bucket. prefix is prepended to every object
// name, which keeps session documents apart from the upload drop area.
func NewGCS(client *storage.Client, bucket, prefix string) (*GCS, error) {
	if client == nil || bucket == "" {
		return nil, fmt.Errorf("blob: storage client and bucket must be set")
	}
	return &GCS{bucket: client.Bucket(bucket), name: bucket, prefix: prefix}, nil
}

func (g *GCS) object(name string) string {
	return g.prefix + name
}

// Put uploads r, replacing any existing object. Transient failures are
// retried with exponential backoff when r can be rewound.
func (g *GCS) Put(ctx context.Context, name string, r io.Reader) error {
	objectName := g.object(name)
	seeker, rewindable := r.(io.Seeker)

	backoff := 1 * time.Second
	var lastErr error
	for i := 0; i < maxUploadRetries; i++ {
		if i > 0 {
			if !rewindable {
				break
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("blob: failed to rewind %s for retry: %w", objectName, err)
			}
		}

		err := g.upload(ctx, objectName, r)
		if err == nil {
			return nil
		}
		lastErr = err
		if !rewindable || !retryable(err) {
			break
		}
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", objectName,
			"attempt", i+1,
			"maxRetries", maxUploadRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", objectName, "error", ctx.Err())
			return ctx.Err()
		}
	}
	return fmt.Errorf("blob: upload of %s failed: %w", objectName, lastErr)
}

func (g *GCS) upload(ctx context.Context, objectName string, r io.Reader) error {
	writeCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	writer := g.bucket.Object(objectName).NewWriter(writeCtx)
	writer.ContentType = "application/pdf"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

// retryable reports whether a failed upload may succeed on another attempt.
// Client errors other than rate limiting are final.
func retryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	return true
}

func (g *GCS) Fetch(ctx context.Context, name, dest string) error {
	rc, err := g.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	localFile, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", dest, err)
	}
	if _, err := io.Copy(localFile, rc); err != nil {
		_ = localFile.Close()
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return localFile.Close()
}

func (g *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	objectName := g.object(name)
	reader, err := g.bucket.Object(objectName).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotExist, g.name, objectName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", g.name, objectName, err)
	}
	return reader, nil
}
