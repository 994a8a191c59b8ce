package docroot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lyhellcat/TinyWebServer/internal/logger"
	"github.com/lyhellcat/TinyWebServer/pkg/metrics"
)

// S3API is the subset of *s3.Client a Syncer needs.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SyncStats summarizes one Sync run.
type SyncStats struct {
	Downloaded int
	Skipped    int
	Bytes      int64
}

// Syncer mirrors a bucket prefix into a local document root.
type Syncer struct {
	client  S3API
	bucket  string
	prefix  string
	metrics metrics.DocrootMetrics
	log     *logger.Logger
}

// NewSyncer creates a Syncer reading bucket/prefix through client.
//
// Panics if client is nil. A nil metrics collector or logger selects the
// no-op collector and the default logger.
func NewSyncer(client S3API, bucket, prefix string, m metrics.DocrootMetrics, log *logger.Logger) *Syncer {
	if client == nil {
		panic("docroot: nil S3 client")
	}
	if m == nil {
		m = metrics.NewNoopDocrootMetrics()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Syncer{client: client, bucket: bucket, prefix: prefix, metrics: m, log: log}
}

// Sync downloads every object under the prefix into root.
//
// Files are written through a temporary file and renamed into place with mode
// 0644 so they are world readable. Keys that would escape root are skipped.
// The first listing or download error aborts the run.
func (s *Syncer) Sync(ctx context.Context, root string) (SyncStats, error) {
	var stats SyncStats
	if err := Prepare(ctx, root); err != nil {
		return stats, err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		start := time.Now()
		page, err := paginator.NextPage(ctx)
		s.metrics.RecordOperation("ListObjectsV2", time.Since(start), err)
		if err != nil {
			return stats, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			path, reason, ok := localPath(root, s.prefix, key)
			if !ok {
				if reason == SkipUnsafeKey {
					s.log.Warn("Skipping object %q: path escapes document root", key)
				}
				s.metrics.RecordObjectSkipped(reason)
				stats.Skipped++
				continue
			}

			n, err := s.download(ctx, key, path)
			if err != nil {
				return stats, err
			}
			stats.Downloaded++
			stats.Bytes += n
		}
	}

	s.log.Info("Document root synced from s3://%s/%s: %d file(s), %d byte(s), %d skipped",
		s.bucket, s.prefix, stats.Downloaded, stats.Bytes, stats.Skipped)
	return stats, nil
}

func (s *Syncer) download(ctx context.Context, key, path string) (int64, error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.metrics.RecordOperation("GetObject", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".sync-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	n, err := io.Copy(tmp, out.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to download %q: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to move %q into place: %w", key, err)
	}

	s.metrics.RecordBytesDownloaded(n)
	s.log.Debug("Synced %q -> %s (%d bytes)", key, path, n)
	return n, nil
}
