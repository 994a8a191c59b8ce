// Package docroot prepares the directory static files are served from.
//
// A local document root only has to exist. An S3-backed one is mirrored from
// a bucket prefix into the local directory once at startup, before the HTTP
// adapter begins serving; the server itself only ever reads local files.
package docroot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Prepare ensures root exists and is a directory, creating it if needed.
func Prepare(ctx context.Context, root string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if root == "" {
		return fmt.Errorf("document root path is empty")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create document root %s: %w", root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat document root %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document root %s is not a directory", root)
	}
	return nil
}

// localPath maps an object key under prefix to a file path inside root.
//
// ok is false for keys that name a directory marker or would land outside
// root; reason then says which.
func localPath(root, prefix, key string) (path string, reason string, ok bool) {
	rel := strings.TrimPrefix(key, prefix)
	rel = strings.TrimLeft(rel, "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		return "", SkipDirectory, false
	}
	if !filepath.IsLocal(rel) {
		return "", SkipUnsafeKey, false
	}
	return filepath.Join(root, filepath.FromSlash(rel)), "", true
}

// Skip reasons reported to metrics.
const (
	SkipDirectory = "directory"
	SkipUnsafeKey = "unsafe_key"
)
