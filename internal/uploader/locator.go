package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/parnexcodes/pairlink/internal/logging"
)

// Fingerprint returns a short digest of bundle contents for logs and the ledger
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// BundleExists reports whether a regular file is present at path
func BundleExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// WaitForBundle blocks until a file appears at path, timeout elapses or ctx
// is done. The parent directory must already exist.
func WaitForBundle(ctx context.Context, path string, timeout time.Duration) error {
	if BundleExists(path) {
		return nil
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrBundleMissing, path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBundleMissing, path)
		}
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	// The bundle may have landed between the first check and Add
	if BundleExists(path) {
		return nil
	}

	logging.Debug("Waiting for credential bundle", map[string]interface{}{
		"path":    path,
		"timeout": timeout.String(),
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return fmt.Errorf("%w: %s (waited %s)", ErrBundleMissing, path, timeout)

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("%w: %s", ErrBundleMissing, path)
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 && BundleExists(path) {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("%w: %s", ErrBundleMissing, path)
			}
			logging.ErrorContext("bundle_watch", err, map[string]interface{}{
				"path": path,
			})
		}
	}
}
