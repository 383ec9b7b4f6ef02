package uploader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForBundle_AlreadyPresent(t *testing.T) {
	path := writeBundle(t, t.TempDir())
	assert.NoError(t, WaitForBundle(context.Background(), path, 0))
}

func TestWaitForBundle_AppearsLater(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")

	go func() {
		time.Sleep(50 * time.Millisecond)
		tmp := filepath.Join(dir, ".creds.json.tmp")
		_ = os.WriteFile(tmp, []byte("{}"), 0o600)
		_ = os.Rename(tmp, path)
	}()

	require.NoError(t, WaitForBundle(context.Background(), path, 5*time.Second))
	assert.True(t, BundleExists(path))
}

func TestWaitForBundle_Timeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	err := WaitForBundle(context.Background(), path, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrBundleMissing)
}

func TestWaitForBundle_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone", "creds.json")
	err := WaitForBundle(context.Background(), path, time.Second)
	assert.ErrorIs(t, err, ErrBundleMissing)
}

func TestWaitForBundle_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := WaitForBundle(ctx, path, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte(`{"a":1}`))
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint([]byte(`{"a":1}`)))
	assert.NotEqual(t, a, Fingerprint([]byte(`{"a":2}`)))
}
