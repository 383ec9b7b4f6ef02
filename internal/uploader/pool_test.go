package uploader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parnexcodes/pairlink/internal/providers"
)

func TestExporter_ExportsEveryBundle(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"session-1", "session-2", "session-3"} {
		dir := filepath.Join(root, id)
		require.NoError(t, os.MkdirAll(dir, 0o700))
		writeBundle(t, dir)
	}
	// not a bundle
	require.NoError(t, os.WriteFile(filepath.Join(root, "session-1", "app-state.json"), []byte("{}"), 0o600))

	ok := &fakeProvider{name: "ok", url: "https://ok.example/x"}
	chain := NewChain([]providers.Provider{ok}, ChainOptions{})

	results, err := NewExporter("creds.json").Export(context.Background(), []string{root}, ExportConfig{
		Concurrency: 2,
		Chain:       chain,
	})
	require.NoError(t, err)

	var paths []string
	for r := range results {
		require.NoError(t, r.Error)
		assert.Equal(t, "ok", r.Provider)
		paths = append(paths, r.FilePath)
	}
	sort.Strings(paths)

	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(root, "session-1", "creds.json"), paths[0])
	assert.Equal(t, int32(3), ok.calls.Load())
}

func TestExporter_ReportsFailures(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root)

	bad := &fakeProvider{name: "bad", err: providers.NewRejectedError("403", "forbidden", nil)}
	chain := NewChain([]providers.Provider{bad}, ChainOptions{})

	results, err := NewExporter("creds.json").Export(context.Background(), []string{root}, ExportConfig{Chain: chain})
	require.NoError(t, err)

	var got []UploadResult
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	assert.Error(t, got[0].Error)
	require.Len(t, got[0].Attempts, 1)
	assert.Equal(t, "bad", got[0].Attempts[0].Provider)
}

func TestExporter_ScanError(t *testing.T) {
	chain := NewChain([]providers.Provider{&fakeProvider{name: "ok", url: "https://ok.example"}}, ChainOptions{})

	results, err := NewExporter("creds.json").Export(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, ExportConfig{Chain: chain})
	require.NoError(t, err)

	var errs int
	for r := range results {
		if r.Error != nil {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestExporter_RequiresChain(t *testing.T) {
	_, err := NewExporter("creds.json").Export(context.Background(), nil, ExportConfig{})
	assert.Error(t, err)
}
