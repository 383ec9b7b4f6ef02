package uploader

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/metrics"
	"github.com/parnexcodes/pairlink/internal/providers"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Options{Level: "error", Output: os.Stderr})
	os.Exit(m.Run())
}

type fakeProvider struct {
	name  string
	url   string
	err   error
	calls atomic.Int32

	mu   sync.Mutex
	body []byte
}

func (f *fakeProvider) Name() string          { return f.name }
func (f *fakeProvider) GetMaxFileSize() int64 { return 0 }

func (f *fakeProvider) Upload(ctx context.Context, filePath string, file io.Reader, size int64) (*providers.ProviderResponse, error) {
	f.calls.Add(1)
	data, _ := io.ReadAll(file)
	f.mu.Lock()
	f.body = data
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ProviderResponse{URL: f.url}, nil
}

func writeBundle(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"me":{"id":"1"}}`), 0o600))
	return path
}

func TestChain_StopsAtFirstSuccess(t *testing.T) {
	a := &fakeProvider{name: "a", err: providers.NewNetworkError("dial tcp: refused", nil)}
	b := &fakeProvider{name: "b", url: "https://b.example/1"}
	c := &fakeProvider{name: "c", url: "https://c.example/1"}

	chain := NewChain([]providers.Provider{a, b, c}, ChainOptions{})
	path := writeBundle(t, t.TempDir())

	result, err := chain.UploadCredentials(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://b.example/1", result.URL)
	assert.Equal(t, "b", result.Provider)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int32(0), c.calls.Load())
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "a", result.Attempts[0].Provider)
	assert.Error(t, result.Attempts[0].Err)
	assert.NoError(t, result.Attempts[1].Err)
	assert.Equal(t, Fingerprint([]byte(`{"me":{"id":"1"}}`)), result.Digest)

	// every provider sees the full bundle, even after an earlier one consumed its reader
	assert.Equal(t, `{"me":{"id":"1"}}`, string(b.body))
}

func TestChain_AllProvidersFailed(t *testing.T) {
	errA := providers.NewNetworkError("timeout", nil)
	errB := providers.NewRejectedError("500", "API returned status 500", nil)
	a := &fakeProvider{name: "a", err: errA}
	b := &fakeProvider{name: "b", err: errB}

	chain := NewChain([]providers.Provider{a, b}, ChainOptions{})
	path := writeBundle(t, t.TempDir())

	_, err := chain.UploadCredentials(context.Background(), path)
	require.Error(t, err)

	var allFailed *AllProvidersFailedError
	require.True(t, errors.As(err, &allFailed))
	require.Len(t, allFailed.Attempts, 2)
	assert.Equal(t, "a", allFailed.Attempts[0].Provider)
	assert.Equal(t, "b", allFailed.Attempts[1].Provider)
	assert.Same(t, errA, allFailed.Attempts[0].Err)
	assert.Same(t, errB, allFailed.Attempts[1].Err)

	assert.Contains(t, err.Error(), "a: timeout")
	assert.Contains(t, err.Error(), "b: API returned status 500")
	assert.ErrorIs(t, err, providers.ErrNetwork)
	assert.ErrorIs(t, err, providers.ErrRejected)
}

func TestChain_MissingBundle(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://a.example"}
	chain := NewChain([]providers.Provider{a}, ChainOptions{})

	_, err := chain.UploadCredentials(context.Background(), filepath.Join(t.TempDir(), "creds.json"))
	assert.ErrorIs(t, err, ErrBundleMissing)
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestChain_FlushGraceHonoursContext(t *testing.T) {
	a := &fakeProvider{name: "a", url: "https://a.example"}
	chain := NewChain([]providers.Provider{a}, ChainOptions{FlushGrace: time.Hour})
	path := writeBundle(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := chain.UploadCredentials(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestChain_Names(t *testing.T) {
	chain := NewChain([]providers.Provider{&fakeProvider{name: "x"}, &fakeProvider{name: "y"}}, ChainOptions{})
	assert.Equal(t, []string{"x", "y"}, chain.Names())

	_, err := NewChain(nil, ChainOptions{}).UploadCredentials(context.Background(), writeBundle(t, t.TempDir()))
	assert.EqualError(t, err, "all providers failed: no providers configured")
}

func TestChain_MetricsLabelRefusedAttemptsInvalid(t *testing.T) {
	a := &fakeProvider{name: "a", err: providers.NewInvalidError("bundle too large", nil)}
	b := &fakeProvider{name: "b", err: providers.NewNetworkError("timeout", nil)}
	c := &fakeProvider{name: "c", url: "https://c.example/1"}

	m := metrics.New()
	chain := NewChain([]providers.Provider{a, b, c}, ChainOptions{Metrics: m})
	path := writeBundle(t, t.TempDir())

	_, err := chain.UploadCredentials(context.Background(), path)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `pairlink_uploads_total{provider="a",result="invalid"} 1`+"\n")
	assert.Contains(t, body, `pairlink_uploads_total{provider="b",result="failed"} 1`+"\n")
	assert.Contains(t, body, `pairlink_uploads_total{provider="c",result="ok"} 1`+"\n")
	assert.Contains(t, body, `pairlink_exports_total{result="ok"} 1`+"\n")
}
