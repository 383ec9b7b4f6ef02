package providers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name     string
	maxSize  int64
	response *ProviderResponse
	err      error
	calls    int
}

func (s *stubProvider) Name() string          { return s.name }
func (s *stubProvider) GetMaxFileSize() int64 { return s.maxSize }
func (s *stubProvider) Upload(ctx context.Context, filePath string, file io.Reader, size int64) (*ProviderResponse, error) {
	s.calls++
	return s.response, s.err
}

func TestProviderError_Matching(t *testing.T) {
	err := NewRejectedError("500", "upstream broke", nil)
	assert.ErrorIs(t, err, ErrRejected)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Equal(t, ErrorTypeRejected, GetErrorType(err))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
	assert.Equal(t, "upstream broke (code: 500)", err.Error())
}

func TestWithProvider(t *testing.T) {
	wrapped := WithProvider("0x0", errors.New("dial tcp: refused"))
	assert.ErrorIs(t, wrapped, ErrNetwork)
	assert.Contains(t, wrapped.Error(), "0x0: ")

	rejected := WithProvider("gofile", NewRejectedError("403", "nope", nil))
	var provErr *ProviderError
	require.True(t, errors.As(rejected, &provErr))
	assert.Equal(t, "gofile", provErr.Provider)
	assert.Nil(t, WithProvider("x", nil))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://0x0.st/abc.json"))
	assert.ErrorIs(t, ValidateURL(""), ErrRejected)
	assert.ErrorIs(t, ValidateURL("Bad API request, invalid api_dev_key"), ErrRejected)
	assert.ErrorIs(t, ValidateURL("ftp://example.com/x"), ErrRejected)
}

func TestBaseProvider_ReadResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pairlink/1.0", r.Header.Get("User-Agent"))
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	bp := NewBaseProvider("test", 5*time.Second, 0)

	resp, _, err := bp.MakeRequest(context.Background(), http.MethodGet, server.URL+"/ok", nil, nil)
	require.NoError(t, err)
	body, err := bp.ReadResponse(resp, 0)
	require.NoError(t, err)

	var parsed struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, bp.ParseJSON(body, &parsed))
	assert.True(t, parsed.OK)
	assert.ErrorIs(t, bp.ParseJSON([]byte("<html>"), &parsed), ErrRejected)

	resp, _, err = bp.MakeRequest(context.Background(), http.MethodGet, server.URL+"/fail", nil, nil)
	require.NoError(t, err)
	_, err = bp.ReadResponse(resp, 0)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "429")
}

func TestBaseProvider_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	bp := NewBaseProvider("test", time.Second, 0)
	_, _, err := bp.MakeRequest(context.Background(), http.MethodPost, addr, nil, nil)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestConsistencyWrapper_SizeLimit(t *testing.T) {
	stub := &stubProvider{name: "small", maxSize: 10}
	wrapper := NewConsistencyWrapper(stub, DefaultWrapperConfig())

	_, err := wrapper.Upload(context.Background(), "creds.json", bytes.NewReader(nil), 11)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 0, stub.calls, "oversized bundles must not reach the provider")
}

func TestConsistencyWrapper_ValidatesAndEnhances(t *testing.T) {
	stub := &stubProvider{name: "ok", response: &ProviderResponse{URL: "https://example.com/x"}}
	wrapper := NewConsistencyWrapper(stub, DefaultWrapperConfig())

	resp, err := wrapper.Upload(context.Background(), "creds.json", bytes.NewReader([]byte("{}")), 2)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", resp.DownloadURL)
	assert.Equal(t, "ok", resp.Metadata["wrapper_provider"])
	assert.Equal(t, "2", resp.Metadata["upload_size"])

	bad := &stubProvider{name: "bad", response: &ProviderResponse{URL: "not a url"}}
	_, err = NewConsistencyWrapper(bad, DefaultWrapperConfig()).Upload(context.Background(), "creds.json", bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestConsistencyWrapper_NoRetry(t *testing.T) {
	stub := &stubProvider{name: "flaky", err: NewNetworkError("timeout", nil)}
	wrapper := NewConsistencyWrapper(stub, DefaultWrapperConfig())

	_, err := wrapper.Upload(context.Background(), "creds.json", bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, 1, stub.calls)
}
