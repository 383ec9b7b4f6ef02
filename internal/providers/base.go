package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/parnexcodes/pairlink/internal/logging"
)

// maxResponseBody caps how much of a provider response is read
const maxResponseBody = 1 << 20

// BaseProvider provides common functionality for all providers
type BaseProvider struct {
	name    string
	client  *http.Client
	timeout time.Duration
	maxSize int64
}

// NewBaseProvider creates a new base provider with common configuration
func NewBaseProvider(name string, timeout time.Duration, maxSize int64) *BaseProvider {
	client := &http.Client{
		Timeout: timeout,
	}

	return &BaseProvider{
		name:    name,
		client:  client,
		timeout: timeout,
		maxSize: maxSize,
	}
}

// Name returns the provider name
func (bp *BaseProvider) Name() string {
	return bp.name
}

// GetMaxFileSize returns the maximum bundle size supported by the provider
func (bp *BaseProvider) GetMaxFileSize() int64 {
	return bp.maxSize
}

// MakeRequest creates and executes an HTTP request with common headers and logging.
// Transport failures come back as network errors.
func (bp *BaseProvider) MakeRequest(ctx context.Context, method, target string, body io.Reader, headers map[string]string) (*http.Response, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		bp.LogProviderError("http_request_create", err, map[string]interface{}{
			"method": method,
			"url":    target,
		})
		return nil, 0, NewNetworkError(
			fmt.Sprintf("failed to create request: %s", method),
			err,
		)
	}

	// Set headers
	req.Header.Set("User-Agent", "pairlink/1.0")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	logging.HTTPRequest(method, target, headers)

	start := time.Now()
	resp, err := bp.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		bp.LogProviderError("http_request", err, map[string]interface{}{
			"url": target,
		})
		return nil, duration, NewNetworkError(
			fmt.Sprintf("request failed: %s", target),
			err,
		)
	}

	return resp, duration, nil
}

// ReadResponse reads the body and turns a non-2xx status into a rejection
func (bp *BaseProvider) ReadResponse(resp *http.Response, duration time.Duration) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		bp.LogProviderError("http_response_read", err, map[string]interface{}{
			"status_code": resp.StatusCode,
		})
		return nil, NewNetworkError("failed to read response body", err)
	}

	logging.HTTPResponse(resp.StatusCode, string(body), duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, NewRejectedError(
			fmt.Sprintf("%d", resp.StatusCode),
			fmt.Sprintf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200)),
			nil,
		)
	}

	return body, nil
}

// ParseJSON decodes a response body; malformed bodies count as rejections
func (bp *BaseProvider) ParseJSON(body []byte, target interface{}) error {
	if err := json.Unmarshal(body, target); err != nil {
		bp.LogProviderError("json_parse", err, map[string]interface{}{
			"response": truncate(string(body), 200),
		})
		return NewRejectedError("JSON_PARSE_ERROR", "failed to parse API response", err)
	}
	return nil
}

// ValidateURL checks that a provider handed back an absolute http(s) URL
func (bp *BaseProvider) ValidateURL(raw string) error {
	return ValidateURL(raw)
}

// ValidateURL checks that raw is an absolute http(s) URL
func ValidateURL(raw string) error {
	if raw == "" {
		return NewRejectedError("MISSING_URL", "provider response missing download URL", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewRejectedError("BAD_URL", fmt.Sprintf("provider returned a malformed URL: %q", truncate(raw, 100)), err)
	}
	return nil
}

// LogProviderError logs provider errors with context
func (bp *BaseProvider) LogProviderError(operation string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["provider"] = bp.name

	logging.ErrorContext(operation, err, fields)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
