package nullpointer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/providers"
)

// Name is the provider name used in configuration and results
const Name = "0x0"

// NullPointerProvider implements the provider interface for 0x0.st,
// which takes the bundle as a raw request body and answers with the URL.
type NullPointerProvider struct {
	*providers.BaseProvider

	UploadURL string
	Timeout   time.Duration
}

// New creates a new 0x0.st provider
func New(config map[string]interface{}) (*NullPointerProvider, error) {
	uploadURL, ok := config["upload_url"].(string)
	if !ok || uploadURL == "" {
		uploadURL = "https://0x0.st"
	}

	timeoutStr, ok := config["timeout"].(string)
	if !ok {
		timeoutStr = "30s"
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		timeout = 30 * time.Second // Default timeout
		logging.ErrorContext("provider_config", err, map[string]interface{}{
			"provider": Name,
			"setting":  "timeout",
			"value":    timeoutStr,
		})
	}

	logging.ProviderConfig(Name, map[string]interface{}{
		"upload_url": uploadURL,
		"timeout":    timeout.String(),
	})

	return &NullPointerProvider{
		BaseProvider: providers.NewBaseProvider(Name, timeout, 512*1024*1024),
		UploadURL:    uploadURL,
		Timeout:      timeout,
	}, nil
}

// Upload sends the bundle as the raw body and returns the URL from the response text
func (p *NullPointerProvider) Upload(ctx context.Context, filePath string, file io.Reader, size int64) (*providers.ProviderResponse, error) {
	filename := filepath.Base(filePath)

	buf, err := io.ReadAll(file)
	if err != nil {
		p.LogProviderError("file_read", err, map[string]interface{}{
			"file": filename,
			"size": size,
		})
		return nil, providers.NewInvalidError("failed to read bundle", err)
	}

	resp, duration, err := p.MakeRequest(ctx, http.MethodPost, p.UploadURL, bytes.NewReader(buf), map[string]string{
		"Content-Type":   "application/octet-stream",
		"Content-Length": fmt.Sprintf("%d", len(buf)),
	})
	if err != nil {
		return nil, err
	}

	responseBody, err := p.ReadResponse(resp, duration)
	if err != nil {
		return nil, err
	}

	link := strings.TrimSpace(string(responseBody))
	if err := p.ValidateURL(link); err != nil {
		return nil, err
	}

	logging.UploadComplete(filename, Name, link, duration)

	return &providers.ProviderResponse{
		URL:         link,
		DownloadURL: link,
		Metadata: map[string]string{
			"provider":      Name,
			"upload_method": "raw_body",
			"duration_ms":   fmt.Sprintf("%d", duration.Milliseconds()),
			"original_name": filename,
			"upload_size":   fmt.Sprintf("%d", len(buf)),
		},
	}, nil
}
