package pastebin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/providers"
)

// Name is the provider name used in configuration and results
const Name = "pastebin"

// PastebinProvider uploads a credential bundle as an unlisted JSON paste
type PastebinProvider struct {
	*providers.BaseProvider

	APIURL       string
	PasteBaseURL string
	APIKey       string
	Expire       string
	Timeout      time.Duration
}

// New creates a new Pastebin provider
func New(config map[string]interface{}) (*PastebinProvider, error) {
	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		return nil, errors.New("pastebin: api_key is required")
	}

	apiURL, ok := config["api_url"].(string)
	if !ok || apiURL == "" {
		apiURL = "https://pastebin.com/api/api_post.php"
	}

	pasteBaseURL, ok := config["paste_base_url"].(string)
	if !ok || pasteBaseURL == "" {
		pasteBaseURL = "https://pastebin.com/"
	}
	if !strings.HasSuffix(pasteBaseURL, "/") {
		pasteBaseURL += "/"
	}

	expire, ok := config["expire"].(string)
	if !ok || expire == "" {
		expire = "1D"
	}

	timeoutStr, ok := config["timeout"].(string)
	if !ok {
		timeoutStr = "30s"
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		timeout = 30 * time.Second
		logging.ErrorContext("provider_config", err, map[string]interface{}{
			"provider": Name,
			"setting":  "timeout",
			"value":    timeoutStr,
		})
	}

	logging.ProviderConfig(Name, map[string]interface{}{
		"api_url":        apiURL,
		"paste_base_url": pasteBaseURL,
		"expire":         expire,
		"timeout":        timeout.String(),
		"api_key":        apiKey,
	})

	return &PastebinProvider{
		// Pastebin caps free pastes at 512KB
		BaseProvider: providers.NewBaseProvider(Name, timeout, 512*1024),
		APIURL:       apiURL,
		PasteBaseURL: pasteBaseURL,
		APIKey:       apiKey,
		Expire:       expire,
		Timeout:      timeout,
	}, nil
}

// Upload posts the bundle and returns the raw paste link
func (p *PastebinProvider) Upload(ctx context.Context, filePath string, file io.Reader, size int64) (*providers.ProviderResponse, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, providers.NewInvalidError("failed to read bundle", err)
	}

	// Only JSON bundles are accepted; anything else means the bundle is corrupt
	if !json.Valid(content) {
		return nil, providers.NewInvalidError("bundle content is not valid JSON", nil)
	}

	filename := filepath.Base(filePath)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := []struct{ key, value string }{
		{"api_dev_key", p.APIKey},
		{"api_option", "paste"},
		{"api_paste_code", string(content)},
		{"api_paste_name", filename},
		{"api_paste_format", "json"},
		{"api_paste_private", "1"}, // Unlisted
		{"api_paste_expire_date", p.Expire},
	}
	for _, field := range fields {
		if err := writer.WriteField(field.key, field.value); err != nil {
			return nil, providers.NewInvalidError("failed to build form", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, providers.NewInvalidError("failed to close form writer", err)
	}

	resp, duration, err := p.MakeRequest(ctx, http.MethodPost, p.APIURL, &body, map[string]string{
		"Content-Type": writer.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}

	responseBody, err := p.ReadResponse(resp, duration)
	if err != nil {
		return nil, err
	}

	// Pastebin answers 200 with an error string on failure, so the body is the success flag
	link := strings.TrimSpace(string(responseBody))
	if !strings.HasPrefix(link, p.PasteBaseURL) {
		return nil, providers.NewRejectedError("PASTEBIN_ERROR", fmt.Sprintf("pastebin error: %s", link), nil)
	}

	pasteID := strings.TrimPrefix(link, p.PasteBaseURL)
	rawURL := p.PasteBaseURL + "raw/" + pasteID

	logging.UploadComplete(filename, Name, rawURL, duration)

	return &providers.ProviderResponse{
		URL:         rawURL,
		DownloadURL: rawURL,
		ID:          pasteID,
		Metadata: map[string]string{
			"provider":      Name,
			"upload_method": "form",
			"paste_url":     link,
			"expire":        p.Expire,
			"duration_ms":   fmt.Sprintf("%d", duration.Milliseconds()),
		},
	}, nil
}
