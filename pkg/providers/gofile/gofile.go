package gofile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/providers"
)

// Name is the provider name used in configuration and results
const Name = "gofile"

// GoFileResponse represents the API response format
type GoFileResponse struct {
	Status string `json:"status"`
	Data   struct {
		DownloadPage string `json:"downloadPage"`
		ID           string `json:"id"`
		FileName     string `json:"fileName"`
	} `json:"data"`
}

// GoFileProvider implements the provider interface for GoFile
type GoFileProvider struct {
	*providers.BaseProvider

	UploadURL        string
	Timeout          time.Duration
	OptionalFolderID string
	Token            string
}

// New creates a new GoFile provider
func New(config map[string]interface{}) (*GoFileProvider, error) {
	uploadURL, ok := config["upload_url"].(string)
	if !ok || uploadURL == "" {
		uploadURL = "https://upload.gofile.io/uploadFile"
	}

	timeoutStr, ok := config["timeout"].(string)
	if !ok {
		timeoutStr = "1m"
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		timeout = time.Minute // Default timeout
		logging.ErrorContext("provider_config", err, map[string]interface{}{
			"provider": Name,
			"setting":  "timeout",
			"value":    timeoutStr,
		})
	}

	optionalFolderID, _ := config["folder_id"].(string)
	token, _ := config["token"].(string)

	logging.ProviderConfig(Name, map[string]interface{}{
		"upload_url": uploadURL,
		"timeout":    timeout.String(),
		"folder_id":  optionalFolderID,
		"api_key":    token,
	})

	// GoFile has no file size limits
	return &GoFileProvider{
		BaseProvider:     providers.NewBaseProvider(Name, timeout, 0),
		UploadURL:        uploadURL,
		Timeout:          timeout,
		OptionalFolderID: optionalFolderID,
		Token:            token,
	}, nil
}

// Upload uploads the bundle as a multipart form and checks the JSON status flag
func (p *GoFileProvider) Upload(ctx context.Context, filePath string, file io.Reader, size int64) (*providers.ProviderResponse, error) {
	filename := filepath.Base(filePath)

	buf, err := io.ReadAll(file)
	if err != nil {
		p.LogProviderError("file_read", err, map[string]interface{}{
			"file": filename,
			"size": size,
		})
		return nil, providers.NewInvalidError("failed to read bundle", err)
	}

	// Create multipart form
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, providers.NewInvalidError("failed to create form file", err)
	}
	if _, err := part.Write(buf); err != nil {
		return nil, providers.NewInvalidError("failed to write form file", err)
	}

	if p.OptionalFolderID != "" {
		if err := writer.WriteField("folderId", p.OptionalFolderID); err != nil {
			return nil, providers.NewInvalidError("failed to write folder ID", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, providers.NewInvalidError("failed to close form writer", err)
	}

	headers := map[string]string{
		"Content-Type": writer.FormDataContentType(),
	}
	if p.Token != "" {
		headers["Authorization"] = "Bearer " + p.Token
	}

	resp, duration, err := p.MakeRequest(ctx, http.MethodPost, p.UploadURL, &body, headers)
	if err != nil {
		return nil, err
	}

	responseBody, err := p.ReadResponse(resp, duration)
	if err != nil {
		return nil, err
	}

	var response GoFileResponse
	if err := p.ParseJSON(responseBody, &response); err != nil {
		return nil, err
	}

	// Check response status
	if response.Status != "ok" {
		return nil, providers.NewRejectedError(
			"UPLOAD_ERROR",
			fmt.Sprintf("upload failed with status: %s", response.Status),
			nil,
		)
	}

	if response.Data.DownloadPage == "" {
		return nil, providers.NewRejectedError("MISSING_DOWNLOAD_URL", "upload response missing download URL", nil)
	}

	result := &providers.ProviderResponse{
		URL:         response.Data.DownloadPage,
		DownloadURL: response.Data.DownloadPage,
		ID:          response.Data.ID,
		Metadata: map[string]string{
			"provider":      Name,
			"upload_method": "multipart_form",
			"duration_ms":   fmt.Sprintf("%d", duration.Milliseconds()),
			"original_name": filename,
			"upload_size":   fmt.Sprintf("%d", len(buf)),
			"gofile_id":     response.Data.ID,
		},
		ProviderData: &response,
	}

	if p.OptionalFolderID != "" {
		result.Metadata["folder_id"] = p.OptionalFolderID
	}

	logging.UploadComplete(filename, Name, response.Data.DownloadPage, duration)

	return result, nil
}
