package providers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/sirupsen/logrus"
)

// Provider is the contract every upload adapter satisfies
type Provider interface {
	Name() string
	Upload(ctx context.Context, filePath string, file io.Reader, size int64) (*ProviderResponse, error)
	GetMaxFileSize() int64
}

// ConsistencyWrapper wraps providers to ensure standardized behavior.
// It never retries: a failed upload moves the chain on to the next provider.
type ConsistencyWrapper struct {
	provider Provider
	config   WrapperConfig
}

// WrapperConfig defines configuration for the consistency wrapper
type WrapperConfig struct {
	// Reject bundles over the provider's size limit before any request is made
	PreUploadValidation bool `json:"pre_upload_validation"`

	// Require an absolute http(s) URL in every successful response
	ValidateResponses bool `json:"validate_responses"`

	// Add standard metadata to responses
	EnhanceResponses bool `json:"enhance_responses"`
}

// DefaultWrapperConfig returns a sensible default configuration
func DefaultWrapperConfig() WrapperConfig {
	return WrapperConfig{
		PreUploadValidation: true,
		ValidateResponses:   true,
		EnhanceResponses:    true,
	}
}

// NewConsistencyWrapper creates a new consistency wrapper for a provider
func NewConsistencyWrapper(provider Provider, config WrapperConfig) *ConsistencyWrapper {
	return &ConsistencyWrapper{
		provider: provider,
		config:   config,
	}
}

// Name returns the wrapped provider's name
func (cw *ConsistencyWrapper) Name() string {
	return cw.provider.Name()
}

// GetMaxFileSize returns the wrapped provider's max bundle size
func (cw *ConsistencyWrapper) GetMaxFileSize() int64 {
	return cw.provider.GetMaxFileSize()
}

// Upload wraps the provider's Upload method with consistency features
func (cw *ConsistencyWrapper) Upload(ctx context.Context, filePath string, file io.Reader, size int64) (*ProviderResponse, error) {
	logging.Debug("Provider upload start", logrus.Fields{
		"provider":           cw.provider.Name(),
		"filepath":           filePath,
		"size":               size,
		"validation_enabled": cw.config.PreUploadValidation,
	})

	// Pre-upload validation if enabled
	if cw.config.PreUploadValidation {
		maxSize := cw.provider.GetMaxFileSize()
		if maxSize > 0 && size > maxSize {
			return nil, WithProvider(cw.provider.Name(), NewInvalidError(
				fmt.Sprintf("bundle size %d bytes exceeds provider %s maximum %d bytes", size, cw.provider.Name(), maxSize),
				nil,
			))
		}
	}

	response, err := cw.provider.Upload(ctx, filePath, file, size)
	if err != nil {
		return nil, WithProvider(cw.provider.Name(), err)
	}

	// Validate response if enabled
	if cw.config.ValidateResponses {
		if validationErr := cw.validateResponse(response); validationErr != nil {
			logging.ErrorContext("validation_failed", validationErr, map[string]interface{}{
				"provider": cw.provider.Name(),
				"filepath": filePath,
			})
			return nil, WithProvider(cw.provider.Name(), validationErr)
		}
	}

	// Add metadata if enabled
	if cw.config.EnhanceResponses {
		response = cw.addMetadata(response, filePath, size)
	}

	logging.Debug("Provider upload complete", logrus.Fields{
		"provider": cw.provider.Name(),
		"filepath": filePath,
	})

	return response, nil
}

// addMetadata adds standard metadata and ensures response consistency
func (cw *ConsistencyWrapper) addMetadata(response *ProviderResponse, filePath string, size int64) *ProviderResponse {
	if response.Metadata == nil {
		response.Metadata = make(map[string]string)
	}

	response.Metadata["wrapper_provider"] = cw.provider.Name()
	response.Metadata["upload_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	response.Metadata["original_filepath"] = filePath
	response.Metadata["upload_size"] = fmt.Sprintf("%d", size)

	if response.DownloadURL == "" {
		response.DownloadURL = response.URL
	}

	return response
}

// validateResponse ensures the response meets minimum requirements
func (cw *ConsistencyWrapper) validateResponse(response *ProviderResponse) error {
	if response == nil {
		return NewRejectedError("NULL_RESPONSE", "provider returned null response", nil)
	}
	return ValidateURL(response.URL)
}
