package providers

import (
	"errors"
	"time"
)

// ProviderResponse represents a structured upload response across all providers
type ProviderResponse struct {
	// Primary download URL
	URL string `json:"url"`

	// Optional but standard fields
	DownloadURL string     `json:"download_url,omitempty"`
	ID          string     `json:"id,omitempty"`
	Expires     *time.Time `json:"expires,omitempty"`

	// Provider-specific information
	Metadata     map[string]string `json:"metadata,omitempty"`
	ProviderData interface{}       `json:"provider_data,omitempty"`
}

// ErrorType represents different categories of provider errors
type ErrorType int

const (
	ErrorTypeUnknown  ErrorType = iota
	ErrorTypeNetwork            // Request never got a usable response
	ErrorTypeRejected           // Non-2xx status or a failed success indicator
	ErrorTypeInvalid            // Bundle failed local validation, nothing was sent
)

// String returns a short label for logs and metrics
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRejected:
		return "rejected"
	case ErrorTypeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ProviderError represents a structured provider error
type ProviderError struct {
	Provider string    `json:"provider,omitempty"`
	Type     ErrorType `json:"type"`
	Code     string    `json:"code"`    // Provider-specific error code
	Message  string    `json:"message"` // Human-readable error message
	Cause    error     `json:"-"`       // Original error for logging
}

// Error implements the error interface
func (pe *ProviderError) Error() string {
	msg := pe.Message
	if pe.Provider != "" {
		msg = pe.Provider + ": " + msg
	}
	if pe.Code != "" {
		msg += " (code: " + pe.Code + ")"
	}
	return msg
}

// Unwrap returns the underlying cause
func (pe *ProviderError) Unwrap() error {
	return pe.Cause
}

// Is checks if the error matches the target
func (pe *ProviderError) Is(target error) bool {
	if targetProvider, ok := target.(*ProviderError); ok {
		return pe.Type == targetProvider.Type
	}
	return false
}

// Sentinels usable with errors.Is
var (
	ErrNetwork  = &ProviderError{Type: ErrorTypeNetwork}
	ErrRejected = &ProviderError{Type: ErrorTypeRejected}
	ErrInvalid  = &ProviderError{Type: ErrorTypeInvalid}
)

// NewProviderError creates a new ProviderError
func NewProviderError(errorType ErrorType, code, message string, cause error) *ProviderError {
	return &ProviderError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Predefined error constructors
func NewNetworkError(message string, cause error) *ProviderError {
	return NewProviderError(ErrorTypeNetwork, "", message, cause)
}

func NewRejectedError(code, message string, cause error) *ProviderError {
	return NewProviderError(ErrorTypeRejected, code, message, cause)
}

func NewInvalidError(message string, cause error) *ProviderError {
	return NewProviderError(ErrorTypeInvalid, "", message, cause)
}

// WithProvider stamps the provider name onto a ProviderError, or wraps a
// foreign error as a network failure of that provider.
func WithProvider(name string, err error) error {
	if err == nil {
		return nil
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.Provider == "" {
			provErr.Provider = name
		}
		return err
	}
	wrapped := NewNetworkError(err.Error(), err)
	wrapped.Provider = name
	return wrapped
}

// GetErrorType extracts the ErrorType from an error
func GetErrorType(err error) ErrorType {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Type
	}
	return ErrorTypeUnknown
}
