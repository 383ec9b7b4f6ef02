package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/metrics"
	"github.com/parnexcodes/pairlink/internal/providers"
)

// ErrBundleMissing is returned when no credential bundle exists at the given path
var ErrBundleMissing = errors.New("credential bundle missing")

// AllProvidersFailedError is returned when every provider in the chain failed.
// Attempts keeps the order the providers were tried in.
type AllProvidersFailedError struct {
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers failed: no providers configured"
	}
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return "all providers failed: " + strings.Join(reasons, "; ")
}

// Unwrap exposes every attempt error to errors.Is/As
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// ChainOptions configures a Chain
type ChainOptions struct {
	// FlushGrace is waited before the first attempt; the bundle is written
	// asynchronously by the protocol client.
	FlushGrace time.Duration
	Metrics    *metrics.Metrics
}

// Chain tries providers strictly in order and stops at the first success
type Chain struct {
	providers  []providers.Provider
	flushGrace time.Duration
	metrics    *metrics.Metrics
}

// NewChain creates a chain over providers in priority order
func NewChain(list []providers.Provider, opts ChainOptions) *Chain {
	return &Chain{
		providers:  list,
		flushGrace: opts.FlushGrace,
		metrics:    opts.Metrics,
	}
}

// Names returns the provider names in priority order
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// UploadCredentials uploads the bundle at bundlePath and returns the first
// provider's URL that succeeds. Providers after it are never called.
func (c *Chain) UploadCredentials(ctx context.Context, bundlePath string) (*UploadResult, error) {
	if err := sleep(ctx, c.flushGrace); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(bundlePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBundleMissing, bundlePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	filename := filepath.Base(bundlePath)
	size := int64(len(data))
	result := &UploadResult{
		FileName: filename,
		FilePath: bundlePath,
		Size:     size,
		Digest:   Fingerprint(data),
	}

	start := time.Now()
	for _, provider := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logging.UploadStart(filename, provider.Name(), size)

		attemptStart := time.Now()
		resp, err := provider.Upload(ctx, bundlePath, bytes.NewReader(data), size)
		attempt := Attempt{Provider: provider.Name(), Err: err, Duration: time.Since(attemptStart)}
		result.Attempts = append(result.Attempts, attempt)

		if err != nil {
			logging.UploadError(filename, provider.Name(), err)
			c.metrics.Upload(provider.Name(), failureResult(err), attempt.Duration)
			continue
		}

		c.metrics.Upload(provider.Name(), metrics.ResultOK, attempt.Duration)
		c.metrics.Export(metrics.ResultOK)

		result.URL = resp.URL
		result.Provider = provider.Name()
		result.Duration = time.Since(start)
		result.UploadTime = time.Now()
		return result, nil
	}

	c.metrics.Export(metrics.ResultFailed)
	return nil, &AllProvidersFailedError{Attempts: result.Attempts}
}

// failureResult labels a failed attempt; bundles refused before any request are invalid
func failureResult(err error) string {
	if providers.GetErrorType(err) == providers.ErrorTypeInvalid {
		return metrics.ResultInvalid
	}
	return metrics.ResultFailed
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
