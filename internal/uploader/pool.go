package uploader

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/parnexcodes/pairlink/internal/logging"
)

// Exporter pushes many leftover bundles through the chain concurrently.
// Each bundle still walks the providers strictly in order.
type Exporter struct {
	scanner Scanner
}

// NewExporter creates an exporter that looks for bundles with the given file name
func NewExporter(bundleName string) *Exporter {
	return &Exporter{scanner: &DefaultScanner{BundleName: bundleName}}
}

// NewExporterWithScanner creates an exporter over a custom scanner
func NewExporterWithScanner(scanner Scanner) *Exporter {
	return &Exporter{scanner: scanner}
}

// Export scans paths and uploads every bundle found. The result channel is
// closed once all uploads have finished.
func (e *Exporter) Export(ctx context.Context, paths []string, config ExportConfig) (<-chan UploadResult, error) {
	if config.Chain == nil {
		return nil, errors.New("export requires a provider chain")
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}

	resultCh := make(chan UploadResult, config.Concurrency*2)

	// Create semaphore for concurrency control
	sem := semaphore.NewWeighted(int64(config.Concurrency))
	logging.ConcurrencySettings(config.Concurrency, config.Concurrency)

	g, gctx := errgroup.WithContext(ctx)

	fileCh, errCh := e.scanner.Scan(gctx, paths)

	go func() {
		defer close(resultCh)

		defer func() {
			// Wait for all upload goroutines to complete
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				resultCh <- UploadResult{Error: fmt.Errorf("export failed: %w", err)}
			}
		}()

		for fileCh != nil || errCh != nil {
			select {
			case <-gctx.Done():
				return

			case fileInfo, ok := <-fileCh:
				if !ok {
					fileCh = nil
					continue
				}

				if err := sem.Acquire(gctx, 1); err != nil {
					logging.ErrorContext("semaphore_acquire", err, map[string]interface{}{
						"file": fileInfo.Path,
					})
					return
				}

				g.Go(func() error {
					defer sem.Release(1)
					return e.exportFile(gctx, fileInfo, config.Chain, resultCh)
				})

			case err, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				logging.ErrorContext("scan", err, nil)
				// Report but keep exporting other bundles
				resultCh <- UploadResult{Error: fmt.Errorf("scan error: %w", err)}
			}
		}
	}()

	return resultCh, nil
}

func (e *Exporter) exportFile(ctx context.Context, fileInfo FileInfo, chain *Chain, resultCh chan<- UploadResult) error {
	result, err := chain.UploadCredentials(ctx, fileInfo.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failed := UploadResult{
			FileName: fileInfo.Name,
			FilePath: fileInfo.Path,
			Size:     fileInfo.Size,
			Error:    err,
		}
		var allFailed *AllProvidersFailedError
		if errors.As(err, &allFailed) {
			failed.Attempts = allFailed.Attempts
		}
		resultCh <- failed
		return nil // one bad bundle does not stop the batch
	}

	select {
	case resultCh <- *result:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
