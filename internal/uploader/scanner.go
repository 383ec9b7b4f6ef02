package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultScanner walks directories looking for credential bundles
type DefaultScanner struct {
	// BundleName restricts results to files with this base name; empty matches every file
	BundleName string
}

// Scan scans the given paths and returns channels for bundle info and errors
func (s *DefaultScanner) Scan(ctx context.Context, paths []string) (<-chan FileInfo, <-chan error) {
	fileCh := make(chan FileInfo, 100)
	errCh := make(chan error, 10)

	go func() {
		defer close(fileCh)
		defer close(errCh)

		for _, path := range paths {
			select {
			case <-ctx.Done():
				return
			default:
			}

			err := s.walkPath(ctx, path, fileCh)
			if err != nil {
				select {
				case errCh <- fmt.Errorf("failed to scan path %s: %w", path, err):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return fileCh, errCh
}

func (s *DefaultScanner) walkPath(ctx context.Context, root string, fileCh chan<- FileInfo) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if s.BundleName != "" && d.Name() != s.BundleName {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		fileInfo := FileInfo{
			Path:     path,
			Name:     info.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		}

		select {
		case fileCh <- fileInfo:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})
}
