// Package uploader exports credential bundles through an ordered chain of providers.
package uploader

import (
	"context"
	"time"
)

// UploadResult represents the outcome of exporting one credential bundle
type UploadResult struct {
	FileName   string        `json:"filename"`
	FilePath   string        `json:"filepath"`
	Size       int64         `json:"size"`
	Digest     string        `json:"digest,omitempty"`
	URL        string        `json:"url"`
	Provider   string        `json:"provider"`
	Duration   time.Duration `json:"duration"`
	Attempts   []Attempt     `json:"attempts,omitempty"`
	Error      error         `json:"-"`
	UploadTime time.Time     `json:"upload_time"`
}

// Attempt records one provider call, in the order the chain made it
type Attempt struct {
	Provider string        `json:"provider"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// FileInfo represents a bundle found on disk
type FileInfo struct {
	Path     string
	Name     string
	Size     int64
	Modified time.Time
	IsDir    bool
}

// Scanner finds credential bundles under a set of paths
type Scanner interface {
	Scan(ctx context.Context, paths []string) (<-chan FileInfo, <-chan error)
}

// ExportConfig holds configuration for a batch export
type ExportConfig struct {
	Concurrency int
	Chain       *Chain
}
