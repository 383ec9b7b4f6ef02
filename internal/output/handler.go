// Package output renders export results and ledger rows for the CLI.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/parnexcodes/pairlink/internal/ledger"
	"github.com/parnexcodes/pairlink/internal/uploader"
)

// Handler interface for different output formats
type Handler interface {
	HandleResult(result uploader.UploadResult) error
	HandleAttempt(attempt ledger.Attempt) error
	Close() error
}

// NewHandler creates a new output handler for the specified format
func NewHandler(format string, w io.Writer) (Handler, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONHandler(w), nil
	case "text":
		return NewTextHandler(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
