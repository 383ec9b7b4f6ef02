package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/parnexcodes/pairlink/internal/ledger"
	"github.com/parnexcodes/pairlink/internal/uploader"
)

// TextHandler implements Handler for human-readable text output
type TextHandler struct {
	output io.Writer
	now    func() time.Time
}

// NewTextHandler creates a new text handler
func NewTextHandler(w io.Writer) *TextHandler {
	return &TextHandler{
		output: w,
		now:    time.Now,
	}
}

// HandleResult prints one line per bundle
func (t *TextHandler) HandleResult(result uploader.UploadResult) error {
	if result.Error != nil {
		_, err := fmt.Fprintf(t.output, "ERROR %s: %v\n", result.FilePath, result.Error)
		return err
	}

	_, err := fmt.Fprintf(t.output,
		"SUCCESS %s (%s) -> %s [%s via %s, %s]\n",
		result.FilePath,
		humanize.Bytes(uint64(result.Size)),
		result.URL,
		result.Duration.Round(time.Millisecond),
		result.Provider,
		attemptsLabel(len(result.Attempts)),
	)
	return err
}

// HandleAttempt prints one ledger row
func (t *TextHandler) HandleAttempt(a ledger.Attempt) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-13s  %s  started %s",
		a.ID,
		a.Outcome,
		a.SessionID,
		humanize.RelTime(a.StartedAt, t.now(), "ago", "from now"),
	)
	if a.Restarts > 0 {
		fmt.Fprintf(&b, ", %s", english.Plural(a.Restarts, "restart", "restarts"))
	}
	if a.Provider != "" {
		fmt.Fprintf(&b, ", via %s", a.Provider)
	}
	if a.Error != "" {
		fmt.Fprintf(&b, ": %s", a.Error)
	}
	b.WriteByte('\n')

	_, err := io.WriteString(t.output, b.String())
	return err
}

// Close closes the text handler
func (t *TextHandler) Close() error {
	return nil
}

func attemptsLabel(n int) string {
	if n <= 1 {
		return "first try"
	}
	return humanize.Ordinal(n) + " provider"
}
