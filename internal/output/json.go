package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/parnexcodes/pairlink/internal/ledger"
	"github.com/parnexcodes/pairlink/internal/uploader"
)

// JSONHandler writes every item as one element of a JSON array
type JSONHandler struct {
	encoder *json.Encoder
	output  io.Writer
	count   int
}

// NewJSONHandler creates a new JSON handler
func NewJSONHandler(w io.Writer) *JSONHandler {
	return &JSONHandler{
		encoder: json.NewEncoder(w),
		output:  w,
	}
}

type jsonAttempt struct {
	uploader.Attempt
	Error string `json:"error,omitempty"`
}

type jsonResult struct {
	uploader.UploadResult
	Attempts []jsonAttempt `json:"attempts,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// HandleResult writes an export result; errors are flattened to strings
func (j *JSONHandler) HandleResult(result uploader.UploadResult) error {
	out := jsonResult{UploadResult: result}
	if result.Error != nil {
		out.Error = result.Error.Error()
	}
	for _, a := range result.Attempts {
		ja := jsonAttempt{Attempt: a}
		if a.Err != nil {
			ja.Error = a.Err.Error()
		}
		out.Attempts = append(out.Attempts, ja)
	}
	return j.write(out)
}

// HandleAttempt writes a ledger row
func (j *JSONHandler) HandleAttempt(attempt ledger.Attempt) error {
	return j.write(attempt)
}

func (j *JSONHandler) write(v interface{}) error {
	sep := ","
	if j.count == 0 {
		sep = "["
	}
	j.count++
	if _, err := fmt.Fprint(j.output, sep); err != nil {
		return err
	}
	return j.encoder.Encode(v)
}

// Close terminates the array; an empty run still prints []
func (j *JSONHandler) Close() error {
	if j.count == 0 {
		_, err := fmt.Fprintln(j.output, "[]")
		return err
	}
	_, err := fmt.Fprintln(j.output, "]")
	return err
}
