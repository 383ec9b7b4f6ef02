package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONCategories(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Output: &buf})
	defer Init(Options{Level: "error", Output: os.Stderr})

	SessionCreated("15551234567", "/tmp/session-15551234567")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, CategorySession, entry["category"])
	assert.Equal(t, "15551234567", entry["session_id"])
	assert.Equal(t, "Session created", entry["msg"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Format: "json", Output: &buf})
	defer Init(Options{Level: "error", Output: os.Stderr})

	Info("hidden", nil)
	assert.Zero(t, buf.Len())

	ErrorContext("op", errors.New("boom"), map[string]interface{}{"provider": "0x0"})
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), CategoryError)
}

func TestUploadComplete_HidesURLUnlessVerbose(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Output: &buf})
	UploadComplete("creds.json", "0x0", "https://0x0.st/secret", 0)
	assert.NotContains(t, buf.String(), "https://0x0.st/secret")

	buf.Reset()
	Init(Options{Verbose: true, Format: "json", Output: &buf})
	defer Init(Options{Level: "error", Output: os.Stderr})
	UploadComplete("creds.json", "0x0", "https://0x0.st/secret", 0)
	assert.Contains(t, buf.String(), "https://0x0.st/secret")
}

func TestProviderConfig_RedactsKeys(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Verbose: true, Format: "json", Output: &buf})
	defer Init(Options{Level: "error", Output: os.Stderr})

	ProviderConfig("pastebin", map[string]interface{}{"api_key": "hunter2", "expire": "1D"})
	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "1D")
}
