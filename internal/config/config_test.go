package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Address)
	assert.Equal(t, "creds.json", cfg.Sessions.BundleName)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pairing.PairingDelay)
	assert.Equal(t, 4, cfg.Pairing.CodeGroupSize)
	assert.Equal(t, "-", cfg.Pairing.CodeSeparator)
	assert.Equal(t, 5*time.Second, cfg.Pairing.TeardownDelay)
	assert.Equal(t, "SESSION_URL", cfg.Notify.EnvKey)

	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "pastebin", cfg.Providers[0].Name)

	enabled := cfg.GetEnabledProviders()
	require.Len(t, enabled, 2)
	assert.Equal(t, "0x0", enabled[0].Name)
	assert.Equal(t, "gofile", enabled[1].Name)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairlink.yaml")
	content := `
sessions:
  dir: /var/lib/pairlink
  max_concurrent: 2
pairing:
  code_separator: " "
providers:
  - name: gofile
    enabled: true
  - name: "0x0"
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/pairlink", cfg.Sessions.Dir)
	assert.Equal(t, 2, cfg.Sessions.MaxConcurrent)
	assert.Equal(t, " ", cfg.Pairing.CodeSeparator)

	enabled := cfg.GetEnabledProviders()
	require.Len(t, enabled, 1)
	assert.Equal(t, "gofile", enabled[0].Name)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PAIRLINK_SERVER_ADDRESS", "127.0.0.1:9999")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Address)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	cfg.Pairing.CodeGroupSize = 0
	cfg.Sessions.MaxConcurrent = 0
	cfg.Pairing.OpenGrace = -time.Second

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code_group_size")
	assert.Contains(t, err.Error(), "max_concurrent")
	assert.Contains(t, err.Error(), "pairing.open_grace")
}
