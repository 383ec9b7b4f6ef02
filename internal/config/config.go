package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Verbose    bool             `mapstructure:"verbose"`
	Output     string           `mapstructure:"output"`
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Pairing    PairingConfig    `mapstructure:"pairing"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Protocol   ProtocolConfig   `mapstructure:"protocol"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Providers  []ProviderConfig `mapstructure:"providers"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds the HTTP front door settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SessionsConfig holds the on-disk session store settings
type SessionsConfig struct {
	Dir           string `mapstructure:"dir"`
	BundleName    string `mapstructure:"bundle_name"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// PairingConfig holds the delays and formatting used while pairing
type PairingConfig struct {
	PairingDelay  time.Duration `mapstructure:"pairing_delay"`
	CodeTimeout   time.Duration `mapstructure:"code_timeout"`
	CodeGroupSize int           `mapstructure:"code_group_size"`
	CodeSeparator string        `mapstructure:"code_separator"`
	OpenGrace     time.Duration `mapstructure:"open_grace"`
	FlushGrace    time.Duration `mapstructure:"flush_grace"`
	BundleWait    time.Duration `mapstructure:"bundle_wait"`
	TeardownDelay time.Duration `mapstructure:"teardown_delay"`
}

// SupervisorConfig bounds reconnects after transient closes
type SupervisorConfig struct {
	MaxRestarts    int           `mapstructure:"max_restarts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	StableAfter    time.Duration `mapstructure:"stable_after"`
}

// ProtocolConfig holds settings for the protocol gateway
type ProtocolConfig struct {
	GatewayURL      string        `mapstructure:"gateway_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	PollWait        time.Duration `mapstructure:"poll_wait"`
	MaxPollFailures int           `mapstructure:"max_poll_failures"`
	Browser         string        `mapstructure:"browser"`
	UserDomain      string        `mapstructure:"user_domain"`
}

// NotifyConfig holds settings for the messages sent after export
type NotifyConfig struct {
	EnvKey string `mapstructure:"env_key"`
}

// LedgerConfig holds the attempt ledger location; an empty path disables it
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig toggles the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ProviderConfig holds configuration for a file hosting provider
type ProviderConfig struct {
	Name     string                 `mapstructure:"name"`
	Enabled  bool                   `mapstructure:"enabled"`
	Settings map[string]interface{} `mapstructure:"settings"`
}

// Load reads configuration out of the given viper instance
func Load(v *viper.Viper) (*Config, error) {
	config := &Config{}

	// Set default values
	SetDefaults(v)

	v.SetEnvPrefix("PAIRLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Read configuration
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	// Global defaults
	v.SetDefault("verbose", false)
	v.SetDefault("output", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("sessions.dir", "./sessions")
	v.SetDefault("sessions.bundle_name", "creds.json")
	v.SetDefault("sessions.max_concurrent", 16)

	// Pairing timings follow what the protocol needs to settle
	v.SetDefault("pairing.pairing_delay", "1500ms")
	v.SetDefault("pairing.code_timeout", "60s")
	v.SetDefault("pairing.code_group_size", 4)
	v.SetDefault("pairing.code_separator", "-")
	v.SetDefault("pairing.open_grace", "2s")
	v.SetDefault("pairing.flush_grace", "1s")
	v.SetDefault("pairing.bundle_wait", "10s")
	v.SetDefault("pairing.teardown_delay", "5s")

	v.SetDefault("supervisor.max_restarts", 5)
	v.SetDefault("supervisor.backoff_initial", "1s")
	v.SetDefault("supervisor.backoff_max", "30s")
	v.SetDefault("supervisor.stable_after", "30s")

	v.SetDefault("protocol.gateway_url", "http://127.0.0.1:3001")
	v.SetDefault("protocol.timeout", "60s")
	v.SetDefault("protocol.poll_wait", "25s")
	v.SetDefault("protocol.max_poll_failures", 3)
	v.SetDefault("protocol.browser", "Chrome (Windows)")
	v.SetDefault("protocol.user_domain", "s.whatsapp.net")

	v.SetDefault("notify.env_key", "SESSION_URL")

	v.SetDefault("ledger.path", "./pairlink.db")
	v.SetDefault("metrics.enabled", true)

	// Provider defaults, in priority order
	v.SetDefault("providers", []ProviderConfig{
		{
			Name:    "pastebin",
			Enabled: false,
			Settings: map[string]interface{}{
				"api_url":        "https://pastebin.com/api/api_post.php",
				"paste_base_url": "https://pastebin.com/",
				"expire":         "1D",
				"timeout":        "30s",
			},
		},
		{
			Name:    "0x0",
			Enabled: true,
			Settings: map[string]interface{}{
				"upload_url": "https://0x0.st",
				"timeout":    "30s",
			},
		},
		{
			Name:    "gofile",
			Enabled: true,
			Settings: map[string]interface{}{
				"upload_url": "https://upload.gofile.io/uploadFile",
				"timeout":    "1m",
			},
		},
	})
}

// Validate checks values that would otherwise fail deep inside a session
func (c *Config) Validate() error {
	var errs []error
	if c.Pairing.CodeGroupSize < 1 {
		errs = append(errs, fmt.Errorf("pairing.code_group_size must be positive, got %d", c.Pairing.CodeGroupSize))
	}
	if c.Sessions.BundleName == "" {
		errs = append(errs, errors.New("sessions.bundle_name must not be empty"))
	}
	if c.Sessions.Dir == "" {
		errs = append(errs, errors.New("sessions.dir must not be empty"))
	}
	if c.Sessions.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("sessions.max_concurrent must be at least 1, got %d", c.Sessions.MaxConcurrent))
	}
	if c.Supervisor.MaxRestarts < 0 {
		errs = append(errs, fmt.Errorf("supervisor.max_restarts must not be negative, got %d", c.Supervisor.MaxRestarts))
	}

	durations := map[string]time.Duration{
		"pairing.pairing_delay":      c.Pairing.PairingDelay,
		"pairing.code_timeout":       c.Pairing.CodeTimeout,
		"pairing.open_grace":         c.Pairing.OpenGrace,
		"pairing.flush_grace":        c.Pairing.FlushGrace,
		"pairing.bundle_wait":        c.Pairing.BundleWait,
		"pairing.teardown_delay":     c.Pairing.TeardownDelay,
		"supervisor.backoff_initial": c.Supervisor.BackoffInitial,
		"supervisor.backoff_max":     c.Supervisor.BackoffMax,
	}
	for key, d := range durations {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", key, d))
		}
	}

	return errors.Join(errs...)
}

// GetEnabledProviders returns the enabled provider configurations, keeping priority order
func (c *Config) GetEnabledProviders() []ProviderConfig {
	var enabled []ProviderConfig
	for _, provider := range c.Providers {
		if provider.Enabled {
			enabled = append(enabled, provider)
		}
	}
	return enabled
}
