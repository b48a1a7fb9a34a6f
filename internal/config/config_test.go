// File: internal/config/config_test.go
package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "https://api.mail.tm", cfg.Mail.BaseURL)
	assert.Equal(t, 10, cfg.Mail.MaxCreateAttempts)
	assert.Equal(t, 120*time.Second, cfg.Watcher.Timeout)
	assert.Equal(t, time.Second, cfg.Watcher.PollEvery)
	assert.Equal(t, 5*time.Second, cfg.Session.ConfirmDelay)
	assert.Equal(t, 5*time.Second, cfg.Session.FormMountDelay)
	assert.Equal(t, 60*time.Second, cfg.Session.TrialTimeout)
	assert.Equal(t, "trace.zip", cfg.Browser.Trace.Path)
	assert.Equal(t, "random", cfg.Identity.LoginStrategy)
	assert.Equal(t, "romani", cfg.Identity.LoginPrefix)
	assert.False(t, cfg.Report.ReportingEnabled())
	assert.NoError(t, cfg.Validate(), "defaults must be valid on their own")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "relative mail base url",
			mutate:  func(c *Config) { c.Mail.BaseURL = "api.mail.tm" },
			wantErr: "mail.base_url",
		},
		{
			name:    "zero create attempts",
			mutate:  func(c *Config) { c.Mail.MaxCreateAttempts = 0 },
			wantErr: "mail.max_create_attempts",
		},
		{
			name:    "broken confirmation pattern",
			mutate:  func(c *Config) { c.Site.ConfirmationPattern = "(" },
			wantErr: "site.confirmation_pattern",
		},
		{
			name:    "broken trial pattern",
			mutate:  func(c *Config) { c.Site.TrialEndpointPattern = "[" },
			wantErr: "site.trial_endpoint_pattern",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Watcher.PollEvery = 0 },
			wantErr: "watcher.timeout",
		},
		{
			name:    "fixed strategy without login",
			mutate:  func(c *Config) { c.Identity.LoginStrategy = "fixed" },
			wantErr: "fixed_login is required",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Identity.LoginStrategy = "clever" },
			wantErr: "unknown login_strategy",
		},
		{
			name:    "relative webhook endpoint",
			mutate:  func(c *Config) { c.Report.Endpoint = "hooks/result" },
			wantErr: "report.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReportingEnabled(t *testing.T) {
	assert.False(t, ReportConfig{}.ReportingEnabled())
	assert.False(t, ReportConfig{Endpoint: "https://hooks.example.io"}.ReportingEnabled())
	assert.False(t, ReportConfig{JobID: "job-1"}.ReportingEnabled())
	assert.True(t, ReportConfig{Endpoint: "https://hooks.example.io", JobID: "job-1"}.ReportingEnabled())
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("yaml overrides defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yaml := `
watcher:
  timeout: 45s
  poll_every: 250ms
identity:
  login_strategy: fixed
  fixed_login: romani123456
site:
  confirmation_pattern: 'https://app\.example\.org/confirm/[a-z0-9-]{36}'
`
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, cfg.Watcher.Timeout)
		assert.Equal(t, 250*time.Millisecond, cfg.Watcher.PollEvery)
		assert.Equal(t, "fixed", cfg.Identity.LoginStrategy)
		assert.Equal(t, "romani123456", cfg.Identity.FixedLogin)
		assert.Contains(t, cfg.Site.ConfirmationPattern, "app\\.example\\.org")
	})

	t.Run("webhook parameters from job runner env", func(t *testing.T) {
		t.Setenv("WEBHOOK_URL", "https://hooks.example.io/result")
		t.Setenv("JOB_ID", "job-1")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "https://hooks.example.io/result", cfg.Report.Endpoint)
		assert.Equal(t, "job-1", cfg.Report.JobID)
		assert.True(t, cfg.Report.ReportingEnabled())
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("mail.max_create_attempts", -1)
		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("tilde paths are expanded", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		v := viper.New()
		SetDefaults(v)
		v.Set("browser.trace.path", "~/trace.zip")
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(cfg.Browser.Trace.Path, "~"))
		assert.True(t, strings.HasSuffix(cfg.Browser.Trace.Path, "trace.zip"))
	})
}
