// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire configuration for a single signup run.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Mail     MailConfig     `mapstructure:"mail" yaml:"mail"`
	Site     SiteConfig     `mapstructure:"site" yaml:"site"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Watcher  WatcherConfig  `mapstructure:"watcher" yaml:"watcher"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// MailConfig configures the disposable mailbox provider client.
type MailConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit         float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxCreateAttempts int           `mapstructure:"max_create_attempts" yaml:"max_create_attempts"`
}

// SiteConfig describes the target web application.
type SiteConfig struct {
	BaseURL              string    `mapstructure:"base_url" yaml:"base_url"`
	SignupPath           string    `mapstructure:"signup_path" yaml:"signup_path"`
	ConfirmationPattern  string    `mapstructure:"confirmation_pattern" yaml:"confirmation_pattern"`
	SubscriptionsRoute   string    `mapstructure:"subscriptions_route" yaml:"subscriptions_route"`
	TrialEndpointPattern string    `mapstructure:"trial_endpoint_pattern" yaml:"trial_endpoint_pattern"`
	Selectors            Selectors `mapstructure:"selectors" yaml:"selectors"`
	Labels               Labels    `mapstructure:"labels" yaml:"labels"`
}

// Selectors are the CSS selectors of the named form fields the flow fills in.
type Selectors struct {
	FirstName       string `mapstructure:"first_name" yaml:"first_name"`
	LastName        string `mapstructure:"last_name" yaml:"last_name"`
	Email           string `mapstructure:"email" yaml:"email"`
	Password        string `mapstructure:"password" yaml:"password"`
	ConfirmPassword string `mapstructure:"confirm_password" yaml:"confirm_password"`
	LoginField      string `mapstructure:"login_field" yaml:"login_field"`
	LoginPassword   string `mapstructure:"login_password" yaml:"login_password"`
	LoginSubmit     string `mapstructure:"login_submit" yaml:"login_submit"`
	TrialLogin      string `mapstructure:"trial_login" yaml:"trial_login"`
	TrialPassword   string `mapstructure:"trial_password" yaml:"trial_password"`
	TrialConfirm    string `mapstructure:"trial_confirm" yaml:"trial_confirm"`
	Modal           string `mapstructure:"modal" yaml:"modal"`
}

// Labels are the localized visible texts of the buttons the flow clicks.
type Labels struct {
	Submit      string `mapstructure:"submit" yaml:"submit"`
	BackToLogin string `mapstructure:"back_to_login" yaml:"back_to_login"`
	Approve     string `mapstructure:"approve" yaml:"approve"`
}

// BrowserConfig holds settings for the browser instance.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	Instrument     bool          `mapstructure:"instrument" yaml:"instrument"`
	Trace          TraceConfig   `mapstructure:"trace" yaml:"trace"`
}

// TraceConfig controls the diagnostic trace archive.
type TraceConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// WatcherConfig tunes the confirmation email poll loop.
type WatcherConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollEvery time.Duration `mapstructure:"poll_every" yaml:"poll_every"`
}

// SessionConfig holds the fixed delays and hard timeouts of the post-signup session.
type SessionConfig struct {
	ConfirmDelay         time.Duration `mapstructure:"confirm_delay" yaml:"confirm_delay"`
	FormMountDelay       time.Duration `mapstructure:"form_mount_delay" yaml:"form_mount_delay"`
	SettleTimeout        time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	SubscriptionsTimeout time.Duration `mapstructure:"subscriptions_timeout" yaml:"subscriptions_timeout"`
	TrialTimeout         time.Duration `mapstructure:"trial_timeout" yaml:"trial_timeout"`
	ModalTimeout         time.Duration `mapstructure:"modal_timeout" yaml:"modal_timeout"`
}

// IdentityConfig controls how the signup identity and final login are produced.
type IdentityConfig struct {
	FirstName     string `mapstructure:"first_name" yaml:"first_name"`
	LastName      string `mapstructure:"last_name" yaml:"last_name"`
	Password      string `mapstructure:"password" yaml:"-"`
	LoginStrategy string `mapstructure:"login_strategy" yaml:"login_strategy"`
	LoginPrefix   string `mapstructure:"login_prefix" yaml:"login_prefix"`
	FixedLogin    string `mapstructure:"fixed_login" yaml:"fixed_login"`
}

// ReportConfig configures result delivery. Reporting is disabled unless both
// Endpoint and JobID are set.
type ReportConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	JobID    string        `mapstructure:"job_id" yaml:"job_id"`
	Secret   string        `mapstructure:"secret" yaml:"-"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MetricsConfig configures the optional Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; this only trips on a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "signupflow")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Mail provider --
	v.SetDefault("mail.base_url", "https://api.mail.tm")
	v.SetDefault("mail.request_timeout", "30s")
	v.SetDefault("mail.rate_limit", 8.0)
	v.SetDefault("mail.max_create_attempts", 10)

	// -- Target site --
	v.SetDefault("site.base_url", "https://client.example.io")
	v.SetDefault("site.signup_path", "/signup")
	v.SetDefault("site.confirmation_pattern", `https?://client\.example\.io/confirmation-token/[0-9a-fA-F-]{36}`)
	v.SetDefault("site.subscriptions_route", "subscriptions")
	v.SetDefault("site.trial_endpoint_pattern", `/api/subscriptions/users/[^/]+/trial`)
	v.SetDefault("site.selectors.first_name", `input[name="firstName"]`)
	v.SetDefault("site.selectors.last_name", `input[name="lastName"]`)
	v.SetDefault("site.selectors.email", `input[name="email"]`)
	v.SetDefault("site.selectors.password", `input[name="password"]`)
	v.SetDefault("site.selectors.confirm_password", `input[name="confirmPassword"]`)
	v.SetDefault("site.selectors.login_field", `input[name="login"]`)
	v.SetDefault("site.selectors.login_password", `input[name="password"]`)
	v.SetDefault("site.selectors.login_submit", `button[type="submit"]`)
	v.SetDefault("site.selectors.trial_login", `input[name="login"]`)
	v.SetDefault("site.selectors.trial_password", `input[name="password"]`)
	v.SetDefault("site.selectors.trial_confirm", `input[name="confirmPassword"]`)
	v.SetDefault("site.selectors.modal", `[role="dialog"]`)
	v.SetDefault("site.labels.submit", "Sign up")
	v.SetDefault("site.labels.back_to_login", "Back to login")
	v.SetDefault("site.labels.approve", "Approve")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.element_timeout", "30s")
	v.SetDefault("browser.instrument", true)
	v.SetDefault("browser.trace.enabled", true)
	v.SetDefault("browser.trace.path", "trace.zip")

	// -- Confirmation watcher --
	v.SetDefault("watcher.timeout", "120s")
	v.SetDefault("watcher.poll_every", "1s")

	// -- Session --
	v.SetDefault("session.confirm_delay", "5s")
	v.SetDefault("session.form_mount_delay", "5s")
	v.SetDefault("session.settle_timeout", "15s")
	v.SetDefault("session.subscriptions_timeout", "60s")
	v.SetDefault("session.trial_timeout", "60s")
	v.SetDefault("session.modal_timeout", "10s")

	// -- Identity --
	v.SetDefault("identity.login_strategy", "random")
	v.SetDefault("identity.login_prefix", "romani")

	// -- Report --
	v.SetDefault("report.timeout", "15s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// The webhook endpoint and job id are also read from the unprefixed WEBHOOK_URL
// and JOB_ID variables that job runners export.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	_ = v.BindEnv("report.endpoint", "SIGNUPFLOW_REPORT_ENDPOINT", "WEBHOOK_URL")
	_ = v.BindEnv("report.job_id", "SIGNUPFLOW_REPORT_JOB_ID", "JOB_ID")
	_ = v.BindEnv("report.secret", "SIGNUPFLOW_REPORT_SECRET", "WEBHOOK_SECRET")
	_ = v.BindEnv("identity.password", "SIGNUPFLOW_IDENTITY_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every file path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Logger.LogFile, &c.Browser.Trace.Path, &c.Metrics.Textfile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Mail.BaseURL); err != nil {
		return fmt.Errorf("mail.base_url must be an absolute URL: %w", err)
	}
	if c.Mail.MaxCreateAttempts <= 0 {
		return fmt.Errorf("mail.max_create_attempts must be a positive integer")
	}
	if c.Mail.RateLimit <= 0 {
		return fmt.Errorf("mail.rate_limit must be positive")
	}
	if _, err := url.ParseRequestURI(c.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url must be an absolute URL: %w", err)
	}
	if _, err := regexp.Compile(c.Site.ConfirmationPattern); err != nil {
		return fmt.Errorf("site.confirmation_pattern is not a valid expression: %w", err)
	}
	if _, err := regexp.Compile(c.Site.TrialEndpointPattern); err != nil {
		return fmt.Errorf("site.trial_endpoint_pattern is not a valid expression: %w", err)
	}
	if c.Watcher.Timeout <= 0 || c.Watcher.PollEvery <= 0 {
		return fmt.Errorf("watcher.timeout and watcher.poll_every must be positive durations")
	}
	if c.Session.TrialTimeout <= 0 || c.Session.SubscriptionsTimeout <= 0 {
		return fmt.Errorf("session.trial_timeout and session.subscriptions_timeout must be positive durations")
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity configuration invalid: %w", err)
	}
	if c.Report.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.Report.Endpoint); err != nil {
			return fmt.Errorf("report.endpoint must be an absolute URL: %w", err)
		}
	}
	return nil
}

// Validate checks the identity settings.
func (i *IdentityConfig) Validate() error {
	switch strings.ToLower(i.LoginStrategy) {
	case "random":
		if i.LoginPrefix == "" {
			return fmt.Errorf("login_prefix is required for the random login strategy")
		}
	case "fixed":
		if i.FixedLogin == "" {
			return fmt.Errorf("fixed_login is required for the fixed login strategy")
		}
	default:
		return fmt.Errorf("unknown login_strategy %q (want random or fixed)", i.LoginStrategy)
	}
	return nil
}

// ReportingEnabled reports whether both delivery parameters are present.
func (r ReportConfig) ReportingEnabled() bool {
	return r.Endpoint != "" && r.JobID != ""
}
