// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ErrPrecondition marks configuration problems detected before any network
// activity. Callers use errors.Is to map it onto the pre-flight exit path.
var ErrPrecondition = errors.New("precondition failed")

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Dojo    DojoConfig    `mapstructure:"dojo" yaml:"dojo"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Upload  UploadConfig  `mapstructure:"upload" yaml:"upload"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	FileLevel   string      `mapstructure:"file_level" yaml:"file_level"`
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DojoConfig identifies the findings service and how to authenticate to it.
// Token and the username/password pair are mutually exclusive.
type DojoConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Token    string `mapstructure:"token" yaml:"-"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// RetryConfig configures the retry layer applied to entity-resolution calls.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	BackoffFactor  float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	Jitter         bool          `mapstructure:"jitter" yaml:"jitter"`
	StatusCodes    []int         `mapstructure:"status_codes" yaml:"status_codes"`
}

// NetworkConfig tunes the network behavior of the application.
type NetworkConfig struct {
	// Timeout bounds each search/create call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// UploadTimeout bounds a single multipart import.
	UploadTimeout   time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ProxyURL        string        `mapstructure:"proxy_url" yaml:"proxy_url"`
	// RateLimit is requests per second for session calls. Zero disables it.
	RateLimit float64     `mapstructure:"rate_limit" yaml:"rate_limit"`
	Retry     RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// UploadConfig holds the settings of one upload run, mostly populated from flags.
type UploadConfig struct {
	Product           string `mapstructure:"product" yaml:"product"`
	Engagement        string `mapstructure:"engagement" yaml:"engagement"`
	ScanDir           string `mapstructure:"scan_dir" yaml:"scan_dir"`
	ComponentTags     bool   `mapstructure:"component_tags" yaml:"component_tags"`
	SeparateProducts  bool   `mapstructure:"separate_products" yaml:"separate_products"`
	NoReuseEngagement bool   `mapstructure:"no_reuse_engagement" yaml:"no_reuse_engagement"`
	SummaryFile       string `mapstructure:"summary_file" yaml:"summary_file"`
	SummaryFormat     string `mapstructure:"summary_format" yaml:"summary_format"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "warn")
	v.SetDefault("logger.file_level", "debug")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dojoctl")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.upload_timeout", "120s")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.rate_limit", 0.0)
	v.SetDefault("network.retry.max_retries", 3)
	v.SetDefault("network.retry.initial_backoff", "1s")
	v.SetDefault("network.retry.max_backoff", "30s")
	v.SetDefault("network.retry.backoff_factor", 2.0)
	v.SetDefault("network.retry.jitter", false)
	v.SetDefault("network.retry.status_codes", []int{429, 500, 502, 503, 504})

	// -- Upload --
	v.SetDefault("upload.summary_format", "json")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// It does not validate; commands validate the sections they use.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials are usually injected by the CI system.
	_ = v.BindEnv("dojo.token", "DOJOCTL_DOJO_TOKEN", "DEFECTDOJO_TOKEN")
	_ = v.BindEnv("dojo.password", "DOJOCTL_DOJO_PASSWORD", "DEFECTDOJO_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Dojo.URL = strings.TrimRight(cfg.Dojo.URL, "/")
	return &cfg, nil
}

// ValidateConnection checks the settings every command talking to the
// findings service needs.
func (c *Config) ValidateConnection() error {
	if c.Dojo.URL == "" {
		return fmt.Errorf("%w: dojo.url (--url) is required", ErrPrecondition)
	}
	hasToken := c.Dojo.Token != ""
	hasLogin := c.Dojo.Username != "" && c.Dojo.Password != ""
	if hasToken && (c.Dojo.Username != "" || c.Dojo.Password != "") {
		return fmt.Errorf("%w: --token cannot be combined with --username/--password", ErrPrecondition)
	}
	if !hasToken && !hasLogin {
		return fmt.Errorf("%w: must provide either --token or both --username and --password", ErrPrecondition)
	}
	if c.Network.Timeout <= 0 || c.Network.UploadTimeout <= 0 {
		return fmt.Errorf("%w: network timeouts must be positive durations", ErrPrecondition)
	}
	if c.Network.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: network.retry.max_retries must not be negative", ErrPrecondition)
	}
	return nil
}

// Validate checks everything an upload run needs. The scan directory is
// expanded in place so later stages see an absolute-or-relative real path.
func (c *Config) Validate() error {
	if err := c.ValidateConnection(); err != nil {
		return err
	}
	if c.Upload.Product == "" {
		return fmt.Errorf("%w: --product is required", ErrPrecondition)
	}
	if c.Upload.Engagement == "" {
		return fmt.Errorf("%w: --engagement is required", ErrPrecondition)
	}
	if c.Upload.ScanDir == "" {
		return fmt.Errorf("%w: --scan-dir is required", ErrPrecondition)
	}
	dir, err := homedir.Expand(c.Upload.ScanDir)
	if err != nil {
		return fmt.Errorf("%w: could not resolve scan directory '%s': %v", ErrPrecondition, c.Upload.ScanDir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: scan directory not found: %s", ErrPrecondition, dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: scan directory is not a directory: %s", ErrPrecondition, dir)
	}
	c.Upload.ScanDir = dir

	switch c.Upload.SummaryFormat {
	case "", "json", "yaml":
	default:
		return fmt.Errorf("%w: unsupported summary format: %s", ErrPrecondition, c.Upload.SummaryFormat)
	}
	return nil
}
