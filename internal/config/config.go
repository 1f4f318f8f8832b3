package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sequence-downloader/setupusb/pkg/failure"
	"github.com/sequence-downloader/setupusb/pkg/host"
	"github.com/sequence-downloader/setupusb/pkg/payload"
	"github.com/sequence-downloader/setupusb/pkg/retry"
)

// Config holds all application configuration
type Config struct {
	// Provisioning
	Label         string `mapstructure:"label"`
	Task          string `mapstructure:"task"`
	PayloadFolder string `mapstructure:"payload-folder"`
	ErrorFileName string `mapstructure:"error-file-name"`

	// Host locations. An empty StateDir keeps FSM state in a temporary
	// directory removed after the run.
	HelperDir   string `mapstructure:"helper-dir"`
	StateDir    string `mapstructure:"state-dir"`
	HistoryPath string `mapstructure:"history-path"`

	// Retry policy for external tools
	RetryAttempts int           `mapstructure:"retry-attempts"`
	RetryDelay    time.Duration `mapstructure:"retry-delay"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	LogLevel string `mapstructure:"log-level"`

	// Payload fetch (build time)
	S3Bucket     string `mapstructure:"s3-bucket"`
	S3Region     string `mapstructure:"s3-region"`
	S3Prefix     string `mapstructure:"s3-prefix"`
	PayloadOut   string `mapstructure:"payload-out"`
	MaxFileSize  int64  `mapstructure:"max-file-size"`
	MaxTotalSize int64  `mapstructure:"max-total-size"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	base := host.ConfigDir()

	v.SetDefault("label", "SEQUSB")
	v.SetDefault("task", "SequenceDownloaderUSB")
	v.SetDefault("payload-folder", payload.DefaultFolder)
	v.SetDefault("error-file-name", failure.DefaultFileName)
	v.SetDefault("helper-dir", base)
	v.SetDefault("state-dir", "")
	v.SetDefault("history-path", filepath.Join(base, "history.db"))
	v.SetDefault("retry-attempts", retry.DefaultAttempts)
	v.SetDefault("retry-delay", retry.DefaultDelay)
	v.SetDefault("fsm-max-retries", 3)
	v.SetDefault("log-level", "warn")
	v.SetDefault("s3-bucket", "")
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("s3-prefix", "payload/")
	v.SetDefault("payload-out", filepath.Join("pkg", "payload", "assets"))
	v.SetDefault("max-file-size", 512*1024*1024)
	v.SetDefault("max-total-size", 1024*1024*1024)
}

// Load reads configuration from environment, config file, and defaults using
// the global viper instance that the command flags are bound to.
func Load(configDirs ...string) (*Config, error) {
	return LoadFrom(viper.GetViper(), configDirs...)
}

// LoadFrom reads configuration into v. An optional setupusb.yaml is looked up
// in each of configDirs and then the working directory.
func LoadFrom(v *viper.Viper, configDirs ...string) (*Config, error) {
	SetDefaults(v)

	// Environment variables (will be SEQUSB_RETRY_ATTEMPTS, etc.)
	v.SetEnvPrefix("SEQUSB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("setupusb")
	v.SetConfigType("yaml")
	for _, dir := range configDirs {
		if dir != "" {
			v.AddConfigPath(dir)
		}
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the installer depends on
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Label) == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if strings.ContainsAny(c.Label, `"`) {
		return fmt.Errorf("label cannot contain double quotes")
	}
	if strings.TrimSpace(c.Task) == "" {
		return fmt.Errorf("task cannot be empty")
	}
	if strings.TrimSpace(c.PayloadFolder) == "" {
		return fmt.Errorf("payload-folder cannot be empty")
	}
	if strings.TrimSpace(c.ErrorFileName) == "" {
		return fmt.Errorf("error-file-name cannot be empty")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry-attempts must be at least 1")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry-delay must be non-negative")
	}
	if c.FSMMaxRetries < 1 {
		return fmt.Errorf("fsm-max-retries must be at least 1")
	}
	return nil
}

// ValidateFetch checks the settings of the payload fetcher
func (c *Config) ValidateFetch() error {
	if c.S3Bucket == "" {
		return fmt.Errorf("s3-bucket cannot be empty")
	}
	if c.PayloadOut == "" {
		return fmt.Errorf("payload-out cannot be empty")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be positive")
	}
	if c.MaxTotalSize <= 0 {
		return fmt.Errorf("max-total-size must be positive")
	}
	return nil
}
