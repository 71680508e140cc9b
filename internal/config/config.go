// Package config loads datomctl settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/lutris-engineering/datom-go/datom"
)

// Config is the root configuration structure.
type Config struct {
	Native  NativeConfig  `yaml:"native"`
	Logging LoggingConfig `yaml:"logging"`
}

// NativeConfig controls how the native library is located and staged.
type NativeConfig struct {
	// Dir overrides the packaged layout when set.
	Dir          string `yaml:"dir"`
	StagingDir   string `yaml:"staging_dir"`
	StagingCache string `yaml:"staging_cache"`
	// LockTimeout is in seconds.
	LockTimeout int `yaml:"lock_timeout"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Native: NativeConfig{
			LockTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATOM_NATIVE_DIR"); v != "" {
		c.Native.Dir = v
	}
	if v := os.Getenv("DATOM_STAGING_DIR"); v != "" {
		c.Native.StagingDir = v
	}
	if v := os.Getenv("DATOM_STAGING_CACHE"); v != "" {
		c.Native.StagingCache = v
	}
	if v := os.Getenv("DATOM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DATOM_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []string

	if c.Native.LockTimeout <= 0 {
		errs = append(errs, "native.lock_timeout must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level %q is not a valid level", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// BootstrapOptions turns the native section into bootstrap options.
func (c *Config) BootstrapOptions() []datom.Option {
	opts := []datom.Option{
		datom.WithLockTimeout(time.Duration(c.Native.LockTimeout) * time.Second),
	}
	if dir := strings.TrimSpace(c.Native.Dir); dir != "" {
		opts = append(opts, datom.WithNativeDir(dir))
	}
	if dir := strings.TrimSpace(c.Native.StagingDir); dir != "" {
		opts = append(opts, datom.WithStagingDir(dir))
	}
	if dir := strings.TrimSpace(c.Native.StagingCache); dir != "" {
		opts = append(opts, datom.WithStagingCache(dir))
	}
	return opts
}

// NewLogger builds the zap logger described by the logging section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}

	var zcfg zap.Config
	if c.Logging.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
