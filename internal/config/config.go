package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. PROTOCOL2BIDS_LOG_LEVEL
	EnvPrefix = "PROTOCOL2BIDS"

	// Default values
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 50 * 1024 * 1024 // 50MB
	DefaultServerName  = "protocol2bids"

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Keys shared by flags, environment variables and config files
const (
	KeyConfig      = "config"
	KeyDirectory   = "dir"
	KeyLogLevel    = "log-level"
	KeyMaxFileSize = "max-file-size"
	KeyRules       = "rules"
	KeyOverrides   = "overrides"
	KeyHints       = "hint"
	KeySkipPages   = "skip-pages"
)

// Config holds the settings shared by every command
type Config struct {
	// Directory bounds the files the MCP server may read
	Directory string

	// Rules replaces the built-in main rule table when set
	Rules string
	// Overrides replaces the built-in sequence overrides when set
	Overrides string

	// Hints are variant name prefixes tried before sniffing
	Hints []string
	// SkipPages are zero-based pages removed before parsing
	SkipPages []int

	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Directory:   currentDir,
		Version:     "dev",
		ServerName:  DefaultServerName,
		LogLevel:    DefaultLogLevel,
		MaxFileSize: DefaultMaxFileSize,
	}
}

// DefineFlags adds the shared flags to a flag set, usually the persistent
// flags of the root command
func DefineFlags(fs *pflag.FlagSet) {
	cfg := DefaultConfig()
	fs.String(KeyConfig, "", "Config file (YAML, JSON or TOML)")
	fs.String(KeyDirectory, cfg.Directory, "Directory the MCP server may read printouts and images from")
	fs.String(KeyLogLevel, cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.Int64(KeyMaxFileSize, cfg.MaxFileSize, "Maximum PDF file size in bytes")
	fs.String(KeyRules, "", "Rule table replacing the built-in Siemens table")
	fs.String(KeyOverrides, "", "Sequence overrides replacing the built-in ones")
	fs.StringSlice(KeyHints, nil, "Variant hints tried before sniffing (e.g. siemens.vb)")
	fs.IntSlice(KeySkipPages, nil, "Zero-based pages to ignore")
}

// New creates a viper instance reading the environment
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	v.SetDefault(KeyDirectory, cfg.Directory)
	v.SetDefault(KeyLogLevel, cfg.LogLevel)
	v.SetDefault(KeyMaxFileSize, cfg.MaxFileSize)
	return v
}

// Load reads the configuration from flags, environment and the optional
// config file, in decreasing precedence.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	cfg.Directory = v.GetString(KeyDirectory)
	cfg.LogLevel = strings.ToLower(v.GetString(KeyLogLevel))
	cfg.MaxFileSize = v.GetInt64(KeyMaxFileSize)
	cfg.Rules = v.GetString(KeyRules)
	cfg.Overrides = v.GetString(KeyOverrides)
	cfg.Hints = v.GetStringSlice(KeyHints)
	cfg.SkipPages = v.GetIntSlice(KeySkipPages)

	if cfg.Directory != "" {
		if expandedPath, err := filepath.Abs(cfg.Directory); err == nil {
			cfg.Directory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.New("directory cannot be empty")
	}
	if info, err := os.Stat(c.Directory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.Directory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", c.Directory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", c.Directory, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", c.Directory)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	for _, path := range []string{c.Rules, c.Overrides} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot access rule file: %w", err)
		}
	}
	for _, p := range c.SkipPages {
		if p < 0 {
			return fmt.Errorf("invalid page to skip: %d", p)
		}
	}
	return nil
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Directory: %s, LogLevel: %s, MaxFileSize: %d, Rules: %q, Overrides: %q, Hints: %v}",
		c.Directory, c.LogLevel, c.MaxFileSize, c.Rules, c.Overrides, c.Hints)
}
