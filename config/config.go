// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/AmaanSayyad/PrivatePay/params"
)

// Config represents the PrivatePay configuration
type Config struct {
	// Chain settings
	Chain ChainConfig `json:"chain"`

	// Database settings
	Database DatabaseConfig `json:"database"`

	// Scanner settings
	Scanner ScannerConfig `json:"scanner"`

	// Logging settings
	Logging LoggingConfig `json:"logging"`
}

// ChainConfig selects how stealth public keys become chain addresses.
// Name picks a preset; non-zero address fields override it.
type ChainConfig struct {
	Name          string `json:"name"`          // Address preset (aptos, full)
	AddressWidth  int    `json:"addressWidth"`  // Hash bytes kept
	AddressSize   int    `json:"addressSize"`   // Padded address size in bytes
	AddressPrefix string `json:"addressPrefix"` // Address marker
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	DataDir string `json:"dataDir"` // Data directory
	Cache   int    `json:"cache"`   // Cache size in MB
	Handles int    `json:"handles"` // Number of open file handles
}

// ScannerConfig contains payee scanning settings
type ScannerConfig struct {
	KeyFile      string `json:"keyFile"`      // Encrypted meta key file
	PollInterval int    `json:"pollInterval"` // Auto-scan interval in seconds
	LightKDF     bool   `json:"lightKdf"`     // Cheaper scrypt parameters for new key files
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level"`  // Log level (trace, debug, info, warn, error, crit)
	Format string `json:"format"` // Log format (json, text)
	File   string `json:"file"`   // Log file path (empty = stderr)
	Color  bool   `json:"color"`  // Colored terminal output
}

const (
	minCache   = 16
	minHandles = 16
)

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			Name: params.AptosAddressFormat.Name,
		},
		Database: DatabaseConfig{
			DataDir: "~/.privatepay",
			Cache:   64,
			Handles: 256,
		},
		Scanner: ScannerConfig{
			KeyFile:      "~/.privatepay/keys/meta.json",
			PollInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(content, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves configuration to a JSON file
func (c *Config) SaveConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	content, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, content, 0600)
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// AddressFormat resolves the chain section into an address format
func (c *Config) AddressFormat() (params.AddressFormat, error) {
	var f params.AddressFormat
	if c.Chain.Name != "" {
		preset, err := params.LookupAddressFormat(c.Chain.Name)
		if err != nil {
			return f, ErrUnknownChain
		}
		f = preset
	}
	if c.Chain.AddressWidth != 0 {
		f.Width = c.Chain.AddressWidth
	}
	if c.Chain.AddressSize != 0 {
		f.Size = c.Chain.AddressSize
	}
	if c.Chain.AddressPrefix != "" {
		f.Prefix = c.Chain.AddressPrefix
	}
	if err := f.Validate(); err != nil {
		return f, ErrInvalidAddressFormat
	}
	return f, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := c.AddressFormat(); err != nil {
		return err
	}

	if c.Database.Cache < minCache {
		c.Database.Cache = minCache
		log.Warn("Cache size too small, using minimum", "cache", minCache)
	}
	if c.Database.Handles < minHandles {
		c.Database.Handles = minHandles
		log.Warn("Too few file handles, using minimum", "handles", minHandles)
	}

	if c.Scanner.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}

	return nil
}

// GetDataDir returns the expanded data directory path
func (c *Config) GetDataDir() (string, error) {
	return ExpandPath(c.Database.DataDir)
}

// GetKeyFile returns the expanded key file path
func (c *Config) GetKeyFile() (string, error) {
	return ExpandPath(c.Scanner.KeyFile)
}

// GetLogFile returns the expanded log file path
func (c *Config) GetLogFile() (string, error) {
	if c.Logging.File == "" {
		return "", nil
	}
	return ExpandPath(c.Logging.File)
}

// GetPollInterval returns the auto-scan interval
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Scanner.PollInterval) * time.Second
}

// Configuration errors
var (
	ErrUnknownChain         = NewConfigError("unknown chain address preset")
	ErrInvalidAddressFormat = NewConfigError("invalid address width, size or prefix")
	ErrInvalidPollInterval  = NewConfigError("invalid poll interval")
	ErrInvalidLogLevel      = NewConfigError("invalid log level")
	ErrInvalidLogFormat     = NewConfigError("invalid log format")
)

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new config error
func NewConfigError(msg string) *ConfigError {
	return &ConfigError{message: msg}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return e.message
}
