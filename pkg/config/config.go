/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/aora/pkg/codec"
)

// Key modes
const (
	KeysSequence = "sequence"
	KeysBlake2b  = "blake2b"
	KeysXXH3     = "xxh3"
	KeysKSUID    = "ksuid"
)

// Compression modes
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Config represents the record store configuration
type Config struct {
	DataDir       string        `yaml:"data_dir"`
	LogFile       string        `yaml:"log_file"`
	Frame         Frame         `yaml:"frame"`
	Keys          string        `yaml:"keys"`
	Compression   string        `yaml:"compression"`
	FsyncInterval time.Duration `yaml:"fsync_interval"`
	Port          int           `yaml:"port"`
	Bind          string        `yaml:"bind"`
	CORSOrigins   []string      `yaml:"cors_origins,omitempty"`
	Security      Security      `yaml:"security"`
	Logging       Logging       `yaml:"logging"`
}

// Frame describes the on-disk frame layout
type Frame struct {
	LengthSize int    `yaml:"length_size"`
	Digest     string `yaml:"digest"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key,omitempty"` // Empty disables authentication
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:     "./data",
		LogFile:     "records.log",
		Frame:       Frame{LengthSize: 4, Digest: "crc32"},
		Keys:        KeysSequence,
		Compression: CompressionNone,
		Port:        9300,
		Bind:        "127.0.0.1",
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from the specified path. Fields missing
// from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every field that has a fixed set of values
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.LogFile == "" {
		return fmt.Errorf("log_file is required")
	}
	if _, err := c.FrameFormat(); err != nil {
		return err
	}

	switch c.Keys {
	case KeysSequence, KeysBlake2b, KeysXXH3, KeysKSUID:
	default:
		return fmt.Errorf("unknown key mode %q", c.Keys)
	}

	switch c.Compression {
	case CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}

	if c.FsyncInterval < 0 {
		return fmt.Errorf("fsync_interval must not be negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}

// LogPath returns the path of the record log
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, c.LogFile)
}

// FrameFormat converts the frame section to a codec.Format
func (c *Config) FrameFormat() (codec.Format, error) {
	digest, err := codec.ParseDigest(c.Frame.Digest)
	if err != nil {
		return codec.Format{}, err
	}
	format := codec.Format{LengthSize: c.Frame.LengthSize, Digest: digest}
	if err := format.Validate(); err != nil {
		return codec.Format{}, err
	}
	return format, nil
}

// NewLogger builds a slog logger writing to w
func NewLogger(w io.Writer, logging Logging) (*slog.Logger, error) {
	level, err := parseLevel(logging.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates a new configuration with a generated API key and
// saves it to configPath
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./aora.yaml"
	}

	// For Linux/macOS, use ~/.config/aora/config.yaml
	configDir := filepath.Join(homeDir, ".config", "aora")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
