// Package config loads authpipe.toml, the settings shared by every CLI
// command. Flags override file values; the file overrides defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/authpipe/internal/logging"
	"github.com/danmuck/authpipe/internal/protocol"
)

// DefaultPath is where commands look when no --config flag is given.
const DefaultPath = "authpipe.toml"

type Config struct {
	ChunkSize       int    `toml:"chunk_size"`
	KeyFile         string `toml:"key_file"`
	TrustedKeysFile string `toml:"trusted_keys_file"`
	MetricsAddr     string `toml:"metrics_addr"`

	Limits LimitsConfig `toml:"limits"`
	Log    LogConfig    `toml:"log"`
}

type LimitsConfig struct {
	MaxChunkSize      int `toml:"max_chunk_size"`
	MaxPublicKeyBytes int `toml:"max_public_key_bytes"`
	MaxSignatureBytes int `toml:"max_signature_bytes"`
	MaxPendingBytes   int `toml:"max_pending_bytes"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
}

func Default() Config {
	limits := protocol.DefaultLimits()
	return Config{
		ChunkSize: 1024,
		Limits: LimitsConfig{
			MaxChunkSize:      limits.MaxChunkSize,
			MaxPublicKeyBytes: limits.MaxPublicKeyBytes,
			MaxSignatureBytes: limits.MaxSignatureBytes,
			MaxPendingBytes:   limits.MaxPendingBytes,
		},
		Log: LogConfig{
			Level:     "info",
			Timestamp: true,
		},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOptional is Load, except a missing file yields Default.
func LoadOptional(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: config parse failed (%s): %v", protocol.ErrInvalidConfig, path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	l := cfg.Limits
	for _, f := range []struct {
		name string
		v    int
	}{
		{"limits.max_chunk_size", l.MaxChunkSize},
		{"limits.max_public_key_bytes", l.MaxPublicKeyBytes},
		{"limits.max_signature_bytes", l.MaxSignatureBytes},
	} {
		if f.v < 1 || f.v > protocol.MaxField {
			return fmt.Errorf("%w: %s must be in [1, %d], got %d", protocol.ErrInvalidConfig, f.name, protocol.MaxField, f.v)
		}
	}
	if l.MaxPendingBytes < 1 {
		return fmt.Errorf("%w: limits.max_pending_bytes must be positive", protocol.ErrInvalidConfig)
	}
	if cfg.ChunkSize < 1 || cfg.ChunkSize > l.MaxChunkSize {
		return fmt.Errorf("%w: chunk_size must be in [1, %d], got %d", protocol.ErrInvalidConfig, l.MaxChunkSize, cfg.ChunkSize)
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("%w: unknown log.level %q", protocol.ErrInvalidConfig, cfg.Log.Level)
	}
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" && !strings.Contains(addr, ":") {
		return fmt.Errorf("%w: metrics_addr %q needs a port", protocol.ErrInvalidConfig, addr)
	}
	return nil
}

func (c Config) StreamLimits() protocol.Limits {
	return protocol.Limits{
		MaxChunkSize:      c.Limits.MaxChunkSize,
		MaxPublicKeyBytes: c.Limits.MaxPublicKeyBytes,
		MaxSignatureBytes: c.Limits.MaxSignatureBytes,
		MaxPendingBytes:   c.Limits.MaxPendingBytes,
	}
}

// Logging maps the [log] table onto a runtime logging config.
func (c Config) Logging() logging.Config {
	out := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		out.Level = lvl
	}
	out.File = c.Log.File
	out.Timestamp = c.Log.Timestamp
	out.NoColor = c.Log.NoColor
	return out
}
