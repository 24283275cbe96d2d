// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Playback PlaybackConfig `yaml:"playback"`
	Formats  FormatsConfig  `yaml:"formats"`
	Server   ServerConfig   `yaml:"server"`
}

// LogConfig selects the slog level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DeliveryConfig describes how pseudo-URLs reach the origin.
type DeliveryConfig struct {
	Scheme  string        `yaml:"scheme"`
	Origin  string        `yaml:"origin"`
	HTTP3   bool          `yaml:"http3"`
	Timeout time.Duration `yaml:"timeout"`
	// MaxBytes caps one init+index response.
	MaxBytes int64 `yaml:"max_bytes"`
}

// PlaybackConfig holds per-playback defaults; API requests may override them.
type PlaybackConfig struct {
	VideoEnabled bool `yaml:"video_enabled"`
}

// FormatsConfig filters formats before streams are derived.
type FormatsConfig struct {
	// RejectedAudioXTags are xtags signatures of audio formats to skip.
	RejectedAudioXTags []string `yaml:"rejected_audio_xtags"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Delivery: DeliveryConfig{
			Scheme:   "vod",
			Origin:   "http://127.0.0.1:8090/videoplayback",
			Timeout:  15 * time.Second,
			MaxBytes: 64 << 20,
		},
		Playback: PlaybackConfig{VideoEnabled: true},
		Server:   ServerConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Delivery.Origin = envOr("VODINDEX_ORIGIN", c.Delivery.Origin)
	c.Server.Addr = envOr("VODINDEX_ADDR", c.Server.Addr)
	if v := os.Getenv("VODINDEX_HTTP3"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("VODINDEX_HTTP3: %w", err)
		}
		c.Delivery.HTTP3 = b
	}
	if os.Getenv("DEBUG") != "" {
		c.Log.Level = "debug"
	}
	return nil
}

// Validate checks values that have no usable zero.
func (c *Config) Validate() error {
	if c.Delivery.Scheme == "" {
		return fmt.Errorf("config: delivery.scheme is empty")
	}
	if c.Delivery.Origin == "" {
		return fmt.Errorf("config: delivery.origin is empty")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("config: log.level %q: %w", l.Level, err)
	}
	return level, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
