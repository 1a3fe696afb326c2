// Package config loads client configuration from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultCodec             = "json"
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	defaultDialTimeout       = 10 * time.Second
	defaultRequestTimeout    = 30 * time.Second
	defaultTypingTimeout     = 2000 * time.Millisecond
	defaultMaxUploadSize     = 25 * 1000 * 1000
	defaultLogLevel          = "info"
)

const envPrefix = "CHATSYNC_"

// Load reads path (optional; "" skips the file), then applies .env and
// CHATSYNC_* environment overrides, then validates and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		fileCfg, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	// .env is optional, missing file is fine.
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	str("STREAM_URL", &c.Server.StreamURL)
	str("API_URL", &c.Server.APIURL)
	str("MEDIA_URL", &c.Server.MediaURL)
	str("CODEC", &c.Session.Codec)
	str("LOG_LEVEL", &c.Logging.Level)
	str("METRICS_ADDR", &c.Metrics.Addr)

	if v, ok := lookup(envPrefix + "RECONNECT_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sRECONNECT_ATTEMPTS %q: %w", envPrefix, v, err)
		}
		c.Session.ReconnectAttempts = n
	}
	durations := map[string]*Duration{
		"RECONNECT_DELAY": &c.Session.ReconnectDelay,
		"DIAL_TIMEOUT":    &c.Session.DialTimeout,
		"REQUEST_TIMEOUT": &c.Session.RequestTimeout,
		"TYPING_TIMEOUT":  &c.Composer.TypingTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(envPrefix + key); ok {
			if err := dst.parse(v); err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
		}
	}
	if v, ok := lookup(envPrefix + "MAX_UPLOAD_SIZE"); ok {
		if err := c.Composer.MaxUploadSize.parse(v); err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_SIZE: %w", envPrefix, err)
		}
	}
	return nil
}

// Validate applies defaults and validates values in the config. It mutates
// the receiver to fill in missing defaults.
func (c *Config) Validate() error {
	if c.Server.StreamURL == "" {
		return errors.New("server.stream_url is required")
	}
	u, err := url.Parse(c.Server.StreamURL)
	if err != nil {
		return fmt.Errorf("invalid server.stream_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.stream_url must be ws:// or wss://, got %q", c.Server.StreamURL)
	}
	if c.Server.APIURL == "" {
		return errors.New("server.api_url is required")
	}
	if c.Server.MediaURL == "" {
		c.Server.MediaURL = c.Server.APIURL
	}

	if c.Session.Codec == "" {
		c.Session.Codec = defaultCodec
	}
	if c.Session.Codec != "json" && c.Session.Codec != "proto" {
		return fmt.Errorf("session.codec must be json or proto, got %q", c.Session.Codec)
	}
	if c.Session.ReconnectAttempts < 0 {
		return fmt.Errorf("session.reconnect_attempts must be >= 0, got %d", c.Session.ReconnectAttempts)
	}
	if c.Session.ReconnectAttempts == 0 {
		c.Session.ReconnectAttempts = defaultReconnectAttempts
	}
	if c.Session.ReconnectDelay <= 0 {
		c.Session.ReconnectDelay = Duration(defaultReconnectDelay)
	}
	if c.Session.DialTimeout <= 0 {
		c.Session.DialTimeout = Duration(defaultDialTimeout)
	}
	if c.Session.RequestTimeout <= 0 {
		c.Session.RequestTimeout = Duration(defaultRequestTimeout)
	}

	if c.Composer.TypingTimeout <= 0 {
		c.Composer.TypingTimeout = Duration(defaultTypingTimeout)
	}
	if c.Composer.MaxUploadSize <= 0 {
		c.Composer.MaxUploadSize = SizeBytes(defaultMaxUploadSize)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}
