package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Composer ComposerConfig `yaml:"composer"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the messaging server endpoints.
type ServerConfig struct {
	StreamURL string `yaml:"stream_url"`
	APIURL    string `yaml:"api_url"`
	// MediaURL is the base relative attachment URLs are resolved against.
	// Defaults to APIURL.
	MediaURL string `yaml:"media_url"`
}

// SessionConfig tunes the stream connection.
type SessionConfig struct {
	Codec             string   `yaml:"codec"`
	ReconnectAttempts int      `yaml:"reconnect_attempts"`
	ReconnectDelay    Duration `yaml:"reconnect_delay"`
	DialTimeout       Duration `yaml:"dial_timeout"`
	RequestTimeout    Duration `yaml:"request_timeout"`
}

// ComposerConfig tunes the outbound composer.
type ComposerConfig struct {
	TypingTimeout Duration  `yaml:"typing_timeout"`
	MaxUploadSize SizeBytes `yaml:"max_upload_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig controls the optional prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Duration is a wrapper around time.Duration that supports YAML parsing from
// strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration %q", raw)
}

// Duration returns the value as time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// SizeBytes is a byte count parsed from strings like "25MB" or "512KiB".
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	return s.parse(node.Value)
}

func (s *SizeBytes) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*s = 0
		return nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", raw, err)
	}
	*s = SizeBytes(n)
	return nil
}

// Int64 returns the size in bytes.
func (s SizeBytes) Int64() int64 { return int64(s) }

// String renders the size for humans.
func (s SizeBytes) String() string {
	if s < 0 {
		return humanize.Bytes(0)
	}
	return humanize.Bytes(uint64(s))
}
