// Package config provides the configuration structure for the voice-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// HTTPConfig holds the configuration for the HTTP API listener.
type HTTPConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// EngineConfig holds the configuration for the speech engine backend.
//
// Kind selects the backend: "http" talks to a model server over HTTP,
// "piper" shells out to a local piper binary.
type EngineConfig struct {
	Kind           string `toml:"kind"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ModelPath      string `toml:"model_path"`
	Concurrency    int    `toml:"concurrency"`
	// ProbeIntervalSeconds is the delay between health probes while the
	// engine model is loading. Zero selects the gateway default.
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
}

// VoiceConfig holds the default voice profile served over HTTP.
type VoiceConfig struct {
	ID         string            `toml:"id"`
	SampleRate int               `toml:"sample_rate"`
	Options    map[string]string `toml:"options"`
}

// CacheConfig holds the configuration for the generation cache. ExactText
// disables case folding during normalization, so cache keys distinguish
// casing at the cost of a lower hit rate.
type CacheConfig struct {
	Enabled               bool     `toml:"enabled"`
	Dir                   string   `toml:"dir"`
	ExactText             bool     `toml:"exact_text"`
	WarmPhrases           []string `toml:"warm_phrases"`
	FollowerMarginSeconds int      `toml:"follower_margin_seconds"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the
// pipeline worker and runs the service HTTP-only.
type NATSConfig struct {
	URL                    string `toml:"url"`
	TextProcessedSubject   string `toml:"text_processed_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	HTTP   HTTPConfig   `toml:"http"`
	Engine EngineConfig `toml:"engine"`
	Voice  VoiceConfig  `toml:"voice"`
	Cache  CacheConfig  `toml:"cache"`
	NATS   NATSConfig   `toml:"nats"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration for the voice-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}

// EngineURL returns the base URL of the HTTP engine backend.
func (c *Config) EngineURL() string {
	return fmt.Sprintf("http://%s:%d", c.Engine.Host, c.Engine.Port)
}

// ListenAddr returns the address the HTTP API binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
