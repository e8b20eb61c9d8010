// Package config_test tests the configuration loading for the voice-service.
package config_test

import (
	"testing"

	"github.com/book-expert/voice-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[http]
host = "0.0.0.0"
port = 8000

[engine]
kind = "http"
host = "127.0.0.1"
port = 8880
timeout_seconds = 120
concurrency = 1
probe_interval_seconds = 3

[voice]
id = "holly"
sample_rate = 24000

[voice.options]
temperature = "0.7"

[cache]
enabled = true
dir = "/var/cache/voice-service"
exact_text = true
warm_phrases = ["Hello Hollywood!", "One moment please."]
follower_margin_seconds = 5

[nats]
url = "nats://127.0.0.1:4222"
text_processed_subject = "text.processed"
audio_object_store_bucket = "AUDIO_FILES"

[paths]
base_logs_dir = "/var/log/voice-service"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, "http", cfg.Engine.Kind)
	assert.Equal(t, 120, cfg.Engine.TimeoutSeconds)
	assert.Equal(t, 1, cfg.Engine.Concurrency)
	assert.Equal(t, 3, cfg.Engine.ProbeIntervalSeconds)
	assert.Equal(t, "holly", cfg.Voice.ID)
	assert.Equal(t, 24000, cfg.Voice.SampleRate)
	assert.Equal(t, "0.7", cfg.Voice.Options["temperature"])
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "/var/cache/voice-service", cfg.Cache.Dir)
	assert.True(t, cfg.Cache.ExactText)
	assert.Len(t, cfg.Cache.WarmPhrases, 2)
	assert.Equal(t, 5, cfg.Cache.FollowerMarginSeconds)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "text.processed", cfg.NATS.TextProcessedSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, "http://127.0.0.1:8880", cfg.EngineURL())
	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
	assert.Equal(t, "/var/log/voice-service", cfg.Paths.BaseLogsDir)
}
