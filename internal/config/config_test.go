package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vodindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
log:
  level: warn
delivery:
  origin: https://origin.example/videoplayback
  http3: true
  timeout: 3s
playback:
  video_enabled: false
formats:
  rejected_audio_xtags: ["CggKA2RyYxIBMQ"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://origin.example/videoplayback", cfg.Delivery.Origin)
	assert.True(t, cfg.Delivery.HTTP3)
	assert.Equal(t, 3*time.Second, cfg.Delivery.Timeout)
	assert.Equal(t, "vod", cfg.Delivery.Scheme, "unset keys keep defaults")
	assert.False(t, cfg.Playback.VideoEnabled)
	assert.Equal(t, []string{"CggKA2RyYxIBMQ"}, cfg.Formats.RejectedAudioXTags)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VODINDEX_ORIGIN", "http://10.0.0.1/vp")
	t.Setenv("VODINDEX_ADDR", ":9999")
	t.Setenv("VODINDEX_HTTP3", "true")
	t.Setenv("DEBUG", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1/vp", cfg.Delivery.Origin)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.True(t, cfg.Delivery.HTTP3)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "log: [unterminated"))
		assert.Error(t, err)
	})
	t.Run("bad level", func(t *testing.T) {
		_, err := Load(writeFile(t, "log: {level: loud}"))
		assert.ErrorContains(t, err, "log.level")
	})
	t.Run("empty origin", func(t *testing.T) {
		_, err := Load(writeFile(t, `delivery: {origin: ""}`))
		assert.ErrorContains(t, err, "delivery.origin")
	})
	t.Run("bad http3 env", func(t *testing.T) {
		t.Setenv("VODINDEX_HTTP3", "maybe")
		_, err := Load("")
		assert.ErrorContains(t, err, "VODINDEX_HTTP3")
	})
}
