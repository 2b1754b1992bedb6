package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Stream.TargetFPS)
	assert.Equal(t, "jpeg", cfg.Stream.Codec)
	assert.Equal(t, 1000000, cfg.Stream.InitialBitrate)
	assert.True(t, cfg.Stream.AdaptiveBitrate)
	assert.Equal(t, "chill_guide", cfg.Coach.Persona)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STREAM_TARGET_FPS", "4")
	t.Setenv("COACH_PERSONA", "hype_coach")
	t.Setenv("STREAM_ADAPTIVE_BITRATE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Stream.TargetFPS)
	assert.Equal(t, "hype_coach", cfg.Coach.Persona)
	assert.False(t, cfg.Stream.AdaptiveBitrate)
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "coach", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/coach?sslmode=disable", c.DSN())

	c.URL = "postgres://whole/url"
	assert.Equal(t, "postgres://whole/url", c.DSN())
}
