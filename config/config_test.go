package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1080, cfg.Visuals.Width)
	assert.Equal(t, 7*24*time.Hour, cfg.History.Window)
	assert.Len(t, cfg.Audio.CTAFallbackPools["en"], 4)
	assert.NotEmpty(t, cfg.Audio.CTAFallbackPools["hi"])
}

func TestLoad_OverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
pipeline:
  run_timeout: 5m
  workers: 3
script:
  backend: ollama
  candidates: 2
history:
  backend: sqlite
  path: data/history.db
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, "ollama", cfg.Script.Backend)
	assert.Equal(t, 2, cfg.Script.Candidates)
	assert.Equal(t, "sqlite", cfg.History.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 80, cfg.Script.MinWords)
	assert.Equal(t, "black", cfg.Visuals.BackgroundColor)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history:\n  backend: redis\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Backend")
}

func TestValidate_RejectsLandscapeGeometry(t *testing.T) {
	cfg := Default()
	cfg.Visuals.Width, cfg.Visuals.Height = 1920, 1080
	assert.Error(t, cfg.Validate())
}

func TestValidate_CTAPoolForScriptLanguage(t *testing.T) {
	cfg := Default()
	cfg.Script.Language = "hi"
	require.NoError(t, cfg.Validate())

	delete(cfg.Audio.CTAFallbackPools, "hi")
	assert.ErrorContains(t, cfg.Validate(), `language "hi"`)

	cfg.Audio.CTAEnabled = false
	assert.NoError(t, cfg.Validate())
}

func TestValidate_IdealRangeOrder(t *testing.T) {
	cfg := Default()
	cfg.Script.IdealMinWords, cfg.Script.IdealMaxWords = 150, 120
	assert.Error(t, cfg.Validate())
}

func TestSecretsFromEnv(t *testing.T) {
	t.Setenv("PEXELS_API_KEY", "px")
	t.Setenv("GROQ_API_KEY", "gq")

	s := SecretsFromEnv()
	assert.Equal(t, "px", s.PexelsAPIKey)
	assert.Equal(t, "gq", s.GroqAPIKey)
}

func TestMusicQuery(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "dark ambient", cfg.MusicQuery(" Psychology "))
	assert.Equal(t, "ambient", cfg.MusicQuery("gardening"))
}
