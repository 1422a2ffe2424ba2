package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.MaxRetries)
	assert.Equal(t, 1000, cfg.MaxIterations)
	assert.Equal(t, 60, cfg.BaseWaitSec)
	assert.Equal(t, 3600, cfg.MaxWaitSec)
	assert.Equal(t, 2, cfg.DebateMaxRounds)
	assert.InDelta(t, 0.70, cfg.DebateConfidenceThreshold, 1e-9)
	assert.Equal(t, 300, cfg.ResourceCheckIntervalSec)
	assert.InDelta(t, 80.0, cfg.CPUThresholdPercent, 1e-9)
	assert.InDelta(t, 80.0, cfg.MemThresholdPercent, 1e-9)
	assert.Equal(t, 10, cfg.MaxParallelAgents)
	assert.False(t, cfg.Perpetual)
	assert.Equal(t, "", cfg.CompletionMarker)
	assert.Equal(t, "claude", cfg.AgentCommand)
	assert.Equal(t, 3, cfg.TaskMaxAttempts)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "max_retries: 5\nperpetual: true\ncompletion_marker: \"ALL TASKS DONE\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.Perpetual)
	assert.Equal(t, "ALL TASKS DONE", cfg.CompletionMarker)
	// Untouched keys keep defaults.
	assert.Equal(t, 1000, cfg.MaxIterations)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.yaml"), []byte("max_retries: 5\n"), 0o644))
	t.Setenv("WARDEN_MAX_RETRIES", "9")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxRetries)
}

func TestLoad_DirArgumentWins(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.StateDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.yaml"), []byte("max_retries: [\n"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max_retries", func(c *Config) { c.MaxRetries = 0 }},
		{"zero max_iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"max wait below base", func(c *Config) { c.MaxWaitSec = 10 }},
		{"threshold above one", func(c *Config) { c.DebateConfidenceThreshold = 1.5 }},
		{"cpu threshold zero", func(c *Config) { c.CPUThresholdPercent = 0 }},
		{"mem threshold over 100", func(c *Config) { c.MemThresholdPercent = 150 }},
		{"zero parallel agents", func(c *Config) { c.MaxParallelAgents = 0 }},
		{"empty agent command", func(c *Config) { c.AgentCommand = "  " }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"negative debate rounds", func(c *Config) { c.DebateMaxRounds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
