package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DEDUCE_MAX_ITERATIONS", "DEDUCE_EVAL_TIMEOUT", "DEDUCE_DB", "DEDUCE_LOG_LEVEL", "DEDUCE_DEBUG"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.MaxIterations != 10000 {
		t.Errorf("Expected max iterations 10000, got %d", cfg.Engine.MaxIterations)
	}
	if !cfg.Engine.SemiNaive {
		t.Error("Expected semi-naive evaluation by default")
	}
	if cfg.Engine.CompileCacheSize != 128 {
		t.Errorf("Expected compile cache 128, got %d", cfg.Engine.CompileCacheSize)
	}
	if cfg.GetEvalTimeout() != 0 {
		t.Errorf("Expected no eval timeout, got %v", cfg.GetEvalTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "deduce.yaml")
	yaml := `
engine:
  max_iterations: 50
  semi_naive: false
  eval_timeout: 2s
  batch_concurrency: 4
logging:
  level: debug
  debug_mode: true
  categories:
    eval: false
store:
  database_path: /tmp/rel.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Engine.MaxIterations)
	assert.False(t, cfg.Engine.SemiNaive)
	assert.Equal(t, 2*time.Second, cfg.GetEvalTimeout())
	assert.Equal(t, 4, cfg.Engine.BatchConcurrency)
	// Unset keys keep their defaults.
	assert.Equal(t, 8, cfg.Engine.NestedDepth)
	assert.Equal(t, "/tmp/rel.db", cfg.Store.DatabasePath)
	assert.True(t, cfg.Logging.IsCategoryEnabled("infer"))
	assert.False(t, cfg.Logging.IsCategoryEnabled("eval"))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unclosed"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "deduce.yaml")
	cfg := DefaultConfig()
	cfg.Engine.Trace = true
	cfg.Logging.AuditFile = "audit.jsonl"
	cfg.Logging.Categories = map[string]bool{"eval": true}

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Engine.MaxIterations = 0 }},
		{"negative cache", func(c *Config) { c.Engine.CompileCacheSize = -1 }},
		{"negative depth", func(c *Config) { c.Engine.NestedDepth = -1 }},
		{"negative batch", func(c *Config) { c.Engine.BatchConcurrency = -2 }},
		{"bad timeout", func(c *Config) { c.Engine.EvalTimeout = "soon" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetEvalTimeoutUnparsable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.EvalTimeout = "not-a-duration"
	assert.Zero(t, cfg.GetEvalTimeout())
}

func TestLoggingCategoryDisabledOutsideDebug(t *testing.T) {
	lc := LoggingConfig{Categories: map[string]bool{"eval": true}}
	assert.False(t, lc.IsCategoryEnabled("eval"))
}
