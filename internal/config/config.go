package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all deduce configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Store   StoreConfig   `yaml:"store" json:"store"`
}

// EngineConfig configures rule evaluation.
type EngineConfig struct {
	MaxIterations    int    `yaml:"max_iterations" json:"max_iterations"`
	SemiNaive        bool   `yaml:"semi_naive" json:"semi_naive"`
	Trace            bool   `yaml:"trace" json:"trace,omitempty"`
	CompileCacheSize int    `yaml:"compile_cache_size" json:"compile_cache_size"`
	NestedDepth      int    `yaml:"nested_depth" json:"nested_depth"`
	EvalTimeout      string `yaml:"eval_timeout" json:"eval_timeout,omitempty"` // e.g. "30s"; empty = no limit
	BatchConcurrency int    `yaml:"batch_concurrency" json:"batch_concurrency,omitempty"`
}

// StoreConfig configures the SQLite relation store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path" json:"database_path,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxIterations:    10000,
			SemiNaive:        true,
			CompileCacheSize: 128,
			NestedDepth:      8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".deduce", "relations.db"),
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DEDUCE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.MaxIterations = n
		}
	}
	if v := os.Getenv("DEDUCE_EVAL_TIMEOUT"); v != "" {
		c.Engine.EvalTimeout = v
	}
	if v := os.Getenv("DEDUCE_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("DEDUCE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DEDUCE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// GetEvalTimeout returns the parsed evaluation timeout, or zero when unset
// or unparsable.
func (c *Config) GetEvalTimeout() time.Duration {
	if c.Engine.EvalTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Engine.EvalTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Engine.MaxIterations <= 0 {
		return fmt.Errorf("engine.max_iterations must be positive, got %d", c.Engine.MaxIterations)
	}
	if c.Engine.CompileCacheSize < 0 {
		return fmt.Errorf("engine.compile_cache_size must not be negative")
	}
	if c.Engine.NestedDepth < 0 {
		return fmt.Errorf("engine.nested_depth must not be negative")
	}
	if c.Engine.BatchConcurrency < 0 {
		return fmt.Errorf("engine.batch_concurrency must not be negative")
	}
	if c.Engine.EvalTimeout != "" {
		if _, err := time.ParseDuration(c.Engine.EvalTimeout); err != nil {
			return fmt.Errorf("engine.eval_timeout: %w", err)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}
