// Package config loads and validates engine-level configuration: iteration
// caps, LLM provider settings, and logging. Dataset-specific configuration
// (config.json per repository) is handled separately by the dataset package,
// since it is a fixed external data format rather than operator-tunable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"genforge/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config holds all genforge engine configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM LLMConfig `yaml:"llm"`

	// Iteration limits for the three generate-critique-refine loops.
	Loops LoopConfig `yaml:"loops"`

	Logging LoggingConfig `yaml:"logging"`

	// Recursion guard: total node visits the controller allows before aborting.
	MaxControllerVisits int `yaml:"max_controller_visits"`
}

// LLMConfig configures the LLM invocation wrapper (C1).
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, anthropic, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// LoopConfig holds the per-loop iteration caps and acceptance thresholds.
type LoopConfig struct {
	MaxArchIter     int `yaml:"max_arch_iter"`
	MaxSkeletonIter int `yaml:"max_skeleton_iter"`
	MaxCodeIter     int `yaml:"max_code_iter"`
	PassScore       int `yaml:"pass_score"`
	MemoryTopK      int `yaml:"memory_top_k"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "genforge",
		Version: "0.1.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			BaseURL:  "",
			Timeout:  "120s",
		},

		Loops: LoopConfig{
			MaxArchIter:     3,
			MaxSkeletonIter: 3,
			MaxCodeIter:     10,
			PassScore:       8,
			MemoryTopK:      5,
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},

		MaxControllerVisits: 50,
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("config loaded: provider=%s model=%s", cfg.LLM.Provider, cfg.LLM.Model)

	return cfg, nil
}

// Save persists configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// applyEnvOverrides applies environment variable overrides on top of
// whatever was loaded from file or default.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if model := os.Getenv("GENFORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini", "anthropic", "openai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY, ANTHROPIC_API_KEY, or OPENAI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Loops.MaxArchIter < 1 || c.Loops.MaxSkeletonIter < 1 || c.Loops.MaxCodeIter < 1 {
		return fmt.Errorf("iteration caps must be >= 1")
	}

	return nil
}
