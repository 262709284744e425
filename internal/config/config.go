package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the chronolens configuration
type Config struct {
	// DataDir is the platform data directory (database, config, logs)
	DataDir string `yaml:"data_dir"`

	// Timezone for half-day session bucketing (default: system local)
	Timezone string `yaml:"timezone,omitempty"`

	// Provider selects and configures the active AI backend
	Provider ProviderConfig `yaml:"provider"`

	// Analysis holds pipeline policy constants
	Analysis AnalysisConfig `yaml:"analysis"`

	// Schedule configures periodic analysis runs
	Schedule ScheduleConfig `yaml:"schedule"`
}

// ProviderConfig holds configuration for a single provider
type ProviderConfig struct {
	Type    string `yaml:"type"`               // "anthropic", "openai", "gemini", "ollama"
	APIKey  string `yaml:"api_key,omitempty"`  // For hosted API providers
	Model   string `yaml:"model,omitempty"`    // Model to use
	BaseURL string `yaml:"base_url,omitempty"` // For Ollama (default: http://localhost:11434)

	// MaxInputTokens overrides the provider's input budget (0 = provider default)
	MaxInputTokens int `yaml:"max_input_tokens,omitempty"`
}

// AnalysisConfig holds the pipeline policy constants. These thresholds are
// deliberate policy, not derived values; change them in config, not in code.
type AnalysisConfig struct {
	MaxRetries       int `yaml:"max_retries"`         // Retry attempts for quota errors (default: 3)
	BaseDelayMs      int `yaml:"base_delay_ms"`       // Base backoff delay (default: 2000)
	ChunkDelayMs     int `yaml:"chunk_delay_ms"`      // Pause between chunk analyses (default: 1000)
	SafetyMarginTok  int `yaml:"safety_margin_tok"`   // Tokens reserved under the budget (default: 500)
	BatchCeiling     int `yaml:"batch_ceiling"`       // Max timestamps per chunking prompt (default: 80)
	MergeGapSeconds  int `yaml:"merge_gap_seconds"`   // Adjacent-range merge window (default: 60)
	SessionGapMin    int `yaml:"session_gap_min"`     // Session gap hint in the chunking prompt (default: 30)
	MaxIdentities    int `yaml:"max_identities"`      // Cap on core identities (default: 5)
	MaxPreferences   int `yaml:"max_preferences"`     // Cap on personal preferences (default: 10)
	MaxTasks         int `yaml:"max_tasks"`           // Cap on current tasks (default: 10)
	MaxInterests     int `yaml:"max_interests"`       // Cap on current interests (default: 10)
	MaxPatterns      int `yaml:"max_patterns"`        // Cap on workflow patterns (default: 15)
	MaxURLsPerResult int `yaml:"max_urls_per_result"` // Cap on evidence URLs per pattern (default: 8)
}

// ScheduleConfig configures the watch daemon
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // Cron expression (default: every 6 hours)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Provider: ProviderConfig{
			Type:    "ollama",
			BaseURL: "http://localhost:11434",
		},
		Analysis: AnalysisConfig{
			MaxRetries:       3,
			BaseDelayMs:      2000,
			ChunkDelayMs:     1000,
			SafetyMarginTok:  500,
			BatchCeiling:     80,
			MergeGapSeconds:  60,
			SessionGapMin:    30,
			MaxIdentities:    5,
			MaxPreferences:   10,
			MaxTasks:         10,
			MaxInterests:     10,
			MaxPatterns:      15,
			MaxURLsPerResult: 8,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "0 */6 * * *",
		},
	}
}

// DefaultDataDir returns the platform data directory for chronolens
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chronolens"
	}
	return filepath.Join(home, ".chronolens")
}

// Load reads the config file from the given path, applying defaults for
// missing fields. A missing file returns defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.ApplyEnv()
	return cfg, nil
}

// Save writes the config to the given path
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// applyDefaults fills zero-valued policy fields after a partial config load
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	a := &c.Analysis
	d := def.Analysis
	if a.MaxRetries <= 0 {
		a.MaxRetries = d.MaxRetries
	}
	if a.BaseDelayMs <= 0 {
		a.BaseDelayMs = d.BaseDelayMs
	}
	if a.ChunkDelayMs <= 0 {
		a.ChunkDelayMs = d.ChunkDelayMs
	}
	if a.SafetyMarginTok <= 0 {
		a.SafetyMarginTok = d.SafetyMarginTok
	}
	if a.BatchCeiling <= 0 {
		a.BatchCeiling = d.BatchCeiling
	}
	if a.MergeGapSeconds <= 0 {
		a.MergeGapSeconds = d.MergeGapSeconds
	}
	if a.SessionGapMin <= 0 {
		a.SessionGapMin = d.SessionGapMin
	}
	if a.MaxIdentities <= 0 {
		a.MaxIdentities = d.MaxIdentities
	}
	if a.MaxPreferences <= 0 {
		a.MaxPreferences = d.MaxPreferences
	}
	if a.MaxTasks <= 0 {
		a.MaxTasks = d.MaxTasks
	}
	if a.MaxInterests <= 0 {
		a.MaxInterests = d.MaxInterests
	}
	if a.MaxPatterns <= 0 {
		a.MaxPatterns = d.MaxPatterns
	}
	if a.MaxURLsPerResult <= 0 {
		a.MaxURLsPerResult = d.MaxURLsPerResult
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = def.Schedule.Cron
	}
}

// ApplyEnv overlays API credentials from the environment. Environment keys
// win over the config file so secrets can stay out of it.
func (c *Config) ApplyEnv() {
	if c.Provider.APIKey != "" {
		return
	}
	switch c.Provider.Type {
	case "anthropic":
		c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini":
		c.Provider.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// DatabasePath returns the path of the chronolens SQLite database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "chronolens.db")
}

// Location resolves the configured timezone, falling back to system local
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
