// Package config loads the application configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// UserID scopes the persisted draft and the records store.
	UserID string `yaml:"user_id"`

	// API Keys
	OpenAIKey string `yaml:"openai_key"`
	GoogleKey string `yaml:"google_key"`

	// GCP Configuration (Firestore records store)
	GCPProject     string `yaml:"gcp_project"`
	GCPCredentials string `yaml:"gcp_credentials"`

	// Analysis Configuration
	Analysis AnalysisConfig `yaml:"analysis"`

	// Storage Configuration
	Storage StorageConfig `yaml:"storage"`

	// Records store provider: memory, redis, firestore
	RecordsProvider string `yaml:"records_provider"`

	// Sweeper Configuration
	Sweeper SweeperConfig `yaml:"sweeper"`

	// Observability Configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// AnalysisConfig selects and tunes the analysis backend.
type AnalysisConfig struct {
	// Backend is the analyzer backend name: openai, gemini, mock.
	Backend string `yaml:"backend"`
	// Model overrides the backend's default model.
	Model string `yaml:"model"`
	// Timeout bounds each remote call.
	Timeout time.Duration `yaml:"timeout"`
	// RequestsPerMinute limits calls to the remote service.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	// Hints are passed to every analysis request.
	Hints map[string]string `yaml:"hints"`
}

// StorageConfig selects the draft and credit storage backends.
type StorageConfig struct {
	// Provider is the KV provider: redis, file, memory.
	// Redis falls back to file, file to memory, each with a warning.
	Provider string `yaml:"provider"`
	// Dir is the base directory for file storage (default ~/.draftgo).
	Dir string `yaml:"dir"`
	// RedisAddr is the Redis server address (host:port).
	RedisAddr string `yaml:"redis_addr"`
	// RedisPassword is the Redis password (optional).
	RedisPassword string `yaml:"redis_password"`
	// RedisDB is the Redis database number.
	RedisDB int `yaml:"redis_db"`
	// AttachmentCeiling is the persisted attachment size limit in bytes.
	AttachmentCeiling int64 `yaml:"attachment_ceiling"`
}

// SweeperConfig schedules abandoned-draft cleanup.
type SweeperConfig struct {
	// Schedule is a cron expression (default "@hourly").
	Schedule string `yaml:"schedule"`
	// MaxAge is how old a persisted draft may grow before it is cleared.
	MaxAge time.Duration `yaml:"max_age"`
}

// ObservabilityConfig tunes metrics and health serving.
type ObservabilityConfig struct {
	// Enabled turns the metrics/health HTTP server on.
	Enabled bool `yaml:"enabled"`
	// Addr is the listen address (default ":9090").
	Addr string `yaml:"addr"`
}

// maxConfigSize caps config files at 1MB.
const maxConfigSize = 1 << 20

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path) // #nosec G304 - config path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with defaults and environment fallbacks.
func (c *Config) ApplyDefaults() {
	if c.UserID == "" {
		c.UserID = os.Getenv("DRAFTGO_USER")
	}
	if c.Analysis.Backend == "" {
		c.Analysis.Backend = "openai"
	}
	if c.Analysis.Timeout == 0 {
		c.Analysis.Timeout = 45 * time.Second
	}
	if c.Analysis.RequestsPerMinute == 0 {
		c.Analysis.RequestsPerMinute = 30
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = "file"
	}
	if c.RecordsProvider == "" {
		c.RecordsProvider = "memory"
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "@hourly"
	}
	if c.Sweeper.MaxAge == 0 {
		c.Sweeper.MaxAge = 7 * 24 * time.Hour
	}
	if c.Observability.Addr == "" {
		c.Observability.Addr = ":9090"
	}

	// Load API keys from environment if not in config
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.GoogleKey == "" {
		c.GoogleKey = os.Getenv("GOOGLE_API_KEY")
	}
	if c.GCPProject == "" {
		c.GCPProject = os.Getenv("GCP_PROJECT")
	}
	if c.GCPCredentials == "" {
		c.GCPCredentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = os.Getenv("DRAFTGO_REDIS_ADDR")
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	switch c.Analysis.Backend {
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("openai_key is required for the openai backend")
		}
	case "gemini":
		if c.GoogleKey == "" {
			return fmt.Errorf("google_key is required for the gemini backend")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown analysis backend %q", c.Analysis.Backend)
	}

	if c.RecordsProvider == "firestore" && c.GCPProject == "" {
		return fmt.Errorf("gcp_project is required for the firestore records provider")
	}

	return nil
}
