package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all leviosa configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// CS backend API (auth, inquiries, automation, dashboard)
	API APIConfig `yaml:"api"`

	// Sourcing backend API (search, upload-to-marketplace)
	Sourcing SourcingConfig `yaml:"sourcing"`

	// AI generation provider
	Generation GenerationConfig `yaml:"generation"`

	// Usage metering for the gated endpoints
	Usage UsageConfig `yaml:"usage"`

	// Gated endpoint server
	Server ServerConfig `yaml:"server"`

	// Client-side persisted state (credentials, sourcing session)
	State StateConfig `yaml:"state"`

	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the CS API client.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	LoginPath string `yaml:"login_path"`
}

// SourcingConfig configures the sourcing API client.
type SourcingConfig struct {
	BaseURL string `yaml:"base_url"`
	// FeaturesURL is where the gated optimize-name/optimize-cover routes live.
	// Empty means same origin as the leviosa server (server.listen).
	FeaturesURL string  `yaml:"features_url"`
	Timeout     string  `yaml:"timeout"`
	FeeRate     float64 `yaml:"fee_rate"`    // percent
	MarginRate  float64 `yaml:"margin_rate"` // percent
}

// GenerationConfig configures the Gemini generation service.
type GenerationConfig struct {
	APIKey         string `yaml:"api_key"`
	NameModel      string `yaml:"name_model"`
	ImageModel     string `yaml:"image_model"`
	Timeout        string `yaml:"timeout"`
	MaxImageBytes  int64  `yaml:"max_image_bytes"`
	MaxImageSidePx int    `yaml:"max_image_side_px"`
}

// ServerConfig configures the gated endpoint HTTP server.
type ServerConfig struct {
	Listen        string `yaml:"listen"`
	SessionSecret string `yaml:"session_secret"`
	ReadTimeout   string `yaml:"read_timeout"`
	WriteTimeout  string `yaml:"write_timeout"`
}

// StateConfig configures where client-side state is persisted.
type StateConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"` // quota for the key-value file, 0 = unlimited
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "leviosa",
		Version: "0.4.0",

		API: APIConfig{
			BaseURL:   "http://localhost:8000",
			Timeout:   "30s",
			LoginPath: "/login",
		},

		Sourcing: SourcingConfig{
			BaseURL:    "http://localhost:5001",
			Timeout:    "120s",
			FeeRate:    5.5,
			MarginRate: 15,
		},

		Generation: GenerationConfig{
			NameModel:      "gemini-2.5-flash",
			ImageModel:     "gemini-2.5-flash-image",
			Timeout:        "90s",
			MaxImageBytes:  10 << 20,
			MaxImageSidePx: 1536,
		},

		Usage: UsageConfig{
			DatabasePath: "data/usage.db",
			Limits: map[string]int{
				"name_optimization": 100,
				"cover_generation":  20,
			},
		},

		Server: ServerConfig{
			Listen:       ":3000",
			ReadTimeout:  "15s",
			WriteTimeout: "120s",
		},

		State: StateConfig{
			Dir:      ".leviosa",
			MaxBytes: 5 << 20,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("LEVIOSA_API_URL"); url != "" {
		c.API.BaseURL = url
	}
	if url := os.Getenv("LEVIOSA_SOURCING_API_URL"); url != "" {
		c.Sourcing.BaseURL = url
	}
	if url := os.Getenv("LEVIOSA_FEATURES_URL"); url != "" {
		c.Sourcing.FeaturesURL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generation.APIKey = key
	}
	if secret := os.Getenv("LEVIOSA_SESSION_SECRET"); secret != "" {
		c.Server.SessionSecret = secret
	}
	if path := os.Getenv("LEVIOSA_DB"); path != "" {
		c.Usage.DatabasePath = path
	}
	if dir := os.Getenv("LEVIOSA_STATE_DIR"); dir != "" {
		c.State.Dir = dir
	}
	if addr := os.Getenv("LEVIOSA_LISTEN"); addr != "" {
		c.Server.Listen = addr
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetAPITimeout returns the CS API timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	return parseDuration(c.API.Timeout, 30*time.Second)
}

// GetSourcingTimeout returns the sourcing API timeout as a duration.
func (c *Config) GetSourcingTimeout() time.Duration {
	return parseDuration(c.Sourcing.Timeout, 120*time.Second)
}

// GetGenerationTimeout returns the per-call generation timeout.
func (c *Config) GetGenerationTimeout() time.Duration {
	return parseDuration(c.Generation.Timeout, 90*time.Second)
}

// GetReadTimeout returns the server read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the server write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 120*time.Second)
}

// FeaturesBaseURL resolves where the gated feature routes are served.
func (c *Config) FeaturesBaseURL() string {
	if c.Sourcing.FeaturesURL != "" {
		return c.Sourcing.FeaturesURL
	}
	addr := c.Server.Listen
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// CredentialsPath is the key-value file holding the credential pair.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.State.Dir, "credentials.json")
}

// SessionPath is the key-value file holding the sourcing session.
func (c *Config) SessionPath() string {
	return filepath.Join(c.State.Dir, "sourcing.json")
}

// MinSessionSecretLen is the shortest HS256 secret the server accepts.
const MinSessionSecretLen = 32

// Validate validates the configuration needed to run the gated endpoint server.
func (c *Config) Validate() error {
	if len(c.Server.SessionSecret) < MinSessionSecretLen {
		return fmt.Errorf("session secret must be at least %d bytes (set LEVIOSA_SESSION_SECRET)", MinSessionSecretLen)
	}
	if c.Usage.DatabasePath == "" {
		return fmt.Errorf("usage database path not configured (set LEVIOSA_DB)")
	}
	for feature, limit := range c.Usage.Limits {
		if limit < 0 {
			return fmt.Errorf("usage limit for %s must be >= 0", feature)
		}
	}
	if c.Sourcing.FeeRate < 0 || c.Sourcing.MarginRate < 0 {
		return fmt.Errorf("fee_rate and margin_rate must be >= 0")
	}
	return nil
}
