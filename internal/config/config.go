// Package config loads the YAML configuration file, expanding ${VAR}
// environment references and applying defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alexburke/dupfinder/internal/provider"
)

// Config is the top-level configuration.
type Config struct {
	GitHub    GitHubConfig    `yaml:"github"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// GitHubConfig holds GitHub authentication settings. Auth is "token" or
// "app"; an empty token still works for public repositories.
type GitHubConfig struct {
	Auth           string `yaml:"auth"`
	Token          string `yaml:"token"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// EmbeddingConfig holds settings for the embedding provider.
type EmbeddingConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	URL       string `yaml:"url"`
	Dimension int    `yaml:"dimension"`
}

// ResolveDimension returns the configured dimension, falling back to the
// model's well-known dimensionality.
func (e EmbeddingConfig) ResolveDimension() (int, error) {
	if e.Dimension > 0 {
		return e.Dimension, nil
	}
	if d := provider.DefaultDimension(e.Model); d > 0 {
		return d, nil
	}
	return 0, fmt.Errorf("unknown embedding model %q: set embedding.dimension explicitly", e.Model)
}

// StoreConfig holds vector store settings. Backend is "sqlite" (Path) or
// "postgres" (DSN).
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// ResolvePath expands a leading "~/" in the SQLite path.
func (s StoreConfig) ResolvePath() (string, error) {
	if !strings.HasPrefix(s.Path, "~/") {
		return s.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, s.Path[2:]), nil
}

// DefaultsConfig holds default operational parameters.
type DefaultsConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
	EmbedBatchSize      int     `yaml:"embed_batch_size"`
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.GitHub.Auth == "" {
		cfg.GitHub.Auth = "token"
	}
	if cfg.Embedding.Type == "" {
		cfg.Embedding.Type = "openai"
	}
	if cfg.Embedding.Type == "openai" && cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Type == "ollama" && cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.dupfinder/issues.db"
	}
	if cfg.Defaults.SimilarityThreshold == 0 {
		cfg.Defaults.SimilarityThreshold = 0.5
	}
	if cfg.Defaults.TopK == 0 {
		cfg.Defaults.TopK = 10
	}
	if cfg.Defaults.EmbedBatchSize == 0 {
		cfg.Defaults.EmbedBatchSize = 32
	}
}

func validate(cfg *Config) error {
	switch cfg.GitHub.Auth {
	case "token", "app":
	default:
		return fmt.Errorf("github.auth must be token or app, got %q", cfg.GitHub.Auth)
	}

	switch cfg.Embedding.Type {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider type: %q", cfg.Embedding.Type)
	}

	switch cfg.Store.Backend {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be sqlite or postgres, got %q", cfg.Store.Backend)
	}

	if t := cfg.Defaults.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %f", t)
	}
	if cfg.Defaults.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", cfg.Defaults.TopK)
	}

	return nil
}
