package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexburke/dupfinder/internal/config"
	"github.com/alexburke/dupfinder/internal/detector"
	"github.com/alexburke/dupfinder/internal/encoder"
	"github.com/alexburke/dupfinder/internal/github"
	"github.com/alexburke/dupfinder/internal/ingest"
	"github.com/alexburke/dupfinder/internal/provider"
	"github.com/alexburke/dupfinder/internal/vecstore"

	gogithub "github.com/google/go-github/v60/github"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dupfinder",
	Short: "Detect duplicate GitHub issues by semantic similarity",
	Long: `Dupfinder indexes a repository's issues as embedding vectors and finds
likely duplicates of new reports by nearest-neighbor search, so triage can
merge or link them instead of re-investigating.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dupfinder/config.yaml"
	}
	return home + "/.dupfinder/config.yaml"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loadConfig reads the config file, falling back to built-in defaults (plus
// environment variables) when the default file does not exist.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// components holds initialized components for use by subcommands.
type components struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    vecstore.Store
	GHClient *gogithub.Client
	Encoder  *encoder.Encoder
	Detector *detector.Detector
	Indexer  *ingest.Indexer
}

// initComponents creates all components from config.
func initComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	dimension, err := cfg.Embedding.ResolveDimension()
	if err != nil {
		return nil, err
	}

	// Open the vector store
	switch cfg.Store.Backend {
	case "sqlite":
		path, err := cfg.Store.ResolvePath()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		store, err := vecstore.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		c.Store = store
	case "postgres":
		store, err := vecstore.OpenPostgres(ctx, cfg.Store.DSN, dimension)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		c.Store = store
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Store.Backend)
	}

	// Create embedding provider
	var embedder provider.BatchEmbedder
	switch cfg.Embedding.Type {
	case "openai":
		embedder = provider.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
	case "ollama":
		embedder = provider.NewOllamaEmbedder(cfg.Embedding.URL, cfg.Embedding.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider type: %q", cfg.Embedding.Type)
	}

	c.Encoder, err = encoder.New(embedder, dimension,
		encoder.WithBatchSize(cfg.Defaults.EmbedBatchSize))
	if err != nil {
		return nil, err
	}

	c.Detector = detector.New(c.Encoder, c.Store)
	c.Indexer = ingest.New(c.Encoder, c.Store,
		ingest.WithLogger(logger),
		ingest.WithBatchSize(cfg.Defaults.EmbedBatchSize),
	)

	// Create GitHub client
	switch cfg.GitHub.Auth {
	case "app":
		appID, err := strconv.ParseInt(cfg.GitHub.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing app_id: %w", err)
		}
		installID, err := strconv.ParseInt(cfg.GitHub.InstallationID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing installation_id: %w", err)
		}
		client, err := github.NewAppClient(appID, installID, []byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("creating GitHub client: %w", err)
		}
		c.GHClient = client
	default:
		c.GHClient = github.NewTokenClient(cfg.GitHub.Token)
	}

	return c, nil
}

// parseRepoArg splits an owner/repo argument.
func parseRepoArg(arg string) (owner, repo string, err error) {
	parts := strings.SplitN(arg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: expected owner/repo, got %q", arg)
	}
	return parts[0], parts[1], nil
}

// parseIssueRef parses an owner/repo#number argument.
func parseIssueRef(ref string) (owner, repo string, number int, err error) {
	hashIdx := strings.LastIndex(ref, "#")
	if hashIdx == -1 {
		return "", "", 0, fmt.Errorf("invalid format: expected owner/repo#number, got %q", ref)
	}

	owner, repo, err = parseRepoArg(ref[:hashIdx])
	if err != nil {
		return "", "", 0, err
	}

	number, err = strconv.Atoi(ref[hashIdx+1:])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid issue number %q: %w", ref[hashIdx+1:], err)
	}

	return owner, repo, number, nil
}
