package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Search   SearchConfig   `mapstructure:"search"`
	Research ResearchConfig `mapstructure:"research"`
	History  HistoryConfig  `mapstructure:"history"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// OllamaConfig describes the local generation backend.
type OllamaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	Stream  bool          `mapstructure:"stream"`
}

// SearchConfig describes the web search backend.
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"`
	SearXNGURL   string        `mapstructure:"searxng_url"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	FetchPages   bool          `mapstructure:"fetch_pages"`
	PageWords    int           `mapstructure:"page_words"`
	MaxPageBytes int64         `mapstructure:"max_page_bytes"`
}

// ResearchConfig holds the override pattern table. Questions matching any
// force term are researched regardless of the model's own decision; role
// terms additionally participate in search query derivation.
type ResearchConfig struct {
	ForceTerms []string `mapstructure:"force_terms"`
	RoleTerms  []string `mapstructure:"role_terms"`
}

// HistoryConfig selects and tunes the conversation store.
type HistoryConfig struct {
	Backend      string `mapstructure:"backend"` // file, postgres or memory
	FilePath     string `mapstructure:"file_path"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	MaxTurns     int    `mapstructure:"max_turns"`     // per-session retention cap, 0 = unlimited
	ContextTurns int    `mapstructure:"context_turns"` // recent turns replayed into prompts
}

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	ListenAddr    string        `mapstructure:"listen_addr"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// LoggingConfig tunes the global logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console or json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default override terms. Office-holder phrases and freshness words; the
// model's own freshness judgment is unreliable for exactly these.
var (
	defaultForceTerms = []string{
		"chief minister", "cm", "president", "prime minister", "governor",
		"current leader", "latest leader", "who is",
		"today", "current", "latest",
	}
	defaultRoleTerms = []string{
		"chief minister", "cm", "president", "prime minister", "governor",
	}
)

// SetDefaults registers every default value on v so that file and
// environment overrides layer on top.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "phi3")
	v.SetDefault("ollama.timeout", 120*time.Second)
	v.SetDefault("ollama.stream", true)

	v.SetDefault("search.provider", "searxng")
	v.SetDefault("search.searxng_url", "http://localhost:9090")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.user_agent", "answerd/1.0")
	v.SetDefault("search.fetch_pages", false)
	v.SetDefault("search.page_words", 500)
	v.SetDefault("search.max_page_bytes", int64(5*1024*1024))

	v.SetDefault("research.force_terms", defaultForceTerms)
	v.SetDefault("research.role_terms", defaultRoleTerms)

	v.SetDefault("history.backend", "file")
	v.SetDefault("history.file_path", "~/.answerd/history.json")
	v.SetDefault("history.postgres_dsn", "")
	v.SetDefault("history.max_turns", 200)
	v.SetDefault("history.context_turns", 10)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 300*time.Second)
	v.SetDefault("server.shutdown_grace", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", false)
}

// Load unmarshals v into a Config, expands paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.History.FilePath = expandHome(cfg.History.FilePath)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama base URL cannot be empty")
	}
	if c.Ollama.Model == "" {
		return fmt.Errorf("ollama model cannot be empty")
	}
	if c.Ollama.Timeout <= 0 {
		return fmt.Errorf("ollama timeout must be positive")
	}
	switch c.Search.Provider {
	case "searxng":
		if c.Search.SearXNGURL == "" {
			return fmt.Errorf("searxng URL cannot be empty when provider is searxng")
		}
	case "duckduckgo":
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}
	if c.Search.MaxResults < 1 || c.Search.MaxResults > 10 {
		return fmt.Errorf("search max results must be between 1 and 10")
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search timeout must be positive")
	}
	switch c.History.Backend {
	case "file":
		if c.History.FilePath == "" {
			return fmt.Errorf("history file path cannot be empty when backend is file")
		}
	case "postgres":
		if c.History.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN cannot be empty when backend is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.History.MaxTurns < 0 {
		return fmt.Errorf("history max turns cannot be negative")
	}
	if c.History.ContextTurns < 0 {
		return fmt.Errorf("history context turns cannot be negative")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address cannot be empty")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
