package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

// Config is the top-level application configuration.
type Config struct {
	LogLevel    string    `yaml:"log_level"`
	Listen      string    `yaml:"listen"`
	FrontendURL string    `yaml:"frontend_url"`
	OAuth       OAuth     `yaml:"oauth"`
	Accounts    []Account `yaml:"accounts"`
	Storage     Storage   `yaml:"storage"`
	Postgres    Postgres  `yaml:"postgres"`
	Ingest      Ingest    `yaml:"ingest"`
}

// OAuth holds the Google OAuth client used to mint per-account token sources.
type OAuth struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Account describes one delegated mailbox the service watches.
type Account struct {
	Email        string `yaml:"email"`
	RefreshToken string `yaml:"refresh_token"`
}

// Storage selects where attachment and archive bytes land.
type Storage struct {
	Backend  string `yaml:"backend"` // "local" or "gcs"
	BasePath string `yaml:"base_path"`
	Bucket   string `yaml:"bucket"`
}

// Postgres configures the durable cursor store. When disabled the service
// keeps cursors in memory, which is fine for a single instance.
type Postgres struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Ingest tunes the per-account notification workers.
type Ingest struct {
	QueueSize      int `yaml:"queue_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxProcessed   int `yaml:"max_processed"`
}

// QueueSizeOrDefault returns the per-account queue depth, defaulting to 16.
func (i Ingest) QueueSizeOrDefault() int {
	if i.QueueSize <= 0 {
		return 16
	}
	return i.QueueSize
}

// Timeout returns the per-notification processing deadline, defaulting to 2 minutes.
func (i Ingest) Timeout() time.Duration {
	if i.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// MaxProcessedOrDefault bounds the per-account dedup set, defaulting to 10000 ids.
func (i Ingest) MaxProcessedOrDefault() int {
	if i.MaxProcessed <= 0 {
		return 10000
	}
	return i.MaxProcessed
}

// ListenOrDefault returns the web server bind address.
func (c *Config) ListenOrDefault() string {
	if c.Listen == "" {
		return ":8090"
	}
	return c.Listen
}

// BasePathOrDefault returns the local storage root.
func (s Storage) BasePathOrDefault() string {
	if s.BasePath == "" {
		return "email_storage"
	}
	return s.BasePath
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	for i, a := range c.Accounts {
		if a.Email == "" {
			return fmt.Errorf("account %d: email is required", i)
		}
		if a.RefreshToken == "" {
			return fmt.Errorf("account %d (%s): refresh_token is required", i, a.Email)
		}
	}
	switch c.Storage.Backend {
	case "", "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage backend gcs requires a bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres enabled but dsn is empty")
	}
	return nil
}
