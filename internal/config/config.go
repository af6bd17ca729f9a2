// Package config loads the web client configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Session backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Port           string        `env:"PORT,            default=8080"`
	APIBaseURL     string        `env:"API_BASE_URL,    default=http://localhost:8000"`
	SessionBackend string        `env:"SESSION_BACKEND, default=sqlite"`
	DBPath         string        `env:"DB_PATH,         default=sessions.db"`
	TemplateDir    string        `env:"TEMPLATE_DIR,    default=web/templates"`
	StaticDir      string        `env:"STATIC_DIR,      default=web/static"`
	SecureCookie   bool          `env:"SECURE_COOKIE,   default=false"`
	LogLevel       string        `env:"LOG_LEVEL,       default=info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT, default=15s"`

	Redis RedisConfig
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(ctx context.Context, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values envconfig cannot.
func (c *Config) Validate() error {
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL must not be empty")
	}
	switch c.SessionBackend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.RequestTimeout < 0 {
		return errors.New("REQUEST_TIMEOUT must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
