package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

const (
	EnvBaseURL = "BANKCHAT_BASE_URL"
	EnvAPIKey  = "BANKCHAT_API_KEY"
	EnvRegion  = "AWS_REGION"
)

// Config is the only persisted config file schema.
type Config struct {
	URL                   string  `toml:"url" validate:"omitempty,url"`
	Token                 string  `toml:"token"`
	Model                 string  `toml:"model" validate:"required"`
	MaxTokens             int     `toml:"max_tokens" validate:"gte=1"`
	Temperature           float64 `toml:"temperature" validate:"gte=0,lte=2"`
	TopP                  float64 `toml:"top_p" validate:"gt=0,lte=1"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds" validate:"gte=0"`
	IdleTimeoutSeconds    int     `toml:"idle_timeout_seconds" validate:"gte=0"`
	ValidateArguments     bool    `toml:"validate_arguments"`
	Catalog               string  `toml:"catalog,omitempty"`
	LogLevel              string  `toml:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn warning error"`
	Gateway               Gateway `toml:"gateway"`
	Source                string  `toml:"-"`
}

// Gateway configures the Bedrock-backed completion server.
type Gateway struct {
	Listen       string `toml:"listen" validate:"required"`
	Region       string `toml:"region,omitempty"`
	LlamaModelID string `toml:"llama_model_id" validate:"required"`
	NovaModelID  string `toml:"nova_model_id" validate:"required"`
}

func Default() Config {
	return Config{
		URL:                   "http://127.0.0.1:8000/v1",
		Model:                 "llama",
		MaxTokens:             1000,
		Temperature:           0.7,
		TopP:                  1.0,
		RequestTimeoutSeconds: 120,
		IdleTimeoutSeconds:    30,
		Gateway: Gateway{
			Listen:       ":8000",
			LlamaModelID: "us.meta.llama3-2-3b-instruct-v1:0",
			NovaModelID:  "amazon.nova-pro-v1:0",
		},
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bankchat", "config.toml")
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return applyEnv(cfg), nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if env := strings.TrimSpace(os.Getenv(EnvBaseURL)); env != "" {
		cfg.URL = env
	}
	if env := strings.TrimSpace(os.Getenv(EnvAPIKey)); env != "" {
		cfg.Token = env
	}
	if cfg.Gateway.Region == "" {
		cfg.Gateway.Region = strings.TrimSpace(os.Getenv(EnvRegion))
	}
	return cfg
}

// Validate checks field constraints declared in struct tags.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation error: %w", err)
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}
