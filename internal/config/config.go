package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type APIConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	Timeout   time.Duration `yaml:"timeout"`
	// RateLimit is max sends per user per window.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// InsightConfig points at the legacy interpretation backend. When BaseURL is
// empty, asks go to a direct LLM provider instead (see AIConfig).
type InsightConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type AIConfig struct {
	OpenAIKey    string `yaml:"openai_key"`
	GeminiKey    string `yaml:"gemini_key"`
	GeminiURL    string `yaml:"gemini_url"`
	GatewayKey   string `yaml:"gateway_key"`
	GatewayURL   string `yaml:"gateway_url"`
	DefaultModel string `yaml:"default_model"`
	MaxOutTokens int    `yaml:"max_out_tokens"`
}

type RetentionConfig struct {
	Days          int           `yaml:"days"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Workers       int           `yaml:"workers"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Insight   InsightConfig   `yaml:"insight"`
	AI        AIConfig        `yaml:"ai"`
	Retention RetentionConfig `yaml:"retention"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, overlays secrets from the environment
// (a .env file is honored when present) and applies defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// env overlay for secrets
	overlay(&cfg.API.JWTSecret, "STELLIUM_JWT_SECRET")
	overlay(&cfg.Database.URL, "STELLIUM_DATABASE_URL")
	overlay(&cfg.Redis.URL, "STELLIUM_REDIS_URL")
	overlay(&cfg.Redis.Password, "STELLIUM_REDIS_PASSWORD")
	overlay(&cfg.Insight.APIKey, "STELLIUM_INSIGHT_KEY")
	overlay(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	overlay(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	overlay(&cfg.AI.GatewayKey, "STELLIUM_GATEWAY_KEY")
	overlay(&cfg.Security.EncryptionKey, "STELLIUM_ENCRYPTION_KEY")

	// defaults
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 60 * time.Second
	}
	if cfg.API.RateLimit <= 0 {
		cfg.API.RateLimit = 20
	}
	if cfg.API.RateWindow <= 0 {
		cfg.API.RateWindow = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Insight.Timeout <= 0 {
		cfg.Insight.Timeout = 30 * time.Second
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.MaxOutTokens <= 0 {
		cfg.AI.MaxOutTokens = 1024
	}
	if cfg.Retention.Days <= 0 {
		cfg.Retention.Days = 90
	}
	if cfg.Retention.SweepInterval <= 0 {
		cfg.Retention.SweepInterval = 6 * time.Hour
	}
	if cfg.Retention.Workers <= 0 {
		cfg.Retention.Workers = 4
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.API.JWTSecret == "" && !dev {
		return nil, errors.New("api.jwt_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func overlay(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
