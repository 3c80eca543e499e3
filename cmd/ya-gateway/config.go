package main

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/Sternrassler/ya-request/pkg/dataset"
	"github.com/Sternrassler/ya-request/pkg/env"
	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration file.
type Config struct {
	Port       string           `yaml:"port"`
	Backend    BackendConfig    `yaml:"backend"`
	ErrorCodes string           `yaml:"errorCodes"`
	Endpoints  []EndpointConfig `yaml:"endpoints"`
	Warmup     []WarmupConfig   `yaml:"warmup"`
}

// BackendConfig describes where requests are sent.
type BackendConfig struct {
	Origin  string        `yaml:"origin"`
	Domain  string        `yaml:"domain"`
	Prefix  string        `yaml:"prefix"`
	Timeout time.Duration `yaml:"timeout"`

	// PageURL drives development detection the way a page address would,
	// e.g. "http://localhost:3000/?proxy=mock-a&ignorePrefix=v1".
	PageURL string `yaml:"pageURL"`
}

// EndpointConfig binds a dataset endpoint to an API path.
type EndpointConfig struct {
	Path          string          `yaml:"path"`
	Strict        bool            `yaml:"strict"`
	Cache         bool            `yaml:"cache"`
	Persist       dataset.Persist `yaml:"persist"`
	Prefer        dataset.Prefer  `yaml:"prefer"`
	HistoryLength int             `yaml:"historyLength"`
}

// WarmupConfig is a request issued once at startup.
type WarmupConfig struct {
	Path string         `yaml:"path"`
	Body map[string]any `yaml:"body"`
}

func defaultConfig() Config {
	return Config{
		Port: "8080",
		Backend: BackendConfig{
			Origin:  "http://localhost:9000",
			Domain:  "/",
			Timeout: 30 * time.Second,
		},
	}
}

// loadConfig reads filename when given and applies environment overrides.
func loadConfig(filename string) (Config, error) {
	cfg := defaultConfig()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Backend.Origin = getEnv("BACKEND_ORIGIN", cfg.Backend.Origin)
	cfg.Backend.Domain = getEnv("API_DOMAIN", cfg.Backend.Domain)
	cfg.Backend.Prefix = getEnv("API_PREFIX", cfg.Backend.Prefix)
	cfg.Backend.PageURL = getEnv("PAGE_URL", cfg.Backend.PageURL)
	cfg.ErrorCodes = getEnv("ERROR_CODES", cfg.ErrorCodes)

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.Backend.Origin == "" {
		return fmt.Errorf("backend origin is required")
	}
	seen := make(map[string]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep.Path == "" {
			return fmt.Errorf("endpoint path is required")
		}
		if seen[ep.Path] {
			return fmt.Errorf("endpoint %s configured twice", ep.Path)
		}
		seen[ep.Path] = true
	}
	for _, w := range c.Warmup {
		if w.Path == "" {
			return fmt.Errorf("warmup path is required")
		}
	}
	return nil
}

// environment derives the development detector from PageURL.
func (b BackendConfig) environment() (env.Detector, error) {
	if b.PageURL == "" {
		return env.Production(), nil
	}
	u, err := url.Parse(b.PageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	return env.FromURL(u), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
