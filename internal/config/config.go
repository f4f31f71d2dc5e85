package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"teamassist/internal/models"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig                     `json:"basic_config"`
	Providers   map[string]ProviderConfig       `json:"providers"`
	Databases   map[string]DatabaseConfig       `json:"databases"`
	Redis       RedisConfig                     `json:"redis"`
	Rosters     map[string][]models.Participant `json:"rosters"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// DefaultProvider selects the providers entry used for the manager and
	// capability prompts.
	DefaultProvider string `json:"default_provider"`
	// RosterCacheTTL is the cache lifetime for group rosters, in minutes.
	RosterCacheTTL int `json:"roster_cache_ttl"`

	MinWorkers int `json:"min_workers"`
	MaxWorkers int `json:"max_workers"`
	QueueSize  int `json:"queue_size"`
	// WorkerIdleTimeout retires idle workers above the minimum, in minutes.
	WorkerIdleTimeout int `json:"worker_idle_timeout"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	if cfg.BasicConfig.DefaultProvider == "" {
		return nil, fmt.Errorf("default_provider must be configured")
	}
	if _, ok := cfg.Providers[cfg.BasicConfig.DefaultProvider]; !ok {
		return nil, fmt.Errorf("provider %s not configured", cfg.BasicConfig.DefaultProvider)
	}

	return &cfg, nil
}
