package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"adspot/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `yaml:"app"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	API         APIConfig         `yaml:"api"`
	Reservation ReservationConfig `yaml:"reservation"`
	Exports     ExportConfig      `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ReservationConfig struct {
	HoldTTLMinutes         int `yaml:"hold_ttl_minutes"`
	ReclaimIntervalSeconds int `yaml:"reclaim_interval_seconds"`
	CacheTTLSeconds        int `yaml:"cache_ttl_seconds"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Environment variables are expanded before parsing so secrets stay
	// out of the YAML file.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Reservation.HoldTTLMinutes < 0 {
		return errors.New("reservation hold_ttl_minutes must not be negative")
	}
	return nil
}

// ValidatePlacements checks the placement catalog loaded alongside the
// config.
func ValidatePlacements(placements []models.Placement) error {
	seen := make(map[string]bool, len(placements))
	for _, p := range placements {
		if p.Name == "" {
			return errors.New("placement with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate placement name: %s", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Reservation.HoldTTLMinutes == 0 {
		c.Reservation.HoldTTLMinutes = int(models.DefaultHoldTTL / time.Minute)
	}
	if c.Reservation.ReclaimIntervalSeconds == 0 {
		c.Reservation.ReclaimIntervalSeconds = int(models.DefaultReclaimInterval / time.Second)
	}
	if c.Reservation.CacheTTLSeconds == 0 {
		c.Reservation.CacheTTLSeconds = int(models.DefaultAvailabilityCacheTTL / time.Second)
	}
}

// HoldTTL returns the configured reservation hold duration.
func (c *Config) HoldTTL() time.Duration {
	return time.Duration(c.Reservation.HoldTTLMinutes) * time.Minute
}

// ReclaimInterval returns the reclaimer sweep period.
func (c *Config) ReclaimInterval() time.Duration {
	return time.Duration(c.Reservation.ReclaimIntervalSeconds) * time.Second
}

// CacheTTL returns the availability cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Reservation.CacheTTLSeconds) * time.Second
}
