// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`
	// TrustProxy makes the client IP come from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy" split_words:"true"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL              string        `yaml:"url"`
	MaxConns         int32         `yaml:"max_conns" split_words:"true"`
	StatementTimeout time.Duration `yaml:"statement_timeout" split_words:"true"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // restriction-set cache ttl
}

type SecurityConfig struct {
	KeyPepper     string        `yaml:"key_pepper" split_words:"true"`
	EncryptionKey string        `yaml:"encryption_key" split_words:"true"`
	TokenSecret   string        `yaml:"token_secret" split_words:"true"`
	TokenTTL      time.Duration `yaml:"token_ttl" split_words:"true"`
}

type RateLimitRule struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type AbuseConfig struct {
	FailureWindow    time.Duration `yaml:"failure_window" split_words:"true"`
	FailureThreshold int           `yaml:"failure_threshold" split_words:"true"`
}

type EventsConfig struct {
	Workers         int           `yaml:"workers"`
	Queue           int           `yaml:"queue"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" split_words:"true"`
	KafkaBrokers    []string      `yaml:"kafka_brokers" split_words:"true"`
	KafkaTopic      string        `yaml:"kafka_topic" split_words:"true"`
}

type SchedulerConfig struct {
	ExpiryCheckCron string `yaml:"expiry_check_cron" split_words:"true"`
	RetentionCron   string `yaml:"retention_cron" split_words:"true"`
	RetentionDays   int    `yaml:"retention_days" split_words:"true"`
}

type Config struct {
	HTTP       HTTPConfig                     `yaml:"http"`
	Log        LogConfig                      `yaml:"log"`
	Database   DatabaseConfig                 `yaml:"database"`
	Redis      RedisConfig                    `yaml:"redis"`
	Security   SecurityConfig                 `yaml:"security"`
	RateLimits map[string]RateLimitRule       `yaml:"rate_limits" ignored:"true"`
	Tiers      map[string]map[string][]string `yaml:"tiers" ignored:"true"`
	Abuse      AbuseConfig                    `yaml:"abuse"`
	Events     EventsConfig                   `yaml:"events"`
	Scheduler  SchedulerConfig                `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-" ignored:"true"`
}

// DefaultRateLimits are applied for endpoint classes missing from the config.
func DefaultRateLimits() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"validate":    {MaxRequests: 10, Window: 60 * time.Second},
		"deactivate":  {MaxRequests: 10, Window: 60 * time.Second},
		"status":      {MaxRequests: 30, Window: 60 * time.Second},
		"activations": {MaxRequests: 30, Window: 60 * time.Second},
		"download":    {MaxRequests: 5, Window: 300 * time.Second},
		"default":     {MaxRequests: 60, Window: 60 * time.Second},
	}
}

// LoadConfig reads the YAML file at path, applies LICENSE_<SECTION>_<FIELD>
// environment overrides, fills defaults and validates required settings.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := envconfig.Process("license", cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML without touching the environment.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 5 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.StatementTimeout <= 0 {
		cfg.Database.StatementTimeout = 3 * time.Second
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Security.TokenTTL <= 0 {
		cfg.Security.TokenTTL = 72 * time.Hour
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimitRule{}
	}
	for class, rule := range DefaultRateLimits() {
		if r, ok := cfg.RateLimits[class]; !ok || r.MaxRequests <= 0 || r.Window <= 0 {
			cfg.RateLimits[class] = rule
		}
	}
	if cfg.Abuse.FailureWindow <= 0 {
		cfg.Abuse.FailureWindow = time.Hour
	}
	if cfg.Abuse.FailureThreshold <= 0 {
		cfg.Abuse.FailureThreshold = 20
	}
	if cfg.Events.Workers <= 0 {
		cfg.Events.Workers = 4
	}
	if cfg.Events.Queue <= 0 {
		cfg.Events.Queue = 1024
	}
	if cfg.Events.DeliveryTimeout <= 0 {
		cfg.Events.DeliveryTimeout = 5 * time.Second
	}
	if cfg.Events.KafkaTopic == "" {
		cfg.Events.KafkaTopic = "license-events"
	}
	if cfg.Scheduler.ExpiryCheckCron == "" {
		cfg.Scheduler.ExpiryCheckCron = "@every 1h"
	}
	if cfg.Scheduler.RetentionCron == "" {
		cfg.Scheduler.RetentionCron = "@daily"
	}
	if cfg.Scheduler.RetentionDays <= 0 {
		cfg.Scheduler.RetentionDays = 90
	}
}

// Validate checks the settings the service cannot start without.
func (cfg *Config) Validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if len(cfg.Security.KeyPepper) < 16 {
		return errors.New("security.key_pepper must be at least 16 bytes")
	}
	if n := len(cfg.Security.EncryptionKey); n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24 or 32 bytes; got %d", n)
	}
	if _, err := cron.ParseStandard(cfg.Scheduler.ExpiryCheckCron); err != nil {
		return fmt.Errorf("scheduler.expiry_check_cron: %w", err)
	}
	if _, err := cron.ParseStandard(cfg.Scheduler.RetentionCron); err != nil {
		return fmt.Errorf("scheduler.retention_cron: %w", err)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Minute
	}
	return d
}
