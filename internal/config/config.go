package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root runtime configuration. Values come from the YAML file
// with environment variables overriding the secrets and endpoints that vary
// per deployment.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	NATS struct {
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		Subject       string `yaml:"subject"`
		DetectSubject string `yaml:"detect_subject"`
		EventsSubject string `yaml:"events_subject"`
	} `yaml:"nats"`

	Storage struct {
		Endpoint  string `yaml:"endpoint"`
		Region    string `yaml:"region"`
		Bucket    string `yaml:"bucket"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		PathStyle bool   `yaml:"path_style"`
	} `yaml:"storage"`

	Processing struct {
		Workers           int     `yaml:"workers"`
		TargetFPS         int     `yaml:"target_fps"`
		DetectorThreshold float64 `yaml:"detector_threshold"`
		DetectTimeoutMs   int     `yaml:"detect_timeout_ms"`
		LeaseTTLMs        int     `yaml:"lease_ttl_ms"`
		MaxAttempts       int     `yaml:"max_attempts"`
		RetryBackoffMs    int     `yaml:"retry_backoff_ms"`
	} `yaml:"processing"`

	Alerting struct {
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	} `yaml:"alerting"`

	Auth struct {
		JWTSigningKey string `yaml:"jwt_signing_key"`
	} `yaml:"auth"`
}

// Load reads the YAML file at path, applies defaults and env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "MEDIA_JOBS"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "media.process"
	}
	if c.NATS.DetectSubject == "" {
		c.NATS.DetectSubject = "detect.frames"
	}
	if c.NATS.EventsSubject == "" {
		c.NATS.EventsSubject = "alerts.events"
	}
	if c.Processing.Workers <= 0 {
		c.Processing.Workers = 4
	}
	if c.Processing.TargetFPS <= 0 {
		c.Processing.TargetFPS = 1
	}
	if c.Processing.DetectorThreshold <= 0 {
		c.Processing.DetectorThreshold = 0.6
	}
	if c.Processing.DetectTimeoutMs <= 0 {
		c.Processing.DetectTimeoutMs = 5000
	}
	if c.Processing.LeaseTTLMs <= 0 {
		c.Processing.LeaseTTLMs = 120000
	}
	if c.Processing.MaxAttempts <= 0 {
		c.Processing.MaxAttempts = 3
	}
	if c.Processing.RetryBackoffMs <= 0 {
		c.Processing.RetryBackoffMs = 500
	}
	if c.Alerting.ConfidenceThreshold <= 0 {
		c.Alerting.ConfidenceThreshold = 0.7
	}
}

func (c *Config) applyEnv() {
	override(&c.Database.Host, "DB_HOST")
	override(&c.Database.Port, "DB_PORT")
	override(&c.Database.User, "DB_USER")
	override(&c.Database.Password, "DB_PASSWORD")
	override(&c.Database.Name, "DB_NAME")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.NATS.URL, "NATS_URL")
	override(&c.Storage.Endpoint, "STORAGE_ENDPOINT")
	override(&c.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	override(&c.Storage.SecretKey, "STORAGE_SECRET_KEY")
	override(&c.Auth.JWTSigningKey, "JWT_SIGNING_KEY")
	override(&c.Server.Port, "PORT")
}

func override(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// DatabaseURL builds the lib/pq connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host,
		c.Database.Port, c.Database.Name, c.Database.SSLMode)
}

func (c *Config) DetectTimeout() time.Duration {
	return time.Duration(c.Processing.DetectTimeoutMs) * time.Millisecond
}

func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Processing.LeaseTTLMs) * time.Millisecond
}

func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Processing.RetryBackoffMs) * time.Millisecond
}
