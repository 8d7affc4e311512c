package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"cisline/internal/blob"
	"cisline/internal/domain"
)

// Config models cisline.yml. Every field can be overridden from the
// environment; env wins over the file.
type Config struct {
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Blob      Blob      `yaml:"blob"`
	Audit     Audit     `yaml:"audit"`
	Telemetry Telemetry `yaml:"telemetry"`
	Webhooks  []Webhook `yaml:"webhooks"`
}

type Server struct {
	Addr string `yaml:"addr" env:"CISLINE_ADDR"`
	// JWTSecret enables bearer auth (HS256). Keep it out of the file.
	JWTSecret string `yaml:"-" env:"CISLINE_JWT_SECRET"`
	// AllowHeaderActor accepts X-Actor-Id as the principal; for local use.
	AllowHeaderActor bool `yaml:"allow_header_actor" env:"CISLINE_ALLOW_HEADER_ACTOR"`
	// CheckEmailRate is requests per second allowed on /api/user/check-email.
	CheckEmailRate  float64       `yaml:"check_email_rate" env:"CISLINE_CHECK_EMAIL_RATE"`
	CheckEmailBurst int           `yaml:"check_email_burst" env:"CISLINE_CHECK_EMAIL_BURST"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"CISLINE_MAX_UPLOAD_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CISLINE_SHUTDOWN_TIMEOUT"`
}

type Log struct {
	Level  string `yaml:"level" env:"CISLINE_LOG_LEVEL"`
	Format string `yaml:"format" env:"CISLINE_LOG_FORMAT"`
}

type Blob struct {
	Driver string `yaml:"driver" env:"CISLINE_BLOB_DRIVER"`
	Root   string `yaml:"root" env:"CISLINE_BLOB_ROOT"`
	S3     S3     `yaml:"s3"`
}

type S3 struct {
	Bucket    string `yaml:"bucket" env:"CISLINE_BLOB_S3_BUCKET"`
	Region    string `yaml:"region" env:"CISLINE_BLOB_S3_REGION"`
	Endpoint  string `yaml:"endpoint" env:"CISLINE_BLOB_S3_ENDPOINT"`
	Prefix    string `yaml:"prefix" env:"CISLINE_BLOB_S3_PREFIX"`
	PathStyle bool   `yaml:"path_style" env:"CISLINE_BLOB_S3_PATH_STYLE"`
}

type Audit struct {
	Buffer          int           `yaml:"buffer" env:"CISLINE_AUDIT_BUFFER"`
	MaxTries        uint          `yaml:"max_tries" env:"CISLINE_AUDIT_MAX_TRIES"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"CISLINE_AUDIT_INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"CISLINE_AUDIT_MAX_INTERVAL"`
	// Wait bounds how long a mutation waits for its audit events; 0 disables.
	Wait time.Duration `yaml:"wait" env:"CISLINE_AUDIT_WAIT"`
}

type Telemetry struct {
	Enabled     bool    `yaml:"enabled" env:"CISLINE_OTEL_ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"CISLINE_OTEL_ENDPOINT"`
	Insecure    bool    `yaml:"insecure" env:"CISLINE_OTEL_INSECURE"`
	ServiceName string  `yaml:"service_name" env:"CISLINE_OTEL_SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"CISLINE_OTEL_SAMPLE_RATIO"`
}

// Webhook forwards new audit events at or above MinImportance to URL.
type Webhook struct {
	ID            string            `yaml:"id"`
	URL           string            `yaml:"url"`
	Secret        string            `yaml:"secret"`
	MinImportance domain.Importance `yaml:"min_importance"`
	Disabled      bool              `yaml:"disabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.CheckEmailRate < 0 || c.Server.CheckEmailBurst < 0 {
		return fmt.Errorf("config.server.check_email_rate and check_email_burst must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("config.blob.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("config.blob.driver must be fs, memory or s3")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config.telemetry.sample_ratio must be within [0,1]")
	}
	seen := map[string]bool{}
	for i, h := range c.Webhooks {
		if h.ID == "" {
			return fmt.Errorf("config.webhooks[%d].id is required", i)
		}
		if seen[h.ID] {
			return fmt.Errorf("duplicate webhook id %s", h.ID)
		}
		seen[h.ID] = true
		u, err := url.Parse(h.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook %s: url must be absolute http(s)", h.ID)
		}
		if h.MinImportance != "" && !h.MinImportance.Valid() {
			return fmt.Errorf("webhook %s: min_importance must be LOW, MIDDLE or HIGH", h.ID)
		}
	}
	return nil
}

// BlobConfig converts the blob section for blob.Open.
func (c *Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		Root:   c.Blob.Root,
		S3: blob.S3Config{
			Bucket:    c.Blob.S3.Bucket,
			Region:    c.Blob.S3.Region,
			Endpoint:  c.Blob.S3.Endpoint,
			Prefix:    c.Blob.S3.Prefix,
			PathStyle: c.Blob.S3.PathStyle,
		},
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cisline.yml")
}

// GenerateDefault returns the default config YAML for a workspace.
func GenerateDefault(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return fmt.Sprintf(defaultTemplate, filepath.ToSlash(filepath.Join(workspace, ".cisline", "blobs")))
}

// Default returns the built-in configuration for a workspace.
func Default(workspace string) *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault(workspace)), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// Load reads cisline.yml over the defaults, applies env overrides and validates.
// A missing file is not an error.
func Load(workspace string) (*Config, error) {
	cfg := Default(workspace)
	data, err := os.ReadFile(Path(workspace))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config yaml: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from CISLINE_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}

// FromYAML parses raw YAML over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  allow_header_actor: false
  check_email_rate: 5
  check_email_burst: 10
  max_upload_bytes: 33554432
  shutdown_timeout: 10s

log:
  level: info
  format: console

blob:
  driver: fs
  root: %s
  s3:
    region: us-east-1
    path_style: false

audit:
  buffer: 1024
  max_tries: 5
  initial_interval: 50ms
  max_interval: 2s
  wait: 2s

telemetry:
  enabled: false
  endpoint: localhost:4318
  insecure: true
  service_name: cisline
  sample_ratio: 1

webhooks: []
`
