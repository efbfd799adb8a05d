// Package config loads server configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Zero values are replaced by Default.
type Config struct {
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
	Tracing     Tracing     `yaml:"tracing"`
	OCR         OCR         `yaml:"ocr"`
	Analysis    Analysis    `yaml:"analysis"`
	OTP         OTP         `yaml:"otp"`
	Visual      Visual      `yaml:"visual"`
	Certificate Certificate `yaml:"certificate"`
	Redis       RedisConfig `yaml:"redis"`
	Postgres    Postgres    `yaml:"postgres"`
	Attestation Attestation `yaml:"attestation"`
	Session     Session     `yaml:"session"`
	Pseudonym   Pseudonym   `yaml:"pseudonym"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr" env:"CERTPROOF_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CERTPROOF_SHUTDOWN_TIMEOUT"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"CERTPROOF_MAX_UPLOAD_BYTES"`
}

type Logging struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // text or json
}

// Tracing is opt-in: an empty endpoint keeps the no-op provider.
type Tracing struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

// OCR configures the tesseract recognizer.
type OCR struct {
	Binary        string        `yaml:"binary" env:"OCR_TESSERACT_BIN"`
	Languages     string        `yaml:"languages" env:"OCR_LANGUAGES"`
	SlowThreshold time.Duration `yaml:"slow_threshold" env:"OCR_SLOW_THRESHOLD"`
	// Timeout bounds the recognizer process. It must exceed SlowThreshold.
	Timeout time.Duration `yaml:"timeout" env:"OCR_TIMEOUT"`
}

// Analysis configures the remote document-analysis collaborator.
type Analysis struct {
	Provider         string        `yaml:"provider" env:"ANALYSIS_PROVIDER"` // http, anthropic or none
	URL              string        `yaml:"url" env:"ANALYSIS_URL"`
	APIKey           string        `yaml:"api_key" env:"ANALYSIS_API_KEY"`
	Model            string        `yaml:"model" env:"ANALYSIS_MODEL"`
	Timeout          time.Duration `yaml:"timeout" env:"ANALYSIS_TIMEOUT"`
	FailureThreshold int           `yaml:"failure_threshold" env:"ANALYSIS_BREAKER_FAILURES"`
	SuccessThreshold int           `yaml:"success_threshold" env:"ANALYSIS_BREAKER_SUCCESSES"`
	Cooldown         time.Duration `yaml:"cooldown" env:"ANALYSIS_BREAKER_COOLDOWN"`
}

type OTP struct {
	URL     string        `yaml:"url" env:"OTP_URL"`
	APIKey  string        `yaml:"api_key" env:"OTP_API_KEY"`
	Purpose string        `yaml:"purpose" env:"OTP_PURPOSE"`
	Timeout time.Duration `yaml:"timeout" env:"OTP_TIMEOUT"`
}

// Visual configures the mobile-money screenshot analyzer.
type Visual struct {
	Provider string        `yaml:"provider" env:"VISUAL_PROVIDER"` // http, anthropic or none
	URL      string        `yaml:"url" env:"VISUAL_URL"`
	APIKey   string        `yaml:"api_key" env:"VISUAL_API_KEY"`
	Model    string        `yaml:"model" env:"VISUAL_MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"VISUAL_TIMEOUT"`
}

type Certificate struct {
	URL          string        `yaml:"url" env:"CERTIFICATE_URL"`
	APIKey       string        `yaml:"api_key" env:"CERTIFICATE_API_KEY"`
	Timeout      time.Duration `yaml:"timeout" env:"CERTIFICATE_TIMEOUT"`
	KafkaBrokers []string      `yaml:"kafka_brokers" env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string        `yaml:"kafka_topic" env:"KAFKA_TOPIC"`

	// KafkaPartitions is used when the topic is created at startup.
	KafkaPartitions int32 `yaml:"kafka_partitions" env:"KAFKA_PARTITIONS"`
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url" env:"REDIS_URL"`
	PoolSize     int           `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT"`
	SnapshotTTL  time.Duration `yaml:"snapshot_ttl" env:"REDIS_SNAPSHOT_TTL"`
}

// Postgres holds the results database DSN. Empty keeps results in memory.
type Postgres struct {
	DSN      string `yaml:"dsn" env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS"`
}

type Attestation struct {
	SigningKey string        `yaml:"signing_key" env:"ATTESTATION_SIGNING_KEY"`
	Issuer     string        `yaml:"issuer" env:"ATTESTATION_ISSUER"`
	TTL        time.Duration `yaml:"ttl" env:"ATTESTATION_TTL"`
}

// Session controls session lifetime and the abandoned-session sweep.
type Session struct {
	IdleTTL   time.Duration `yaml:"idle_ttl" env:"SESSION_IDLE_TTL"`
	SweepSpec string        `yaml:"sweep_spec" env:"SESSION_SWEEP_SPEC"`
}

type Pseudonym struct {
	Key string `yaml:"key" env:"PSEUDONYM_KEY"`
}

const devSecret = "dev-secret-key-change-in-production"

// Default returns the development configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  10 << 20,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Tracing: Tracing{ServiceName: "certproof"},
		OCR: OCR{
			Binary:        "tesseract",
			Languages:     "fra+eng",
			SlowThreshold: 30 * time.Second,
			Timeout:       2 * time.Minute,
		},
		Analysis: Analysis{
			Provider:         "none",
			Model:            "claude-sonnet-4-5",
			Timeout:          20 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Cooldown:         30 * time.Second,
		},
		OTP:    OTP{Purpose: "phone_certification", Timeout: 10 * time.Second},
		Visual: Visual{Provider: "none", Model: "claude-sonnet-4-5", Timeout: 30 * time.Second},
		Certificate: Certificate{
			Timeout:         15 * time.Second,
			KafkaTopic:      "certproof.certifications",
			KafkaPartitions: 3,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			SnapshotTTL:  time.Hour,
		},
		Postgres:    Postgres{MaxConns: 10},
		Attestation: Attestation{SigningKey: devSecret, Issuer: "certproof", TTL: 15 * time.Minute},
		Session:     Session{IdleTTL: 30 * time.Minute, SweepSpec: "@every 1m"},
		Pseudonym:   Pseudonym{Key: devSecret},
	}
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	if c.OCR.Timeout <= c.OCR.SlowThreshold {
		return fmt.Errorf("ocr.timeout (%s) must exceed ocr.slow_threshold (%s)", c.OCR.Timeout, c.OCR.SlowThreshold)
	}
	switch c.Analysis.Provider {
	case "none":
	case "http":
		if c.Analysis.URL == "" {
			return errors.New("analysis.url is required for the http provider")
		}
	case "anthropic":
		if c.Analysis.APIKey == "" {
			return errors.New("analysis.api_key is required for the anthropic provider")
		}
	default:
		return fmt.Errorf("unknown analysis provider %q", c.Analysis.Provider)
	}
	switch c.Visual.Provider {
	case "none", "anthropic", "http":
	default:
		return fmt.Errorf("unknown visual provider %q", c.Visual.Provider)
	}
	if c.Attestation.SigningKey == "" {
		return errors.New("attestation.signing_key is required")
	}
	return nil
}
