// Package config provides centralized configuration management for the
// service. It loads settings from environment variables with sensible
// defaults and validates everything on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"

	"github.com/finsightlab/finsight/internal/detect"
	"github.com/finsightlab/finsight/internal/resolve"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Detect   DetectConfig
	Resolve  ResolveConfig
	Extract  ExtractConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honored (default: none)
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds upload and session settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// SessionListLimit caps how many sessions a listing returns (default: 50)
	SessionListLimit int `env:"IMPORT_SESSION_LIST_LIMIT" default:"50"`
}

// DetectConfig holds column classifier thresholds.
type DetectConfig struct {
	// SampleRows is the bounded sample size for classification (default: 20)
	SampleRows int `env:"DETECT_SAMPLE_ROWS" default:"20"`

	// DateFraction is the minimum date-parse fraction for the date role (default: 0.8)
	DateFraction float64 `env:"DETECT_DATE_FRACTION" default:"0.8"`

	// NumericFraction is the minimum numeric-parse fraction for amount roles (default: 0.8)
	NumericFraction float64 `env:"DETECT_NUMERIC_FRACTION" default:"0.8"`

	// AcceptThreshold is the overall detection confidence gate (default: 0.85)
	AcceptThreshold float64 `env:"DETECT_ACCEPT_THRESHOLD" default:"0.85"`
}

// ResolveConfig holds entity and category resolution thresholds.
type ResolveConfig struct {
	// SimilarityThreshold gates fuzzy-match acceptance (default: 0.85)
	SimilarityThreshold float64 `env:"RESOLVE_SIMILARITY_THRESHOLD" default:"0.85"`

	// AutoAccept gates linking without user review (default: 0.85)
	AutoAccept float64 `env:"RESOLVE_AUTO_ACCEPT" default:"0.85"`

	// MaxAlternatives caps the ranked suggestion list (default: 3)
	MaxAlternatives int `env:"RESOLVE_MAX_ALTERNATIVES" default:"3"`
}

// ExtractConfig holds external text-extraction fallback settings.
type ExtractConfig struct {
	// Enabled turns the extraction fallback on (default: false).
	// Credentials come from GEMINI_API_KEY.
	Enabled bool `env:"EXTRACT_ENABLED" default:"false"`

	// Model is the generative model used for extraction (default: gemini-2.5-flash)
	Model string `env:"EXTRACT_MODEL" default:"gemini-2.5-flash"`

	// Timeout bounds a single extraction call (default: 10s)
	Timeout time.Duration `env:"EXTRACT_TIMEOUT" default:"10s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for the upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DetectOptions converts the thresholds into classifier options.
func (c *DetectConfig) DetectOptions() detect.Options {
	return detect.Options{
		SampleRows:      c.SampleRows,
		DateFraction:    c.DateFraction,
		NumericFraction: c.NumericFraction,
		AcceptThreshold: c.AcceptThreshold,
	}
}

// ResolveConfig builds the resolver configuration, combining the resolution
// thresholds with the extraction timeout.
func (c *Config) ResolveConfig() resolve.Config {
	return resolve.Config{
		SimilarityThreshold: c.Resolve.SimilarityThreshold,
		AutoAccept:          c.Resolve.AutoAccept,
		ExtractTimeout:      c.Extract.Timeout,
		MaxAlternatives:     c.Resolve.MaxAlternatives,
	}
}
