// Package config provides the unified configuration for crmsize.
// A single Config structure describes how to reach the CRM, how the
// transport behaves, how scans are run and where reports go.
//
// The configuration is organized into logical sections:
//   - Service: CRM endpoint and backend selection
//   - Auth: OAuth2 client credentials
//   - HTTP: transport timeouts, rate limiting and circuit breaking
//   - Reliability: throttling retries
//   - Scan: tables, parallelism and page limits
//   - Report: sink selection and sink-specific settings
//   - Log / Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Service.URL = "https://contoso.crm.dynamics.com"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/udssoftware/crmsize/pkg/logger"
)

// Backend names accepted in Service.Backend
const (
	BackendWebAPI = "webapi"
	BackendMemory = "memory"
)

// Config is the root configuration structure
type Config struct {
	Service       ServiceConfig       `yaml:"service" json:"service" mapstructure:"service"`
	Auth          AuthConfig          `yaml:"auth" json:"auth" mapstructure:"auth"`
	HTTP          HTTPConfig          `yaml:"http" json:"http" mapstructure:"http"`
	Reliability   ReliabilityConfig   `yaml:"reliability" json:"reliability" mapstructure:"reliability"`
	Scan          ScanConfig          `yaml:"scan" json:"scan" mapstructure:"scan"`
	Report        ReportConfig        `yaml:"report" json:"report" mapstructure:"report"`
	Log           logger.Config       `yaml:"log" json:"log" mapstructure:"log"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// ServiceConfig locates the CRM organization
type ServiceConfig struct {
	// Backend selects the CRM implementation (webapi or memory)
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`
	// URL is the organization root, e.g. https://contoso.crm.dynamics.com
	URL string `yaml:"url" json:"url" mapstructure:"url"`
	// APIVersion is the Web API version segment
	APIVersion string `yaml:"api_version" json:"api_version" mapstructure:"api_version"`
	// Language is the LCID used when no user localized label exists (0 = any)
	Language int `yaml:"language" json:"language" mapstructure:"language"`
}

// AuthConfig holds OAuth2 client credentials
type AuthConfig struct {
	TenantID     string `yaml:"tenant_id" json:"tenant_id" mapstructure:"tenant_id"`
	ClientID     string `yaml:"client_id" json:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"-" mapstructure:"client_secret"`
	// TokenURL overrides the tenant token endpoint
	TokenURL string   `yaml:"token_url" json:"token_url" mapstructure:"token_url"`
	Scopes   []string `yaml:"scopes" json:"scopes" mapstructure:"scopes"`
}

// HTTPConfig configures the Web API transport
type HTTPConfig struct {
	RequestTimeout      time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout"`
	DialTimeout         time.Duration `yaml:"dial_timeout" json:"dial_timeout" mapstructure:"dial_timeout"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	EnableHTTP2         bool          `yaml:"enable_http2" json:"enable_http2" mapstructure:"enable_http2"`
	// RateLimit is requests per second (0 = unlimited)
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst" mapstructure:"rate_burst"`

	CircuitBreaker   bool          `yaml:"circuit_breaker" json:"circuit_breaker" mapstructure:"circuit_breaker"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold" mapstructure:"success_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout" json:"breaker_timeout" mapstructure:"breaker_timeout"`
}

// ReliabilityConfig controls retries of throttled requests.
// CRM faults are never retried.
type ReliabilityConfig struct {
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
	RetryMultiplier float64       `yaml:"retry_multiplier" json:"retry_multiplier" mapstructure:"retry_multiplier"`
	MaxRetryDelay   time.Duration `yaml:"max_retry_delay" json:"max_retry_delay" mapstructure:"max_retry_delay"`
}

// ScanConfig controls multi-page, multi-table scans
type ScanConfig struct {
	Tables    []string `yaml:"tables" json:"tables" mapstructure:"tables"`
	AllTables bool     `yaml:"all_tables" json:"all_tables" mapstructure:"all_tables"`
	Workers   int      `yaml:"workers" json:"workers" mapstructure:"workers"`
	// MaxPages stops a table after this many pages (0 = until exhausted)
	MaxPages int           `yaml:"max_pages" json:"max_pages" mapstructure:"max_pages"`
	FailFast bool          `yaml:"fail_fast" json:"fail_fast" mapstructure:"fail_fast"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// ReportConfig selects and configures the report sink
type ReportConfig struct {
	// Type is one of none, file, s3, gcs, bigquery, sql, kafka
	Type string `yaml:"type" json:"type" mapstructure:"type"`
	// Format is json, jsonl or csv for file-like sinks
	Format string `yaml:"format" json:"format" mapstructure:"format"`
	// Compression is none, gzip, zstd, snappy or lz4 for file-like sinks
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
	Path        string `yaml:"path" json:"path" mapstructure:"path"`

	Bucket          string `yaml:"bucket" json:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix" mapstructure:"prefix"`
	Region          string `yaml:"region" json:"region" mapstructure:"region"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" mapstructure:"credentials_file"`

	Project string `yaml:"project" json:"project" mapstructure:"project"`
	Dataset string `yaml:"dataset" json:"dataset" mapstructure:"dataset"`
	Table   string `yaml:"table" json:"table" mapstructure:"table"`

	// Driver is pgx, mysql or snowflake for the sql sink
	Driver string `yaml:"driver" json:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" json:"-" mapstructure:"dsn"`

	Brokers []string `yaml:"brokers" json:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" json:"topic" mapstructure:"topic"`
}

// ObservabilityConfig contains metrics and tracing settings
type ObservabilityConfig struct {
	// MetricsAddr serves /metrics when set, e.g. :9090
	MetricsAddr       string  `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
	EnableTracing     bool    `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
	ServiceName       string  `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
	Environment       string  `yaml:"environment" json:"environment" mapstructure:"environment"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Backend:    BackendWebAPI,
			APIVersion: "9.2",
		},
		HTTP: HTTPConfig{
			RequestTimeout:      2 * time.Minute,
			DialTimeout:         30 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 16,
			EnableHTTP2:         true,
			RateLimit:           10,
			RateBurst:           5,
			CircuitBreaker:      true,
			FailureThreshold:    5,
			SuccessThreshold:    2,
			BreakerTimeout:      30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      2 * time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   5 * time.Minute,
		},
		Scan: ScanConfig{
			Workers: runtime.NumCPU(),
			Timeout: time.Hour,
		},
		Report: ReportConfig{
			Type:        "none",
			Format:      "json",
			Compression: "none",
		},
		Log: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Observability: ObservabilityConfig{
			TracingSampleRate: 1.0,
			ServiceName:       "crmsize",
			Environment:       "production",
		},
	}
}

// Validate validates the configuration for correctness.
// It checks the ranges of every section; service credentials are checked
// separately by ValidateService because the memory backend needs none.
func (c *Config) Validate() error {
	switch c.Service.Backend {
	case BackendWebAPI, BackendMemory:
	default:
		return fmt.Errorf("service.backend must be %q or %q, got %q", BackendWebAPI, BackendMemory, c.Service.Backend)
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit cannot be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst <= 0 {
		return fmt.Errorf("http.rate_burst must be positive when rate limiting")
	}
	if c.HTTP.CircuitBreaker && c.HTTP.FailureThreshold <= 0 {
		return fmt.Errorf("http.failure_threshold must be positive")
	}
	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("reliability.retry_attempts cannot be negative")
	}
	if c.Scan.Workers < 0 {
		return fmt.Errorf("scan.workers cannot be negative")
	}
	if c.Scan.MaxPages < 0 {
		return fmt.Errorf("scan.max_pages cannot be negative")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("observability.tracing_sample_rate must be within [0, 1]")
	}
	return c.Report.Validate()
}

// ValidateService checks the settings needed to reach the Web API
func (c *Config) ValidateService() error {
	if c.Service.Backend != BackendWebAPI {
		return nil
	}
	if c.Service.URL == "" {
		return fmt.Errorf("service.url is required")
	}
	if !strings.HasPrefix(c.Service.URL, "https://") && !strings.HasPrefix(c.Service.URL, "http://") {
		return fmt.Errorf("service.url must be an http(s) URL")
	}
	if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
		return fmt.Errorf("auth.client_id and auth.client_secret are required")
	}
	if c.Auth.TenantID == "" && c.Auth.TokenURL == "" {
		return fmt.Errorf("auth.tenant_id or auth.token_url is required")
	}
	return nil
}

// Validate checks that the selected sink has what it needs
func (r *ReportConfig) Validate() error {
	switch r.Format {
	case "", "json", "jsonl", "csv":
	default:
		return fmt.Errorf("report.format %q is not supported", r.Format)
	}

	switch r.Type {
	case "", "none":
		return nil
	case "file":
		if r.Path == "" {
			return fmt.Errorf("report.path is required for the file sink")
		}
	case "s3", "gcs":
		if r.Bucket == "" {
			return fmt.Errorf("report.bucket is required for the %s sink", r.Type)
		}
	case "bigquery":
		if r.Project == "" || r.Dataset == "" || r.Table == "" {
			return fmt.Errorf("report.project, report.dataset and report.table are required for the bigquery sink")
		}
	case "sql":
		if r.Driver == "" || r.DSN == "" {
			return fmt.Errorf("report.driver and report.dsn are required for the sql sink")
		}
	case "kafka":
		if len(r.Brokers) == 0 || r.Topic == "" {
			return fmt.Errorf("report.brokers and report.topic are required for the kafka sink")
		}
	default:
		return fmt.Errorf("report.type %q is not supported", r.Type)
	}
	return nil
}

// GetWorkers returns the number of scan workers, ensuring it's at least 1
func (s *ScanConfig) GetWorkers() int {
	if s.Workers <= 0 {
		return runtime.NumCPU()
	}
	return s.Workers
}

// ResolveTokenURL returns the OAuth2 token endpoint
func (a *AuthConfig) ResolveTokenURL() string {
	if a.TokenURL != "" {
		return a.TokenURL
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", a.TenantID)
}

// ResolveScopes returns the configured scopes or the organization default scope
func (c *Config) ResolveScopes() []string {
	if len(c.Auth.Scopes) > 0 {
		return c.Auth.Scopes
	}
	return []string{strings.TrimRight(c.Service.URL, "/") + "/.default"}
}
