package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables bound through viper
const EnvPrefix = "CRMSIZE"

// Load loads a configuration from a YAML file into cfg
func Load(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// NewViper returns a viper instance reading CRMSIZE_* environment variables,
// e.g. CRMSIZE_AUTH_CLIENT_SECRET for auth.client_secret.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// overrides maps viper keys to the config fields they replace
var overrides = map[string]func(*Config, *viper.Viper, string){
	"service.backend":              func(c *Config, v *viper.Viper, k string) { c.Service.Backend = v.GetString(k) },
	"service.url":                  func(c *Config, v *viper.Viper, k string) { c.Service.URL = v.GetString(k) },
	"service.api_version":          func(c *Config, v *viper.Viper, k string) { c.Service.APIVersion = v.GetString(k) },
	"auth.tenant_id":               func(c *Config, v *viper.Viper, k string) { c.Auth.TenantID = v.GetString(k) },
	"auth.client_id":               func(c *Config, v *viper.Viper, k string) { c.Auth.ClientID = v.GetString(k) },
	"auth.client_secret":           func(c *Config, v *viper.Viper, k string) { c.Auth.ClientSecret = v.GetString(k) },
	"auth.token_url":               func(c *Config, v *viper.Viper, k string) { c.Auth.TokenURL = v.GetString(k) },
	"http.rate_limit":              func(c *Config, v *viper.Viper, k string) { c.HTTP.RateLimit = v.GetFloat64(k) },
	"http.request_timeout":         func(c *Config, v *viper.Viper, k string) { c.HTTP.RequestTimeout = v.GetDuration(k) },
	"scan.tables":                  func(c *Config, v *viper.Viper, k string) { c.Scan.Tables = v.GetStringSlice(k) },
	"scan.all_tables":              func(c *Config, v *viper.Viper, k string) { c.Scan.AllTables = v.GetBool(k) },
	"scan.workers":                 func(c *Config, v *viper.Viper, k string) { c.Scan.Workers = v.GetInt(k) },
	"scan.max_pages":               func(c *Config, v *viper.Viper, k string) { c.Scan.MaxPages = v.GetInt(k) },
	"scan.fail_fast":               func(c *Config, v *viper.Viper, k string) { c.Scan.FailFast = v.GetBool(k) },
	"report.type":                  func(c *Config, v *viper.Viper, k string) { c.Report.Type = v.GetString(k) },
	"report.format":                func(c *Config, v *viper.Viper, k string) { c.Report.Format = v.GetString(k) },
	"report.compression":           func(c *Config, v *viper.Viper, k string) { c.Report.Compression = v.GetString(k) },
	"report.path":                  func(c *Config, v *viper.Viper, k string) { c.Report.Path = v.GetString(k) },
	"report.dsn":                   func(c *Config, v *viper.Viper, k string) { c.Report.DSN = v.GetString(k) },
	"log.level":                    func(c *Config, v *viper.Viper, k string) { c.Log.Level = v.GetString(k) },
	"log.encoding":                 func(c *Config, v *viper.Viper, k string) { c.Log.Encoding = v.GetString(k) },
	"observability.metrics_addr":   func(c *Config, v *viper.Viper, k string) { c.Observability.MetricsAddr = v.GetString(k) },
	"observability.enable_tracing": func(c *Config, v *viper.Viper, k string) { c.Observability.EnableTracing = v.GetBool(k) },
}

// LoadViper builds the effective configuration: defaults, then the YAML file
// named by the "config" key, then any flag or environment value bound in v.
func LoadViper(v *viper.Viper) (*Config, error) {
	cfg := Default()

	if path := v.GetString("config"); path != "" {
		if err := Load(path, cfg); err != nil {
			return nil, err
		}
	}

	for key, apply := range overrides {
		if v.IsSet(key) {
			apply(cfg, v, key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
