// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the SendGrid bridge.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultTimeout = 30 * time.Second

// Fallback provider names.
const (
	ProviderSES    = "ses"
	ProviderGraph  = "msgraph"
	ProviderStdout = "stdout"
)

// Notes store names.
const (
	NotesMemory = "memory"
	NotesRedis  = "redis"
)

var (
	ErrUnknownProvider   = errors.New("unknown fallback provider")
	ErrSESIncomplete     = errors.New("SES fallback requires SES_REGION and SES_SENDER")
	ErrGraphIncomplete   = errors.New("msgraph fallback requires GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and GRAPH_SENDER")
	ErrUnknownNotesStore = errors.New("unknown notes store")
	ErrRedisURLMissing   = errors.New("redis notes store requires REDIS_URL")
	ErrInvalidTimeout    = errors.New("SENDGRID_TIMEOUT must be positive")
	ErrAuthTokenRequired = errors.New("HTTP_AUTH_TOKEN is required when HTTP_LISTEN is not a loopback address")
	ErrInvalidListen     = errors.New("invalid HTTP_LISTEN address")
)

// Config holds the complete application configuration.
type Config struct {
	SendGrid    SendGridConfig    `yaml:"sendgrid"`
	HTTP        HTTPConfig        `yaml:"http"`
	Fallback    FallbackConfig    `yaml:"fallback"`
	SES         SESConfig         `yaml:"ses"`
	Graph       GraphConfig       `yaml:"graph"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Notes       NotesConfig       `yaml:"notes"`
	Logging     LoggingConfig     `yaml:"logging"`
	Sentry      SentryConfig      `yaml:"sentry"`
}

// SendGridConfig holds the SendGrid API settings.
type SendGridConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig holds the ingress server settings. AuthToken is the bearer
// token required on /v1 routes; it may only be empty on a loopback listener.
type HTTPConfig struct {
	Listen    string `yaml:"listen"`
	AuthToken string `yaml:"auth_token"`
}

// AttachmentsConfig names the directory notification attachments are read
// from. Attachments are refused when Root is empty.
type AttachmentsConfig struct {
	Root string `yaml:"root"`
}

// FallbackConfig selects the transport used when SendGrid does not take a
// notification over.
type FallbackConfig struct {
	Provider string `yaml:"provider"`
}

// SESConfig holds AWS SES settings.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph application credentials.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// NotesConfig selects where entry notes are stored.
type NotesConfig struct {
	Store    string `yaml:"store"`
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SentryConfig holds error reporting settings.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports inconsistent settings. A missing SendGrid key is not an
// error; the gate reports it as not configured.
func (c *Config) Validate() error {
	var errs []error

	switch c.Fallback.Provider {
	case ProviderStdout:
	case ProviderSES:
		if !c.SESConfigured() {
			errs = append(errs, ErrSESIncomplete)
		}
	case ProviderGraph:
		if !c.GraphConfigured() {
			errs = append(errs, ErrGraphIncomplete)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownProvider, c.Fallback.Provider))
	}

	switch c.Notes.Store {
	case NotesMemory:
	case NotesRedis:
		if c.Notes.RedisURL == "" {
			errs = append(errs, ErrRedisURLMissing)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownNotesStore, c.Notes.Store))
	}

	if c.SendGrid.Timeout <= 0 {
		errs = append(errs, ErrInvalidTimeout)
	}

	if loopback, err := isLoopback(c.HTTP.Listen); err != nil {
		errs = append(errs, fmt.Errorf("%w %q: %v", ErrInvalidListen, c.HTTP.Listen, err))
	} else if !loopback && strings.TrimSpace(c.HTTP.AuthToken) == "" {
		errs = append(errs, ErrAuthTokenRequired)
	}

	return errors.Join(errs...)
}

// SendGridConfigured returns true if an API key is set.
func (c *Config) SendGridConfigured() bool {
	return strings.TrimSpace(c.SendGrid.APIKey) != ""
}

// SESConfigured returns true if the SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// isLoopback reports whether addr only accepts local connections. An empty
// host binds every interface.
func isLoopback(addr string) (bool, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false, err
	}
	if host == "localhost" {
		return true, nil
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback(), nil
}

func (c *Config) applyDefaults() {
	c.SendGrid.BaseURL = "https://api.sendgrid.com/v3/"
	c.SendGrid.Timeout = defaultTimeout
	c.HTTP.Listen = "127.0.0.1:8080"
	c.Fallback.Provider = ProviderStdout
	c.Notes.Store = NotesMemory
	c.Notes.Prefix = "sendgrid-bridge:notes"
	c.Logging.Level = "info"
	c.Sentry.Environment = "production"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		c.SendGrid.APIKey = v
	}
	if v := os.Getenv("SENDGRID_BASE_URL"); v != "" {
		c.SendGrid.BaseURL = v
	}
	if v := os.Getenv("SENDGRID_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SENDGRID_TIMEOUT %q: %w", v, err)
		}
		c.SendGrid.Timeout = d
	}

	if v := os.Getenv("HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v := os.Getenv("HTTP_AUTH_TOKEN"); v != "" {
		c.HTTP.AuthToken = v
	}

	if v := os.Getenv("ATTACHMENTS_ROOT"); v != "" {
		c.Attachments.Root = v
	}

	if v := os.Getenv("FALLBACK_PROVIDER"); v != "" {
		c.Fallback.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}
	if v := os.Getenv("GRAPH_SENDER"); v != "" {
		c.Graph.Sender = v
	}

	if v := os.Getenv("NOTES_STORE"); v != "" {
		c.Notes.Store = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Notes.RedisURL = v
	}
	if v := os.Getenv("NOTES_PREFIX"); v != "" {
		c.Notes.Prefix = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("SENTRY_DSN"); v != "" {
		c.Sentry.DSN = v
	}
	if v := os.Getenv("SENTRY_ENVIRONMENT"); v != "" {
		c.Sentry.Environment = v
	}
	return nil
}
