package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allEnvVars = []string{
	"SENDGRID_API_KEY", "SENDGRID_BASE_URL", "SENDGRID_TIMEOUT",
	"HTTP_LISTEN", "HTTP_AUTH_TOKEN", "ATTACHMENTS_ROOT", "FALLBACK_PROVIDER",
	"SES_REGION", "SES_ACCESS_KEY_ID", "SES_SECRET_ACCESS_KEY", "SES_SENDER",
	"GRAPH_TENANT_ID", "GRAPH_CLIENT_ID", "GRAPH_CLIENT_SECRET", "GRAPH_SENDER",
	"NOTES_STORE", "REDIS_URL", "NOTES_PREFIX",
	"LOG_LEVEL", "SENTRY_DSN", "SENTRY_ENVIRONMENT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		t.Setenv(env, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SendGrid.BaseURL != "https://api.sendgrid.com/v3/" {
		t.Errorf("SendGrid.BaseURL: got %q", cfg.SendGrid.BaseURL)
	}
	if cfg.SendGrid.Timeout != 30*time.Second {
		t.Errorf("SendGrid.Timeout: got %v, want 30s", cfg.SendGrid.Timeout)
	}
	if cfg.SendGridConfigured() {
		t.Error("SendGridConfigured: got true with no key")
	}
	if cfg.HTTP.Listen != "127.0.0.1:8080" {
		t.Errorf("HTTP.Listen: got %q, want %q", cfg.HTTP.Listen, "127.0.0.1:8080")
	}
	if cfg.HTTP.AuthToken != "" || cfg.Attachments.Root != "" {
		t.Errorf("HTTP.AuthToken / Attachments.Root: got %q / %q, want empty", cfg.HTTP.AuthToken, cfg.Attachments.Root)
	}
	if cfg.Fallback.Provider != ProviderStdout {
		t.Errorf("Fallback.Provider: got %q, want %q", cfg.Fallback.Provider, ProviderStdout)
	}
	if cfg.Notes.Store != NotesMemory {
		t.Errorf("Notes.Store: got %q, want %q", cfg.Notes.Store, NotesMemory)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: unexpected error: %v", err)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENDGRID_API_KEY", "SG.test")
	t.Setenv("SENDGRID_BASE_URL", "http://localhost:9000/v3/")
	t.Setenv("SENDGRID_TIMEOUT", "5s")
	t.Setenv("HTTP_LISTEN", ":9090")
	t.Setenv("HTTP_AUTH_TOKEN", "s3cret")
	t.Setenv("ATTACHMENTS_ROOT", "/var/lib/forms/uploads")
	t.Setenv("FALLBACK_PROVIDER", "SES")
	t.Setenv("SES_REGION", "us-east-1")
	t.Setenv("SES_SENDER", "ses@example.com")
	t.Setenv("NOTES_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("NOTES_PREFIX", "forms:notes")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SENTRY_DSN", "https://key@sentry.example.com/1")
	t.Setenv("SENTRY_ENVIRONMENT", "staging")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SendGrid.APIKey != "SG.test" || !cfg.SendGridConfigured() {
		t.Errorf("SendGrid.APIKey: got %q", cfg.SendGrid.APIKey)
	}
	if cfg.SendGrid.BaseURL != "http://localhost:9000/v3/" {
		t.Errorf("SendGrid.BaseURL: got %q", cfg.SendGrid.BaseURL)
	}
	if cfg.SendGrid.Timeout != 5*time.Second {
		t.Errorf("SendGrid.Timeout: got %v, want 5s", cfg.SendGrid.Timeout)
	}
	if cfg.HTTP.Listen != ":9090" {
		t.Errorf("HTTP.Listen: got %q", cfg.HTTP.Listen)
	}
	if cfg.HTTP.AuthToken != "s3cret" {
		t.Errorf("HTTP.AuthToken: got %q", cfg.HTTP.AuthToken)
	}
	if cfg.Attachments.Root != "/var/lib/forms/uploads" {
		t.Errorf("Attachments.Root: got %q", cfg.Attachments.Root)
	}
	if cfg.Fallback.Provider != ProviderSES {
		t.Errorf("Fallback.Provider: got %q, want %q", cfg.Fallback.Provider, ProviderSES)
	}
	if cfg.Notes.Store != NotesRedis || cfg.Notes.RedisURL != "redis://localhost:6379/0" || cfg.Notes.Prefix != "forms:notes" {
		t.Errorf("Notes: got %+v", cfg.Notes)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Sentry.DSN == "" || cfg.Sentry.Environment != "staging" {
		t.Errorf("Sentry: got %+v", cfg.Sentry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: unexpected error: %v", err)
	}
}

func TestLoad_InvalidTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENDGRID_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid SENDGRID_TIMEOUT")
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	content := `
sendgrid:
  api_key: "SG.from-yaml"
  timeout: 10s
http:
  listen: ":7070"
  auth_token: "yaml-token"
attachments:
  root: "/srv/uploads"
fallback:
  provider: "ses"
ses:
  region: "eu-west-1"
  sender: "forms@example.com"
logging:
  level: "warn"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SendGrid.APIKey != "SG.from-yaml" {
		t.Errorf("SendGrid.APIKey: got %q", cfg.SendGrid.APIKey)
	}
	if cfg.SendGrid.Timeout != 10*time.Second {
		t.Errorf("SendGrid.Timeout: got %v, want 10s", cfg.SendGrid.Timeout)
	}
	if cfg.SendGrid.BaseURL != "https://api.sendgrid.com/v3/" {
		t.Errorf("SendGrid.BaseURL default lost: got %q", cfg.SendGrid.BaseURL)
	}
	if cfg.HTTP.Listen != ":7070" || cfg.HTTP.AuthToken != "yaml-token" {
		t.Errorf("HTTP: got %+v", cfg.HTTP)
	}
	if cfg.Attachments.Root != "/srv/uploads" {
		t.Errorf("Attachments.Root: got %q", cfg.Attachments.Root)
	}
	if !cfg.SESConfigured() {
		t.Errorf("SESConfigured: got false for %+v", cfg.SES)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level: got %q", cfg.Logging.Level)
	}
}

func TestLoadFromFile_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENDGRID_API_KEY", "SG.from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sendgrid:\n  api_key: SG.from-yaml\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SendGrid.APIKey != "SG.from-env" {
		t.Errorf("SendGrid.APIKey: got %q, want env value", cfg.SendGrid.APIKey)
	}
}

func TestLoadFromFile_FileNotFound(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("sendgrid: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   []error
	}{
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.Fallback.Provider = "smtp" },
			want:   []error{ErrUnknownProvider},
		},
		{
			name:   "ses without sender",
			mutate: func(c *Config) { c.Fallback.Provider = ProviderSES; c.SES.Region = "us-east-1" },
			want:   []error{ErrSESIncomplete},
		},
		{
			name: "graph missing secret",
			mutate: func(c *Config) {
				c.Fallback.Provider = ProviderGraph
				c.Graph = GraphConfig{TenantID: "t", ClientID: "c", Sender: "s@example.com"}
			},
			want: []error{ErrGraphIncomplete},
		},
		{
			name:   "redis without url",
			mutate: func(c *Config) { c.Notes.Store = NotesRedis },
			want:   []error{ErrRedisURLMissing},
		},
		{
			name:   "public listener without token",
			mutate: func(c *Config) { c.HTTP.Listen = ":8080" },
			want:   []error{ErrAuthTokenRequired},
		},
		{
			name:   "all interfaces without token",
			mutate: func(c *Config) { c.HTTP.Listen = "0.0.0.0:8080" },
			want:   []error{ErrAuthTokenRequired},
		},
		{
			name:   "listen without port",
			mutate: func(c *Config) { c.HTTP.Listen = "localhost" },
			want:   []error{ErrInvalidListen},
		},
		{
			name: "several problems",
			mutate: func(c *Config) {
				c.Notes.Store = "sqlite"
				c.SendGrid.Timeout = 0
			},
			want: []error{ErrUnknownNotesStore, ErrInvalidTimeout},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("error %v does not wrap %v", err, want)
				}
			}
		})
	}
}

func TestGraphConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv("FALLBACK_PROVIDER", "msgraph")
	t.Setenv("GRAPH_TENANT_ID", "tid-123")
	t.Setenv("GRAPH_CLIENT_ID", "cid-456")
	t.Setenv("GRAPH_CLIENT_SECRET", "csecret-789")
	t.Setenv("GRAPH_SENDER", "noreply@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.GraphConfigured() {
		t.Errorf("GraphConfigured: got false for %+v", cfg.Graph)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: unexpected error: %v", err)
	}
}

func TestValidate_LoopbackListeners(t *testing.T) {
	for _, listen := range []string{"127.0.0.1:8080", "localhost:8080", "[::1]:8080"} {
		t.Run(listen, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			cfg.HTTP.Listen = listen

			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate: unexpected error: %v", err)
			}
		})
	}

	cfg := &Config{}
	cfg.applyDefaults()
	cfg.HTTP.Listen = ":8080"
	cfg.HTTP.AuthToken = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with token: unexpected error: %v", err)
	}
}
