package config

import (
	"strings"
	"testing"
	"time"
)

func baseProdConfig() *Config {
	return &Config{
		IsProduction: true,
		Server: ServerConfig{
			BindAddress:    "127.0.0.1",
			Port:           "8080",
			AllowOrigins:   "https://cryptbin.example.com",
			MaxUploadBytes: 100 * 1024 * 1024,
		},
		Storage: StorageConfig{
			ChunkTTL: 24 * time.Hour,
		},
		Auth: AuthConfig{
			JWTSecret: strings.Repeat("x", 32),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: false,
		},
	}
}

func TestValidate_ProductionRequiresJWTSecret(t *testing.T) {
	cfg := baseProdConfig()
	cfg.Auth.JWTSecret = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET validation error, got: %v", err)
	}
}

func TestValidate_ProductionRejectsShortJWTSecret(t *testing.T) {
	cfg := baseProdConfig()
	cfg.Auth.JWTSecret = "short"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "32 characters") {
		t.Fatalf("expected secret length validation error, got: %v", err)
	}
}

func TestValidate_ProductionMetricsRequireTokenWhenEnabled(t *testing.T) {
	cfg := baseProdConfig()
	cfg.Observability.MetricsEnabled = true
	cfg.Observability.MetricsToken = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "METRICS_TOKEN") {
		t.Fatalf("expected METRICS_TOKEN validation error, got: %v", err)
	}
}

func TestValidate_ProductionMetricsEnabledWithTokenPasses(t *testing.T) {
	cfg := baseProdConfig()
	cfg.Observability.MetricsEnabled = true
	cfg.Observability.MetricsToken = "metrics-secret"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to validate, got: %v", err)
	}
}

func TestValidate_RejectsEmptyBindAddress(t *testing.T) {
	cfg := baseProdConfig()
	cfg.Server.BindAddress = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SERVER_BIND_ADDRESS") {
		t.Fatalf("expected SERVER_BIND_ADDRESS validation error, got: %v", err)
	}
}

func TestValidate_RejectsInvalidPort(t *testing.T) {
	for _, port := range []string{"", "abc", "0", "70000"} {
		cfg := baseProdConfig()
		cfg.Server.Port = port

		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "SERVER_PORT") {
			t.Fatalf("port %q: expected SERVER_PORT validation error, got: %v", port, err)
		}
	}
}

func TestValidate_RejectsNonPositiveUploadLimit(t *testing.T) {
	cfg := baseProdConfig()
	cfg.Server.MaxUploadBytes = 0

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "MAX_UPLOAD_BYTES") {
		t.Fatalf("expected MAX_UPLOAD_BYTES validation error, got: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"ENVIRONMENT", "SERVER_PORT", "MAX_UPLOAD_BYTES", "CHUNK_TTL_HOURS", "METRICS_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.IsProduction {
		t.Fatalf("expected development mode by default")
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("default port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes != 100*1024*1024 {
		t.Fatalf("default upload limit = %d, want 100MB", cfg.Server.MaxUploadBytes)
	}
	if cfg.Storage.ChunkTTL != 24*time.Hour {
		t.Fatalf("default chunk TTL = %v, want 24h", cfg.Storage.ChunkTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default development config should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("CHUNK_TTL_HOURS", "2")

	cfg := Load()
	if cfg.Server.Port != "9999" {
		t.Fatalf("port = %q, want 9999", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes != 1024 {
		t.Fatalf("upload limit = %d, want 1024", cfg.Server.MaxUploadBytes)
	}
	if cfg.Storage.ChunkTTL != 2*time.Hour {
		t.Fatalf("chunk TTL = %v, want 2h", cfg.Storage.ChunkTTL)
	}
}
