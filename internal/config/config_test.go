package config

import (
	"strings"
	"testing"
	"time"

	"github.com/voxrelay/server/domain/repositories"
)

func validConfig() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		DeepgramAPIKey: "test-key",
		DeepgramURL:    DefaultDeepgramURL,
		SessionSecret:  "test-secret",
		TokenTTL:       DefaultTokenTTL,
		ConnectTimeout: DefaultConnectTimeout,
		DefaultAudio: repositories.AudioConfig{
			Model:       DefaultModel,
			Language:    DefaultLanguage,
			Encoding:    DefaultEncoding,
			SampleRate:  DefaultSampleRate,
			Channels:    DefaultChannels,
			SmartFormat: true,
		},
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.Host != DefaultHost {
		t.Errorf("Expected default host %s, got %s", DefaultHost, cfg.Host)
	}
	if cfg.DeepgramURL != DefaultDeepgramURL {
		t.Errorf("Expected default deepgram URL, got %s", cfg.DeepgramURL)
	}
	if cfg.DefaultAudio.Model != DefaultModel {
		t.Errorf("Expected default model %s, got %s", DefaultModel, cfg.DefaultAudio.Model)
	}
	if cfg.DefaultAudio.SampleRate != DefaultSampleRate {
		t.Errorf("Expected default sample rate %d, got %d", DefaultSampleRate, cfg.DefaultAudio.SampleRate)
	}
	if !cfg.DefaultAudio.SmartFormat {
		t.Error("Expected smart format enabled by default")
	}
	if cfg.TokenTTL != DefaultTokenTTL {
		t.Errorf("Expected default token TTL %s, got %s", DefaultTokenTTL, cfg.TokenTTL)
	}
}

func TestLoadGeneratesSessionSecret(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("SESSION_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SessionSecret == "" {
		t.Error("Expected a generated session secret")
	}
	if len(cfg.SessionSecret) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(cfg.SessionSecret))
	}

	other, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if other.SessionSecret == cfg.SessionSecret {
		t.Error("Generated secrets should differ between loads")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("STT_MODEL", "nova-2")
	t.Setenv("STT_LANGUAGE", "nl")
	t.Setenv("STT_SAMPLE_RATE", "44100")
	t.Setenv("STT_SMART_FORMAT", "false")
	t.Setenv("UPSTREAM_CONNECT_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if cfg.DefaultAudio.Model != "nova-2" {
		t.Errorf("Expected model nova-2, got %s", cfg.DefaultAudio.Model)
	}
	if cfg.DefaultAudio.Language != "nl" {
		t.Errorf("Expected language nl, got %s", cfg.DefaultAudio.Language)
	}
	if cfg.DefaultAudio.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", cfg.DefaultAudio.SampleRate)
	}
	if cfg.DefaultAudio.SmartFormat {
		t.Error("Expected smart format disabled")
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("Expected connect timeout 3s, got %s", cfg.ConnectTimeout)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Expected Load to fail without an API key")
	}
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("STT_SMART_FORMAT", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Expected fallback to default port, got %d", cfg.Port)
	}
	if !cfg.DefaultAudio.SmartFormat {
		t.Error("Expected fallback to default smart format")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Port = 0 },
			wantErr: "port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "empty host",
			mutate:  func(c *Config) { c.Host = "" },
			wantErr: "host",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.DeepgramAPIKey = "" },
			wantErr: "DEEPGRAM_API_KEY",
		},
		{
			name:    "empty deepgram url",
			mutate:  func(c *Config) { c.DeepgramURL = "" },
			wantErr: "deepgram URL",
		},
		{
			name:    "token ttl too short",
			mutate:  func(c *Config) { c.TokenTTL = time.Second },
			wantErr: "token TTL",
		},
		{
			name:    "connect timeout too short",
			mutate:  func(c *Config) { c.ConnectTimeout = time.Millisecond },
			wantErr: "connect timeout",
		},
		{
			name:    "sample rate too low",
			mutate:  func(c *Config) { c.DefaultAudio.SampleRate = 4000 },
			wantErr: "sample rate",
		},
		{
			name:    "sample rate too high",
			mutate:  func(c *Config) { c.DefaultAudio.SampleRate = 96000 },
			wantErr: "sample rate",
		},
		{
			name:    "bad channels",
			mutate:  func(c *Config) { c.DefaultAudio.Channels = 3 },
			wantErr: "channels",
		},
		{
			name:    "empty model",
			mutate:  func(c *Config) { c.DefaultAudio.Model = "" },
			wantErr: "model",
		},
		{
			name:    "empty encoding",
			mutate:  func(c *Config) { c.DefaultAudio.Encoding = "" },
			wantErr: "encoding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 8081

	if got := cfg.Addr(); got != "127.0.0.1:8081" {
		t.Errorf("Expected 127.0.0.1:8081, got %s", got)
	}
}
