// Package config loads relay configuration from the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/voxrelay/server/domain/repositories"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8081
	DefaultDeepgramURL    = "wss://api.deepgram.com/v1/listen"
	DefaultModel          = "nova-3"
	DefaultLanguage       = "en"
	DefaultEncoding       = "linear16"
	DefaultSampleRate     = 16000
	DefaultChannels       = 1
	DefaultTokenTTL       = time.Hour
	DefaultConnectTimeout = 10 * time.Second
)

// Config holds the complete relay configuration.
type Config struct {
	Host string
	Port int

	// DeepgramAPIKey authenticates the outbound provider connection.
	DeepgramAPIKey string
	// DeepgramURL is the provider's live transcription endpoint.
	DeepgramURL string

	// SessionSecret signs session JWTs. Generated at boot when unset,
	// which invalidates outstanding tokens across restarts.
	SessionSecret string
	TokenTTL      time.Duration

	// ConnectTimeout bounds the provider WebSocket handshake.
	ConnectTimeout time.Duration

	// DefaultAudio is the stream configuration used when the client does
	// not override it with query parameters.
	DefaultAudio repositories.AudioConfig
}

// Load reads configuration from environment variables, applying defaults
// and validating the result.
func Load() (*Config, error) {
	cfg := &Config{
		Host:           envString("HOST", DefaultHost),
		Port:           envInt("PORT", DefaultPort),
		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramURL:    envString("DEEPGRAM_URL", DefaultDeepgramURL),
		SessionSecret:  os.Getenv("SESSION_SECRET"),
		TokenTTL:       envDuration("SESSION_TOKEN_TTL", DefaultTokenTTL),
		ConnectTimeout: envDuration("UPSTREAM_CONNECT_TIMEOUT", DefaultConnectTimeout),
		DefaultAudio: repositories.AudioConfig{
			Model:       envString("STT_MODEL", DefaultModel),
			Language:    envString("STT_LANGUAGE", DefaultLanguage),
			Encoding:    envString("STT_ENCODING", DefaultEncoding),
			SampleRate:  envInt("STT_SAMPLE_RATE", DefaultSampleRate),
			Channels:    envInt("STT_CHANNELS", DefaultChannels),
			SmartFormat: envBool("STT_SMART_FORMAT", true),
		},
	}

	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}

	if c.DeepgramURL == "" {
		return fmt.Errorf("deepgram URL cannot be empty")
	}

	if c.TokenTTL < time.Minute {
		return fmt.Errorf("token TTL must be at least 1 minute, got %s", c.TokenTTL)
	}

	if c.ConnectTimeout < time.Second {
		return fmt.Errorf("connect timeout must be at least 1 second, got %s", c.ConnectTimeout)
	}

	if c.DefaultAudio.SampleRate < 8000 || c.DefaultAudio.SampleRate > 48000 {
		return fmt.Errorf("sample rate must be between 8000 and 48000, got %d", c.DefaultAudio.SampleRate)
	}

	if c.DefaultAudio.Channels < 1 || c.DefaultAudio.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.DefaultAudio.Channels)
	}

	if c.DefaultAudio.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if c.DefaultAudio.Encoding == "" {
		return fmt.Errorf("encoding cannot be empty")
	}

	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
