// Package config loads the gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider kinds selectable via ASR_API_PROVIDER.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderGroq       = "groq"
	ProviderWyoming    = "wyoming-whisper"
	ProviderMock       = "mock"
)

// Config is the process-wide configuration, loaded once at startup and
// never mutated afterwards.
type Config struct {
	Service       ServiceConfig
	ASR           ASRConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the process and its listen ports.
type ServiceConfig struct {
	Principal   string
	Port        string
	MetricsPort string
}

// ASRConfig selects and parameterizes the recognition backend.
type ASRConfig struct {
	Provider    string
	APIKey      string
	WyomingHost string
	WyomingPort int
	Timeout     time.Duration
}

// KafkaConfig configures optional transcript event publishing.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// ObservabilityConfig tunes logging only; no behavioral change.
type ObservabilityConfig struct {
	Debug bool
	Env   string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:   envOrDefault("SERVICE_PRINCIPAL", "svc-asr-gateway"),
			Port:        envOrDefault("PORT", "8080"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		ASR: ASRConfig{
			// Devices in the field sometimes ship the value with shell
			// quoting intact; strip it rather than failing startup.
			Provider:    strings.Trim(envOrDefault("ASR_API_PROVIDER", ProviderGroq), `"'`),
			APIKey:      os.Getenv("ASR_API_KEY"),
			WyomingHost: envOrDefault("WYOMING_HOST", "localhost"),
			WyomingPort: envInt("WYOMING_PORT", 10300),
			Timeout:     envDuration("ASR_TIMEOUT", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled: envBool("KAFKA_ENABLED", false),
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "asr.transcripts.final"),
		},
		Observability: ObservabilityConfig{
			Debug: envBool("DEBUG", false),
			Env:   envOrDefault("ENV", "production"),
		},
	}
}

// Validate checks that exactly the fields the selected provider needs are
// present. The process must not start serving with an invalid provider
// configuration.
func (c *Config) Validate() error {
	switch c.ASR.Provider {
	case ProviderElevenLabs, ProviderGroq:
		if c.ASR.APIKey == "" {
			return fmt.Errorf("provider %q requires ASR_API_KEY", c.ASR.Provider)
		}
	case ProviderWyoming:
		if c.ASR.WyomingHost == "" {
			return fmt.Errorf("provider %q requires WYOMING_HOST", c.ASR.Provider)
		}
		if c.ASR.WyomingPort < 1 || c.ASR.WyomingPort > 65535 {
			return fmt.Errorf("provider %q requires a valid WYOMING_PORT, got %d", c.ASR.Provider, c.ASR.WyomingPort)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("invalid ASR_API_PROVIDER %q", c.ASR.Provider)
	}
	if c.ASR.Timeout <= 0 {
		return fmt.Errorf("ASR_TIMEOUT must be positive, got %v", c.ASR.Timeout)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "t", "yes":
			return true
		case "false", "0", "f", "no":
			return false
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
