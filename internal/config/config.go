// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the service configuration.
type Config struct {
	Service       ServiceConfig
	Locale        LocaleConfig
	STT           STTConfig
	Device        DeviceConfig
	SessionLimits SessionLimitsConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener addresses and the service identity.
type ServiceConfig struct {
	Principal string
	GRPCPort  string
	HTTPAddr  string
}

// LocaleConfig holds the configured recognition language.
type LocaleConfig struct {
	// Language is used until File provides one.
	Language string
	// File is an optional YAML file with a "language" key, watched for changes.
	File string
	// LanguageUnavailableSupported is false on platforms without a dedicated
	// language-unavailable error code.
	LanguageUnavailableSupported bool
}

// STTConfig selects and configures the speech-to-text provider.
type STTConfig struct {
	Provider        string // "mock" or "google"
	SampleRateHz    int
	InterimResults  bool
	AudioEncoding   string
	MaxAlternatives int
	MockDelay       time.Duration
}

// DeviceConfig holds the timeouts of the input producer.
type DeviceConfig struct {
	NoInputTimeout time.Duration
	StopGrace      time.Duration
}

// SessionLimitsConfig bounds a single listening session.
type SessionLimitsConfig struct {
	MaxAudioBytes int64
	MaxDuration   time.Duration
	MaxPartials   int
}

// KafkaConfig configures result publishing.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	QueueSize    int           // results buffered ahead of the broker
	Timeout      time.Duration // per publish
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // "json" or "console"
	LogFile   string
}

// Load reads the configuration from the environment. Unset or unparsable
// values fall back to defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-recognition-bridge")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
		},
		Locale: LocaleConfig{
			Language:                     envOrDefault("LOCALE_LANGUAGE", "en-US"),
			File:                         os.Getenv("LOCALE_FILE"),
			LanguageUnavailableSupported: envOrDefaultBool("LANGUAGE_UNAVAILABLE_SUPPORTED", true),
		},
		STT: STTConfig{
			Provider:        envOrDefault("STT_PROVIDER", "mock"),
			SampleRateHz:    envOrDefaultInt("STT_SAMPLE_RATE_HZ", 8000),
			InterimResults:  envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:   envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			MaxAlternatives: envOrDefaultInt("STT_MAX_ALTERNATIVES", 3),
			MockDelay:       envOrDefaultDuration("STT_MOCK_DELAY", 50*time.Millisecond),
		},
		Device: DeviceConfig{
			NoInputTimeout: envOrDefaultDuration("NO_INPUT_TIMEOUT", 5*time.Second),
			StopGrace:      envOrDefaultDuration("STOP_GRACE", 2*time.Second),
		},
		SessionLimits: SessionLimitsConfig{
			MaxAudioBytes: envOrDefaultInt64("SESSION_MAX_AUDIO_BYTES", 5*1024*1024),
			MaxDuration:   envOrDefaultDuration("SESSION_MAX_DURATION", 5*time.Minute),
			MaxPartials:   envOrDefaultInt("SESSION_MAX_PARTIALS", 500),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      splitList(os.Getenv("KAFKA_BROKERS")),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "recognition.result.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "recognition.result.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
			QueueSize:    envOrDefaultInt("KAFKA_QUEUE_SIZE", 1024),
			Timeout:      envOrDefaultDuration("KAFKA_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
			LogFile:   os.Getenv("LOG_FILE"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
