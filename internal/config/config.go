package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataBaseURL     string        `env:"DATA_BASE_URL" validate:"required,url"`
	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`

	// Static file source.
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" validate:"gt=0"`
	FetchConcurrency int           `env:"FETCH_CONCURRENCY" validate:"gte=1,lte=64"`
	LiveTTL          time.Duration `env:"LIVE_TTL" validate:"gt=0"`

	// Selection and derivation.
	ReferenceTimezone   string        `env:"REFERENCE_TIMEZONE" validate:"required"`
	SampleTarget        int           `env:"SAMPLE_TARGET" validate:"gte=1"`
	MinLoadingDuration  time.Duration `env:"MIN_LOADING_DURATION" validate:"gte=0"`
	LiveRefreshInterval time.Duration `env:"LIVE_REFRESH_INTERVAL" validate:"gt=0"`
	DefaultCity         string        `env:"DEFAULT_CITY"`

	// Rolling-average file selection.
	RollingWindow   int `env:"ROLLING_WINDOW" validate:"gte=1"`
	RollingFromYear int `env:"ROLLING_FROM_YEAR" validate:"gte=1800"`
	RollingToYear   int `env:"ROLLING_TO_YEAR" validate:"gtefield=RollingFromYear"`

	// Optional Kafka dataset sink.
	KafkaEnabled   bool     `env:"KAFKA_ENABLED"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" validate:"required_if=KafkaEnabled true"`
	KafkaSinkTopic string   `env:"KAFKA_SINK_TOPIC" validate:"required_if=KafkaEnabled true"`
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataBaseURL:       strings.TrimSpace(os.Getenv("DATA_BASE_URL")),
		HTTPAddr:          envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		LogFormat:         envOrDefault("LOG_FORMAT", "json"),
		ReferenceTimezone: envOrDefault("REFERENCE_TIMEZONE", "Europe/Berlin"),
		DefaultCity:       os.Getenv("DEFAULT_CITY"),
		KafkaBrokers:      parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:    envOrDefault("KAFKA_SINK_TOPIC", "weather-datasets"),
	}

	var err error
	durations := []struct {
		name string
		def  string
		dst  *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
		{"FETCH_TIMEOUT", "15s", &cfg.FetchTimeout},
		{"LIVE_TTL", "10m", &cfg.LiveTTL},
		{"MIN_LOADING_DURATION", "500ms", &cfg.MinLoadingDuration},
		{"LIVE_REFRESH_INTERVAL", "5m", &cfg.LiveRefreshInterval},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.name, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		name string
		def  int
		dst  *int
	}{
		{"FETCH_CONCURRENCY", 4, &cfg.FetchConcurrency},
		{"SAMPLE_TARGET", 10000, &cfg.SampleTarget},
		{"ROLLING_WINDOW", 7, &cfg.RollingWindow},
		{"ROLLING_FROM_YEAR", 1991, &cfg.RollingFromYear},
		{"ROLLING_TO_YEAR", 2020, &cfg.RollingToYear},
	}
	for _, n := range ints {
		if *n.dst, err = parseInt(n.name, n.def); err != nil {
			return nil, err
		}
	}

	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return err
		}
		fe := verrs[0]
		if fe.Tag() == "required" || fe.Tag() == "required_if" {
			return fmt.Errorf("%s is required", fe.Field())
		}
		return fmt.Errorf("invalid %s: failed %s validation", fe.Field(), fe.Tag())
	}

	if _, err := time.LoadLocation(c.ReferenceTimezone); err != nil {
		return fmt.Errorf("invalid REFERENCE_TIMEZONE: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
