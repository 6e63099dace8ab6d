package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://data.example.com/weather/"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_BASE_URL", testBaseURL)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testBaseURL, cfg.DataBaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.LiveTTL)
	assert.Equal(t, "Europe/Berlin", cfg.ReferenceTimezone)
	assert.Equal(t, 10000, cfg.SampleTarget)
	assert.Equal(t, 500*time.Millisecond, cfg.MinLoadingDuration)
	assert.Equal(t, 5*time.Minute, cfg.LiveRefreshInterval)
	assert.Equal(t, 7, cfg.RollingWindow)
	assert.Equal(t, 1991, cfg.RollingFromYear)
	assert.Equal(t, 2020, cfg.RollingToYear)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "weather-datasets", cfg.KafkaSinkTopic)
	assert.Empty(t, cfg.DefaultCity)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_BASE_URL", testBaseURL)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("FETCH_CONCURRENCY", "8")
	t.Setenv("LIVE_TTL", "2m")
	t.Setenv("REFERENCE_TIMEZONE", "UTC")
	t.Setenv("SAMPLE_TARGET", "500")
	t.Setenv("MIN_LOADING_DURATION", "0s")
	t.Setenv("LIVE_REFRESH_INTERVAL", "1m")
	t.Setenv("ROLLING_WINDOW", "31")
	t.Setenv("ROLLING_FROM_YEAR", "1961")
	t.Setenv("ROLLING_TO_YEAR", "1990")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("DEFAULT_CITY", "Berlin")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 8, cfg.FetchConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.LiveTTL)
	assert.Equal(t, "UTC", cfg.ReferenceTimezone)
	assert.Equal(t, 500, cfg.SampleTarget)
	assert.Equal(t, time.Duration(0), cfg.MinLoadingDuration)
	assert.Equal(t, time.Minute, cfg.LiveRefreshInterval)
	assert.Equal(t, 31, cfg.RollingWindow)
	assert.Equal(t, 1961, cfg.RollingFromYear)
	assert.Equal(t, 1990, cfg.RollingToYear)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "Berlin", cfg.DefaultCity)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing base url", env: map[string]string{"DATA_BASE_URL": ""}, wantErr: "DATA_BASE_URL is required"},
		{name: "base url not a url", env: map[string]string{"DATA_BASE_URL": "not a url"}, wantErr: "DATA_BASE_URL"},
		{name: "bad shutdown timeout", env: map[string]string{"SHUTDOWN_TIMEOUT": "not-a-duration"}, wantErr: "SHUTDOWN_TIMEOUT"},
		{name: "negative shutdown timeout", env: map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, wantErr: "SHUTDOWN_TIMEOUT"},
		{name: "zero live ttl", env: map[string]string{"LIVE_TTL": "0s"}, wantErr: "LIVE_TTL"},
		{name: "concurrency too low", env: map[string]string{"FETCH_CONCURRENCY": "0"}, wantErr: "FETCH_CONCURRENCY"},
		{name: "concurrency not a number", env: map[string]string{"FETCH_CONCURRENCY": "many"}, wantErr: "FETCH_CONCURRENCY"},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}, wantErr: "LOG_LEVEL"},
		{name: "bad log format", env: map[string]string{"LOG_FORMAT": "xml"}, wantErr: "LOG_FORMAT"},
		{name: "unknown zone", env: map[string]string{"REFERENCE_TIMEZONE": "Mars/Olympus"}, wantErr: "REFERENCE_TIMEZONE"},
		{name: "zero sample target", env: map[string]string{"SAMPLE_TARGET": "0"}, wantErr: "SAMPLE_TARGET"},
		{name: "reversed rolling years", env: map[string]string{"ROLLING_FROM_YEAR": "2020", "ROLLING_TO_YEAR": "1991"}, wantErr: "ROLLING_TO_YEAR"},
		{name: "bad kafka flag", env: map[string]string{"KAFKA_ENABLED": "perhaps"}, wantErr: "KAFKA_ENABLED"},
		{name: "kafka without brokers", env: map[string]string{"KAFKA_ENABLED": "true", "KAFKA_BROKERS": ","}, wantErr: "KAFKA_BROKERS is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATA_BASE_URL", testBaseURL)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_KafkaBrokersIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("DATA_BASE_URL", testBaseURL)
	t.Setenv("KAFKA_BROKERS", ",")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, parseBrokers(" a:1 ,, b:2 "))
	assert.Nil(t, parseBrokers(""))
}
