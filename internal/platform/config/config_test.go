package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"FEED_BASE_URL":       "https://feed.example.test",
		"DATABASE_URL":        "postgres://localhost/credsync",
		"PAYLOAD_SEALING_KEY": "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(envMap(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, DefaultJobName, cfg.Sync.JobName)
	assert.Equal(t, 120*time.Minute, cfg.Sync.Lookback)
	assert.Equal(t, DefaultCronSchedule, cfg.Sync.CronSchedule)
	assert.Zero(t, cfg.Sync.InitialBackfill)
	assert.Equal(t, 1, cfg.Sync.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Sync.AdapterTimeout)
	assert.True(t, cfg.Sync.StrictTransitions)
	assert.Equal(t, 30*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, DefaultProfileTopic, cfg.Kafka.ProfileTopic)
	assert.Equal(t, ":9090", cfg.Ops.Addr)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["SYNC_LOOKBACK_MINUTES"] = "30"
	env["SYNC_INITIAL_BACKFILL"] = "48h"
	env["SYNC_CONCURRENCY"] = "8"
	env["SYNC_STRICT_TRANSITIONS"] = "false"
	env["KAFKA_BROKERS"] = "kafka-1:9092, kafka-2:9092"
	env["REDIS_URL"] = "redis://localhost:6379/0"
	env["ISSUERS"] = "Acme,gov-registry"
	env["ISSUER_ACME_URL"] = "https://acme.example.test"
	env["ISSUER_ACME_API_KEY"] = "k1"
	env["ISSUER_GOV_REGISTRY_URL"] = "https://gov.example.test"

	cfg, err := Load(envMap(env))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Sync.Lookback)
	assert.Equal(t, 48*time.Hour, cfg.Sync.InitialBackfill)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.False(t, cfg.Sync.StrictTransitions)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.KafkaEnabled())
	require.Len(t, cfg.Issuers, 2)
	assert.Equal(t, Issuer{Name: "acme", BaseURL: "https://acme.example.test", APIKey: "k1"}, cfg.Issuers[0])
	assert.Equal(t, "gov-registry", cfg.Issuers[1].Name)
	assert.Equal(t, "https://gov.example.test", cfg.Issuers[1].BaseURL)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		message string
	}{
		{"missing feed url", func(e map[string]string) { delete(e, "FEED_BASE_URL") }, "FEED_BASE_URL is required"},
		{"missing database", func(e map[string]string) { delete(e, "DATABASE_URL") }, "DATABASE_URL is required"},
		{"bad integer", func(e map[string]string) { e["SYNC_CONCURRENCY"] = "many" }, "SYNC_CONCURRENCY: invalid integer"},
		{"zero concurrency", func(e map[string]string) { e["SYNC_CONCURRENCY"] = "0" }, "SYNC_CONCURRENCY must be at least 1"},
		{"bad duration", func(e map[string]string) { e["SYNC_ADAPTER_TIMEOUT"] = "soon" }, "SYNC_ADAPTER_TIMEOUT: invalid duration"},
		{"issuer without url", func(e map[string]string) { e["ISSUERS"] = "acme" }, "ISSUER_ACME_URL is required"},
		{"both feed credentials", func(e map[string]string) {
			e["FEED_API_TOKEN"] = "t"
			e["FEED_SIGNING_KEY"] = "k"
		}, "mutually exclusive"},
		{"lock ttl with redis", func(e map[string]string) {
			e["REDIS_URL"] = "redis://localhost:6379/0"
			e["REDIS_LOCK_TTL"] = "0s"
		}, "REDIS_LOCK_TTL must be positive"},
		{"unknown log format", func(e map[string]string) { e["LOG_FORMAT"] = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			tt.mutate(env)
			_, err := Load(envMap(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
