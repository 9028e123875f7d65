package indexer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnv_FallsBackToDefaultsWhenUnset(t *testing.T) {
	cfg := ConfigFromEnv()
	assert.Equal(t, DefaultRetryConfig(), cfg.RetryConfig)
	assert.Equal(t, DefaultCircuitBreakerConfig(), cfg.CircuitBreakerConfig)
}

func TestConfigFromEnv_ReadsOverrides(t *testing.T) {
	t.Setenv("INDEXER_WEBSOCKET_URL", "wss://override.example/ws")
	t.Setenv("INDEXER_MAX_BLOCKS_PER_MINUTE", "30")
	t.Setenv("INDEXER_MAX_RETRIES", "7")
	t.Setenv("INDEXER_INITIAL_DELAY_MS", "50")
	t.Setenv("INDEXER_CIRCUIT_BREAKER_THRESHOLD", "9")

	cfg := ConfigFromEnv()

	assert.Equal(t, "wss://override.example/ws", cfg.WebsocketURL)
	assert.Equal(t, 30, cfg.MaxBlocksPerMinute)
	assert.Equal(t, 7, cfg.RetryConfig.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryConfig.InitialDelay)
	assert.Equal(t, uint32(9), cfg.CircuitBreakerConfig.FailureThreshold)
}

func TestConfigFromEnv_IgnoresUnparsableValues(t *testing.T) {
	t.Setenv("INDEXER_MAX_RETRIES", "not-a-number")
	cfg := ConfigFromEnv()
	assert.Equal(t, DefaultRetryConfig().MaxRetries, cfg.RetryConfig.MaxRetries)
}
