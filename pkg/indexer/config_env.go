package indexer

import (
	"os"
	"strconv"
	"time"
)

// ConfigFromEnv reads the subset of Config that commonly varies per
// deployment from environment variables, falling back to DefaultConfig's
// values when unset: os.Getenv with a hardcoded fallback, no flag parsing,
// no config-file format. Callers still need to attach ChainClient,
// CheckpointStore, and RootHandler themselves; EventDecoder keeps
// DefaultConfig's PassthroughDecoder unless replaced.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("INDEXER_WEBSOCKET_URL"); v != "" {
		cfg.WebsocketURL = v
	}

	if v := os.Getenv("INDEXER_START_FROM_BLOCK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.StartFromBlock = &n
		}
	}

	if v := os.Getenv("INDEXER_END_AT_BLOCK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.EndAtBlock = &n
		}
	}

	if v := os.Getenv("INDEXER_MAX_BLOCKS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxBlocksPerMinute = n
		}
	}

	if v := os.Getenv("INDEXER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryConfig.MaxRetries = n
		}
	}

	if v := os.Getenv("INDEXER_INITIAL_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryConfig.InitialDelay = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("INDEXER_MAX_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryConfig.MaxDelay = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("INDEXER_CIRCUIT_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.CircuitBreakerConfig.FailureThreshold = uint32(n)
		}
	}

	if v := os.Getenv("INDEXER_CIRCUIT_BREAKER_RESET_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CircuitBreakerConfig.ResetTimeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("INDEXER_PER_CALL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PerCallTimeout = time.Duration(n) * time.Second
		}
	}

	return cfg
}
