package indexer

import (
	"net/url"
	"time"
)

// Config is the indexer's configuration surface. It is built directly by
// the embedding program, not parsed from CLI flags; ConfigFromEnv below
// offers the one environment-variable-driven loader, in the familiar
// os.Getenv-plus-fallback style.
type Config struct {
	WebsocketURL string

	StartFromBlock *uint64
	EndAtBlock     *uint64

	MaxBlocksPerMinute int // 0 means unthrottled

	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig

	// Breaker, if set, is shared with New instead of building a fresh
	// CircuitBreaker from CircuitBreakerConfig. Multiple Indexer instances
	// talking to the same chain endpoint can share one breaker so that one
	// subscription's failures trip fail-fast for the other too.
	Breaker *CircuitBreaker

	ChainClient     ChainClient
	CheckpointStore CheckpointStore
	EventDecoder    EventDecoder
	RootHandler     Handler

	// PerCallTimeout bounds every individual chain-client call.
	PerCallTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults filled in; the
// caller still must set WebsocketURL, ChainClient, CheckpointStore, and
// RootHandler before calling New.
func DefaultConfig() Config {
	return Config{
		RetryConfig:          DefaultRetryConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
		EventDecoder:         PassthroughDecoder,
		PerCallTimeout:       30 * time.Second,
	}
}

// validate checks the Config invariants: a well-formed ws(s):// URL, a
// non-nil root handler, client, and store, and a sane block range.
// ConfigError is raised synchronously at build time: the engine never
// starts on a bad config.
func (c Config) validate() error {
	if c.WebsocketURL == "" {
		return newConfigError("websocket_url", "is required")
	}
	u, err := url.Parse(c.WebsocketURL)
	if err != nil {
		return newConfigError("websocket_url", "must be a valid URL: "+err.Error())
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return newConfigError("websocket_url", "must use the ws:// or wss:// scheme")
	}

	if c.StartFromBlock != nil && c.EndAtBlock != nil && *c.StartFromBlock > *c.EndAtBlock {
		return newConfigError("start_from_block", "must be <= end_at_block")
	}

	if c.MaxBlocksPerMinute < 0 {
		return newConfigError("max_blocks_per_minute", "must be >= 0 (0 disables throttling)")
	}

	if c.ChainClient == nil {
		return newConfigError("chain_client", "is required")
	}
	if c.CheckpointStore == nil {
		return newConfigError("storage_backend", "is required")
	}
	if c.RootHandler == nil {
		return newConfigError("root_handler", "is required; at least one handler or handler group")
	}

	if err := c.RetryConfig.validate(); err != nil {
		return err
	}

	return nil
}
