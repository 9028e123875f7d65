package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventFilter_Matches(t *testing.T) {
	ev := ChainEvent{Pallet: "balances", Variant: "Transfer", Index: 0}

	t.Run("all events matches anything", func(t *testing.T) {
		assert.True(t, AllEvents().Matches(ev))
	})

	t.Run("pallet filter matches same pallet regardless of variant", func(t *testing.T) {
		assert.True(t, PalletEvents("balances").Matches(ev))
		assert.False(t, PalletEvents("system").Matches(ev))
	})

	t.Run("exact filter requires both pallet and variant", func(t *testing.T) {
		assert.True(t, ExactEvent("balances", "Transfer").Matches(ev))
		assert.False(t, ExactEvent("balances", "Deposit").Matches(ev))
		assert.False(t, ExactEvent("system", "Transfer").Matches(ev))
	})

	t.Run("filters are case sensitive", func(t *testing.T) {
		assert.False(t, PalletEvents("Balances").Matches(ev))
	})
}

func TestContext_PipelineData(t *testing.T) {
	ctx := newContext(42, "0xabc")

	t.Run("missing key fails soft", func(t *testing.T) {
		v, ok := GetPipelineData[int](ctx, "missing")
		assert.False(t, ok)
		assert.Equal(t, 0, v)
	})

	t.Run("round trips a stored value", func(t *testing.T) {
		ctx.SetPipelineData("count", 7)
		v, ok := GetPipelineData[int](ctx, "count")
		assert.True(t, ok)
		assert.Equal(t, 7, v)
	})

	t.Run("type mismatch fails soft instead of panicking", func(t *testing.T) {
		ctx.SetPipelineData("count", 7)
		v, ok := GetPipelineData[string](ctx, "count")
		assert.False(t, ok)
		assert.Equal(t, "", v)
	})

	t.Run("last write wins on key collision", func(t *testing.T) {
		ctx.SetPipelineData("k", "first")
		ctx.SetPipelineData("k", "second")
		v, ok := GetPipelineData[string](ctx, "k")
		assert.True(t, ok)
		assert.Equal(t, "second", v)
	})
}

func TestRetryConfig_Validate(t *testing.T) {
	t.Run("default config is valid", func(t *testing.T) {
		assert.NoError(t, DefaultRetryConfig().validate())
	})

	t.Run("negative max retries is rejected", func(t *testing.T) {
		cfg := DefaultRetryConfig()
		cfg.MaxRetries = -1
		assert.True(t, IsConfigError(cfg.validate()))
	})

	t.Run("initial delay exceeding max delay is rejected", func(t *testing.T) {
		cfg := DefaultRetryConfig()
		cfg.InitialDelay = cfg.MaxDelay + 1
		assert.True(t, IsConfigError(cfg.validate()))
	})

	t.Run("sub-1.0 backoff multiplier is rejected", func(t *testing.T) {
		cfg := DefaultRetryConfig()
		cfg.BackoffMultiplier = 0.5
		assert.True(t, IsConfigError(cfg.validate()))
	})
}
