package indexer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChainClient serves a fixed, in-memory chain: blocks[i] is block i.
// SubscribeFinalized is never exercised by the catch-up-only tests below, so
// it just returns an already-closed notification channel and an error
// channel that never delivers.
type fakeChainClient struct {
	mu     sync.Mutex
	blocks []BlockNotification
	tip    uint64
}

func newFakeChainClient(blocks []BlockNotification) *fakeChainClient {
	return &fakeChainClient{blocks: blocks, tip: uint64(len(blocks) - 1)}
}

func (f *fakeChainClient) GetFinalizedTip(ctx context.Context) (BlockRef, error) {
	return f.blocks[f.tip].Block, nil
}

func (f *fakeChainClient) GetBlockAt(ctx context.Context, blockNumber uint64) (BlockRef, []RawEvent, error) {
	if blockNumber >= uint64(len(f.blocks)) {
		return BlockRef{}, nil, fmt.Errorf("no such block %d", blockNumber)
	}
	b := f.blocks[blockNumber]
	return b.Block, b.Events, nil
}

func (f *fakeChainClient) SubscribeFinalized(ctx context.Context) (<-chan BlockNotification, <-chan error, error) {
	ch := make(chan BlockNotification)
	errCh := make(chan error)
	close(ch)
	return ch, errCh, nil
}

// memCheckpointStore is an in-memory CheckpointStore for tests.
type memCheckpointStore struct {
	mu      sync.Mutex
	value   uint64
	hasSave bool
	saves   []uint64
}

func (m *memCheckpointStore) Load(ctx context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.hasSave, nil
}

func (m *memCheckpointStore) Save(ctx context.Context, blockNumber uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = blockNumber
	m.hasSave = true
	m.saves = append(m.saves, blockNumber)
	return nil
}

func (m *memCheckpointStore) Close(ctx context.Context) error { return nil }

// countingHandler counts every event it sees across the whole run.
type countingHandler struct {
	BaseHandler
	mu    sync.Mutex
	count int
}

func (h *countingHandler) EventFilter() EventFilter { return AllEvents() }
func (h *countingHandler) Name() string             { return "counter" }

func (h *countingHandler) HandleEvent(ctx context.Context, event ChainEvent, blockCtx *Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	return nil
}

func rawXY() []RawEvent {
	return []RawEvent{
		{Pallet: "A", Variant: "X", Payload: []byte("x")},
		{Pallet: "A", Variant: "Y", Payload: []byte("y")},
	}
}

// Catch-up from zero across three blocks, with EndAtBlock set so no live
// subscription is entered.
func TestIndexer_CatchUpFromZero(t *testing.T) {
	blocks := []BlockNotification{
		{Block: BlockRef{Number: 0, Hash: "0x0"}, Events: rawXY()},
		{Block: BlockRef{Number: 1, Hash: "0x1"}, Events: rawXY()},
		{Block: BlockRef{Number: 2, Hash: "0x2"}, Events: rawXY()},
	}
	client := newFakeChainClient(blocks)
	store := &memCheckpointStore{}
	counter := &countingHandler{}

	endAt := uint64(2)
	cfg := DefaultConfig()
	cfg.WebsocketURL = "wss://example/chain"
	cfg.ChainClient = client
	cfg.CheckpointStore = store
	cfg.RootHandler = counter
	cfg.EndAtBlock = &endAt

	eng, err := New(cfg)
	require.NoError(t, err)

	err = eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, counter.count)
	assert.Equal(t, uint64(2), store.value)
	assert.Equal(t, []uint64{0, 1, 2}, store.saves)
}

// Resume: a pre-existing checkpoint skips already-processed blocks.
func TestIndexer_ResumesFromCheckpoint(t *testing.T) {
	blocks := []BlockNotification{
		{Block: BlockRef{Number: 0, Hash: "0x0"}, Events: rawXY()},
		{Block: BlockRef{Number: 1, Hash: "0x1"}, Events: rawXY()},
		{Block: BlockRef{Number: 2, Hash: "0x2"}, Events: rawXY()},
	}
	client := newFakeChainClient(blocks)
	store := &memCheckpointStore{value: 0, hasSave: true}
	counter := &countingHandler{}

	endAt := uint64(2)
	cfg := DefaultConfig()
	cfg.WebsocketURL = "wss://example/chain"
	cfg.ChainClient = client
	cfg.CheckpointStore = store
	cfg.RootHandler = counter
	cfg.EndAtBlock = &endAt

	eng, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))

	// Blocks 1 and 2 only: block 0 was already checkpointed.
	assert.Equal(t, 4, counter.count)
	assert.Equal(t, []uint64{1, 2}, store.saves)
}

// A handler filter restricts which events are delivered.
func TestIndexer_AppliesEventFilter(t *testing.T) {
	blocks := []BlockNotification{
		{Block: BlockRef{Number: 0, Hash: "0x0"}, Events: []RawEvent{
			{Pallet: "balances", Variant: "Transfer"},
			{Pallet: "system", Variant: "Remarked"},
		}},
	}
	client := newFakeChainClient(blocks)
	store := &memCheckpointStore{}

	var seen []string
	handler := HandlerFunc{
		FilterFn: func() EventFilter { return PalletEvents("balances") },
		EventFn: func(ctx context.Context, event ChainEvent, blockCtx *Context) error {
			seen = append(seen, event.Variant)
			return nil
		},
		NameStr: "balances_only",
	}

	endAt := uint64(0)
	cfg := DefaultConfig()
	cfg.WebsocketURL = "wss://example/chain"
	cfg.ChainClient = client
	cfg.CheckpointStore = store
	cfg.RootHandler = handler
	cfg.EndAtBlock = &endAt

	eng, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))

	assert.Equal(t, []string{"Transfer"}, seen)
}

// An undecodable event is skipped (non-fatal default policy) and the block
// is still checkpointed; remaining events in the block still run.
func TestIndexer_SkipsUndecodableEventsByDefault(t *testing.T) {
	blocks := []BlockNotification{
		{Block: BlockRef{Number: 0, Hash: "0x0"}, Events: []RawEvent{
			{Pallet: "A", Variant: "X"},
			{Pallet: "A", Variant: "Y"},
		}},
	}
	client := newFakeChainClient(blocks)
	store := &memCheckpointStore{}
	counter := &countingHandler{}

	cfg := DefaultConfig()
	cfg.WebsocketURL = "wss://example/chain"
	cfg.ChainClient = client
	cfg.CheckpointStore = store
	cfg.RootHandler = counter
	cfg.EventDecoder = EventDecoderFunc(func(raw RawEvent) (any, error) {
		if raw.Variant == "X" {
			return nil, fmt.Errorf("unknown variant")
		}
		return raw.Payload, nil
	})
	endAt := uint64(0)
	cfg.EndAtBlock = &endAt

	eng, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))

	assert.Equal(t, 1, counter.count)
	assert.Equal(t, uint64(1), eng.Stats().EventsSkipped)
	assert.Equal(t, []uint64{0}, store.saves)
}

// A strict root handler failure aborts the block: no checkpoint advance, and
// Run returns the wrapped error.
func TestIndexer_StrictHandlerFailureStopsWithoutCheckpointing(t *testing.T) {
	blocks := []BlockNotification{
		{Block: BlockRef{Number: 0, Hash: "0x0"}, Events: rawXY()},
	}
	client := newFakeChainClient(blocks)
	store := &memCheckpointStore{}

	failing := HandlerFunc{
		EventFn: func(ctx context.Context, event ChainEvent, blockCtx *Context) error {
			return fmt.Errorf("handler exploded")
		},
		NameStr: "exploder",
	}

	endAt := uint64(0)
	cfg := DefaultConfig()
	cfg.WebsocketURL = "wss://example/chain"
	cfg.ChainClient = client
	cfg.CheckpointStore = store
	cfg.RootHandler = failing
	cfg.EndAtBlock = &endAt

	eng, err := New(cfg)
	require.NoError(t, err)

	err = eng.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsHandlerFailed(err))
	assert.False(t, store.hasSave)
}

func TestIndexer_ThrottleEnforcesMinimumInterval(t *testing.T) {
	blocks := []BlockNotification{
		{Block: BlockRef{Number: 0, Hash: "0x0"}, Events: nil},
		{Block: BlockRef{Number: 1, Hash: "0x1"}, Events: nil},
		{Block: BlockRef{Number: 2, Hash: "0x2"}, Events: nil},
	}
	client := newFakeChainClient(blocks)
	store := &memCheckpointStore{}
	counter := &countingHandler{}

	endAt := uint64(2)
	cfg := DefaultConfig()
	cfg.WebsocketURL = "wss://example/chain"
	cfg.ChainClient = client
	cfg.CheckpointStore = store
	cfg.RootHandler = counter
	cfg.EndAtBlock = &endAt
	cfg.MaxBlocksPerMinute = 6000 // 10ms minimum interval per block

	eng, err := New(cfg)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, eng.Run(context.Background()))
	elapsed := time.Since(start)

	// Three blocks at a 10ms floor each: at least ~20ms of enforced sleep
	// across the run (the first block's throttle wait still applies).
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestIndexer_New_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}
