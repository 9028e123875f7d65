package indexer

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Stats is a snapshot of engine progress, read with Indexer.Stats. It carries
// no metrics-exporter wiring of its own (out of scope); callers poll it or
// copy it into whatever observability stack they already run.
type Stats struct {
	RunID           string
	Cursor          uint64
	BlocksProcessed uint64
	EventsProcessed uint64
	EventsSkipped   uint64 // undecodable events skipped under the default decoding policy
	BreakerState    string
}

// Indexer is the orchestrator engine: it owns the three-phase state machine
// (initialization, catch-up, live subscription) and the per-block
// processing critical section, driving a ChainClient, an EventDecoder, a
// Handler graph, and a CheckpointStore under retry and circuit-breaker
// protection.
type Indexer struct {
	cfg      Config
	breaker  *CircuitBreaker
	throttle throttle

	// runID identifies this Indexer instance (it is generated once by New),
	// distinct from the chain's own block hashes; it is reported in Stats
	// and in the checkpoint-store close log message.
	runID string

	cursor          atomic.Uint64
	blocksProcessed atomic.Uint64
	eventsProcessed atomic.Uint64
	eventsSkipped   atomic.Uint64

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New validates cfg and builds an Indexer. It never touches the network or
// the checkpoint store; that happens only once Run is called.
func New(cfg Config) (*Indexer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewCircuitBreaker(cfg.CircuitBreakerConfig)
	}

	return &Indexer{
		cfg:        cfg,
		breaker:    breaker,
		throttle:   newThrottle(cfg.MaxBlocksPerMinute),
		runID:      uuid.NewString(),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Shutdown signals the engine to stop at the next safe point: between
// catch-up iterations or between live-subscription notifications. It does
// not abort a process_block already in flight — a block is always either
// fully committed or not attempted, never partially checkpointed. Throttle
// sleeps and retry delays do not watch the shutdown signal; a retry delay
// ends early only when ctx is cancelled. Safe to call more than once or
// concurrently with Run.
func (idx *Indexer) Shutdown(ctx context.Context) error {
	idx.shutdownOnce.Do(func() { close(idx.shutdownCh) })
	return nil
}

func (idx *Indexer) stopped() bool {
	select {
	case <-idx.shutdownCh:
		return true
	default:
		return false
	}
}

// Stats returns a point-in-time snapshot of engine progress.
func (idx *Indexer) Stats() Stats {
	return Stats{
		RunID:           idx.runID,
		Cursor:          idx.cursor.Load(),
		BlocksProcessed: idx.blocksProcessed.Load(),
		EventsProcessed: idx.eventsProcessed.Load(),
		EventsSkipped:   idx.eventsSkipped.Load(),
		BreakerState:    idx.breaker.State(),
	}
}

// Run drives the engine to completion: Phase I initialization, Phase II
// catch-up, then Phase III live subscription. It returns nil when
// end_at_block is reached or Shutdown is observed at a safe point, ctx.Err()
// when ctx is cancelled, and a non-nil error on any fatal condition: retries
// exhausted, a checkpoint save that never commits, or any error returned by
// the root handler (including the first recorded failure of a non-strict
// group).
func (idx *Indexer) Run(ctx context.Context) error {
	defer func() {
		if err := idx.cfg.CheckpointStore.Close(ctx); err != nil {
			log.Printf("indexer[%s]: checkpoint store close failed: %v", idx.runID, err)
		}
	}()

	cursor, err := idx.initializeCursor(ctx)
	if err != nil {
		return err
	}
	idx.cursor.Store(cursor)

	cursor, err = idx.catchUp(ctx, cursor)
	if err != nil {
		return err
	}
	idx.cursor.Store(cursor)

	if idx.reachedEnd(cursor) {
		return nil
	}

	return idx.liveSubscribe(ctx, cursor)
}

// initializeCursor implements Phase I.
func (idx *Indexer) initializeCursor(ctx context.Context) (uint64, error) {
	checkpoint, ok, err := idx.cfg.CheckpointStore.Load(ctx)
	if err != nil {
		return 0, newCheckpointError("load", "unknown", err)
	}

	if idx.cfg.StartFromBlock != nil && (!ok || *idx.cfg.StartFromBlock > checkpoint) {
		return *idx.cfg.StartFromBlock, nil
	}
	if ok {
		return checkpoint + 1, nil
	}
	return 0, nil
}

func (idx *Indexer) reachedEnd(cursor uint64) bool {
	return idx.cfg.EndAtBlock != nil && cursor > *idx.cfg.EndAtBlock
}

// withCallTimeout bounds a single chain-client call: expiry is surfaced as
// a retryable TimeoutError rather than a bare context error, so
// retryWithBackoff's isRetryable classification applies to it.
func (idx *Indexer) withCallTimeout(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if idx.cfg.PerCallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, idx.cfg.PerCallTimeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return newTimeout(op, err)
	}
	return err
}

// catchUp implements Phase II: point-lookup the cursor forward to the tip
// fetched once at the start of catch-up. Returns the cursor one past the
// last block processed.
func (idx *Indexer) catchUp(ctx context.Context, cursor uint64) (uint64, error) {
	tip, err := retryWithBackoff(ctx, "chain_client.get_finalized_tip", idx.cfg.RetryConfig, idx.breaker,
		func(ctx context.Context) (BlockRef, error) {
			var ref BlockRef
			err := idx.withCallTimeout(ctx, "chain_client.get_finalized_tip", func(ctx context.Context) error {
				var innerErr error
				ref, innerErr = idx.cfg.ChainClient.GetFinalizedTip(ctx)
				return innerErr
			})
			return ref, err
		})
	if err != nil {
		return cursor, err
	}

	for cursor <= tip.Number && !idx.reachedEnd(cursor) {
		if idx.stopped() || ctx.Err() != nil {
			return cursor, ctx.Err()
		}

		ref, rawEvents, err := idx.fetchBlockAt(ctx, cursor)
		if err != nil {
			return cursor, err
		}
		if err := idx.processBlock(ctx, ref.Number, ref.Hash, rawEvents); err != nil {
			return cursor, err
		}
		cursor++
		idx.cursor.Store(cursor)
	}
	return cursor, nil
}

func (idx *Indexer) fetchBlockAt(ctx context.Context, blockNumber uint64) (BlockRef, []RawEvent, error) {
	type result struct {
		ref    BlockRef
		events []RawEvent
	}
	r, err := retryWithBackoff(ctx, "chain_client.get_block_at", idx.cfg.RetryConfig, idx.breaker,
		func(ctx context.Context) (result, error) {
			var r result
			err := idx.withCallTimeout(ctx, "chain_client.get_block_at", func(ctx context.Context) error {
				ref, events, innerErr := idx.cfg.ChainClient.GetBlockAt(ctx, blockNumber)
				r = result{ref: ref, events: events}
				return innerErr
			})
			if err != nil {
				if IsTimeout(err) {
					return result{}, err
				}
				return result{}, newBlockFetchFailed(blockNumber, err)
			}
			return r, nil
		})
	return r.ref, r.events, err
}

// liveSubscribe implements Phase III: subscribe to finalized notifications,
// gap-fill by point lookup when a notification arrives ahead of cursor, skip
// notifications at or below the checkpoint, and terminate at end_at_block.
func (idx *Indexer) liveSubscribe(ctx context.Context, cursor uint64) error {
	notifyCh, errCh, err := idx.cfg.ChainClient.SubscribeFinalized(ctx)
	if err != nil {
		return newConnectionFailed(idx.cfg.WebsocketURL, err)
	}

	for {
		if idx.stopped() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idx.shutdownCh:
			return nil
		case err, ok := <-errCh:
			if ok && err != nil {
				return newConnectionFailed(idx.cfg.WebsocketURL, err)
			}
		case notif, ok := <-notifyCh:
			if !ok {
				return nil
			}

			if notif.Block.Number < cursor {
				// At or below the checkpoint: skip.
				continue
			}

			if notif.Block.Number > cursor {
				cursor, err = idx.catchUp(ctx, cursor)
				if err != nil {
					return err
				}
				if idx.reachedEnd(cursor) {
					return nil
				}
				if idx.stopped() {
					// Shutdown may have cut the gap-fill short; never process
					// the notification past unfilled blocks.
					return nil
				}
				if notif.Block.Number < cursor {
					// The gap-fill already covered this notification.
					continue
				}
			}

			if err := idx.processBlock(ctx, notif.Block.Number, notif.Block.Hash, notif.Events); err != nil {
				return err
			}
			cursor++
			idx.cursor.Store(cursor)

			if idx.reachedEnd(cursor) {
				return nil
			}
		}
	}
}

// processBlock is the per-block critical section: decode, dispatch through
// the handler graph, checkpoint, throttle.
func (idx *Indexer) processBlock(ctx context.Context, n uint64, hash string, rawEvents []RawEvent) error {
	started := time.Now()

	events := make([]ChainEvent, 0, len(rawEvents))
	blockCtx := newContext(n, hash)

	for i, raw := range rawEvents {
		payload, err := idx.cfg.EventDecoder.Decode(raw)
		if err != nil {
			decodeErr := newEventDecodingFailed(raw.Pallet, raw.Variant, n, i, err)
			idx.cfg.RootHandler.HandleError(decodeErr, blockCtx)
			idx.eventsSkipped.Add(1)
			continue
		}
		events = append(events, ChainEvent{
			Pallet:  raw.Pallet,
			Variant: raw.Variant,
			Index:   len(events),
			Phase:   raw.Phase,
			Payload: payload,
		})
	}

	for _, event := range events {
		if !idx.cfg.RootHandler.EventFilter().Matches(event) {
			continue
		}
		if err := idx.cfg.RootHandler.HandleEvent(ctx, event, blockCtx); err != nil {
			idx.cfg.RootHandler.HandleError(err, blockCtx)
			return newHandlerFailed(idx.cfg.RootHandler.Name(), n, err)
		}
		idx.eventsProcessed.Add(1)
	}

	if err := idx.cfg.RootHandler.HandleBlock(ctx, events, blockCtx); err != nil {
		idx.cfg.RootHandler.HandleError(err, blockCtx)
		return newHandlerFailed(idx.cfg.RootHandler.Name(), n, err)
	}

	_, err := retryWithBackoff(ctx, "checkpoint_store.save", idx.cfg.RetryConfig, idx.breaker,
		func(ctx context.Context) (struct{}, error) {
			if err := idx.cfg.CheckpointStore.Save(ctx, n); err != nil {
				return struct{}{}, newCheckpointError("save", "unknown", err)
			}
			return struct{}{}, nil
		})
	if err != nil {
		var exhausted *RetriesExhaustedError
		if errors.As(err, &exhausted) {
			log.Printf("indexer: checkpoint save for block %d exhausted retries, terminating without advancing: %v", n, err)
		}
		return err
	}

	idx.blocksProcessed.Add(1)
	idx.throttle.wait(started)
	return nil
}
