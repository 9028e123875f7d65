package indexer

import "context"

// CheckpointStore persists and retrieves the highest processed block number.
// The engine enforces the monotonicity invariant (save is only ever called
// with a value strictly greater than the last successful save); a store MAY
// additionally reject non-monotonic writes itself, in which case it should
// surface a CheckpointError{Operation: "save"}.
type CheckpointStore interface {
	// Load retrieves the highest successfully processed block, or ok=false
	// if none has ever been saved.
	Load(ctx context.Context) (blockNumber uint64, ok bool, err error)

	// Save durably persists the new watermark.
	Save(ctx context.Context, blockNumber uint64) error

	// Close flushes and releases underlying resources.
	Close(ctx context.Context) error
}
