package indexer

import "context"

// RawEvent is the unit the ChainClient surfaces before decoding: an opaque
// tuple of (pallet, variant, payload, phase) as it comes off the wire.
// Decoding it into a ChainEvent is the engine's job, not the client's.
type RawEvent struct {
	Pallet  string
	Variant string
	Payload []byte
	Phase   EventPhase
}

// BlockRef identifies a block by its monotonic number and opaque,
// chain-dependent hash.
type BlockRef struct {
	Number uint64
	Hash   string
}

// BlockNotification is what subscribeFinalized emits: a block ref plus its
// raw event list, in ascending block order. Gaps are allowed; out-of-order
// delivery is not.
type BlockNotification struct {
	Block  BlockRef
	Events []RawEvent
}

// ChainClient is the abstract transport collaborator the engine consumes.
// The core never encodes JSON-RPC or SCALE wire framing itself; that is the
// concrete client implementation's job.
type ChainClient interface {
	// GetFinalizedTip returns the chain's current finalized tip.
	GetFinalizedTip(ctx context.Context) (BlockRef, error)

	// GetBlockAt resolves a single block by number via point lookup, used
	// by catch-up and by gap-filling during live subscription.
	GetBlockAt(ctx context.Context, blockNumber uint64) (BlockRef, []RawEvent, error)

	// SubscribeFinalized streams finalized block notifications in ascending
	// block order. May skip blocks (gaps); must never emit descending
	// numbers. The returned channel is closed when ctx is done or the
	// subscription ends; errCh carries at most one terminal error.
	SubscribeFinalized(ctx context.Context) (<-chan BlockNotification, <-chan error, error)
}

// EventDecoder turns a RawEvent into a typed payload. Implementations are
// chain-metadata-aware; this interface keeps the engine generic over that
// concern. A decoder that cannot interpret a raw event returns a non-nil
// error, which processBlock surfaces as EventDecodingFailedError.
type EventDecoder interface {
	Decode(raw RawEvent) (payload any, err error)
}

// EventDecoderFunc adapts a plain function into an EventDecoder.
type EventDecoderFunc func(raw RawEvent) (any, error)

func (f EventDecoderFunc) Decode(raw RawEvent) (any, error) {
	return f(raw)
}

// PassthroughDecoder returns the raw payload bytes unchanged as the decoded
// value. It never fails; useful for tests and for chains whose handlers
// want to do their own typed reinterpretation downstream.
var PassthroughDecoder EventDecoder = EventDecoderFunc(func(raw RawEvent) (any, error) {
	return raw.Payload, nil
})
