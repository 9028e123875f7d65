package indexer

import (
	"errors"
	"fmt"
)

// IndexerError is the common base embedded by every error kind the engine
// produces. It carries the operation that failed and the underlying cause.
type IndexerError struct {
	Op  string
	Err error
}

func (e *IndexerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *IndexerError) Unwrap() error {
	return e.Err
}

type (
	// ConnectionFailedError wraps a transient transport failure. Retryable.
	ConnectionFailedError struct {
		IndexerError
		URL string
	}

	// TimeoutError is raised when a chain-client call exceeds its configured
	// per-call timeout. Retryable.
	TimeoutError struct {
		IndexerError
		Operation string
	}

	// CircuitOpenError is returned by retry_with_backoff without invoking the
	// thunk when the breaker is tripped. Not retryable by definition: the
	// caller already failed fast.
	CircuitOpenError struct {
		IndexerError
	}

	// RetriesExhaustedError is terminal: the first attempt and all
	// max_retries retries failed (Attempts = max_retries + 1).
	RetriesExhaustedError struct {
		IndexerError
		Attempts int
	}

	// BlockFetchFailedError surfaces a failed point lookup or subscription
	// read for a specific block. Retryable.
	BlockFetchFailedError struct {
		IndexerError
		BlockNumber uint64
	}

	// EventDecodingFailedError surfaces an event whose raw payload could not
	// be decoded against chain metadata. Not retryable. processBlock always
	// skips the event and reports this error to the root handler's
	// HandleError; no option turns it into a handler failure.
	EventDecodingFailedError struct {
		IndexerError
		Pallet  string
		Event   string
		Block   uint64
		Index   int
	}

	// HandlerFailedError wraps an error returned by user handler code.
	// Retryable-ness is policy dependent: sequential/parallel strict groups
	// treat it as fatal to the block; non-strict groups record and continue.
	HandlerFailedError struct {
		IndexerError
		HandlerName string
		Block       uint64
	}

	// CheckpointError wraps a CheckpointStore failure. save is retried by the
	// engine; load failures are terminal (the engine never starts cleanly
	// without knowing its resume point).
	CheckpointError struct {
		IndexerError
		Operation string
		Backend   string
	}

	// ConfigError is raised synchronously while building an Indexer. Terminal;
	// the engine never starts.
	ConfigError struct {
		IndexerError
		Field  string
		Reason string
	}
)

func newConnectionFailed(url string, cause error) *ConnectionFailedError {
	return &ConnectionFailedError{
		IndexerError: IndexerError{Op: "chain_client.connect", Err: cause},
		URL:          url,
	}
}

// ConnectionFailedFor lets a ChainClient implementation outside this package
// raise the error kind the engine's retry policy recognizes as retryable.
func ConnectionFailedFor(url string, cause error) *ConnectionFailedError {
	return newConnectionFailed(url, cause)
}

func newTimeout(op string, cause error) *TimeoutError {
	return &TimeoutError{
		IndexerError: IndexerError{Op: op, Err: cause},
		Operation:    op,
	}
}

func newCircuitOpen(op string) *CircuitOpenError {
	return &CircuitOpenError{
		IndexerError: IndexerError{Op: op, Err: errors.New("circuit breaker is open")},
	}
}

func newRetriesExhausted(op string, attempts int, cause error) *RetriesExhaustedError {
	return &RetriesExhaustedError{
		IndexerError: IndexerError{Op: op, Err: cause},
		Attempts:     attempts,
	}
}

func newBlockFetchFailed(blockNumber uint64, cause error) *BlockFetchFailedError {
	return &BlockFetchFailedError{
		IndexerError: IndexerError{Op: "chain_client.get_block_at", Err: cause},
		BlockNumber:  blockNumber,
	}
}

func newEventDecodingFailed(pallet, event string, block uint64, index int, cause error) *EventDecodingFailedError {
	return &EventDecodingFailedError{
		IndexerError: IndexerError{Op: "decode_event", Err: cause},
		Pallet:       pallet,
		Event:        event,
		Block:        block,
		Index:        index,
	}
}

func newHandlerFailed(handlerName string, block uint64, cause error) *HandlerFailedError {
	return &HandlerFailedError{
		IndexerError: IndexerError{Op: "handler." + handlerName, Err: cause},
		HandlerName:  handlerName,
		Block:        block,
	}
}

func newCheckpointError(operation, backend string, cause error) *CheckpointError {
	return &CheckpointError{
		IndexerError: IndexerError{Op: "checkpoint_store." + operation, Err: cause},
		Operation:    operation,
		Backend:      backend,
	}
}

// CheckpointErrorFor lets a CheckpointStore implementation outside this
// package construct the error kind the engine's error taxonomy expects,
// instead of returning a bare error that would lose its retry/terminal
// classification.
func CheckpointErrorFor(operation, backend string, cause error) *CheckpointError {
	return newCheckpointError(operation, backend, cause)
}

func newConfigError(field, reason string) *ConfigError {
	return &ConfigError{
		IndexerError: IndexerError{Op: "config", Err: fmt.Errorf("%s: %s", field, reason)},
		Field:        field,
		Reason:       reason,
	}
}

// =============================================================================
// Error detection helpers (errors.As-based Is*/Get* helpers)
// =============================================================================

// IsConnectionFailed reports whether err is (or wraps) a ConnectionFailedError.
func IsConnectionFailed(err error) bool {
	var e *ConnectionFailedError
	return errors.As(err, &e)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var e *CircuitOpenError
	return errors.As(err, &e)
}

// IsRetriesExhausted reports whether err is (or wraps) a RetriesExhaustedError.
func IsRetriesExhausted(err error) bool {
	var e *RetriesExhaustedError
	return errors.As(err, &e)
}

// IsBlockFetchFailed reports whether err is (or wraps) a BlockFetchFailedError.
func IsBlockFetchFailed(err error) bool {
	var e *BlockFetchFailedError
	return errors.As(err, &e)
}

// IsEventDecodingFailed reports whether err is (or wraps) an EventDecodingFailedError.
func IsEventDecodingFailed(err error) bool {
	var e *EventDecodingFailedError
	return errors.As(err, &e)
}

// IsHandlerFailed reports whether err is (or wraps) a HandlerFailedError.
func IsHandlerFailed(err error) bool {
	var e *HandlerFailedError
	return errors.As(err, &e)
}

// IsCheckpointError reports whether err is (or wraps) a CheckpointError.
func IsCheckpointError(err error) bool {
	var e *CheckpointError
	return errors.As(err, &e)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// GetEventDecodingFailed extracts an EventDecodingFailedError from the error chain.
func GetEventDecodingFailed(err error) (*EventDecodingFailedError, bool) {
	var e *EventDecodingFailedError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetHandlerFailed extracts a HandlerFailedError from the error chain.
func GetHandlerFailed(err error) (*HandlerFailedError, bool) {
	var e *HandlerFailedError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// isRetryable classifies an error by kind. Used by retryWithBackoff to
// decide whether to keep retrying.
func isRetryable(err error) bool {
	switch {
	case IsConnectionFailed(err), IsTimeout(err), IsBlockFetchFailed(err):
		return true
	case IsCircuitOpen(err), IsRetriesExhausted(err), IsEventDecodingFailed(err), IsConfigError(err):
		return false
	}
	var checkpointErr *CheckpointError
	if errors.As(err, &checkpointErr) {
		return checkpointErr.Operation == "save"
	}
	// Handler failures are not retried by retry_with_backoff: strict/non-strict
	// policy inside HandlerGroup already decided their fate.
	return false
}
