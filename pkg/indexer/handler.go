package indexer

import "context"

// Handler is the user extension point. Implementations MUST NOT mutate the
// event slice handed to HandleBlock, MAY mutate the Context scratchpad, and
// MAY perform I/O. Handlers SHOULD be idempotent with respect to the block
// they process, because the engine re-processes a block whenever its
// checkpoint write does not commit.
type Handler interface {
	// EventFilter is pure and stable across calls; the engine uses it to
	// skip ineligible events before invoking HandleEvent.
	EventFilter() EventFilter

	// HandleEvent is called once per accepted event, in ascending Index
	// order within a block.
	HandleEvent(ctx context.Context, event ChainEvent, blockCtx *Context) error

	// HandleBlock is called once per block, after every HandleEvent call for
	// that block has completed successfully under non-strict semantics. It
	// receives every decoded event in the block regardless of this
	// handler's filter.
	HandleBlock(ctx context.Context, events []ChainEvent, blockCtx *Context) error

	// HandleError is a non-fallible observation hook invoked when any of
	// this handler's own methods returned an error, before the error
	// propagates.
	HandleError(err error, blockCtx *Context)

	// Name is a stable short identifier used in error messages.
	Name() string
}

// BaseHandler provides no-op defaults for HandleEvent, HandleBlock, and
// HandleError so concrete handlers only need to implement what they use.
type BaseHandler struct{}

func (BaseHandler) HandleEvent(ctx context.Context, event ChainEvent, blockCtx *Context) error {
	return nil
}

func (BaseHandler) HandleBlock(ctx context.Context, events []ChainEvent, blockCtx *Context) error {
	return nil
}

func (BaseHandler) HandleError(err error, blockCtx *Context) {}

// HandlerFunc adapts a plain per-event function into a Handler.
type HandlerFunc struct {
	BaseHandler
	FilterFn func() EventFilter
	EventFn  func(ctx context.Context, event ChainEvent, blockCtx *Context) error
	NameStr  string
}

func (f HandlerFunc) EventFilter() EventFilter {
	if f.FilterFn != nil {
		return f.FilterFn()
	}
	return AllEvents()
}

func (f HandlerFunc) HandleEvent(ctx context.Context, event ChainEvent, blockCtx *Context) error {
	if f.EventFn != nil {
		return f.EventFn(ctx, event, blockCtx)
	}
	return nil
}

func (f HandlerFunc) Name() string {
	if f.NameStr != "" {
		return f.NameStr
	}
	return "handler_func"
}
