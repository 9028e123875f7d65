package indexer

import "context"

// ConditionalHandler wraps a child Handler with a predicate over ChainEvent,
// layering a dynamic per-event gate atop the child's static EventFilter.
// HandleBlock always delegates, since the predicate is per-event, not
// per-block.
type ConditionalHandler struct {
	child     Handler
	predicate func(ChainEvent) bool
}

// NewConditionalHandler builds a ConditionalHandler. When predicate returns
// false for an event, HandleEvent is a no-op success rather than delegating.
func NewConditionalHandler(child Handler, predicate func(ChainEvent) bool) *ConditionalHandler {
	return &ConditionalHandler{child: child, predicate: predicate}
}

func (c *ConditionalHandler) EventFilter() EventFilter {
	return c.child.EventFilter()
}

func (c *ConditionalHandler) Name() string {
	return c.child.Name()
}

func (c *ConditionalHandler) HandleError(err error, blockCtx *Context) {
	c.child.HandleError(err, blockCtx)
}

func (c *ConditionalHandler) HandleEvent(ctx context.Context, event ChainEvent, blockCtx *Context) error {
	if c.predicate != nil && !c.predicate(event) {
		return nil
	}
	return c.child.HandleEvent(ctx, event, blockCtx)
}

func (c *ConditionalHandler) HandleBlock(ctx context.Context, events []ChainEvent, blockCtx *Context) error {
	return c.child.HandleBlock(ctx, events, blockCtx)
}
