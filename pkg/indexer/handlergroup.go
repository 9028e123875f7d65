package indexer

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// GroupMode selects a HandlerGroup's composition semantics.
type GroupMode int

const (
	// Sequential invokes children in declaration order on the calling
	// goroutine.
	Sequential GroupMode = iota
	// Parallel schedules every child concurrently for the same event/block.
	Parallel
)

// HandlerGroup composes child handlers. A group is itself a Handler
// (composition is closed): EventFilter() always returns AllEvents(),
// because filtering is delegated to leaves, not enforced at the group
// boundary.
type HandlerGroup struct {
	mode     GroupMode
	strict   bool
	children []Handler
	name     string
}

// NewSequentialGroup builds a pipeline that runs children in declaration
// order. If strict, a child's error aborts the remaining children and
// propagates immediately; if not, HandleError runs on the failing child,
// the error is recorded, and later children still run. The group returns
// the first recorded error, if any.
func NewSequentialGroup(name string, strict bool, children ...Handler) *HandlerGroup {
	return &HandlerGroup{mode: Sequential, strict: strict, children: children, name: name}
}

// NewParallelGroup builds a fan-out group. All children are scheduled
// concurrently; in strict mode the first error cancels the context handed
// to the remaining children (best-effort), and the group returns that error
// only after every child has returned; otherwise every child runs to
// completion and the first error (if any) is returned after all complete.
func NewParallelGroup(name string, strict bool, children ...Handler) *HandlerGroup {
	return &HandlerGroup{mode: Parallel, strict: strict, children: children, name: name}
}

func (g *HandlerGroup) EventFilter() EventFilter {
	return AllEvents()
}

func (g *HandlerGroup) Name() string {
	if g.name != "" {
		return g.name
	}
	return "handler_group"
}

func (g *HandlerGroup) HandleError(err error, blockCtx *Context) {}

func (g *HandlerGroup) HandleEvent(ctx context.Context, event ChainEvent, blockCtx *Context) error {
	switch g.mode {
	case Sequential:
		return g.handleEventSequential(ctx, event, blockCtx)
	case Parallel:
		return g.handleEventParallel(ctx, event, blockCtx)
	default:
		return nil
	}
}

func (g *HandlerGroup) HandleBlock(ctx context.Context, events []ChainEvent, blockCtx *Context) error {
	switch g.mode {
	case Sequential:
		return g.handleBlockSequential(ctx, events, blockCtx)
	case Parallel:
		return g.handleBlockParallel(ctx, events, blockCtx)
	default:
		return nil
	}
}

// dispatchEvent delivers event to child only if the child's static filter
// matches; filtering is delegated to leaves even through nested groups,
// since a nested HandlerGroup's own EventFilter() is always AllEvents().
func dispatchEvent(ctx context.Context, child Handler, event ChainEvent, blockCtx *Context) error {
	if !child.EventFilter().Matches(event) {
		return nil
	}
	if err := child.HandleEvent(ctx, event, blockCtx); err != nil {
		child.HandleError(err, blockCtx)
		return newHandlerFailed(child.Name(), blockCtx.BlockNumber, err)
	}
	return nil
}

func (g *HandlerGroup) handleEventSequential(ctx context.Context, event ChainEvent, blockCtx *Context) error {
	var firstErr error
	for _, child := range g.children {
		if err := dispatchEvent(ctx, child, event, blockCtx); err != nil {
			if g.strict {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (g *HandlerGroup) handleEventParallel(ctx context.Context, event ChainEvent, blockCtx *Context) error {
	if g.strict {
		eg, egCtx := errgroup.WithContext(ctx)
		for _, child := range g.children {
			child := child
			eg.Go(func() error {
				return dispatchEvent(egCtx, child, event, blockCtx)
			})
		}
		return eg.Wait()
	}

	// Non-strict: every sibling runs to completion regardless of others'
	// outcomes, and the group returns the first error after all finish.
	errs := make([]error, len(g.children))
	var wg errgroup.Group
	for i, child := range g.children {
		i, child := i, child
		wg.Go(func() error {
			errs[i] = dispatchEvent(ctx, child, event, blockCtx)
			return nil
		})
	}
	_ = wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func dispatchBlock(ctx context.Context, child Handler, events []ChainEvent, blockCtx *Context) error {
	if err := child.HandleBlock(ctx, events, blockCtx); err != nil {
		child.HandleError(err, blockCtx)
		return newHandlerFailed(child.Name(), blockCtx.BlockNumber, err)
	}
	return nil
}

func (g *HandlerGroup) handleBlockSequential(ctx context.Context, events []ChainEvent, blockCtx *Context) error {
	var firstErr error
	for _, child := range g.children {
		if err := dispatchBlock(ctx, child, events, blockCtx); err != nil {
			if g.strict {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (g *HandlerGroup) handleBlockParallel(ctx context.Context, events []ChainEvent, blockCtx *Context) error {
	if g.strict {
		eg, egCtx := errgroup.WithContext(ctx)
		for _, child := range g.children {
			child := child
			eg.Go(func() error {
				return dispatchBlock(egCtx, child, events, blockCtx)
			})
		}
		return eg.Wait()
	}

	errs := make([]error, len(g.children))
	var wg errgroup.Group
	for i, child := range g.children {
		i, child := i, child
		wg.Go(func() error {
			errs[i] = dispatchBlock(ctx, child, events, blockCtx)
			return nil
		})
	}
	_ = wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
