package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionalHandler_SkipsWhenPredicateFalse(t *testing.T) {
	var called bool
	child := HandlerFunc{
		EventFn: func(ctx context.Context, event ChainEvent, blockCtx *Context) error {
			called = true
			return nil
		},
		NameStr: "child",
	}

	cond := NewConditionalHandler(child, func(ev ChainEvent) bool { return ev.Variant == "Transfer" })
	blockCtx := newContext(1, "0x1")

	err := cond.HandleEvent(context.Background(), ChainEvent{Variant: "Remarked"}, blockCtx)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestConditionalHandler_DelegatesWhenPredicateTrue(t *testing.T) {
	var called bool
	child := HandlerFunc{
		EventFn: func(ctx context.Context, event ChainEvent, blockCtx *Context) error {
			called = true
			return nil
		},
		NameStr: "child",
	}

	cond := NewConditionalHandler(child, func(ev ChainEvent) bool { return ev.Variant == "Transfer" })
	blockCtx := newContext(1, "0x1")

	err := cond.HandleEvent(context.Background(), ChainEvent{Variant: "Transfer"}, blockCtx)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestConditionalHandler_HandleBlockAlwaysDelegates(t *testing.T) {
	blockHandler := &blockOnlyHandler{}
	cond := NewConditionalHandler(blockHandler, func(ev ChainEvent) bool { return false })
	blockCtx := newContext(1, "0x1")

	err := cond.HandleBlock(context.Background(), []ChainEvent{{Variant: "X"}}, blockCtx)
	require.NoError(t, err)
	assert.True(t, blockHandler.called)
}

type blockOnlyHandler struct {
	BaseHandler
	called bool
}

func (h *blockOnlyHandler) EventFilter() EventFilter { return AllEvents() }
func (h *blockOnlyHandler) Name() string             { return "block_only" }

func (h *blockOnlyHandler) HandleBlock(ctx context.Context, events []ChainEvent, blockCtx *Context) error {
	h.called = true
	return nil
}
