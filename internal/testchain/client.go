// Package testchain is a reference ChainClient implementation over a plain
// JSON-over-websocket protocol; no test or example in this module imports
// it. Production transport — the real Substrate/Bittensor
// JSON-RPC wire format, SCALE decoding, metadata fetch — is explicitly out
// of scope; this client exists to exercise the engine end-to-end against a
// real network connection using gorilla/websocket, the transport library the
// retrieval pack reaches for.
package testchain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rodolfodpk/bittensor-indexer/pkg/indexer"
)

// wireEvent mirrors indexer.RawEvent over the wire.
type wireEvent struct {
	Pallet         string `json:"pallet"`
	Variant        string `json:"variant"`
	Payload        []byte `json:"payload"`
	Phase          string `json:"phase"`
	ExtrinsicIndex uint32 `json:"extrinsic_index,omitempty"`
}

type wireBlock struct {
	Number uint64      `json:"number"`
	Hash   string      `json:"hash"`
	Events []wireEvent `json:"events"`
}

// request/response envelope for the point-lookup and tip RPCs. Every request
// carries a unique ID so concurrent calls on the same connection can be
// demultiplexed; subscription pushes instead carry Method == "block".
type envelope struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Client implements indexer.ChainClient over a single websocket connection.
// Point-lookup RPCs (GetFinalizedTip, GetBlockAt) are request/response;
// SubscribeFinalized reads unsolicited "block" push messages from the same
// connection for as long as ctx stays alive.
type Client struct {
	conn *websocket.Conn

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]chan envelope
	pushCh   chan wireBlock
	closed   chan struct{}
	closeErr error
}

// Dial opens a websocket connection to url and starts the background read
// pump that demultiplexes responses from subscription pushes.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, indexer.ConnectionFailedFor(url, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan envelope),
		pushCh:  make(chan wireBlock, 64),
		closed:  make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

func (c *Client) readPump() {
	defer close(c.closed)
	defer close(c.pushCh)
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			c.closeErr = err
			for _, ch := range c.pending {
				close(ch)
			}
			c.pending = nil
			c.mu.Unlock()
			return
		}

		if env.Method == "block" {
			var blk wireBlock
			if err := json.Unmarshal(env.Result, &blk); err == nil {
				select {
				case c.pushCh <- blk:
				default:
				}
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
			close(ch)
		}
	}
}

func (c *Client) call(ctx context.Context, method string, params any) (envelope, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return envelope{}, err
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan envelope, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := envelope{ID: id, Method: method, Params: paramsJSON}
	if err := c.conn.WriteJSON(req); err != nil {
		return envelope{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return envelope{}, fmt.Errorf("connection closed while awaiting %s", method)
		}
		if resp.Error != "" {
			return envelope{}, fmt.Errorf("%s: %s", method, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	}
}

func decodeWireBlock(blk wireBlock) (indexer.BlockRef, []indexer.RawEvent) {
	events := make([]indexer.RawEvent, 0, len(blk.Events))
	for _, we := range blk.Events {
		phase := indexer.EventPhase{}
		switch we.Phase {
		case "apply_extrinsic":
			phase.Phase = indexer.PhaseApplyExtrinsic
			phase.ExtrinsicIndex = we.ExtrinsicIndex
		case "finalization":
			phase.Phase = indexer.PhaseFinalization
		default:
			phase.Phase = indexer.PhaseInitialization
		}
		events = append(events, indexer.RawEvent{
			Pallet:  we.Pallet,
			Variant: we.Variant,
			Payload: we.Payload,
			Phase:   phase,
		})
	}
	return indexer.BlockRef{Number: blk.Number, Hash: blk.Hash}, events
}

func (c *Client) GetFinalizedTip(ctx context.Context) (indexer.BlockRef, error) {
	resp, err := c.call(ctx, "chain_getFinalizedTip", nil)
	if err != nil {
		return indexer.BlockRef{}, indexer.ConnectionFailedFor("", err)
	}
	var blk wireBlock
	if err := json.Unmarshal(resp.Result, &blk); err != nil {
		return indexer.BlockRef{}, indexer.ConnectionFailedFor("", err)
	}
	return indexer.BlockRef{Number: blk.Number, Hash: blk.Hash}, nil
}

func (c *Client) GetBlockAt(ctx context.Context, blockNumber uint64) (indexer.BlockRef, []indexer.RawEvent, error) {
	resp, err := c.call(ctx, "chain_getBlockAt", map[string]uint64{"number": blockNumber})
	if err != nil {
		return indexer.BlockRef{}, nil, err
	}
	var blk wireBlock
	if err := json.Unmarshal(resp.Result, &blk); err != nil {
		return indexer.BlockRef{}, nil, err
	}
	ref, events := decodeWireBlock(blk)
	return ref, events, nil
}

func (c *Client) SubscribeFinalized(ctx context.Context) (<-chan indexer.BlockNotification, <-chan error, error) {
	notifyCh := make(chan indexer.BlockNotification)
	errCh := make(chan error, 1)

	go func() {
		defer close(notifyCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closed:
				if c.closeErr != nil {
					errCh <- c.closeErr
				}
				return
			case blk, ok := <-c.pushCh:
				if !ok {
					return
				}
				ref, events := decodeWireBlock(blk)
				select {
				case notifyCh <- indexer.BlockNotification{Block: ref, Events: events}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return notifyCh, errCh, nil
}

// Close shuts down the underlying websocket connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
