package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/defistate/defistate-router-go/chains/ethereum"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const feedWriteTimeout = 5 * time.Second

// StateFeed announces new chain states; *ethereum.Client implements it.
type StateFeed interface {
	Next() (*ethereum.State, <-chan struct{})
	Done() <-chan struct{}
}

// BlockEvent is pushed to feed subscribers for every processed block.
type BlockEvent struct {
	Type        string `json:"type"`
	BlockNumber uint64 `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
	Timestamp   uint64 `json:"timestamp"`
	Pools       int    `json:"pools"`
	Tokens      int    `json:"tokens"`
}

func newBlockEvent(s *ethereum.State) BlockEvent {
	ev := BlockEvent{
		Type:        "block",
		BlockNumber: s.Block.BlockNumber(),
		BlockHash:   s.Block.Hash.Hex(),
		Timestamp:   s.Block.Timestamp,
	}
	if s.Snapshot != nil {
		ev.Pools = len(s.Snapshot.Pools)
	}
	if s.TokenPools != nil {
		ev.Tokens = len(s.TokenPools.View().Tokens)
	}
	return ev
}

// BlockFeed broadcasts a BlockEvent to websocket subscribers whenever the
// state feed moves to a new block, so clients know when to re-quote.
type BlockFeed struct {
	feed     StateFeed
	logger   Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewBlockFeed(feed StateFeed, logger Logger) *BlockFeed {
	return &BlockFeed{
		feed:     feed,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Run broadcasts until ctx is done or the feed closes, then disconnects
// every subscriber.
func (f *BlockFeed) Run(ctx context.Context) {
	defer f.closeAll()

	var sent *ethereum.State
	for {
		state, next := f.feed.Next()
		if state != nil && state != sent {
			f.broadcast(newBlockEvent(state))
			sent = state
		}
		select {
		case <-next:
		case <-f.feed.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// Serve upgrades the request and subscribes the connection. The latest
// block, if any, is sent right away.
// GET /api/v1/blocks
func (f *BlockFeed) Serve(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Warn("Websocket upgrade failed", "err", err)
		return
	}

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	if state, _ := f.feed.Next(); state != nil {
		if err := f.write(conn, newBlockEvent(state)); err != nil {
			f.dropLocked(conn)
		}
	}
	f.mu.Unlock()

	// reads only detect the peer going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.mu.Lock()
				f.dropLocked(conn)
				f.mu.Unlock()
				return
			}
		}
	}()
}

// Subscribers is the number of connected clients.
func (f *BlockFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *BlockFeed) broadcast(ev BlockEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		if err := f.write(conn, ev); err != nil {
			f.logger.Debug("Dropping feed subscriber", "err", err)
			f.dropLocked(conn)
		}
	}
}

func (f *BlockFeed) write(conn *websocket.Conn, ev BlockEvent) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (f *BlockFeed) dropLocked(conn *websocket.Conn) {
	if _, ok := f.clients[conn]; !ok {
		return
	}
	delete(f.clients, conn)
	_ = conn.Close()
}

func (f *BlockFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		f.dropLocked(conn)
	}
}
