// Package client subscribes to a defistate state stream over JSON-RPC and
// rebuilds the chain state from its full and diff events.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-router-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/rpc"
)

var errServerClosed = errors.New("subscription closed by server")

// Client keeps a subscription alive, reconnecting with exponential backoff,
// and feeds every notification to a StreamProcessor.
type Client struct {
	url       string
	logger    Logger
	processor *StreamProcessor
	errCh     chan error
}

// NewClient validates cfg and starts streaming in the background. The
// client runs until ctx is done, after which Err is closed.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sp := NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher, cfg.StateDecoder, cfg.StateDiffDecoder)
	sp.metrics = newMetrics(cfg.Registry)

	c := &Client{
		url:       cfg.URL,
		logger:    cfg.Logger,
		processor: sp,
		errCh:     make(chan error, 1),
	}
	go c.run(ctx)
	return c, nil
}

func (c *Client) State() <-chan *stateops.State {
	return c.processor.State()
}

// Err is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) run(ctx context.Context) {
	defer close(c.errCh)

	delay := minBackoff
	for attempt := 0; ctx.Err() == nil; attempt++ {
		if attempt > 0 {
			c.processor.metrics.reconnects.Inc()
		}

		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			break
		}
		if connected {
			delay = minBackoff
		}
		c.logger.Error("Stream session ended, reconnecting", "url", c.url, "error", err, "delay", delay)
		if !sleep(ctx, delay) {
			break
		}
		delay = min(delay*2, maxBackoff)
	}
	c.logger.Info("State stream stopped")
}

// session dials, subscribes and processes notifications until the
// subscription fails. connected reports whether the dial succeeded.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	c.logger.Info("Connected to state stream", "url", c.url)

	notifications := make(chan json.RawMessage)
	sub, err := conn.Subscribe(ctx, RpcNamespace, notifications, StateStreamSubscriptionMethod)
	if err != nil {
		return true, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case msg := <-notifications:
			if err := c.processor.ProcessMessage(msg); err != nil {
				c.logger.Error("Dropping stream event", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				err = errServerClosed
			}
			return true, err
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
