// Package ethereum turns the defistate state stream of an EVM chain into pool
// snapshots the router can search.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	tokenregistryindexer "github.com/defistate/defistate-router-go/protocols/tokenregistry/indexer"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	uniswapv2indexer "github.com/defistate/defistate-router-go/protocols/uniswapv2/indexer"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
	uniswapv3indexer "github.com/defistate/defistate-router-go/protocols/uniswapv3/indexer"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	jsonrpcclient "github.com/defistate/defistate-router-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-router-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrClosed is returned by FetchPools once the client has stopped.
var ErrClosed = errors.New("state client closed")

// Client orchestrates the ingestion and processing of DeFi state.
// Its lifecycle is bound to the context passed to New or Dial.
type Client struct {
	stream chains.StateStream
	logger chains.Logger
	errCh  chan error

	// Immutable after construction
	tokenIndexer     chains.TokenIndexer
	uniswapV2Indexer chains.UniswapV2Indexer
	uniswapV3Indexer chains.UniswapV3Indexer
	maxStateAge      time.Duration
	now              func() time.Time

	mu      sync.RWMutex
	latest  *State
	updated chan struct{}
	done    chan struct{}

	ctx context.Context
	wg  sync.WaitGroup
}

// Option configures the Client.
// The interface method is unexported to prevent external modification after construction.
type Option interface {
	apply(*Client)
}

type funcOption func(*Client)

func (f funcOption) apply(p *Client) {
	f(p)
}

func newOption(f func(*Client)) Option {
	return funcOption(f)
}

// Dial subscribes to the state stream at url and starts the processing loop.
// The returned Client will remain active until the provided ctx is cancelled.
func Dial(
	ctx context.Context,
	url string,
	logger chains.Logger,
	prometheusRegistry prometheus.Registerer,
	opts ...Option,
) (*Client, error) {
	stateOps, err := stateops.NewStateOps()
	if err != nil {
		return nil, fmt.Errorf("failed to create state ops: %w", err)
	}

	clientCfg := jsonrpcclient.Config{
		URL:              url,
		Logger:           logger,
		BufferSize:       1,
		StatePatcher:     stateOps.Patch,
		StateDecoder:     stateOps.DecodeStateJSON,
		StateDiffDecoder: stateOps.DecodeStateDiffJSON,
		Registry:         prometheusRegistry,
	}

	stream, err := jsonrpcclient.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to dial defistate stream url: %w", err)
	}

	p := New(ctx, stream, logger, opts...)
	p.logger.Info("Client started", "url", url)
	return p, nil
}

// New starts processing states from stream.
func New(ctx context.Context, stream chains.StateStream, logger chains.Logger, opts ...Option) *Client {
	p := &Client{
		stream:           stream,
		logger:           logger,
		errCh:            make(chan error, 1),
		tokenIndexer:     tokenregistryindexer.New(),
		uniswapV2Indexer: uniswapv2indexer.New(),
		uniswapV3Indexer: uniswapv3indexer.New(),
		now:              time.Now,
		updated:          make(chan struct{}),
		done:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt.apply(p)
	}

	p.ctx = ctx
	p.wg.Add(1)
	go p.loop()
	return p
}

// Err reports the fatal stream error, if any, that stopped the client.
func (p *Client) Err() <-chan error {
	return p.errCh
}

// Done is closed once the processing loop has exited.
func (p *Client) Done() <-chan struct{} {
	return p.done
}

// Latest returns the most recent processed state, or nil before the first.
func (p *Client) Latest() *State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Next returns the latest state, which may be nil, and a channel that is
// closed once a newer state replaces it.
func (p *Client) Next() (*State, <-chan struct{}) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.updated
}

// FetchPools returns the pools of the latest processed block. It waits for a
// state when none has arrived yet, or when the latest is older than the
// configured maximum age.
func (p *Client) FetchPools(ctx context.Context) (*poolmodel.Snapshot, error) {
	for {
		latest, updated := p.Next()
		if latest != nil && p.fresh(latest) {
			return latest.Snapshot, nil
		}

		select {
		case <-updated:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.done:
			return nil, ErrClosed
		}
	}
}

func (p *Client) fresh(s *State) bool {
	if p.maxStateAge <= 0 {
		return true
	}
	blockTime := time.Unix(int64(s.Block.Timestamp), 0)
	return p.now().Sub(blockTime) <= p.maxStateAge
}

func (p *Client) store(s *State) {
	p.mu.Lock()
	p.latest = s
	close(p.updated)
	p.updated = make(chan struct{})
	p.mu.Unlock()
}

func (p *Client) loop() {
	defer p.wg.Done()
	defer func() {
		close(p.errCh)
		close(p.done)
		p.logger.Info("Client stopped")
	}()

	for {
		select {
		case <-p.ctx.Done():
			return

		case err := <-p.stream.Err():
			p.logger.Error("Fatal client error", "err", err)
			p.errCh <- err
			return

		case rawState, ok := <-p.stream.State():
			if !ok {
				p.logger.Error("Upstream state channel closed")
				return
			}

			processed, err := p.processState(rawState)
			if err != nil {
				// keep serving the previous block
				p.logger.Error("Failed to process state", "block", rawState.Block.BlockNumber(), "err", err)
				continue
			}
			p.store(processed)
		}
	}
}

// State is one processed block: the routable snapshot plus indexed views for
// lookups.
type State struct {
	Snapshot          *poolmodel.Snapshot
	Tokens            tokenregistryindexer.IndexedTokenSystem
	UniswapV2         uniswapv2indexer.IndexedUniswapV2
	UniswapV3         uniswapv3indexer.IndexedUniswapV3
	TokenPools        *tokenpoolregistry.TokenPoolSystem
	Block             stateops.BlockSummary
	ProcessedAtUnixNs uint64
}

func (p *Client) processState(rawState *stateops.State) (*State, error) {
	start := time.Now()
	block := rawState.Block.BlockNumber()

	v2Pools, v3Pools, err := stateops.Pools(rawState)
	if err != nil {
		return nil, err
	}
	tokens, err := stateops.Tokens(rawState)
	if err != nil {
		return nil, err
	}

	var (
		wg       sync.WaitGroup
		snapshot *poolmodel.Snapshot
		snapErr  error

		indexedTokens    tokenregistryindexer.IndexedTokenSystem
		indexedUniswapV2 uniswapv2indexer.IndexedUniswapV2
		indexedUniswapV3 uniswapv3indexer.IndexedUniswapV3
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		snapshot, snapErr = poolmodel.NewSnapshot(block, rawState.Block.Timestamp, v2Pools, v3Pools)
	}()
	go func() {
		defer wg.Done()
		indexedTokens = p.tokenIndexer.Index(tokens)
	}()
	go func() {
		defer wg.Done()
		indexedUniswapV2 = p.uniswapV2Indexer.Index(v2Pools)
	}()
	go func() {
		defer wg.Done()
		indexedUniswapV3 = p.uniswapV3Indexer.Index(v3Pools)
	}()
	wg.Wait()

	if snapErr != nil {
		return nil, snapErr
	}

	p.logger.Debug("State processed",
		"block", block,
		"pools", len(snapshot.Pools),
		"tokens", len(tokens),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &State{
		Snapshot:          snapshot,
		Tokens:            indexedTokens,
		UniswapV2:         indexedUniswapV2,
		UniswapV3:         indexedUniswapV3,
		TokenPools:        tokenPools(v2Pools, v3Pools),
		Block:             rawState.Block,
		ProcessedAtUnixNs: uint64(time.Now().UnixNano()),
	}, nil
}

func tokenPools(v2 []uniswapv2.Pool, v3 []uniswapv3.Pool) *tokenpoolregistry.TokenPoolSystem {
	pools := make([]common.Address, 0, len(v2)+len(v3))
	tokenSets := make([][]common.Address, 0, len(v2)+len(v3))
	for _, pool := range v2 {
		pools = append(pools, pool.Address)
		tokenSets = append(tokenSets, []common.Address{pool.Token0, pool.Token1})
	}
	for _, pool := range v3 {
		pools = append(pools, pool.Address)
		tokenSets = append(tokenSets, []common.Address{pool.Token0, pool.Token1})
	}

	system := tokenpoolregistry.NewTokenPoolSystem()
	system.AddPools(pools, tokenSets)
	return system
}

// Options Constructors for the Client

func WithTokenIndexer(indexer chains.TokenIndexer) Option {
	return newOption(func(p *Client) {
		p.tokenIndexer = indexer
	})
}

func WithUniswapV2Indexer(indexer chains.UniswapV2Indexer) Option {
	return newOption(func(p *Client) {
		p.uniswapV2Indexer = indexer
	})
}

func WithUniswapV3Indexer(indexer chains.UniswapV3Indexer) Option {
	return newOption(func(p *Client) {
		p.uniswapV3Indexer = indexer
	})
}

// WithMaxStateAge makes FetchPools wait for a newer block once the latest
// block timestamp is older than age. Zero disables the check.
func WithMaxStateAge(age time.Duration) Option {
	return newOption(func(p *Client) {
		p.maxStateAge = age
	})
}

func WithClock(now func() time.Time) Option {
	return newOption(func(p *Client) {
		p.now = now
	})
}
