// Package chains holds the contracts shared by the per-chain state clients.
package chains

import (
	tokenregistry "github.com/defistate/defistate-router-go/protocols/tokenregistry"
	tokenregistryindexer "github.com/defistate/defistate-router-go/protocols/tokenregistry/indexer"
	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	uniswapv2indexer "github.com/defistate/defistate-router-go/protocols/uniswapv2/indexer"
	uniswapv3 "github.com/defistate/defistate-router-go/protocols/uniswapv3"
	uniswapv3indexer "github.com/defistate/defistate-router-go/protocols/uniswapv3/indexer"
	"github.com/defistate/defistate-router-go/streams/jsonrpc/stateops"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateStream is a source of reconstructed chain states, such as the
// JSON-RPC stream client.
type StateStream interface {
	State() <-chan *stateops.State
	Err() <-chan error
}

// TokenIndexer defines the interface for any component that can index tokens.
type TokenIndexer interface {
	Index(tokens []tokenregistry.Token) tokenregistryindexer.IndexedTokenSystem
}

// UniswapV2Indexer defines the interface for any component that can index Uniswap V2 pools.
type UniswapV2Indexer interface {
	Index(pools []uniswapv2.Pool) uniswapv2indexer.IndexedUniswapV2
}

// UniswapV3Indexer defines the interface for any component that can index Uniswap V3 pools.
type UniswapV3Indexer interface {
	Index(pools []uniswapv3.Pool) uniswapv3indexer.IndexedUniswapV3
}
