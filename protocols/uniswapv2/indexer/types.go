package indexer

import (
	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedUniswapV2 defines the methods for accessing indexed constant-product pool data.
type IndexedUniswapV2 interface {
	GetByAddress(address common.Address) (uniswapv2.Pool, bool)
	ByToken(token common.Address) []uniswapv2.Pool
	All() []uniswapv2.Pool
}
