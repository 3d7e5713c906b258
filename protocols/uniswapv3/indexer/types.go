package indexer

import (
	uniswapv3 "github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedUniswapV3 defines the methods for accessing indexed concentrated-liquidity pool data.
type IndexedUniswapV3 interface {
	GetByAddress(address common.Address) (uniswapv3.Pool, bool)
	ByToken(token common.Address) []uniswapv3.Pool
	All() []uniswapv3.Pool
}
