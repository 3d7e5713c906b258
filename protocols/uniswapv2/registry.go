package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Schema is the stream decode contract for constant-product pool views.
const Schema = "defistate/uniswap-v2-system/Pool@v2"

// Pool is a snapshot of a constant-product pair. Token0 sorts before Token1.
type Pool struct {
	Address  common.Address `json:"address"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"` // i.e 30 for 0.3%
}
