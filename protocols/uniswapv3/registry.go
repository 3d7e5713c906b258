package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Schema is the stream decode contract for concentrated-liquidity pool views.
const Schema = "defistate/uniswap-v3-system/Pool@v2"

// TickInfo is one initialized tick. Only the liquidity fields are needed to
// replay swaps; the fee growth accumulators are not tracked.
type TickInfo struct {
	Index          int64    `json:"index"`
	LiquidityGross *big.Int `json:"liquidityGross"`
	LiquidityNet   *big.Int `json:"liquidityNet"`
}

// Pool is a snapshot of a concentrated-liquidity pool. Ticks holds every
// initialized tick sorted by index; Fee is expressed in hundredths of a bip.
type Pool struct {
	Address      common.Address `json:"address"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	Fee          uint64         `json:"fee"`
	TickSpacing  uint64         `json:"tickSpacing"`
	Tick         int64          `json:"tick"`
	Liquidity    *big.Int       `json:"liquidity"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
	Ticks        []TickInfo     `json:"ticks"`
}
