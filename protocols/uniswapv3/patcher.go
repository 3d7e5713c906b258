package uniswapv3

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// UniswapV3SystemDiff is the per-block change set for concentrated-liquidity pools.
type UniswapV3SystemDiff struct {
	Additions []Pool           `json:"additions,omitempty"`
	Updates   []Pool           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d UniswapV3SystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// CopyPool returns a deep copy of p, ticks included.
func CopyPool(p Pool) Pool {
	newPool := p
	newPool.Liquidity = copyInt(p.Liquidity)
	newPool.SqrtPriceX96 = copyInt(p.SqrtPriceX96)

	if p.Ticks != nil {
		newPool.Ticks = make([]TickInfo, len(p.Ticks))
		for i, tick := range p.Ticks {
			newPool.Ticks[i] = TickInfo{
				Index:          tick.Index,
				LiquidityGross: copyInt(tick.LiquidityGross),
				LiquidityNet:   copyInt(tick.LiquidityNet),
			}
		}
	}
	return newPool
}

// Patcher builds the next pool set by applying diff to prevState.
// The result shares no memory with its inputs, is ordered by pool address and
// every pool's ticks are sorted by index.
func Patcher(prevState []Pool, diff UniswapV3SystemDiff) ([]Pool, error) {
	byAddress := make(map[common.Address]Pool, len(prevState))
	for _, pool := range prevState {
		byAddress[pool.Address] = CopyPool(pool)
	}

	for _, address := range diff.Deletions {
		delete(byAddress, address)
	}
	for _, pool := range diff.Updates {
		byAddress[pool.Address] = CopyPool(pool)
	}
	for _, pool := range diff.Additions {
		byAddress[pool.Address] = CopyPool(pool)
	}

	finalState := make([]Pool, 0, len(byAddress))
	for _, pool := range byAddress {
		sort.Slice(pool.Ticks, func(i, j int) bool { return pool.Ticks[i].Index < pool.Ticks[j].Index })
		finalState = append(finalState, pool)
	}
	sort.Slice(finalState, func(i, j int) bool {
		return bytes.Compare(finalState[i].Address[:], finalState[j].Address[:]) < 0
	})

	return finalState, nil
}
