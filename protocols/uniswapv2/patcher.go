package uniswapv2

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// UniswapV2SystemDiff is the per-block change set for constant-product pools.
type UniswapV2SystemDiff struct {
	Additions []Pool           `json:"additions,omitempty"`
	Updates   []Pool           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d UniswapV2SystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// CopyPool returns p with freshly allocated reserves.
func CopyPool(p Pool) Pool {
	newPool := p
	if p.Reserve0 != nil {
		newPool.Reserve0 = new(big.Int).Set(p.Reserve0)
	}
	if p.Reserve1 != nil {
		newPool.Reserve1 = new(big.Int).Set(p.Reserve1)
	}
	return newPool
}

// Patcher builds the next pool set by applying diff to prevState.
// The result shares no memory with prevState or diff and is ordered by pool address.
func Patcher(prevState []Pool, diff UniswapV2SystemDiff) ([]Pool, error) {
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
		finalState = append(finalState, pool)
	}
	sort.Slice(finalState, func(i, j int) bool {
		return bytes.Compare(finalState[i].Address[:], finalState[j].Address[:]) < 0
	})

	return finalState, nil
}
