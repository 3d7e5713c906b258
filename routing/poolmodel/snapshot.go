package poolmodel

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
)

// Snapshot is every known pool as read at a single block.
type Snapshot struct {
	BlockNumber    uint64
	BlockTimestamp uint64
	Pools          []Pool
}

// NewSnapshot wraps protocol views into pools ordered by address. Malformed
// pools are reported, not skipped: a snapshot is all or nothing.
func NewSnapshot(blockNumber, blockTimestamp uint64, v2 []uniswapv2.Pool, v3 []uniswapv3.Pool) (*Snapshot, error) {
	pools := make([]Pool, 0, len(v2)+len(v3))
	for _, p := range v2 {
		cp, err := NewConstantProduct(p)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", blockNumber, err)
		}
		pools = append(pools, cp)
	}
	for _, p := range v3 {
		cl, err := NewConcentrated(p)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", blockNumber, err)
		}
		pools = append(pools, cl)
	}
	SortByAddress(pools)

	return &Snapshot{
		BlockNumber:    blockNumber,
		BlockTimestamp: blockTimestamp,
		Pools:          pools,
	}, nil
}

// SortByAddress orders pools by contract address, in place.
func SortByAddress(pools []Pool) {
	sort.SliceStable(pools, func(i, j int) bool {
		a, b := pools[i].Address(), pools[j].Address()
		return bytes.Compare(a[:], b[:]) < 0
	})
}
