package indexer

import (
	uniswapv3 "github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedUniswapV3 values.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed Uniswap V3 system from a raw slice of pools.
func (i *Indexer) Index(pools []uniswapv3.Pool) IndexedUniswapV3 {
	return NewIndexableUniswapV3System(pools)
}

// IndexableUniswapV3System provides fast, indexed access to Uniswap V3 pool data.
type IndexableUniswapV3System struct {
	byAddress map[common.Address]uniswapv3.Pool
	byToken   map[common.Address][]int
	all       []uniswapv3.Pool
}

// NewIndexableUniswapV3System creates a new indexed Uniswap V3 system.
// Pools keep their input order in All and ByToken.
func NewIndexableUniswapV3System(pools []uniswapv3.Pool) *IndexableUniswapV3System {
	byAddress := make(map[common.Address]uniswapv3.Pool, len(pools))
	byToken := make(map[common.Address][]int)

	for i, p := range pools {
		byAddress[p.Address] = p
		byToken[p.Token0] = append(byToken[p.Token0], i)
		byToken[p.Token1] = append(byToken[p.Token1], i)
	}

	return &IndexableUniswapV3System{
		byAddress: byAddress,
		byToken:   byToken,
		all:       pools,
	}
}

// GetByAddress retrieves a pool by its contract address.
func (ius *IndexableUniswapV3System) GetByAddress(address common.Address) (uniswapv3.Pool, bool) {
	p, ok := ius.byAddress[address]
	return p, ok
}

// ByToken returns every pool trading token.
func (ius *IndexableUniswapV3System) ByToken(token common.Address) []uniswapv3.Pool {
	idx := ius.byToken[token]
	out := make([]uniswapv3.Pool, len(idx))
	for i, j := range idx {
		out[i] = ius.all[j]
	}
	return out
}

// All returns a copy of the slice of all pools.
func (ius *IndexableUniswapV3System) All() []uniswapv3.Pool {
	allCopy := make([]uniswapv3.Pool, len(ius.all))
	copy(allCopy, ius.all)
	return allCopy
}
