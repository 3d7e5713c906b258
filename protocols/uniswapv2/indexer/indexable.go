package indexer

import (
	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedUniswapV2 values.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed Uniswap V2 system from a raw slice of pools.
func (i *Indexer) Index(pools []uniswapv2.Pool) IndexedUniswapV2 {
	return NewIndexableUniswapV2System(pools)
}

// IndexableUniswapV2System provides fast, indexed access to Uniswap V2 pool data.
type IndexableUniswapV2System struct {
	byAddress map[common.Address]uniswapv2.Pool
	byToken   map[common.Address][]int
	all       []uniswapv2.Pool
}

// NewIndexableUniswapV2System creates a new indexed Uniswap V2 system.
// Pools keep their input order in All and ByToken.
func NewIndexableUniswapV2System(pools []uniswapv2.Pool) *IndexableUniswapV2System {
	byAddress := make(map[common.Address]uniswapv2.Pool, len(pools))
	byToken := make(map[common.Address][]int)

	for i, p := range pools {
		byAddress[p.Address] = p
		byToken[p.Token0] = append(byToken[p.Token0], i)
		byToken[p.Token1] = append(byToken[p.Token1], i)
	}

	return &IndexableUniswapV2System{
		byAddress: byAddress,
		byToken:   byToken,
		all:       pools,
	}
}

// GetByAddress retrieves a pool by its contract address.
func (ius *IndexableUniswapV2System) GetByAddress(address common.Address) (uniswapv2.Pool, bool) {
	p, ok := ius.byAddress[address]
	return p, ok
}

// ByToken returns every pool trading token.
func (ius *IndexableUniswapV2System) ByToken(token common.Address) []uniswapv2.Pool {
	idx := ius.byToken[token]
	out := make([]uniswapv2.Pool, len(idx))
	for i, j := range idx {
		out[i] = ius.all[j]
	}
	return out
}

// All returns a copy of the slice of all pools.
func (ius *IndexableUniswapV2System) All() []uniswapv2.Pool {
	allCopy := make([]uniswapv2.Pool, len(ius.all))
	copy(allCopy, ius.all)
	return allCopy
}
