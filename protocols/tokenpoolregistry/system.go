package tokenpoolregistry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolSystem makes a TokenPoolRegistry safe for concurrent use.
// Writes serialize on mu and republish the view; View reads the published
// copy without locking.
type TokenPoolSystem struct {
	mu       sync.RWMutex
	registry *TokenPoolRegistry
	view     atomic.Pointer[TokenPoolRegistryView]
}

func NewTokenPoolSystem() *TokenPoolSystem {
	return newSystem(NewTokenPoolRegistry())
}

// NewTokenPoolSystemFromView restores a system from a view.
func NewTokenPoolSystemFromView(view *TokenPoolRegistryView) *TokenPoolSystem {
	return newSystem(NewTokenPoolRegistryFromView(view))
}

func newSystem(r *TokenPoolRegistry) *TokenPoolSystem {
	s := &TokenPoolSystem{registry: r}
	s.view.Store(r.View())
	return s
}

// AddPool registers one pool.
func (s *TokenPoolSystem) AddPool(tokens []common.Address, pool common.Address) {
	s.AddPools([]common.Address{pool}, [][]common.Address{tokens})
}

// AddPools registers pools[i] as trading tokenSets[i], publishing a single
// new view. It panics if the slices differ in length.
func (s *TokenPoolSystem) AddPools(pools []common.Address, tokenSets [][]common.Address) {
	if len(pools) != len(tokenSets) {
		panic(fmt.Sprintf("tokenpoolregistry: %d pools but %d token sets", len(pools), len(tokenSets)))
	}
	if len(pools) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, pool := range pools {
		s.registry.Add(tokenSets[i], pool)
	}
	s.view.Store(s.registry.View())
}

// PoolsForToken lists every pool touching the token.
func (s *TokenPoolSystem) PoolsForToken(token common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForToken(token)
}

// PoolsBetween lists the pools that trade from -> to directly.
func (s *TokenPoolSystem) PoolsBetween(from, to common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsBetween(from, to)
}

// View returns a copy of the latest published view; callers may mutate it.
func (s *TokenPoolSystem) View() *TokenPoolRegistryView {
	return copyView(s.view.Load())
}
