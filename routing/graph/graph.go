// Package graph indexes a pool snapshot as a multigraph over tokens.
package graph

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDuplicatePool = errors.New("duplicate pool")
	ErrInvalidPool   = errors.New("pool must connect two distinct tokens")
)

// Edge is every pool trading From -> To.
type Edge struct {
	From  common.Address
	To    common.Address
	Pools []poolmodel.Pool
}

// PoolGraph is an immutable view over one snapshot. It owns the pool values
// handed to it and is safe for concurrent reads.
type PoolGraph struct {
	tokenPool *tokenpoolregistry.TokenPoolRegistryView

	tokenToIndex map[common.Address]int
	poolToIndex  map[common.Address]int

	// pools[i] is the pool at tokenPool.Pools[i]
	pools []poolmodel.Pool
}

// New builds the graph. Pools are inserted in address order so neighbor
// and pool lists come out the same regardless of the input order.
func New(pools []poolmodel.Pool) (*PoolGraph, error) {
	ordered := make([]poolmodel.Pool, len(pools))
	copy(ordered, pools)
	poolmodel.SortByAddress(ordered)

	registry := tokenpoolregistry.NewTokenPoolRegistry()
	byAddress := make(map[common.Address]poolmodel.Pool, len(ordered))
	for _, p := range ordered {
		addr := p.Address()
		if _, dup := byAddress[addr]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePool, addr.Hex())
		}
		t0, t1 := p.Tokens()
		if t0 == t1 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPool, addr.Hex())
		}
		byAddress[addr] = p
		registry.Add([]common.Address{t0, t1}, addr)
	}

	view := registry.View()
	g := &PoolGraph{
		tokenPool:    view,
		tokenToIndex: make(map[common.Address]int, len(view.Tokens)),
		poolToIndex:  make(map[common.Address]int, len(view.Pools)),
		pools:        make([]poolmodel.Pool, len(view.Pools)),
	}
	for i, token := range view.Tokens {
		g.tokenToIndex[token] = i
	}
	for i, addr := range view.Pools {
		g.poolToIndex[addr] = i
		g.pools[i] = byAddress[addr]
	}
	return g, nil
}

// Len is the number of pools.
func (g *PoolGraph) Len() int { return len(g.pools) }

// HasToken reports whether any pool trades token.
func (g *PoolGraph) HasToken(token common.Address) bool {
	_, ok := g.tokenToIndex[token]
	return ok
}

// Pool looks a pool up by address.
func (g *PoolGraph) Pool(address common.Address) (poolmodel.Pool, bool) {
	i, ok := g.poolToIndex[address]
	if !ok {
		return nil, false
	}
	return g.pools[i], true
}

// TokenIndex is the dense index of token, usable as a bitset position.
func (g *PoolGraph) TokenIndex(token common.Address) (int, bool) {
	i, ok := g.tokenToIndex[token]
	return i, ok
}

// NumTokens bounds TokenIndex.
func (g *PoolGraph) NumTokens() int { return len(g.tokenPool.Tokens) }

// Tokens lists every token in first-seen order.
func (g *PoolGraph) Tokens() []common.Address {
	return append([]common.Address(nil), g.tokenPool.Tokens...)
}

// Neighbors lists the outgoing edges of token.
func (g *PoolGraph) Neighbors(token common.Address) []Edge {
	from, ok := g.tokenToIndex[token]
	if !ok {
		return nil
	}
	adjacency := g.tokenPool.Adjacency[from]
	edges := make([]Edge, 0, len(adjacency))
	for _, edgeIndex := range adjacency {
		poolIndices := g.tokenPool.EdgePools[edgeIndex]
		if len(poolIndices) == 0 {
			continue
		}
		edge := Edge{
			From:  token,
			To:    g.tokenPool.Tokens[g.tokenPool.EdgeTargets[edgeIndex]],
			Pools: make([]poolmodel.Pool, len(poolIndices)),
		}
		for i, poolIndex := range poolIndices {
			edge.Pools[i] = g.pools[poolIndex]
		}
		edges = append(edges, edge)
	}
	return edges
}

// PoolsBetween lists the pools trading a -> b directly.
func (g *PoolGraph) PoolsBetween(a, b common.Address) []poolmodel.Pool {
	for _, edge := range g.Neighbors(a) {
		if edge.To == b {
			return edge.Pools
		}
	}
	return nil
}
