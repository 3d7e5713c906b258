package tokenpoolregistry

import (
	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolRegistryView is the registry's graph in index form.
// Adjacency[t] lists the edge indices leaving token t; EdgeTargets[e] is the
// token index edge e points at and EdgePools[e] the pool indices serving it.
type TokenPoolRegistryView struct {
	Tokens      []common.Address `json:"tokens"`
	Pools       []common.Address `json:"pools"`
	Adjacency   [][]int          `json:"adjacency"`
	EdgeTargets []int            `json:"edgeTargets"`
	EdgePools   [][]int          `json:"edgePools"`
}

type edgeKey struct{ from, to int }

// TokenPoolRegistry is an append-only multigraph over tokens with one
// directed edge per ordered token pair. Indices follow insertion order, so
// the same sequence of Add calls always yields the same view. A registry is
// built for one block and discarded; it is not safe for concurrent use.
type TokenPoolRegistry struct {
	view        TokenPoolRegistryView
	tokenIdx    map[common.Address]int
	poolIdx     map[common.Address]int
	edgeIdx     map[edgeKey]int
	edgeMembers map[edgeKey]map[int]struct{}
}

// NewTokenPoolRegistry creates an empty registry.
func NewTokenPoolRegistry() *TokenPoolRegistry {
	return &TokenPoolRegistry{
		tokenIdx:    make(map[common.Address]int),
		poolIdx:     make(map[common.Address]int),
		edgeIdx:     make(map[edgeKey]int),
		edgeMembers: make(map[edgeKey]map[int]struct{}),
	}
}

// NewTokenPoolRegistryFromView rebuilds a registry from a view. The view is
// copied; later changes to either side are not shared.
func NewTokenPoolRegistryFromView(view *TokenPoolRegistryView) *TokenPoolRegistry {
	r := NewTokenPoolRegistry()
	r.view = *copyView(view)
	for i, token := range r.view.Tokens {
		r.tokenIdx[token] = i
	}
	for i, pool := range r.view.Pools {
		r.poolIdx[pool] = i
	}
	for from, edges := range r.view.Adjacency {
		for _, e := range edges {
			key := edgeKey{from, r.view.EdgeTargets[e]}
			r.edgeIdx[key] = e
			members := make(map[int]struct{}, len(r.view.EdgePools[e]))
			for _, p := range r.view.EdgePools[e] {
				members[p] = struct{}{}
			}
			r.edgeMembers[key] = members
		}
	}
	return r
}

// Add connects every pair of tokens in the pool in both directions.
// Re-adding a pool to a pair it already serves is a no-op.
func (r *TokenPoolRegistry) Add(tokens []common.Address, pool common.Address) {
	p := r.internPool(pool)
	for i := range tokens {
		for j := i + 1; j < len(tokens); j++ {
			a, b := r.internToken(tokens[i]), r.internToken(tokens[j])
			r.link(a, b, p)
			r.link(b, a, p)
		}
	}
}

func (r *TokenPoolRegistry) internToken(token common.Address) int {
	if i, ok := r.tokenIdx[token]; ok {
		return i
	}
	i := len(r.view.Tokens)
	r.tokenIdx[token] = i
	r.view.Tokens = append(r.view.Tokens, token)
	r.view.Adjacency = append(r.view.Adjacency, nil)
	return i
}

func (r *TokenPoolRegistry) internPool(pool common.Address) int {
	if i, ok := r.poolIdx[pool]; ok {
		return i
	}
	i := len(r.view.Pools)
	r.poolIdx[pool] = i
	r.view.Pools = append(r.view.Pools, pool)
	return i
}

func (r *TokenPoolRegistry) link(from, to, pool int) {
	key := edgeKey{from, to}
	e, ok := r.edgeIdx[key]
	if !ok {
		e = len(r.view.EdgeTargets)
		r.edgeIdx[key] = e
		r.edgeMembers[key] = make(map[int]struct{})
		r.view.EdgeTargets = append(r.view.EdgeTargets, to)
		r.view.EdgePools = append(r.view.EdgePools, nil)
		r.view.Adjacency[from] = append(r.view.Adjacency[from], e)
	}
	if _, dup := r.edgeMembers[key][pool]; dup {
		return
	}
	r.edgeMembers[key][pool] = struct{}{}
	r.view.EdgePools[e] = append(r.view.EdgePools[e], pool)
}

// poolsForToken returns every pool touching the token, in first-seen order.
func (r *TokenPoolRegistry) poolsForToken(token common.Address) []common.Address {
	t, ok := r.tokenIdx[token]
	if !ok {
		return nil
	}
	var (
		out  []common.Address
		seen = make(map[int]struct{})
	)
	for _, e := range r.view.Adjacency[t] {
		for _, p := range r.view.EdgePools[e] {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out = append(out, r.view.Pools[p])
			}
		}
	}
	return out
}

// poolsBetween returns the pools serving the directed pair from -> to.
func (r *TokenPoolRegistry) poolsBetween(from, to common.Address) []common.Address {
	a, okA := r.tokenIdx[from]
	b, okB := r.tokenIdx[to]
	if !okA || !okB {
		return nil
	}
	e, ok := r.edgeIdx[edgeKey{a, b}]
	if !ok {
		return nil
	}
	out := make([]common.Address, len(r.view.EdgePools[e]))
	for i, p := range r.view.EdgePools[e] {
		out[i] = r.view.Pools[p]
	}
	return out
}

// View returns a deep copy of the graph.
func (r *TokenPoolRegistry) View() *TokenPoolRegistryView {
	return copyView(&r.view)
}

func copyView(v *TokenPoolRegistryView) *TokenPoolRegistryView {
	if v == nil {
		return &TokenPoolRegistryView{}
	}
	return &TokenPoolRegistryView{
		Tokens:      append([]common.Address(nil), v.Tokens...),
		Pools:       append([]common.Address(nil), v.Pools...),
		Adjacency:   copyNested(v.Adjacency),
		EdgeTargets: append([]int(nil), v.EdgeTargets...),
		EdgePools:   copyNested(v.EdgePools),
	}
}

func copyNested(in [][]int) [][]int {
	if in == nil {
		return nil
	}
	out := make([][]int, len(in))
	for i, row := range in {
		if row != nil {
			out[i] = append([]int(nil), row...)
		}
	}
	return out
}
