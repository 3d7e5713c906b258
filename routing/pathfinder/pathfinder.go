// Package pathfinder enumerates candidate routes between two tokens with a
// bounded depth-first search over a pool graph.
package pathfinder

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-router-go/bitset"
	"github.com/defistate/defistate-router-go/routing/graph"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/route"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoRouteFound   = errors.New("no route found")
	ErrInvalidOptions = errors.New("invalid path options")
)

const (
	DefaultMaxHops       = 3
	DefaultMaxCandidates = 20
)

// Options bounds the search. Tokens reached after the first hop may only be
// used as intermediates when they are in BaseTokens; a nil set allows none.
type Options struct {
	MaxHops       int
	MaxCandidates int
	BaseTokens    mapset.Set[common.Address]
}

func (o Options) Validate() error {
	if o.MaxHops < 1 {
		return fmt.Errorf("%w: max hops %d", ErrInvalidOptions, o.MaxHops)
	}
	if o.MaxCandidates < 1 {
		return fmt.Errorf("%w: max candidates %d", ErrInvalidOptions, o.MaxCandidates)
	}
	return nil
}

// candidate carries the liquidity figures used for ranking.
type candidate struct {
	route      route.Route
	lastDepth  *big.Int
	firstDepth *big.Int
}

type search struct {
	g        *graph.PoolGraph
	opts     Options
	tokenIn  common.Address
	tokenOut common.Address

	visited bitset.BitSet
	path    []poolmodel.Pool
	seen    map[string]struct{}
	found   []candidate
}

// Enumerate lists at most MaxCandidates routes from tokenIn to tokenOut.
// Routes are ordered by hop count, then by output-side depth of the last
// hop, then of the first hop, then by pool addresses.
func Enumerate(g *graph.PoolGraph, tokenIn, tokenOut common.Address, opts Options) ([]route.Route, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if tokenIn == tokenOut {
		return nil, fmt.Errorf("%w: input and output are both %s", ErrNoRouteFound, tokenIn.Hex())
	}
	start, ok := g.TokenIndex(tokenIn)
	if !ok {
		return nil, fmt.Errorf("%w: no pool trades %s", ErrNoRouteFound, tokenIn.Hex())
	}
	if !g.HasToken(tokenOut) {
		return nil, fmt.Errorf("%w: no pool trades %s", ErrNoRouteFound, tokenOut.Hex())
	}

	s := &search{
		g:        g,
		opts:     opts,
		tokenIn:  tokenIn,
		tokenOut: tokenOut,
		visited:  bitset.New(g.NumTokens()),
		path:     make([]poolmodel.Pool, 0, opts.MaxHops),
		seen:     make(map[string]struct{}),
	}
	s.visited.Set(start)
	if err := s.walk(tokenIn); err != nil {
		return nil, err
	}
	if len(s.found) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s within %d hops", ErrNoRouteFound, tokenIn.Hex(), tokenOut.Hex(), opts.MaxHops)
	}

	sort.SliceStable(s.found, func(i, j int) bool {
		a, b := s.found[i], s.found[j]
		if a.route.Len() != b.route.Len() {
			return a.route.Len() < b.route.Len()
		}
		if c := a.lastDepth.Cmp(b.lastDepth); c != 0 {
			return c > 0
		}
		if c := a.firstDepth.Cmp(b.firstDepth); c != 0 {
			return c > 0
		}
		return a.route.Key() < b.route.Key()
	})

	n := min(len(s.found), opts.MaxCandidates)
	routes := make([]route.Route, n)
	for i := range routes {
		routes[i] = s.found[i].route
	}
	return routes, nil
}

func (s *search) walk(current common.Address) error {
	depth := len(s.path)
	for _, edge := range s.g.Neighbors(current) {
		next := edge.To
		index, _ := s.g.TokenIndex(next)
		if s.visited.IsSet(index) {
			continue
		}

		if next == s.tokenOut {
			for _, p := range edge.Pools {
				if err := s.emit(p); err != nil {
					return err
				}
			}
			continue
		}

		if depth+2 > s.opts.MaxHops {
			continue
		}
		if depth > 0 && (s.opts.BaseTokens == nil || !s.opts.BaseTokens.Contains(next)) {
			continue
		}

		s.visited.Set(index)
		for _, p := range edge.Pools {
			s.path = append(s.path, p)
			err := s.walk(next)
			s.path = s.path[:len(s.path)-1]
			if err != nil {
				return err
			}
		}
		s.visited.Unset(index)
	}
	return nil
}

func (s *search) emit(last poolmodel.Pool) error {
	pools := make([]poolmodel.Pool, 0, len(s.path)+1)
	pools = append(pools, s.path...)
	pools = append(pools, last)

	r, err := route.New(s.tokenIn, pools...)
	if err != nil {
		return err
	}
	if _, dup := s.seen[r.Key()]; dup {
		return nil
	}
	s.seen[r.Key()] = struct{}{}

	first := r.Hop(0)
	s.found = append(s.found, candidate{
		route:      r,
		lastDepth:  last.Depth(s.tokenOut),
		firstDepth: first.Pool.Depth(first.TokenOut),
	})
	return nil
}
