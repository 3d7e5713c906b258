// Package route holds the route and allocation types that flow between the
// path enumerator, the quoter and the optimizer.
package route

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidRoute      = errors.New("invalid route")
	ErrInvalidAllocation = errors.New("invalid allocation")
)

// Hop is one pool traversed in a fixed direction.
type Hop struct {
	Pool     poolmodel.Pool
	TokenIn  common.Address
	TokenOut common.Address
}

// Route is an ordered chain of hops. The zero value is not a valid route;
// use New.
type Route struct {
	hops []Hop
	key  string
}

// New walks pools starting from tokenIn. A route may not reuse a pool or
// revisit a token.
func New(tokenIn common.Address, pools ...poolmodel.Pool) (Route, error) {
	if len(pools) == 0 {
		return Route{}, fmt.Errorf("%w: no pools", ErrInvalidRoute)
	}

	hops := make([]Hop, len(pools))
	seenPools := make(map[common.Address]struct{}, len(pools))
	seenTokens := map[common.Address]struct{}{tokenIn: {}}
	keys := make([]string, len(pools))

	current := tokenIn
	for i, p := range pools {
		if p == nil {
			return Route{}, fmt.Errorf("%w: nil pool at hop %d", ErrInvalidRoute, i)
		}
		addr := p.Address()
		if _, dup := seenPools[addr]; dup {
			return Route{}, fmt.Errorf("%w: pool %s used twice", ErrInvalidRoute, addr.Hex())
		}
		next, err := poolmodel.Other(p, current)
		if err != nil {
			return Route{}, fmt.Errorf("%w: hop %d: %w", ErrInvalidRoute, i, err)
		}
		if _, dup := seenTokens[next]; dup {
			return Route{}, fmt.Errorf("%w: token %s revisited", ErrInvalidRoute, next.Hex())
		}
		seenPools[addr] = struct{}{}
		seenTokens[next] = struct{}{}
		hops[i] = Hop{Pool: p, TokenIn: current, TokenOut: next}
		keys[i] = addr.Hex()
		current = next
	}

	return Route{hops: hops, key: strings.Join(keys, ">")}, nil
}

// Hops returns a copy of the route's hops.
func (r Route) Hops() []Hop { return append([]Hop(nil), r.hops...) }

// Hop returns hop i.
func (r Route) Hop(i int) Hop { return r.hops[i] }

func (r Route) Len() int { return len(r.hops) }

func (r Route) TokenIn() common.Address { return r.hops[0].TokenIn }

func (r Route) TokenOut() common.Address { return r.hops[len(r.hops)-1].TokenOut }

// Key identifies the ordered pool sequence.
func (r Route) Key() string { return r.key }

// Pools lists the pool addresses in traversal order.
func (r Route) Pools() []common.Address {
	out := make([]common.Address, len(r.hops))
	for i, h := range r.hops {
		out[i] = h.Pool.Address()
	}
	return out
}

// Tokens lists every token on the path, tokenIn first.
func (r Route) Tokens() []common.Address {
	out := make([]common.Address, 0, len(r.hops)+1)
	out = append(out, r.TokenIn())
	for _, h := range r.hops {
		out = append(out, h.TokenOut)
	}
	return out
}

// UniformKind reports whether every hop trades on the same curve.
func (r Route) UniformKind() (poolmodel.Kind, bool) {
	kind := r.hops[0].Pool.Kind()
	for _, h := range r.hops[1:] {
		if h.Pool.Kind() != kind {
			return 0, false
		}
	}
	return kind, true
}

func (r Route) String() string {
	var b strings.Builder
	b.WriteString(r.TokenIn().Hex())
	for _, h := range r.hops {
		fmt.Fprintf(&b, " -[%s %s]-> %s", h.Pool.Kind(), h.Pool.Address().Hex(), h.TokenOut.Hex())
	}
	return b.String()
}

// Share is the portion of the total input sent down one route.
type Share struct {
	Route    Route
	AmountIn *big.Int
}

// Allocation splits one trade across routes. Shares sum to Total exactly.
type Allocation struct {
	Shares []Share
	Total  *big.Int
}

// NewAllocation validates shares against the requested total. Every route
// must start and end at the same tokens and appear once.
func NewAllocation(total *big.Int, shares ...Share) (Allocation, error) {
	if total == nil || total.Sign() <= 0 {
		return Allocation{}, fmt.Errorf("%w: total must be positive", ErrInvalidAllocation)
	}
	if len(shares) == 0 {
		return Allocation{}, fmt.Errorf("%w: no shares", ErrInvalidAllocation)
	}

	sum := new(big.Int)
	seen := make(map[string]struct{}, len(shares))
	out := make([]Share, len(shares))
	for i, s := range shares {
		if s.Route.Len() == 0 {
			return Allocation{}, fmt.Errorf("%w: share %d has no route", ErrInvalidAllocation, i)
		}
		if s.AmountIn == nil || s.AmountIn.Sign() < 0 {
			return Allocation{}, fmt.Errorf("%w: share %d amount must be non-negative", ErrInvalidAllocation, i)
		}
		if _, dup := seen[s.Route.Key()]; dup {
			return Allocation{}, fmt.Errorf("%w: route %s appears twice", ErrInvalidAllocation, s.Route.Key())
		}
		if s.Route.TokenIn() != shares[0].Route.TokenIn() || s.Route.TokenOut() != shares[0].Route.TokenOut() {
			return Allocation{}, fmt.Errorf("%w: share %d trades a different pair", ErrInvalidAllocation, i)
		}
		seen[s.Route.Key()] = struct{}{}
		sum.Add(sum, s.AmountIn)
		out[i] = Share{Route: s.Route, AmountIn: new(big.Int).Set(s.AmountIn)}
	}
	if sum.Cmp(total) != 0 {
		return Allocation{}, fmt.Errorf("%w: shares sum to %s, want %s", ErrInvalidAllocation, sum, total)
	}

	return Allocation{Shares: out, Total: new(big.Int).Set(total)}, nil
}

// Single is the degenerate one-route allocation.
func Single(r Route, amountIn *big.Int) (Allocation, error) {
	return NewAllocation(amountIn, Share{Route: r, AmountIn: amountIn})
}

func (a Allocation) TokenIn() common.Address  { return a.Shares[0].Route.TokenIn() }
func (a Allocation) TokenOut() common.Address { return a.Shares[0].Route.TokenOut() }
