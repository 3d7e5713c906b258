// Package quoter simulates amounts through routes against an immutable pool
// snapshot. A Quoter holds no mutable state and is safe for concurrent use.
package quoter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/route"
	"golang.org/x/sync/errgroup"
)

var ErrStateMismatch = errors.New("pool states do not match route")

// HopQuote is the simulated trade through one pool of a route.
type HopQuote struct {
	Hop            route.Hop
	AmountIn       *big.Int
	AmountOut      *big.Int
	PriceImpactBps int64
	// Next is the pool state after this hop. It is never written back.
	Next poolmodel.Pool
}

// RouteQuote is one route evaluated at one amount.
type RouteQuote struct {
	Route     route.Route
	AmountIn  *big.Int
	AmountOut *big.Int
	GasUnits  uint64
	// PriceImpactBps compares the output with the chained spot price.
	PriceImpactBps int64
	Hops           []HopQuote
}

// NextStates returns the post-trade pool of every hop.
func (q RouteQuote) NextStates() []poolmodel.Pool {
	states := make([]poolmodel.Pool, len(q.Hops))
	for i, h := range q.Hops {
		states[i] = h.Next
	}
	return states
}

// Quote is a whole allocation evaluated route by route.
type Quote struct {
	Routes    []RouteQuote
	AmountIn  *big.Int
	AmountOut *big.Int
	GasUnits  uint64
}

// Result pairs a route's quote with the error that made it unusable, if any.
type Result struct {
	Quote RouteQuote
	Err   error
}

type Quoter struct {
	gas         GasTable
	concurrency int
}

// New returns a quoter. concurrency bounds QuoteAll; values below one mean
// sequential quoting.
func New(gas GasTable, concurrency int) *Quoter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Quoter{gas: gas, concurrency: concurrency}
}

func (q *Quoter) Gas() GasTable { return q.gas }

// Quote simulates amountIn through r.
func (q *Quoter) Quote(r route.Route, amountIn *big.Int) (RouteQuote, error) {
	return q.QuoteFrom(r, nil, amountIn)
}

// QuoteFrom simulates amountIn through r starting from the given hop states
// instead of the snapshot. states must hold one pool per hop with matching
// addresses; nil means the route's own pools.
func (q *Quoter) QuoteFrom(r route.Route, states []poolmodel.Pool, amountIn *big.Int) (RouteQuote, error) {
	if states != nil && len(states) != r.Len() {
		return RouteQuote{}, fmt.Errorf("%w: %d states for %d hops", ErrStateMismatch, len(states), r.Len())
	}

	hops := make([]HopQuote, r.Len())
	amount := amountIn
	spot := amountIn
	for i := range hops {
		hop := r.Hop(i)
		pool := hop.Pool
		if states != nil {
			if states[i].Address() != pool.Address() {
				return RouteQuote{}, fmt.Errorf("%w: hop %d is %s, state is %s", ErrStateMismatch, i, pool.Address().Hex(), states[i].Address().Hex())
			}
			pool = states[i]
		}

		sim, err := pool.Simulate(hop.TokenIn, amount)
		if err != nil {
			return RouteQuote{}, fmt.Errorf("hop %d via %s: %w", i, pool.Address().Hex(), err)
		}
		if spot.Sign() > 0 {
			if spot, err = pool.SpotAmountOut(hop.TokenIn, spot); err != nil {
				return RouteQuote{}, fmt.Errorf("hop %d via %s: %w", i, pool.Address().Hex(), err)
			}
		}

		hops[i] = HopQuote{
			Hop:            hop,
			AmountIn:       amount,
			AmountOut:      sim.AmountOut,
			PriceImpactBps: sim.PriceImpactBps,
			Next:           sim.Next,
		}
		amount = sim.AmountOut
	}

	return RouteQuote{
		Route:          r,
		AmountIn:       new(big.Int).Set(amountIn),
		AmountOut:      amount,
		GasUnits:       q.gas.Estimate(r),
		PriceImpactBps: impactBps(spot, amount),
		Hops:           hops,
	}, nil
}

// QuoteExactOut walks r backwards to find the input that yields amountOut.
func (q *Quoter) QuoteExactOut(r route.Route, amountOut *big.Int) (RouteQuote, error) {
	hops := make([]HopQuote, r.Len())
	amount := amountOut
	for i := r.Len() - 1; i >= 0; i-- {
		hop := r.Hop(i)
		amountIn, next, err := hop.Pool.SimulateExactOut(hop.TokenIn, amount)
		if err != nil {
			return RouteQuote{}, fmt.Errorf("hop %d via %s: %w", i, hop.Pool.Address().Hex(), err)
		}
		hops[i] = HopQuote{Hop: hop, AmountIn: amountIn, AmountOut: amount, Next: next}
		amount = amountIn
	}

	spot := new(big.Int).Set(amount)
	for i := range hops {
		hop := r.Hop(i)
		s, err := hop.Pool.SpotAmountOut(hop.TokenIn, spot)
		if err != nil {
			return RouteQuote{}, fmt.Errorf("hop %d via %s: %w", i, hop.Pool.Address().Hex(), err)
		}
		if sp, err := hop.Pool.SpotAmountOut(hop.TokenIn, hops[i].AmountIn); err == nil {
			hops[i].PriceImpactBps = impactBps(sp, hops[i].AmountOut)
		}
		spot = s
	}

	return RouteQuote{
		Route:          r,
		AmountIn:       amount,
		AmountOut:      new(big.Int).Set(amountOut),
		GasUnits:       q.gas.Estimate(r),
		PriceImpactBps: impactBps(spot, amountOut),
		Hops:           hops,
	}, nil
}

// QuoteAllocation simulates every share independently against the snapshot
// and sums the outputs. Zero shares cost nothing and produce nothing.
func (q *Quoter) QuoteAllocation(a route.Allocation) (Quote, error) {
	quote := Quote{
		Routes:    make([]RouteQuote, 0, len(a.Shares)),
		AmountIn:  new(big.Int).Set(a.Total),
		AmountOut: new(big.Int),
	}
	for _, share := range a.Shares {
		if share.AmountIn.Sign() == 0 {
			continue
		}
		rq, err := q.Quote(share.Route, share.AmountIn)
		if err != nil {
			return Quote{}, fmt.Errorf("route %s: %w", share.Route.Key(), err)
		}
		quote.Routes = append(quote.Routes, rq)
		quote.AmountOut.Add(quote.AmountOut, rq.AmountOut)
		quote.GasUnits += rq.GasUnits
	}
	return quote, nil
}

// Single wraps a route quote as a one-route allocation quote.
func Single(rq RouteQuote) Quote {
	return Quote{
		Routes:    []RouteQuote{rq},
		AmountIn:  new(big.Int).Set(rq.AmountIn),
		AmountOut: new(big.Int).Set(rq.AmountOut),
		GasUnits:  rq.GasUnits,
	}
}

// QuoteAll quotes every route at amountIn concurrently. Per-route failures
// are reported in the matching Result; only cancellation fails the call.
func (q *Quoter) QuoteAll(ctx context.Context, routes []route.Route, amountIn *big.Int) ([]Result, error) {
	results := make([]Result, len(routes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.concurrency)
	for i, r := range routes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rq, err := q.Quote(r, amountIn)
			results[i] = Result{Quote: rq, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

var bps = big.NewInt(10_000)

func impactBps(spot, out *big.Int) int64 {
	if spot == nil || spot.Sign() <= 0 || out.Cmp(spot) >= 0 {
		return 0
	}
	diff := new(big.Int).Sub(spot, out)
	diff.Mul(diff, bps)
	diff.Quo(diff, spot)
	return diff.Int64()
}
