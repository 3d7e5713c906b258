// Package optimizer picks the single route or multi-route split with the
// best gas-adjusted output for a trade.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/quoter"
	"github.com/defistate/defistate-router-go/routing/route"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoViableRoute = errors.New("no viable route")
	ErrInvalidConfig = errors.New("invalid optimizer config")
)

const MaxSplitRoutes = 4

// Config bounds the split search. MaxSplitRoutes of 1 disables splitting.
type Config struct {
	MaxSplitRoutes int `yaml:"maxSplitRoutes" json:"maxSplitRoutes"`
	// StepPercent is the bucket size; it must divide 100.
	StepPercent int `yaml:"stepPercent" json:"stepPercent"`
}

func DefaultConfig() Config {
	return Config{MaxSplitRoutes: 4, StepPercent: 5}
}

func (c Config) Validate() error {
	if c.MaxSplitRoutes < 1 || c.MaxSplitRoutes > MaxSplitRoutes {
		return fmt.Errorf("%w: max split routes must be between 1 and %d, got %d", ErrInvalidConfig, MaxSplitRoutes, c.MaxSplitRoutes)
	}
	if c.StepPercent < 1 || c.StepPercent > 100 || 100%c.StepPercent != 0 {
		return fmt.Errorf("%w: step percent %d does not divide 100", ErrInvalidConfig, c.StepPercent)
	}
	return nil
}

// Result is the winning allocation with its exact quote.
type Result struct {
	Allocation route.Allocation
	Quote      quoter.Quote
	// Score is output minus gas cost for exact-input trades, and input plus
	// gas cost for exact-output trades.
	Score *big.Int
	// Dropped counts candidates that could not fill the amount.
	Dropped int
}

type Optimizer struct {
	quoter *quoter.Quoter
	cfg    Config
}

func New(q *quoter.Quoter, cfg Config) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{quoter: q, cfg: cfg}, nil
}

// viable is a candidate that filled the full amount.
type viable struct {
	rank  int
	quote quoter.RouteQuote
	score *big.Int
}

// Optimize scores every candidate at totalIn, then searches bucketed splits
// across the best few. gasPrice is the cost of one gas unit in output-token
// units; nil means gas is free. Candidates must be ordered by preference
// since earlier ones win ties.
func (o *Optimizer) Optimize(ctx context.Context, candidates []route.Route, totalIn, gasPrice *big.Int) (*Result, error) {
	if totalIn == nil || totalIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", poolmodel.ErrInvalidAmount)
	}
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}

	results, err := o.quoter.QuoteAll(ctx, candidates, totalIn)
	if err != nil {
		return nil, err
	}

	var usable []viable
	dropped := 0
	for i, res := range results {
		if res.Err != nil {
			if errors.Is(res.Err, poolmodel.ErrInsufficientLiquidity) {
				dropped++
				continue
			}
			return nil, res.Err
		}
		usable = append(usable, viable{
			rank:  i,
			quote: res.Quote,
			score: netOutput(res.Quote.AmountOut, res.Quote.GasUnits, gasPrice),
		})
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: all %d candidates lack liquidity for %s", ErrNoViableRoute, len(candidates), totalIn)
	}

	best := usable[0]
	for _, v := range usable[1:] {
		if v.score.Cmp(best.score) > 0 {
			best = v
		}
	}
	baseline, err := route.Single(best.quote.Route, totalIn)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Allocation: baseline,
		Quote:      quoter.Single(best.quote),
		Score:      best.score,
		Dropped:    dropped,
	}

	split, err := o.bestSplit(ctx, usable, totalIn, gasPrice)
	if err != nil {
		return nil, err
	}
	if split != nil && split.Score.Cmp(result.Score) > 0 {
		split.Dropped = dropped
		result = split
	}
	return result, nil
}

// OptimizeExactOut picks the single route buying amountOut for the least
// input plus gas. gasPrice is in input-token units. Only routes on a single
// curve kind are considered.
func (o *Optimizer) OptimizeExactOut(ctx context.Context, candidates []route.Route, amountOut, gasPrice *big.Int) (*Result, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", poolmodel.ErrInvalidAmount)
	}
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}

	var (
		best     *quoter.RouteQuote
		bestCost *big.Int
		dropped  int
	)
	for _, r := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, uniform := r.UniformKind(); !uniform {
			continue
		}
		rq, err := o.quoter.QuoteExactOut(r, amountOut)
		if err != nil {
			if errors.Is(err, poolmodel.ErrInsufficientLiquidity) {
				dropped++
				continue
			}
			return nil, err
		}
		cost := new(big.Int).Mul(new(big.Int).SetUint64(rq.GasUnits), gasPrice)
		cost.Add(cost, rq.AmountIn)
		if best == nil || cost.Cmp(bestCost) < 0 {
			best, bestCost = &rq, cost
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no candidate can deliver %s", ErrNoViableRoute, amountOut)
	}

	alloc, err := route.Single(best.Route, best.AmountIn)
	if err != nil {
		return nil, err
	}
	return &Result{
		Allocation: alloc,
		Quote:      quoter.Single(*best),
		Score:      bestCost,
		Dropped:    dropped,
	}, nil
}

func netOutput(out *big.Int, gasUnits uint64, gasPrice *big.Int) *big.Int {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasUnits), gasPrice)
	return cost.Sub(out, cost)
}

// bucketAmount is floor(total * b / n).
func bucketAmount(total *big.Int, b, n int) *big.Int {
	amount := new(big.Int).Mul(total, big.NewInt(int64(b)))
	return amount.Quo(amount, big.NewInt(int64(n)))
}

// topByOutput returns up to k candidates with the largest raw output.
func topByOutput(usable []viable, k int) []viable {
	top := make([]viable, len(usable))
	copy(top, usable)
	sort.SliceStable(top, func(i, j int) bool {
		if c := top[i].quote.AmountOut.Cmp(top[j].quote.AmountOut); c != 0 {
			return c > 0
		}
		return top[i].rank < top[j].rank
	})
	return top[:min(k, len(top))]
}

// bestSplit returns nil when no split of two or more routes is feasible.
func (o *Optimizer) bestSplit(ctx context.Context, usable []viable, total, gasPrice *big.Int) (*Result, error) {
	n := 100 / o.cfg.StepPercent
	top := topByOutput(usable, o.cfg.MaxSplitRoutes)
	if len(top) < 2 || n < 2 {
		return nil, nil
	}

	table := make([][]*big.Int, len(top))
	for k, v := range top {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table[k] = o.cumulativeOutputs(v.quote.Route, total, n)
	}

	s := newSplitSearch(top, table, n, gasPrice)
	s.run()
	if s.best == nil {
		return nil, nil
	}

	shares := make([]route.Share, 0, len(s.best))
	sum := new(big.Int)
	largest := 0
	for i, b := range s.best {
		amount := bucketAmount(total, b.buckets, n)
		sum.Add(sum, amount)
		if b.buckets > s.best[largest].buckets {
			largest = i
		}
		shares = append(shares, route.Share{Route: top[b.route].quote.Route, AmountIn: amount})
	}
	remainder := new(big.Int).Sub(total, sum)
	shares[largest].AmountIn.Add(shares[largest].AmountIn, remainder)

	alloc, err := route.NewAllocation(total, shares...)
	if err != nil {
		return nil, err
	}
	quote, err := o.quoter.QuoteAllocation(alloc)
	if err != nil {
		if errors.Is(err, poolmodel.ErrInsufficientLiquidity) {
			return nil, nil
		}
		return nil, err
	}
	return &Result{
		Allocation: alloc,
		Quote:      quote,
		Score:      netOutput(quote.AmountOut, quote.GasUnits, gasPrice),
	}, nil
}

// cumulativeOutputs simulates the route one bucket at a time, each bucket
// against the pool states left by the previous ones. Entry b is the total
// output for b buckets, or nil once the route runs dry.
func (o *Optimizer) cumulativeOutputs(r route.Route, total *big.Int, n int) []*big.Int {
	outputs := make([]*big.Int, n+1)
	outputs[0] = new(big.Int)

	var states []poolmodel.Pool
	prev := new(big.Int)
	for b := 1; b <= n; b++ {
		cum := bucketAmount(total, b, n)
		step := new(big.Int).Sub(cum, prev)
		prev = cum
		if step.Sign() == 0 {
			outputs[b] = outputs[b-1]
			continue
		}
		rq, err := o.quoter.QuoteFrom(r, states, step)
		if err != nil {
			break
		}
		states = rq.NextStates()
		outputs[b] = new(big.Int).Add(outputs[b-1], rq.AmountOut)
	}
	return outputs
}

type assignment struct {
	route   int
	buckets int
}

// splitSearch enumerates every composition of n buckets over two or more
// pool-disjoint routes.
type splitSearch struct {
	top      []viable
	table    [][]*big.Int
	n        int
	gasPrice *big.Int
	conflict [][]bool

	current   []assignment
	best      []assignment
	bestScore *big.Int
}

func newSplitSearch(top []viable, table [][]*big.Int, n int, gasPrice *big.Int) *splitSearch {
	pools := make([]mapset.Set[common.Address], len(top))
	for i, v := range top {
		pools[i] = mapset.NewThreadUnsafeSet(v.quote.Route.Pools()...)
	}
	conflict := make([][]bool, len(top))
	for i := range top {
		conflict[i] = make([]bool, len(top))
		for j := range top {
			conflict[i][j] = i != j && pools[i].Intersect(pools[j]).Cardinality() > 0
		}
	}
	return &splitSearch{
		top:      top,
		table:    table,
		n:        n,
		gasPrice: gasPrice,
		conflict: conflict,
	}
}

func (s *splitSearch) run() {
	s.assign(0, s.n)
}

func (s *splitSearch) assign(next, remaining int) {
	if remaining == 0 {
		if len(s.current) >= 2 {
			s.consider()
		}
		return
	}
	if next == len(s.top) {
		return
	}

	// give route next a positive number of buckets
	if s.compatible(next) {
		for b := remaining; b >= 1; b-- {
			if s.table[next][b] == nil {
				continue
			}
			s.current = append(s.current, assignment{route: next, buckets: b})
			s.assign(next+1, remaining-b)
			s.current = s.current[:len(s.current)-1]
		}
	}
	s.assign(next+1, remaining)
}

func (s *splitSearch) compatible(k int) bool {
	for _, a := range s.current {
		if s.conflict[a.route][k] {
			return false
		}
	}
	return true
}

func (s *splitSearch) consider() {
	out := new(big.Int)
	var gas uint64
	for _, a := range s.current {
		out.Add(out, s.table[a.route][a.buckets])
		gas += s.top[a.route].quote.GasUnits
	}
	score := netOutput(out, gas, s.gasPrice)

	better := s.best == nil || score.Cmp(s.bestScore) > 0 ||
		(score.Cmp(s.bestScore) == 0 && len(s.current) < len(s.best))
	if better {
		s.best = append(s.best[:0:0], s.current...)
		s.bestScore = score
	}
}
