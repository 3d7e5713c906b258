// Package router runs one routing request end to end: it acquires a pool
// snapshot and gas price, enumerates candidate routes, picks the best
// allocation and turns it into a trade plan.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/routing/graph"
	"github.com/defistate/defistate-router-go/routing/optimizer"
	"github.com/defistate/defistate-router-go/routing/pathfinder"
	"github.com/defistate/defistate-router-go/routing/planner"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/quoter"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolSource supplies block-consistent pool snapshots.
type PoolSource interface {
	FetchPools(ctx context.Context) (*poolmodel.Snapshot, error)
}

// GasPriceSource supplies the current gas price in wei.
type GasPriceSource interface {
	CurrentGasPrice(ctx context.Context) (*big.Int, error)
}

// Request is one routing request. Amount is raw: it is the input amount for
// exact-input trades and the desired output for exact-output trades.
type Request struct {
	TokenIn        tokenregistry.Token
	TokenOut       tokenregistry.Token
	Amount         *big.Int
	TradeType      planner.TradeType
	Recipient      common.Address
	Tolerance      planner.Tolerance
	DeadlineOffset time.Duration
}

func (r Request) params() Params {
	p := Params{
		TokenIn:   r.TokenIn.Address,
		TokenOut:  r.TokenOut.Address,
		TradeType: r.TradeType,
		Recipient: r.Recipient,
	}
	if r.Amount != nil {
		p.Amount = new(big.Int).Set(r.Amount)
	}
	return p
}

type Router struct {
	cfg        Config
	baseTokens mapset.Set[common.Address]
	pools      PoolSource
	gas        GasPriceSource
	quoter     *quoter.Quoter
	optimizer  *optimizer.Optimizer
	planner    *planner.Planner
	logger     Logger
	metrics    *Metrics
}

// New validates cfg and builds a Router. reg may be nil.
func New(cfg Config, pools PoolSource, gas GasPriceSource, logger Logger, reg prometheus.Registerer) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pools == nil {
		return nil, errors.New("router: PoolSource is required")
	}
	if gas == nil {
		return nil, errors.New("router: GasPriceSource is required")
	}
	if logger == nil {
		return nil, errors.New("router: Logger is required")
	}

	q := quoter.New(cfg.Gas, cfg.QuoteConcurrency)
	opt, err := optimizer.New(q, cfg.Split)
	if err != nil {
		return nil, err
	}

	cfg.BaseTokens = append([]common.Address(nil), cfg.BaseTokens...)
	return &Router{
		cfg:        cfg,
		baseTokens: mapset.NewSet(cfg.BaseTokens...),
		pools:      pools,
		gas:        gas,
		quoter:     q,
		optimizer:  opt,
		planner:    planner.New(cfg.SwapRouter, cfg.Clock),
		logger:     logger,
		metrics:    NewMetrics(reg),
	}, nil
}

// Config returns the router's configuration.
func (r *Router) Config() Config { return r.cfg }

// Route computes a trade plan for req. On failure it returns a *Error and
// no plan.
func (r *Router) Route(ctx context.Context, req Request) (plan *planner.TradePlan, err error) {
	start := time.Now()
	params := req.params()
	defer func() {
		r.metrics.requests.WithLabelValues(Outcome(err)).Inc()
		r.metrics.duration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	}()
	fail := func(op string, err error) (*planner.TradePlan, error) {
		r.logger.Debug("route failed", "op", op, "params", params.String(), "error", err)
		return nil, &Error{Op: op, Err: err, Params: params}
	}

	if err := r.validate(req); err != nil {
		return fail("validate", err)
	}

	snap, weiPrice, err := r.acquire(ctx)
	if err != nil {
		return fail("acquire", err)
	}
	r.metrics.duration.WithLabelValues("acquire").Observe(time.Since(start).Seconds())

	searchStart := time.Now()
	g, err := graph.New(snap.Pools)
	if err != nil {
		return fail("graph", fmt.Errorf("%w: %w", ErrDataUnavailable, err))
	}

	opts := r.cfg.pathOptions()
	opts.BaseTokens = r.baseTokens
	candidates, err := pathfinder.Enumerate(g, req.TokenIn.Address, req.TokenOut.Address, opts)
	if err != nil {
		return fail("enumerate", err)
	}
	r.metrics.candidates.Observe(float64(len(candidates)))

	// Gas is charged in whichever token the score is measured in.
	gasToken := req.TokenOut.Address
	if req.TradeType == planner.ExactOutput {
		gasToken = req.TokenIn.Address
	}
	gasPrice := r.gasUnitPrice(ctx, g, gasToken, weiPrice)

	var res *optimizer.Result
	switch req.TradeType {
	case planner.ExactOutput:
		res, err = r.optimizer.OptimizeExactOut(ctx, candidates, req.Amount, gasPrice)
	default:
		res, err = r.optimizer.Optimize(ctx, candidates, req.Amount, gasPrice)
	}
	if err != nil {
		return fail("optimize", err)
	}
	r.metrics.dropped.Add(float64(res.Dropped))
	r.metrics.splits.Observe(float64(len(res.Allocation.Shares)))
	r.metrics.duration.WithLabelValues("search").Observe(time.Since(searchStart).Seconds())

	if err := ctx.Err(); err != nil {
		return fail("optimize", err)
	}

	plan, err = r.planner.Plan(planner.Params{
		Quote:          res.Quote,
		TradeType:      req.TradeType,
		Tolerance:      req.Tolerance,
		DeadlineOffset: req.DeadlineOffset,
		Recipient:      req.Recipient,
		BlockNumber:    snap.BlockNumber,
	})
	if err != nil {
		return fail("plan", err)
	}

	r.logger.Info("route planned",
		"params", params.String(),
		"block", snap.BlockNumber,
		"candidates", len(candidates),
		"dropped", res.Dropped,
		"routes", len(plan.Instructions),
		"amount_in", plan.AmountIn,
		"amount_out", plan.AmountOut,
		"gas", plan.GasEstimate,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return plan, nil
}

func (r *Router) validate(req Request) error {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if req.TradeType != planner.ExactInput && req.TradeType != planner.ExactOutput {
		return fmt.Errorf("%w: unknown trade type %d", ErrInvalidRequest, req.TradeType)
	}
	if req.TokenIn.Equal(req.TokenOut) {
		return fmt.Errorf("%w: input and output are both %s", ErrInvalidRequest, req.TokenIn)
	}
	for _, tok := range []tokenregistry.Token{req.TokenIn, req.TokenOut} {
		if tok.ChainID != r.cfg.ChainID {
			return fmt.Errorf("%w: %s is on chain %d, router serves chain %d", ErrInvalidRequest, tok, tok.ChainID, r.cfg.ChainID)
		}
	}
	return planner.ValidateParams(req.Tolerance, req.DeadlineOffset, req.Recipient)
}

// acquire fetches the snapshot and gas price together under the snapshot
// timeout. Either failing fails both.
func (r *Router) acquire(ctx context.Context) (*poolmodel.Snapshot, *big.Int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.SnapshotTimeout)
	defer cancel()

	var (
		snap     *poolmodel.Snapshot
		gasPrice *big.Int
	)
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		s, err := r.pools.FetchPools(gctx)
		if err != nil {
			return fmt.Errorf("pool snapshot: %w", err)
		}
		if s == nil {
			return errors.New("pool snapshot: source returned nothing")
		}
		snap = s
		return nil
	})
	g.Go(func() error {
		p, err := r.gas.CurrentGasPrice(gctx)
		if err != nil {
			return fmt.Errorf("gas price: %w", err)
		}
		if p == nil || p.Sign() < 0 {
			return fmt.Errorf("gas price: invalid value %v", p)
		}
		gasPrice = p
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s: %w", ErrStaleDataTimeout, r.cfg.SnapshotTimeout, err)
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	return snap, gasPrice, nil
}

// gasUnitPrice converts a wei gas price into raw units of token per gas by
// quoting one wrapped native token into token. When no route prices the
// native token the gas cost is treated as zero.
func (r *Router) gasUnitPrice(ctx context.Context, g *graph.PoolGraph, token common.Address, weiPrice *big.Int) *big.Int {
	if weiPrice.Sign() == 0 {
		return new(big.Int)
	}
	native := r.cfg.WrappedNative
	if token == native.Address {
		return new(big.Int).Set(weiPrice)
	}

	opts := r.cfg.pathOptions()
	opts.BaseTokens = r.baseTokens
	one := tokenregistry.Scale(native.Decimals)

	candidates, err := pathfinder.Enumerate(g, native.Address, token, opts)
	if err != nil {
		r.logger.Warn("cannot price gas, treating it as free", "token", token.Hex(), "error", err)
		return new(big.Int)
	}
	results, err := r.quoter.QuoteAll(ctx, candidates, one)
	if err != nil {
		return new(big.Int)
	}

	var best *big.Int
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if best == nil || res.Quote.AmountOut.Cmp(best) > 0 {
			best = res.Quote.AmountOut
		}
	}
	if best == nil {
		r.logger.Warn("no route can price gas, treating it as free", "token", token.Hex())
		return new(big.Int)
	}

	price := new(big.Int).Mul(weiPrice, best)
	return price.Quo(price, one)
}

// Outcome classifies an error returned by Route into the label used for the
// request metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, planner.ErrInvalidDeadline),
		errors.Is(err, planner.ErrInvalidSlippageTolerance),
		errors.Is(err, planner.ErrInvalidRecipient):
		return "invalid_request"
	case errors.Is(err, ErrStaleDataTimeout):
		return "stale_data"
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, pathfinder.ErrNoRouteFound):
		return "no_route"
	case errors.Is(err, optimizer.ErrNoViableRoute):
		return "no_viable_route"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
