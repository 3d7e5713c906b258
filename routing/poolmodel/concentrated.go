package poolmodel

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
	uniswapv3calculator "github.com/defistate/defistate-router-go/protocols/uniswapv3/calculator"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3/calculator/v3math"
	"github.com/ethereum/go-ethereum/common"
)

// Concentrated is a Uniswap V3 style pool with liquidity in tick ranges.
type Concentrated struct {
	state uniswapv3.Pool
}

// NewConcentrated wraps a pool view after checking it is well formed. The
// view is deep copied and its ticks sorted by index.
func NewConcentrated(p uniswapv3.Pool) (*Concentrated, error) {
	if p.Token0 == p.Token1 {
		return nil, fmt.Errorf("%w: pool %s trades %s against itself", ErrInvalidPool, p.Address.Hex(), p.Token0.Hex())
	}
	if p.SqrtPriceX96 == nil || p.SqrtPriceX96.Cmp(v3math.MinSqrtRatio) < 0 || p.SqrtPriceX96.Cmp(v3math.MaxSqrtRatio) >= 0 {
		return nil, fmt.Errorf("%w: pool %s has no valid price", ErrInvalidPool, p.Address.Hex())
	}
	if p.Liquidity == nil || p.Liquidity.Sign() < 0 {
		return nil, fmt.Errorf("%w: pool %s has invalid liquidity", ErrInvalidPool, p.Address.Hex())
	}
	if p.Fee >= 1_000_000 {
		return nil, fmt.Errorf("%w: pool %s fee %d pips", ErrInvalidPool, p.Address.Hex(), p.Fee)
	}
	for _, t := range p.Ticks {
		if t.LiquidityNet == nil {
			return nil, fmt.Errorf("%w: pool %s tick %d has no liquidityNet", ErrInvalidPool, p.Address.Hex(), t.Index)
		}
	}

	state := uniswapv3.CopyPool(p)
	sort.Slice(state.Ticks, func(i, j int) bool { return state.Ticks[i].Index < state.Ticks[j].Index })
	return &Concentrated{state: state}, nil
}

// State returns a copy of the underlying pool view.
func (c *Concentrated) State() uniswapv3.Pool { return uniswapv3.CopyPool(c.state) }

func (c *Concentrated) Address() common.Address { return c.state.Address }
func (c *Concentrated) Kind() Kind              { return KindConcentrated }
func (c *Concentrated) FeePips() uint32         { return uint32(c.state.Fee) }

func (c *Concentrated) Tokens() (common.Address, common.Address) {
	return c.state.Token0, c.state.Token1
}

func (c *Concentrated) Simulate(tokenIn common.Address, amountIn *big.Int) (Simulation, error) {
	if err := checkAmount(amountIn); err != nil {
		return Simulation{}, err
	}
	tokenOut, err := Other(c, tokenIn)
	if err != nil {
		return Simulation{}, err
	}

	out, next, err := uniswapv3calculator.SimulateExactInSwap(amountIn, nil, tokenIn, tokenOut, c.state)
	if err != nil {
		return Simulation{}, c.wrap(err)
	}
	if out.Sign() == 0 {
		return Simulation{}, fmt.Errorf("%w: pool %s returns nothing for %s", ErrInsufficientLiquidity, c.state.Address.Hex(), amountIn)
	}
	spot, err := uniswapv3calculator.SpotAmountOut(amountIn, tokenIn, tokenOut, c.state)
	if err != nil {
		return Simulation{}, c.wrap(err)
	}
	// the tick slice is never written to, so states share it
	return Simulation{
		AmountOut:      out,
		Next:           &Concentrated{state: next},
		PriceImpactBps: priceImpactBps(spot, out),
	}, nil
}

func (c *Concentrated) SimulateExactOut(tokenIn common.Address, amountOut *big.Int) (*big.Int, Pool, error) {
	if err := checkAmount(amountOut); err != nil {
		return nil, nil, err
	}
	tokenOut, err := Other(c, tokenIn)
	if err != nil {
		return nil, nil, err
	}

	in, next, err := uniswapv3calculator.SimulateExactOutSwap(amountOut, nil, tokenIn, tokenOut, c.state)
	if err != nil {
		return nil, nil, c.wrap(err)
	}
	return in, &Concentrated{state: next}, nil
}

func (c *Concentrated) SpotAmountOut(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	if err := checkAmount(amountIn); err != nil {
		return nil, err
	}
	tokenOut, err := Other(c, tokenIn)
	if err != nil {
		return nil, err
	}
	spot, err := uniswapv3calculator.SpotAmountOut(amountIn, tokenIn, tokenOut, c.state)
	if err != nil {
		return nil, c.wrap(err)
	}
	return spot, nil
}

func (c *Concentrated) Depth(token common.Address) *big.Int {
	tokenIn, err := Other(c, token)
	if err != nil {
		return new(big.Int)
	}
	_, reserveOut, err := uniswapv3calculator.GetVirtualReserves(tokenIn, token, c.state)
	if err != nil {
		return new(big.Int)
	}
	return reserveOut
}

func (c *Concentrated) wrap(err error) error {
	switch {
	case errors.Is(err, uniswapv3calculator.ErrInsufficientLiquidity),
		errors.Is(err, v3math.ErrOutputExceedsPool),
		errors.Is(err, v3math.ErrLiquidityUnderflow):
		return fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	case errors.Is(err, uniswapv3calculator.ErrTokenMismatch):
		return fmt.Errorf("%w: %w", ErrUnknownToken, err)
	}
	return err
}
