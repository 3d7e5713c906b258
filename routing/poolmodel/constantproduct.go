package poolmodel

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	uniswapv2calculator "github.com/defistate/defistate-router-go/protocols/uniswapv2/calculator"
	"github.com/ethereum/go-ethereum/common"
)

// ConstantProduct is a Uniswap V2 style x*y=k pool.
type ConstantProduct struct {
	state uniswapv2.Pool
}

// NewConstantProduct wraps a pool view after checking it is well formed.
// The view is deep copied.
func NewConstantProduct(p uniswapv2.Pool) (*ConstantProduct, error) {
	if p.Token0 == p.Token1 {
		return nil, fmt.Errorf("%w: pool %s trades %s against itself", ErrInvalidPool, p.Address.Hex(), p.Token0.Hex())
	}
	if p.Reserve0 == nil || p.Reserve1 == nil || p.Reserve0.Sign() < 0 || p.Reserve1.Sign() < 0 {
		return nil, fmt.Errorf("%w: pool %s has missing or negative reserves", ErrInvalidPool, p.Address.Hex())
	}
	if p.FeeBps >= 10_000 {
		return nil, fmt.Errorf("%w: pool %s fee %d bps", ErrInvalidPool, p.Address.Hex(), p.FeeBps)
	}
	return &ConstantProduct{state: uniswapv2.CopyPool(p)}, nil
}

// State returns a copy of the underlying pool view.
func (c *ConstantProduct) State() uniswapv2.Pool { return uniswapv2.CopyPool(c.state) }

func (c *ConstantProduct) Address() common.Address { return c.state.Address }
func (c *ConstantProduct) Kind() Kind              { return KindConstantProduct }
func (c *ConstantProduct) FeePips() uint32         { return uint32(c.state.FeeBps) * 100 }

func (c *ConstantProduct) Tokens() (common.Address, common.Address) {
	return c.state.Token0, c.state.Token1
}

func (c *ConstantProduct) Simulate(tokenIn common.Address, amountIn *big.Int) (Simulation, error) {
	if err := checkAmount(amountIn); err != nil {
		return Simulation{}, err
	}
	tokenOut, err := Other(c, tokenIn)
	if err != nil {
		return Simulation{}, err
	}

	out, next, err := uniswapv2calculator.SimulateSwap(amountIn, tokenIn, tokenOut, c.state)
	if err != nil {
		return Simulation{}, c.wrap(err)
	}
	if out.Sign() == 0 {
		return Simulation{}, fmt.Errorf("%w: pool %s returns nothing for %s", ErrInsufficientLiquidity, c.state.Address.Hex(), amountIn)
	}
	spot, err := uniswapv2calculator.SpotAmountOut(amountIn, tokenIn, tokenOut, c.state)
	if err != nil {
		return Simulation{}, c.wrap(err)
	}
	return Simulation{
		AmountOut:      out,
		Next:           &ConstantProduct{state: next},
		PriceImpactBps: priceImpactBps(spot, out),
	}, nil
}

func (c *ConstantProduct) SimulateExactOut(tokenIn common.Address, amountOut *big.Int) (*big.Int, Pool, error) {
	if err := checkAmount(amountOut); err != nil {
		return nil, nil, err
	}
	tokenOut, err := Other(c, tokenIn)
	if err != nil {
		return nil, nil, err
	}

	in, next, err := uniswapv2calculator.SimulateExactOutSwap(amountOut, tokenIn, tokenOut, c.state)
	if err != nil {
		return nil, nil, c.wrap(err)
	}
	return in, &ConstantProduct{state: next}, nil
}

func (c *ConstantProduct) SpotAmountOut(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	if err := checkAmount(amountIn); err != nil {
		return nil, err
	}
	tokenOut, err := Other(c, tokenIn)
	if err != nil {
		return nil, err
	}
	spot, err := uniswapv2calculator.SpotAmountOut(amountIn, tokenIn, tokenOut, c.state)
	if err != nil {
		return nil, c.wrap(err)
	}
	return spot, nil
}

func (c *ConstantProduct) Depth(token common.Address) *big.Int {
	switch token {
	case c.state.Token0:
		return new(big.Int).Set(c.state.Reserve0)
	case c.state.Token1:
		return new(big.Int).Set(c.state.Reserve1)
	}
	return new(big.Int)
}

func (c *ConstantProduct) wrap(err error) error {
	switch {
	case errors.Is(err, uniswapv2calculator.ErrInsufficientLiquidity):
		return fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	case errors.Is(err, uniswapv2calculator.ErrTokenMismatch):
		return fmt.Errorf("%w: %w", ErrUnknownToken, err)
	}
	return err
}
