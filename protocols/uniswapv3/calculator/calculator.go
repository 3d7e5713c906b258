package uniswapv3

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	uniswapv3 "github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3/calculator/tickbitmap"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3/calculator/v3math"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrTokenMismatch         = errors.New("token mismatch")
	ErrInvalidPoolState      = errors.New("pool state is incomplete")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")

	// default price limits, one step inside the representable range
	minSqrtPriceLimit = new(big.Int).Add(v3math.MinSqrtRatio, big.NewInt(1))
	maxSqrtPriceLimit = new(big.Int).Sub(v3math.MaxSqrtRatio, big.NewInt(1))
)

// swapState carries a swap through the tick walk. All fields are reused
// between calls through swapStatePool.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *big.Int
	tick                     int64
	liquidity                *big.Int

	sqrtPriceStartX96 *big.Int
	sqrtPriceNextX96  *big.Int
	targetPrice       *big.Int
	step              *v3math.StepResult
	tempAmount        *big.Int
	liquidityNet      *big.Int
}

var swapStatePool = sync.Pool{
	New: func() any {
		return &swapState{
			amountSpecifiedRemaining: new(big.Int),
			amountCalculated:         new(big.Int),
			sqrtPriceX96:             new(big.Int),
			liquidity:                new(big.Int),
			sqrtPriceStartX96:        new(big.Int),
			sqrtPriceNextX96:         new(big.Int),
			targetPrice:              new(big.Int),
			step:                     v3math.NewStepResult(),
			tempAmount:               new(big.Int),
			liquidityNet:             new(big.Int),
		}
	},
}

func (s *swapState) reset(amountSpecified *big.Int, pool uniswapv3.Pool) {
	s.amountSpecifiedRemaining.Set(amountSpecified)
	s.amountCalculated.SetInt64(0)
	s.sqrtPriceX96.Set(pool.SqrtPriceX96)
	s.tick = pool.Tick
	s.liquidity.Set(pool.Liquidity)
}

// swap walks initialized ticks until the specified amount is used up or the
// price limit is hit. A positive amountSpecifiedRemaining is an exact input,
// a negative one an exact output. Any amount left at the end of the walk means
// the pool cannot fill the trade.
func swap(state *swapState, pool uniswapv3.Pool, sqrtPriceLimitX96 *big.Int, zeroForOne bool) error {
	if sqrtPriceLimitX96 == nil {
		if zeroForOne {
			sqrtPriceLimitX96 = minSqrtPriceLimit
		} else {
			sqrtPriceLimitX96 = maxSqrtPriceLimit
		}
	}

	exactInput := state.amountSpecifiedRemaining.Sign() > 0
	fee := uint32(pool.Fee)
	if pool.Fee >= 1_000_000 {
		return fmt.Errorf("%w: pool %s", v3math.ErrInvalidFee, pool.Address.Hex())
	}

	for state.amountSpecifiedRemaining.Sign() != 0 && state.sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0 {
		state.sqrtPriceStartX96.Set(state.sqrtPriceX96)

		pos, initialized := tickbitmap.NextInitializedTick(pool.Ticks, state.tick, zeroForOne)
		var tickNext int64
		switch {
		case initialized:
			tickNext = pool.Ticks[pos].Index
		case zeroForOne:
			tickNext = v3math.MinTick
		default:
			tickNext = v3math.MaxTick
		}
		if tickNext < v3math.MinTick {
			tickNext = v3math.MinTick
		} else if tickNext > v3math.MaxTick {
			tickNext = v3math.MaxTick
		}

		if err := v3math.SqrtRatioAtTick(state.sqrtPriceNextX96, tickNext); err != nil {
			return err
		}

		if (zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0) ||
			(!zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0) {
			state.targetPrice.Set(sqrtPriceLimitX96)
		} else {
			state.targetPrice.Set(state.sqrtPriceNextX96)
		}

		err := v3math.ComputeSwapStep(
			state.step,
			state.sqrtPriceStartX96,
			state.targetPrice,
			state.liquidity,
			state.amountSpecifiedRemaining,
			fee,
		)
		if err != nil {
			return err
		}
		state.sqrtPriceX96.Set(state.step.SqrtRatioNextX96)

		state.tempAmount.Add(state.step.AmountIn, state.step.FeeAmount)
		if exactInput {
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, state.tempAmount)
			state.amountCalculated.Add(state.amountCalculated, state.step.AmountOut)
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, state.step.AmountOut)
			state.amountCalculated.Add(state.amountCalculated, state.tempAmount)
		}

		if state.sqrtPriceX96.Cmp(state.sqrtPriceNextX96) == 0 {
			if initialized {
				state.liquidityNet.Set(pool.Ticks[pos].LiquidityNet)
				if zeroForOne {
					state.liquidityNet.Neg(state.liquidityNet)
				}
				if err := v3math.AddDelta(state.liquidity, state.liquidity, state.liquidityNet); err != nil {
					return fmt.Errorf("crossing tick %d of pool %s: %w", tickNext, pool.Address.Hex(), err)
				}
			}
			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if state.sqrtPriceX96.Cmp(state.sqrtPriceStartX96) != 0 {
			state.tick, err = v3math.TickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return err
			}
		}
	}

	if state.amountSpecifiedRemaining.Sign() != 0 {
		return fmt.Errorf("%w: pool %s left %s unfilled", ErrInsufficientLiquidity, pool.Address.Hex(), new(big.Int).Abs(state.amountSpecifiedRemaining))
	}
	return nil
}

func direction(tokenIn, tokenOut common.Address, pool uniswapv3.Pool) (zeroForOne bool, err error) {
	switch {
	case tokenIn == pool.Token0 && tokenOut == pool.Token1:
		return true, nil
	case tokenIn == pool.Token1 && tokenOut == pool.Token0:
		return false, nil
	}
	return false, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex(), tokenOut.Hex())
}

func validate(amount *big.Int, pool uniswapv3.Pool) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 || pool.Liquidity == nil {
		return fmt.Errorf("%w: pool %s", ErrInvalidPoolState, pool.Address.Hex())
	}
	return nil
}

func nextState(pool uniswapv3.Pool, state *swapState) uniswapv3.Pool {
	next := pool
	next.SqrtPriceX96 = new(big.Int).Set(state.sqrtPriceX96)
	next.Tick = state.tick
	next.Liquidity = new(big.Int).Set(state.liquidity)
	return next
}

// SimulateExactInSwap returns the output for amountIn and the pool state after
// the swap. A nil sqrtPriceLimitX96 lets the price move to the edge of the
// representable range. The input pool is not modified; the returned pool
// shares its tick slice.
func SimulateExactInSwap(
	amountIn *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn, tokenOut common.Address,
	pool uniswapv3.Pool,
) (amountOut *big.Int, newPoolState uniswapv3.Pool, err error) {
	if err := validate(amountIn, pool); err != nil {
		return nil, uniswapv3.Pool{}, err
	}
	zeroForOne, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, uniswapv3.Pool{}, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.reset(amountIn, pool)
	if err := swap(state, pool, sqrtPriceLimitX96, zeroForOne); err != nil {
		return nil, uniswapv3.Pool{}, err
	}
	return new(big.Int).Set(state.amountCalculated), nextState(pool, state), nil
}

// SimulateExactOutSwap returns the input required to receive amountOut and
// the pool state after the swap.
func SimulateExactOutSwap(
	amountOut *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn, tokenOut common.Address,
	pool uniswapv3.Pool,
) (amountIn *big.Int, newPoolState uniswapv3.Pool, err error) {
	if err := validate(amountOut, pool); err != nil {
		return nil, uniswapv3.Pool{}, err
	}
	zeroForOne, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, uniswapv3.Pool{}, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.reset(amountOut, pool)
	state.amountSpecifiedRemaining.Neg(state.amountSpecifiedRemaining)
	if err := swap(state, pool, sqrtPriceLimitX96, zeroForOne); err != nil {
		return nil, uniswapv3.Pool{}, err
	}
	return new(big.Int).Set(state.amountCalculated), nextState(pool, state), nil
}

// GetAmountOut returns the output of an exact-input swap without building the next state.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv3.Pool) (*big.Int, error) {
	if err := validate(amountIn, pool); err != nil {
		return nil, err
	}
	zeroForOne, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.reset(amountIn, pool)
	if err := swap(state, pool, nil, zeroForOne); err != nil {
		return nil, err
	}
	return new(big.Int).Set(state.amountCalculated), nil
}

// SpotAmountOut prices amountIn at the pool's current marginal price,
// ignoring the fee and the price movement of the trade itself.
func SpotAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv3.Pool) (*big.Int, error) {
	if err := validate(amountIn, pool); err != nil {
		return nil, err
	}
	zeroForOne, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}

	priceX192 := new(big.Int).Mul(pool.SqrtPriceX96, pool.SqrtPriceX96)
	out := new(big.Int)
	if zeroForOne {
		out.Mul(amountIn, priceX192)
		return out.Rsh(out, 192), nil
	}
	out.Lsh(amountIn, 192)
	return out.Quo(out, priceX192), nil
}

// GetVirtualReserves returns the constant-product reserves equivalent to the
// pool's active liquidity at its current price.
func GetVirtualReserves(tokenIn, tokenOut common.Address, pool uniswapv3.Pool) (reserveIn, reserveOut *big.Int, err error) {
	zeroForOne, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, nil, err
	}
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 || pool.Liquidity == nil {
		return nil, nil, fmt.Errorf("%w: pool %s", ErrInvalidPoolState, pool.Address.Hex())
	}

	reserve0 := new(big.Int).Lsh(pool.Liquidity, 96)
	reserve0.Quo(reserve0, pool.SqrtPriceX96)
	reserve1 := new(big.Int).Mul(pool.Liquidity, pool.SqrtPriceX96)
	reserve1.Rsh(reserve1, 96)

	if zeroForOne {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}
