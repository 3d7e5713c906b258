package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)
	one               = big.NewInt(1)

	// ErrInvalidAmount is returned when an input/output amount is negative.
	ErrInvalidAmount = errors.New("amount must be non-negative")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidFee is returned when the pool fee is 100% or more.
	ErrInvalidFee = errors.New("invalid pool fee")
	// ErrInsufficientLiquidity is returned when a reserve is empty or the trade would drain it.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
)

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances are NOT safe for concurrent use by themselves; they are handed out by calculatorPool.
type Calculator struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
		}
	},
}

// GetAmountOut returns the floored output for an exact input.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, tokenIn, tokenOut, pool)
}

// GetAmountIn returns the input required for an exact output, rounded up.
func GetAmountIn(amountOut *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, tokenIn, tokenOut, pool)
}

// SimulateSwap returns the output of an exact-input swap and the pool state after it.
// The input pool is never modified.
func SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, uniswapv2.Pool, error) {
	amountOut, err := GetAmountOut(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, uniswapv2.Pool{}, err
	}
	return amountOut, applySwap(pool, tokenIn, amountIn, amountOut), nil
}

// SimulateExactOutSwap returns the input required for amountOut and the pool state after the swap.
func SimulateExactOutSwap(amountOut *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, uniswapv2.Pool, error) {
	amountIn, err := GetAmountIn(amountOut, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, uniswapv2.Pool{}, err
	}
	return amountIn, applySwap(pool, tokenIn, amountIn, amountOut), nil
}

// SpotAmountOut prices amountIn at the pool's marginal price with no fee and no impact.
func SpotAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s has an empty %s reserve", ErrInsufficientLiquidity, pool.Address.Hex(), tokenIn.Hex())
	}
	spot := new(big.Int).Mul(amountIn, reserveOut)
	return spot.Div(spot, reserveIn), nil
}

func (c *Calculator) getAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s has an empty reserve", ErrInsufficientLiquidity, pool.Address.Hex())
	}
	if err := c.setFeeMultiplier(pool); err != nil {
		return nil, err
	}

	// amountOut = reserveOut * amountIn * (10000 - fee) / (reserveIn * 10000 + amountIn * (10000 - fee))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	return new(big.Int).Div(c.numerator, c.denominator), nil
}

func (c *Calculator) getAmountIn(amountOut *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut.String(), reserveOut.String())
	}
	if err := c.setFeeMultiplier(pool); err != nil {
		return nil, err
	}

	// amountIn = reserveIn * amountOut * 10000 / ((reserveOut - amountOut) * (10000 - fee)) + 1
	c.numerator.Mul(reserveIn, amountOut)
	c.numerator.Mul(c.numerator, basisPointDivisor)
	c.denominator.Sub(reserveOut, amountOut)
	c.denominator.Mul(c.denominator, c.feeMultiplier)

	amountIn := new(big.Int).Div(c.numerator, c.denominator)
	return amountIn.Add(amountIn, one), nil
}

func (c *Calculator) setFeeMultiplier(pool uniswapv2.Pool) error {
	if pool.FeeBps >= 10000 {
		return fmt.Errorf("%w: %d bps on pool %s", ErrInvalidFee, pool.FeeBps, pool.Address.Hex())
	}
	c.feeMultiplier.SetUint64(uint64(10000 - pool.FeeBps))
	return nil
}

func applySwap(pool uniswapv2.Pool, tokenIn common.Address, amountIn, amountOut *big.Int) uniswapv2.Pool {
	next := pool
	if tokenIn == pool.Token0 {
		next.Reserve0 = new(big.Int).Add(pool.Reserve0, amountIn)
		next.Reserve1 = new(big.Int).Sub(pool.Reserve1, amountOut)
	} else {
		next.Reserve1 = new(big.Int).Add(pool.Reserve1, amountIn)
		next.Reserve0 = new(big.Int).Sub(pool.Reserve0, amountOut)
	}
	return next
}

// GetReserves returns the reserves for the given token pair.
func GetReserves(tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (reserveIn, reserveOut *big.Int, err error) {
	if tokenIn == pool.Token0 && tokenOut == pool.Token1 {
		return pool.Reserve0, pool.Reserve1, nil
	} else if tokenIn == pool.Token1 && tokenOut == pool.Token0 {
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex(), tokenOut.Hex())
}
