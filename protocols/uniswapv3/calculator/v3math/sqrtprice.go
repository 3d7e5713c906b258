package v3math

import (
	"errors"
	"math/big"
	"sync"
)

const resolution = 96

var (
	// Q96 is 1.0 in Q64.96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), resolution)

	ErrLiquidityZero     = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero     = errors.New("sqrt price must be greater than zero")
	ErrPriceOutOfRange   = errors.New("price moved outside the representable range")
	ErrOutputExceedsPool = errors.New("requested output exceeds the virtual reserve")

	one = big.NewInt(1)
)

// priceScratch carries the temporaries of a single SqrtPriceMath call.
type priceScratch struct {
	product     *big.Int
	numerator1  *big.Int
	numerator2  *big.Int
	denominator *big.Int
	quotient    *big.Int
	rem         *big.Int
}

var priceScratchPool = sync.Pool{
	New: func() any {
		return &priceScratch{
			product:     new(big.Int),
			numerator1:  new(big.Int),
			numerator2:  new(big.Int),
			denominator: new(big.Int),
			quotient:    new(big.Int),
			rem:         new(big.Int),
		}
	},
}

// mulDiv writes floor(a*b/c) into dest.
func (s *priceScratch) mulDiv(dest, a, b, c *big.Int) {
	s.product.Mul(a, b)
	dest.Quo(s.product, c)
}

// mulDivRoundingUp writes ceil(a*b/c) into dest.
func (s *priceScratch) mulDivRoundingUp(dest, a, b, c *big.Int) {
	s.product.Mul(a, b)
	dest.QuoRem(s.product, c, s.rem)
	if s.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
}

// divRoundingUp writes ceil(a/b) into dest.
func (s *priceScratch) divRoundingUp(dest, a, b *big.Int) {
	dest.QuoRem(a, b, s.rem)
	if s.rem.Sign() > 0 {
		dest.Add(dest, one)
	}
}

// NextSqrtPriceFromInput writes the price reached after adding amountIn of the input token.
func NextSqrtPriceFromInput(dest, sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) error {
	if sqrtPX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}

	s := priceScratchPool.Get().(*priceScratch)
	defer priceScratchPool.Put(s)

	if zeroForOne {
		return s.nextFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountIn, true)
	}
	return s.nextFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput writes the price reached after removing amountOut of the output token.
func NextSqrtPriceFromOutput(dest, sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) error {
	if sqrtPX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}

	s := priceScratchPool.Get().(*priceScratch)
	defer priceScratchPool.Put(s)

	if zeroForOne {
		return s.nextFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountOut, false)
	}
	return s.nextFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountOut, false)
}

// Amount0Delta writes liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB) into dest.
// The two prices may be passed in either order.
func Amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) error {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		return ErrSqrtPriceZero
	}

	s := priceScratchPool.Get().(*priceScratch)
	defer priceScratchPool.Put(s)

	s.numerator1.Lsh(liquidity, resolution)
	s.numerator2.Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		s.mulDivRoundingUp(s.quotient, s.numerator1, s.numerator2, sqrtRatioBX96)
		s.divRoundingUp(dest, s.quotient, sqrtRatioAX96)
		return nil
	}
	s.mulDiv(s.quotient, s.numerator1, s.numerator2, sqrtRatioBX96)
	dest.Quo(s.quotient, sqrtRatioAX96)
	return nil
}

// Amount1Delta writes liquidity * (sqrtB - sqrtA) / 2^96 into dest.
// The two prices may be passed in either order.
func Amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	s := priceScratchPool.Get().(*priceScratch)
	defer priceScratchPool.Put(s)

	s.numerator1.Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		s.mulDivRoundingUp(dest, liquidity, s.numerator1, Q96)
		return
	}
	s.mulDiv(dest, liquidity, s.numerator1, Q96)
}

// nextFromAmount0RoundingUp moves the price by a token0 delta:
// sqrtQ = L * sqrtP / (L +- amount * sqrtP), always rounding up.
func (s *priceScratch) nextFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	if amount.Sign() == 0 {
		dest.Set(sqrtPX96)
		return nil
	}

	s.numerator1.Lsh(liquidity, resolution)
	s.product.Mul(amount, sqrtPX96)

	if add {
		s.denominator.Add(s.numerator1, s.product)
		s.mulDivRoundingUp(dest, s.numerator1, sqrtPX96, s.denominator)
		return nil
	}

	if s.numerator1.Cmp(s.product) <= 0 {
		return ErrOutputExceedsPool
	}
	s.denominator.Sub(s.numerator1, s.product)
	s.mulDivRoundingUp(dest, s.numerator1, sqrtPX96, s.denominator)
	return nil
}

// nextFromAmount1RoundingDown moves the price by a token1 delta:
// sqrtQ = sqrtP +- amount * 2^96 / L, always rounding down.
func (s *priceScratch) nextFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *big.Int, add bool) error {
	if add {
		s.mulDiv(s.quotient, amount, Q96, liquidity)
		dest.Add(sqrtPX96, s.quotient)
		return nil
	}

	s.mulDivRoundingUp(s.quotient, amount, Q96, liquidity)
	if sqrtPX96.Cmp(s.quotient) <= 0 {
		return ErrOutputExceedsPool
	}
	dest.Sub(sqrtPX96, s.quotient)
	return nil
}
