package v3math

import (
	"errors"
	"math/big"
	"sync"
)

// ErrInvalidFee is returned for fees of 100% or more.
var ErrInvalidFee = errors.New("fee must be below 1,000,000 pips")

// FeeDenominator is 100% expressed in pips.
var FeeDenominator = big.NewInt(1_000_000)

// StepResult receives the outcome of one ComputeSwapStep call.
type StepResult struct {
	SqrtRatioNextX96 *big.Int
	AmountIn         *big.Int
	AmountOut        *big.Int
	FeeAmount        *big.Int
}

// NewStepResult allocates a StepResult with zeroed fields.
func NewStepResult() *StepResult {
	return &StepResult{
		SqrtRatioNextX96: new(big.Int),
		AmountIn:         new(big.Int),
		AmountOut:        new(big.Int),
		FeeAmount:        new(big.Int),
	}
}

type stepScratch struct {
	priceScratch
	remainingLessFee *big.Int
	remainingAbs     *big.Int
	fee              *big.Int
	feeComplement    *big.Int
}

var stepScratchPool = sync.Pool{
	New: func() any {
		return &stepScratch{
			priceScratch: priceScratch{
				product:     new(big.Int),
				numerator1:  new(big.Int),
				numerator2:  new(big.Int),
				denominator: new(big.Int),
				quotient:    new(big.Int),
				rem:         new(big.Int),
			},
			remainingLessFee: new(big.Int),
			remainingAbs:     new(big.Int),
			fee:              new(big.Int),
			feeComplement:    new(big.Int),
		}
	},
}

// ComputeSwapStep swaps within a single tick range, moving the price from
// sqrtRatioCurrentX96 toward sqrtRatioTargetX96. A non-negative
// amountRemaining is an exact input; a negative one is an exact output.
// The direction is implied by the two prices. out must not alias any input.
func ComputeSwapStep(
	out *StepResult,
	sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *big.Int,
	feePips uint32,
) error {
	if feePips >= 1_000_000 {
		return ErrInvalidFee
	}

	s := stepScratchPool.Get().(*stepScratch)
	defer stepScratchPool.Put(s)

	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := s.fee.SetUint64(uint64(feePips))
	s.feeComplement.Sub(FeeDenominator, fee)

	next := out.SqrtRatioNextX96
	amountIn := out.AmountIn.SetInt64(0)
	amountOut := out.AmountOut.SetInt64(0)
	out.FeeAmount.SetInt64(0)

	if exactIn {
		s.mulDiv(s.remainingLessFee, amountRemaining, s.feeComplement, FeeDenominator)
		if zeroForOne {
			if err := Amount0Delta(amountIn, sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true); err != nil {
				return err
			}
		} else {
			Amount1Delta(amountIn, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}

		if s.remainingLessFee.Cmp(amountIn) >= 0 {
			next.Set(sqrtRatioTargetX96)
		} else if err := NextSqrtPriceFromInput(next, sqrtRatioCurrentX96, liquidity, s.remainingLessFee, zeroForOne); err != nil {
			return err
		}
	} else {
		s.remainingAbs.Neg(amountRemaining)
		if zeroForOne {
			Amount1Delta(amountOut, sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else if err := Amount0Delta(amountOut, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false); err != nil {
			return err
		}

		if s.remainingAbs.Cmp(amountOut) >= 0 {
			next.Set(sqrtRatioTargetX96)
		} else if err := NextSqrtPriceFromOutput(next, sqrtRatioCurrentX96, liquidity, s.remainingAbs, zeroForOne); err != nil {
			return err
		}
	}

	reachedTarget := sqrtRatioTargetX96.Cmp(next) == 0

	// recompute against the price actually reached
	if zeroForOne {
		if !(reachedTarget && exactIn) {
			if err := Amount0Delta(amountIn, next, sqrtRatioCurrentX96, liquidity, true); err != nil {
				return err
			}
		}
		if !(reachedTarget && !exactIn) {
			Amount1Delta(amountOut, next, sqrtRatioCurrentX96, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			Amount1Delta(amountIn, sqrtRatioCurrentX96, next, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			if err := Amount0Delta(amountOut, sqrtRatioCurrentX96, next, liquidity, false); err != nil {
				return err
			}
		}
	}

	if !exactIn && amountOut.Cmp(s.remainingAbs) > 0 {
		amountOut.Set(s.remainingAbs)
	}

	if exactIn && !reachedTarget {
		// the remainder of the input is taken as fee
		out.FeeAmount.Sub(amountRemaining, amountIn)
	} else {
		s.mulDivRoundingUp(out.FeeAmount, amountIn, fee, s.feeComplement)
	}
	return nil
}
