package v3math

import (
	"errors"
	"math/big"
)

var (
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// AddDelta writes x + y into dest, where y is a signed liquidity delta.
// The result must stay inside the uint128 range.
func AddDelta(dest, x, y *big.Int) error {
	dest.Add(x, y)
	if dest.Sign() < 0 {
		return ErrLiquidityUnderflow
	}
	if dest.Cmp(maxUint128) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}
