// Package poolmodel puts constant-product and concentrated-liquidity pools
// behind one simulation interface. Pools are immutable snapshots: every
// simulation returns the post-trade state as a new Pool and leaves the
// receiver untouched.
package poolmodel

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientLiquidity is returned when a pool cannot fill the whole
	// requested amount. Callers treat it as "unusable for this amount".
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrUnknownToken          = errors.New("token is not in pool")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrInvalidPool           = errors.New("invalid pool")
)

// Kind identifies the curve a pool trades on.
type Kind uint8

const (
	KindConstantProduct Kind = iota + 1
	KindConcentrated
)

func (k Kind) String() string {
	switch k {
	case KindConstantProduct:
		return "constant-product"
	case KindConcentrated:
		return "concentrated-liquidity"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Simulation is the outcome of an exact-input trade against one pool.
type Simulation struct {
	AmountOut *big.Int
	// Next is the pool state after the trade.
	Next Pool
	// PriceImpactBps is (spot - out) / spot in basis points.
	PriceImpactBps int64
}

// Pool is one liquidity pool at a fixed block.
type Pool interface {
	Address() common.Address
	Kind() Kind
	Tokens() (token0, token1 common.Address)
	// FeePips is the swap fee in hundredths of a basis point.
	FeePips() uint32

	Simulate(tokenIn common.Address, amountIn *big.Int) (Simulation, error)
	SimulateExactOut(tokenIn common.Address, amountOut *big.Int) (amountIn *big.Int, next Pool, err error)
	// SpotAmountOut prices amountIn at the current marginal price with no fee.
	SpotAmountOut(tokenIn common.Address, amountIn *big.Int) (*big.Int, error)
	// Depth is the (virtual) reserve of token on the pool's output side.
	Depth(token common.Address) *big.Int
}

// Other returns the token on the opposite side of the pool.
func Other(p Pool, token common.Address) (common.Address, error) {
	t0, t1 := p.Tokens()
	switch token {
	case t0:
		return t1, nil
	case t1:
		return t0, nil
	}
	return common.Address{}, fmt.Errorf("%w: %s in pool %s", ErrUnknownToken, token.Hex(), p.Address().Hex())
}

// Contains reports whether token is one of the pool's two tokens.
func Contains(p Pool, token common.Address) bool {
	t0, t1 := p.Tokens()
	return token == t0 || token == t1
}

var bps = big.NewInt(10_000)

// priceImpactBps returns (spot - out) * 10000 / spot, clamped to [0, 10000].
func priceImpactBps(spot, out *big.Int) int64 {
	if spot == nil || spot.Sign() <= 0 || out.Cmp(spot) >= 0 {
		return 0
	}
	diff := new(big.Int).Sub(spot, out)
	diff.Mul(diff, bps)
	diff.Quo(diff, spot)
	if diff.Cmp(bps) > 0 {
		return 10_000
	}
	return diff.Int64()
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
