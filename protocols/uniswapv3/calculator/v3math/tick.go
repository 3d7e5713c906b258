// Package v3math ports the Uniswap V3 core math libraries (TickMath,
// SqrtPriceMath, SwapMath, LiquidityMath) to big.Int. All functions write into
// caller supplied destinations and borrow their temporaries from sync.Pools,
// so they are safe for concurrent use and allocation free on the hot path.
package v3math

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// MinTick is the lowest tick whose sqrt ratio is representable.
	MinTick int64 = -887272
	// MaxTick is the highest tick whose sqrt ratio is representable.
	MaxTick int64 = 887272
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio = mustBig("4295128739", 10)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342", 10)

	ErrTickOutOfBounds      = errors.New("tick out of bounds")
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")

	// tickFactors[i] = 2^128 / sqrt(1.0001^(2^i)), one per bit of |tick|.
	tickFactors = [20]*uint256.Int{
		mustU256("fffcb933bd6fad37aa2d162d1a594001"),
		mustU256("fff97272373d413259a46990580e213a"),
		mustU256("fff2e50f5f656932ef12357cf3c7fdcc"),
		mustU256("ffe5caca7e10e4e61c3624eaa0941cd0"),
		mustU256("ffcb9843d60f6159c9db58835c926644"),
		mustU256("ff973b41fa98c081472e6896dfb254c0"),
		mustU256("ff2ea16466c96a3843ec78b326b52861"),
		mustU256("fe5dee046a99a2a811c461f1969c3053"),
		mustU256("fcbe86c7900a88aedcffc83b479aa3a4"),
		mustU256("f987a7253ac413176f2b074cf7815e54"),
		mustU256("f3392b0822b70005940c7a398e4b70f3"),
		mustU256("e7159475a2c29b7443b29c7fa6e889d9"),
		mustU256("d097f3bdfd2022b8845ad8f792aa5825"),
		mustU256("a9f746462d870fdf8a65dc1f90e061e5"),
		mustU256("70d869a156d2a1b890bb3df62baf32f7"),
		mustU256("31be135f97d08fd981231505542fcfa6"),
		mustU256("9aa508b5b7a84e1c677de54f3e99bc9"),
		mustU256("5d6af8dedb81196699c329225ee604"),
		mustU256("2216e584f5fa1ea926041bedfe98"),
		mustU256("48a170391f7dc42444e8fa2"),
	}

	q128       = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	low32Mask  = uint256.NewInt(0xffffffff)
	u256One    = uint256.NewInt(1)
	maxUint256 = new(uint256.Int).SetAllOne()
)

type tickScratch struct {
	ratio *uint256.Int
	rem   *uint256.Int
	probe *big.Int
}

var tickScratchPool = sync.Pool{
	New: func() any {
		return &tickScratch{
			ratio: new(uint256.Int),
			rem:   new(uint256.Int),
			probe: new(big.Int),
		}
	},
}

// SqrtRatioAtTick writes sqrt(1.0001^tick) * 2^96 into dest, rounded up.
func SqrtRatioAtTick(dest *big.Int, tick int64) error {
	if tick < MinTick || tick > MaxTick {
		return ErrTickOutOfBounds
	}

	s := tickScratchPool.Get().(*tickScratch)
	defer tickScratchPool.Put(s)

	abs := uint64(tick)
	if tick < 0 {
		abs = uint64(-tick)
	}

	if abs&1 != 0 {
		s.ratio.Set(tickFactors[0])
	} else {
		s.ratio.Set(q128)
	}
	for bit := 1; bit < len(tickFactors); bit++ {
		if abs&(1<<bit) != 0 {
			s.ratio.Mul(s.ratio, tickFactors[bit])
			s.ratio.Rsh(s.ratio, 128)
		}
	}

	// the factors encode negative ticks; positive ticks use the reciprocal
	if tick > 0 {
		s.ratio.Div(maxUint256, s.ratio)
	}

	// Q128.128 -> Q128.96, rounding up
	s.rem.And(s.ratio, low32Mask)
	s.ratio.Rsh(s.ratio, 32)
	if !s.rem.IsZero() {
		s.ratio.Add(s.ratio, u256One)
	}

	s.ratio.IntoBig(&dest)
	return nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int64, error) {
	if sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtPriceOutOfBounds
	}

	s := tickScratchPool.Get().(*tickScratch)
	defer tickScratchPool.Put(s)

	low, high := MinTick, MaxTick
	tick := MinTick
	for low <= high {
		mid := low + (high-low)/2
		if err := SqrtRatioAtTick(s.probe, mid); err != nil {
			return 0, err
		}
		if s.probe.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}

func mustBig(s string, base int) *big.Int {
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		panic("v3math: bad constant " + s)
	}
	return n
}

func mustU256(hex string) *uint256.Int {
	return uint256.MustFromBig(mustBig(hex, 16))
}
