package poolmodel

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3/calculator/v3math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	lusd = common.HexToAddress("0x5f98805A4E8be255a32880FDeC7F6728C6568bA0")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func bigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return n
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), bigInt("1000000000000000000"))
}

func wethLusd(t *testing.T, feeBps uint16) *ConstantProduct {
	t.Helper()
	p, err := NewConstantProduct(uniswapv2.Pool{
		Address:  common.HexToAddress("0xF20EF17b889b437C151eB5bA15A47bFc62bfF469"),
		Token0:   lusd,
		Token1:   weth,
		Reserve0: e18(2_000_000),
		Reserve1: e18(1_000),
		FeeBps:   feeBps,
	})
	require.NoError(t, err)
	return p
}

func wethUsdcV3(t *testing.T, fee uint64) *Concentrated {
	t.Helper()
	l := e18(1000)
	p, err := NewConcentrated(uniswapv3.Pool{
		Address:      common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"),
		Token0:       usdc,
		Token1:       weth,
		Fee:          fee,
		TickSpacing:  60,
		Tick:         0,
		Liquidity:    new(big.Int).Set(l),
		SqrtPriceX96: new(big.Int).Set(v3math.Q96),
		Ticks: []uniswapv3.TickInfo{
			// deliberately unsorted
			{Index: 600, LiquidityGross: new(big.Int).Set(l), LiquidityNet: new(big.Int).Neg(l)},
			{Index: -600, LiquidityGross: new(big.Int).Set(l), LiquidityNet: new(big.Int).Set(l)},
		},
	})
	require.NoError(t, err)
	return p
}

func TestConstantProduct_Scenario(t *testing.T) {
	pool := wethLusd(t, 30)

	sim, err := pool.Simulate(weth, e18(10))
	require.NoError(t, err)
	assert.Equal(t, "19743160687941225977009", sim.AmountOut.String())

	// spot is 20000 LUSD, so the fee and the move cost ~1.28%
	assert.Equal(t, int64(128), sim.PriceImpactBps)

	next := sim.Next.(*ConstantProduct).State()
	assert.Equal(t, "1980256839312058774022991", next.Reserve0.String())
	assert.Equal(t, "1010000000000000000000", next.Reserve1.String())

	original := pool.State()
	assert.Zero(t, original.Reserve1.Cmp(e18(1_000)), "the receiver is never mutated")
}

func TestSimulate_FeeMonotonicity(t *testing.T) {
	t.Run("constant product", func(t *testing.T) {
		amountIn := e18(25)
		var previous *big.Int
		zeroFee, err := wethLusd(t, 0).Simulate(weth, amountIn)
		require.NoError(t, err)

		for _, fee := range []uint16{0, 1, 5, 30, 100, 300, 1000} {
			sim, err := wethLusd(t, fee).Simulate(weth, amountIn)
			require.NoError(t, err)
			if fee > 0 {
				assert.True(t, sim.AmountOut.Cmp(zeroFee.AmountOut) < 0, "fee %d", fee)
			}
			if previous != nil {
				assert.True(t, sim.AmountOut.Cmp(previous) <= 0, "fee %d", fee)
			}
			previous = sim.AmountOut
		}
	})

	t.Run("concentrated", func(t *testing.T) {
		amountIn := e18(3)
		var previous *big.Int
		zeroFee, err := wethUsdcV3(t, 0).Simulate(usdc, amountIn)
		require.NoError(t, err)

		for _, fee := range []uint64{0, 100, 500, 3000, 10000} {
			sim, err := wethUsdcV3(t, fee).Simulate(usdc, amountIn)
			require.NoError(t, err)
			if fee > 0 {
				assert.True(t, sim.AmountOut.Cmp(zeroFee.AmountOut) < 0, "fee %d", fee)
			}
			if previous != nil {
				assert.True(t, sim.AmountOut.Cmp(previous) <= 0, "fee %d", fee)
			}
			previous = sim.AmountOut
		}
	})
}

func TestSimulate_RoundTripCreatesNoValue(t *testing.T) {
	pools := []struct {
		name     string
		pool     Pool
		tokenIn  common.Address
		tokenOut common.Address
		amounts  []*big.Int
	}{
		{"constant product", wethLusd(t, 30), weth, lusd, []*big.Int{big.NewInt(1), e18(1), e18(10), e18(500)}},
		{"constant product zero fee", wethLusd(t, 0), weth, lusd, []*big.Int{big.NewInt(7), e18(10)}},
		{"concentrated", wethUsdcV3(t, 3000), usdc, weth, []*big.Int{big.NewInt(1000), e18(1), e18(20)}},
		{"concentrated zero fee", wethUsdcV3(t, 0), weth, usdc, []*big.Int{e18(1), e18(20)}},
	}

	for _, tc := range pools {
		for _, amountIn := range tc.amounts {
			t.Run(tc.name+"/"+amountIn.String(), func(t *testing.T) {
				forward, err := tc.pool.Simulate(tc.tokenIn, amountIn)
				require.NoError(t, err)

				back, err := forward.Next.Simulate(tc.tokenOut, forward.AmountOut)
				if err != nil {
					// a reverse trade too small to return anything creates no value either
					assert.ErrorIs(t, err, ErrInsufficientLiquidity)
					return
				}
				assert.True(t, back.AmountOut.Cmp(amountIn) <= 0, "got %s back for %s", back.AmountOut, amountIn)
			})
		}
	}
}

func TestSimulateExactOut(t *testing.T) {
	t.Run("constant product", func(t *testing.T) {
		in, next, err := wethLusd(t, 30).SimulateExactOut(weth, bigInt("19743160687941225977009"))
		require.NoError(t, err)
		assert.Zero(t, in.Cmp(e18(10)))
		assert.Equal(t, "1010000000000000000000", next.(*ConstantProduct).State().Reserve1.String())
	})

	t.Run("concentrated", func(t *testing.T) {
		pool := wethUsdcV3(t, 500)
		sim, err := pool.Simulate(weth, e18(2))
		require.NoError(t, err)

		in, _, err := pool.SimulateExactOut(weth, sim.AmountOut)
		require.NoError(t, err)
		assert.True(t, in.Cmp(e18(2)) <= 0)
	})

	t.Run("more than the pool holds", func(t *testing.T) {
		_, _, err := wethLusd(t, 30).SimulateExactOut(weth, e18(2_000_000))
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)

		_, _, err = wethUsdcV3(t, 500).SimulateExactOut(weth, e18(500))
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})
}

func TestSimulate_InsufficientLiquidity(t *testing.T) {
	empty, err := NewConstantProduct(uniswapv2.Pool{
		Address:  common.HexToAddress("0x01"),
		Token0:   lusd,
		Token1:   weth,
		Reserve0: big.NewInt(0),
		Reserve1: e18(1),
		FeeBps:   30,
	})
	require.NoError(t, err)
	_, err = empty.Simulate(weth, e18(1))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	// input far beyond the only tick range
	_, err = wethUsdcV3(t, 3000).Simulate(usdc, e18(1_000))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	// output that floors to zero
	_, err = wethLusd(t, 30).Simulate(lusd, big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSimulate_InputErrors(t *testing.T) {
	pool := wethLusd(t, 30)

	_, err := pool.Simulate(weth, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = pool.Simulate(weth, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = pool.Simulate(usdc, e18(1))
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = wethUsdcV3(t, 500).Simulate(lusd, e18(1))
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestNewPool_Validation(t *testing.T) {
	_, err := NewConstantProduct(uniswapv2.Pool{Token0: weth, Token1: weth, Reserve0: e18(1), Reserve1: e18(1)})
	assert.ErrorIs(t, err, ErrInvalidPool)

	_, err = NewConstantProduct(uniswapv2.Pool{Token0: weth, Token1: lusd, Reserve0: e18(1)})
	assert.ErrorIs(t, err, ErrInvalidPool)

	_, err = NewConstantProduct(uniswapv2.Pool{Token0: weth, Token1: lusd, Reserve0: e18(1), Reserve1: e18(1), FeeBps: 10_000})
	assert.ErrorIs(t, err, ErrInvalidPool)

	_, err = NewConcentrated(uniswapv3.Pool{Token0: weth, Token1: usdc, Liquidity: e18(1)})
	assert.ErrorIs(t, err, ErrInvalidPool)

	_, err = NewConcentrated(uniswapv3.Pool{Token0: weth, Token1: usdc, Liquidity: e18(1), SqrtPriceX96: v3math.Q96, Fee: 1_000_000})
	assert.ErrorIs(t, err, ErrInvalidPool)
}

func TestConcentrated_SortsTicksAndReportsDepth(t *testing.T) {
	pool := wethUsdcV3(t, 500)
	state := pool.State()
	require.Len(t, state.Ticks, 2)
	assert.Equal(t, int64(-600), state.Ticks[0].Index)

	assert.Zero(t, pool.Depth(weth).Cmp(e18(1000)))
	assert.Zero(t, pool.Depth(usdc).Cmp(e18(1000)))
	assert.Zero(t, pool.Depth(lusd).Sign())
	assert.Equal(t, uint32(500), pool.FeePips())
	assert.Equal(t, KindConcentrated, pool.Kind())
}

func TestConstantProduct_DepthAndFee(t *testing.T) {
	pool := wethLusd(t, 30)
	assert.Zero(t, pool.Depth(lusd).Cmp(e18(2_000_000)))
	assert.Zero(t, pool.Depth(weth).Cmp(e18(1_000)))
	assert.Equal(t, uint32(3000), pool.FeePips())

	other, err := Other(pool, weth)
	require.NoError(t, err)
	assert.Equal(t, lusd, other)
	assert.True(t, Contains(pool, lusd))
	assert.False(t, Contains(pool, usdc))
}

func TestNewSnapshot(t *testing.T) {
	v2 := []uniswapv2.Pool{
		{Address: common.HexToAddress("0x03"), Token0: lusd, Token1: weth, Reserve0: e18(1), Reserve1: e18(1), FeeBps: 30},
		{Address: common.HexToAddress("0x01"), Token0: usdc, Token1: weth, Reserve0: e18(1), Reserve1: e18(1), FeeBps: 30},
	}
	v3 := []uniswapv3.Pool{
		{Address: common.HexToAddress("0x02"), Token0: usdc, Token1: weth, Fee: 500, Liquidity: e18(1), SqrtPriceX96: v3math.Q96},
	}

	snap, err := NewSnapshot(100, 1_700_000_000, v2, v3)
	require.NoError(t, err)
	require.Len(t, snap.Pools, 3)
	assert.Equal(t, uint64(100), snap.BlockNumber)
	for i, want := range []string{"0x01", "0x02", "0x03"} {
		assert.Equal(t, common.HexToAddress(want), snap.Pools[i].Address())
	}

	v2[0].Token1 = lusd
	_, err = NewSnapshot(101, 0, v2, nil)
	assert.ErrorIs(t, err, ErrInvalidPool)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "constant-product", KindConstantProduct.String())
	assert.Equal(t, "concentrated-liquidity", KindConcentrated.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
