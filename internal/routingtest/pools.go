// Package routingtest builds pools and tokens shared by the routing tests.
package routingtest

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/defistate/defistate-router-go/protocols/uniswapv3/calculator/v3math"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	LUSD = common.HexToAddress("0x5f98805A4E8be255a32880FDeC7F6728C6568bA0")
	USDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	DAI  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	WBTC = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDd7C193bc2C599")
)

// Ether is n * 1e18.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// Big parses a base-10 integer.
func Big(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return n
}

// CP builds a constant-product pool. reserveA belongs to a, reserveB to b.
func CP(t testing.TB, address string, a, b common.Address, reserveA, reserveB *big.Int, feeBps uint16) *poolmodel.ConstantProduct {
	t.Helper()
	p := uniswapv2.Pool{
		Address:  common.HexToAddress(address),
		Token0:   a,
		Token1:   b,
		Reserve0: reserveA,
		Reserve1: reserveB,
		FeeBps:   feeBps,
	}
	pool, err := poolmodel.NewConstantProduct(p)
	require.NoError(t, err)
	return pool
}

// WethLusd is the reference pool: 1000 WETH, 2,000,000 LUSD, 30 bps.
func WethLusd(t testing.TB) *poolmodel.ConstantProduct {
	return CP(t, "0xF20EF17b889b437C151eB5bA15A47bFc62bfF469", LUSD, WETH, Ether(2_000_000), Ether(1_000), 30)
}

// CL builds a concentrated pool at price 1 with liquidity over [-tickRange, tickRange].
func CL(t testing.TB, address string, token0, token1 common.Address, liquidity *big.Int, tickRange int64, fee uint64) *poolmodel.Concentrated {
	t.Helper()
	p := uniswapv3.Pool{
		Address:      common.HexToAddress(address),
		Token0:       token0,
		Token1:       token1,
		Fee:          fee,
		TickSpacing:  60,
		Tick:         0,
		Liquidity:    new(big.Int).Set(liquidity),
		SqrtPriceX96: new(big.Int).Set(v3math.Q96),
		Ticks: []uniswapv3.TickInfo{
			{Index: -tickRange, LiquidityGross: new(big.Int).Set(liquidity), LiquidityNet: new(big.Int).Set(liquidity)},
			{Index: tickRange, LiquidityGross: new(big.Int).Set(liquidity), LiquidityNet: new(big.Int).Neg(liquidity)},
		},
	}
	pool, err := poolmodel.NewConcentrated(p)
	require.NoError(t, err)
	return pool
}
