package optimizer

import (
	"context"
	"math/big"
	"testing"

	rt "github.com/defistate/defistate-router-go/internal/routingtest"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/quoter"
	"github.com/defistate/defistate-router-go/routing/route"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOptimizer(t *testing.T, cfg Config) *Optimizer {
	t.Helper()
	o, err := New(quoter.New(quoter.DefaultGasTable(), 4), cfg)
	require.NoError(t, err)
	return o
}

func mustRoute(t *testing.T, tokenIn common.Address, pools ...poolmodel.Pool) route.Route {
	t.Helper()
	r, err := route.New(tokenIn, pools...)
	require.NoError(t, err)
	return r
}

func twinPools(t *testing.T) (route.Route, route.Route) {
	a := mustRoute(t, rt.WETH, rt.WethLusd(t))
	b := mustRoute(t, rt.WETH, rt.CP(t, "0x10", rt.LUSD, rt.WETH, rt.Ether(2_000_000), rt.Ether(1_000), 30))
	return a, b
}

func sumShares(a route.Allocation) *big.Int {
	sum := new(big.Int)
	for _, s := range a.Shares {
		sum.Add(sum, s.AmountIn)
	}
	return sum
}

func TestOptimize_SingleRoute(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	r := mustRoute(t, rt.WETH, rt.WethLusd(t))

	res, err := o.Optimize(context.Background(), []route.Route{r}, rt.Ether(10), nil)
	require.NoError(t, err)
	require.Len(t, res.Allocation.Shares, 1)
	assert.Equal(t, "19743160687941225977009", res.Quote.AmountOut.String())
	assert.Equal(t, "19743160687941225977009", res.Score.String())
	assert.Equal(t, 0, res.Dropped)
}

func TestOptimize_SplitsAcrossTwins(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	a, b := twinPools(t)
	total := rt.Ether(100)

	res, err := o.Optimize(context.Background(), []route.Route{a, b}, total, nil)
	require.NoError(t, err)
	require.Len(t, res.Allocation.Shares, 2)
	for _, s := range res.Allocation.Shares {
		assert.Equal(t, rt.Ether(50).String(), s.AmountIn.String())
	}
	assert.Equal(t, total.String(), sumShares(res.Allocation).String())

	single, err := o.quoter.Quote(a, total)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Quote.AmountOut.Cmp(single.AmountOut))
	assert.Equal(t, uint64(180_000), res.Quote.GasUnits)

	half, err := o.quoter.Quote(a, rt.Ether(50))
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(half.AmountOut, big.NewInt(2)).String(), res.Quote.AmountOut.String())
}

func TestOptimize_GasOutweighsSplit(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	a, b := twinPools(t)

	// a second route costs 90k gas * 1e18 = 9e22 LUSD, more than splitting gains
	res, err := o.Optimize(context.Background(), []route.Route{a, b}, rt.Ether(100), rt.Ether(1))
	require.NoError(t, err)
	require.Len(t, res.Allocation.Shares, 1)

	single, err := o.quoter.Quote(a, rt.Ether(100))
	require.NoError(t, err)
	want := new(big.Int).Sub(single.AmountOut, new(big.Int).Mul(big.NewInt(90_000), rt.Ether(1)))
	assert.Equal(t, want.String(), res.Score.String())
}

func TestOptimize_ExactBucketSums(t *testing.T) {
	o := newOptimizer(t, Config{MaxSplitRoutes: 3, StepPercent: 10})
	a, b := twinPools(t)
	c := mustRoute(t, rt.WETH, rt.CP(t, "0x11", rt.LUSD, rt.WETH, rt.Ether(1_000_000), rt.Ether(500), 30))

	for _, total := range []*big.Int{
		rt.Big("100000000000000000007"),
		rt.Big("333333333333333333333"),
		big.NewInt(1_000_003),
	} {
		res, err := o.Optimize(context.Background(), []route.Route{a, b, c}, total, nil)
		require.NoError(t, err)
		assert.Equal(t, total.String(), sumShares(res.Allocation).String())
		assert.Equal(t, total.String(), res.Quote.AmountIn.String())
		for _, s := range res.Allocation.Shares {
			assert.GreaterOrEqual(t, s.AmountIn.Sign(), 0)
		}
	}
}

func TestOptimize_NeverSplitsOverSharedPool(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	wethUsdc := rt.CP(t, "0x20", rt.USDC, rt.WETH, rt.Ether(2_000_000), rt.Ether(1_000), 30)
	viaA := mustRoute(t, rt.WETH, wethUsdc, rt.CP(t, "0x21", rt.LUSD, rt.USDC, rt.Ether(2_000_000), rt.Ether(2_000_000), 5))
	viaB := mustRoute(t, rt.WETH, wethUsdc, rt.CP(t, "0x22", rt.LUSD, rt.USDC, rt.Ether(2_000_000), rt.Ether(2_000_000), 5))

	res, err := o.Optimize(context.Background(), []route.Route{viaA, viaB}, rt.Ether(200), nil)
	require.NoError(t, err)
	assert.Len(t, res.Allocation.Shares, 1)
}

func TestOptimize_DropsDryCandidates(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	good := mustRoute(t, rt.WETH, rt.WethLusd(t))
	dry := mustRoute(t, rt.WETH, rt.CP(t, "0x11", rt.LUSD, rt.WETH, new(big.Int), rt.Ether(1), 30))

	res, err := o.Optimize(context.Background(), []route.Route{dry, good}, rt.Ether(10), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, good.Key(), res.Allocation.Shares[0].Route.Key())
}

func TestOptimize_NoViableRoute(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	narrow := mustRoute(t, rt.USDC, rt.CL(t, "0x30", rt.USDC, rt.WETH, rt.Ether(1_000), 600, 3000))
	dry := mustRoute(t, rt.USDC, rt.CP(t, "0x31", rt.USDC, rt.WETH, rt.Ether(1), new(big.Int), 30))

	res, err := o.Optimize(context.Background(), []route.Route{narrow, dry}, rt.Ether(1_000), nil)
	assert.ErrorIs(t, err, ErrNoViableRoute)
	assert.Nil(t, res)
}

func TestOptimize_Deterministic(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	a, b := twinPools(t)
	c := mustRoute(t, rt.WETH, rt.CL(t, "0x40", rt.LUSD, rt.WETH, rt.Ether(40_000), 6000, 500))
	candidates := []route.Route{a, b, c}

	first, err := o.Optimize(context.Background(), candidates, rt.Ether(250), rt.Big("1000000000"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := o.Optimize(context.Background(), candidates, rt.Ether(250), rt.Big("1000000000"))
		require.NoError(t, err)
		require.Equal(t, len(first.Allocation.Shares), len(again.Allocation.Shares))
		for j := range first.Allocation.Shares {
			assert.Equal(t, first.Allocation.Shares[j].Route.Key(), again.Allocation.Shares[j].Route.Key())
			assert.Equal(t, first.Allocation.Shares[j].AmountIn.String(), again.Allocation.Shares[j].AmountIn.String())
		}
		assert.Equal(t, first.Score.String(), again.Score.String())
	}
}

func TestOptimize_Errors(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	r := mustRoute(t, rt.WETH, rt.WethLusd(t))

	_, err := o.Optimize(context.Background(), []route.Route{r}, big.NewInt(0), nil)
	assert.ErrorIs(t, err, poolmodel.ErrInvalidAmount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Optimize(ctx, []route.Route{r}, rt.Ether(1), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizeExactOut(t *testing.T) {
	o := newOptimizer(t, DefaultConfig())
	deep := mustRoute(t, rt.WETH, rt.WethLusd(t))
	shallow := mustRoute(t, rt.WETH, rt.CP(t, "0x10", rt.LUSD, rt.WETH, rt.Ether(200_000), rt.Ether(100), 30))
	mixed := mustRoute(t, rt.WETH,
		rt.CP(t, "0x20", rt.USDC, rt.WETH, rt.Ether(2_000_000), rt.Ether(1_000), 30),
		rt.CL(t, "0x21", rt.LUSD, rt.USDC, rt.Ether(1_000_000), 600, 500),
	)

	res, err := o.OptimizeExactOut(context.Background(), []route.Route{shallow, mixed, deep}, rt.Big("19743160687941225977009"), nil)
	require.NoError(t, err)
	assert.Equal(t, deep.Key(), res.Allocation.Shares[0].Route.Key())
	assert.Equal(t, rt.Ether(10).String(), res.Quote.AmountIn.String())
	assert.Equal(t, rt.Ether(10).String(), res.Allocation.Total.String())

	_, err = o.OptimizeExactOut(context.Background(), []route.Route{shallow, deep}, rt.Ether(5_000_000), nil)
	assert.ErrorIs(t, err, ErrNoViableRoute)

	_, err = o.OptimizeExactOut(context.Background(), []route.Route{mixed}, rt.Ether(1), nil)
	assert.ErrorIs(t, err, ErrNoViableRoute)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{MaxSplitRoutes: 1, StepPercent: 100}.Validate())
	for _, cfg := range []Config{
		{MaxSplitRoutes: 0, StepPercent: 5},
		{MaxSplitRoutes: 5, StepPercent: 5},
		{MaxSplitRoutes: 2, StepPercent: 0},
		{MaxSplitRoutes: 2, StepPercent: 7},
		{MaxSplitRoutes: 2, StepPercent: 200},
	} {
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "%+v", cfg)
	}
}

func BenchmarkOptimize(b *testing.B) {
	q := quoter.New(quoter.DefaultGasTable(), 4)
	o, err := New(q, DefaultConfig())
	require.NoError(b, err)
	var candidates []route.Route
	for i, addr := range []string{"0x10", "0x11", "0x12", "0x13"} {
		p := rt.CP(b, addr, rt.LUSD, rt.WETH, rt.Ether(int64(2_000_000+i*1000)), rt.Ether(1_000), 30)
		r, err := route.New(rt.WETH, p)
		require.NoError(b, err)
		candidates = append(candidates, r)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = o.Optimize(context.Background(), candidates, rt.Ether(100), nil)
	}
}
