package quoter

import (
	"context"
	"math/big"
	"testing"

	rt "github.com/defistate/defistate-router-go/internal/routingtest"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/route"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRoute(t *testing.T, tokenIn common.Address, pools ...poolmodel.Pool) route.Route {
	t.Helper()
	r, err := route.New(tokenIn, pools...)
	require.NoError(t, err)
	return r
}

func TestQuote_Direct(t *testing.T) {
	q := New(DefaultGasTable(), 4)
	pool := rt.WethLusd(t)
	r := mustRoute(t, rt.WETH, pool)

	rq, err := q.Quote(r, rt.Ether(10))
	require.NoError(t, err)
	assert.Equal(t, "19743160687941225977009", rq.AmountOut.String())
	assert.Equal(t, uint64(90_000), rq.GasUnits)
	assert.Equal(t, int64(128), rq.PriceImpactBps)
	require.Len(t, rq.Hops, 1)
	assert.Equal(t, "10000000000000000000", rq.Hops[0].AmountIn.String())

	next := rq.Hops[0].Next.(*poolmodel.ConstantProduct).State()
	assert.Equal(t, "1010000000000000000000", next.Reserve1.String())

	// the snapshot pool is untouched
	assert.Equal(t, "1000000000000000000000", pool.State().Reserve1.String())
}

func TestQuote_MultiHop(t *testing.T) {
	q := New(DefaultGasTable(), 1)
	wethUsdc := rt.CP(t, "0x01", rt.USDC, rt.WETH, rt.Ether(4_000_000), rt.Ether(2_000), 30)
	usdcLusd := rt.CL(t, "0x02", rt.LUSD, rt.USDC, rt.Ether(10_000_000), 600, 500)
	r := mustRoute(t, rt.WETH, wethUsdc, usdcLusd)

	rq, err := q.Quote(r, rt.Ether(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(30_000+60_000+100_000), rq.GasUnits)
	require.Len(t, rq.Hops, 2)
	assert.Equal(t, rq.Hops[0].AmountOut, rq.Hops[1].AmountIn)
	assert.Equal(t, rq.Hops[1].AmountOut, rq.AmountOut)
	assert.Equal(t, rt.USDC, rq.Hops[1].Hop.TokenIn)

	// output is below the fee-free chained spot price
	spot, err := wethUsdc.SpotAmountOut(rt.WETH, rt.Ether(1))
	require.NoError(t, err)
	spot, err = usdcLusd.SpotAmountOut(rt.USDC, spot)
	require.NoError(t, err)
	assert.Equal(t, -1, rq.AmountOut.Cmp(spot))
}

func TestQuoteFrom(t *testing.T) {
	q := New(DefaultGasTable(), 1)
	r := mustRoute(t, rt.WETH, rt.WethLusd(t))

	first, err := q.Quote(r, rt.Ether(5))
	require.NoError(t, err)
	second, err := q.QuoteFrom(r, first.NextStates(), rt.Ether(5))
	require.NoError(t, err)
	assert.Equal(t, -1, second.AmountOut.Cmp(first.AmountOut), "price moves against later buckets")

	_, err = q.QuoteFrom(r, []poolmodel.Pool{}, rt.Ether(5))
	assert.ErrorIs(t, err, ErrStateMismatch)

	other := rt.CP(t, "0x99", rt.LUSD, rt.WETH, rt.Ether(2_000_000), rt.Ether(1_000), 30)
	_, err = q.QuoteFrom(r, []poolmodel.Pool{other}, rt.Ether(5))
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestQuoteExactOut(t *testing.T) {
	q := New(DefaultGasTable(), 1)
	r := mustRoute(t, rt.WETH, rt.WethLusd(t))

	rq, err := q.QuoteExactOut(r, rt.Big("19743160687941225977009"))
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", rq.AmountIn.String())
	assert.Equal(t, "19743160687941225977009", rq.AmountOut.String())
	assert.Equal(t, int64(128), rq.PriceImpactBps)

	t.Run("multi hop round trip", func(t *testing.T) {
		wethUsdc := rt.CP(t, "0x01", rt.USDC, rt.WETH, rt.Ether(4_000_000), rt.Ether(2_000), 30)
		usdcLusd := rt.CL(t, "0x02", rt.LUSD, rt.USDC, rt.Ether(10_000_000), 600, 500)
		r := mustRoute(t, rt.WETH, wethUsdc, usdcLusd)

		want := rt.Ether(1_000)
		exact, err := q.QuoteExactOut(r, want)
		require.NoError(t, err)

		forward, err := q.Quote(r, exact.AmountIn)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, forward.AmountOut.Cmp(want), 0, "exact-out input must buy at least the requested output")
	})

	t.Run("more than the pool holds", func(t *testing.T) {
		_, err := q.QuoteExactOut(r, rt.Ether(2_000_000))
		assert.ErrorIs(t, err, poolmodel.ErrInsufficientLiquidity)
	})
}

func TestQuoteAllocation(t *testing.T) {
	q := New(DefaultGasTable(), 1)
	a := mustRoute(t, rt.WETH, rt.WethLusd(t))
	b := mustRoute(t, rt.WETH, rt.CP(t, "0x10", rt.LUSD, rt.WETH, rt.Ether(1_000_000), rt.Ether(500), 30))

	alloc, err := route.NewAllocation(rt.Ether(10),
		route.Share{Route: a, AmountIn: rt.Ether(6)},
		route.Share{Route: b, AmountIn: rt.Ether(4)},
	)
	require.NoError(t, err)

	quote, err := q.QuoteAllocation(alloc)
	require.NoError(t, err)

	qa, err := q.Quote(a, rt.Ether(6))
	require.NoError(t, err)
	qb, err := q.Quote(b, rt.Ether(4))
	require.NoError(t, err)

	assert.Equal(t, new(big.Int).Add(qa.AmountOut, qb.AmountOut).String(), quote.AmountOut.String())
	assert.Equal(t, uint64(180_000), quote.GasUnits)
	assert.Equal(t, rt.Ether(10).String(), quote.AmountIn.String())

	inputs := new(big.Int)
	for _, rq := range quote.Routes {
		inputs.Add(inputs, rq.AmountIn)
	}
	assert.Equal(t, quote.AmountIn.String(), inputs.String())

	t.Run("zero share is skipped", func(t *testing.T) {
		alloc, err := route.NewAllocation(rt.Ether(10),
			route.Share{Route: a, AmountIn: rt.Ether(10)},
			route.Share{Route: b, AmountIn: new(big.Int)},
		)
		require.NoError(t, err)
		quote, err := q.QuoteAllocation(alloc)
		require.NoError(t, err)
		assert.Len(t, quote.Routes, 1)
		assert.Equal(t, uint64(90_000), quote.GasUnits)
	})

	t.Run("insufficient liquidity propagates", func(t *testing.T) {
		alloc, err := route.NewAllocation(rt.Ether(10),
			route.Share{Route: a, AmountIn: rt.Ether(5)},
			route.Share{Route: mustRoute(t, rt.WETH, rt.CP(t, "0x11", rt.LUSD, rt.WETH, new(big.Int), rt.Ether(1), 30)), AmountIn: rt.Ether(5)},
		)
		require.NoError(t, err)
		_, err = q.QuoteAllocation(alloc)
		assert.ErrorIs(t, err, poolmodel.ErrInsufficientLiquidity)
	})
}

func TestQuoteAll(t *testing.T) {
	q := New(DefaultGasTable(), 2)
	good := mustRoute(t, rt.WETH, rt.WethLusd(t))
	empty := mustRoute(t, rt.WETH, rt.CP(t, "0x11", rt.LUSD, rt.WETH, new(big.Int), rt.Ether(1), 30))
	small := mustRoute(t, rt.WETH, rt.CP(t, "0x12", rt.LUSD, rt.WETH, rt.Ether(2_000), rt.Ether(1), 30))

	routes := []route.Route{good, empty, small}
	results, err := q.QuoteAll(context.Background(), routes, rt.Ether(10))
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.Equal(t, "19743160687941225977009", results[0].Quote.AmountOut.String())
	assert.ErrorIs(t, results[1].Err, poolmodel.ErrInsufficientLiquidity)
	require.NoError(t, results[2].Err)
	assert.Equal(t, small.Key(), results[2].Quote.Route.Key())

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := q.QuoteAll(ctx, routes, rt.Ether(10))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGasTable(t *testing.T) {
	assert.NoError(t, DefaultGasTable().Validate())
	assert.ErrorIs(t, GasTable{RouteOverhead: 1}.Validate(), ErrInvalidGasTable)

	custom := GasTable{PerHop: map[poolmodel.Kind]uint64{
		poolmodel.KindConstantProduct: 1,
		poolmodel.KindConcentrated:    2,
	}}
	r := mustRoute(t, rt.WETH,
		rt.CP(t, "0x01", rt.USDC, rt.WETH, rt.Ether(1), rt.Ether(1), 30),
		rt.CL(t, "0x02", rt.LUSD, rt.USDC, rt.Ether(1), 600, 500),
	)
	assert.Equal(t, uint64(3), custom.Estimate(r))
}
