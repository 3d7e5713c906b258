package stateops

import (
	"encoding/json"
	"math/big"
	"testing"

	tokenregistry "github.com/defistate/defistate-router-go/protocols/tokenregistry"
	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	uniswapv3 "github.com/defistate/defistate-router-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	lusd     = common.HexToAddress("0x5f98805A4E8be255a32880FDeC7F6728C6568bA0")
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	wethLusd = common.HexToAddress("0xF20EF17b889b437C151eB5bA15A47bFc62bfF469")
	usdcWeth = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func v2Pools() []uniswapv2.Pool {
	return []uniswapv2.Pool{
		{Address: usdcWeth, Token0: usdc, Token1: weth, Reserve0: big.NewInt(100_000_000), Reserve1: big.NewInt(50), FeeBps: 30},
		{Address: wethLusd, Token0: lusd, Token1: weth, Reserve0: big.NewInt(2_000_000), Reserve1: big.NewInt(1_000), FeeBps: 30},
	}
}

func TestStateOps_DecodeAndPatch(t *testing.T) {
	ops, err := NewStateOps()
	require.NoError(t, err)

	decoded, err := ops.DecodeStateJSON(uniswapv2.Schema, mustJSON(t, v2Pools()))
	require.NoError(t, err)
	pools, ok := decoded.([]uniswapv2.Pool)
	require.True(t, ok)
	require.Len(t, pools, 2)
	assert.Equal(t, "100000000", pools[0].Reserve0.String())

	state := makeState(100, map[ProtocolID]ProtocolState{
		"uniswap_v2": {Schema: uniswapv2.Schema, Data: pools},
	})

	updated := v2Pools()[1]
	updated.Reserve1 = big.NewInt(1_010)
	diffData, err := ops.DecodeStateDiffJSON(uniswapv2.Schema, mustJSON(t, uniswapv2.UniswapV2SystemDiff{
		Updates:   []uniswapv2.Pool{updated},
		Deletions: []common.Address{usdcWeth},
	}))
	require.NoError(t, err)

	next, err := ops.Patch(state, &StateDiff{
		FromBlock: 100,
		ToBlock:   BlockSummary{Number: big.NewInt(101)},
		Protocols: map[ProtocolID]ProtocolDiff{
			"uniswap_v2": {Schema: uniswapv2.Schema, Data: diffData},
		},
	})
	require.NoError(t, err)

	v2, v3, err := Pools(next)
	require.NoError(t, err)
	assert.Empty(t, v3)
	require.Len(t, v2, 1)
	assert.Equal(t, wethLusd, v2[0].Address)
	assert.Equal(t, "1010", v2[0].Reserve1.String())

	// the previous state still holds both pools
	old, _, err := Pools(state)
	require.NoError(t, err)
	assert.Len(t, old, 2)
}

func TestStateOps_NewProtocolInDiff(t *testing.T) {
	ops, err := NewStateOps()
	require.NoError(t, err)

	token := tokenregistry.Token{ChainID: 1, Address: weth, Symbol: "WETH", Decimals: 18}
	diffData, err := ops.DecodeStateDiffJSON(tokenregistry.Schema, mustJSON(t, tokenregistry.TokenSystemDiff{
		Additions: []tokenregistry.Token{token},
	}))
	require.NoError(t, err)

	next, err := ops.Patch(makeState(7, nil), &StateDiff{
		FromBlock: 7,
		ToBlock:   BlockSummary{Number: big.NewInt(8)},
		Protocols: map[ProtocolID]ProtocolDiff{
			"tokens": {Schema: tokenregistry.Schema, Data: diffData},
		},
	})
	require.NoError(t, err)

	tokens, err := Tokens(next)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Equal(token))
}

func TestStateOps_UnknownSchema(t *testing.T) {
	ops, err := NewStateOps()
	require.NoError(t, err)

	_, err = ops.DecodeStateJSON("defistate/pool-registry/Pool@v2", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownSchema)
	_, err = ops.DecodeStateDiffJSON("defistate/pool-registry/Pool@v2", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownSchema)

	_, err = ops.DecodeStateJSON(uniswapv3.Schema, json.RawMessage(`{"not":"a list"}`))
	assert.Error(t, err)
}

func TestPools_ForksAndFailures(t *testing.T) {
	v3 := []uniswapv3.Pool{{Address: common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"), Token0: usdc, Token1: weth}}
	sushi := []uniswapv2.Pool{{Address: common.HexToAddress("0x0001"), Token0: usdc, Token1: weth}}

	state := makeState(1, map[ProtocolID]ProtocolState{
		"uniswap_v2":   {Schema: uniswapv2.Schema, Data: v2Pools()},
		"sushiswap_v2": {Schema: uniswapv2.Schema, Data: sushi},
		"uniswap_v3":   {Schema: uniswapv3.Schema, Data: v3},
		"other":        {Schema: "defistate/pool-registry/Pool@v2"},
	})

	gotV2, gotV3, err := Pools(state)
	require.NoError(t, err)
	require.Len(t, gotV2, 3)
	assert.Equal(t, sushi[0].Address, gotV2[0].Address, "forks are ordered by protocol id")
	assert.Len(t, gotV3, 1)

	state.Protocols["uniswap_v3"] = ProtocolState{Schema: uniswapv3.Schema, Error: "rpc timeout"}
	assert.True(t, state.HasErrors())
	_, _, err = Pools(state)
	assert.ErrorIs(t, err, ErrProtocolFailed)
}
