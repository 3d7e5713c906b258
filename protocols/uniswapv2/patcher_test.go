package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findPool(pools []Pool, address common.Address) *Pool {
	for i := range pools {
		if pools[i].Address == address {
			return &pools[i]
		}
	}
	return nil
}

func TestPatcher(t *testing.T) {
	addr1 := common.HexToAddress("0x01")
	addr2 := common.HexToAddress("0x02")
	addr3 := common.HexToAddress("0x03")

	pool1 := Pool{Address: addr1, Reserve0: big.NewInt(1000), Reserve1: big.NewInt(5000)}
	pool2 := Pool{Address: addr2, Reserve0: big.NewInt(2000), Reserve1: big.NewInt(6000)}
	pool3 := Pool{Address: addr3, Reserve0: big.NewInt(3000), Reserve1: big.NewInt(7000)}

	initialState := []Pool{pool3, pool1, pool2}

	t.Run("should handle additions", func(t *testing.T) {
		addr4 := common.HexToAddress("0x04")
		newState, err := Patcher(initialState, UniswapV2SystemDiff{
			Additions: []Pool{{Address: addr4, Reserve0: big.NewInt(4000), Reserve1: big.NewInt(1)}},
		})
		require.NoError(t, err)

		assert.Len(t, newState, 4)
		added := findPool(newState, addr4)
		require.NotNil(t, added)
		assert.Equal(t, int64(4000), added.Reserve0.Int64())
	})

	t.Run("should handle deletions", func(t *testing.T) {
		newState, err := Patcher(initialState, UniswapV2SystemDiff{Deletions: []common.Address{addr2}})
		require.NoError(t, err)

		assert.Len(t, newState, 2)
		assert.Nil(t, findPool(newState, addr2))
		assert.NotNil(t, findPool(newState, addr1))
	})

	t.Run("should handle updates", func(t *testing.T) {
		updated := Pool{Address: addr1, Reserve0: big.NewInt(1001), Reserve1: big.NewInt(5005)}
		newState, err := Patcher(initialState, UniswapV2SystemDiff{Updates: []Pool{updated}})
		require.NoError(t, err)

		got := findPool(newState, addr1)
		require.NotNil(t, got)
		assert.Equal(t, int64(1001), got.Reserve0.Int64())
		assert.Equal(t, int64(1000), pool1.Reserve0.Int64(), "previous state must not change")
	})

	t.Run("should deep copy and sort", func(t *testing.T) {
		newState, err := Patcher(initialState, UniswapV2SystemDiff{})
		require.NoError(t, err)

		require.Len(t, newState, 3)
		assert.Equal(t, []common.Address{addr1, addr2, addr3}, []common.Address{newState[0].Address, newState[1].Address, newState[2].Address})

		newState[0].Reserve0.SetInt64(0)
		assert.Equal(t, int64(1000), pool1.Reserve0.Int64())
	})
}
