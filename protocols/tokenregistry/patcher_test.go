package tokenregistry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToken(address string, symbol string, decimals uint8) Token {
	return Token{
		ChainID:  1,
		Address:  common.HexToAddress(address),
		Symbol:   symbol,
		Decimals: decimals,
	}
}

func findToken(tokens []Token, address string) *Token {
	for i := range tokens {
		if tokens[i].Address == common.HexToAddress(address) {
			return &tokens[i]
		}
	}
	return nil
}

func TestPatcher(t *testing.T) {
	weth := newTestToken("0x03", "WETH", 18)
	usdc := newTestToken("0x01", "USDC", 6)
	dai := newTestToken("0x02", "DAI", 18)

	initialState := []Token{weth, usdc, dai}

	t.Run("should handle additions", func(t *testing.T) {
		diff := TokenSystemDiff{Additions: []Token{newTestToken("0x04", "WBTC", 8)}}

		newState, err := Patcher(initialState, diff)
		require.NoError(t, err)

		assert.Len(t, newState, 4)
		wbtc := findToken(newState, "0x04")
		require.NotNil(t, wbtc)
		assert.Equal(t, uint8(8), wbtc.Decimals)
	})

	t.Run("should handle updates and deletions", func(t *testing.T) {
		renamed := dai
		renamed.Name = "Dai Stablecoin"
		diff := TokenSystemDiff{
			Updates:   []Token{renamed},
			Deletions: []common.Address{usdc.Address},
		}

		newState, err := Patcher(initialState, diff)
		require.NoError(t, err)

		assert.Len(t, newState, 2)
		assert.Nil(t, findToken(newState, "0x01"))
		assert.Equal(t, "Dai Stablecoin", findToken(newState, "0x02").Name)
	})

	t.Run("should order output by address and leave input untouched", func(t *testing.T) {
		newState, err := Patcher(initialState, TokenSystemDiff{})
		require.NoError(t, err)

		require.Len(t, newState, 3)
		assert.Equal(t, "USDC", newState[0].Symbol)
		assert.Equal(t, "DAI", newState[1].Symbol)
		assert.Equal(t, "WETH", newState[2].Symbol)
		assert.Equal(t, "WETH", initialState[0].Symbol)
	})

	t.Run("empty diff reports empty", func(t *testing.T) {
		assert.True(t, TokenSystemDiff{}.IsEmpty())
		assert.False(t, TokenSystemDiff{Deletions: []common.Address{usdc.Address}}.IsEmpty())
	})
}
