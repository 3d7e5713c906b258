package tokenregistry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBigIntFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "failed to parse big int %s", s)
	return n
}

func TestTokenEqual(t *testing.T) {
	weth := Token{ChainID: 1, Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18}

	sameAddressOtherSymbol := weth
	sameAddressOtherSymbol.Symbol = "ETH"
	assert.True(t, weth.Equal(sameAddressOtherSymbol), "symbol must not affect identity")

	otherChain := weth
	otherChain.ChainID = 10
	assert.False(t, weth.Equal(otherChain))

	otherAddress := weth
	otherAddress.Address = common.HexToAddress("0x01")
	assert.False(t, weth.Equal(otherAddress))
	assert.True(t, otherAddress.SortsBefore(weth))
}

func TestParseUnits(t *testing.T) {
	testCases := []struct {
		name        string
		value       string
		decimals    uint8
		expected    string
		expectError bool
	}{
		{name: "whole number", value: "10000", decimals: 18, expected: "10000000000000000000000"},
		{name: "fraction", value: "1.5", decimals: 6, expected: "1500000"},
		{name: "leading point", value: ".25", decimals: 2, expected: "25"},
		{name: "trailing point", value: "7.", decimals: 0, expected: "7"},
		{name: "trailing zeros beyond precision", value: "1.500000000", decimals: 6, expected: "1500000"},
		{name: "zero", value: "0.000", decimals: 18, expected: "0"},
		{name: "surrounding whitespace", value: " 42 ", decimals: 1, expected: "420"},
		{name: "too many fractional digits", value: "1.0000001", decimals: 6, expectError: true},
		{name: "exponent", value: "1e22", decimals: 0, expectError: true},
		{name: "negative", value: "-1", decimals: 18, expectError: true},
		{name: "empty", value: "", decimals: 18, expectError: true},
		{name: "lone point", value: ".", decimals: 18, expectError: true},
		{name: "two points", value: "1.2.3", decimals: 18, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseUnits(tc.value, tc.decimals)
			if tc.expectError {
				assert.ErrorIs(t, err, ErrInvalidDecimalString)
				return
			}
			require.NoError(t, err)
			assert.Zero(t, newBigIntFromString(t, tc.expected).Cmp(got), "expected %s, got %s", tc.expected, got)
		})
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "10", FormatUnits(newBigIntFromString(t, "10000000000000000000"), 18))
	assert.Equal(t, "1.5", FormatUnits(big.NewInt(1500000), 6))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "-2.25", FormatUnits(big.NewInt(-225), 2))
	assert.Equal(t, "0", FormatUnits(nil, 18))

	raw := newBigIntFromString(t, "19743160687941225977009")
	parsed, err := ParseUnits(FormatUnits(raw, 18), 18)
	require.NoError(t, err)
	assert.Zero(t, raw.Cmp(parsed))
}

func TestNewAmount(t *testing.T) {
	token := Token{ChainID: 1, Address: common.HexToAddress("0x01"), Symbol: "TKN", Decimals: 2}

	_, err := NewAmount(token, big.NewInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = NewAmount(token, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	raw := big.NewInt(150)
	amount, err := NewAmount(token, raw)
	require.NoError(t, err)
	raw.SetInt64(0)
	assert.Equal(t, int64(150), amount.Raw.Int64(), "amount must own its magnitude")
	assert.Equal(t, "1.5 TKN", amount.String())
	assert.False(t, amount.IsZero())

	parsed, err := ParseAmount(token, "3")
	require.NoError(t, err)
	assert.Equal(t, int64(300), parsed.Raw.Int64())
}
