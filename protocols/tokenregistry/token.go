package tokenregistry

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// Schema is the stream decode contract for the token registry.
const Schema = "defistate/token-registry/Token@v2"

// Token is a chain-scoped ERC20 token. Two tokens are the same token when
// their chain and contract address match; symbols are labels only.
type Token struct {
	ChainID  uint64         `json:"chainId,omitempty"`
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Equal reports whether t and o identify the same on-chain token.
func (t Token) Equal(o Token) bool {
	return t.ChainID == o.ChainID && t.Address == o.Address
}

// SortsBefore orders tokens by address the way pair contracts order token0/token1.
func (t Token) SortsBefore(o Token) bool {
	return bytes.Compare(t.Address[:], o.Address[:]) < 0
}

func (t Token) String() string {
	if t.Symbol == "" {
		return t.Address.Hex()
	}
	return t.Symbol + "(" + t.Address.Hex() + ")"
}
