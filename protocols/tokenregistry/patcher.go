package tokenregistry

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TokenSystemDiff is the per-block change set for the token registry.
type TokenSystemDiff struct {
	Additions []Token          `json:"additions,omitempty"`
	Updates   []Token          `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d TokenSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Patcher applies diff to prevState and returns a new slice ordered by address.
// prevState is never modified.
func Patcher(prevState []Token, diff TokenSystemDiff) ([]Token, error) {
	// Token has no pointer fields, so value copies are independent.
	byAddress := make(map[common.Address]Token, len(prevState))
	for _, token := range prevState {
		byAddress[token.Address] = token
	}

	for _, address := range diff.Deletions {
		delete(byAddress, address)
	}
	for _, token := range diff.Updates {
		byAddress[token.Address] = token
	}
	for _, token := range diff.Additions {
		byAddress[token.Address] = token
	}

	finalState := make([]Token, 0, len(byAddress))
	for _, token := range byAddress {
		finalState = append(finalState, token)
	}
	sort.Slice(finalState, func(i, j int) bool {
		return bytes.Compare(finalState[i].Address[:], finalState[j].Address[:]) < 0
	})

	return finalState, nil
}
