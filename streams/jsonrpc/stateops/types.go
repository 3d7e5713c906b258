// Package stateops decodes and patches the defistate chain state stream for
// the protocols the router trades on.
package stateops

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type ProtocolName string
type ProtocolID string

// ProtocolSchema defines the decode contract for a protocol's data.
type ProtocolSchema string

type ProtocolMeta struct {
	Name ProtocolName `json:"name"`
	Tags []string     `json:"tags,omitempty"`
}

type ProtocolState struct {
	Meta ProtocolMeta `json:"meta"`

	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	// Schema is the decode contract for Data, e.g.
	// "defistate/uniswap-v2-system/Pool@v2".
	Schema ProtocolSchema `json:"schema"`

	Data any `json:"data,omitempty"`

	// Error is set when the protocol failed to sync for this block.
	Error string `json:"error,omitempty"`
}

// BlockSummary contains only the essential block information for clients.
type BlockSummary struct {
	Number      *big.Int    `json:"number"`
	Hash        common.Hash `json:"hash"`
	Timestamp   uint64      `json:"timestamp"`
	ReceivedAt  int64       `json:"receivedAt"` // unix nanoseconds at which the server started processing the block
	GasUsed     uint64      `json:"gasUsed"`
	GasLimit    uint64      `json:"gasLimit"`
	StateRoot   common.Hash `json:"stateRoot"`
	TxHash      common.Hash `json:"txHash"`
	ReceiptHash common.Hash `json:"receiptHash"`
}

// BlockNumber returns the block number, or zero when it is missing.
func (b BlockSummary) BlockNumber() uint64 {
	if b.Number == nil {
		return 0
	}
	return b.Number.Uint64()
}

// State is every protocol's view at one block.
type State struct {
	ChainID   uint64                       `json:"chainId"`
	Timestamp uint64                       `json:"timestamp"`
	Block     BlockSummary                 `json:"block"`
	Protocols map[ProtocolID]ProtocolState `json:"protocols"`
}

func (state *State) HasErrors() bool {
	for _, pr := range state.Protocols {
		if pr.Error != "" {
			return true
		}
	}
	return false
}

// BySchema returns the protocols whose data follows schema, ordered by ID.
func (state *State) BySchema(schema ProtocolSchema) []ProtocolID {
	var ids []ProtocolID
	for id, pr := range state.Protocols {
		if pr.Schema == schema {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

type ProtocolDiff struct {
	Meta              ProtocolMeta   `json:"meta"`
	SyncedBlockNumber *uint64        `json:"syncedBlockNumber,omitempty"`
	Schema            ProtocolSchema `json:"schema"`
	Data              any            `json:"data,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// StateDiff is the change set that moves a State from FromBlock to ToBlock.
type StateDiff struct {
	Timestamp uint64                      `json:"timestamp"`
	FromBlock uint64                      `json:"fromBlock"`
	ToBlock   BlockSummary                `json:"toBlock"`
	Protocols map[ProtocolID]ProtocolDiff `json:"protocols"`
}
