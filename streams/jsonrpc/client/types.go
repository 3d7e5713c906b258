package client

import (
	"encoding/json"

	"github.com/defistate/defistate-router-go/streams/jsonrpc/stateops"
)

// clientState mirrors stateops.State but keeps protocol data as raw bytes
// until its schema is known.
type clientState struct {
	ChainID   uint64                                      `json:"chainId"`
	Timestamp uint64                                      `json:"timestamp"`
	Block     stateops.BlockSummary                       `json:"block"`
	Protocols map[stateops.ProtocolID]clientProtocolState `json:"protocols"`
}

// clientProtocolState is the raw form of both a protocol state and a
// protocol diff; the two share a wire shape.
type clientProtocolState struct {
	Meta              stateops.ProtocolMeta   `json:"meta"`
	SyncedBlockNumber *uint64                 `json:"syncedBlockNumber,omitempty"`
	Schema            stateops.ProtocolSchema `json:"schema"`
	Error             string                  `json:"error,omitempty"`
	Data              json.RawMessage         `json:"data,omitempty"`
}

// clientStateDiff mirrors stateops.StateDiff with raw protocol diffs.
type clientStateDiff struct {
	FromBlock uint64                                      `json:"fromBlock"`
	ToBlock   stateops.BlockSummary                       `json:"toBlock"`
	Timestamp uint64                                      `json:"timestamp"`
	Protocols map[stateops.ProtocolID]clientProtocolState `json:"protocols"`
}
