package stateops

import (
	"errors"
	"fmt"
)

// PatcherFunc applies a diff to a previous protocol state.
//
// Implementations must not mutate prevState. prevState is nil when the diff
// introduces the protocol.
type PatcherFunc func(prevState any, diffData any) (newState any, err error)

var ErrBlockMismatch = errors.New("diff does not start at the current block")

// StatePatcher applies state diffs protocol by protocol.
type StatePatcher struct {
	patchers map[ProtocolSchema]PatcherFunc
}

// NewStatePatcher copies patchers; none may be nil.
func NewStatePatcher(patchers map[ProtocolSchema]PatcherFunc) (*StatePatcher, error) {
	copied := make(map[ProtocolSchema]PatcherFunc, len(patchers))
	for schema, fn := range patchers {
		if fn == nil {
			return nil, fmt.Errorf("patcher for schema %q cannot be nil", schema)
		}
		copied[schema] = fn
	}
	return &StatePatcher{patchers: copied}, nil
}

// Patch returns the state diff describes. Protocols the diff does not touch
// are shared with oldState.
func (p *StatePatcher) Patch(oldState *State, diff *StateDiff) (*State, error) {
	if oldState == nil || diff == nil {
		return nil, errors.New("patcher: state and diff are required")
	}
	if current := oldState.Block.BlockNumber(); current != diff.FromBlock {
		return nil, fmt.Errorf("%w: state=%d, diff from=%d", ErrBlockMismatch, current, diff.FromBlock)
	}

	newProtocols := make(map[ProtocolID]ProtocolState, len(oldState.Protocols))
	for k, v := range oldState.Protocols {
		newProtocols[k] = v
	}

	for protocolID, protocolDiff := range diff.Protocols {
		patcherFunc, ok := p.patchers[protocolDiff.Schema]
		if !ok {
			return nil, fmt.Errorf("patcher: no patcher registered for schema %q (protocol=%s)", protocolDiff.Schema, protocolID)
		}

		var oldData any
		if old, exists := oldState.Protocols[protocolID]; exists {
			if old.Schema != protocolDiff.Schema {
				return nil, fmt.Errorf("patcher: schema mismatch for protocol %s (old=%s, diff=%s)", protocolID, old.Schema, protocolDiff.Schema)
			}
			oldData = old.Data
		}

		newData, err := patcherFunc(oldData, protocolDiff.Data)
		if err != nil {
			return nil, fmt.Errorf("patcher: failed to patch protocol %s: %w", protocolID, err)
		}

		newProtocols[protocolID] = ProtocolState{
			Meta:              protocolDiff.Meta,
			SyncedBlockNumber: protocolDiff.SyncedBlockNumber,
			Schema:            protocolDiff.Schema,
			Data:              newData,
			Error:             protocolDiff.Error,
		}
	}

	return &State{
		ChainID:   oldState.ChainID,
		Timestamp: diff.Timestamp,
		Block:     diff.ToBlock,
		Protocols: newProtocols,
	}, nil
}
