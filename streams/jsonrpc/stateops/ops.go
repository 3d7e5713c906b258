package stateops

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	tokenregistry "github.com/defistate/defistate-router-go/protocols/tokenregistry"
	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	uniswapv3 "github.com/defistate/defistate-router-go/protocols/uniswapv3"
)

var (
	// ErrUnknownSchema marks protocol data this package cannot decode. The
	// stream client skips such protocols.
	ErrUnknownSchema = errors.New("unknown schema")
	// ErrProtocolFailed means a protocol reported a sync error for the block.
	ErrProtocolFailed = errors.New("protocol failed to sync")
)

type codec struct {
	decodeState func(json.RawMessage) (any, error)
	decodeDiff  func(json.RawMessage) (any, error)
	patch       PatcherFunc
}

// StateOps decodes stream payloads and patches diffs for the token registry
// and both pool systems.
type StateOps struct {
	*StatePatcher
	codecs map[ProtocolSchema]codec
}

func NewStateOps() (*StateOps, error) {
	codecs := map[ProtocolSchema]codec{
		tokenregistry.Schema: {
			decodeState: decodeAs[[]tokenregistry.Token],
			decodeDiff:  decodeAs[tokenregistry.TokenSystemDiff],
			patch:       typedPatcher(tokenregistry.Patcher),
		},
		uniswapv2.Schema: {
			decodeState: decodeAs[[]uniswapv2.Pool],
			decodeDiff:  decodeAs[uniswapv2.UniswapV2SystemDiff],
			patch:       typedPatcher(uniswapv2.Patcher),
		},
		uniswapv3.Schema: {
			decodeState: decodeAs[[]uniswapv3.Pool],
			decodeDiff:  decodeAs[uniswapv3.UniswapV3SystemDiff],
			patch:       typedPatcher(uniswapv3.Patcher),
		},
	}

	patchers := make(map[ProtocolSchema]PatcherFunc, len(codecs))
	for schema, c := range codecs {
		patchers[schema] = c.patch
	}
	statePatcher, err := NewStatePatcher(patchers)
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StatePatcher: statePatcher,
		codecs:       codecs,
	}, nil
}

// DecodeStateJSON decodes a full protocol view.
func (ops *StateOps) DecodeStateJSON(schema ProtocolSchema, data json.RawMessage) (any, error) {
	c, ok := ops.codecs[schema]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, schema)
	}
	return c.decodeState(data)
}

// DecodeStateDiffJSON decodes a protocol diff.
func (ops *StateOps) DecodeStateDiffJSON(schema ProtocolSchema, data json.RawMessage) (any, error) {
	c, ok := ops.codecs[schema]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, schema)
	}
	return c.decodeDiff(data)
}

// Pools gathers the pools of every constant-product and concentrated
// protocol in state. Forks sharing a schema are concatenated in protocol ID
// order. A pool protocol that failed to sync fails the whole call.
func Pools(state *State) ([]uniswapv2.Pool, []uniswapv3.Pool, error) {
	var (
		v2 []uniswapv2.Pool
		v3 []uniswapv3.Pool
	)
	for _, id := range state.BySchema(uniswapv2.Schema) {
		pools, err := dataOf[[]uniswapv2.Pool](state, id)
		if err != nil {
			return nil, nil, err
		}
		v2 = append(v2, pools...)
	}
	for _, id := range state.BySchema(uniswapv3.Schema) {
		pools, err := dataOf[[]uniswapv3.Pool](state, id)
		if err != nil {
			return nil, nil, err
		}
		v3 = append(v3, pools...)
	}
	return v2, v3, nil
}

// Tokens returns the token registry carried by state, if any.
func Tokens(state *State) ([]tokenregistry.Token, error) {
	var tokens []tokenregistry.Token
	for _, id := range state.BySchema(tokenregistry.Schema) {
		t, err := dataOf[[]tokenregistry.Token](state, id)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t...)
	}
	return tokens, nil
}

func dataOf[T any](state *State, id ProtocolID) (T, error) {
	var zero T
	pr := state.Protocols[id]
	if pr.Error != "" {
		return zero, fmt.Errorf("%w: %s at block %d: %s", ErrProtocolFailed, id, state.Block.BlockNumber(), pr.Error)
	}
	if pr.Data == nil {
		return zero, nil
	}
	v, ok := pr.Data.(T)
	if !ok {
		return zero, fmt.Errorf("protocol %s holds %T, want %T", id, pr.Data, zero)
	}
	return v, nil
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func typedPatcher[S, D any](fn func(S, D) (S, error)) PatcherFunc {
	return func(prevState, diffData any) (any, error) {
		var prev S
		if prevState != nil {
			p, ok := prevState.(S)
			if !ok {
				return nil, fmt.Errorf("state is %T, want %T", prevState, prev)
			}
			prev = p
		}
		diff, ok := diffData.(D)
		if !ok {
			var want D
			return nil, fmt.Errorf("diff is %T, want %T", diffData, want)
		}
		return fn(prev, diff)
	}
}

func sortIDs(ids []ProtocolID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
