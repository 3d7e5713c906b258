package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-router-go/streams/jsonrpc/stateops"
)

// StreamProcessor turns subscription events into states. It holds the last
// published state so diffs can be applied on top of it. It does no I/O and
// must be driven from a single goroutine.
type StreamProcessor struct {
	logger     Logger
	patch      StatePatcherFunc
	decodeFull DecoderFunc
	decodeDiff DecoderFunc
	out        chan *stateops.State
	current    *stateops.State
	metrics    *metrics
}

// NewStreamProcessor builds a processor with unregistered metrics.
func NewStreamProcessor(
	logger Logger,
	bufferSize uint,
	statePatcher StatePatcherFunc,
	stateDecoder DecoderFunc,
	stateDiffDecoder DecoderFunc,
) *StreamProcessor {
	return &StreamProcessor{
		logger:     logger,
		patch:      statePatcher,
		decodeFull: stateDecoder,
		decodeDiff: stateDiffDecoder,
		out:        make(chan *stateops.State, bufferSize),
		metrics:    newMetrics(nil),
	}
}

// State delivers every state the processor produces, oldest first.
func (sp *StreamProcessor) State() <-chan *stateops.State {
	return sp.out
}

// ProcessMessage handles one raw notification. An out-of-order diff is
// dropped without error; the stream resyncs on its next full event.
func (sp *StreamProcessor) ProcessMessage(raw json.RawMessage) error {
	received := time.Now()

	var event SubscriptionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		sp.metrics.event("unknown", err)
		return fmt.Errorf("decode subscription event: %w", err)
	}

	var (
		state *stateops.State
		err   error
	)
	switch event.Type {
	case EventFull:
		state, err = sp.full(event.Payload)
	case EventDiff:
		state, err = sp.diff(event.Payload)
	default:
		err = fmt.Errorf("unknown event type %q", event.Type)
	}
	sp.metrics.event(event.Type, err)
	if err != nil || state == nil {
		return err
	}

	sp.observe(state, event, received)
	sp.current = state
	sp.push(state)
	return nil
}

func (sp *StreamProcessor) full(payload json.RawMessage) (*stateops.State, error) {
	var wire clientState
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode full state: %w", err)
	}
	if wire.Block.Number == nil {
		return nil, errors.New("full state has no block number")
	}

	protocols, err := decodeProtocols(sp, wire.Protocols, sp.decodeFull,
		func(p clientProtocolState, data any) stateops.ProtocolState {
			return stateops.ProtocolState{
				Meta:              p.Meta,
				SyncedBlockNumber: p.SyncedBlockNumber,
				Schema:            p.Schema,
				Data:              data,
				Error:             p.Error,
			}
		})
	if err != nil {
		return nil, err
	}

	return &stateops.State{
		ChainID:   wire.ChainID,
		Timestamp: wire.Timestamp,
		Block:     wire.Block,
		Protocols: protocols,
	}, nil
}

func (sp *StreamProcessor) diff(payload json.RawMessage) (*stateops.State, error) {
	var wire clientStateDiff
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode diff: %w", err)
	}
	to := wire.ToBlock.BlockNumber()
	if sp.current == nil {
		return nil, fmt.Errorf("received diff before full state (blocks %d..%d)", wire.FromBlock, to)
	}
	if have := sp.current.Block.BlockNumber(); wire.FromBlock != have {
		sp.logger.Warn("Discarding out-of-order diff",
			"have_block", have,
			"from_block", wire.FromBlock,
			"to_block", to,
		)
		return nil, nil
	}

	protocols, err := decodeProtocols(sp, wire.Protocols, sp.decodeDiff,
		func(p clientProtocolState, data any) stateops.ProtocolDiff {
			return stateops.ProtocolDiff{
				Meta:              p.Meta,
				SyncedBlockNumber: p.SyncedBlockNumber,
				Schema:            p.Schema,
				Data:              data,
				Error:             p.Error,
			}
		})
	if err != nil {
		return nil, err
	}

	next, err := sp.patch(sp.current, &stateops.StateDiff{
		FromBlock: wire.FromBlock,
		ToBlock:   wire.ToBlock,
		Timestamp: wire.Timestamp,
		Protocols: protocols,
	})
	if err != nil {
		return nil, fmt.Errorf("patch block %d: %w", to, err)
	}
	next.Timestamp = wire.Timestamp
	return next, nil
}

// decodeProtocols decodes each raw protocol entry with decode and wraps the
// result with build. Entries with a schema the decoder does not know are
// left out.
func decodeProtocols[T any](
	sp *StreamProcessor,
	raw map[stateops.ProtocolID]clientProtocolState,
	decode DecoderFunc,
	build func(clientProtocolState, any) T,
) (map[stateops.ProtocolID]T, error) {
	out := make(map[stateops.ProtocolID]T, len(raw))
	for id, p := range raw {
		data, err := decode(p.Schema, p.Data)
		switch {
		case errors.Is(err, stateops.ErrUnknownSchema):
			sp.logger.Debug("Skipping protocol", "protocol", id, "schema", p.Schema)
		case err != nil:
			return nil, fmt.Errorf("protocol %s: %w", id, err)
		default:
			out[id] = build(p, data)
		}
	}
	return out, nil
}

// push queues state for readers. Once the queue is full the oldest unread
// state gives way, since only recent states are worth routing on.
func (sp *StreamProcessor) push(state *stateops.State) {
	for {
		select {
		case sp.out <- state:
			return
		default:
		}
		select {
		case <-sp.out:
			sp.metrics.dropped.Inc()
		default:
		}
	}
}

func (sp *StreamProcessor) observe(state *stateops.State, event SubscriptionEvent, received time.Time) {
	now := time.Now()
	block := state.Block.BlockNumber()
	sp.metrics.block.Set(float64(block))

	attrs := []any{
		"block", block,
		"type", event.Type,
		"protocols", len(state.Protocols),
		"decode_ms", now.Sub(received).Milliseconds(),
	}
	if event.SentAt > 0 {
		attrs = append(attrs, "transport_ms", received.Sub(time.Unix(0, event.SentAt)).Milliseconds())
	}
	if state.Block.Timestamp > 0 {
		age := now.Sub(time.Unix(int64(state.Block.Timestamp), 0))
		sp.metrics.latency.Observe(age.Seconds())
		attrs = append(attrs, "block_age_ms", age.Milliseconds())
	}
	if state.HasErrors() {
		attrs = append(attrs, "degraded", true)
	}
	sp.logger.Debug("State processed", attrs...)
}
