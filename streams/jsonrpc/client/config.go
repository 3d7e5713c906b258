package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/defistate/defistate-router-go/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// RpcNamespace is the namespace under which the streamer is registered.
	RpcNamespace                  = "defi"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	EventFull = "full"
	EventDiff = "diff"

	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc applies a diff to the previous state without mutating it.
type StatePatcherFunc func(prevState *stateops.State, diff *stateops.StateDiff) (newState *stateops.State, err error)

// DecoderFunc decodes one protocol's data. Returning an error wrapping
// stateops.ErrUnknownSchema drops that protocol instead of the event.
type DecoderFunc func(schema stateops.ProtocolSchema, data json.RawMessage) (any, error)

// Config wires a Client to a stream endpoint and to the codecs that turn
// raw protocol payloads into typed data.
type Config struct {
	URL    string
	Logger Logger
	// BufferSize bounds the queue of unread states. When it is full the
	// oldest queued state is dropped.
	BufferSize       uint
	StatePatcher     StatePatcherFunc
	StateDecoder     DecoderFunc
	StateDiffDecoder DecoderFunc
	// Registry is optional.
	Registry prometheus.Registerer
}

func (c *Config) validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "URL")
	}
	if c.Logger == nil {
		missing = append(missing, "Logger")
	}
	if c.StatePatcher == nil {
		missing = append(missing, "StatePatcher")
	}
	if c.StateDecoder == nil {
		missing = append(missing, "StateDecoder")
	}
	if c.StateDiffDecoder == nil {
		missing = append(missing, "StateDiffDecoder")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("config: missing %s", strings.Join(missing, ", ")))
	}
	if c.BufferSize == 0 {
		errs = append(errs, errors.New("config: BufferSize must be at least 1"))
	}
	return errors.Join(errs...)
}

// SubscriptionEvent is the envelope of every subscription notification.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}
