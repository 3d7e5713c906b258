package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"testing"
	"time"

	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	lusd     = common.HexToAddress("0x5f98805A4E8be255a32880FDeC7F6728C6568bA0")
	wethLusd = common.HexToAddress("0xF20EF17b889b437C151eB5bA15A47bFc62bfF469")
)

// stateStreamer replays a fixed list of events to every subscriber.
type stateStreamer struct {
	events []*SubscriptionEvent
	t      *testing.T
}

func (s *stateStreamer) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	go func() {
		for _, event := range s.events {
			select {
			case <-rpcSub.Err():
				return
			default:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					s.t.Logf("notify failed: %v", err)
					return
				}
			}
		}
	}()
	return rpcSub, nil
}

// serveStream runs a websocket JSON-RPC server on addr until ctx is done.
func serveStream(ctx context.Context, t *testing.T, addr string, events []*SubscriptionEvent) {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName(RpcNamespace, &stateStreamer{events: events, t: t}))

	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	httpServer := &http.Server{Handler: server.WebsocketHandler([]string{"*"})}

	go func() { _ = httpServer.Serve(listener) }()
	go func() {
		<-ctx.Done()
		server.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func pool(reserveWeth int64) uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:  wethLusd,
		Token0:   lusd,
		Token1:   weth,
		Reserve0: big.NewInt(2_000_000),
		Reserve1: big.NewInt(reserveWeth),
		FeeBps:   30,
	}
}

func fullEvent(t *testing.T, block int64, protocols map[string]any) *SubscriptionEvent {
	t.Helper()
	payload := map[string]any{
		"chainId":   1,
		"timestamp": 1,
		"block":     map[string]any{"number": block, "receivedAt": time.Now().UnixNano()},
		"protocols": protocols,
	}
	return &SubscriptionEvent{Type: EventFull, Payload: mustMarshal(t, payload), SentAt: time.Now().UnixNano()}
}

func diffEvent(t *testing.T, from, to int64, protocols map[string]any) *SubscriptionEvent {
	t.Helper()
	payload := map[string]any{
		"fromBlock": from,
		"toBlock":   map[string]any{"number": to},
		"timestamp": 2,
		"protocols": protocols,
	}
	return &SubscriptionEvent{Type: EventDiff, Payload: mustMarshal(t, payload), SentAt: time.Now().UnixNano()}
}

func v2Protocol(data any) map[string]any {
	return map[string]any{"uniswap_v2": map[string]any{"schema": uniswapv2.Schema, "data": data}}
}

func newProcessor(t *testing.T) *StreamProcessor {
	t.Helper()
	ops, err := stateops.NewStateOps()
	require.NoError(t, err)
	return NewStreamProcessor(discardLogger(), 10, ops.Patch, ops.DecodeStateJSON, ops.DecodeStateDiffJSON)
}

func encode(t *testing.T, e *SubscriptionEvent) json.RawMessage {
	return mustMarshal(t, e)
}

func receive(t *testing.T, ch <-chan *stateops.State) *stateops.State {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for state")
		return nil
	}
}

// --- StreamProcessor ---

func TestStreamProcessor_FullAndDiffFlow(t *testing.T) {
	sp := newProcessor(t)

	require.NoError(t, sp.ProcessMessage(encode(t, fullEvent(t, 100, v2Protocol([]uniswapv2.Pool{pool(1_000)})))))
	state := receive(t, sp.State())
	assert.Equal(t, uint64(100), state.Block.BlockNumber())
	v2, _, err := stateops.Pools(state)
	require.NoError(t, err)
	require.Len(t, v2, 1)
	assert.Equal(t, "1000", v2[0].Reserve1.String())

	diff := uniswapv2.UniswapV2SystemDiff{Updates: []uniswapv2.Pool{pool(1_010)}}
	require.NoError(t, sp.ProcessMessage(encode(t, diffEvent(t, 100, 101, v2Protocol(diff)))))
	state = receive(t, sp.State())
	assert.Equal(t, uint64(101), state.Block.BlockNumber())
	assert.Equal(t, uint64(2), state.Timestamp)
	v2, _, err = stateops.Pools(state)
	require.NoError(t, err)
	assert.Equal(t, "1010", v2[0].Reserve1.String())
}

func TestStreamProcessor_SkipsUnknownSchemas(t *testing.T) {
	sp := newProcessor(t)

	protocols := v2Protocol([]uniswapv2.Pool{pool(1_000)})
	protocols["pool_registry"] = map[string]any{"schema": "defistate/pool-registry/Pool@v2", "data": map[string]any{"x": 1}}
	require.NoError(t, sp.ProcessMessage(encode(t, fullEvent(t, 5, protocols))))

	state := receive(t, sp.State())
	assert.Contains(t, state.Protocols, stateops.ProtocolID("uniswap_v2"))
	assert.NotContains(t, state.Protocols, stateops.ProtocolID("pool_registry"))

	diffProtocols := map[string]any{"pool_registry": map[string]any{"schema": "defistate/pool-registry/Pool@v2", "data": map[string]any{}}}
	require.NoError(t, sp.ProcessMessage(encode(t, diffEvent(t, 5, 6, diffProtocols))))
	assert.Equal(t, uint64(6), receive(t, sp.State()).Block.BlockNumber())
}

func TestStreamProcessor_ValidationErrors(t *testing.T) {
	sp := newProcessor(t)

	err := sp.ProcessMessage(encode(t, diffEvent(t, 100, 101, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "received diff before full state")

	assert.Error(t, sp.ProcessMessage([]byte(`{not-json}`)))
	assert.Error(t, sp.ProcessMessage([]byte(`{"type":"snapshot","payload":{}}`)))
	assert.Error(t, sp.ProcessMessage(encode(t, &SubscriptionEvent{Type: EventFull, Payload: json.RawMessage(`{"block":{"number":"not-a-number"}}`)})))
	assert.Error(t, sp.ProcessMessage(encode(t, &SubscriptionEvent{Type: EventFull, Payload: json.RawMessage(`{"block":{}}`)})))
	assert.Error(t, sp.ProcessMessage(encode(t, fullEvent(t, 1, v2Protocol(map[string]any{"not": "a list"})))))
}

func TestStreamProcessor_OutOfOrderDiff(t *testing.T) {
	sp := newProcessor(t)
	require.NoError(t, sp.ProcessMessage(encode(t, fullEvent(t, 100, v2Protocol([]uniswapv2.Pool{pool(1_000)})))))
	receive(t, sp.State())

	require.NoError(t, sp.ProcessMessage(encode(t, diffEvent(t, 105, 106, nil))))
	select {
	case <-sp.State():
		t.Fatal("out-of-order diff must not emit a state")
	default:
	}
}

func TestStreamProcessor_DropsOldestWhenFull(t *testing.T) {
	ops, err := stateops.NewStateOps()
	require.NoError(t, err)
	sp := NewStreamProcessor(discardLogger(), 1, ops.Patch, ops.DecodeStateJSON, ops.DecodeStateDiffJSON)

	require.NoError(t, sp.ProcessMessage(encode(t, fullEvent(t, 100, v2Protocol([]uniswapv2.Pool{pool(1_000)})))))
	diff := uniswapv2.UniswapV2SystemDiff{Updates: []uniswapv2.Pool{pool(1_010)}}
	require.NoError(t, sp.ProcessMessage(encode(t, diffEvent(t, 100, 101, v2Protocol(diff)))))

	latest := receive(t, sp.State())
	assert.Equal(t, uint64(101), latest.Block.BlockNumber())
	select {
	case s := <-sp.State():
		t.Fatalf("unexpected queued state for block %d", s.Block.BlockNumber())
	default:
	}
}

// --- Client ---

func TestClient_StreamsAndPatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := freeAddr(t)
	serveStream(ctx, t, addr, []*SubscriptionEvent{
		fullEvent(t, 100, v2Protocol([]uniswapv2.Pool{pool(1_000)})),
		diffEvent(t, 100, 101, v2Protocol(uniswapv2.UniswapV2SystemDiff{Deletions: []common.Address{wethLusd}})),
	})

	ops, err := stateops.NewStateOps()
	require.NoError(t, err)
	client, err := NewClient(ctx, Config{
		URL:              "ws://" + addr,
		Logger:           discardLogger(),
		BufferSize:       10,
		StatePatcher:     ops.Patch,
		StateDecoder:     ops.DecodeStateJSON,
		StateDiffDecoder: ops.DecodeStateDiffJSON,
	})
	require.NoError(t, err)

	first := receive(t, client.State())
	assert.Equal(t, uint64(100), first.Block.BlockNumber())

	second := receive(t, client.State())
	assert.Equal(t, uint64(101), second.Block.BlockNumber())
	v2, _, err := stateops.Pools(second)
	require.NoError(t, err)
	assert.Empty(t, v2)
}

func TestClient_Reconnection(t *testing.T) {
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	ops, err := stateops.NewStateOps()
	require.NoError(t, err)
	addr := freeAddr(t)
	client, err := NewClient(clientCtx, Config{
		URL:              fmt.Sprintf("ws://%s", addr),
		Logger:           discardLogger(),
		BufferSize:       10,
		StatePatcher:     ops.Patch,
		StateDecoder:     ops.DecodeStateJSON,
		StateDiffDecoder: ops.DecodeStateDiffJSON,
	})
	require.NoError(t, err)

	server1Ctx, server1Cancel := context.WithCancel(clientCtx)
	serveStream(server1Ctx, t, addr, []*SubscriptionEvent{fullEvent(t, 1, nil)})
	assert.Equal(t, uint64(1), receive(t, client.State()).Block.BlockNumber())

	server1Cancel()
	time.Sleep(100 * time.Millisecond)

	server2Ctx, server2Cancel := context.WithCancel(clientCtx)
	defer server2Cancel()
	serveStream(server2Ctx, t, addr, []*SubscriptionEvent{fullEvent(t, 2, nil)})
	assert.Equal(t, uint64(2), receive(t, client.State()).Block.BlockNumber())
}

func TestClient_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ops, err := stateops.NewStateOps()
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:              "ws://" + freeAddr(t),
		Logger:           discardLogger(),
		BufferSize:       1,
		StatePatcher:     ops.Patch,
		StateDecoder:     ops.DecodeStateJSON,
		StateDiffDecoder: ops.DecodeStateDiffJSON,
	})
	require.NoError(t, err)
	cancel()

	select {
	case <-client.Err():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop after cancel")
	}
}

func TestConfigValidate(t *testing.T) {
	ops, err := stateops.NewStateOps()
	require.NoError(t, err)
	valid := Config{
		URL:              "ws://localhost:1",
		Logger:           discardLogger(),
		BufferSize:       1,
		StatePatcher:     ops.Patch,
		StateDecoder:     ops.DecodeStateJSON,
		StateDiffDecoder: ops.DecodeStateDiffJSON,
	}
	require.NoError(t, valid.validate())

	for name, mutate := range map[string]func(*Config){
		"url":          func(c *Config) { c.URL = "" },
		"buffer":       func(c *Config) { c.BufferSize = 0 },
		"logger":       func(c *Config) { c.Logger = nil },
		"patcher":      func(c *Config) { c.StatePatcher = nil },
		"decoder":      func(c *Config) { c.StateDecoder = nil },
		"diff decoder": func(c *Config) { c.StateDiffDecoder = nil },
	} {
		cfg := valid
		mutate(&cfg)
		assert.Error(t, cfg.validate(), name)
	}

	err = (&Config{}).validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL, Logger, StatePatcher")
	assert.Contains(t, err.Error(), "BufferSize")
}
