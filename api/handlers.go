// Package api exposes the router over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/defistate/defistate-router-go/chains/ethereum"
	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/router"
	"github.com/defistate/defistate-router-go/routing/planner"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Router plans trades; *router.Router implements it.
type Router interface {
	Route(ctx context.Context, req router.Request) (*planner.TradePlan, error)
}

// TokenResolver finds a token by symbol or hex address.
type TokenResolver interface {
	Resolve(ref string) (tokenregistry.Token, bool)
}

// StateView exposes the latest processed chain state; *ethereum.Client
// implements it.
type StateView interface {
	Latest() *ethereum.State
}

// Defaults fill the optional fields of a RouteRequest.
type Defaults struct {
	Tolerance      planner.Tolerance
	DeadlineOffset time.Duration
}

// Handler serves the API endpoints.
type Handler struct {
	router   Router
	tokens   TokenResolver
	state    StateView
	defaults Defaults
	logger   Logger
}

// NewHandler creates a handler. tokens and state may be nil; tokens are then
// resolved from the streamed token registry only.
func NewHandler(r Router, tokens TokenResolver, state StateView, defaults Defaults, logger Logger) *Handler {
	return &Handler{
		router:   r,
		tokens:   tokens,
		state:    state,
		defaults: defaults,
		logger:   logger,
	}
}

func (h *Handler) latest() *ethereum.State {
	if h.state == nil {
		return nil
	}
	return h.state.Latest()
}

// resolveToken prefers the configured token list over the streamed registry.
func (h *Handler) resolveToken(ref string) (tokenregistry.Token, bool) {
	if h.tokens != nil {
		if t, ok := h.tokens.Resolve(ref); ok {
			return t, true
		}
	}
	if s := h.latest(); s != nil && s.Tokens != nil {
		return s.Tokens.Resolve(ref)
	}
	return tokenregistry.Token{}, false
}

func (h *Handler) toRequest(body RouteRequest) (router.Request, error) {
	var req router.Request

	tradeType, err := planner.ParseTradeType(body.TradeType)
	if err != nil {
		return req, err
	}
	in, ok := h.resolveToken(body.TokenIn)
	if !ok {
		return req, fmt.Errorf("unknown token %q", body.TokenIn)
	}
	out, ok := h.resolveToken(body.TokenOut)
	if !ok {
		return req, fmt.Errorf("unknown token %q", body.TokenOut)
	}

	fixed := in
	if tradeType == planner.ExactOutput {
		fixed = out
	}
	amount, err := tokenregistry.ParseUnits(body.Amount, fixed.Decimals)
	if err != nil {
		return req, fmt.Errorf("amount: %w", err)
	}

	if !common.IsHexAddress(body.Recipient) {
		return req, fmt.Errorf("recipient %q is not an address", body.Recipient)
	}

	tolerance := h.defaults.Tolerance
	if body.Slippage != "" {
		if tolerance, err = planner.ParseTolerance(body.Slippage); err != nil {
			return req, err
		}
	}
	offset := h.defaults.DeadlineOffset
	if body.DeadlineSeconds != 0 {
		offset = time.Duration(body.DeadlineSeconds) * time.Second
	}

	return router.Request{
		TokenIn:        in,
		TokenOut:       out,
		Amount:         amount,
		TradeType:      tradeType,
		Recipient:      common.HexToAddress(body.Recipient),
		Tolerance:      tolerance,
		DeadlineOffset: offset,
	}, nil
}

// Route plans a swap.
// POST /api/v1/route
func (h *Handler) Route(c *gin.Context) {
	var body RouteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "invalid request: " + err.Error(),
		})
		return
	}

	req, err := h.toRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    http.StatusBadRequest,
			Message: "invalid request: " + err.Error(),
		})
		return
	}

	plan, err := h.router.Route(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("Route request failed", "err", err)
		}
		c.JSON(status, Response{
			Code:    status,
			Message: err.Error(),
			Data:    gin.H{"outcome": router.Outcome(err)},
		})
		return
	}

	resp := NewRouteResponse(plan, req.TokenIn, req.TokenOut)
	resp.QuoteID = uuid.NewString()
	h.logger.Debug("Route planned",
		"quote_id", resp.QuoteID,
		"request_id", c.GetString(requestIDKey),
		"block", plan.BlockNumber,
		"routes", len(plan.Instructions),
	)
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    resp,
	})
}

// GetPool returns the latest view of one pool.
// GET /api/v1/pools/:address
func (h *Handler) GetPool(c *gin.Context) {
	state, ok := h.requireState(c)
	if !ok {
		return
	}
	ref := c.Param("address")
	if !common.IsHexAddress(ref) {
		c.JSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: fmt.Sprintf("%q is not an address", ref)})
		return
	}
	address := common.HexToAddress(ref)
	block := state.Block.BlockNumber()

	if p, ok := state.UniswapV2.GetByAddress(address); ok {
		c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: PoolResponse{
			Address:     p.Address.Hex(),
			Kind:        poolmodel.KindConstantProduct.String(),
			Token0:      p.Token0.Hex(),
			Token1:      p.Token1.Hex(),
			Fee:         uint64(p.FeeBps) * 100,
			Reserve0:    p.Reserve0.String(),
			Reserve1:    p.Reserve1.String(),
			BlockNumber: block,
		}})
		return
	}
	if p, ok := state.UniswapV3.GetByAddress(address); ok {
		tick := p.Tick
		c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: PoolResponse{
			Address:      p.Address.Hex(),
			Kind:         poolmodel.KindConcentrated.String(),
			Token0:       p.Token0.Hex(),
			Token1:       p.Token1.Hex(),
			Fee:          p.Fee,
			Liquidity:    p.Liquidity.String(),
			SqrtPriceX96: p.SqrtPriceX96.String(),
			Tick:         &tick,
			BlockNumber:  block,
		}})
		return
	}
	c.JSON(http.StatusNotFound, Response{Code: http.StatusNotFound, Message: "pool not found: " + address.Hex()})
}

// GetTokenPools lists the pools trading a token.
// GET /api/v1/tokens/:token/pools
func (h *Handler) GetTokenPools(c *gin.Context) {
	state, ok := h.requireState(c)
	if !ok {
		return
	}
	token, found := h.resolveToken(c.Param("token"))
	if !found {
		c.JSON(http.StatusNotFound, Response{Code: http.StatusNotFound, Message: fmt.Sprintf("unknown token %q", c.Param("token"))})
		return
	}

	pools := state.TokenPools.PoolsForToken(token.Address)
	resp := TokenPoolsResponse{
		Token:       tokenDTO(token),
		Pools:       make([]string, 0, len(pools)),
		BlockNumber: state.Block.BlockNumber(),
	}
	for _, p := range pools {
		resp.Pools = append(resp.Pools, p.Hex())
	}
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: resp})
}

// Health reports whether a chain state has been received.
// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	if h.state == nil {
		c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "ok"})
		return
	}
	state := h.latest()
	if state == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Code: http.StatusServiceUnavailable, Message: "waiting for chain state"})
		return
	}
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "ok", Data: gin.H{"blockNumber": state.Block.BlockNumber()}})
}

func (h *Handler) requireState(c *gin.Context) (*ethereum.State, bool) {
	state := h.latest()
	if state == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Code: http.StatusServiceUnavailable, Message: "waiting for chain state"})
		return nil, false
	}
	return state, true
}

func statusFor(err error) int {
	switch router.Outcome(err) {
	case "invalid_request":
		return http.StatusBadRequest
	case "no_route", "no_viable_route":
		return http.StatusUnprocessableEntity
	case "stale_data", "data_unavailable":
		return http.StatusServiceUnavailable
	case "canceled":
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
