package api

import (
	"math/big"

	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/routing/planner"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Response is the envelope of every API reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RouteRequest asks for a trade plan. Tokens are symbols or addresses;
// Amount is a decimal string in units of the fixed side's token.
type RouteRequest struct {
	TokenIn   string `json:"tokenIn" binding:"required"`
	TokenOut  string `json:"tokenOut" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	TradeType string `json:"tradeType,omitempty"`
	Recipient string `json:"recipient" binding:"required"`
	// Slippage is "n/d" or a percentage such as "0.5%".
	Slippage        string `json:"slippage,omitempty"`
	DeadlineSeconds int64  `json:"deadlineSeconds,omitempty"`
}

type TokenDTO struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type AmountDTO struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

type RouteDTO struct {
	Tokens    []string `json:"tokens"`
	Pools     []string `json:"pools"`
	AmountIn  string   `json:"amountIn"`
	AmountOut string   `json:"amountOut"`
	Limit     string   `json:"limit"`
	Methods   []string `json:"methods"`
}

type TransactionDTO struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type RouteResponse struct {
	QuoteID        string         `json:"quoteId"`
	TradeType      string         `json:"tradeType"`
	TokenIn        TokenDTO       `json:"tokenIn"`
	TokenOut       TokenDTO       `json:"tokenOut"`
	AmountIn       AmountDTO      `json:"amountIn"`
	AmountOut      AmountDTO      `json:"amountOut"`
	MinimumOutput  *AmountDTO     `json:"minimumOutput,omitempty"`
	MaximumInput   *AmountDTO     `json:"maximumInput,omitempty"`
	Slippage       string         `json:"slippage"`
	PriceImpactBps int64          `json:"priceImpactBps"`
	GasEstimate    uint64         `json:"gasEstimate"`
	BlockNumber    uint64         `json:"blockNumber"`
	Deadline       uint64         `json:"deadline"`
	Routes         []RouteDTO     `json:"routes"`
	Transaction    TransactionDTO `json:"transaction"`
}

type PoolResponse struct {
	Address      string `json:"address"`
	Kind         string `json:"kind"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Fee          uint64 `json:"fee"`
	Reserve0     string `json:"reserve0,omitempty"`
	Reserve1     string `json:"reserve1,omitempty"`
	Liquidity    string `json:"liquidity,omitempty"`
	SqrtPriceX96 string `json:"sqrtPriceX96,omitempty"`
	Tick         *int64 `json:"tick,omitempty"`
	BlockNumber  uint64 `json:"blockNumber"`
}

type TokenPoolsResponse struct {
	Token       TokenDTO `json:"token"`
	Pools       []string `json:"pools"`
	BlockNumber uint64   `json:"blockNumber"`
}

func tokenDTO(t tokenregistry.Token) TokenDTO {
	return TokenDTO{Address: t.Address.Hex(), Symbol: t.Symbol, Decimals: t.Decimals}
}

func amountDTO(raw *big.Int, decimals uint8) AmountDTO {
	return AmountDTO{Raw: raw.String(), Formatted: tokenregistry.FormatUnits(raw, decimals)}
}

// NewRouteResponse renders a plan for clients. in and out are the request tokens.
func NewRouteResponse(plan *planner.TradePlan, in, out tokenregistry.Token) RouteResponse {
	resp := RouteResponse{
		TradeType:      plan.TradeType.String(),
		TokenIn:        tokenDTO(in),
		TokenOut:       tokenDTO(out),
		AmountIn:       amountDTO(plan.AmountIn, in.Decimals),
		AmountOut:      amountDTO(plan.AmountOut, out.Decimals),
		Slippage:       plan.Tolerance.String(),
		PriceImpactBps: plan.PriceImpactBps,
		GasEstimate:    plan.GasEstimate,
		BlockNumber:    plan.BlockNumber,
		Deadline:       plan.Deadline,
		Routes:         make([]RouteDTO, 0, len(plan.Instructions)),
		Transaction: TransactionDTO{
			To:    plan.To.Hex(),
			Data:  hexutil.Encode(plan.Calldata),
			Value: plan.Value.String(),
		},
	}
	if plan.MinimumOutput != nil {
		a := amountDTO(plan.MinimumOutput, out.Decimals)
		resp.MinimumOutput = &a
	}
	if plan.MaximumInput != nil {
		a := amountDTO(plan.MaximumInput, in.Decimals)
		resp.MaximumInput = &a
	}

	for _, ins := range plan.Instructions {
		dto := RouteDTO{
			AmountIn:  ins.AmountIn.String(),
			AmountOut: ins.AmountOut.String(),
			Limit:     ins.Limit.String(),
		}
		for _, tok := range ins.Route.Tokens() {
			dto.Tokens = append(dto.Tokens, tok.Hex())
		}
		for _, pool := range ins.Route.Pools() {
			dto.Pools = append(dto.Pools, pool.Hex())
		}
		for _, seg := range ins.Segments {
			dto.Methods = append(dto.Methods, seg.Method)
		}
		resp.Routes = append(resp.Routes, dto)
	}
	return resp
}
