// Package planner turns a winning quote into a trade plan: slippage bounds,
// deadline, and SwapRouter02 multicall calldata. Planning has no side
// effects; broadcasting the plan is the caller's business.
package planner

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/quoter"
	"github.com/defistate/defistate-router-go/routing/route"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidDeadline          = errors.New("invalid deadline")
	ErrInvalidSlippageTolerance = errors.New("invalid slippage tolerance")
	ErrInvalidRecipient         = errors.New("invalid recipient")
	ErrEmptyQuote               = errors.New("quote has no routes")
	ErrUnsupportedRoute         = errors.New("route cannot be encoded")
)

// TradeType is the side of the trade held fixed.
type TradeType uint8

const (
	ExactInput TradeType = iota
	ExactOutput
)

func (t TradeType) String() string {
	switch t {
	case ExactInput:
		return "exactInput"
	case ExactOutput:
		return "exactOutput"
	}
	return fmt.Sprintf("tradeType(%d)", uint8(t))
}

// ParseTradeType accepts "exactInput"/"exactOutput", case-insensitive, and
// the short forms "in"/"out".
func ParseTradeType(s string) (TradeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exactinput", "exact_input", "in", "":
		return ExactInput, nil
	case "exactoutput", "exact_output", "out":
		return ExactOutput, nil
	}
	return 0, fmt.Errorf("unknown trade type %q", s)
}

// Segment is one router call covering consecutive hops of the same curve.
type Segment struct {
	Method   string
	Kind     poolmodel.Kind
	Tokens   []common.Address
	Calldata []byte
}

// Instruction executes one route of the allocation.
type Instruction struct {
	Route     route.Route
	AmountIn  *big.Int
	AmountOut *big.Int
	// Limit is the route's minimum output (exact input) or maximum input
	// (exact output).
	Limit    *big.Int
	Segments []Segment
}

// TradePlan is immutable once returned.
type TradePlan struct {
	TradeType TradeType
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	// MinimumOutput is set for exact-input plans, MaximumInput for
	// exact-output plans.
	MinimumOutput *big.Int
	MaximumInput  *big.Int
	Tolerance     Tolerance
	Recipient     common.Address
	Deadline      uint64
	Instructions  []Instruction

	// To, Calldata and Value form the transaction to broadcast.
	To       common.Address
	Calldata []byte
	Value    *big.Int

	GasEstimate    uint64
	PriceImpactBps int64
	BlockNumber    uint64
}

// Params is everything a plan is derived from.
type Params struct {
	Quote          quoter.Quote
	TradeType      TradeType
	Tolerance      Tolerance
	DeadlineOffset time.Duration
	Recipient      common.Address
	BlockNumber    uint64
}

type Planner struct {
	swapRouter common.Address
	now        func() time.Time
}

// New returns a planner targeting swapRouter. A nil clock means time.Now.
func New(swapRouter common.Address, now func() time.Time) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{swapRouter: swapRouter, now: now}
}

// ValidateParams checks the caller-supplied bounds without touching the quote.
func ValidateParams(tolerance Tolerance, deadlineOffset time.Duration, recipient common.Address) error {
	if err := tolerance.Validate(); err != nil {
		return err
	}
	if deadlineOffset < time.Second {
		return fmt.Errorf("%w: offset %s must be at least one second", ErrInvalidDeadline, deadlineOffset)
	}
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidRecipient)
	}
	return nil
}

func (p *Planner) Plan(params Params) (*TradePlan, error) {
	if err := ValidateParams(params.Tolerance, params.DeadlineOffset, params.Recipient); err != nil {
		return nil, err
	}
	q := params.Quote
	if len(q.Routes) == 0 {
		return nil, ErrEmptyQuote
	}

	first := q.Routes[0].Route
	plan := &TradePlan{
		TradeType:   params.TradeType,
		TokenIn:     first.TokenIn(),
		TokenOut:    first.TokenOut(),
		AmountIn:    new(big.Int).Set(q.AmountIn),
		AmountOut:   new(big.Int).Set(q.AmountOut),
		Tolerance:   params.Tolerance,
		Recipient:   params.Recipient,
		Deadline:    uint64(p.now().Add(params.DeadlineOffset).Unix()),
		To:          p.swapRouter,
		Value:       new(big.Int),
		GasEstimate: q.GasUnits,
		BlockNumber: params.BlockNumber,
	}

	switch params.TradeType {
	case ExactInput:
		plan.MinimumOutput = params.Tolerance.MinimumOutput(q.AmountOut)
	case ExactOutput:
		plan.MaximumInput = params.Tolerance.MaximumInput(q.AmountIn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRoute, params.TradeType)
	}

	calls := make([][]byte, 0, len(q.Routes))
	weightedImpact := new(big.Int)
	for _, rq := range q.Routes {
		var (
			ins Instruction
			err error
		)
		if params.TradeType == ExactInput {
			ins, err = encodeExactInput(rq, params.Tolerance.MinimumOutput(rq.AmountOut), params.Recipient)
		} else {
			ins, err = encodeExactOutput(rq, params.Tolerance.MaximumInput(rq.AmountIn), params.Recipient)
		}
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", rq.Route.Key(), err)
		}
		plan.Instructions = append(plan.Instructions, ins)
		for _, seg := range ins.Segments {
			calls = append(calls, seg.Calldata)
		}
		weightedImpact.Add(weightedImpact, new(big.Int).Mul(big.NewInt(rq.PriceImpactBps), rq.AmountIn))
	}
	if q.AmountIn.Sign() > 0 {
		plan.PriceImpactBps = weightedImpact.Quo(weightedImpact, q.AmountIn).Int64()
	}

	calldata, err := SwapRouterABI.Pack(MethodMulticall, new(big.Int).SetUint64(plan.Deadline), calls)
	if err != nil {
		return nil, fmt.Errorf("encoding multicall: %w", err)
	}
	plan.Calldata = calldata
	return plan, nil
}

// segments splits hop indices into maximal runs of one pool kind.
func segments(r route.Route) [][2]int {
	var runs [][2]int
	start := 0
	for i := 1; i <= r.Len(); i++ {
		if i == r.Len() || r.Hop(i).Pool.Kind() != r.Hop(start).Pool.Kind() {
			runs = append(runs, [2]int{start, i})
			start = i
		}
	}
	return runs
}

func segmentTokens(r route.Route, from, to int) ([]common.Address, []uint32) {
	tokens := []common.Address{r.Hop(from).TokenIn}
	fees := make([]uint32, 0, to-from)
	for i := from; i < to; i++ {
		tokens = append(tokens, r.Hop(i).TokenOut)
		fees = append(fees, r.Hop(i).Pool.FeePips())
	}
	return tokens, fees
}

func encodeExactInput(rq quoter.RouteQuote, minOut *big.Int, recipient common.Address) (Instruction, error) {
	r := rq.Route
	ins := Instruction{
		Route:     r,
		AmountIn:  new(big.Int).Set(rq.AmountIn),
		AmountOut: new(big.Int).Set(rq.AmountOut),
		Limit:     minOut,
	}

	runs := segments(r)
	for s, run := range runs {
		last := s == len(runs)-1

		amountIn := rq.AmountIn
		if s > 0 {
			amountIn = contractBalance
		}
		to, limit := addressThis, new(big.Int)
		if last {
			to, limit = recipient, minOut
		}

		tokens, fees := segmentTokens(r, run[0], run[1])
		kind := r.Hop(run[0]).Pool.Kind()
		seg := Segment{Kind: kind, Tokens: tokens}

		var err error
		switch kind {
		case poolmodel.KindConcentrated:
			seg.Method = MethodExactInput
			seg.Calldata, err = SwapRouterABI.Pack(MethodExactInput, ExactInputParams{
				Path:             encodeV3Path(tokens, fees),
				Recipient:        to,
				AmountIn:         amountIn,
				AmountOutMinimum: limit,
			})
		case poolmodel.KindConstantProduct:
			seg.Method = MethodSwapExactTokensForTokens
			seg.Calldata, err = SwapRouterABI.Pack(MethodSwapExactTokensForTokens, amountIn, limit, tokens, to)
		default:
			err = fmt.Errorf("%w: %s pool", ErrUnsupportedRoute, kind)
		}
		if err != nil {
			return Instruction{}, err
		}
		ins.Segments = append(ins.Segments, seg)
	}
	return ins, nil
}

func encodeExactOutput(rq quoter.RouteQuote, maxIn *big.Int, recipient common.Address) (Instruction, error) {
	r := rq.Route
	kind, uniform := r.UniformKind()
	if !uniform {
		return Instruction{}, fmt.Errorf("%w: exact output across mixed pool kinds", ErrUnsupportedRoute)
	}

	tokens, fees := segmentTokens(r, 0, r.Len())
	seg := Segment{Kind: kind, Tokens: tokens}

	var err error
	switch kind {
	case poolmodel.KindConcentrated:
		reversedTokens := make([]common.Address, len(tokens))
		for i, token := range tokens {
			reversedTokens[len(tokens)-1-i] = token
		}
		reversedFees := make([]uint32, len(fees))
		for i, fee := range fees {
			reversedFees[len(fees)-1-i] = fee
		}
		seg.Method = MethodExactOutput
		seg.Calldata, err = SwapRouterABI.Pack(MethodExactOutput, ExactOutputParams{
			Path:            encodeV3Path(reversedTokens, reversedFees),
			Recipient:       recipient,
			AmountOut:       rq.AmountOut,
			AmountInMaximum: maxIn,
		})
	case poolmodel.KindConstantProduct:
		seg.Method = MethodSwapTokensForExactTokens
		seg.Calldata, err = SwapRouterABI.Pack(MethodSwapTokensForExactTokens, rq.AmountOut, maxIn, tokens, recipient)
	default:
		err = fmt.Errorf("%w: %s pool", ErrUnsupportedRoute, kind)
	}
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		Route:     r,
		AmountIn:  new(big.Int).Set(rq.AmountIn),
		AmountOut: new(big.Int).Set(rq.AmountOut),
		Limit:     maxIn,
		Segments:  []Segment{seg},
	}, nil
}
