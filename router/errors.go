package router

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/routing/planner"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrStaleDataTimeout means the snapshot or gas price did not arrive in
	// time. Callers may retry.
	ErrStaleDataTimeout = errors.New("stale data: snapshot acquisition timed out")
	ErrDataUnavailable  = errors.New("data source unavailable")
	ErrInvalidRequest   = errors.New("invalid request")
)

// Params echoes the request that failed.
type Params struct {
	TokenIn   common.Address
	TokenOut  common.Address
	Amount    *big.Int
	TradeType planner.TradeType
	Recipient common.Address
}

func (p Params) String() string {
	return fmt.Sprintf("%s %s %s -> %s", p.TradeType, p.Amount, p.TokenIn.Hex(), p.TokenOut.Hex())
}

// Error is returned for every failed Route call. The wrapped error carries
// the kind, so callers test it with errors.Is.
type Error struct {
	Op     string
	Err    error
	Params Params
}

func (e *Error) Error() string {
	return fmt.Sprintf("router: %s (%s): %v", e.Op, e.Params, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
