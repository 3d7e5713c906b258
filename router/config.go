package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/routing/optimizer"
	"github.com/defistate/defistate-router-go/routing/pathfinder"
	"github.com/defistate/defistate-router-go/routing/planner"
	"github.com/defistate/defistate-router-go/routing/quoter"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultSnapshotTimeout  = 2 * time.Second
	DefaultQuoteConcurrency = 8
)

// Config is fixed for the lifetime of a Router.
type Config struct {
	ChainID uint64
	// WrappedNative prices gas: gas costs are converted into the trade's
	// token by quoting one unit of it.
	WrappedNative tokenregistry.Token
	// BaseTokens may be used as intermediates past the first hop.
	BaseTokens []common.Address

	MaxHops          int
	MaxCandidates    int
	Split            optimizer.Config
	Gas              quoter.GasTable
	SnapshotTimeout  time.Duration
	SwapRouter       common.Address
	QuoteConcurrency int

	// Clock stamps deadlines. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns an Ethereum mainnet configuration.
func DefaultConfig() Config {
	return Config{
		ChainID: 1,
		WrappedNative: tokenregistry.Token{
			ChainID:  1,
			Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			Name:     "Wrapped Ether",
			Symbol:   "WETH",
			Decimals: 18,
		},
		BaseTokens: []common.Address{
			common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), // WETH
			common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), // USDC
			common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), // USDT
			common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), // DAI
		},
		MaxHops:          pathfinder.DefaultMaxHops,
		MaxCandidates:    pathfinder.DefaultMaxCandidates,
		Split:            optimizer.DefaultConfig(),
		Gas:              quoter.DefaultGasTable(),
		SnapshotTimeout:  DefaultSnapshotTimeout,
		SwapRouter:       planner.DefaultSwapRouter,
		QuoteConcurrency: DefaultQuoteConcurrency,
		Clock:            time.Now,
	}
}

func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return errors.New("config: ChainID is required")
	}
	if c.WrappedNative.Address == (common.Address{}) {
		return errors.New("config: WrappedNative address is required")
	}
	if c.WrappedNative.ChainID != c.ChainID {
		return fmt.Errorf("config: WrappedNative is on chain %d, router on chain %d", c.WrappedNative.ChainID, c.ChainID)
	}
	if c.SnapshotTimeout <= 0 {
		return errors.New("config: SnapshotTimeout must be positive")
	}
	if c.SwapRouter == (common.Address{}) {
		return errors.New("config: SwapRouter is required")
	}
	if c.QuoteConcurrency < 1 {
		return errors.New("config: QuoteConcurrency must be at least 1")
	}
	if c.Clock == nil {
		return errors.New("config: Clock is required")
	}
	if err := c.pathOptions().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Split.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Gas.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) pathOptions() pathfinder.Options {
	return pathfinder.Options{
		MaxHops:       c.MaxHops,
		MaxCandidates: c.MaxCandidates,
	}
}
