// Package config loads the YAML configuration shared by the router binaries.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	tokenregistryindexer "github.com/defistate/defistate-router-go/protocols/tokenregistry/indexer"
	"github.com/defistate/defistate-router-go/router"
	"github.com/defistate/defistate-router-go/routing/optimizer"
	"github.com/defistate/defistate-router-go/routing/planner"
	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/quoter"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override the file.
const EnvPrefix = "ROUTER_"

type TokenConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

type Config struct {
	ChainID uint64 `yaml:"chain_id"`
	// StreamURL is the defistate state stream endpoint.
	StreamURL string `yaml:"stream_url"`
	// NodeURL is an execution node RPC endpoint used for gas prices.
	NodeURL string        `yaml:"node_url"`
	Tokens  []TokenConfig `yaml:"tokens"`

	Routing struct {
		// WrappedNative and BaseTokens are symbols or addresses from Tokens.
		WrappedNative    string        `yaml:"wrapped_native"`
		BaseTokens       []string      `yaml:"base_tokens"`
		MaxHops          int           `yaml:"max_hops"`
		MaxCandidates    int           `yaml:"max_candidates"`
		MaxSplitRoutes   int           `yaml:"max_split_routes"`
		SplitStepPercent int           `yaml:"split_step_percent"`
		QuoteConcurrency int           `yaml:"quote_concurrency"`
		SnapshotTimeout  time.Duration `yaml:"snapshot_timeout"`
		MaxStateAge      time.Duration `yaml:"max_state_age"`
		SwapRouter       string        `yaml:"swap_router"`
	} `yaml:"routing"`

	Gas struct {
		PriceTTL time.Duration `yaml:"price_ttl"`
		// FixedPriceWei skips the node when set.
		FixedPriceWei      string `yaml:"fixed_price_wei"`
		RouteOverhead      uint64 `yaml:"route_overhead"`
		ConstantProductHop uint64 `yaml:"constant_product_hop"`
		ConcentratedHop    uint64 `yaml:"concentrated_hop"`
	} `yaml:"gas"`

	Trade struct {
		Slippage string        `yaml:"slippage"`
		Deadline time.Duration `yaml:"deadline"`
	} `yaml:"trade"`

	Server struct {
		Addr         string        `yaml:"addr"`
		Mode         string        `yaml:"mode"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default returns an Ethereum mainnet configuration without endpoints.
func Default() Config {
	var c Config
	rc := router.DefaultConfig()

	c.ChainID = rc.ChainID
	c.Tokens = []TokenConfig{
		{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
		{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		{Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Symbol: "USDT", Name: "Tether USD", Decimals: 6},
		{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
		{Address: "0x2260FAC5E5542a773Aa44fBCfeDd7C193bc2C599", Symbol: "WBTC", Name: "Wrapped BTC", Decimals: 8},
		{Address: "0x5f98805A4E8be255a32880FDeC7F6728C6568bA0", Symbol: "LUSD", Name: "LUSD Stablecoin", Decimals: 18},
	}

	c.Routing.WrappedNative = "WETH"
	c.Routing.BaseTokens = []string{"WETH", "USDC", "USDT", "DAI"}
	c.Routing.MaxHops = rc.MaxHops
	c.Routing.MaxCandidates = rc.MaxCandidates
	c.Routing.MaxSplitRoutes = rc.Split.MaxSplitRoutes
	c.Routing.SplitStepPercent = rc.Split.StepPercent
	c.Routing.QuoteConcurrency = rc.QuoteConcurrency
	c.Routing.SnapshotTimeout = rc.SnapshotTimeout
	c.Routing.MaxStateAge = time.Minute
	c.Routing.SwapRouter = rc.SwapRouter.Hex()

	c.Gas.PriceTTL = 12 * time.Second
	c.Gas.RouteOverhead = rc.Gas.RouteOverhead
	c.Gas.ConstantProductHop = rc.Gas.PerHop[poolmodel.KindConstantProduct]
	c.Gas.ConcentratedHop = rc.Gas.PerHop[poolmodel.KindConcentrated]

	c.Trade.Slippage = "0.5%"
	c.Trade.Deadline = 20 * time.Minute

	c.Server.Addr = ":8080"
	c.Server.Mode = "release"
	c.Server.ReadTimeout = 5 * time.Second
	c.Server.WriteTimeout = 10 * time.Second

	c.Logging.Level = "info"
	return c
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads the defaults only.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&c)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadEnvFile exports the variables of a dotenv file so they take part in
// the environment overrides of Load. Variables already set in the process
// environment win. A missing file is not an error; loaded reports whether
// one was read.
func LoadEnvFile(path string) (loaded bool, err error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load env file %s: %w", path, err)
	}
	return true, nil
}

func decode(data []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(c *Config) {
	if v := os.Getenv(EnvPrefix + "STREAM_URL"); v != "" {
		c.StreamURL = v
	}
	if v := os.Getenv(EnvPrefix + "NODE_URL"); v != "" {
		c.NodeURL = v
	}
	if v := os.Getenv(EnvPrefix + "HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "GAS_PRICE_WEI"); v != "" {
		c.Gas.FixedPriceWei = v
	}
}

func (c *Config) Validate() error {
	if c.StreamURL == "" {
		return errors.New("config: stream_url is required")
	}
	if c.NodeURL == "" && c.Gas.FixedPriceWei == "" {
		return errors.New("config: node_url is required unless gas.fixed_price_wei is set")
	}
	if _, _, err := c.FixedGasPrice(); err != nil {
		return err
	}
	if _, err := c.RouterConfig(); err != nil {
		return err
	}
	if _, _, err := c.TradeDefaults(); err != nil {
		return err
	}
	if c.Routing.MaxStateAge < 0 {
		return errors.New("config: routing.max_state_age must not be negative")
	}
	if c.Gas.PriceTTL < 0 {
		return errors.New("config: gas.price_ttl must not be negative")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// TokenList returns the configured tokens on the configured chain.
func (c *Config) TokenList() ([]tokenregistry.Token, error) {
	tokens := make([]tokenregistry.Token, 0, len(c.Tokens))
	seen := make(map[common.Address]struct{}, len(c.Tokens))
	for i, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("config: tokens[%d]: %q is not an address", i, t.Address)
		}
		address := common.HexToAddress(t.Address)
		if _, dup := seen[address]; dup {
			return nil, fmt.Errorf("config: tokens[%d]: %s listed twice", i, address.Hex())
		}
		seen[address] = struct{}{}
		tokens = append(tokens, tokenregistry.Token{
			ChainID:  c.ChainID,
			Address:  address,
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	return tokens, nil
}

// TokenIndex indexes the token list for lookups by symbol or address.
func (c *Config) TokenIndex() (tokenregistryindexer.IndexedTokenSystem, error) {
	tokens, err := c.TokenList()
	if err != nil {
		return nil, err
	}
	return tokenregistryindexer.New().Index(tokens), nil
}

// RouterConfig builds the router configuration. The clock is time.Now.
func (c *Config) RouterConfig() (router.Config, error) {
	index, err := c.TokenIndex()
	if err != nil {
		return router.Config{}, err
	}

	rc := router.DefaultConfig()
	rc.ChainID = c.ChainID

	native, ok := index.Resolve(c.Routing.WrappedNative)
	if !ok {
		return router.Config{}, fmt.Errorf("config: wrapped native %q is not in the token list", c.Routing.WrappedNative)
	}
	rc.WrappedNative = native

	rc.BaseTokens = make([]common.Address, 0, len(c.Routing.BaseTokens))
	for _, ref := range c.Routing.BaseTokens {
		t, ok := index.Resolve(ref)
		if !ok {
			return router.Config{}, fmt.Errorf("config: base token %q is not in the token list", ref)
		}
		rc.BaseTokens = append(rc.BaseTokens, t.Address)
	}

	rc.MaxHops = c.Routing.MaxHops
	rc.MaxCandidates = c.Routing.MaxCandidates
	rc.Split = optimizer.Config{
		MaxSplitRoutes: c.Routing.MaxSplitRoutes,
		StepPercent:    c.Routing.SplitStepPercent,
	}
	rc.QuoteConcurrency = c.Routing.QuoteConcurrency
	rc.SnapshotTimeout = c.Routing.SnapshotTimeout
	rc.Gas = quoter.GasTable{
		RouteOverhead: c.Gas.RouteOverhead,
		PerHop: map[poolmodel.Kind]uint64{
			poolmodel.KindConstantProduct: c.Gas.ConstantProductHop,
			poolmodel.KindConcentrated:    c.Gas.ConcentratedHop,
		},
	}

	if !common.IsHexAddress(c.Routing.SwapRouter) {
		return router.Config{}, fmt.Errorf("config: swap_router %q is not an address", c.Routing.SwapRouter)
	}
	rc.SwapRouter = common.HexToAddress(c.Routing.SwapRouter)

	if err := rc.Validate(); err != nil {
		return router.Config{}, err
	}
	return rc, nil
}

// TradeDefaults returns the slippage tolerance and deadline offset applied
// when a request leaves them out.
func (c *Config) TradeDefaults() (planner.Tolerance, time.Duration, error) {
	tol, err := planner.ParseTolerance(c.Trade.Slippage)
	if err != nil {
		return planner.Tolerance{}, 0, fmt.Errorf("config: trade.slippage: %w", err)
	}
	if c.Trade.Deadline < time.Second {
		return planner.Tolerance{}, 0, fmt.Errorf("config: trade.deadline %s is shorter than a second", c.Trade.Deadline)
	}
	return tol, c.Trade.Deadline, nil
}

// FixedGasPrice reports the configured fixed gas price, if any.
func (c *Config) FixedGasPrice() (*big.Int, bool, error) {
	if c.Gas.FixedPriceWei == "" {
		return nil, false, nil
	}
	wei, ok := new(big.Int).SetString(strings.TrimSpace(c.Gas.FixedPriceWei), 10)
	if !ok || wei.Sign() < 0 {
		return nil, false, fmt.Errorf("config: gas.fixed_price_wei %q is not a non-negative integer", c.Gas.FixedPriceWei)
	}
	return wei, true, nil
}

// LogLevel parses logging.level: debug, info, warn or error.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("config: logging.level: %w", err)
	}
	return level, nil
}
