// Command route plans a single swap against the live defistate stream and
// prints the trade plan.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-router-go/api"
	"github.com/defistate/defistate-router-go/chains/ethereum"
	"github.com/defistate/defistate-router-go/config"
	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/router"
	"github.com/defistate/defistate-router-go/routing/planner"
	"github.com/ethereum/go-ethereum/common"
)

const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

type flags struct {
	configPath string
	envPath    string
	tokenIn    string
	tokenOut   string
	amount     string
	tradeType  string
	recipient  string
	slippage   string
	deadline   time.Duration
	wait       time.Duration
	asJSON     bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.yaml", "Path to the configuration file.")
	flag.StringVar(&f.envPath, "env", ".env", "Optional dotenv file with ROUTER_* overrides.")
	flag.StringVar(&f.tokenIn, "in", "", "Input token symbol or address.")
	flag.StringVar(&f.tokenOut, "out", "", "Output token symbol or address.")
	flag.StringVar(&f.amount, "amount", "", "Decimal amount of the fixed side, e.g. 1.5.")
	flag.StringVar(&f.tradeType, "type", "exactInput", "exactInput or exactOutput.")
	flag.StringVar(&f.recipient, "recipient", "", "Address receiving the output.")
	flag.StringVar(&f.slippage, "slippage", "", "Slippage tolerance, n/d or a percentage. Defaults to the config.")
	flag.DurationVar(&f.deadline, "deadline", 0, "Deadline offset. Defaults to the config.")
	flag.DurationVar(&f.wait, "wait", 30*time.Second, "How long to wait for the first chain state.")
	flag.BoolVar(&f.asJSON, "json", false, "Print the plan as JSON.")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()
	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, Red+"error: "+err.Error()+Reset)
		os.Exit(1)
	}
}

func run(f flags) error {
	if f.tokenIn == "" || f.tokenOut == "" || f.amount == "" || f.recipient == "" {
		flag.Usage()
		return errors.New("-in, -out, -amount and -recipient are required")
	}

	if _, err := config.LoadEnvFile(f.envPath); err != nil {
		return err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	level, _ := cfg.LogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routerCfg, err := cfg.RouterConfig()
	if err != nil {
		return err
	}

	stream, err := ethereum.Dial(ctx, cfg.StreamURL, logger.With("component", "state-client"), nil)
	if err != nil {
		return err
	}

	gas, closeGas, err := gasSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGas()

	r, err := router.New(routerCfg, stream, gas, logger.With("component", "router"), nil)
	if err != nil {
		return err
	}

	// the first state can take a while; routing itself runs under the
	// snapshot timeout
	waitCtx, cancel := context.WithTimeout(ctx, f.wait)
	_, err = stream.FetchPools(waitCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("waiting for chain state: %w", err)
	}

	req, err := buildRequest(f, cfg, stream)
	if err != nil {
		return err
	}

	plan, err := r.Route(ctx, req)
	if err != nil {
		return err
	}

	if f.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewRouteResponse(plan, req.TokenIn, req.TokenOut))
	}
	printPlan(plan, req)
	return nil
}

func gasSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (router.GasPriceSource, func(), error) {
	wei, fixed, err := cfg.FixedGasPrice()
	if err != nil {
		return nil, nil, err
	}
	if fixed {
		return ethereum.FixedGasPrice{Wei: wei}, func() {}, nil
	}
	oracle, closeFn, err := ethereum.DialGasOracle(ctx, cfg.NodeURL, cfg.Gas.PriceTTL, logger.With("component", "gas-oracle"))
	if err != nil {
		return nil, nil, err
	}
	return oracle, closeFn, nil
}

func buildRequest(f flags, cfg config.Config, stream *ethereum.Client) (router.Request, error) {
	index, err := cfg.TokenIndex()
	if err != nil {
		return router.Request{}, err
	}
	resolve := func(ref string) (tokenregistry.Token, error) {
		if t, ok := index.Resolve(ref); ok {
			return t, nil
		}
		if s := stream.Latest(); s != nil && s.Tokens != nil {
			if t, ok := s.Tokens.Resolve(ref); ok {
				return t, nil
			}
		}
		return tokenregistry.Token{}, fmt.Errorf("unknown token %q", ref)
	}

	in, err := resolve(f.tokenIn)
	if err != nil {
		return router.Request{}, err
	}
	out, err := resolve(f.tokenOut)
	if err != nil {
		return router.Request{}, err
	}
	tradeType, err := planner.ParseTradeType(f.tradeType)
	if err != nil {
		return router.Request{}, err
	}

	fixed := in
	if tradeType == planner.ExactOutput {
		fixed = out
	}
	amount, err := tokenregistry.ParseAmount(fixed, f.amount)
	if err != nil {
		return router.Request{}, err
	}

	tolerance, deadline, err := cfg.TradeDefaults()
	if err != nil {
		return router.Request{}, err
	}
	if f.slippage != "" {
		if tolerance, err = planner.ParseTolerance(f.slippage); err != nil {
			return router.Request{}, err
		}
	}
	if f.deadline != 0 {
		deadline = f.deadline
	}

	recipient, err := parseAddress(f.recipient)
	if err != nil {
		return router.Request{}, err
	}

	return router.Request{
		TokenIn:        in,
		TokenOut:       out,
		Amount:         amount.Raw,
		TradeType:      tradeType,
		Recipient:      recipient,
		Tolerance:      tolerance,
		DeadlineOffset: deadline,
	}, nil
}

func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

func printPlan(plan *planner.TradePlan, req router.Request) {
	in, out := req.TokenIn, req.TokenOut

	header("TRADE PLAN")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Type\t%s\n", plan.TradeType)
	fmt.Fprintf(w, "Block\t#%d\n", plan.BlockNumber)
	fmt.Fprintf(w, "Amount In\t%s %s\n", tokenregistry.FormatUnits(plan.AmountIn, in.Decimals), in.Symbol)
	fmt.Fprintf(w, "Amount Out\t%s %s\n", tokenregistry.FormatUnits(plan.AmountOut, out.Decimals), out.Symbol)
	if plan.MinimumOutput != nil {
		fmt.Fprintf(w, "Minimum Out\t%s %s\n", tokenregistry.FormatUnits(plan.MinimumOutput, out.Decimals), out.Symbol)
	}
	if plan.MaximumInput != nil {
		fmt.Fprintf(w, "Maximum In\t%s %s\n", tokenregistry.FormatUnits(plan.MaximumInput, in.Decimals), in.Symbol)
	}
	fmt.Fprintf(w, "Slippage\t%s\n", plan.Tolerance)
	fmt.Fprintf(w, "Price Impact\t%d bps\n", plan.PriceImpactBps)
	fmt.Fprintf(w, "Gas\t%d units\n", plan.GasEstimate)
	fmt.Fprintf(w, "Deadline\t%s\n", time.Unix(int64(plan.Deadline), 0).UTC().Format(time.RFC3339))
	w.Flush()

	header("ROUTES")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSHARE\tPATH\tAMOUNT IN\tAMOUNT OUT\tMETHODS")
	for i, ins := range plan.Instructions {
		methods := make([]string, 0, len(ins.Segments))
		for _, seg := range ins.Segments {
			methods = append(methods, seg.Method)
		}
		fmt.Fprintf(w, "%d\t%s%%\t%s\t%s\t%s\t%s\n",
			i+1,
			share(ins.AmountIn, plan.AmountIn, ins.AmountOut, plan.AmountOut, plan.TradeType),
			ins.Route,
			tokenregistry.FormatUnits(ins.AmountIn, in.Decimals),
			tokenregistry.FormatUnits(ins.AmountOut, out.Decimals),
			strings.Join(methods, ", "),
		)
	}
	w.Flush()

	header("TRANSACTION")
	fmt.Printf("%sTo%s     %s\n", Gray, Reset, plan.To.Hex())
	fmt.Printf("%sValue%s  %s\n", Gray, Reset, plan.Value)
	fmt.Printf("%sData%s   %s0x%x%s\n", Gray, Reset, Yellow, plan.Calldata, Reset)
	fmt.Println(Green + "\nPlan ready. Nothing was broadcast." + Reset)
}

// share is the percentage of the fixed side a route carries.
func share(in, totalIn, out, totalOut *big.Int, tradeType planner.TradeType) string {
	part, total := in, totalIn
	if tradeType == planner.ExactOutput {
		part, total = out, totalOut
	}
	if total.Sign() == 0 {
		return "0"
	}
	pct := new(big.Int).Mul(part, big.NewInt(100))
	return pct.Quo(pct, total).String()
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not an address", s)
	}
	return common.HexToAddress(s), nil
}
