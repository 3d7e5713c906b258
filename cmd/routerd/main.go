// Command routerd serves the swap router over HTTP, fed by the defistate
// state stream.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-router-go/api"
	"github.com/defistate/defistate-router-go/chains/ethereum"
	"github.com/defistate/defistate-router-go/config"
	"github.com/defistate/defistate-router-go/router"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	envPath := flag.String("env", ".env", "Optional dotenv file with ROUTER_* overrides.")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	closeApp := func() {
		os.Exit(1)
	}

	if loaded, err := config.LoadEnvFile(*envPath); err != nil {
		bootLogger.Error("Failed to load env file", "path", *envPath, "error", err)
		closeApp()
	} else if loaded {
		bootLogger.Info("Loaded env file", "path", *envPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("Failed to load configuration", "path", *configPath, "error", err)
		closeApp()
	}
	level, _ := cfg.LogLevel()
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	routerCfg, err := cfg.RouterConfig()
	if err != nil {
		rootLogger.Error("Invalid router configuration", "error", err)
		closeApp()
	}

	stream, err := ethereum.Dial(
		ctx,
		cfg.StreamURL,
		rootLogger.With("component", "state-client"),
		registry,
		ethereum.WithMaxStateAge(cfg.Routing.MaxStateAge),
	)
	if err != nil {
		rootLogger.Error("Failed to start state client", "chain_id", cfg.ChainID, "error", err)
		closeApp()
	}

	var gas router.GasPriceSource
	if wei, fixed, _ := cfg.FixedGasPrice(); fixed {
		gas = ethereum.FixedGasPrice{Wei: wei}
		rootLogger.Info("Using fixed gas price", "wei", wei.String())
	} else {
		oracle, closeOracle, err := ethereum.DialGasOracle(ctx, cfg.NodeURL, cfg.Gas.PriceTTL, rootLogger.With("component", "gas-oracle"))
		if err != nil {
			rootLogger.Error("Failed to dial node", "error", err)
			closeApp()
		}
		defer closeOracle()
		gas = oracle
	}

	r, err := router.New(routerCfg, stream, gas, rootLogger.With("component", "router"), registry)
	if err != nil {
		rootLogger.Error("Failed to create router", "error", err)
		closeApp()
	}

	tokens, err := cfg.TokenIndex()
	if err != nil {
		rootLogger.Error("Invalid token list", "error", err)
		closeApp()
	}
	tolerance, deadline, _ := cfg.TradeDefaults()

	gin.SetMode(cfg.Server.Mode)
	engine := api.NewEngine(rootLogger.With("component", "api"))
	api.SetupRoutes(engine, api.NewHandler(r, tokens, stream, api.Defaults{
		Tolerance:      tolerance,
		DeadlineOffset: deadline,
	}, rootLogger.With("component", "api")))
	feed := api.NewBlockFeed(stream, rootLogger.With("component", "block-feed"))
	go feed.Run(ctx)
	api.SetupFeed(engine, feed)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		rootLogger.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		rootLogger.Info("Shutting down")
	case err := <-stream.Err():
		rootLogger.Error("Fatal state client error", "error", err)
	case err := <-serverErr:
		rootLogger.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rootLogger.Error("HTTP server shutdown", "error", err)
	}
}
