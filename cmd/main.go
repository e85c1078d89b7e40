package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akalantzis/revproxy/config"
	"github.com/akalantzis/revproxy/internal/forwarder"
	"github.com/akalantzis/revproxy/internal/metrics"
	"github.com/akalantzis/revproxy/internal/pool"
	"github.com/akalantzis/revproxy/internal/proxy"
	"github.com/akalantzis/revproxy/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backends, err := pool.New(cfg.Backends)
	if err != nil {
		log.Error("Failed to initialize backend pool", slog.Any("err", err))
		os.Exit(1)
	}

	strat := createStrategy(log, cfg.Strategy.Type)

	dialTimeout, err := cfg.DialTimeout()
	if err != nil {
		log.Error("Invalid dial timeout", slog.Any("err", err))
		os.Exit(1)
	}

	readTimeout, err := cfg.ReadTimeout()
	if err != nil {
		log.Error("Invalid read timeout", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(1024, log)
	collector.Start(ctx)

	fwd := forwarder.New(log, dialTimeout, readTimeout, cfg.Proxy.MaxHeaderBytes)

	srv, err := proxy.New(cfg.Server.Address, log, backends, strat, fwd, collector, cfg.Proxy.MaxHeaderBytes)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.ListenAndServe()
	}()

	log.Info("Proxy listening",
		slog.String("address", cfg.Server.Address),
		slog.String("strategy", cfg.Strategy.Type),
		slog.Any("backends", cfg.Backends))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}

		snap := collector.Snapshot(cfg.Strategy.Type)
		log.Info("Final traffic summary",
			slog.Int64("total_requests", snap.TotalRequests),
			slog.Int64("rejected", snap.Rejected),
			slog.Int64("bytes_to_client", snap.BytesToClient))

	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error running proxy", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func createStrategy(logger *slog.Logger, strategyType string) pool.Strategy {
	switch strategyType {
	case "round-robin":
		return pool.NewRoundRobinStrategy()
	case "random":
		return pool.NewRandomStrategy()
	default:
		logger.Warn("Unknown strategy, defaulting to round-robin", slog.String("requested", strategyType))
		return pool.NewRoundRobinStrategy()
	}
}
