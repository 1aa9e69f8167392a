// Command paild is an object-storage server with an LRU metadata cache.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/bucketlabs/pail/server"
	"github.com/bucketlabs/pail/telemetry"
)

var version = "dev"

var cli struct {
	Address      string   `help:"Address to listen on." default:":8080"`
	DataDir      string   `help:"Root directory for object bytes and metadata." default:"./data"`
	CacheSize    int      `help:"Maximum number of object metadata records held in memory. 0 disables caching." default:"1024"`
	APIKey       []string `help:"Accepted X-API-Key values. Repeatable. No keys disables authentication." env:"PAILD_API_KEY"`
	LogLevel     string   `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`
	LogFormat    string   `help:"Log format (text, json)." default:"text" enum:"text,json"`
	OTLPEndpoint string   `help:"OTLP gRPC endpoint for metrics export. Empty disables export." env:"PAILD_OTLP_ENDPOINT"`
	Prometheus   bool     `help:"Expose Prometheus metrics on /metrics."`
	Version      kong.VersionFlag
}

func main() {
	kong.Parse(&cli,
		kong.Name("paild"),
		kong.Description("Object-storage server with an LRU metadata cache."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := newLogger(cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "paild",
		ServiceVersion:   version,
		OTLPEndpoint:     cli.OTLPEndpoint,
		EnablePrometheus: cli.Prometheus,
	})
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	srv, err := server.New(server.Config{
		Address:   cli.Address,
		DataPath:  cli.DataDir,
		CacheSize: cli.CacheSize,
		APIKeys:   cli.APIKey,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: lvl})
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}
