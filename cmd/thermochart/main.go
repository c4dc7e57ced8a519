package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"thermochart/internal/app"
	"thermochart/internal/config"
	"thermochart/internal/logging"
)

const appName = "thermochart"

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if args.Interval != 0 {
		if args.Interval < 0 {
			fmt.Fprintf(os.Stderr, "config error: --interval must be positive, got %v\n", args.Interval)
			os.Exit(1)
		}
		cfg.ScheduleInterval = args.Interval
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, cfg, app.Options{
		Schedule:      args.Schedule,
		DelayFirstRun: args.DelayFirstRun,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		stop()
		os.Exit(1)
	}

	slog.Info("shutting down")
}
