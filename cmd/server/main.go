package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/arena/internal/arena/config"
	"github.com/zeusync/arena/internal/arena/snapshot"
	"github.com/zeusync/arena/internal/core/observability/log"
	"github.com/zeusync/arena/internal/injector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "arena:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "arena.yaml", "path to the YAML config; a missing file means defaults")
	addr := flag.String("addr", "", "listen address, overrides config and environment")
	restore := flag.String("restore", "", "exported bundle to restore before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		cfg = config.Default()
	}
	cfg.ApplyEnv(os.Getenv)
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = app.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *restore != "" {
		if err := restoreBundle(ctx, app, *restore); err != nil {
			return fmt.Errorf("restore %s: %w", *restore, err)
		}
		app.Logger.Info("Match restored", log.String("path", *restore))
	}

	if err := app.Server.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		app.Logger.Info("Shutting down")
	case err = <-app.Server.Err():
	}

	if stopErr := app.Server.Stop(context.Background()); stopErr != nil {
		app.Logger.Warn("Shutdown incomplete", log.Error(stopErr))
	}
	return err
}

func restoreBundle(ctx context.Context, app *injector.App, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := snapshot.ReadBundle(f)
	if err != nil {
		return err
	}
	return app.Match.Restore(ctx, b.Snapshot, b.Sources)
}
