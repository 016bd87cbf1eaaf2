package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccpd/signboard/internal/config"
	"github.com/ccpd/signboard/internal/lock"
	"github.com/ccpd/signboard/internal/log"
)

func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.Discover(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("signboard starting", "version", version, "config", path, "backend", cfg.Remote.Backend)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, cfg, log.Get())
	if err != nil {
		logger.Error("failed to initialize service", "error", err)
		return 1
	}
	defer svc.Close()

	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		svc.snapshotter.Run(ctx)
	}()

	logger.Info("signboard running (press Ctrl+C to stop)", "listen", cfg.API.Listen, "public_url", cfg.Service.PublicURL)
	err = svc.api.Start(ctx)
	stop()
	// The final snapshot must land before the database closes.
	<-snapDone

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server failed", "error", err)
		return 1
	}
	logger.Info("signboard stopped")
	return 0
}
