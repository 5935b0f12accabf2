package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/noah-isme/academic-records/internal/cli"
	"github.com/noah-isme/academic-records/pkg/config"
	"github.com/noah-isme/academic-records/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (cli.Runtime, error) {
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid configuration: %v", err)
		}
		return cli.NewStoreRuntime(cfg, logr)
	})
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		_ = logr.Sync()
		os.Exit(1)
	}
}
