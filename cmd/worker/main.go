package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/anheplast/curiosmaze/internal/app/bootstrap"
	"github.com/anheplast/curiosmaze/internal/platform/config"
	"github.com/anheplast/curiosmaze/internal/platform/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	config.Load()
	cfg := config.AppConfig

	if err := bootstrap.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A standalone worker only makes sense with a shared queue.
	if !cfg.RedisEnabled {
		logger.Fatal(ctx, "the worker needs REDIS_ENABLED=true")
	}

	app, cleanup, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "startup failed", zap.Error(err))
	}
	defer cleanup()

	concurrency := max(cfg.WorkerConcurrency, 1)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		w := app.NewWorker()
		g.Go(func() error { return w.Start(gctx) })
	}
	logger.Info(ctx, "workers started", zap.Int("concurrency", concurrency))

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "worker stopped with error", zap.Error(err))
		return
	}
	logger.Info(context.Background(), "workers stopped")
}
