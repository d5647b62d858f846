package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anheplast/curiosmaze/internal/api"
	"github.com/anheplast/curiosmaze/internal/app/bootstrap"
	"github.com/anheplast/curiosmaze/internal/common/security"
	"github.com/anheplast/curiosmaze/internal/platform/config"
	"github.com/anheplast/curiosmaze/internal/platform/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load Configuration
	config.Load()
	cfg := config.AppConfig

	if err := bootstrap.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize JWT
	security.InitJWT(cfg.JWTKey)

	// 3. Stores, clients and services
	app, cleanup, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "startup failed", zap.Error(err))
	}
	defer cleanup()

	// 4. Router & HTTP Server
	router := api.NewRouter(app.Judge, app.Evaluations, app.Verifier, app.Jobs, api.RouterOptions{
		AuthRequired:   cfg.AuthRequired,
		RequestTimeout: cfg.RequestTimeout,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 5. Evaluation worker next to the API
	if cfg.EmbeddedWorker {
		w := app.NewWorker()
		g.Go(func() error { return w.Start(gctx) })
	}

	g.Go(func() error {
		logger.Info(gctx, "server starting", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 6. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "server stopped with error", zap.Error(err))
		return
	}
	logger.Info(context.Background(), "server and worker stopped gracefully")
}
