// Package bootstrap builds the services shared by the server and the worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/anheplast/curiosmaze/internal/app/service"
	"github.com/anheplast/curiosmaze/internal/app/worker"
	"github.com/anheplast/curiosmaze/internal/domain/repository"
	"github.com/anheplast/curiosmaze/internal/platform/backend"
	"github.com/anheplast/curiosmaze/internal/platform/config"
	"github.com/anheplast/curiosmaze/internal/platform/database"
	"github.com/anheplast/curiosmaze/internal/platform/judge0"
	"github.com/anheplast/curiosmaze/internal/platform/logger"
	"github.com/anheplast/curiosmaze/internal/platform/queue"

	"go.uber.org/zap"
)

const memoryQueueSize = 256

type App struct {
	Judge       *judge0.Client
	Evaluations *service.EvaluationService
	Verifier    *service.VerifierService
	Jobs        *service.ExecutionJobService
	Queue       queue.JobQueue
}

// NewWorker builds a queue worker over the app's services.
func (a *App) NewWorker() *worker.EvaluationWorker {
	return worker.NewEvaluationWorker(a.Queue, a.Jobs, a.Evaluations)
}

// Build connects the optional stores and wires the services. Postgres and Redis
// are used only when enabled; otherwise the in-memory versions stand in.
// The returned cleanup closes whatever was opened.
func Build(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	jobs := repository.NewMemoryBatchJobRepository()
	if cfg.DBEnabled {
		if err := database.Connect(ctx, cfg); err != nil {
			return nil, func() {}, err
		}
		closers = append(closers, database.Close)
		if err := repository.EnsureBatchJobsSchema(ctx, database.DB); err != nil {
			cleanup()
			return nil, func() {}, err
		}
		jobs = repository.NewPgBatchJobRepository(database.DB)
	} else {
		logger.Warn(ctx, "database disabled, batch job ledger is in memory")
	}

	sessions := repository.NewMemorySessionStore()
	q := queue.NewMemoryQueue(memoryQueueSize)
	if cfg.RedisEnabled {
		if err := queue.ConnectRedis(ctx, cfg); err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, queue.CloseRedis)
		sessions = repository.NewRedisSessionStore(queue.RDB, cfg.SessionTTL)
		q = queue.NewRedisQueue(queue.RDB, cfg.EvaluationQueueName)
	} else {
		logger.Warn(ctx, "redis disabled, sessions and the evaluation queue are in memory")
	}

	judge := judge0.NewClientFromConfig(cfg.Judge)
	poller := judge0.NewPoller(judge, judge0.WithBackoff(2, cfg.Judge.MaxBackoff))
	reporter := backend.NewClientFromConfig(cfg.Backend)
	timings := service.TimingsFromConfig(cfg)

	app := &App{
		Judge:       judge,
		Evaluations: service.NewEvaluationService(judge, poller, reporter, sessions, jobs, timings),
		Verifier:    service.NewVerifierService(judge, poller, timings),
		Jobs:        service.NewExecutionJobService(jobs, q, timings),
		Queue:       q,
	}
	logger.Info(ctx, "services ready",
		zap.String("judge0", judge.BaseURL()),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("postgres", cfg.DBEnabled),
		zap.Bool("redis", cfg.RedisEnabled))
	return app, cleanup, nil
}

// InitLogger sets up the global logger from cfg.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}
