package worker

import (
	"context"
	"errors"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/logger"
	"github.com/anheplast/curiosmaze/internal/platform/queue"

	"go.uber.org/zap"
)

// BatchRunner grades one queued batch.
type BatchRunner interface {
	RunQueuedBatch(ctx context.Context, batchID string, req model.BatchRequest) model.BatchOutcome
}

type JobLoader interface {
	LoadQueuedRequest(ctx context.Context, id string) (*model.BatchJob, model.BatchRequest, error)
}

// EvaluationWorker pops batch job ids and grades them one at a time. Several
// workers may share a queue: batches do not touch each other's state.
type EvaluationWorker struct {
	queue      queue.JobQueue
	jobs       JobLoader
	runner     BatchRunner
	popWait    time.Duration
	errorPause time.Duration
}

func NewEvaluationWorker(q queue.JobQueue, jobs JobLoader, runner BatchRunner) *EvaluationWorker {
	return &EvaluationWorker{
		queue:      q,
		jobs:       jobs,
		runner:     runner,
		popWait:    5 * time.Second,
		errorPause: 5 * time.Second,
	}
}

// Start runs until ctx is cancelled.
func (w *EvaluationWorker) Start(ctx context.Context) error {
	logger.Info(ctx, "evaluation worker started")
	for {
		if ctx.Err() != nil {
			logger.Info(ctx, "evaluation worker stopping")
			return nil
		}
		jobID, err := w.queue.Pop(ctx, w.popWait)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error(ctx, "failed to pop from evaluation queue", zap.Error(err))
			select {
			case <-time.After(w.errorPause):
			case <-ctx.Done():
			}
			continue
		}
		w.process(ctx, jobID)
	}
}

func (w *EvaluationWorker) process(ctx context.Context, jobID string) {
	ctx = logger.WithBatchID(ctx, jobID)
	logger.Info(ctx, "worker picked up batch job")

	job, req, err := w.jobs.LoadQueuedRequest(ctx, jobID)
	if err != nil {
		logger.Error(ctx, "cannot load queued batch", zap.String("kind", common.ErrorKind(err)), zap.Error(err))
		if job != nil {
			// A stored but unreadable request still gets a final state.
			w.runner.RunQueuedBatch(ctx, jobID, model.BatchRequest{EvaluationID: model.EntityID(job.EvaluationID)})
		}
		return
	}
	if job.State.IsFinal() {
		logger.Warn(ctx, "batch job already finished, skipping", zap.String("state", string(job.State)))
		return
	}
	if req.UserID == "" {
		req.UserID = job.UserID
	}

	outcome := w.runner.RunQueuedBatch(ctx, jobID, req)
	logger.Info(ctx, "batch job done", zap.Bool("success", outcome.Success), zap.String("kind", outcome.ErrorKind))
}
