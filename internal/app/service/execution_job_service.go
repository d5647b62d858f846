package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/domain/repository"
	"github.com/anheplast/curiosmaze/internal/platform/logger"
	"github.com/anheplast/curiosmaze/internal/platform/queue"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutionJobService queues batch evaluations for the workers and reads their ledger entries.
type ExecutionJobService struct {
	jobRepo   repository.BatchJobRepository
	queue     queue.JobQueue
	timeoutMs int64
}

func NewExecutionJobService(jobRepo repository.BatchJobRepository, q queue.JobQueue, timings Timings) *ExecutionJobService {
	return &ExecutionJobService{jobRepo: jobRepo, queue: q, timeoutMs: timings.BatchTimeout.Milliseconds()}
}

// EnqueueBatch records a queued job carrying the request and pushes its id to the queue.
func (s *ExecutionJobService) EnqueueBatch(ctx context.Context, req model.BatchRequest) (*model.BatchJob, error) {
	if req.EvaluationID == "" || len(req.Exercises) == 0 {
		return nil, common.Errorf("%w: evaluation id and a non-empty exercise list are required", common.ErrInvalidRequest)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, common.Errorf("failed to marshal batch request: %w", err)
	}

	job := &model.BatchJob{
		ID:           uuid.NewString(),
		EvaluationID: req.EvaluationID.String(),
		UserID:       req.UserID,
		State:        model.BatchStateQueued,
		Request:      payload,
		TimeoutMs:    s.timeoutMs,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, common.Errorf("failed to create batch job: %w", err)
	}

	if err := s.queue.Push(ctx, job.ID); err != nil {
		// The ledger entry would never be picked up; mark it so it does not look queued forever.
		msg := "enqueue failed: " + err.Error()
		if uerr := s.jobRepo.UpdateState(context.WithoutCancel(ctx), job.ID, model.BatchStateErrored, &msg); uerr != nil {
			logger.Warn(ctx, "could not mark unqueued job", zap.String("job_id", job.ID), zap.Error(uerr))
		}
		return nil, common.Errorf("failed to push job id to queue: %w", err)
	}

	logger.Info(ctx, "batch job enqueued", zap.String("job_id", job.ID), zap.String("evaluation_id", job.EvaluationID))
	return job, nil
}

func (s *ExecutionJobService) GetJob(ctx context.Context, id string) (*model.BatchJob, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, common.Errorf("failed to load batch job %s: %w", id, err)
	}
	return job, nil
}

// LoadQueuedRequest returns the job and the batch request stored with it.
func (s *ExecutionJobService) LoadQueuedRequest(ctx context.Context, id string) (*model.BatchJob, model.BatchRequest, error) {
	var req model.BatchRequest
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, req, err
	}
	if len(job.Request) == 0 {
		return job, req, common.Errorf("%w: job %s carries no request", common.ErrInvalidRequest, id)
	}
	if err := json.Unmarshal(job.Request, &req); err != nil {
		return job, req, common.Errorf("%w: job %s request: %v", common.ErrInvalidRequest, id, err)
	}
	return job, req, nil
}
