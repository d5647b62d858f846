package service

import (
	"context"
	"time"

	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/backend"
	"github.com/anheplast/curiosmaze/internal/platform/config"
	"github.com/anheplast/curiosmaze/internal/platform/judge0"
)

// JudgeClient is the part of the Judge0 client the services drive.
type JudgeClient interface {
	CheckAvailability(ctx context.Context) judge0.Availability
	CreateSubmission(ctx context.Context, sub model.Submission) (string, error)
	CreateBatch(ctx context.Context, subs []model.Submission) ([]judge0.BatchItem, error)
}

type ResultPoller interface {
	WaitFor(ctx context.Context, token string, timeout, interval time.Duration) (model.SubmissionResult, error)
	WaitForAll(ctx context.Context, tokens []string, timeout, interval time.Duration) ([]model.SubmissionResult, error)
}

// ResultReporter is the backend sink for graded results.
type ResultReporter interface {
	PostBatch(ctx context.Context, report backend.BatchReport) (*backend.Ack, error)
	PostBatchFailure(ctx context.Context, report backend.BatchFailureReport) (*backend.Ack, error)
	PostSingle(ctx context.Context, report backend.SingleReport) (*backend.Ack, error)
	GetEvaluationDetails(ctx context.Context, evaluationID string) (*model.EvaluationDetails, error)
}

// Timings bounds every judge wait done by the services.
type Timings struct {
	BatchTimeout      time.Duration
	BatchPollInterval time.Duration
	SingleTimeout     time.Duration
	PollInterval      time.Duration
	CacheFreshness    time.Duration
	// BatchBudget caps one batch from the liveness probe to the results report. Zero means no cap.
	BatchBudget time.Duration
}

func TimingsFromConfig(cfg *config.Config) Timings {
	return Timings{
		BatchTimeout:      cfg.Judge.BatchTimeout,
		BatchPollInterval: cfg.Judge.BatchPollInterval,
		SingleTimeout:     cfg.Judge.SingleTimeout,
		PollInterval:      cfg.Judge.PollInterval,
		CacheFreshness:    cfg.CacheFreshness,
		BatchBudget:       cfg.BatchBudget(),
	}
}
