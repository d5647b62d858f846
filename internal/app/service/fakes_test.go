package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/backend"
	"github.com/anheplast/curiosmaze/internal/platform/judge0"
)

// fakeJudge hands out tokens "tok-0", "tok-1", ... and records what it was sent.
type fakeJudge struct {
	mu          sync.Mutex
	unavailable bool
	batchErr    error
	singleErr   error
	// dropAt blanks the token of these positions in CreateBatch answers.
	dropAt  map[int]string
	short   int
	batches [][]model.Submission
	singles []model.Submission
}

func (j *fakeJudge) CheckAvailability(context.Context) judge0.Availability {
	if j.unavailable {
		return judge0.Availability{IsAvailable: false, Message: "Judge0 is not reachable at http://judge0"}
	}
	return judge0.Availability{IsAvailable: true, Message: "Judge0 is ready"}
}

func (j *fakeJudge) CreateSubmission(_ context.Context, sub model.Submission) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.singleErr != nil {
		return "", j.singleErr
	}
	j.singles = append(j.singles, sub)
	return fmt.Sprintf("single-%d", len(j.singles)-1), nil
}

func (j *fakeJudge) CreateBatch(_ context.Context, subs []model.Submission) ([]judge0.BatchItem, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.batches = append(j.batches, subs)
	if j.batchErr != nil {
		return nil, j.batchErr
	}
	n := len(subs) - j.short
	items := make([]judge0.BatchItem, n)
	for i := range items {
		if reason, ok := j.dropAt[i]; ok {
			items[i] = judge0.BatchItem{Error: reason}
			continue
		}
		items[i] = judge0.BatchItem{Token: fmt.Sprintf("tok-%d", i)}
	}
	return items, nil
}

// fakePoller answers with the scripted status per token, Accepted otherwise.
type fakePoller struct {
	statuses map[string]model.StatusID
	omit     map[string]bool
	err      error
	// hang makes WaitForAll block until its context ends.
	hang   bool
	waited [][]string
}

func (p *fakePoller) resultFor(token string) model.SubmissionResult {
	status := model.StatusAccepted
	if s, ok := p.statuses[token]; ok {
		status = s
	}
	res := model.SubmissionResult{Token: token, Status: model.Status{ID: status}, Stdout: "out-" + token}
	if status != model.StatusAccepted {
		res.Stderr = "boom"
	}
	return res
}

func (p *fakePoller) WaitFor(_ context.Context, token string, _, _ time.Duration) (model.SubmissionResult, error) {
	p.waited = append(p.waited, []string{token})
	if p.err != nil {
		return model.SubmissionResult{}, p.err
	}
	return p.resultFor(token), nil
}

func (p *fakePoller) WaitForAll(ctx context.Context, tokens []string, _, _ time.Duration) ([]model.SubmissionResult, error) {
	p.waited = append(p.waited, tokens)
	if p.hang {
		<-ctx.Done()
		return nil, fmt.Errorf("polling %d submissions: %w", len(tokens), ctx.Err())
	}
	if p.err != nil {
		return nil, p.err
	}
	out := make([]model.SubmissionResult, 0, len(tokens))
	for _, t := range tokens {
		if p.omit[t] {
			continue
		}
		out = append(out, p.resultFor(t))
	}
	return out, nil
}

type fakeReporter struct {
	mu         sync.Mutex
	reject     bool
	unreach    bool
	details    *model.EvaluationDetails
	detailsHit int
	batches    []backend.BatchReport
	failures   []backend.BatchFailureReport
	singles    []backend.SingleReport
}

func (r *fakeReporter) ack() (*backend.Ack, error) {
	if r.unreach {
		return nil, common.Errorf("%w: connection refused", common.ErrBackendUnreachable)
	}
	if r.reject {
		return nil, common.Errorf("%w: status 500", common.ErrBackendRejected)
	}
	return &backend.Ack{Success: true, Message: "saved", Raw: json.RawMessage(`{"success":true,"message":"saved"}`)}, nil
}

func (r *fakeReporter) PostBatch(_ context.Context, report backend.BatchReport) (*backend.Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, report)
	return r.ack()
}

func (r *fakeReporter) PostBatchFailure(_ context.Context, report backend.BatchFailureReport) (*backend.Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, report)
	return r.ack()
}

func (r *fakeReporter) PostSingle(_ context.Context, report backend.SingleReport) (*backend.Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singles = append(r.singles, report)
	return r.ack()
}

func (r *fakeReporter) GetEvaluationDetails(context.Context, string) (*model.EvaluationDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detailsHit++
	if r.details == nil {
		return nil, common.ErrNotFound
	}
	return r.details, nil
}
