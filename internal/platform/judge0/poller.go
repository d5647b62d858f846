package judge0

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/logger"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// ResultFetcher is the read side of the judge used by the poller.
type ResultFetcher interface {
	GetSubmission(ctx context.Context, token string) (model.SubmissionResult, error)
	GetBatch(ctx context.Context, tokens []string) ([]model.SubmissionResult, error)
}

// Poller turns submit-then-poll into one bounded call.
type Poller struct {
	fetcher    ResultFetcher
	clock      Clock
	multiplier float64
	maxBackoff time.Duration
}

type PollerOption func(*Poller)

func WithClock(c Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithBackoff sets how the retry wait grows after a failed poll.
func WithBackoff(multiplier float64, max time.Duration) PollerOption {
	return func(p *Poller) {
		p.multiplier = multiplier
		p.maxBackoff = max
	}
}

func NewPoller(fetcher ResultFetcher, opts ...PollerOption) *Poller {
	p := &Poller{fetcher: fetcher, clock: RealClock(), multiplier: 2, maxBackoff: 8 * time.Second}
	for _, o := range opts {
		o(p)
	}
	return p
}

// WaitFor polls one submission until it leaves the queued/processing states.
func (p *Poller) WaitFor(ctx context.Context, token string, timeout, interval time.Duration) (model.SubmissionResult, error) {
	fetch := func(ctx context.Context, tokens []string) ([]model.SubmissionResult, error) {
		res, err := p.fetcher.GetSubmission(ctx, tokens[0])
		if err != nil {
			return nil, err
		}
		return []model.SubmissionResult{res}, nil
	}
	results, err := p.poll(ctx, []string{token}, timeout, interval, fetch)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	return results[0], nil
}

// WaitForAll polls a batch until every token is terminal. Results come back in
// the order of tokens. A token the judge never reports stays pending.
func (p *Poller) WaitForAll(ctx context.Context, tokens []string, timeout, interval time.Duration) ([]model.SubmissionResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	return p.poll(ctx, tokens, timeout, interval, p.fetcher.GetBatch)
}

type fetchFunc func(ctx context.Context, tokens []string) ([]model.SubmissionResult, error)

func (p *Poller) poll(ctx context.Context, tokens []string, timeout, interval time.Duration, fetch fetchFunc) ([]model.SubmissionResult, error) {
	if interval <= 0 {
		interval = time.Second
	}
	start := p.clock.Now()
	backoff := NewBackoff(interval, p.multiplier, p.maxBackoff, start.Add(timeout))

	// A hung judge request must not carry the wait past the deadline.
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pending := mapset.NewThreadUnsafeSet(tokens...)
	latest := make(map[string]model.SubmissionResult, len(tokens))

	timedOut := func() error {
		return fmt.Errorf("%w: %d of %d submissions still pending after %s",
			common.ErrTimeoutExceeded, pending.Cardinality(), len(tokens), timeout)
	}
	interrupted := func(err error) error {
		if ctx.Err() == nil && pollCtx.Err() != nil {
			return timedOut()
		}
		return fmt.Errorf("polling %d submissions: %w", len(tokens), err)
	}

	for attempt := 1; ; attempt++ {
		if err := pollCtx.Err(); err != nil {
			return nil, interrupted(err)
		}

		batch := make([]string, 0, pending.Cardinality())
		for _, t := range tokens {
			if pending.Contains(t) {
				batch = append(batch, t)
			}
		}

		results, err := fetch(pollCtx, batch)
		if err != nil {
			if ctx.Err() == nil && pollCtx.Err() != nil {
				return nil, timedOut()
			}
			if !IsRetryable(err) || ctx.Err() != nil {
				return nil, err
			}
			now := p.clock.Now()
			if backoff.Exhausted(now) {
				if errors.Is(err, common.ErrJudgeUnreachable) {
					return nil, err
				}
				return nil, fmt.Errorf("%w: giving up near deadline: %w", common.ErrJudgeUnreachable, err)
			}
			wait := backoff.Clamp(backoff.Next(), now)
			logger.Warn(ctx, "judge0 poll failed, retrying",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
			if err := p.clock.Sleep(pollCtx, wait); err != nil {
				return nil, interrupted(err)
			}
			continue
		}
		backoff.Reset()

		for _, r := range results {
			if !pending.Contains(r.Token) {
				continue
			}
			latest[r.Token] = r
			if !r.IsPending() {
				pending.Remove(r.Token)
			}
		}

		now := p.clock.Now()
		logger.Debug(ctx, "judge0 poll",
			zap.Int("done", len(tokens)-pending.Cardinality()),
			zap.Int("total", len(tokens)),
			zap.Duration("elapsed", now.Sub(start)))

		if pending.Cardinality() == 0 {
			out := make([]model.SubmissionResult, len(tokens))
			for i, t := range tokens {
				out[i] = latest[t]
			}
			return out, nil
		}
		if !now.Before(backoff.Deadline) {
			return nil, timedOut()
		}
		if err := p.clock.Sleep(pollCtx, backoff.Clamp(interval, now)); err != nil {
			return nil, interrupted(err)
		}
	}
}
