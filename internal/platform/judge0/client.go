package judge0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/config"
	"github.com/anheplast/curiosmaze/internal/platform/logger"

	"go.uber.org/zap"
)

const authHeader = "X-Auth-Token"

// Client is a typed transport over the Judge0 HTTP API. It keeps no state
// between calls and is safe for concurrent use.
type Client struct {
	baseURL      string
	authToken    string
	httpClient   *http.Client
	probeTimeout time.Duration
	limits       model.Limits
}

type Options struct {
	BaseURL      string
	AuthToken    string
	HTTPTimeout  time.Duration
	ProbeTimeout time.Duration
	Limits       model.Limits
	HTTPClient   *http.Client
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	probe := opts.ProbeTimeout
	if probe <= 0 {
		probe = 3 * time.Second
	}
	limits := opts.Limits
	if limits == (model.Limits{}) {
		limits = model.DefaultLimits()
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		authToken:    opts.AuthToken,
		httpClient:   hc,
		probeTimeout: probe,
		limits:       limits,
	}
}

func NewClientFromConfig(cfg config.JudgeConfig) *Client {
	return NewClient(Options{
		BaseURL:      cfg.BaseURL,
		AuthToken:    cfg.AuthToken,
		HTTPTimeout:  cfg.HTTPTimeout,
		ProbeTimeout: cfg.ProbeTimeout,
		Limits: model.Limits{
			CPUTimeLimit:        cfg.CPUTimeLimit,
			CPUExtraTime:        cfg.CPUExtraTime,
			WallTimeLimit:       cfg.WallTimeLimit,
			MemoryLimitKB:       cfg.MemoryLimitKB,
			StackLimitKB:        cfg.StackLimitKB,
			MaxProcessesThreads: cfg.MaxProcessesThreads,
			EnableNetwork:       cfg.EnableNetwork,
		},
	})
}

func (c *Client) BaseURL() string { return c.baseURL }

// Limits returns the resource limits applied to submissions that omit them.
func (c *Client) Limits() model.Limits { return c.limits }

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set(authHeader, c.authToken)
	}
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out. Transport failures and 5xx
// answers are ErrJudgeUnreachable; anything else unexpected is ErrJudgeProtocol.
func (c *Client) do(req *http.Request, out any) error {
	op := req.Method + " " + req.URL.Path
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrJudgeUnreachable, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: reading body: %v", common.ErrJudgeUnreachable, op, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s returned %d", common.ErrJudgeUnreachable, op, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d: %s", common.ErrJudgeProtocol, op, resp.StatusCode, snippet(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: decoding response: %v", common.ErrJudgeProtocol, op, err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// CheckAvailability probes GET /statuses with a short timeout. It never fails:
// every problem is reported as IsAvailable=false with a message.
func (c *Client) CheckAvailability(ctx context.Context) Availability {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/statuses", nil, nil)
	if err != nil {
		return Availability{Message: err.Error()}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn(ctx, "judge0 liveness probe failed", zap.String("url", c.baseURL), zap.Error(err))
		return Availability{Message: fmt.Sprintf("Judge0 is not reachable at %s", c.baseURL)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Availability{Message: fmt.Sprintf("Judge0 is not responding correctly: %d", resp.StatusCode)}
	}
	return Availability{IsAvailable: true, Message: "Judge0 is ready"}
}

// Describe is CheckAvailability enriched with the language list. A failing
// language lookup leaves the availability untouched.
func (c *Client) Describe(ctx context.Context) Availability {
	av := c.CheckAvailability(ctx)
	if !av.IsAvailable {
		return av
	}
	langs, err := c.ListLanguages(ctx)
	if err != nil {
		logger.Warn(ctx, "could not list judge0 languages", zap.Error(err))
		return av
	}
	av.Languages = langs
	av.Message = fmt.Sprintf("%s (%d languages)", av.Message, len(langs))
	return av
}

func (c *Client) ListLanguages(ctx context.Context) ([]Language, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/languages", nil, nil)
	if err != nil {
		return nil, err
	}
	var langs []Language
	if err := c.do(req, &langs); err != nil {
		return nil, err
	}
	return langs, nil
}

func (c *Client) CreateSubmission(ctx context.Context, sub model.Submission) (string, error) {
	sub = sub.WithDefaults(c.limits)
	req, err := c.newRequest(ctx, http.MethodPost, "/submissions", url.Values{"base64_encoded": {"false"}}, sub)
	if err != nil {
		return "", err
	}
	var out tokenResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: POST /submissions returned no token", common.ErrJudgeProtocol)
	}
	return out.Token, nil
}

// CreateBatch submits subs in one request. The returned items are aligned with
// subs and are not filtered: rejected elements carry an Error instead of a Token.
func (c *Client) CreateBatch(ctx context.Context, subs []model.Submission) ([]BatchItem, error) {
	body := batchRequest{Submissions: make([]model.Submission, len(subs))}
	for i, s := range subs {
		body.Submissions[i] = s.WithDefaults(c.limits)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/submissions/batch", url.Values{"base64_encoded": {"false"}}, body)
	if err != nil {
		return nil, err
	}
	var items []BatchItem
	if err := c.do(req, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, fmt.Errorf("%w: POST /submissions/batch returned no items", common.ErrJudgeProtocol)
	}
	return items, nil
}

func (c *Client) GetSubmission(ctx context.Context, token string) (model.SubmissionResult, error) {
	if token == "" {
		return model.SubmissionResult{}, fmt.Errorf("%w: empty token", common.ErrInvalidRequest)
	}
	q := url.Values{"fields": {"*"}, "base64_encoded": {"false"}}
	req, err := c.newRequest(ctx, http.MethodGet, "/submissions/"+url.PathEscape(token), q, nil)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	var res model.SubmissionResult
	if err := c.do(req, &res); err != nil {
		return model.SubmissionResult{}, err
	}
	if res.Token == "" {
		res.Token = token
	}
	return res, nil
}

// GetBatch polls several submissions in one request; tokens travel joined by commas.
func (c *Client) GetBatch(ctx context.Context, tokens []string) ([]model.SubmissionResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	q := url.Values{
		"tokens":         {strings.Join(tokens, ",")},
		"base64_encoded": {"false"},
		"fields":         {"*"},
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/submissions/batch", q, nil)
	if err != nil {
		return nil, err
	}
	var out batchResultsResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Submissions == nil {
		return nil, fmt.Errorf("%w: GET /submissions/batch response has no submissions", common.ErrJudgeProtocol)
	}
	return *out.Submissions, nil
}

// IsRetryable reports whether err is worth retrying while polling.
func IsRetryable(err error) bool {
	return errors.Is(err, common.ErrJudgeUnreachable) || errors.Is(err, common.ErrJudgeProtocol)
}
