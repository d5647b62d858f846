package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/config"
)

const (
	batchPath  = "/submit-batch/"
	singlePath = "/submit-codigo/"
)

// Client reports evaluation results to the school backend.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func NewClientFromConfig(cfg config.BackendConfig) *Client {
	return NewClient(cfg.BaseURL, cfg.AuthToken, cfg.Timeout)
}

// BatchReport is the consolidated result of one graded batch.
type BatchReport struct {
	EvaluationID model.EntityID                `json:"evaluacion_id"`
	Exercises    []model.ExerciseItem          `json:"ejercicios"`
	Results      []model.EvaluationScoreRecord `json:"resultados_judge0"`
	BatchID      string                        `json:"batch_id"`
	TotalScore   float64                       `json:"total_puntaje"`
	MaxScore     float64                       `json:"puntaje_maximo"`
	ScaledScore  float64                       `json:"puntaje_sobre_10"`
	ElapsedMs    int64                         `json:"tiempo_total_ms"`
}

// BatchFailureReport tells the backend that a batch could not be graded.
// Exercises is the list exactly as the caller sent it.
type BatchFailureReport struct {
	EvaluationID model.EntityID       `json:"evaluacion_id"`
	Exercises    []model.ExerciseItem `json:"ejercicios"`
	Error        string               `json:"error"`
	BatchID      string               `json:"batch_id"`
	JudgeError   bool                 `json:"judge0_error"`
}

type SingleReport struct {
	EvaluationID model.EntityID         `json:"evaluacion_id"`
	ExerciseID   model.EntityID         `json:"ejercicio_id"`
	Code         string                 `json:"codigo"`
	Timestamp    time.Time              `json:"timestamp"`
	SubmissionID string                 `json:"submission_id"`
	Result       model.SubmissionResult `json:"judge0_result"`
}

// Ack is the backend's acknowledgement. Raw keeps the whole body.
type Ack struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// PostBatch sends a graded batch. An answer without success=true is ErrBackendRejected.
func (c *Client) PostBatch(ctx context.Context, report BatchReport) (*Ack, error) {
	return c.postAck(ctx, batchPath, report)
}

func (c *Client) PostBatchFailure(ctx context.Context, report BatchFailureReport) (*Ack, error) {
	return c.postAck(ctx, batchPath, report)
}

func (c *Client) PostSingle(ctx context.Context, report SingleReport) (*Ack, error) {
	return c.postAck(ctx, singlePath, report)
}

// GetEvaluationDetails fetches the exercise catalog of an evaluation.
func (c *Client) GetEvaluationDetails(ctx context.Context, evaluationID string) (*model.EvaluationDetails, error) {
	path := "/evaluaciones/" + url.PathEscape(evaluationID) + "/detalles/"
	status, body, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("evaluation %s: %w", evaluationID, common.ErrNotFound)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: GET %s returned %d", common.ErrBackendRejected, path, status)
	}
	var details model.EvaluationDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("%w: GET %s: decoding response: %v", common.ErrBackendRejected, path, err)
	}
	return &details, nil
}

func (c *Client) postAck(ctx context.Context, path string, payload any) (*Ack, error) {
	status, body, err := c.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	ack := &Ack{Raw: json.RawMessage(body)}
	if jsonErr := json.Unmarshal(body, ack); jsonErr != nil {
		ack.Raw = nil
	}
	if status < 200 || status > 299 {
		return ack, fmt.Errorf("%w: POST %s returned %d: %s", common.ErrBackendRejected, path, status, snippet(body))
	}
	if !ack.Success {
		return ack, fmt.Errorf("%w: POST %s did not acknowledge success", common.ErrBackendRejected, path)
	}
	return ack, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var rdr io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", common.ErrBackendUnreachable, method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: reading body: %v", common.ErrBackendUnreachable, method, path, err)
	}
	return resp.StatusCode, body, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
