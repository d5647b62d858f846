package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/puzpuzpuz/xsync/v3"
)

// BatchJobRepository is the ledger of batch evaluations and their state transitions.
type BatchJobRepository interface {
	Create(ctx context.Context, job *model.BatchJob) error
	GetByID(ctx context.Context, id string) (*model.BatchJob, error)
	UpdateState(ctx context.Context, id string, state model.BatchJobState, lastError *string) error
	SetTokens(ctx context.Context, id string, tokens []string, tokenMap map[string]string) error
	SaveOutcome(ctx context.Context, id string, state model.BatchJobState, outcome json.RawMessage) error
	IncrementAttempts(ctx context.Context, id string) error
}

const BatchJobsSchema = `CREATE TABLE IF NOT EXISTS batch_jobs (
	id            TEXT PRIMARY KEY,
	evaluation_id TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	tokens        JSONB,
	token_map     JSONB,
	request       JSONB,
	outcome       JSONB,
	last_error    TEXT,
	attempts      INTEGER NOT NULL DEFAULT 0,
	timeout_ms    BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type pgBatchJobRepository struct {
	db *sql.DB
}

func NewPgBatchJobRepository(db *sql.DB) BatchJobRepository {
	return &pgBatchJobRepository{db: db}
}

// EnsureBatchJobsSchema creates the ledger table when it does not exist yet.
func EnsureBatchJobsSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, BatchJobsSchema); err != nil {
		return fmt.Errorf("create batch_jobs table: %w", err)
	}
	return nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *pgBatchJobRepository) Create(ctx context.Context, job *model.BatchJob) error {
	tokens, err := json.Marshal(job.Tokens)
	if err != nil {
		return fmt.Errorf("pgBatchJobRepository.Create: %w", err)
	}
	tokenMap, err := json.Marshal(job.TokenMap)
	if err != nil {
		return fmt.Errorf("pgBatchJobRepository.Create: %w", err)
	}
	query := `INSERT INTO batch_jobs (id, evaluation_id, user_id, state, tokens, token_map, request, timeout_ms)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		job.ID, job.EvaluationID, job.UserID, job.State, string(tokens), string(tokenMap), nullableJSON(job.Request), job.TimeoutMs,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("batch job %s already exists: %w", job.ID, common.ErrConflict)
		}
		return fmt.Errorf("pgBatchJobRepository.Create: %w", err)
	}
	return nil
}

func (r *pgBatchJobRepository) GetByID(ctx context.Context, id string) (*model.BatchJob, error) {
	query := `SELECT id, evaluation_id, user_id, state, tokens, token_map, request, outcome,
	                 last_error, attempts, timeout_ms, created_at, updated_at
	          FROM batch_jobs WHERE id = $1`
	job := &model.BatchJob{}
	var tokens, tokenMap, request, outcome []byte
	var lastError sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.EvaluationID, &job.UserID, &job.State, &tokens, &tokenMap, &request, &outcome,
		&lastError, &job.Attempts, &job.TimeoutMs, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgBatchJobRepository.GetByID: %w", err)
	}
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, &job.Tokens); err != nil {
			return nil, fmt.Errorf("pgBatchJobRepository.GetByID: tokens: %w", err)
		}
	}
	if len(tokenMap) > 0 {
		if err := json.Unmarshal(tokenMap, &job.TokenMap); err != nil {
			return nil, fmt.Errorf("pgBatchJobRepository.GetByID: token_map: %w", err)
		}
	}
	job.Request = request
	job.Outcome = outcome
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	return job, nil
}

func (r *pgBatchJobRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pgBatchJobRepository.%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgBatchJobRepository.%s: %w", op, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgBatchJobRepository) UpdateState(ctx context.Context, id string, state model.BatchJobState, lastError *string) error {
	return r.exec(ctx, "UpdateState",
		`UPDATE batch_jobs SET state = $2, last_error = COALESCE($3, last_error), updated_at = NOW() WHERE id = $1`,
		id, state, lastError)
}

func (r *pgBatchJobRepository) SetTokens(ctx context.Context, id string, tokens []string, tokenMap map[string]string) error {
	rawTokens, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("pgBatchJobRepository.SetTokens: %w", err)
	}
	rawMap, err := json.Marshal(tokenMap)
	if err != nil {
		return fmt.Errorf("pgBatchJobRepository.SetTokens: %w", err)
	}
	return r.exec(ctx, "SetTokens",
		`UPDATE batch_jobs SET tokens = $2, token_map = $3, updated_at = NOW() WHERE id = $1`,
		id, string(rawTokens), string(rawMap))
}

func (r *pgBatchJobRepository) SaveOutcome(ctx context.Context, id string, state model.BatchJobState, outcome json.RawMessage) error {
	return r.exec(ctx, "SaveOutcome",
		`UPDATE batch_jobs SET state = $2, outcome = $3, updated_at = NOW() WHERE id = $1`,
		id, state, nullableJSON(outcome))
}

func (r *pgBatchJobRepository) IncrementAttempts(ctx context.Context, id string) error {
	return r.exec(ctx, "IncrementAttempts",
		`UPDATE batch_jobs SET attempts = attempts + 1, updated_at = NOW() WHERE id = $1`, id)
}

type memoryBatchJobRepository struct {
	jobs *xsync.MapOf[string, model.BatchJob]
}

func NewMemoryBatchJobRepository() BatchJobRepository {
	return &memoryBatchJobRepository{jobs: xsync.NewMapOf[string, model.BatchJob]()}
}

func cloneJob(job model.BatchJob) model.BatchJob {
	job.Tokens = slices.Clone(job.Tokens)
	job.TokenMap = maps.Clone(job.TokenMap)
	job.Request = slices.Clone(job.Request)
	job.Outcome = slices.Clone(job.Outcome)
	if job.LastError != nil {
		msg := *job.LastError
		job.LastError = &msg
	}
	return job
}

func (r *memoryBatchJobRepository) Create(_ context.Context, job *model.BatchJob) error {
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	if _, loaded := r.jobs.LoadOrStore(job.ID, cloneJob(*job)); loaded {
		return fmt.Errorf("batch job %s already exists: %w", job.ID, common.ErrConflict)
	}
	return nil
}

func (r *memoryBatchJobRepository) GetByID(_ context.Context, id string) (*model.BatchJob, error) {
	job, ok := r.jobs.Load(id)
	if !ok {
		return nil, common.ErrNotFound
	}
	job = cloneJob(job)
	return &job, nil
}

func (r *memoryBatchJobRepository) update(id string, fn func(*model.BatchJob)) error {
	found := false
	r.jobs.Compute(id, func(job model.BatchJob, loaded bool) (model.BatchJob, bool) {
		if !loaded {
			return job, true
		}
		found = true
		fn(&job)
		job.UpdatedAt = time.Now()
		return job, false
	})
	if !found {
		return common.ErrNotFound
	}
	return nil
}

func (r *memoryBatchJobRepository) UpdateState(_ context.Context, id string, state model.BatchJobState, lastError *string) error {
	return r.update(id, func(job *model.BatchJob) {
		job.State = state
		if lastError != nil {
			msg := *lastError
			job.LastError = &msg
		}
	})
}

func (r *memoryBatchJobRepository) SetTokens(_ context.Context, id string, tokens []string, tokenMap map[string]string) error {
	return r.update(id, func(job *model.BatchJob) {
		job.Tokens = slices.Clone(tokens)
		job.TokenMap = maps.Clone(tokenMap)
	})
}

func (r *memoryBatchJobRepository) SaveOutcome(_ context.Context, id string, state model.BatchJobState, outcome json.RawMessage) error {
	return r.update(id, func(job *model.BatchJob) {
		job.State = state
		job.Outcome = slices.Clone(outcome)
	})
}

func (r *memoryBatchJobRepository) IncrementAttempts(_ context.Context, id string) error {
	return r.update(id, func(job *model.BatchJob) {
		job.Attempts++
	})
}
