package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/domain/repository"
	"github.com/anheplast/curiosmaze/internal/platform/backend"
	"github.com/anheplast/curiosmaze/internal/platform/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const anonymousUser = "anonymous"

// EvaluationService grades student answers on Judge0 and reports the scores to the backend.
// Its public operations never return an error: every failure becomes an outcome with Success=false.
type EvaluationService struct {
	judge    JudgeClient
	poller   ResultPoller
	reporter ResultReporter
	sessions repository.SessionStore
	jobs     repository.BatchJobRepository
	timings  Timings
	now      func() time.Time
}

func NewEvaluationService(
	judge JudgeClient,
	poller ResultPoller,
	reporter ResultReporter,
	sessions repository.SessionStore,
	jobs repository.BatchJobRepository,
	timings Timings,
) *EvaluationService {
	return &EvaluationService{
		judge:    judge,
		poller:   poller,
		reporter: reporter,
		sessions: sessions,
		jobs:     jobs,
		timings:  timings,
		now:      time.Now,
	}
}

func userOrAnonymous(userID string) string {
	if userID == "" {
		return anonymousUser
	}
	return userID
}

// StartEvaluation remembers when the user opened the evaluation; batch reports
// measure the elapsed time from it.
func (s *EvaluationService) StartEvaluation(ctx context.Context, userID, evaluationID string) (time.Time, error) {
	if evaluationID == "" {
		return time.Time{}, common.Errorf("%w: evaluation id is required", common.ErrInvalidRequest)
	}
	user := userOrAnonymous(userID)
	started := s.now()
	if err := s.sessions.Set(ctx, repository.EvaluationStartKey(user, evaluationID), started.UnixMilli()); err != nil {
		return time.Time{}, common.Errorf("failed to record evaluation start: %w", err)
	}
	if err := s.sessions.Clear(ctx, repository.EvaluationEndKey(user, evaluationID)); err != nil {
		logger.Warn(ctx, "could not clear previous evaluation end", zap.Error(err))
	}
	return started, nil
}

// SaveExerciseLanguage remembers the language a user picked for one exercise.
func (s *EvaluationService) SaveExerciseLanguage(ctx context.Context, userID, evaluationID, exerciseID string, lang model.LanguageRef) error {
	if evaluationID == "" || exerciseID == "" || !lang.IsSet() {
		return common.Errorf("%w: evaluation, exercise and language are required", common.ErrInvalidRequest)
	}
	if _, ok := lang.Lookup(); !ok {
		return common.Errorf("%w: unsupported language %q", common.ErrInvalidRequest, lang.String())
	}
	key := repository.ExerciseLanguageKey(userOrAnonymous(userID), evaluationID, exerciseID)
	return s.sessions.Set(ctx, key, lang)
}

// SavedScores returns the last graded batch of a user for an evaluation.
func (s *EvaluationService) SavedScores(ctx context.Context, userID, evaluationID string) (*model.SavedScores, error) {
	var saved model.SavedScores
	found, err := repository.GetFresh(ctx, s.sessions, repository.EvaluationScoresKey(userOrAnonymous(userID), evaluationID), 0, &saved)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrNotFound
	}
	return &saved, nil
}

// SubmitBatch grades every exercise of req in one judge batch.
func (s *EvaluationService) SubmitBatch(ctx context.Context, req model.BatchRequest) model.BatchOutcome {
	return s.runBatch(ctx, uuid.NewString(), req, false)
}

// RunQueuedBatch grades a batch whose ledger entry was created when it was enqueued.
func (s *EvaluationService) RunQueuedBatch(ctx context.Context, batchID string, req model.BatchRequest) model.BatchOutcome {
	return s.runBatch(ctx, batchID, req, true)
}

func (s *EvaluationService) runBatch(ctx context.Context, batchID string, req model.BatchRequest, queued bool) model.BatchOutcome {
	ctx = logger.WithBatchID(ctx, batchID)
	detached := context.WithoutCancel(ctx)

	if req.EvaluationID == "" || len(req.Exercises) == 0 {
		err := common.Errorf("%w: evaluation id and a non-empty exercise list are required", common.ErrInvalidRequest)
		outcome := failedBatch(batchID, "Incomplete data for batch processing", err)
		if queued {
			s.finish(detached, batchID, &outcome)
		}
		return outcome
	}

	logger.Info(ctx, "starting batch evaluation",
		zap.String("evaluation_id", req.EvaluationID.String()), zap.Int("exercises", len(req.Exercises)))

	if queued {
		s.transition(detached, batchID, model.BatchStateBuilding)
		if err := s.jobs.IncrementAttempts(detached, batchID); err != nil {
			logger.Warn(ctx, "could not count batch attempt", zap.Error(err))
		}
	} else {
		job := &model.BatchJob{
			ID:           batchID,
			EvaluationID: req.EvaluationID.String(),
			UserID:       req.UserID,
			State:        model.BatchStateBuilding,
			Attempts:     1,
			TimeoutMs:    s.timings.BatchTimeout.Milliseconds(),
		}
		if err := s.jobs.Create(detached, job); err != nil {
			logger.Warn(ctx, "could not record batch job", zap.Error(err))
		}
	}

	workCtx, cancel := s.budgeted(ctx)
	defer cancel()

	av := s.judge.CheckAvailability(workCtx)
	if !av.IsAvailable {
		err := common.Errorf("%w: %s", common.ErrJudgeUnavailable, av.Message)
		outcome := failedBatch(batchID, "Judge0 not available: "+av.Message, err)
		s.finish(detached, batchID, &outcome)
		return outcome
	}

	outcome, err := s.gradeBatch(workCtx, batchID, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(workCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, common.ErrTimeoutExceeded) {
			err = common.Errorf("%w: batch budget of %s spent: %w", common.ErrTimeoutExceeded, s.timings.BatchBudget, err)
		}
		return s.reportFailure(detached, batchID, req, err)
	}
	s.finish(detached, batchID, &outcome)
	return outcome
}

// budgeted bounds the batch work so the caller still has time for the failure report.
func (s *EvaluationService) budgeted(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timings.BatchBudget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timings.BatchBudget)
}

func failedBatch(batchID, message string, err error) model.BatchOutcome {
	return model.BatchOutcome{
		Success:   false,
		Message:   message,
		BatchID:   batchID,
		Results:   []model.EvaluationScoreRecord{},
		ErrorKind: common.ErrorKind(err),
		Err:       err,
	}
}

func (s *EvaluationService) gradeBatch(ctx context.Context, batchID string, req model.BatchRequest) (model.BatchOutcome, error) {
	user := userOrAnonymous(req.UserID)
	evaluationID := req.EvaluationID.String()

	valid := make([]model.ExerciseItem, 0, len(req.Exercises))
	for _, it := range req.Exercises {
		if it.ExerciseID != "" {
			valid = append(valid, it)
		}
	}
	if len(valid) == 0 {
		return model.BatchOutcome{}, common.Errorf("%w: none of the %d exercises carries an id", common.ErrNoTokensReceived, len(req.Exercises))
	}

	catalog := s.catalogFor(ctx, req)
	subs := make([]model.Submission, len(valid))
	for i, it := range valid {
		sub := model.Submission{
			SourceCode: it.Code,
			LanguageID: s.resolveLanguage(ctx, user, evaluationID, it.ExerciseID.String(), it.Lang()),
		}
		if entry, ok := catalog[it.ExerciseID]; ok {
			if ex, ok := entry.FirstExample(); ok {
				sub.Stdin = ex.Input
				sub.ExpectedOutput = ex.ExpectedOutput
			}
		}
		subs[i] = sub
	}

	items, err := s.judge.CreateBatch(ctx, subs)
	if err != nil {
		return model.BatchOutcome{}, common.Errorf("failed to submit batch to judge0: %w", err)
	}
	s.transition(ctx, batchID, model.BatchStateSubmitted)

	// Items are aligned with valid: the i-th answer belongs to the i-th exercise.
	records := make([]*model.EvaluationScoreRecord, len(valid))
	tokenIndex := make(map[string]int, len(items))
	tokenMap := make(map[string]string, len(items))
	tokens := make([]string, 0, len(items))
	for i, it := range items {
		if i >= len(valid) {
			logger.Warn(ctx, "judge0 returned more batch items than submitted", zap.Int("items", len(items)), zap.Int("submitted", len(valid)))
			break
		}
		if it.Token == "" {
			rec := model.FailedScoreRecord(valid[i].ExerciseID, scoreMax(catalog, valid[i]), "judge0 rejected the submission: "+it.Error)
			records[i] = &rec
			continue
		}
		tokens = append(tokens, it.Token)
		tokenIndex[it.Token] = i
		tokenMap[it.Token] = valid[i].ExerciseID.String()
	}
	for i := len(items); i < len(valid); i++ {
		rec := model.FailedScoreRecord(valid[i].ExerciseID, scoreMax(catalog, valid[i]), "judge0 returned no token for this exercise")
		records[i] = &rec
	}
	if len(tokens) == 0 {
		return model.BatchOutcome{}, common.Errorf("%w: %d items submitted", common.ErrNoTokensReceived, len(valid))
	}
	if dropped := len(valid) - len(tokens); dropped > 0 {
		logger.Warn(ctx, "some exercises were not accepted by judge0", zap.Int("dropped", dropped))
	}

	if err := s.jobs.SetTokens(ctx, batchID, tokens, tokenMap); err != nil {
		logger.Warn(ctx, "could not record batch tokens", zap.Error(err))
	}
	s.transition(ctx, batchID, model.BatchStatePolling)

	results, err := s.poller.WaitForAll(ctx, tokens, s.timings.BatchTimeout, s.timings.BatchPollInterval)
	if err != nil {
		return model.BatchOutcome{}, common.Errorf("failed waiting for judge0 results: %w", err)
	}

	for _, res := range results {
		i, ok := tokenIndex[res.Token]
		if !ok {
			logger.Warn(ctx, "judge0 result without an exercise", zap.String("token", res.Token))
			continue
		}
		rec := model.NewScoreRecord(valid[i].ExerciseID, res, scoreMax(catalog, valid[i]))
		records[i] = &rec
	}
	graded := make([]model.EvaluationScoreRecord, len(records))
	for i, r := range records {
		if r == nil {
			graded[i] = model.FailedScoreRecord(valid[i].ExerciseID, scoreMax(catalog, valid[i]), "judge0 returned no result for this exercise")
			continue
		}
		graded[i] = *r
	}
	agg := model.Aggregate(graded)
	s.transition(ctx, batchID, model.BatchStateReconciled)
	logger.Info(ctx, "batch graded",
		zap.Float64("total", agg.TotalScore), zap.Float64("max", agg.MaxScore), zap.Float64("scaled", agg.ScaledScore))

	elapsed := s.elapsedMs(ctx, user, evaluationID)

	ack, err := s.reporter.PostBatch(ctx, backend.BatchReport{
		EvaluationID: req.EvaluationID,
		Exercises:    valid,
		Results:      graded,
		BatchID:      batchID,
		TotalScore:   agg.TotalScore,
		MaxScore:     agg.MaxScore,
		ScaledScore:  agg.Rounded(),
		ElapsedMs:    elapsed,
	})
	if err != nil {
		return model.BatchOutcome{}, common.Errorf("failed to report batch results: %w", err)
	}

	s.saveScores(ctx, user, evaluationID, batchID, graded, agg)

	return model.BatchOutcome{
		Success:     true,
		Message:     ack.Message,
		BatchID:     batchID,
		Results:     graded,
		TotalScore:  agg.TotalScore,
		MaxScore:    agg.MaxScore,
		ScaledScore: agg.ScaledScore,
		ElapsedMs:   elapsed,
		Backend:     ack.Raw,
	}, nil
}

// reportFailure makes one attempt to tell the backend about a failed batch and
// returns the failure outcome whatever the backend answers.
func (s *EvaluationService) reportFailure(ctx context.Context, batchID string, req model.BatchRequest, cause error) model.BatchOutcome {
	logger.Error(ctx, "batch evaluation failed", zap.String("kind", common.ErrorKind(cause)), zap.Error(cause))

	outcome := failedBatch(batchID, "Batch processing error: "+cause.Error(), cause)
	outcome.JudgeError = cause.Error()

	ack, err := s.reporter.PostBatchFailure(ctx, backend.BatchFailureReport{
		EvaluationID: req.EvaluationID,
		Exercises:    req.Exercises,
		Error:        cause.Error(),
		BatchID:      batchID,
		JudgeError:   true,
	})
	if err != nil {
		logger.Warn(ctx, "could not report batch failure to backend", zap.Error(err))
	} else {
		outcome.FallbackReported = true
		outcome.Backend = ack.Raw
	}
	s.finish(ctx, batchID, &outcome)
	return outcome
}

func scoreMax(catalog map[model.EntityID]model.CatalogExercise, it model.ExerciseItem) float64 {
	if entry, ok := catalog[it.ExerciseID]; ok && entry.Score > 0 {
		return float64(entry.Score)
	}
	if it.Score > 0 {
		return float64(it.Score)
	}
	return model.DefaultExerciseScore
}

// catalogFor indexes the exercise catalog by id. Without a caller-supplied catalog
// the evaluation details are read through the session cache, then from the backend.
func (s *EvaluationService) catalogFor(ctx context.Context, req model.BatchRequest) map[model.EntityID]model.CatalogExercise {
	exercises := req.Catalog
	if len(exercises) == 0 {
		details, err := s.evaluationDetails(ctx, req.EvaluationID.String())
		if err != nil {
			logger.Warn(ctx, "no exercise catalog available, using defaults", zap.Error(err))
		} else {
			exercises = details.Exercises
		}
	}
	catalog := make(map[model.EntityID]model.CatalogExercise, len(exercises))
	for _, e := range exercises {
		catalog[e.ID] = e
	}
	return catalog
}

func (s *EvaluationService) evaluationDetails(ctx context.Context, evaluationID string) (*model.EvaluationDetails, error) {
	key := repository.EvaluationDetailsKey(evaluationID)
	var cached model.EvaluationDetails
	found, err := repository.GetFresh(ctx, s.sessions, key, s.timings.CacheFreshness, &cached)
	if err != nil {
		logger.Warn(ctx, "evaluation details cache unreadable", zap.Error(err))
	}
	if found {
		return &cached, nil
	}
	details, err := s.reporter.GetEvaluationDetails(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Set(ctx, key, details); err != nil {
		logger.Warn(ctx, "could not cache evaluation details", zap.Error(err))
	}
	return details, nil
}

// resolveLanguage picks the item's language, then the one saved for the exercise, then Python.
func (s *EvaluationService) resolveLanguage(ctx context.Context, user, evaluationID, exerciseID string, ref model.LanguageRef) int {
	if id, ok := ref.Lookup(); ok {
		return id
	}
	if ref.IsSet() {
		logger.Warn(ctx, "unsupported language requested", zap.String("language", ref.String()), zap.String("exercise_id", exerciseID))
	}
	var saved model.LanguageRef
	found, err := repository.GetFresh(ctx, s.sessions, repository.ExerciseLanguageKey(user, evaluationID, exerciseID), 0, &saved)
	if err != nil {
		logger.Warn(ctx, "saved language unreadable", zap.Error(err))
	}
	if found {
		if id, ok := saved.Lookup(); ok {
			return id
		}
	}
	return model.DefaultLanguageID
}

func (s *EvaluationService) elapsedMs(ctx context.Context, user, evaluationID string) int64 {
	var startMs int64
	found, err := repository.GetFresh(ctx, s.sessions, repository.EvaluationStartKey(user, evaluationID), 0, &startMs)
	if err != nil {
		logger.Warn(ctx, "evaluation start unreadable", zap.Error(err))
	}
	end := s.now()
	if err := s.sessions.Set(ctx, repository.EvaluationEndKey(user, evaluationID), end.UnixMilli()); err != nil {
		logger.Warn(ctx, "could not record evaluation end", zap.Error(err))
	}
	if !found || startMs <= 0 {
		return 0
	}
	if elapsed := end.UnixMilli() - startMs; elapsed > 0 {
		return elapsed
	}
	return 0
}

func (s *EvaluationService) saveScores(ctx context.Context, user, evaluationID, batchID string, records []model.EvaluationScoreRecord, agg model.AggregateResult) {
	byExercise := make(map[string]model.EvaluationScoreRecord, len(records))
	for _, r := range records {
		byExercise[r.ExerciseID.String()] = r
	}
	if err := s.sessions.Set(ctx, repository.ExerciseScoresKey(user, evaluationID), byExercise); err != nil {
		logger.Warn(ctx, "could not save exercise scores", zap.Error(err))
	}
	saved := model.SavedScores{BatchID: batchID, Results: records, Aggregate: agg, SavedAt: s.now()}
	if err := s.sessions.Set(ctx, repository.EvaluationScoresKey(user, evaluationID), saved); err != nil {
		logger.Warn(ctx, "could not save evaluation scores", zap.Error(err))
	}
}

func (s *EvaluationService) transition(ctx context.Context, batchID string, state model.BatchJobState) {
	if err := s.jobs.UpdateState(ctx, batchID, state, nil); err != nil {
		logger.Warn(ctx, "could not record batch state", zap.String("state", string(state)), zap.Error(err))
	}
}

func (s *EvaluationService) finish(ctx context.Context, batchID string, outcome *model.BatchOutcome) {
	state := model.BatchStateReported
	if !outcome.Success {
		state = model.BatchStateErrored
		msg := outcome.Message
		if err := s.jobs.UpdateState(ctx, batchID, state, &msg); err != nil && !errors.Is(err, common.ErrNotFound) {
			logger.Warn(ctx, "could not record batch error", zap.Error(err))
		}
	}
	raw, err := json.Marshal(outcome)
	if err != nil {
		logger.Error(ctx, "could not encode batch outcome", zap.Error(err))
		return
	}
	if err := s.jobs.SaveOutcome(ctx, batchID, state, raw); err != nil && !errors.Is(err, common.ErrNotFound) {
		logger.Warn(ctx, "could not save batch outcome", zap.Error(err))
	}
}

// SubmitSingle runs one exercise on the judge and reports it to the backend.
// Failures come back as Success=false with the error message.
func (s *EvaluationService) SubmitSingle(ctx context.Context, req model.SingleRequest) model.SingleOutcome {
	submissionID := uuid.NewString()
	out := model.SingleOutcome{ExerciseID: req.ExerciseID, SubmissionID: submissionID}

	fail := func(err error, message string) model.SingleOutcome {
		logger.Error(ctx, "single submission failed",
			zap.String("submission_id", submissionID), zap.String("exercise_id", req.ExerciseID.String()), zap.Error(err))
		out.Success = false
		out.Message = message
		out.ErrorKind = common.ErrorKind(err)
		out.Err = err
		return out
	}

	if req.EvaluationID == "" || req.ExerciseID == "" {
		err := common.Errorf("%w: evaluation and exercise ids are required", common.ErrInvalidRequest)
		return fail(err, err.Error())
	}

	av := s.judge.CheckAvailability(ctx)
	if !av.IsAvailable {
		return fail(common.Errorf("%w: %s", common.ErrJudgeUnavailable, av.Message), "Judge0 not available: "+av.Message)
	}

	user := userOrAnonymous(req.UserID)
	evaluationID := req.EvaluationID.String()
	if _, ok := req.Language.Lookup(); ok {
		if err := s.SaveExerciseLanguage(ctx, user, evaluationID, req.ExerciseID.String(), req.Language); err != nil {
			logger.Warn(ctx, "could not save exercise language", zap.Error(err))
		}
	}
	lang := s.resolveLanguage(ctx, user, evaluationID, req.ExerciseID.String(), req.Language)

	token, err := s.judge.CreateSubmission(ctx, model.Submission{SourceCode: req.Code, LanguageID: lang})
	if err != nil {
		return fail(err, fmt.Sprintf("Error: %v", err))
	}
	out.JudgeToken = token

	res, err := s.poller.WaitFor(ctx, token, s.timings.SingleTimeout, s.timings.PollInterval)
	if err != nil {
		return fail(err, fmt.Sprintf("Error: %v", err))
	}
	out.Result = &res

	ack, err := s.reporter.PostSingle(ctx, backend.SingleReport{
		EvaluationID: req.EvaluationID,
		ExerciseID:   req.ExerciseID,
		Code:         req.Code,
		Timestamp:    s.now().UTC(),
		SubmissionID: submissionID,
		Result:       res,
	})
	if err != nil {
		return fail(err, fmt.Sprintf("Error: %v", err))
	}

	out.Success = true
	out.Message = ack.Message
	out.Code = req.Code
	out.Backend = ack.Raw
	return out
}
