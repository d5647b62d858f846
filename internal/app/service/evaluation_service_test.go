package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/domain/repository"

	"github.com/stretchr/testify/require"
)

type evalFixture struct {
	judge    *fakeJudge
	poller   *fakePoller
	reporter *fakeReporter
	sessions repository.SessionStore
	jobs     repository.BatchJobRepository
	svc      *EvaluationService
}

func newEvalFixture() *evalFixture {
	f := &evalFixture{
		judge:    &fakeJudge{},
		poller:   &fakePoller{},
		reporter: &fakeReporter{},
		sessions: repository.NewMemorySessionStore(),
		jobs:     repository.NewMemoryBatchJobRepository(),
	}
	f.svc = NewEvaluationService(f.judge, f.poller, f.reporter, f.sessions, f.jobs, Timings{
		BatchTimeout:      45 * time.Second,
		BatchPollInterval: 2 * time.Second,
		SingleTimeout:     30 * time.Second,
		PollInterval:      time.Second,
		CacheFreshness:    2 * time.Minute,
	})
	return f
}

func item(id, code string, lang model.LanguageRef) model.ExerciseItem {
	return model.ExerciseItem{ExerciseID: model.EntityID(id), Code: code, Language: lang}
}

func threeExerciseCatalog() []model.CatalogExercise {
	return []model.CatalogExercise{
		{ID: "1", Score: 10, Examples: []model.Example{{Input: "1 2", ExpectedOutput: "3"}}},
		{ID: "2", Score: 10, Examples: []model.Example{{Input: "x", ExpectedOutput: "y"}}},
		{ID: "3", Score: 20},
	}
}

func TestSubmitBatch_GradesAndReports(t *testing.T) {
	f := newEvalFixture()
	f.poller.statuses = map[string]model.StatusID{"tok-1": model.StatusWrongAnswer, "tok-2": model.StatusRuntimeErrorNZEC}
	f.svc.timings.BatchBudget = time.Minute

	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		UserID:       "42",
		Exercises: []model.ExerciseItem{
			item("1", "print(3)", model.LanguageByName("python")),
			item("2", "console.log('y')", model.LanguageByName("javascript")),
			item("3", "int main(){}", model.LanguageByID(54)),
		},
		Catalog: threeExerciseCatalog(),
	})

	require.True(t, out.Success, out.Message)
	require.NotEmpty(t, out.BatchID)
	require.Len(t, out.Results, 3)
	require.Equal(t, model.EntityID("1"), out.Results[0].ExerciseID)
	require.True(t, out.Results[0].IsCorrect)
	require.False(t, out.Results[1].IsCorrect)
	require.True(t, out.Results[1].Success)
	require.Equal(t, "boom", out.Results[1].Stderr)
	require.False(t, out.Results[2].IsCorrect)
	require.False(t, out.Results[2].Success)
	require.Equal(t, 10.0, out.TotalScore)
	require.Equal(t, 40.0, out.MaxScore)
	require.InDelta(t, 2.5, out.ScaledScore, 1e-9)

	require.Len(t, f.judge.batches, 1)
	subs := f.judge.batches[0]
	require.Equal(t, model.LanguagePython, subs[0].LanguageID)
	require.Equal(t, model.LanguageJavaScript, subs[1].LanguageID)
	require.Equal(t, model.LanguageCpp, subs[2].LanguageID)
	require.Equal(t, "1 2", subs[0].Stdin)
	require.Equal(t, "3", subs[0].ExpectedOutput)
	require.Empty(t, subs[2].ExpectedOutput)

	require.Len(t, f.reporter.batches, 1)
	report := f.reporter.batches[0]
	require.Equal(t, out.BatchID, report.BatchID)
	require.Equal(t, 2.5, report.ScaledScore)
	require.Empty(t, f.reporter.failures)

	job, err := f.jobs.GetByID(context.Background(), out.BatchID)
	require.NoError(t, err)
	require.Equal(t, model.BatchStateReported, job.State)
	require.Equal(t, []string{"tok-0", "tok-1", "tok-2"}, job.Tokens)
	require.Equal(t, "2", job.TokenMap["tok-1"])

	saved, err := f.svc.SavedScores(context.Background(), "42", "7")
	require.NoError(t, err)
	require.Equal(t, out.BatchID, saved.BatchID)
	require.Len(t, saved.Results, 3)
}

func TestSubmitBatch_DefaultsToPythonAndCatalogScore(t *testing.T) {
	f := newEvalFixture()
	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		Exercises: []model.ExerciseItem{
			item("1", "print(3)", model.LanguageRef{}),
			item("9", "x", model.LanguageByName("cobol")),
		},
	})
	require.True(t, out.Success)
	require.Equal(t, model.DefaultLanguageID, f.judge.batches[0][0].LanguageID)
	require.Equal(t, model.DefaultLanguageID, f.judge.batches[0][1].LanguageID)
	// No catalog anywhere: every exercise is worth the default score.
	require.Equal(t, 2*float64(model.DefaultExerciseScore), out.MaxScore)
	require.Equal(t, 1, f.reporter.detailsHit)
}

func TestSubmitBatch_UsesSavedLanguage(t *testing.T) {
	f := newEvalFixture()
	ctx := context.Background()
	require.NoError(t, f.svc.SaveExerciseLanguage(ctx, "42", "7", "1", model.LanguageByName("java")))

	out := f.svc.SubmitBatch(ctx, model.BatchRequest{
		EvaluationID: "7",
		UserID:       "42",
		Exercises:    []model.ExerciseItem{item("1", "class Main {}", model.LanguageRef{})},
	})
	require.True(t, out.Success)
	require.Equal(t, model.LanguageJava, f.judge.batches[0][0].LanguageID)
}

func TestSubmitBatch_CatalogFromBackendIsCached(t *testing.T) {
	f := newEvalFixture()
	f.reporter.details = &model.EvaluationDetails{ID: "7", Exercises: threeExerciseCatalog()}
	req := model.BatchRequest{
		EvaluationID: "7",
		Exercises:    []model.ExerciseItem{item("3", "x", model.LanguageRef{})},
	}

	first := f.svc.SubmitBatch(context.Background(), req)
	second := f.svc.SubmitBatch(context.Background(), req)

	require.True(t, first.Success)
	require.True(t, second.Success)
	require.Equal(t, 20.0, first.MaxScore)
	require.Equal(t, 20.0, second.MaxScore)
	require.Equal(t, 1, f.reporter.detailsHit)
}

func TestSubmitBatch_DroppedItemsStayAligned(t *testing.T) {
	f := newEvalFixture()
	f.judge.dropAt = map[int]string{1: `{"source_code":["can't be blank"]}`}

	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		Exercises: []model.ExerciseItem{
			item("1", "a", model.LanguageRef{}),
			item("2", "", model.LanguageRef{}),
			item("3", "c", model.LanguageRef{}),
		},
		Catalog: threeExerciseCatalog(),
	})

	require.True(t, out.Success)
	require.Len(t, out.Results, 3)
	require.Equal(t, model.EntityID("2"), out.Results[1].ExerciseID)
	require.False(t, out.Results[1].Success)
	require.Contains(t, out.Results[1].Error, "can't be blank")
	// Token tok-2 belongs to the third exercise, not the second.
	require.Equal(t, model.EntityID("3"), out.Results[2].ExerciseID)
	require.Equal(t, "tok-2", out.Results[2].JudgeToken)
	require.Equal(t, 40.0, out.MaxScore)
	require.Equal(t, []string{"tok-0", "tok-2"}, f.poller.waited[0])
}

func TestSubmitBatch_ShortAnswerAndOmittedResult(t *testing.T) {
	f := newEvalFixture()
	f.judge.short = 1
	f.poller.omit = map[string]bool{"tok-0": true}

	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		Exercises: []model.ExerciseItem{
			item("1", "a", model.LanguageRef{}),
			item("2", "b", model.LanguageRef{}),
			item("3", "c", model.LanguageRef{}),
		},
		Catalog: threeExerciseCatalog(),
	})

	require.True(t, out.Success)
	require.Len(t, out.Results, 3)
	require.Contains(t, out.Results[0].Error, "no result")
	require.True(t, out.Results[1].IsCorrect)
	require.Equal(t, model.EntityID("3"), out.Results[2].ExerciseID)
	require.Contains(t, out.Results[2].Error, "no token")
	require.Equal(t, 10.0, out.TotalScore)
	require.Equal(t, 40.0, out.MaxScore)
}

func TestSubmitBatch_JudgeUnavailable(t *testing.T) {
	f := newEvalFixture()
	f.judge.unavailable = true

	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		Exercises:    []model.ExerciseItem{item("1", "a", model.LanguageRef{})},
	})

	require.False(t, out.Success)
	require.Equal(t, "JudgeUnavailable", out.ErrorKind)
	require.Contains(t, out.Message, "not reachable")
	require.Empty(t, f.judge.batches)
	require.Empty(t, f.reporter.batches)
	require.Empty(t, f.reporter.failures)

	job, err := f.jobs.GetByID(context.Background(), out.BatchID)
	require.NoError(t, err)
	require.Equal(t, model.BatchStateErrored, job.State)
}

func TestSubmitBatch_InvalidRequest(t *testing.T) {
	f := newEvalFixture()
	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{EvaluationID: "7"})
	require.False(t, out.Success)
	require.Equal(t, "InvalidRequest", out.ErrorKind)
	require.ErrorIs(t, out.Err, common.ErrInvalidRequest)
	require.Empty(t, f.judge.batches)
}

func TestSubmitBatch_NoTokensSendsFallback(t *testing.T) {
	f := newEvalFixture()
	f.judge.dropAt = map[int]string{0: "bad", 1: "bad"}
	req := model.BatchRequest{
		EvaluationID: "7",
		Exercises: []model.ExerciseItem{
			item("1", "a", model.LanguageRef{}),
			item("2", "b", model.LanguageRef{}),
		},
	}

	out := f.svc.SubmitBatch(context.Background(), req)

	require.False(t, out.Success)
	require.Equal(t, "NoTokensReceived", out.ErrorKind)
	require.True(t, out.FallbackReported)
	require.Len(t, f.reporter.failures, 1)
	fb := f.reporter.failures[0]
	require.True(t, fb.JudgeError)
	require.Equal(t, out.BatchID, fb.BatchID)
	require.Equal(t, req.Exercises, fb.Exercises)
}

func TestSubmitBatch_PollTimeoutSendsFallback(t *testing.T) {
	f := newEvalFixture()
	f.poller.err = common.Errorf("%w: 2 submissions still pending", common.ErrTimeoutExceeded)

	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		Exercises:    []model.ExerciseItem{item("1", "a", model.LanguageRef{})},
	})

	require.False(t, out.Success)
	require.Equal(t, "TimeoutExceeded", out.ErrorKind)
	require.Contains(t, out.JudgeError, "pending")
	require.Len(t, f.reporter.failures, 1)
	require.Empty(t, f.reporter.batches)

	job, err := f.jobs.GetByID(context.Background(), out.BatchID)
	require.NoError(t, err)
	require.Equal(t, model.BatchStateErrored, job.State)
	require.NotNil(t, job.LastError)
}

func TestSubmitBatch_BudgetBoundsHungJudge(t *testing.T) {
	f := newEvalFixture()
	f.poller.hang = true
	f.svc.timings.BatchBudget = 100 * time.Millisecond

	start := time.Now()
	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		Exercises:    []model.ExerciseItem{item("1", "a", model.LanguageRef{})},
	})

	require.Less(t, time.Since(start), 2*time.Second)
	require.False(t, out.Success)
	require.Equal(t, "TimeoutExceeded", out.ErrorKind)
	// the failure report still goes out after the budget is spent
	require.Len(t, f.reporter.failures, 1)
	require.True(t, out.FallbackReported)
}

func TestSubmitBatch_FallbackFailureIsSwallowed(t *testing.T) {
	f := newEvalFixture()
	f.reporter.reject = true

	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		Exercises:    []model.ExerciseItem{item("1", "a", model.LanguageRef{})},
	})

	// The primary report is rejected, the fallback is rejected too.
	require.False(t, out.Success)
	require.Equal(t, "BackendRejected", out.ErrorKind)
	require.False(t, out.FallbackReported)
	require.Len(t, f.reporter.batches, 1)
	require.Len(t, f.reporter.failures, 1)
}

func TestSubmitBatch_ElapsedFromStart(t *testing.T) {
	f := newEvalFixture()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }
	_, err := f.svc.StartEvaluation(context.Background(), "", "7")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return base.Add(90 * time.Second) }
	out := f.svc.SubmitBatch(context.Background(), model.BatchRequest{
		EvaluationID: "7",
		Exercises:    []model.ExerciseItem{item("1", "a", model.LanguageRef{})},
	})

	require.True(t, out.Success)
	require.Equal(t, int64(90000), out.ElapsedMs)
	require.Equal(t, int64(90000), f.reporter.batches[0].ElapsedMs)

	var end int64
	found, err := repository.GetFresh(context.Background(), f.sessions, repository.EvaluationEndKey(anonymousUser, "7"), 0, &end)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, base.Add(90*time.Second).UnixMilli(), end)
}

func TestRunQueuedBatch_UsesExistingLedgerEntry(t *testing.T) {
	f := newEvalFixture()
	ctx := context.Background()
	req := model.BatchRequest{
		EvaluationID: "7",
		Exercises:    []model.ExerciseItem{item("1", "a", model.LanguageRef{})},
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, f.jobs.Create(ctx, &model.BatchJob{ID: "job-1", EvaluationID: "7", State: model.BatchStateQueued, Request: raw}))

	out := f.svc.RunQueuedBatch(ctx, "job-1", req)

	require.True(t, out.Success)
	require.Equal(t, "job-1", out.BatchID)
	job, err := f.jobs.GetByID(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, model.BatchStateReported, job.State)
	require.Equal(t, 1, job.Attempts)
	require.NotEmpty(t, job.Outcome)
}

func TestSubmitSingle(t *testing.T) {
	f := newEvalFixture()
	out := f.svc.SubmitSingle(context.Background(), model.SingleRequest{
		EvaluationID: "7",
		ExerciseID:   "3",
		UserID:       "42",
		Code:         "print('hi')",
		Language:     model.LanguageByName("python3"),
	})

	require.True(t, out.Success, out.Message)
	require.Equal(t, "single-0", out.JudgeToken)
	require.NotEmpty(t, out.SubmissionID)
	require.NotNil(t, out.Result)
	require.Equal(t, model.LanguagePython, f.judge.singles[0].LanguageID)
	require.Empty(t, f.judge.singles[0].Stdin)

	require.Len(t, f.reporter.singles, 1)
	report := f.reporter.singles[0]
	require.Equal(t, out.SubmissionID, report.SubmissionID)
	require.Equal(t, "print('hi')", report.Code)
	require.Equal(t, "single-0", report.Result.Token)
}

func TestSubmitSingle_FailuresAreNotSuccess(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *evalFixture)
		kind  string
	}{
		{"judge down", func(f *evalFixture) { f.judge.unavailable = true }, "JudgeUnavailable"},
		{"create fails", func(f *evalFixture) {
			f.judge.singleErr = common.Errorf("%w: 422", common.ErrJudgeProtocol)
		}, "JudgeProtocolError"},
		{"poll timeout", func(f *evalFixture) {
			f.poller.err = common.Errorf("%w: pending", common.ErrTimeoutExceeded)
		}, "TimeoutExceeded"},
		{"backend down", func(f *evalFixture) { f.reporter.unreach = true }, "BackendUnreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEvalFixture()
			tt.setup(f)
			out := f.svc.SubmitSingle(context.Background(), model.SingleRequest{
				EvaluationID: "7", ExerciseID: "3", Code: "x",
			})
			require.False(t, out.Success)
			require.Equal(t, tt.kind, out.ErrorKind)
			require.NotEmpty(t, out.Message)
		})
	}
}

func TestSaveExerciseLanguage_RejectsUnknown(t *testing.T) {
	f := newEvalFixture()
	err := f.svc.SaveExerciseLanguage(context.Background(), "42", "7", "1", model.LanguageByName("brainfuck"))
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestSavedScores_NotFound(t *testing.T) {
	f := newEvalFixture()
	_, err := f.svc.SavedScores(context.Background(), "42", "7")
	require.ErrorIs(t, err, common.ErrNotFound)
}
