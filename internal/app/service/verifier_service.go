package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/logger"

	"go.uber.org/zap"
)

// VerifierService runs a student's code against examples or a test harness
// without grading or reporting anything.
type VerifierService struct {
	judge   JudgeClient
	poller  ResultPoller
	timings Timings
}

func NewVerifierService(judge JudgeClient, poller ResultPoller, timings Timings) *VerifierService {
	return &VerifierService{judge: judge, poller: poller, timings: timings}
}

func (s *VerifierService) run(ctx context.Context, sub model.Submission) (model.SubmissionResult, error) {
	token, err := s.judge.CreateSubmission(ctx, sub)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	return s.poller.WaitFor(ctx, token, s.timings.SingleTimeout, s.timings.PollInterval)
}

// VerifyExamples runs code once per example, one after the other. A failed
// judge call marks that case incorrect and the run goes on.
func (s *VerifierService) VerifyExamples(ctx context.Context, code string, examples []model.Example, lang model.LanguageRef) model.ExampleReport {
	report := model.ExampleReport{Details: []model.CaseDetail{}}
	if strings.TrimSpace(code) == "" {
		report.Message = "no code to verify"
		return report
	}
	if len(examples) == 0 {
		report.Message = "no examples to verify"
		return report
	}

	languageID := lang.ID()
	for i, ex := range examples {
		detail := model.CaseDetail{Index: i + 1, Input: ex.Input, Expected: ex.ExpectedOutput}
		res, err := s.run(ctx, model.Submission{
			SourceCode:     code,
			LanguageID:     languageID,
			Stdin:          ex.Input,
			ExpectedOutput: ex.ExpectedOutput,
		})
		if err != nil {
			logger.Warn(ctx, "example run failed", zap.Int("example", i+1), zap.String("kind", common.ErrorKind(err)), zap.Error(err))
			detail.Error = err.Error()
			detail.Status = "Error"
			report.Details = append(report.Details, detail)
			continue
		}
		detail.Actual = strings.TrimSpace(res.Stdout)
		detail.Correct = detail.Actual == strings.TrimSpace(ex.ExpectedOutput)
		detail.Time = res.Time
		detail.Status = res.Status.Description
		detail.Stderr = res.ErrorOutput()
		if detail.Correct {
			report.CasesCorrect++
		}
		report.Details = append(report.Details, detail)
	}

	report.Success = true
	report.CasesTotal = len(examples)
	report.Percentage = math.Round(float64(report.CasesCorrect)/float64(report.CasesTotal)*10000) / 100
	report.Message = fmt.Sprintf("%d/%d examples correct", report.CasesCorrect, report.CasesTotal)
	return report
}

// VerifyAdvancedTests runs code followed by the harness as one program and
// reads the pass count from what it prints.
func (s *VerifierService) VerifyAdvancedTests(ctx context.Context, code string, harness HarnessSource, lang model.LanguageRef) model.AdvancedReport {
	if strings.TrimSpace(code) == "" {
		return model.AdvancedReport{Message: "no code to verify"}
	}
	languageID := lang.ID()
	tests := harness.For(languageID)
	if strings.TrimSpace(tests) == "" {
		return model.AdvancedReport{Message: "no test code to run"}
	}

	res, err := s.run(ctx, model.Submission{
		SourceCode: buildTestProgram(code, tests, languageID),
		LanguageID: languageID,
	})
	if err != nil {
		logger.Warn(ctx, "advanced tests run failed", zap.String("kind", common.ErrorKind(err)), zap.Error(err))
		return model.AdvancedReport{Message: "Error running tests: " + err.Error()}
	}

	tally := ParseTestOutput(res.Stdout)
	report := model.AdvancedReport{
		Success:      res.IsAccepted(),
		AllPassed:    tally.AllPassed(),
		TotalTests:   tally.Total,
		PassingTests: tally.Passing,
		FailingTests: tally.Failing(),
		RawOutput:    res.Stdout,
		Stderr:       res.ErrorOutput(),
		Status:       res.Status.Description,
	}
	if report.Success {
		report.Message = fmt.Sprintf("%d/%d tests passed", tally.Passing, tally.Total)
	} else {
		report.Message = "test program did not finish cleanly: " + res.Status.Description
	}
	return report
}
