package model

import (
	"encoding/json"
	"math"
	"time"
)

const DefaultExerciseScore = 10

// EvaluationScoreRecord is the graded result of one exercise in a batch.
type EvaluationScoreRecord struct {
	ExerciseID        EntityID `json:"ejercicio_id"`
	Success           bool     `json:"success"`
	IsCorrect         bool     `json:"es_correcto"`
	CasesCorrect      int      `json:"casos_correctos"`
	CasesTotal        int      `json:"total_casos"`
	Percentage        float64  `json:"porcentaje"`
	ScoreObtained     float64  `json:"puntaje_obtenido"`
	ScoreMax          float64  `json:"puntaje_maximo"`
	Output            string   `json:"output"`
	Stderr            string   `json:"stderr"`
	JudgeToken        string   `json:"judge0_token,omitempty"`
	StatusID          StatusID `json:"status_id,omitempty"`
	StatusDescription string   `json:"status_description,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// NewScoreRecord grades one terminal judge result. One judge run is one case.
// Success is false when the code did not compile or crashed; a wrong answer
// or an exceeded time limit still counts as a successful run.
func NewScoreRecord(exerciseID EntityID, res SubmissionResult, scoreMax float64) EvaluationScoreRecord {
	rec := EvaluationScoreRecord{
		ExerciseID:        exerciseID,
		Success:           !res.Status.ID.IsExecutionError(),
		IsCorrect:         res.IsAccepted(),
		CasesTotal:        1,
		ScoreMax:          scoreMax,
		Output:            res.Stdout,
		Stderr:            res.ErrorOutput(),
		JudgeToken:        res.Token,
		StatusID:          res.Status.ID,
		StatusDescription: res.Status.Description,
	}
	if rec.IsCorrect {
		rec.CasesCorrect = 1
		rec.Percentage = 100
		rec.ScoreObtained = scoreMax
	}
	return rec
}

// FailedScoreRecord is the record of an exercise the judge never ran.
func FailedScoreRecord(exerciseID EntityID, scoreMax float64, reason string) EvaluationScoreRecord {
	return EvaluationScoreRecord{
		ExerciseID: exerciseID,
		CasesTotal: 1,
		ScoreMax:   scoreMax,
		Error:      reason,
	}
}

type AggregateResult struct {
	TotalScore  float64 `json:"total_puntaje"`
	MaxScore    float64 `json:"puntaje_maximo"`
	ScaledScore float64 `json:"puntaje_sobre_10"`
}

func Aggregate(records []EvaluationScoreRecord) AggregateResult {
	var agg AggregateResult
	for _, r := range records {
		agg.TotalScore += r.ScoreObtained
		agg.MaxScore += r.ScoreMax
	}
	if agg.MaxScore > 0 {
		agg.ScaledScore = agg.TotalScore / agg.MaxScore * 10
	}
	return agg
}

// Rounded returns the scaled score with two decimals, the precision the backend stores.
func (a AggregateResult) Rounded() float64 {
	return math.Round(a.ScaledScore*100) / 100
}

// BatchRequest asks for every exercise of an evaluation to be graded at once.
type BatchRequest struct {
	EvaluationID EntityID          `json:"evaluacion_id"`
	UserID       string            `json:"user_id,omitempty"`
	Exercises    []ExerciseItem    `json:"ejercicios"`
	Catalog      []CatalogExercise `json:"catalog,omitempty"`
}

// BatchOutcome is what SubmitBatch hands back. It is always renderable:
// failures set Success to false and fill Message and ErrorKind.
type BatchOutcome struct {
	Success          bool                    `json:"success"`
	Message          string                  `json:"message,omitempty"`
	BatchID          string                  `json:"batch_id,omitempty"`
	Results          []EvaluationScoreRecord `json:"resultados"`
	TotalScore       float64                 `json:"total_puntaje"`
	MaxScore         float64                 `json:"puntaje_maximo"`
	ScaledScore      float64                 `json:"puntaje_sobre_10"`
	ElapsedMs        int64                   `json:"tiempo_total_ms"`
	ErrorKind        string                  `json:"error_kind,omitempty"`
	JudgeError       string                  `json:"judge0_error,omitempty"`
	FallbackReported bool                    `json:"fallback_reported,omitempty"`
	Backend          json.RawMessage         `json:"backend,omitempty"`
	Err              error                   `json:"-"`
}

// SingleRequest grades one exercise on its own.
type SingleRequest struct {
	EvaluationID EntityID    `json:"evaluacion_id"`
	ExerciseID   EntityID    `json:"ejercicio_id"`
	UserID       string      `json:"user_id,omitempty"`
	Code         string      `json:"codigo"`
	Language     LanguageRef `json:"language"`
}

type SingleOutcome struct {
	ExerciseID   EntityID          `json:"ejercicio_id"`
	Success      bool              `json:"success"`
	Message      string            `json:"message,omitempty"`
	SubmissionID string            `json:"submission_id,omitempty"`
	JudgeToken   string            `json:"judge0_token,omitempty"`
	Code         string            `json:"codigo,omitempty"`
	Result       *SubmissionResult `json:"judge0_result,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	Backend      json.RawMessage   `json:"backend,omitempty"`
	Err          error             `json:"-"`
}

// CaseDetail is the outcome of one example run by the verifier.
type CaseDetail struct {
	Index    int    `json:"ejemplo"`
	Input    string `json:"entrada"`
	Expected string `json:"salida_esperada"`
	Actual   string `json:"salida_real"`
	Correct  bool   `json:"es_correcto"`
	Time     string `json:"tiempo"`
	Status   string `json:"estado,omitempty"`
	Error    string `json:"error,omitempty"`
	Stderr   string `json:"stderr"`
}

type ExampleReport struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message,omitempty"`
	Details      []CaseDetail `json:"resultados"`
	CasesCorrect int          `json:"casos_correctos"`
	CasesTotal   int          `json:"total_ejemplos"`
	Percentage   float64      `json:"porcentaje_exito"`
}

type AdvancedReport struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	AllPassed    bool   `json:"all_passed"`
	TotalTests   int    `json:"total_tests"`
	PassingTests int    `json:"passing_tests"`
	FailingTests int    `json:"failing_tests"`
	RawOutput    string `json:"raw_output"`
	Stderr       string `json:"stderr,omitempty"`
	Status       string `json:"status,omitempty"`
}

// SavedScores is what gets remembered per user and evaluation after a graded batch.
type SavedScores struct {
	BatchID   string                  `json:"batch_id"`
	Results   []EvaluationScoreRecord `json:"resultados"`
	Aggregate AggregateResult         `json:"aggregate"`
	SavedAt   time.Time               `json:"saved_at"`
}
