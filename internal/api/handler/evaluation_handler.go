package handler

import (
	"net/http"
	"time"

	"github.com/anheplast/curiosmaze/internal/app/service"
	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type EvaluationHandler struct {
	evaluations *service.EvaluationService
	jobs        *service.ExecutionJobService
}

func NewEvaluationHandler(es *service.EvaluationService, js *service.ExecutionJobService) *EvaluationHandler {
	return &EvaluationHandler{evaluations: es, jobs: js}
}

func (h *EvaluationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/{evaluationID}", func(r chi.Router) {
		r.Post("/start", h.start)
		r.Post("/batch", h.submitBatch)
		r.Post("/batch/async", h.submitBatchAsync)
		r.Get("/scores", h.scores)
		r.Post("/exercises/{exerciseID}/submit", h.submitSingle)
		r.Put("/exercises/{exerciseID}/language", h.saveLanguage)
	})
}

type startResponse struct {
	Success      bool      `json:"success"`
	EvaluationID string    `json:"evaluacion_id"`
	StartedAt    time.Time `json:"started_at"`
}

func (h *EvaluationHandler) start(w http.ResponseWriter, r *http.Request) {
	evaluationID := chi.URLParam(r, "evaluationID")
	started, err := h.evaluations.StartEvaluation(r.Context(), currentUser(r), evaluationID)
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, startResponse{Success: true, EvaluationID: evaluationID, StartedAt: started})
}

// batchRequest reads the body and takes the evaluation and the user from the route and the token.
func (h *EvaluationHandler) batchRequest(w http.ResponseWriter, r *http.Request) (model.BatchRequest, bool) {
	var req model.BatchRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	req.EvaluationID = model.EntityID(chi.URLParam(r, "evaluationID"))
	req.UserID = currentUser(r)
	return req, true
}

func (h *EvaluationHandler) submitBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.batchRequest(w, r)
	if !ok {
		return
	}
	common.RespondWithJSON(w, http.StatusOK, h.evaluations.SubmitBatch(r.Context(), req))
}

type asyncBatchResponse struct {
	JobID string              `json:"job_id"`
	State model.BatchJobState `json:"state"`
}

func (h *EvaluationHandler) submitBatchAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.batchRequest(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.EnqueueBatch(r.Context(), req)
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, asyncBatchResponse{JobID: job.ID, State: job.State})
}

type singleSubmitRequest struct {
	Code       string            `json:"codigo"`
	Language   model.LanguageRef `json:"language"`
	LanguageID model.LanguageRef `json:"language_id"`
}

func (req singleSubmitRequest) lang() model.LanguageRef {
	if req.LanguageID.IsSet() {
		return req.LanguageID
	}
	return req.Language
}

func (h *EvaluationHandler) submitSingle(w http.ResponseWriter, r *http.Request) {
	var body singleSubmitRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	out := h.evaluations.SubmitSingle(r.Context(), model.SingleRequest{
		EvaluationID: model.EntityID(chi.URLParam(r, "evaluationID")),
		ExerciseID:   model.EntityID(chi.URLParam(r, "exerciseID")),
		UserID:       currentUser(r),
		Code:         body.Code,
		Language:     body.lang(),
	})
	common.RespondWithJSON(w, http.StatusOK, out)
}

func (h *EvaluationHandler) saveLanguage(w http.ResponseWriter, r *http.Request) {
	var body singleSubmitRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	lang := body.lang()
	err := h.evaluations.SaveExerciseLanguage(r.Context(), currentUser(r),
		chi.URLParam(r, "evaluationID"), chi.URLParam(r, "exerciseID"), lang)
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"success": true, "language_id": lang.ID()})
}

func (h *EvaluationHandler) scores(w http.ResponseWriter, r *http.Request) {
	saved, err := h.evaluations.SavedScores(r.Context(), currentUser(r), chi.URLParam(r, "evaluationID"))
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, saved)
}
