package handler

import (
	"net/http"

	"github.com/anheplast/curiosmaze/internal/app/service"
	"github.com/anheplast/curiosmaze/internal/common"

	"github.com/go-chi/chi/v5"
)

type JobHandler struct {
	jobs *service.ExecutionJobService
}

func NewJobHandler(js *service.ExecutionJobService) *JobHandler {
	return &JobHandler{jobs: js}
}

func (h *JobHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{jobID}", h.getJob)
}

func (h *JobHandler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	// Jobs are private to the user who queued them.
	if user := currentUser(r); job.UserID != "" && user != "" && job.UserID != user {
		common.RespondWithAppError(w, common.ErrNotFound)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}
