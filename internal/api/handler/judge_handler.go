package handler

import (
	"context"
	"net/http"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/platform/judge0"

	"github.com/go-chi/chi/v5"
)

type JudgeInfo interface {
	Describe(ctx context.Context) judge0.Availability
	ListLanguages(ctx context.Context) ([]judge0.Language, error)
}

type JudgeHandler struct {
	judge JudgeInfo
}

func NewJudgeHandler(judge JudgeInfo) *JudgeHandler {
	return &JudgeHandler{judge: judge}
}

func (h *JudgeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.status)
	r.Get("/languages", h.languages)
}

// status always answers 200; is_available carries the verdict.
func (h *JudgeHandler) status(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, h.judge.Describe(r.Context()))
}

func (h *JudgeHandler) languages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.judge.ListLanguages(r.Context())
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, langs)
}
