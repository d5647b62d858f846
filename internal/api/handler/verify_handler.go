package handler

import (
	"net/http"

	"github.com/anheplast/curiosmaze/internal/app/service"
	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type VerifyHandler struct {
	verifier *service.VerifierService
}

func NewVerifyHandler(vs *service.VerifierService) *VerifyHandler {
	return &VerifyHandler{verifier: vs}
}

func (h *VerifyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/examples", h.examples)
	r.Post("/advanced", h.advanced)
}

type verifyExamplesRequest struct {
	Code       string            `json:"codigo"`
	Examples   []model.Example   `json:"ejemplos"`
	Language   model.LanguageRef `json:"language"`
	LanguageID model.LanguageRef `json:"language_id"`
}

type verifyAdvancedRequest struct {
	Code       string                `json:"codigo"`
	Tests      service.HarnessSource `json:"tests_codigo"`
	Language   model.LanguageRef     `json:"language"`
	LanguageID model.LanguageRef     `json:"language_id"`
}

func pickLanguage(id, name model.LanguageRef) model.LanguageRef {
	if id.IsSet() {
		return id
	}
	return name
}

func (h *VerifyHandler) examples(w http.ResponseWriter, r *http.Request) {
	var req verifyExamplesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report := h.verifier.VerifyExamples(r.Context(), req.Code, req.Examples, pickLanguage(req.LanguageID, req.Language))
	common.RespondWithJSON(w, http.StatusOK, report)
}

func (h *VerifyHandler) advanced(w http.ResponseWriter, r *http.Request) {
	var req verifyAdvancedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report := h.verifier.VerifyAdvancedTests(r.Context(), req.Code, req.Tests, pickLanguage(req.LanguageID, req.Language))
	common.RespondWithJSON(w, http.StatusOK, report)
}
