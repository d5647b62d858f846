package api

import (
	"net/http"
	"time"

	"github.com/anheplast/curiosmaze/internal/api/handler"
	"github.com/anheplast/curiosmaze/internal/api/middleware"
	"github.com/anheplast/curiosmaze/internal/app/service"
	"github.com/anheplast/curiosmaze/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

type RouterOptions struct {
	AuthRequired bool
	// RequestTimeout must outlive the batch budget: a batch is graded inside one request.
	RequestTimeout time.Duration
}

func NewRouter(
	judge handler.JudgeInfo,
	evaluationService *service.EvaluationService,
	verifierService *service.VerifierService,
	jobService *service.ExecutionJobService,
	opts RouterOptions,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger) // Chi's logger
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestContext)
	if opts.RequestTimeout > 0 {
		r.Use(chiMiddleware.Timeout(opts.RequestTimeout))
	}

	// Searches for a token in "Authorization: Bearer T" and puts its claims in context.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	auth := middleware.OptionalAuth
	if opts.AuthRequired {
		auth = middleware.Authenticator
	}

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		v1.Group(func(protected chi.Router) {
			protected.Use(auth)

			protected.Route("/judge", handler.NewJudgeHandler(judge).RegisterRoutes)
			protected.Route("/evaluations", handler.NewEvaluationHandler(evaluationService, jobService).RegisterRoutes)
			protected.Route("/verify", handler.NewVerifyHandler(verifierService).RegisterRoutes)
			protected.Route("/jobs", handler.NewJobHandler(jobService).RegisterRoutes)
		})
	})

	return r
}
